package simulation

import (
	"context"
	"math"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/technocodist/aitcsm/internal/common/random"
)

const (
	FreeFallEngineName = "freefall"
	DragEngineName     = "drag"

	TimeSeries      = "time"
	VelocitySeries  = "velocity"
	PositionSeries  = "position"
	DragForceSeries = "drag_force"
	NetForceSeries  = "net_force"
)

// FreeFallParams configures an explicit Euler integration of a body falling under constant gravity.
type FreeFallParams struct {
	TimeStep        float64 `mapstructure:"timeStep" yaml:"timeStep"`
	Steps           int     `mapstructure:"steps" yaml:"steps"`
	InitialVelocity float64 `mapstructure:"initialVelocity" yaml:"initialVelocity"`
	InitialHeight   float64 `mapstructure:"initialHeight" yaml:"initialHeight"`
	Mass            float64 `mapstructure:"mass" yaml:"mass"`
	Gravity         float64 `mapstructure:"gravity" yaml:"gravity"`
	ResultPerSteps  int     `mapstructure:"resultPerSteps" yaml:"resultPerSteps"`
	// When set, every snapshot carries the whole trajectory up to its step rather than the current state only.
	// Each emit copies the trajectory, so a task holds O(Steps^2/ResultPerSteps) values in total.
	Trajectory bool `mapstructure:"trajectory" yaml:"trajectory"`
}

func (p FreeFallParams) Validate() error {
	var result *multierror.Error
	if p.TimeStep <= 0 {
		result = multierror.Append(result, errors.Errorf("timeStep must be positive, got %v", p.TimeStep))
	}
	if p.Steps < 0 {
		result = multierror.Append(result, errors.Errorf("steps must not be negative, got %d", p.Steps))
	}
	if p.Mass <= 0 {
		result = multierror.Append(result, errors.Errorf("mass must be positive, got %v", p.Mass))
	}
	if p.Gravity < 0 {
		result = multierror.Append(result, errors.Errorf("gravity must not be negative, got %v", p.Gravity))
	}
	if p.ResultPerSteps <= 0 {
		result = multierror.Append(result, errors.Errorf("resultPerSteps must be positive, got %d", p.ResultPerSteps))
	}
	return result.ErrorOrNil()
}

// DragParams adds air resistance to FreeFallParams. The drag force is 0.5 * DragCoefficient * |v|^VelocityPower
// and always opposes the velocity.
type DragParams struct {
	FreeFallParams  `mapstructure:",squash" yaml:",inline"`
	DragCoefficient float64 `mapstructure:"dragCoefficient" yaml:"dragCoefficient"`
	VelocityPower   float64 `mapstructure:"velocityPower" yaml:"velocityPower"`
}

func (p DragParams) Validate() error {
	var result *multierror.Error
	if err := p.FreeFallParams.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if p.DragCoefficient < 0 {
		result = multierror.Append(result, errors.Errorf("dragCoefficient must not be negative, got %v", p.DragCoefficient))
	}
	if p.VelocityPower <= 0 {
		result = multierror.Append(result, errors.Errorf("velocityPower must be positive, got %v", p.VelocityPower))
	}
	return result.ErrorOrNil()
}

type forces struct {
	drag float64
	net  float64
}

// FreeFallEngine integrates motion under gravity alone.
type FreeFallEngine struct{}

func (FreeFallEngine) Name() string {
	return FreeFallEngineName
}

func (e FreeFallEngine) Simulate(ctx context.Context, task Task[FreeFallParams], _ *random.Stream, emit Emitter) error {
	p := task.Params
	gravityForce := -p.Mass * p.Gravity
	return integrate(ctx, task.ID, e.Name(), p, false, emit, func(float64) forces {
		return forces{net: gravityForce}
	})
}

// DragEngine integrates motion under gravity and air resistance.
type DragEngine struct{}

func (DragEngine) Name() string {
	return DragEngineName
}

func (e DragEngine) Simulate(ctx context.Context, task Task[DragParams], _ *random.Stream, emit Emitter) error {
	p := task.Params
	gravityForce := -p.Mass * p.Gravity
	return integrate(ctx, task.ID, e.Name(), p.FreeFallParams, true, emit, func(velocity float64) forces {
		drag := 0.5 * p.DragCoefficient * math.Pow(math.Abs(velocity), p.VelocityPower)
		direction := 1.0
		if velocity > 0 {
			direction = -1.0
		}
		return forces{drag: drag, net: direction*drag + gravityForce}
	})
}

// trace holds the working buffers of an integration. Buffers are grown in place and copied on emit.
type trace struct {
	time, velocity, position, drag, net []float64
}

func (t *trace) append(time, velocity, position float64, f forces, withForces bool) {
	t.time = append(t.time, time)
	t.velocity = append(t.velocity, velocity)
	t.position = append(t.position, position)
	if withForces {
		t.drag = append(t.drag, f.drag)
		t.net = append(t.net, f.net)
	}
}

func (t *trace) snapshot(withForces bool) []Series {
	series := []Series{
		{Name: TimeSeries, Values: clone(t.time)},
		{Name: VelocitySeries, Values: clone(t.velocity)},
		{Name: PositionSeries, Values: clone(t.position)},
	}
	if withForces {
		series = append(series,
			Series{Name: DragForceSeries, Values: clone(t.drag)},
			Series{Name: NetForceSeries, Values: clone(t.net)},
		)
	}
	return series
}

func integrate(
	ctx context.Context,
	taskID int64,
	engine string,
	p FreeFallParams,
	withForces bool,
	emit Emitter,
	force func(velocity float64) forces,
) error {
	capacity := 1
	if p.Trajectory {
		capacity = p.Steps
	}
	t := &trace{}
	t.time = make([]float64, 0, capacity)
	t.velocity = make([]float64, 0, capacity)
	t.position = make([]float64, 0, capacity)
	if withForces {
		t.drag = make([]float64, 0, capacity)
		t.net = make([]float64, 0, capacity)
	}

	time := 0.0
	velocity := p.InitialVelocity
	position := p.InitialHeight

	for step := 0; step < p.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		f := force(velocity)
		velocity += f.net / p.Mass * p.TimeStep
		position += velocity * p.TimeStep
		time += p.TimeStep

		if !p.Trajectory {
			t.time, t.velocity, t.position = t.time[:0], t.velocity[:0], t.position[:0]
			if withForces {
				t.drag, t.net = t.drag[:0], t.net[:0]
			}
		}
		t.append(time, velocity, position, f, withForces)

		if step%p.ResultPerSteps == 0 {
			err := emit(Snapshot{
				TaskID: taskID,
				Engine: engine,
				Step:   int64(step + 1),
				Series: t.snapshot(withForces),
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

package simulation

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/technocodist/aitcsm/internal/common/random"
)

const (
	WealthEngineName = "wealth"
	SavingEngineName = "saving"

	MoneySeries = "money"
)

// WealthParams configures the random pairwise money exchange model.
type WealthParams struct {
	// Number of agents taking part in the exchange
	Agents int `mapstructure:"agents" yaml:"agents"`
	// Money every agent starts with
	InitialMoney float64 `mapstructure:"initialMoney" yaml:"initialMoney"`
	// Number of exchange attempts
	Iterations int `mapstructure:"iterations" yaml:"iterations"`
	// A snapshot is emitted every ResultPerSteps iterations
	ResultPerSteps int `mapstructure:"resultPerSteps" yaml:"resultPerSteps"`
}

func (p WealthParams) Validate() error {
	var result *multierror.Error
	if p.Agents <= 1 {
		result = multierror.Append(result, errors.Errorf("agents must be greater than 1, got %d", p.Agents))
	}
	if p.InitialMoney < 0 {
		result = multierror.Append(result, errors.Errorf("initialMoney must not be negative, got %v", p.InitialMoney))
	}
	if p.Iterations <= 0 {
		result = multierror.Append(result, errors.Errorf("iterations must be positive, got %d", p.Iterations))
	}
	if p.ResultPerSteps <= 0 {
		result = multierror.Append(result, errors.Errorf("resultPerSteps must be positive, got %d", p.ResultPerSteps))
	}
	return result.ErrorOrNil()
}

// SavingParams configures the money exchange model in which every agent keeps a fraction Lambda of its money.
type SavingParams struct {
	WealthParams `mapstructure:",squash" yaml:",inline"`
	// Saving propensity in [0,1]
	Lambda float64 `mapstructure:"lambda" yaml:"lambda"`
}

func (p SavingParams) Validate() error {
	var result *multierror.Error
	if err := p.WealthParams.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if p.Lambda < 0 || p.Lambda > 1 {
		result = multierror.Append(result, errors.Errorf("lambda must be between 0 and 1, got %v", p.Lambda))
	}
	return result.ErrorOrNil()
}

// WealthEngine simulates random pairwise exchanges: two distinct agents pool their money and split it at a
// uniformly drawn ratio.
type WealthEngine struct{}

func (WealthEngine) Name() string {
	return WealthEngineName
}

func (e WealthEngine) Simulate(ctx context.Context, task Task[WealthParams], rng *random.Stream, emit Emitter) error {
	p := task.Params
	return exchange(ctx, task.ID, e.Name(), p, rng, emit, func(agents []float64, i, j int, eps float64) {
		total := agents[i] + agents[j]
		agents[i] = eps * total
		agents[j] = (1 - eps) * total
	})
}

// SavingEngine is WealthEngine with a saving propensity: only the fraction 1-Lambda of the pair's money is
// redistributed.
type SavingEngine struct{}

func (SavingEngine) Name() string {
	return SavingEngineName
}

func (e SavingEngine) Simulate(ctx context.Context, task Task[SavingParams], rng *random.Stream, emit Emitter) error {
	lambda := task.Params.Lambda
	return exchange(ctx, task.ID, e.Name(), task.Params.WealthParams, rng, emit, func(agents []float64, i, j int, eps float64) {
		delta := (1 - lambda) * (eps*agents[j] - (1-eps)*agents[i])
		agents[i] += delta
		agents[j] -= delta
	})
}

func exchange(
	ctx context.Context,
	taskID int64,
	engine string,
	p WealthParams,
	rng *random.Stream,
	emit Emitter,
	trade func(agents []float64, i, j int, eps float64),
) error {
	agents := make([]float64, p.Agents)
	for i := range agents {
		agents[i] = p.InitialMoney
	}

	for step := 0; step < p.Iterations; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		// A draw of the same agent twice is a step without a trade.
		i := rng.Intn(p.Agents)
		j := rng.Intn(p.Agents)
		if i != j {
			trade(agents, i, j, rng.Float64())
		}

		if step%p.ResultPerSteps == 0 {
			err := emit(Snapshot{
				TaskID: taskID,
				Engine: engine,
				Step:   int64(step),
				Series: []Series{{Name: MoneySeries, Values: clone(agents)}},
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

package simulation

import (
	"context"
	"math"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technocodist/aitcsm/internal/common/random"
)

func collect[P Params](t *testing.T, engine Engine[P], task Task[P]) []Snapshot {
	t.Helper()
	var out []Snapshot
	err := engine.Simulate(context.Background(), task, random.New(task.Seed), func(s Snapshot) error {
		out = append(out, s)
		return nil
	})
	require.NoError(t, err)
	return out
}

func wealthTask(id, seed int64, iterations int) Task[WealthParams] {
	return Task[WealthParams]{
		ID:   id,
		Seed: seed,
		Params: WealthParams{
			Agents:         100,
			InitialMoney:   1000,
			Iterations:     iterations,
			ResultPerSteps: 10,
		},
	}
}

func TestWealthEngine_Deterministic(t *testing.T) {
	first := collect[WealthParams](t, WealthEngine{}, wealthTask(1, 7, 5000))
	second := collect[WealthParams](t, WealthEngine{}, wealthTask(1, 7, 5000))
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)

	other := collect[WealthParams](t, WealthEngine{}, wealthTask(1, 8, 5000))
	assert.NotEqual(t, first, other)
}

func TestWealthEngine_ConservesMoneyAndStepsIncrease(t *testing.T) {
	snapshots := collect[WealthParams](t, WealthEngine{}, wealthTask(3, 59, 20000))
	require.Len(t, snapshots, 2000)

	last := int64(-1)
	for _, s := range snapshots {
		assert.Equal(t, int64(3), s.TaskID)
		assert.Equal(t, WealthEngineName, s.Engine)
		assert.Greater(t, s.Step, last)
		assert.Zero(t, s.Step%10)
		last = s.Step

		money := s.Values(MoneySeries)
		require.Len(t, money, 100)
		total := 0.0
		for _, m := range money {
			assert.GreaterOrEqual(t, m, 0.0)
			total += m
		}
		assert.InDelta(t, 100*1000.0, total, 1e-6)
	}
}

func TestWealthEngine_SnapshotsAreCopies(t *testing.T) {
	snapshots := collect[WealthParams](t, WealthEngine{}, wealthTask(1, 1, 2000))
	require.Greater(t, len(snapshots), 2)
	// Later exchanges must not have rewritten the first snapshot.
	assert.NotEqual(t, snapshots[0].Values(MoneySeries), snapshots[len(snapshots)-1].Values(MoneySeries))
	first := collect[WealthParams](t, WealthEngine{}, wealthTask(1, 1, 2000))[0]
	assert.Equal(t, first, snapshots[0])
}

func TestSavingEngine_ConservesMoney(t *testing.T) {
	task := Task[SavingParams]{
		ID:   2,
		Seed: 11,
		Params: SavingParams{
			WealthParams: WealthParams{Agents: 50, InitialMoney: 10, Iterations: 10000, ResultPerSteps: 100},
			Lambda:       0.3,
		},
	}
	snapshots := collect[SavingParams](t, SavingEngine{}, task)
	require.NotEmpty(t, snapshots)
	for _, s := range snapshots {
		total := 0.0
		for _, m := range s.Values(MoneySeries) {
			total += m
		}
		assert.InDelta(t, 500.0, total, 1e-9)
		assert.Equal(t, SavingEngineName, s.Engine)
	}
	assert.Equal(t, snapshots, collect[SavingParams](t, SavingEngine{}, task))
}

func TestFreeFallEngine(t *testing.T) {
	task := Task[FreeFallParams]{
		ID: 4,
		Params: FreeFallParams{
			TimeStep:        0.1,
			Steps:           10,
			InitialVelocity: 0,
			InitialHeight:   100,
			Mass:            2,
			Gravity:         9.81,
			ResultPerSteps:  1,
		},
	}
	snapshots := collect[FreeFallParams](t, FreeFallEngine{}, task)
	require.Len(t, snapshots, 10)

	velocity, position := 0.0, 100.0
	for i, s := range snapshots {
		velocity += -9.81 * 0.1
		position += velocity * 0.1
		assert.Equal(t, int64(i+1), s.Step)
		// only the current state without the trajectory option
		assert.Len(t, s.Values(TimeSeries), 1)
		assert.Len(t, s.Values(PositionSeries), 1)
		assert.InDelta(t, float64(i+1)*0.1, s.Values(TimeSeries)[0], 1e-12)
		assert.InDelta(t, velocity, s.Values(VelocitySeries)[0], 1e-12)
		assert.InDelta(t, position, s.Values(PositionSeries)[0], 1e-12)
		assert.Nil(t, s.Values(DragForceSeries))
	}
}

func TestFreeFallEngine_Trajectory(t *testing.T) {
	task := Task[FreeFallParams]{
		ID:     5,
		Params: FreeFallParams{TimeStep: 0.01, Steps: 100, Mass: 1, Gravity: 9.81, ResultPerSteps: 10, Trajectory: true},
	}
	snapshots := collect[FreeFallParams](t, FreeFallEngine{}, task)
	require.Len(t, snapshots, 10)
	for i, s := range snapshots {
		assert.Len(t, s.Values(TimeSeries), i*10+1)
	}
	// the first snapshot is not extended by later steps
	assert.Len(t, snapshots[0].Values(PositionSeries), 1)
}

func TestFreeFallEngine_ZeroSteps(t *testing.T) {
	task := Task[FreeFallParams]{Params: FreeFallParams{TimeStep: 0.1, Steps: 0, Mass: 1, Gravity: 9.81, ResultPerSteps: 1}}
	assert.Empty(t, collect[FreeFallParams](t, FreeFallEngine{}, task))
}

func TestDragEngine_ReachesTerminalVelocity(t *testing.T) {
	task := Task[DragParams]{
		ID: 6,
		Params: DragParams{
			FreeFallParams:  FreeFallParams{TimeStep: 0.01, Steps: 10000, InitialHeight: 1000, Mass: 1, Gravity: 9.81, ResultPerSteps: 100},
			DragCoefficient: 0.5,
			VelocityPower:   2,
		},
	}
	snapshots := collect[DragParams](t, DragEngine{}, task)
	require.NotEmpty(t, snapshots)
	last := snapshots[len(snapshots)-1]

	terminal := -math.Sqrt(2 * 1 * 9.81 / 0.5)
	assert.InDelta(t, terminal, last.Values(VelocitySeries)[0], 1e-3)
	assert.InDelta(t, 0, last.Values(NetForceSeries)[0], 1e-3)
	assert.Greater(t, last.Values(DragForceSeries)[0], 0.0)
}

func TestEngines_StopOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	emitted := 0
	err := WealthEngine{}.Simulate(ctx, wealthTask(1, 1, 1_000_000), random.New(1), func(Snapshot) error {
		emitted++
		if emitted == 5 {
			cancel()
		}
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 5, emitted)
}

func TestEngines_StopOnEmitError(t *testing.T) {
	boom := errors.New("boom")
	emitted := 0
	task := Task[FreeFallParams]{Params: FreeFallParams{TimeStep: 0.1, Steps: 100, Mass: 1, Gravity: 1, ResultPerSteps: 1}}
	err := FreeFallEngine{}.Simulate(context.Background(), task, random.New(0), func(Snapshot) error {
		emitted++
		if emitted == 3 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, emitted)
}

func TestValidate(t *testing.T) {
	validFreeFall := FreeFallParams{TimeStep: 0.1, Mass: 1, ResultPerSteps: 1}
	tests := map[string]struct {
		params   Params
		messages int
	}{
		"valid wealth":     {params: WealthParams{Agents: 2, Iterations: 1, ResultPerSteps: 1}},
		"one agent":        {params: WealthParams{Agents: 1, Iterations: 1, ResultPerSteps: 1}, messages: 1},
		"all wrong":        {params: WealthParams{Agents: 0, InitialMoney: -1, Iterations: 0, ResultPerSteps: 0}, messages: 4},
		"lambda too big":   {params: SavingParams{WealthParams: WealthParams{Agents: 2, Iterations: 1, ResultPerSteps: 1}, Lambda: 1.5}, messages: 1},
		"saving all wrong": {params: SavingParams{Lambda: -1}, messages: 4},
		"valid freefall":   {params: validFreeFall},
		"no mass":          {params: FreeFallParams{TimeStep: 0.1, ResultPerSteps: 1}, messages: 1},
		"negative gravity": {params: FreeFallParams{TimeStep: 0.1, Mass: 1, Gravity: -1, ResultPerSteps: 1}, messages: 1},
		"negative drag":    {params: DragParams{FreeFallParams: validFreeFall, DragCoefficient: -1, VelocityPower: 1}, messages: 1},
		"valid drag":       {params: DragParams{FreeFallParams: validFreeFall, VelocityPower: 2}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := tc.params.Validate()
			if tc.messages == 0 {
				assert.NoError(t, err)
				return
			}
			var merr *multierror.Error
			require.True(t, errors.As(err, &merr))
			assert.Len(t, merr.Errors, tc.messages)
		})
	}
}

func TestDecodeTasks(t *testing.T) {
	specs := []TaskSpec{
		{ID: 1, Seed: 7, Params: map[string]interface{}{"agents": 100, "initialMoney": 1000.0, "iterations": "100000", "resultPerSteps": 10, "lambda": 0.2}},
	}
	tasks, err := DecodeTasks[SavingParams](specs)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, Task[SavingParams]{
		ID:   1,
		Seed: 7,
		Params: SavingParams{
			WealthParams: WealthParams{Agents: 100, InitialMoney: 1000, Iterations: 100000, ResultPerSteps: 10},
			Lambda:       0.2,
		},
	}, tasks[0])
}

func TestDecodeTasks_UnknownKey(t *testing.T) {
	_, err := DecodeTasks[WealthParams]([]TaskSpec{{ID: 9, Params: map[string]interface{}{"agentz": 3}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task 9")
}

func TestEngineFunc(t *testing.T) {
	engine := EngineFunc[WealthParams]{
		EngineName: "custom",
		Fn: func(_ context.Context, task Task[WealthParams], _ *random.Stream, emit Emitter) error {
			return emit(Snapshot{TaskID: task.ID, Step: 1})
		},
	}
	assert.Equal(t, "custom", engine.Name())
	snapshots := collect[WealthParams](t, engine, Task[WealthParams]{ID: 12})
	assert.Equal(t, []Snapshot{{TaskID: 12, Step: 1}}, snapshots)
}

package simrunner

import (
	"sort"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/technocodist/aitcsm/internal/common/simcontext"
	"github.com/technocodist/aitcsm/internal/pipeline"
	"github.com/technocodist/aitcsm/internal/pipeline/metrics"
	"github.com/technocodist/aitcsm/internal/simulation"
	"github.com/technocodist/aitcsm/internal/sink"
)

// RunOptions carries everything a registered engine needs to run a submission apart from its tasks.
type RunOptions struct {
	RunID        string
	Config       pipeline.Config
	Sink         sink.Sink
	Metrics      *metrics.Metrics
	OnFlushError func(*pipeline.SinkError)
}

// RegisteredEngine runs untyped task specs with a typed engine.
type RegisteredEngine interface {
	Name() string
	// Parameters lists the parameter keys the engine accepts.
	Parameters() []string
	Run(ctx *simcontext.Context, specs []simulation.TaskSpec, opts RunOptions) (pipeline.Summary, error)
}

type typedEngine[P simulation.Params] struct {
	engine simulation.Engine[P]
}

// Register wraps a typed engine so that it can be looked up by name.
func Register[P simulation.Params](engine simulation.Engine[P]) RegisteredEngine {
	return typedEngine[P]{engine: engine}
}

func (e typedEngine[P]) Name() string {
	return e.engine.Name()
}

func (e typedEngine[P]) Parameters() []string {
	var zero P
	fields := map[string]interface{}{}
	// Decoding the zero value into a map yields the squashed mapstructure keys.
	if err := mapstructure.Decode(zero, &fields); err != nil {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (e typedEngine[P]) Run(ctx *simcontext.Context, specs []simulation.TaskSpec, opts RunOptions) (pipeline.Summary, error) {
	tasks, err := simulation.DecodeTasks[P](specs)
	if err != nil {
		return pipeline.Summary{}, err
	}
	return pipeline.NewRunner[P](e.engine, opts.Config, opts.Metrics).
		WithRunID(opts.RunID).
		Run(ctx, tasks, opts.Sink, opts.OnFlushError)
}

// Registry maps engine names to engines.
type Registry struct {
	engines map[string]RegisteredEngine
}

func NewRegistry(engines ...RegisteredEngine) *Registry {
	r := &Registry{engines: make(map[string]RegisteredEngine, len(engines))}
	for _, e := range engines {
		r.engines[e.Name()] = e
	}
	return r
}

// DefaultRegistry holds every built-in engine.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Register[simulation.WealthParams](simulation.WealthEngine{}),
		Register[simulation.SavingParams](simulation.SavingEngine{}),
		Register[simulation.FreeFallParams](simulation.FreeFallEngine{}),
		Register[simulation.DragParams](simulation.DragEngine{}),
	)
}

func (r *Registry) Get(name string) (RegisteredEngine, error) {
	e, ok := r.engines[name]
	if !ok {
		return nil, errors.Errorf("unknown engine %q, known engines are %v", name, r.Names())
	}
	return e, nil
}

// Names returns the registered engine names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package simulation

import (
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// TaskSpec is the untyped form of a task as it appears in input files: an id, a seed and a free-form parameter
// block that is decoded into the engine's parameter type.
type TaskSpec struct {
	ID     int64                  `yaml:"id"`
	Seed   int64                  `yaml:"seed"`
	Params map[string]interface{} `yaml:"params"`
}

// DecodeParams decodes raw into P. Unknown keys are rejected so that misspelt parameters do not silently fall
// back to zero values.
func DecodeParams[P Params](raw map[string]interface{}) (P, error) {
	var params P
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           &params,
	})
	if err != nil {
		return params, errors.WithStack(err)
	}
	if err := decoder.Decode(raw); err != nil {
		return params, errors.WithStack(err)
	}
	return params, nil
}

// DecodeTasks converts specs into typed tasks. Parameter validation is left to the pipeline so that all
// violations of a submission are reported together.
func DecodeTasks[P Params](specs []TaskSpec) ([]Task[P], error) {
	tasks := make([]Task[P], len(specs))
	for i, spec := range specs {
		params, err := DecodeParams[P](spec.Params)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to decode parameters of task %d", spec.ID)
		}
		tasks[i] = Task[P]{ID: spec.ID, Seed: spec.Seed, Params: params}
	}
	return tasks, nil
}

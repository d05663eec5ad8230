package sink

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/technocodist/aitcsm/internal/simulation"
)

// MultiSink stores every batch in each of its sinks. A batch is reported as failed if any sink failed, but the
// remaining sinks are still tried.
type MultiSink []Sink

func (m MultiSink) Store(ctx context.Context, batch []simulation.Snapshot) error {
	var result *multierror.Error
	for i, s := range m {
		if err := s.Store(ctx, batch); err != nil {
			result = multierror.Append(result, errors.WithMessage(err, fmt.Sprintf("sink %d", i)))
		}
	}
	return result.ErrorOrNil()
}

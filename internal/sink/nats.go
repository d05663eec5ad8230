package sink

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/technocodist/aitcsm/internal/simulation"
)

// Publisher is the part of *nats.Conn the NATS sink uses.
type Publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

var _ Publisher = (*nats.Conn)(nil)

// NATSSink publishes every row as a json message on <prefix>.<engine>.<task>.
type NATSSink struct {
	runID   string
	conn    Publisher
	subject string
}

// ConnectNATS connects to the given server urls and returns a sink publishing under subject.
func ConnectNATS(url string, subject string, runID string) (*NATSSink, *nats.Conn, error) {
	conn, err := nats.Connect(url, nats.Name("simrunner-"+runID))
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}
	return NewNATSSink(conn, subject, runID), conn, nil
}

func NewNATSSink(conn Publisher, subject string, runID string) *NATSSink {
	return &NATSSink{runID: runID, conn: conn, subject: subject}
}

func (s *NATSSink) Store(ctx context.Context, batch []simulation.Snapshot) error {
	for _, row := range ToRows(s.runID, batch) {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(row)
		if err != nil {
			return errors.WithStack(err)
		}
		if err := s.conn.Publish(s.Subject(row), data); err != nil {
			return errors.WithStack(err)
		}
	}
	return errors.WithStack(s.conn.FlushWithContext(ctx))
}

// Subject returns the subject a row is published on.
func (s *NATSSink) Subject(row Row) string {
	return fmt.Sprintf("%s.%s.%d", s.subject, row.Engine, row.TaskID)
}

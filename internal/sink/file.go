package sink

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/technocodist/aitcsm/internal/simulation"
)

// FileSink writes rows as newline-delimited json to <dir>/<run>.ndjson. Series payloads are codec blobs, so
// NaN and infinite values survive the round trip.
type FileSink struct {
	runID string
	path  string
	mu    sync.Mutex
	file  *os.File
	out   *bufio.Writer
}

func OpenFile(dir string, runID string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WithStack(err)
	}
	path := filepath.Join(dir, runID+".ndjson")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &FileSink{
		runID: runID,
		path:  path,
		file:  file,
		out:   bufio.NewWriter(file),
	}, nil
}

// Path returns the file the sink writes to.
func (s *FileSink) Path() string {
	return s.path
}

func (s *FileSink) Store(_ context.Context, batch []simulation.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return errors.Errorf("file sink %s is closed", s.path)
	}
	encoder := json.NewEncoder(s.out)
	for _, row := range ToRows(s.runID, batch) {
		if err := encoder.Encode(row); err != nil {
			return errors.WithStack(err)
		}
	}
	return errors.WithStack(s.out.Flush())
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.out.Flush()
	if closeErr := s.file.Close(); err == nil {
		err = closeErr
	}
	s.file = nil
	return errors.WithStack(err)
}

// ReadRows reads every row written by a FileSink. Blank lines are skipped.
func ReadRows(r io.Reader) ([]Row, error) {
	reader := bufio.NewReader(r)
	var rows []Row
	for line := 1; ; line++ {
		data, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, errors.WithStack(err)
		}
		if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 {
			var row Row
			if unmarshalErr := json.Unmarshal(trimmed, &row); unmarshalErr != nil {
				return nil, errors.WithMessagef(unmarshalErr, "decoding line %d", line)
			}
			rows = append(rows, row)
		}
		if err == io.EOF {
			return rows, nil
		}
	}
}

// ReadFile reads every row of a file written by a FileSink.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	return ReadRows(f)
}

package recorder

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/JOBOYA/ghostline/internal/events"
	"github.com/golang/snappy"
)

// sidecar is a durable, append-only JSONL log of frame summaries, compressed
// with snappy, kept alongside the container for post-hoc debugging when no
// viewer is attached. It has no HTTP surface of its own.
type sidecar struct {
	mu sync.Mutex
	f  *os.File
	w  *snappy.Writer
}

func newSidecar(path string) (*sidecar, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &sidecar{f: f, w: snappy.NewBufferedWriter(f)}, nil
}

// Append writes one summary as a JSON line and flushes it immediately so the
// sidecar reflects every captured frame even if the process later crashes.
func (s *sidecar) Append(summary events.FrameSummary) error {
	line, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(line); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *sidecar) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Close(); err != nil {
		_ = s.f.Close()
		return err
	}
	return s.f.Close()
}

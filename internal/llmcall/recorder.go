package llmcall

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Recorder appends calls to a JSON-lines file. Record is fire-and-forget:
// writes are queued to a single writer goroutine.
type Recorder struct {
	file   *os.File
	queue  chan *Call
	done   chan struct{}
	logger *slog.Logger

	closeOnce sync.Once
}

// NewRecorder opens (or creates) the call log at path.
func NewRecorder(path string, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create call log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open call log: %w", err)
	}

	r := &Recorder{
		file:   f,
		queue:  make(chan *Call, 256),
		done:   make(chan struct{}),
		logger: logger,
	}
	go r.run()
	return r, nil
}

// Record captures a call asynchronously. Safe on a nil Recorder.
func (r *Recorder) Record(call *Call) {
	if r == nil || call == nil {
		return
	}
	r.queue <- call
}

// Close flushes queued calls and closes the file.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	var err error
	r.closeOnce.Do(func() {
		close(r.queue)
		<-r.done
		err = r.file.Close()
	})
	return err
}

func (r *Recorder) run() {
	defer close(r.done)
	enc := json.NewEncoder(r.file)
	for call := range r.queue {
		if err := enc.Encode(call); err != nil {
			r.logger.Warn("failed to write call record", "id", call.ID, "error", err)
		}
	}
}

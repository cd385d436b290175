package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/siddharthsingh10/streaming-data-pipeline/internal/event"
	"github.com/siddharthsingh10/streaming-data-pipeline/internal/logging"
)

// DeadLetterWriter persists each dead-letter record as its own JSON document
// for debugging and potential reprocessing.
type DeadLetterWriter struct {
	mu sync.Mutex

	dir     string
	written uint64
	failed  uint64

	log logging.Logger
	now func() time.Time
}

// NewDeadLetterWriter creates a writer targeting dir.
func NewDeadLetterWriter(dir string, log logging.Logger) (*DeadLetterWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sink: create dead-letter dir: %w", err)
	}
	return &DeadLetterWriter{dir: dir, log: log, now: time.Now}, nil
}

// Write stores one dead-letter record as a JSON file.
func (w *DeadLetterWriter) Write(rec event.DeadLetterRecord) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	filename := fmt.Sprintf("dead_letter_%s_%s.json",
		w.now().Format("20060102_150405"), shortID())
	path := filepath.Join(w.dir, filename)

	payload, err := event.EncodeJSON(rec)
	if err != nil {
		w.failed++
		w.log.Error("failed to encode dead-letter record", err, nil)
		return false
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		w.failed++
		w.log.Error("failed to write dead-letter record", err, logging.LogFields{
			"file": filename,
		})
		return false
	}

	w.written++
	w.log.Warn("wrote dead-letter record", logging.LogFields{"file": filename})
	return true
}

// Stats reports write successes and failures for health checks.
func (w *DeadLetterWriter) Stats() (successes, errors uint64, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written, w.failed, nil
}

// Package sink persists enriched records as compressed columnar files and
// dead-letter records as JSON documents.
package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"github.com/siddharthsingh10/streaming-data-pipeline/internal/event"
	"github.com/siddharthsingh10/streaming-data-pipeline/internal/logging"
)

// DefaultBatchSize is the flush threshold when none is configured.
const DefaultBatchSize = 100

// ParquetWriter buffers enriched records and writes each batch as one new
// snappy-compressed parquet file. It never appends to an existing file.
//
// Column types are inferred per batch from the first non-null value of each
// field, so the same field may be encoded differently across files when the
// value populations differ. That batch-local inference is intentional
// compatibility behavior, not a bug; readers must tolerate it.
type ParquetWriter struct {
	mu sync.Mutex

	dir       string
	batchSize int
	buffer    []map[string]any

	filesWritten  uint64
	eventsWritten uint64
	writeFailures uint64

	log logging.Logger
	now func() time.Time
}

// NewParquetWriter creates a writer targeting dir, flushing every batchSize
// records.
func NewParquetWriter(dir string, batchSize int, log logging.Logger) (*ParquetWriter, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sink: create output dir: %w", err)
	}
	return &ParquetWriter{
		dir:       dir,
		batchSize: batchSize,
		buffer:    make([]map[string]any, 0, batchSize),
		log:       log,
		now:       time.Now,
	}, nil
}

// Add buffers one record in insertion order. When the buffer reaches the
// batch size the writer flushes synchronously before returning. The record
// counts as accepted even if that flush fails; a failed flush leaves the
// buffer intact for a later attempt.
func (w *ParquetWriter) Add(rec event.EnrichedRecord) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buffer = append(w.buffer, rec.ToMap())
	if len(w.buffer) >= w.batchSize {
		w.flushLocked()
	}
	return true
}

// Flush writes the buffered batch to one new parquet file. Returns true when
// the batch was written (or the buffer was empty). On failure the buffer is
// left intact, the failure is logged and counted, and no retry happens.
func (w *ParquetWriter) Flush() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *ParquetWriter) flushLocked() bool {
	if len(w.buffer) == 0 {
		return true
	}

	filename := fmt.Sprintf("events_%s_%s.parquet",
		w.now().Format("20060102_150405"), shortID())
	path := filepath.Join(w.dir, filename)

	if err := writeParquet(path, w.buffer); err != nil {
		w.writeFailures++
		w.log.Error("failed to flush batch", err, logging.LogFields{
			"file":       filename,
			"batch_size": len(w.buffer),
		})
		return false
	}

	w.eventsWritten += uint64(len(w.buffer))
	w.filesWritten++
	w.log.Info("wrote batch", logging.LogFields{
		"file":   filename,
		"events": len(w.buffer),
	})

	w.buffer = w.buffer[:0]
	return true
}

// Close flushes any remaining records and reports the totals.
func (w *ParquetWriter) Close() error {
	remaining := w.BufferedCount()
	if remaining > 0 {
		w.log.Info("flushing final batch", logging.LogFields{"events": remaining})
		if !w.Flush() {
			return fmt.Errorf("sink: final flush failed with %d records buffered", remaining)
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.log.Info("sink writer closed", logging.LogFields{
		"events_written": w.eventsWritten,
		"files_written":  w.filesWritten,
	})
	return nil
}

// BufferedCount returns the number of records waiting for the next flush.
func (w *ParquetWriter) BufferedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}

// Stats reports write successes and failures for health checks.
func (w *ParquetWriter) Stats() (successes, errors uint64, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.eventsWritten, w.writeFailures, nil
}

// writeParquet encodes one batch into a new file. The schema is the union of
// all field names across the batch; a record missing a field contributes a
// null cell for that column.
func writeParquet(path string, batch []map[string]any) error {
	columns := unionColumns(batch)

	group := parquet.Group{}
	kinds := make(map[string]columnKind, len(columns))
	for _, col := range columns {
		kind := inferKind(batch, col)
		kinds[col] = kind
		group[col] = parquetNode(kind)
	}
	schema := parquet.NewSchema("events", group)

	rows := make([]map[string]any, len(batch))
	for i, rec := range batch {
		row := make(map[string]any, len(columns))
		for _, col := range columns {
			if v, ok := rec[col]; ok && v != nil {
				if coerced, ok := coerceValue(v, kinds[col]); ok {
					row[col] = coerced
				}
			}
		}
		rows[i] = row
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	writer := parquet.NewGenericWriter[map[string]any](f, schema,
		parquet.Compression(&parquet.Snappy))
	if _, err := writer.Write(rows); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := writer.Close(); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

func unionColumns(batch []map[string]any) []string {
	seen := make(map[string]struct{})
	var columns []string
	for _, rec := range batch {
		for k := range rec {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				columns = append(columns, k)
			}
		}
	}
	return columns
}

func shortID() string {
	return uuid.NewString()[:8]
}

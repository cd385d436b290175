package deadletter

import (
	"sync"
	"time"

	"github.com/siddharthsingh10/streaming-data-pipeline/internal/event"
	"github.com/siddharthsingh10/streaming-data-pipeline/internal/logging"
	"github.com/siddharthsingh10/streaming-data-pipeline/internal/sink"
)

// DeadLetterValidator checks a dead-letter document against the
// dead_letter_event schema. Satisfied by schema.Validator.
type DeadLetterValidator interface {
	ValidateDeadLetterEvent(fields map[string]any) error
}

// Handler processes dead-letter records: it validates the document, attaches
// the error analysis, and writes the record to the dead-letters directory.
// Processing failures are logged and counted only; they never recurse into
// another dead letter.
type Handler struct {
	mu sync.Mutex

	writer    *sink.DeadLetterWriter
	validator DeadLetterValidator
	processed uint64
	failed    uint64

	log logging.Logger
	now func() time.Time
}

// NewHandler builds a Handler over the given dead-letter writer and schema
// validator.
func NewHandler(writer *sink.DeadLetterWriter, validator DeadLetterValidator, log logging.Logger) *Handler {
	return &Handler{writer: writer, validator: validator, log: log, now: time.Now}
}

// Analyze computes the error analysis for a record without persisting it.
func (h *Handler) Analyze(rec event.DeadLetterRecord) event.ErrorAnalysis {
	category := Categorize(rec.ErrorType, rec.ErrorMessage, rec.ProcessingStage)
	return event.ErrorAnalysis{
		ErrorCategory:         category,
		CanRetry:              CanRetry(rec.ErrorType, rec.ProcessingStage),
		RemediationSuggestion: Remediation(category),
		AnalyzedAt:            h.now(),
	}
}

// Process validates, analyzes, and persists one dead-letter record. The
// analysis is attached only after the document passes schema validation,
// preserving the invariant that error_analysis is present iff the record was
// processed.
func (h *Handler) Process(rec event.DeadLetterRecord) bool {
	if err := h.validator.ValidateDeadLetterEvent(rec.ToMap()); err != nil {
		h.mu.Lock()
		h.failed++
		h.mu.Unlock()
		h.log.Error("malformed dead-letter record rejected", err, logging.LogFields{
			"stage": rec.ProcessingStage,
		})
		return false
	}

	analysis := h.Analyze(rec)
	rec.ErrorAnalysis = &analysis

	ok := h.writer.Write(rec)

	h.mu.Lock()
	defer h.mu.Unlock()
	if ok {
		h.processed++
		h.log.Warn("processed dead-letter record", logging.LogFields{
			"error_category": analysis.ErrorCategory,
			"stage":          rec.ProcessingStage,
		})
	} else {
		h.failed++
		h.log.Error("failed to write dead-letter record to sink", nil, logging.LogFields{
			"stage": rec.ProcessingStage,
		})
	}
	return ok
}

// Stats reports processed and failed counts for health checks.
func (h *Handler) Stats() (successes, errors uint64, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.processed, h.failed, nil
}

// Close logs the final totals. The underlying writer has no resources to
// release.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.log.Info("dead-letter handler closed", logging.LogFields{
		"processed": h.processed,
		"failed":    h.failed,
	})
}

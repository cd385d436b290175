package deadletter

import (
	"errors"
	"sync"

	"github.com/siddharthsingh10/streaming-data-pipeline/internal/event"
	"github.com/siddharthsingh10/streaming-data-pipeline/internal/logging"
)

// ErrNotRetryable is returned when a record's analysis rules out retrying.
var ErrNotRetryable = errors.New("deadletter: record is not retryable")

// ErrNotAnalyzed is returned when a record has no attached error analysis.
var ErrNotAnalyzed = errors.New("deadletter: record has not been analyzed")

// RecordValidator re-validates an original event. Satisfied by
// schema.Validator.
type RecordValidator interface {
	ValidateUserEvent(fields map[string]any) (map[string]any, error)
}

// Reprocessor answers "would this record now pass validation". It does not
// resubmit the event anywhere.
type Reprocessor struct {
	mu sync.Mutex

	validator RecordValidator
	succeeded uint64
	failed    uint64

	log logging.Logger
}

// NewReprocessor builds a Reprocessor over the given validator.
func NewReprocessor(validator RecordValidator, log logging.Logger) *Reprocessor {
	return &Reprocessor{validator: validator, log: log}
}

// Reprocess re-runs the record's original event through validation. Only
// records whose analysis marked them retryable are eligible.
func (r *Reprocessor) Reprocess(rec event.DeadLetterRecord) error {
	if rec.ErrorAnalysis == nil {
		return ErrNotAnalyzed
	}
	if !rec.ErrorAnalysis.CanRetry {
		return ErrNotRetryable
	}

	_, err := r.validator.ValidateUserEvent(rec.OriginalEvent)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failed++
		r.log.Warn("reprocess validation still failing", logging.LogFields{
			"error_category": rec.ErrorAnalysis.ErrorCategory,
		})
		return err
	}
	r.succeeded++
	return nil
}

// Counts reports how many reprocess attempts validated cleanly and how many
// still failed.
func (r *Reprocessor) Counts() (succeeded, failed uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.succeeded, r.failed
}

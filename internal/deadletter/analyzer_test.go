package deadletter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siddharthsingh10/streaming-data-pipeline/internal/event"
)

func deadRecord(errorType, message, stage string) event.DeadLetterRecord {
	rec := event.DeadLetterRecord{
		OriginalEvent:   map[string]any{"user_id": "user-1"},
		ErrorType:       errorType,
		ErrorMessage:    message,
		FailedAt:        time.Now(),
		ProcessingStage: stage,
	}
	analysis := event.ErrorAnalysis{
		ErrorCategory:         Categorize(errorType, message, stage),
		CanRetry:              CanRetry(errorType, stage),
		RemediationSuggestion: Remediation(Categorize(errorType, message, stage)),
		AnalyzedAt:            time.Now(),
	}
	rec.ErrorAnalysis = &analysis
	return rec
}

func TestAnalyzeBatch(t *testing.T) {
	records := []event.DeadLetterRecord{
		deadRecord("validation_error", "Missing required field: event_type", event.StageProducerValidation),
		deadRecord("validation_error", "missing required field: user_id", event.StageProducerValidation),
		deadRecord("connection_error", "Connection timeout", event.StageConsumerValidation),
		deadRecord("storage_error", "disk full", event.StageSinkWrite),
	}

	analysis := AnalyzeBatch(records)

	assert.Equal(t, 4, analysis.TotalRecords)
	assert.Equal(t, 2, analysis.ByCategory[CategoryMissingRequiredField])
	assert.Equal(t, 1, analysis.ByCategory[CategoryNetworkError])
	assert.Equal(t, 2, analysis.ByStage[event.StageProducerValidation])
	assert.Equal(t, 2, analysis.RetryableCount)
	assert.Equal(t, 2, analysis.NonRetryableCount)
	assert.InDelta(t, 0.5, analysis.RetryableRatio, 1e-9)

	assert.Contains(t, analysis.Patterns, "Missing required fields")
	assert.Contains(t, analysis.Patterns, "Timeouts observed")
	assert.Contains(t, analysis.Patterns, "Connectivity problems")
	assert.Contains(t, analysis.Patterns, "Disk pressure")

	require.NotEmpty(t, analysis.Recommendations)
	assert.Contains(t, analysis.Recommendations[0], CategoryMissingRequiredField)
}

func TestAnalyzeBatchWithoutAttachedAnalysis(t *testing.T) {
	// Records straight off the topic may not carry analysis yet; the
	// analyzer categorizes them on the fly.
	records := []event.DeadLetterRecord{
		{
			ErrorType:       "connection_error",
			ErrorMessage:    "Connection timeout",
			ProcessingStage: event.StageConsumerValidation,
		},
	}

	analysis := AnalyzeBatch(records)
	assert.Equal(t, 1, analysis.ByCategory[CategoryNetworkError])
	assert.Equal(t, 1, analysis.RetryableCount)
}

func TestAnalyzeBatchEmpty(t *testing.T) {
	analysis := AnalyzeBatch(nil)
	assert.Equal(t, 0, analysis.TotalRecords)
	assert.Zero(t, analysis.RetryableRatio)
	assert.Empty(t, analysis.Patterns)
	assert.Empty(t, analysis.Recommendations)
}

func TestAnalyzeBatchMostlyRetryable(t *testing.T) {
	records := []event.DeadLetterRecord{
		deadRecord("connection_error", "Connection timeout", event.StageConsumerValidation),
		deadRecord("connection_error", "connection refused", event.StageConsumerValidation),
		deadRecord("validation_error", "schema mismatch", event.StageProducerValidation),
	}

	analysis := AnalyzeBatch(records)
	assert.Greater(t, analysis.RetryableRatio, 0.5)

	var found bool
	for _, rec := range analysis.Recommendations {
		if rec == "Over half of the failures are retryable; consider reprocessing the backlog" {
			found = true
		}
	}
	assert.True(t, found, "expected reprocess recommendation for retryable-heavy batch")
}

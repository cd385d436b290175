package deadletter

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siddharthsingh10/streaming-data-pipeline/internal/event"
	"github.com/siddharthsingh10/streaming-data-pipeline/internal/logging"
	"github.com/siddharthsingh10/streaming-data-pipeline/internal/schema"
	"github.com/siddharthsingh10/streaming-data-pipeline/internal/sink"
)

func newTestValidator(t *testing.T) *schema.Validator {
	t.Helper()
	v, err := schema.Load("../../schema/event_schema.yaml")
	require.NoError(t, err)
	return v
}

func newTestHandler(t *testing.T) (*Handler, string) {
	t.Helper()
	dir := t.TempDir()
	writer, err := sink.NewDeadLetterWriter(dir, logging.Nop())
	require.NoError(t, err)
	return NewHandler(writer, newTestValidator(t), logging.Nop()), dir
}

func TestHandlerProcess(t *testing.T) {
	handler, dir := newTestHandler(t)

	rec := event.DeadLetterRecord{
		OriginalEvent: map[string]any{
			"user_id":    "user-123",
			"event_type": "invalid_event",
		},
		ErrorType:       "validation_error",
		ErrorMessage:    "Missing required field: event_type",
		FailedAt:        time.Now(),
		ProcessingStage: event.StageProducerValidation,
	}

	require.True(t, handler.Process(rec))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	payload, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)

	var written event.DeadLetterRecord
	require.NoError(t, event.DecodeJSON(payload, &written))

	// error_analysis is present iff the record was processed.
	require.NotNil(t, written.ErrorAnalysis)
	assert.Equal(t, CategoryMissingRequiredField, written.ErrorAnalysis.ErrorCategory)
	assert.False(t, written.ErrorAnalysis.CanRetry)
	assert.NotEmpty(t, written.ErrorAnalysis.RemediationSuggestion)
	assert.False(t, written.ErrorAnalysis.AnalyzedAt.IsZero())

	successes, errors, statErr := handler.Stats()
	require.NoError(t, statErr)
	assert.Equal(t, uint64(1), successes)
	assert.Equal(t, uint64(0), errors)
}

func TestHandlerAnalyzeNetwork(t *testing.T) {
	handler, _ := newTestHandler(t)

	analysis := handler.Analyze(event.DeadLetterRecord{
		ErrorType:       "connection_error",
		ErrorMessage:    "Connection timeout",
		ProcessingStage: event.StageConsumerValidation,
	})

	assert.Equal(t, CategoryNetworkError, analysis.ErrorCategory)
	assert.True(t, analysis.CanRetry)
}

func TestHandlerStatsAcrossRecords(t *testing.T) {
	handler, dir := newTestHandler(t)

	records := []event.DeadLetterRecord{
		{
			OriginalEvent:   map[string]any{"user_id": "user-1"},
			ErrorType:       "validation_error",
			ErrorMessage:    "Invalid event type",
			FailedAt:        time.Now(),
			ProcessingStage: event.StageProducerValidation,
		},
		{
			OriginalEvent:   map[string]any{"user_id": "user-2"},
			ErrorType:       "connection_error",
			ErrorMessage:    "Timeout",
			FailedAt:        time.Now(),
			ProcessingStage: event.StageConsumerValidation,
		},
	}
	for _, rec := range records {
		require.True(t, handler.Process(rec))
	}

	successes, errors, err := handler.Stats()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), successes)
	assert.Equal(t, uint64(0), errors)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	handler.Close()
}

func TestHandlerRejectsMalformedRecord(t *testing.T) {
	handler, dir := newTestHandler(t)

	// No original_event, so the document fails the dead_letter_event schema.
	rec := event.DeadLetterRecord{
		ErrorType:       "validation_error",
		ErrorMessage:    "Missing required field: event_type",
		FailedAt:        time.Now(),
		ProcessingStage: event.StageProducerValidation,
	}

	require.False(t, handler.Process(rec))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	successes, errors, statErr := handler.Stats()
	require.NoError(t, statErr)
	assert.Equal(t, uint64(0), successes)
	assert.Equal(t, uint64(1), errors)
}

func TestHandlerWriteFailureCounted(t *testing.T) {
	dir := t.TempDir()
	writer, err := sink.NewDeadLetterWriter(dir, logging.Nop())
	require.NoError(t, err)
	handler := NewHandler(writer, newTestValidator(t), logging.Nop())

	require.NoError(t, os.RemoveAll(dir))

	rec := event.DeadLetterRecord{
		OriginalEvent:   map[string]any{"user_id": "user-1"},
		ErrorType:       "validation_error",
		ErrorMessage:    "Invalid event type",
		FailedAt:        time.Now(),
		ProcessingStage: event.StageProducerValidation,
	}

	require.False(t, handler.Process(rec))

	successes, errors, statErr := handler.Stats()
	require.NoError(t, statErr)
	assert.Equal(t, uint64(0), successes)
	assert.Equal(t, uint64(1), errors)
}

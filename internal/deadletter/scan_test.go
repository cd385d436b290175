package deadletter

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siddharthsingh10/streaming-data-pipeline/internal/event"
	"github.com/siddharthsingh10/streaming-data-pipeline/internal/logging"
	"github.com/siddharthsingh10/streaming-data-pipeline/internal/sink"
)

func writeDeadLetters(t *testing.T, dir string, records ...event.DeadLetterRecord) {
	t.Helper()
	w, err := sink.NewDeadLetterWriter(dir, logging.Nop())
	require.NoError(t, err)
	for _, rec := range records {
		require.True(t, w.Write(rec))
	}
}

func TestLoadRecords(t *testing.T) {
	dir := t.TempDir()
	writeDeadLetters(t, dir,
		deadRecord("validation_error", "Missing required field: event_type", event.StageProducerValidation),
		deadRecord("connection_error", "Connection timeout", event.StageConsumerValidation),
	)

	// Non-matching files are skipped, not decoded.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	records, err := LoadRecords(dir)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.NotEmpty(t, rec.ErrorType)
		assert.NotNil(t, rec.ErrorAnalysis)
	}
}

func TestLoadRecordsMissingDir(t *testing.T) {
	_, err := LoadRecords(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}

func TestScanAndReprocess(t *testing.T) {
	dir := t.TempDir()
	writeDeadLetters(t, dir,
		deadRecord("validation_error", "Missing required field: event_type", event.StageProducerValidation),
		deadRecord("connection_error", "Connection timeout", event.StageConsumerValidation),
		deadRecord("storage_error", "disk full while writing batch", event.StageSinkWrite),
	)

	validator := &stubValidator{}
	report, err := ScanAndReprocess(dir, validator, logging.Nop())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Analysis.TotalRecords)
	assert.Equal(t, 2, report.Analysis.RetryableCount)

	// Only the retryable records reach the validator.
	assert.Equal(t, 2, validator.calls)
	assert.Equal(t, uint64(2), report.Viable)
	assert.Zero(t, report.StillFail)
}

func TestScanAndReprocessStillFailing(t *testing.T) {
	dir := t.TempDir()
	writeDeadLetters(t, dir,
		deadRecord("connection_error", "Connection timeout", event.StageConsumerValidation),
	)

	validator := &stubValidator{err: errors.New("still missing event_type")}
	report, err := ScanAndReprocess(dir, validator, logging.Nop())
	require.NoError(t, err)

	assert.Zero(t, report.Viable)
	assert.Equal(t, uint64(1), report.StillFail)
}

package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawRecordMapRoundTrip(t *testing.T) {
	rec := RawRecord{
		EventID:   "01HX0000000000000000000000",
		UserID:    "user-1",
		EventType: "purchase",
		Timestamp: "2026-08-26T10:00:00Z",
		SessionID: "sess-1",
		Source:    "web",
		Version:   "1.0",
		Extra: map[string]any{
			"amount":   49.99,
			"currency": "USD",
		},
	}

	m := rec.ToMap()
	assert.Equal(t, "user-1", m["user_id"])
	assert.Equal(t, "purchase", m["event_type"])
	assert.Equal(t, 49.99, m["amount"])

	back := RawFromMap(m)
	assert.Equal(t, rec.EventID, back.EventID)
	assert.Equal(t, rec.UserID, back.UserID)
	assert.Equal(t, rec.EventType, back.EventType)
	assert.Equal(t, rec.SessionID, back.SessionID)
	assert.Equal(t, 49.99, back.Extra["amount"])
	assert.Equal(t, "USD", back.Extra["currency"])
	assert.NotContains(t, back.Extra, "user_id")
}

func TestRawRecordJSONIsFlat(t *testing.T) {
	rec := RawRecord{
		UserID:    "user-1",
		EventType: "click",
		Extra:     map[string]any{"element_id": "btn_001"},
	}

	payload, err := EncodeJSON(rec)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, DecodeJSON(payload, &m))
	assert.Equal(t, "user-1", m["user_id"])
	assert.Equal(t, "btn_001", m["element_id"])
	assert.NotContains(t, m, "Extra")

	var back RawRecord
	require.NoError(t, DecodeJSON(payload, &back))
	assert.Equal(t, "user-1", back.UserID)
	assert.Equal(t, "btn_001", back.Extra["element_id"])
}

func TestRawRecordEmptyFieldsOmitted(t *testing.T) {
	rec := RawRecord{UserID: "user-1", EventType: "click"}
	m := rec.ToMap()
	assert.NotContains(t, m, "session_id")
	assert.NotContains(t, m, "source")
	assert.NotContains(t, m, "version")
}

func TestEnrichedRecordToMap(t *testing.T) {
	revenue := 12.5
	processedAt := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	rec := EnrichedRecord{
		Raw: RawRecord{
			UserID:    "user-1",
			EventType: "purchase",
			Extra:     map[string]any{"amount": 12.5},
		},
		NormalizedEventType: "conversion",
		EventCategory:       "commerce",
		IsConversion:        true,
		Revenue:             &revenue,
		UserAgentInfo:       &UserAgentInfo{Browser: "Chrome", OS: "Windows 10", DeviceType: "desktop"},
		ProcessedAt:         processedAt,
		ProcessingVersion:   "1.0",
	}

	m := rec.ToMap()
	assert.Equal(t, "conversion", m["normalized_event_type"])
	assert.Equal(t, "commerce", m["event_category"])
	assert.Equal(t, true, m["is_conversion"])
	assert.Equal(t, 12.5, m["revenue"])
	assert.Equal(t, "1.0", m["processing_version"])
	assert.Equal(t, processedAt.Format(time.RFC3339Nano), m["processed_at"])

	info, ok := m["user_agent_info"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Chrome", info["browser"])
	assert.Equal(t, "desktop", info["device_type"])
}

func TestEnrichedRecordOptionalFieldsAbsent(t *testing.T) {
	rec := EnrichedRecord{
		Raw:                 RawRecord{UserID: "user-1", EventType: "click"},
		NormalizedEventType: "interaction",
		EventCategory:       "engagement",
		ProcessedAt:         time.Now(),
		ProcessingVersion:   "1.0",
	}

	m := rec.ToMap()
	assert.NotContains(t, m, "revenue")
	assert.NotContains(t, m, "user_agent_info")
}

func TestDeadLetterRecordJSON(t *testing.T) {
	rec := DeadLetterRecord{
		OriginalEvent:   map[string]any{"user_id": "user-1"},
		ErrorType:       ErrTypeValidation,
		ErrorMessage:    "Invalid event type",
		FailedAt:        time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC),
		ProcessingStage: StageConsumerValidation,
	}

	payload, err := EncodeJSON(rec)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, DecodeJSON(payload, &m))
	assert.Equal(t, "validation_error", m["error_type"])
	assert.Equal(t, "consumer_validation", m["processing_stage"])
	assert.NotContains(t, m, "error_analysis")

	analysis := ErrorAnalysis{ErrorCategory: "network_error", CanRetry: true}
	rec.ErrorAnalysis = &analysis
	payload, err = EncodeJSON(rec)
	require.NoError(t, err)

	var back DeadLetterRecord
	require.NoError(t, DecodeJSON(payload, &back))
	require.NotNil(t, back.ErrorAnalysis)
	assert.True(t, back.ErrorAnalysis.CanRetry)
}

// Package event defines the record shapes flowing through the pipeline. Each
// stage has a closed type; per-event-type attributes travel in an Extra
// side-channel so the wire format stays a flat JSON object.
package event

import (
	"time"

	"github.com/bytedance/sonic"
)

// Well-known field names shared by every event type.
const (
	FieldEventID   = "event_id"
	FieldUserID    = "user_id"
	FieldEventType = "event_type"
	FieldTimestamp = "timestamp"
	FieldSessionID = "session_id"
	FieldSource    = "source"
	FieldVersion   = "version"
)

// RawRecord is a user-activity event as received from the bus. Fields not
// listed here (amount, page_url, user_agent, ...) are carried in Extra.
type RawRecord struct {
	EventID   string
	UserID    string
	EventType string
	Timestamp string
	SessionID string
	Source    string
	Version   string
	Extra     map[string]any
}

// ToMap flattens the record into the wire-format field map.
func (r RawRecord) ToMap() map[string]any {
	m := make(map[string]any, len(r.Extra)+7)
	for k, v := range r.Extra {
		m[k] = v
	}
	putNonEmpty(m, FieldEventID, r.EventID)
	putNonEmpty(m, FieldUserID, r.UserID)
	putNonEmpty(m, FieldEventType, r.EventType)
	putNonEmpty(m, FieldTimestamp, r.Timestamp)
	putNonEmpty(m, FieldSessionID, r.SessionID)
	putNonEmpty(m, FieldSource, r.Source)
	putNonEmpty(m, FieldVersion, r.Version)
	return m
}

// RawFromMap builds a RawRecord from a flat field map. Unknown fields land in
// Extra.
func RawFromMap(m map[string]any) RawRecord {
	r := RawRecord{Extra: make(map[string]any)}
	for k, v := range m {
		switch k {
		case FieldEventID:
			r.EventID = asString(v)
		case FieldUserID:
			r.UserID = asString(v)
		case FieldEventType:
			r.EventType = asString(v)
		case FieldTimestamp:
			r.Timestamp = asString(v)
		case FieldSessionID:
			r.SessionID = asString(v)
		case FieldSource:
			r.Source = asString(v)
		case FieldVersion:
			r.Version = asString(v)
		default:
			r.Extra[k] = v
		}
	}
	return r
}

func (r RawRecord) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(r.ToMap())
}

func (r *RawRecord) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := sonic.Unmarshal(data, &m); err != nil {
		return err
	}
	*r = RawFromMap(m)
	return nil
}

// UserAgentInfo is the enrichment derived from the raw user_agent string.
type UserAgentInfo struct {
	Browser    string `json:"browser"`
	OS         string `json:"os"`
	DeviceType string `json:"device_type"`
}

// UnknownUserAgent is the placeholder used when user-agent parsing fails.
// Parsing failures degrade to this value instead of failing the transform.
func UnknownUserAgent() UserAgentInfo {
	return UserAgentInfo{Browser: "unknown", OS: "unknown", DeviceType: "unknown"}
}

// EnrichedRecord is a RawRecord plus the fields derived by the transform
// stage. Immutable once produced.
type EnrichedRecord struct {
	Raw RawRecord

	NormalizedEventType string
	EventCategory       string
	IsConversion        bool
	Revenue             *float64
	UserAgentInfo       *UserAgentInfo
	ProcessedAt         time.Time
	ProcessingVersion   string
}

// ToMap flattens the enriched record into the field map consumed by the
// columnar sink.
func (e EnrichedRecord) ToMap() map[string]any {
	m := e.Raw.ToMap()
	m["normalized_event_type"] = e.NormalizedEventType
	m["event_category"] = e.EventCategory
	m["is_conversion"] = e.IsConversion
	if e.Revenue != nil {
		m["revenue"] = *e.Revenue
	}
	if e.UserAgentInfo != nil {
		m["user_agent_info"] = map[string]any{
			"browser":     e.UserAgentInfo.Browser,
			"os":          e.UserAgentInfo.OS,
			"device_type": e.UserAgentInfo.DeviceType,
		}
	}
	m["processed_at"] = e.ProcessedAt.Format(time.RFC3339Nano)
	m["processing_version"] = e.ProcessingVersion
	return m
}

func (e EnrichedRecord) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(e.ToMap())
}

// ErrorAnalysis is attached to a dead-letter record once the dead-letter
// subsystem has processed it.
type ErrorAnalysis struct {
	ErrorCategory         string    `json:"error_category"`
	CanRetry              bool      `json:"can_retry"`
	RemediationSuggestion string    `json:"remediation_suggestion"`
	AnalyzedAt            time.Time `json:"analyzed_at"`
}

// DeadLetterRecord captures a failed event with diagnostic metadata.
// ErrorAnalysis is present if and only if the record was successfully
// processed by the dead-letter subsystem.
type DeadLetterRecord struct {
	OriginalEvent   map[string]any `json:"original_event"`
	ErrorType       string         `json:"error_type"`
	ErrorMessage    string         `json:"error_message"`
	FailedAt        time.Time      `json:"failed_at"`
	ProcessingStage string         `json:"processing_stage"`
	ErrorAnalysis   *ErrorAnalysis `json:"error_analysis,omitempty"`
}

// ToMap flattens the record into the field map consumed by schema
// validation.
func (r DeadLetterRecord) ToMap() map[string]any {
	m := map[string]any{
		"error_type":       r.ErrorType,
		"error_message":    r.ErrorMessage,
		"failed_at":        r.FailedAt.Format(time.RFC3339Nano),
		"processing_stage": r.ProcessingStage,
	}
	if r.OriginalEvent != nil {
		m["original_event"] = r.OriginalEvent
	}
	if r.ErrorAnalysis != nil {
		m["error_analysis"] = map[string]any{
			"error_category":         r.ErrorAnalysis.ErrorCategory,
			"can_retry":              r.ErrorAnalysis.CanRetry,
			"remediation_suggestion": r.ErrorAnalysis.RemediationSuggestion,
			"analyzed_at":            r.ErrorAnalysis.AnalyzedAt.Format(time.RFC3339Nano),
		}
	}
	return m
}

// Processing stages recorded on dead-letter records.
const (
	StageProducerValidation      = "producer_validation"
	StageConsumerValidation      = "consumer_validation"
	StageTransformation          = "transformation"
	StageSinkWrite               = "sink_write"
	StageEventsConsumerProcessed = "events_consumer_processing"
)

// Error type markers used by the dead-letter categorizer.
const (
	ErrTypeValidation     = "validation_error"
	ErrTypeTransformation = "transformation_error"
	ErrTypeSinkWrite      = "sink_write_error"
	ErrTypeNetwork        = "network_error"
	ErrTypeStorage        = "storage_error"
	ErrTypeUnknown        = "unknown_error"
)

// EncodeJSON serializes v with the shared codec.
func EncodeJSON(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

// DecodeJSON deserializes data with the shared codec.
func DecodeJSON(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

func putNonEmpty(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

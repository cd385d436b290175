// Package transform enriches validated raw records: type normalization via
// the mapping tables, category and conversion tagging, user-agent enrichment,
// and processing metadata stamping.
package transform

import (
	"fmt"
	"time"

	"github.com/siddharthsingh10/streaming-data-pipeline/internal/event"
	"github.com/siddharthsingh10/streaming-data-pipeline/internal/logging"
)

// ProcessingVersion is stamped on every enriched record.
const ProcessingVersion = "1.0"

// Mappings provides the event-type lookup tables. Satisfied by
// schema.Validator.
type Mappings interface {
	NormalizedType(eventType string) string
	Category(eventType string) string
	IsConversion(eventType string) bool
}

// Error reports a record that cannot be enriched because a required field is
// absent after validation.
type Error struct {
	Field string
}

func (e *Error) Error() string {
	return fmt.Sprintf("transformation_error: missing required field %q", e.Field)
}

// Transformer is a pure mapping from raw records to enriched records. It is
// deterministic given the same input and mapping tables, except for the
// processed_at stamp.
type Transformer struct {
	maps Mappings
	log  logging.Logger
	now  func() time.Time
}

// New builds a Transformer over the given mapping tables.
func New(maps Mappings, log logging.Logger) *Transformer {
	return &Transformer{maps: maps, log: log, now: time.Now}
}

// Transform enriches a single raw record.
func (t *Transformer) Transform(raw event.RawRecord) (event.EnrichedRecord, error) {
	if raw.EventType == "" {
		return event.EnrichedRecord{}, &Error{Field: event.FieldEventType}
	}
	if raw.UserID == "" {
		return event.EnrichedRecord{}, &Error{Field: event.FieldUserID}
	}

	enriched := event.EnrichedRecord{
		Raw:                 raw,
		NormalizedEventType: t.maps.NormalizedType(raw.EventType),
		EventCategory:       t.maps.Category(raw.EventType),
		IsConversion:        t.maps.IsConversion(raw.EventType),
		ProcessedAt:         t.now(),
		ProcessingVersion:   ProcessingVersion,
	}

	if raw.EventType == "purchase" {
		if amount, ok := numericField(raw.Extra, "amount"); ok {
			enriched.Revenue = &amount
		}
	}

	if ua, ok := raw.Extra["user_agent"].(string); ok {
		info := parseUserAgent(ua)
		enriched.UserAgentInfo = &info
	}

	return enriched, nil
}

func numericField(extra map[string]any, key string) (float64, bool) {
	switch v := extra[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

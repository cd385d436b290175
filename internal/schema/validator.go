// Package schema loads the declarative event schemas and event-type mapping
// tables from a single YAML document and validates records against them.
package schema

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/oklog/ulid/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/siddharthsingh10/streaming-data-pipeline/internal/event"
)

// Schema names available in the definitions file.
const (
	UserEventSchema       = "user_event"
	DeadLetterEventSchema = "dead_letter_event"
)

type definitions struct {
	Schemas  map[string]map[string]any `yaml:"schemas"`
	Mappings mappings                  `yaml:"mappings"`
}

type mappings struct {
	EventTypeMapping map[string]string `yaml:"event_type_mapping"`
	EventCategories  map[string]string `yaml:"event_categories"`
	ConversionEvents []string          `yaml:"conversion_events"`
}

// Validator validates event field maps against the loaded JSON Schemas and
// exposes the event-type mapping tables. Loaded once at startup, read-only
// afterwards.
type Validator struct {
	compiled    map[string]*jsonschema.Schema
	normalized  map[string]string
	categories  map[string]string
	conversions map[string]struct{}
}

// Load reads the schema definitions file and compiles every schema in it.
func Load(path string) (*Validator, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read definitions: %w", err)
	}
	var defs definitions
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("schema: parse definitions: %w", err)
	}
	if len(defs.Schemas) == 0 {
		return nil, fmt.Errorf("schema: no schemas defined in %s", path)
	}

	v := &Validator{
		compiled:    make(map[string]*jsonschema.Schema, len(defs.Schemas)),
		normalized:  defs.Mappings.EventTypeMapping,
		categories:  defs.Mappings.EventCategories,
		conversions: make(map[string]struct{}, len(defs.Mappings.ConversionEvents)),
	}
	for _, et := range defs.Mappings.ConversionEvents {
		v.conversions[et] = struct{}{}
	}

	compiler := jsonschema.NewCompiler()
	for name, def := range defs.Schemas {
		// The compiler wants JSON; the definitions file is YAML.
		doc, err := sonic.Marshal(def)
		if err != nil {
			return nil, fmt.Errorf("schema: encode %s: %w", name, err)
		}
		url := name + ".json"
		if err := compiler.AddResource(url, strings.NewReader(string(doc))); err != nil {
			return nil, fmt.Errorf("schema: add %s: %w", name, err)
		}
		compiled, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("schema: compile %s: %w", name, err)
		}
		v.compiled[name] = compiled
	}
	return v, nil
}

// ApplyDefaults fills event_id and timestamp when absent, returning a copy.
func (v *Validator) ApplyDefaults(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+2)
	for k, val := range fields {
		out[k] = val
	}
	if _, ok := out[event.FieldEventID]; !ok {
		out[event.FieldEventID] = ulid.Make().String()
	}
	if _, ok := out[event.FieldTimestamp]; !ok {
		out[event.FieldTimestamp] = time.Now().Format(time.RFC3339Nano)
	}
	return out
}

// ValidateUserEvent applies defaults and validates against the user_event
// schema, returning the defaulted field map.
func (v *Validator) ValidateUserEvent(fields map[string]any) (map[string]any, error) {
	defaulted := v.ApplyDefaults(fields)
	if err := v.validate(UserEventSchema, defaulted); err != nil {
		return nil, err
	}
	return defaulted, nil
}

// ValidateDeadLetterEvent validates against the dead_letter_event schema.
func (v *Validator) ValidateDeadLetterEvent(fields map[string]any) error {
	return v.validate(DeadLetterEventSchema, fields)
}

func (v *Validator) validate(name string, fields map[string]any) error {
	compiled, ok := v.compiled[name]
	if !ok {
		return fmt.Errorf("schema: unknown schema %q", name)
	}
	if err := compiled.Validate(normalize(fields)); err != nil {
		return err
	}
	return nil
}

// NormalizedType returns the normalized event type, "unknown" when unmapped.
func (v *Validator) NormalizedType(eventType string) string {
	if mapped, ok := v.normalized[eventType]; ok {
		return mapped
	}
	return "unknown"
}

// Category returns the event category, "other" when unmapped.
func (v *Validator) Category(eventType string) string {
	if cat, ok := v.categories[eventType]; ok {
		return cat
	}
	return "other"
}

// IsConversion reports whether the event type counts as a conversion.
func (v *Validator) IsConversion(eventType string) bool {
	_, ok := v.conversions[eventType]
	return ok
}

// normalize rewrites values into the shapes the jsonschema library expects
// (json.Unmarshal equivalents: float64 numbers, map[string]any objects).
func normalize(value any) any {
	switch t := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			out[k] = normalize(v)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			out[i] = normalize(v)
		}
		return out
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return value
	}
}

// Package deadletter categorizes failed records, decides retryability,
// suggests remediation, aggregates failure patterns, and can re-validate an
// original record to judge whether reprocessing would now succeed.
package deadletter

import (
	"strings"

	"github.com/siddharthsingh10/streaming-data-pipeline/internal/event"
)

// Error categories produced by Categorize.
const (
	CategoryMissingRequiredField  = "missing_required_field"
	CategoryInvalidEnumValue      = "invalid_enum_value"
	CategoryDataTypeError         = "data_type_error"
	CategoryNetworkError          = "network_error"
	CategoryStorageError          = "storage_error"
	CategorySchemaValidationError = "schema_validation_error"
	CategoryProducerValidation    = "producer_validation_error"
	CategoryConsumerValidation    = "consumer_validation_error"
	CategoryTransformationError   = "transformation_error"
	CategorySinkWriteError        = "sink_write_error"
	CategoryUnknown               = "unknown_error"
)

// Categorize maps (error_type, error_message, stage) to an error category.
// The rules match in order and the first hit wins; tests depend on this
// exact precedence, so do not reorder.
func Categorize(errorType, errorMessage, stage string) string {
	msg := strings.ToLower(errorMessage)
	et := strings.ToLower(errorType)

	switch {
	case strings.Contains(msg, "required") || strings.Contains(msg, "missing"):
		return CategoryMissingRequiredField
	case strings.Contains(msg, "enum") || strings.Contains(msg, "not one of"):
		return CategoryInvalidEnumValue
	case strings.Contains(msg, "type") || strings.Contains(et, "type_error"):
		return CategoryDataTypeError
	case strings.Contains(msg, "connection") || strings.Contains(msg, "timeout"):
		return CategoryNetworkError
	case strings.Contains(msg, "disk") || strings.Contains(msg, "storage"):
		return CategoryStorageError
	case strings.Contains(et, "validation_error") || strings.Contains(msg, "schema"):
		return CategorySchemaValidationError
	}

	switch stage {
	case event.StageProducerValidation:
		return CategoryProducerValidation
	case event.StageConsumerValidation:
		return CategoryConsumerValidation
	case event.StageTransformation:
		return CategoryTransformationError
	case event.StageSinkWrite:
		return CategorySinkWriteError
	}

	return CategoryUnknown
}

// CanRetry decides whether reprocessing the failed record is expected to
// succeed without intervention. Validation, type, and missing-field errors
// never are; network and storage errors are; transformation-stage failures
// are. Everything else defaults to non-retryable.
func CanRetry(errorType, stage string) bool {
	et := strings.ToLower(errorType)

	switch {
	case strings.Contains(et, "validation_error"):
		return false
	case strings.Contains(et, "type_error"):
		return false
	case strings.Contains(et, "required") || strings.Contains(et, "missing"):
		return false
	case strings.Contains(et, "connection") || strings.Contains(et, "timeout") || strings.Contains(et, "network"):
		return true
	case strings.Contains(et, "storage") || strings.Contains(et, "disk"):
		return true
	}

	return stage == event.StageTransformation
}

var remediations = map[string]string{
	CategoryMissingRequiredField:  "Add missing required fields to event data",
	CategoryInvalidEnumValue:      "Use valid enum values from schema definition",
	CategoryDataTypeError:         "Ensure data types match schema requirements",
	CategoryNetworkError:          "Check network connectivity and retry",
	CategoryStorageError:          "Check disk space and file permissions",
	CategorySchemaValidationError: "Validate event against schema before processing",
}

// Remediation returns a human-readable suggestion for the category.
func Remediation(category string) string {
	if suggestion, ok := remediations[category]; ok {
		return suggestion
	}
	return "Review error details and fix underlying issue"
}

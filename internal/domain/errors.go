package domain

import (
	"errors"
	"fmt"
	"time"
)

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeExtraction         = "EXTRACTION_ERROR"
	ErrCodeUnsupportedFile    = "UNSUPPORTED_FILE"
	ErrCodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	ErrCodeClassification     = "CLASSIFICATION_ERROR"
	ErrCodeInternalServer     = "INTERNAL_SERVER_ERROR"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeDocumentUnreadable = "DOCUMENT_UNREADABLE"
	ErrCodeTimeout            = "TIMEOUT"
)

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// ExtractionErrorKind classifies why a report could not be turned into a FeatureRecord.
type ExtractionErrorKind string

const (
	KindStructureNotFound ExtractionErrorKind = "structure_not_found"
	KindMissingFeature    ExtractionErrorKind = "missing_feature"
	KindInvalidValue      ExtractionErrorKind = "invalid_value"
	KindColumnMismatch    ExtractionErrorKind = "column_mismatch"
)

// Sentinels for errors.Is matching on extraction failures.
var (
	ErrStructureNotFound = errors.New("report structure not found")
	ErrMissingFeature    = errors.New("required feature missing")
	ErrInvalidValue      = errors.New("feature value is not numeric")
	ErrColumnMismatch    = errors.New("header and value column counts differ")
)

// Classifier collaborator failures.
var (
	ErrClassifierUnavailable = errors.New("classifier unavailable")
	ErrInvalidLabel          = errors.New("classifier returned a label outside {0,1}")
)

// ExtractionError describes an extraction failure. RawValue is available for programmatic
// inspection but never appears in Error().
type ExtractionError struct {
	Kind     ExtractionErrorKind `json:"kind"`
	Feature  Feature             `json:"feature,omitempty"`
	RawValue string              `json:"-"`
	Detail   string              `json:"detail,omitempty"`
}

// Error implements the error interface
func (e *ExtractionError) Error() string {
	switch e.Kind {
	case KindMissingFeature:
		return fmt.Sprintf("%s: missing required feature %s", e.Kind, e.Feature)
	case KindInvalidValue:
		return fmt.Sprintf("%s: invalid value for %s", e.Kind, e.Feature)
	default:
		if e.Detail != "" {
			return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
		}
		return string(e.Kind)
	}
}

// Is matches the sentinel for the error's kind.
func (e *ExtractionError) Is(target error) bool {
	switch e.Kind {
	case KindStructureNotFound:
		return target == ErrStructureNotFound
	case KindMissingFeature:
		return target == ErrMissingFeature
	case KindInvalidValue:
		return target == ErrInvalidValue
	case KindColumnMismatch:
		return target == ErrColumnMismatch
	}
	return false
}

// NewStructureError reports that no recognizable header or table was found.
func NewStructureError(detail string) *ExtractionError {
	return &ExtractionError{Kind: KindStructureNotFound, Detail: detail}
}

// NewMissingFeatureError reports a feature with no matching alias or label.
func NewMissingFeatureError(f Feature) *ExtractionError {
	return &ExtractionError{Kind: KindMissingFeature, Feature: f}
}

// NewInvalidValueError reports a feature whose raw text is not numeric or coercible.
func NewInvalidValueError(f Feature, raw string) *ExtractionError {
	return &ExtractionError{Kind: KindInvalidValue, Feature: f, RawValue: raw}
}

// NewColumnMismatchError reports differing header and value token counts.
func NewColumnMismatchError(headers, values int) *ExtractionError {
	return &ExtractionError{
		Kind:   KindColumnMismatch,
		Detail: fmt.Sprintf("%d header columns, %d value columns", headers, values),
	}
}

// AsExtractionError unwraps err into an *ExtractionError when it carries one.
func AsExtractionError(err error) (*ExtractionError, bool) {
	var extractionErr *ExtractionError
	if errors.As(err, &extractionErr) {
		return extractionErr, true
	}
	return nil, false
}

// Package errors defines the engine's error taxonomy. Errors carry a
// category, a machine-readable code, optional context and a suggestion,
// plus the stack trace of the point of origin.
//
// Fatal errors (deal not found, stage-write failure, evaluator
// precondition) propagate to the caller; everything else is either
// recovered locally with a default or reported as a no-op decision.
package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Category groups errors by the subsystem they originate from.
type Category string

const (
	CategoryCRM            Category = "crm"
	CategoryPayment        Category = "payment"
	CategoryCurrency       Category = "currency"
	CategoryValidation     Category = "validation"
	CategoryReconciliation Category = "reconciliation"
	CategoryNotification   Category = "notification"
	CategoryConfiguration  Category = "configuration"
	CategoryInternal       Category = "internal"
)

// Code identifies a specific error condition within a category.
type Code string

const (
	// CRM errors
	CodeDealNotFound     Code = "deal_not_found"
	CodeStageWriteFailed Code = "stage_write_failed"
	CodeCRMUnavailable   Code = "crm_unavailable"

	// Payment errors
	CodePaymentListFailed Code = "payment_list_failed"
	CodeInvoiceListFailed Code = "invoice_list_failed"

	// Currency errors
	CodeRateUnavailable Code = "rate_unavailable"

	// Validation errors
	CodeMissingField     Code = "missing_field"
	CodeInvalidAmount    Code = "invalid_amount"
	CodeInvalidDate      Code = "invalid_date"
	CodeExpectedNotSet   Code = "expected_amount_not_positive"
	CodeUnknownStage     Code = "unknown_stage"
	CodeUnknownPipeline  Code = "unknown_pipeline"
	CodeUnknownSchedule  Code = "unknown_schedule"

	// Notification errors
	CodeSendFailed       Code = "send_failed"
	CodeMissingRecipient Code = "missing_recipient"

	// Configuration errors
	CodeInvalidConfig Code = "invalid_config"
	CodeMissingConfig Code = "missing_config"

	// Internal errors
	CodeUnexpectedError Code = "unexpected_error"
)

// EngineError is the base error type for all engine errors.
type EngineError struct {
	Category   Category          `json:"category"`
	Code       Code              `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context carries additional key-value information about the error.
type Context map[string]interface{}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is reports whether target carries the same category and code. It lets
// callers use errors.Is against sentinel-style constructed errors.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// GetExitCode maps the error category to a CLI exit code.
func (e *EngineError) GetExitCode() int {
	switch e.Category {
	case CategoryCRM, CategoryPayment:
		return 2
	case CategoryValidation, CategoryCurrency:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryReconciliation, CategoryInternal:
		return 5
	case CategoryNotification:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error.
func (e *EngineError) WithContext(key string, value interface{}) *EngineError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for resolving the error.
func (e *EngineError) WithSuggestion(suggestion string) *EngineError {
	e.Suggestion = suggestion
	return e
}

// New creates a new EngineError.
func New(category Category, code Code, message string) *EngineError {
	return &EngineError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with EngineError context.
func Wrap(err error, category Category, code Code, message string) *EngineError {
	if err == nil {
		return nil
	}

	return &EngineError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer extracts pkg/errors stack traces.
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// DealNotFound builds the fatal error for a failed CRM deal lookup.
func DealNotFound(dealID string, cause error) *EngineError {
	var e *EngineError
	msg := fmt.Sprintf("deal %s not found in CRM", dealID)
	if cause != nil {
		e = Wrap(cause, CategoryCRM, CodeDealNotFound, msg)
	} else {
		e = New(CategoryCRM, CodeDealNotFound, msg)
	}
	return e.
		WithSuggestion("verify the deal ID and that the CRM connection is healthy").
		WithContext("deal_id", dealID)
}

// StageWriteFailed builds the fatal error for a failed stage transition.
func StageWriteFailed(dealID, stageID string, cause error) *EngineError {
	msg := fmt.Sprintf("failed to move deal %s to stage %s", dealID, stageID)
	return Wrap(cause, CategoryCRM, CodeStageWriteFailed, msg).
		WithSuggestion("retry the reconciliation run; the transition was not applied").
		WithContext("deal_id", dealID).
		WithContext("stage_id", stageID)
}

// ValidationError creates a validation-related error.
func ValidationError(code Code, field string, value interface{}) *EngineError {
	var msg string
	switch code {
	case CodeMissingField:
		msg = fmt.Sprintf("required field '%s' is missing or empty", field)
	case CodeInvalidAmount:
		msg = fmt.Sprintf("invalid amount in field '%s': %v", field, value)
	case CodeInvalidDate:
		msg = fmt.Sprintf("invalid date in field '%s': %v", field, value)
	case CodeExpectedNotSet:
		msg = fmt.Sprintf("expected amount must be positive, got %v", value)
	default:
		msg = fmt.Sprintf("validation error in field '%s': %v", field, value)
	}

	return New(CategoryValidation, code, msg).
		WithContext("field", field).
		WithContext("value", value)
}

// ReconciliationError creates a reconciliation-related error.
func ReconciliationError(code Code, operation string, cause error) *EngineError {
	msg := fmt.Sprintf("reconciliation failed during %s", operation)
	var e *EngineError
	if cause != nil {
		e = Wrap(cause, CategoryReconciliation, code, msg)
	} else {
		e = New(CategoryReconciliation, code, msg)
	}
	return e.WithContext("operation", operation)
}

// NotificationError creates a notification-related error.
func NotificationError(code Code, dealID string, cause error) *EngineError {
	var msg string
	switch code {
	case CodeSendFailed:
		msg = fmt.Sprintf("failed to send payment notification for deal %s", dealID)
	case CodeMissingRecipient:
		msg = fmt.Sprintf("no notification recipient configured for deal %s", dealID)
	default:
		msg = fmt.Sprintf("notification error for deal %s", dealID)
	}

	var e *EngineError
	if cause != nil {
		e = Wrap(cause, CategoryNotification, code, msg)
	} else {
		e = New(CategoryNotification, code, msg)
	}
	return e.WithContext("deal_id", dealID)
}

// ConfigurationError creates a configuration-related error.
func ConfigurationError(code Code, setting string, value interface{}) *EngineError {
	var msg string
	switch code {
	case CodeMissingConfig:
		msg = fmt.Sprintf("missing required configuration: %s", setting)
	default:
		msg = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
	}
	return New(CategoryConfiguration, code, msg).
		WithSuggestion("check the configuration file or environment overrides").
		WithContext("setting", setting).
		WithContext("value", value)
}

// InternalError creates an internal error.
func InternalError(operation string, cause error) *EngineError {
	msg := fmt.Sprintf("unexpected error during %s", operation)
	var e *EngineError
	if cause != nil {
		e = Wrap(cause, CategoryInternal, CodeUnexpectedError, msg)
	} else {
		e = New(CategoryInternal, CodeUnexpectedError, msg)
	}
	return e.WithContext("operation", operation)
}

// IsEngineError checks if an error is an EngineError.
func IsEngineError(err error) bool {
	_, ok := err.(*EngineError)
	return ok
}

// AsEngineError extracts an EngineError from an error chain.
func AsEngineError(err error) (*EngineError, bool) {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr, true
	}
	return nil, false
}

// HasCode reports whether the error chain contains an EngineError with
// the given code.
func HasCode(err error, code Code) bool {
	e, ok := AsEngineError(err)
	return ok && e.Code == code
}

// FormatContext renders the error context as a compact one-line string
// for log records.
func FormatContext(ctx Context) string {
	if len(ctx) == 0 {
		return ""
	}
	parts := make([]string, 0, len(ctx))
	for k, v := range ctx {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, " ")
}

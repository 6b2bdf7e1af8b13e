package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestEngineError(t *testing.T) {
	tests := []struct {
		name       string
		category   Category
		code       Code
		message    string
		cause      error
		expectCode int
	}{
		{
			name:       "crm error",
			category:   CategoryCRM,
			code:       CodeDealNotFound,
			message:    "deal not found",
			cause:      errors.New("404"),
			expectCode: 2,
		},
		{
			name:       "validation error",
			category:   CategoryValidation,
			code:       CodeExpectedNotSet,
			message:    "expected amount not positive",
			cause:      nil,
			expectCode: 3,
		},
		{
			name:       "configuration error",
			category:   CategoryConfiguration,
			code:       CodeInvalidConfig,
			message:    "invalid config",
			cause:      errors.New("missing field"),
			expectCode: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *EngineError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.Message != tt.message {
				t.Errorf("expected message %s, got %s", tt.message, err.Message)
			}
			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}
			if err.Error() != tt.message {
				t.Errorf("expected error string %s, got %s", tt.message, err.Error())
			}
			if tt.cause != nil && err.Unwrap() != tt.cause {
				t.Errorf("expected to unwrap to %v, got %v", tt.cause, err.Unwrap())
			}
		})
	}
}

func TestEngineErrorWithContext(t *testing.T) {
	err := New(CategoryCRM, CodeDealNotFound, "test error").
		WithContext("deal_id", "42").
		WithContext("attempt", 3).
		WithSuggestion("check the deal ID")

	if err.Context["deal_id"] != "42" {
		t.Errorf("expected deal_id context '42', got %v", err.Context["deal_id"])
	}
	if err.Context["attempt"] != 3 {
		t.Errorf("expected attempt context 3, got %v", err.Context["attempt"])
	}
	if err.Suggestion != "check the deal ID" {
		t.Errorf("expected suggestion 'check the deal ID', got %s", err.Suggestion)
	}

	expected := "test error (suggestion: check the deal ID)"
	if err.Error() != expected {
		t.Errorf("expected error string '%s', got '%s'", expected, err.Error())
	}
}

func TestWrap_NilCause(t *testing.T) {
	if Wrap(nil, CategoryInternal, CodeUnexpectedError, "x") != nil {
		t.Error("expected nil for nil cause")
	}
}

func TestSpecificErrorConstructors(t *testing.T) {
	t.Run("DealNotFound", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := DealNotFound("42", cause)

		if err.Category != CategoryCRM {
			t.Errorf("expected crm category, got %s", err.Category)
		}
		if err.Code != CodeDealNotFound {
			t.Errorf("expected deal_not_found code, got %s", err.Code)
		}
		if err.Context["deal_id"] != "42" {
			t.Errorf("expected deal_id context, got %v", err.Context["deal_id"])
		}
		if err.Suggestion == "" {
			t.Error("expected suggestion to be set")
		}
		if err.Cause != cause {
			t.Errorf("expected cause to be %v, got %v", cause, err.Cause)
		}
	})

	t.Run("StageWriteFailed", func(t *testing.T) {
		err := StageWriteFailed("42", "fully_paid", errors.New("409"))

		if err.Category != CategoryCRM {
			t.Errorf("expected crm category, got %s", err.Category)
		}
		if err.Context["stage_id"] != "fully_paid" {
			t.Errorf("expected stage_id context, got %v", err.Context["stage_id"])
		}
	})

	t.Run("ValidationError", func(t *testing.T) {
		err := ValidationError(CodeInvalidAmount, "amount", "12.3.4")

		if err.Category != CategoryValidation {
			t.Errorf("expected validation category, got %s", err.Category)
		}
		if err.Context["field"] != "amount" {
			t.Errorf("expected field context, got %v", err.Context["field"])
		}
		if err.Context["value"] != "12.3.4" {
			t.Errorf("expected value context, got %v", err.Context["value"])
		}
	})

	t.Run("NotificationError", func(t *testing.T) {
		err := NotificationError(CodeSendFailed, "42", errors.New("timeout"))

		if err.Category != CategoryNotification {
			t.Errorf("expected notification category, got %s", err.Category)
		}
		if err.GetExitCode() != 6 {
			t.Errorf("expected exit code 6, got %d", err.GetExitCode())
		}
	})

	t.Run("ConfigurationError", func(t *testing.T) {
		err := ConfigurationError(CodeInvalidConfig, "dedup_window", -1)

		if err.Category != CategoryConfiguration {
			t.Errorf("expected configuration category, got %s", err.Category)
		}
		if err.Context["setting"] != "dedup_window" {
			t.Errorf("expected setting context, got %v", err.Context["setting"])
		}
	})
}

func TestIs(t *testing.T) {
	err := DealNotFound("42", nil)
	target := New(CategoryCRM, CodeDealNotFound, "")

	if !errors.Is(err, target) {
		t.Error("expected errors.Is to match on category and code")
	}

	other := New(CategoryCRM, CodeStageWriteFailed, "")
	if errors.Is(err, other) {
		t.Error("expected errors.Is to reject a different code")
	}
}

func TestIsEngineError(t *testing.T) {
	engineErr := New(CategoryCRM, CodeDealNotFound, "test")
	genericErr := errors.New("generic error")

	if !IsEngineError(engineErr) {
		t.Error("expected IsEngineError to return true for EngineError")
	}
	if IsEngineError(genericErr) {
		t.Error("expected IsEngineError to return false for generic error")
	}
	if IsEngineError(nil) {
		t.Error("expected IsEngineError to return false for nil")
	}
}

func TestAsEngineError(t *testing.T) {
	engineErr := New(CategoryCRM, CodeDealNotFound, "test")
	genericErr := errors.New("generic error")

	if extracted, ok := AsEngineError(engineErr); !ok || extracted != engineErr {
		t.Error("expected AsEngineError to extract EngineError")
	}
	if _, ok := AsEngineError(genericErr); ok {
		t.Error("expected AsEngineError to return false for generic error")
	}
	if _, ok := AsEngineError(nil); ok {
		t.Error("expected AsEngineError to return false for nil")
	}
}

func TestHasCode(t *testing.T) {
	err := StageWriteFailed("42", "fully_paid", errors.New("409"))

	if !HasCode(err, CodeStageWriteFailed) {
		t.Error("expected HasCode to find the code")
	}
	if HasCode(err, CodeDealNotFound) {
		t.Error("expected HasCode to reject a different code")
	}
	if HasCode(errors.New("generic"), CodeDealNotFound) {
		t.Error("expected HasCode to reject a generic error")
	}
}

func TestFormatContext(t *testing.T) {
	if FormatContext(nil) != "" {
		t.Error("expected empty string for nil context")
	}

	out := FormatContext(Context{"deal_id": "42"})
	if !strings.Contains(out, "deal_id=42") {
		t.Errorf("expected deal_id=42 in %q", out)
	}
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		category     Category
		expectedCode int
	}{
		{CategoryCRM, 2},
		{CategoryPayment, 2},
		{CategoryValidation, 3},
		{CategoryCurrency, 3},
		{CategoryConfiguration, 4},
		{CategoryReconciliation, 5},
		{CategoryInternal, 5},
		{CategoryNotification, 6},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			err := New(tt.category, "test_code", "test message")
			if err.GetExitCode() != tt.expectedCode {
				t.Errorf("expected exit code %d for category %s, got %d",
					tt.expectedCode, tt.category, err.GetExitCode())
			}
		})
	}
}

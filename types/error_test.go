package types

import (
	"errors"
	"testing"
	"time"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrGeneration, "render failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("openai")

	if GetErrorCode(err) != ErrGeneration {
		t.Fatalf("expected code %s, got %s", ErrGeneration, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestError_Constructors(t *testing.T) {
	t.Parallel()

	if !IsValidation(NewValidationError("bad prompt")) {
		t.Fatalf("expected validation code")
	}
	if !IsBudgetExceeded(NewBudgetExceededError(500_000, 100_000)) {
		t.Fatalf("expected budget exceeded code")
	}
	if !IsFatal(NewLedgerInvariantError("spent+reserved over total")) {
		t.Fatalf("ledger invariant must be fatal")
	}
	if IsFatal(NewGenerationError("timeout", nil)) {
		t.Fatalf("generation errors are not fatal")
	}
	if GetErrorCode(NewApprovalTimeoutError(time.Minute)) != ErrApprovalTimeout {
		t.Fatalf("expected approval timeout code")
	}
	if GetErrorCode(NewApprovalRejectedError("")) != ErrApprovalRejected {
		t.Fatalf("expected approval rejected code")
	}
}

func TestError_HelpersOnForeignError(t *testing.T) {
	t.Parallel()

	plain := errors.New("plain")
	if IsRetryable(plain) || IsBudgetExceeded(plain) || IsFatal(plain) {
		t.Fatalf("plain errors must not match helpers")
	}
	if GetErrorCode(plain) != "" {
		t.Fatalf("expected empty code for plain error")
	}
}

package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapError(t *testing.T) {
	if WrapError(nil, "ctx") != nil {
		t.Fatal("expected nil for nil error")
	}

	err := WrapError(ErrRateLimited, "openai request failed")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected wrapped ErrRateLimited, got %v", err)
	}
	if err.Error() != "openai request failed: rate limited" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{ErrRateLimited, true},
		{ErrTimeout, true},
		{fmt.Errorf("call: %w", ErrProviderUnavailable), true},
		{ErrInvalidAPIKey, false},
		{ErrGeneratorNotFound, false},
	}

	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(ErrInvalidAPIKey) {
		t.Error("expected ErrInvalidAPIKey to be fatal")
	}
	if IsFatal(ErrRateLimited) {
		t.Error("expected ErrRateLimited to be non-fatal")
	}
	if IsFatal(nil) {
		t.Error("expected nil to be non-fatal")
	}
}

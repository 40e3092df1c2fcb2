package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestFailoverError_Error(t *testing.T) {
	err := &FailoverError{Err: errors.New("boom"), Provider: "anthropic", Model: "claude-3", Reason: ReasonTimeout, Status: 504, Code: "ETIMEDOUT"}
	got := err.Error()
	for _, want := range []string{"[timeout]", "anthropic", "model=claude-3", "status=504", "code=ETIMEDOUT", "boom"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}
}

func TestFailoverError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &FailoverError{Err: cause}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to unwrap to the cause")
	}
}

func TestIsAbortError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, true},
		{"ErrAborted", ErrAborted, true},
		{"wrapped ErrAborted", fmt.Errorf("wrap: %w", ErrAborted), true},
		{"message pattern", errors.New("request was cancelled"), true},
		{"failover abort reason", &FailoverError{Reason: ReasonAbort}, true},
		{"unrelated", errors.New("rate limited"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAbortError(tt.err); got != tt.expected {
				t.Errorf("IsAbortError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestIsFailoverError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"rate limited", errors.New("429 too many requests"), true},
		{"server error", errors.New("502 bad gateway"), true},
		{"auth error", errors.New("401 unauthorized"), true},
		{"abort reason", &FailoverError{Reason: ReasonAbort}, false},
		{"context canceled", context.Canceled, false},
		{"invalid request", errors.New("400 bad request"), false},
		{"content blocked", errors.New("content policy violation"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFailoverError(tt.err); got != tt.expected {
				t.Errorf("IsFailoverError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestCoerceToFailoverError_ClassifiesNewError(t *testing.T) {
	err := CoerceToFailoverError(errors.New("rate limit exceeded"), "anthropic", "claude-3")
	if err == nil {
		t.Fatal("expected a non-nil FailoverError")
	}
	if err.Reason != ReasonRateLimit {
		t.Errorf("Reason = %q, want %q", err.Reason, ReasonRateLimit)
	}
	if err.Provider != "anthropic" || err.Model != "claude-3" {
		t.Errorf("Provider/Model = %s/%s", err.Provider, err.Model)
	}
}

func TestCoerceToFailoverError_PreservesExistingFields(t *testing.T) {
	existing := &FailoverError{Err: errors.New("x"), Reason: ReasonBilling, Provider: "openai"}
	got := CoerceToFailoverError(existing, "anthropic", "claude-3")
	if got.Provider != "openai" {
		t.Errorf("Provider = %q, want existing value preserved", got.Provider)
	}
	if got.Model != "claude-3" {
		t.Errorf("Model = %q, want backfilled from call site", got.Model)
	}
}

func TestCoerceToFailoverError_Nil(t *testing.T) {
	if got := CoerceToFailoverError(nil, "anthropic", "claude-3"); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestClassifyErrorReason(t *testing.T) {
	tests := []struct {
		err    error
		reason string
	}{
		{context.Canceled, ReasonAbort},
		{context.DeadlineExceeded, ReasonTimeout},
		{errors.New("rate limit exceeded"), ReasonRateLimit},
		{errors.New("401 unauthorized"), ReasonAuthError},
		{errors.New("insufficient quota"), ReasonBilling},
		{errors.New("model not found"), ReasonUnavailable},
		{errors.New("content policy violation"), ReasonContentBlock},
		{errors.New("internal server error"), ReasonServerError},
		{errors.New("400 bad request"), ReasonInvalid},
		{errors.New("something else entirely"), ReasonUnknown},
	}
	for _, tt := range tests {
		if got := classifyErrorReason(tt.err); got != tt.reason {
			t.Errorf("classifyErrorReason(%v) = %q, want %q", tt.err, got, tt.reason)
		}
	}
}

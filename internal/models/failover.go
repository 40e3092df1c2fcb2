package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// FailoverError wraps a provider call error with enough context for
// the Model Router to decide whether to escalate. Providers coerce
// every call error through CoerceToFailoverError before returning it.
type FailoverError struct {
	Err      error
	Provider string
	Model    string
	Reason   string
	Status   int
	Code     string
}

func (e *FailoverError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Reason))

	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	return strings.Join(parts, " ")
}

func (e *FailoverError) Unwrap() error {
	return e.Err
}

// Reasons a call can fail, used to decide whether a retry or
// escalation is worthwhile.
const (
	ReasonRateLimit    = "rate_limit"
	ReasonAuthError    = "auth_error"
	ReasonTimeout      = "timeout"
	ReasonServerError  = "server_error"
	ReasonBilling      = "billing"
	ReasonUnavailable  = "model_unavailable"
	ReasonAbort        = "abort"
	ReasonInvalid      = "invalid_request"
	ReasonContentBlock = "content_blocked"
	ReasonUnknown      = "unknown"
)

// ErrAborted indicates a user-initiated or context-cancelled call;
// callers must not retry or escalate on it.
var ErrAborted = errors.New("operation aborted")

// IsFailoverError reports whether err is a transient or capacity
// failure (rate limit, server error, timeout, billing, auth,
// unavailable model) rather than a terminal one. An existing
// *FailoverError counts unless its reason is abort. Providers use it
// as their Retry predicate; the Agent Runtime calls
// Router.ReportFailure on any failed model call without consulting it.
func IsFailoverError(err error) bool {
	if err == nil {
		return false
	}

	var failoverErr *FailoverError
	if errors.As(err, &failoverErr) {
		return failoverErr.Reason != ReasonAbort
	}

	if IsAbortError(err) {
		return false
	}

	switch classifyErrorReason(err) {
	case ReasonRateLimit, ReasonServerError, ReasonTimeout, ReasonBilling,
		ReasonAuthError, ReasonUnavailable:
		return true
	default:
		return false
	}
}

// IsAbortError reports whether err represents a user abort or context
// cancellation, which should never be retried or escalated.
func IsAbortError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrAborted) {
		return true
	}

	var failoverErr *FailoverError
	if errors.As(err, &failoverErr) {
		return failoverErr.Reason == ReasonAbort
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "aborted") ||
		strings.Contains(errStr, "cancelled") ||
		strings.Contains(errStr, "user abort")
}

// CoerceToFailoverError wraps err as a *FailoverError, classifying its
// reason from the message when err isn't already one.
func CoerceToFailoverError(err error, provider, model string) *FailoverError {
	if err == nil {
		return nil
	}

	var existing *FailoverError
	if errors.As(err, &existing) {
		if existing.Provider == "" {
			existing.Provider = provider
		}
		if existing.Model == "" {
			existing.Model = model
		}
		return existing
	}

	return &FailoverError{
		Err:      err,
		Provider: provider,
		Model:    model,
		Reason:   classifyErrorReason(err),
	}
}

// classifyErrorReason infers a Reason from an error's message. Provider
// SDKs don't share a common typed-error hierarchy, so this matches on
// the same status-code and keyword patterns each provider's errors
// tend to surface.
func classifyErrorReason(err error) string {
	if err == nil {
		return ReasonUnknown
	}
	if errors.Is(err, context.Canceled) {
		return ReasonAbort
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "aborted") ||
		strings.Contains(errStr, "cancelled") ||
		strings.Contains(errStr, "user abort"):
		return ReasonAbort
	case strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "context deadline") ||
		strings.Contains(errStr, "etimedout"):
		return ReasonTimeout
	case strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "rate_limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429"):
		return ReasonRateLimit
	case strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "invalid api key") ||
		strings.Contains(errStr, "invalid_api_key") ||
		strings.Contains(errStr, "authentication") ||
		strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403"):
		return ReasonAuthError
	case strings.Contains(errStr, "billing") ||
		strings.Contains(errStr, "payment") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "insufficient") ||
		strings.Contains(errStr, "402"):
		return ReasonBilling
	case strings.Contains(errStr, "model not found") ||
		strings.Contains(errStr, "model_not_found") ||
		strings.Contains(errStr, "does not exist") ||
		strings.Contains(errStr, "unavailable"):
		return ReasonUnavailable
	case strings.Contains(errStr, "content_filter") ||
		strings.Contains(errStr, "content policy") ||
		strings.Contains(errStr, "safety") ||
		strings.Contains(errStr, "blocked"):
		return ReasonContentBlock
	case strings.Contains(errStr, "internal server") ||
		strings.Contains(errStr, "server error") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504"):
		return ReasonServerError
	case strings.Contains(errStr, "invalid") ||
		strings.Contains(errStr, "bad request") ||
		strings.Contains(errStr, "400"):
		return ReasonInvalid
	default:
		return ReasonUnknown
	}
}

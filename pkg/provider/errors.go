package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v2"
)

// Sentinel errors for provider calls.
var (
	// ErrRateLimited indicates the credential hit the provider's rate limit.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnavailable indicates the service failed on its side.
	ErrUnavailable = errors.New("service unavailable")

	// ErrTimeout indicates the call did not finish in time.
	ErrTimeout = errors.New("request timed out")

	// ErrEmptyResponse indicates the service returned no usable text.
	ErrEmptyResponse = errors.New("empty response")
)

// Error wraps a provider failure with the operation and HTTP status.
type Error struct {
	Op     string // "complete" or "describe"
	Status int    // HTTP status, 0 when the request never got a response
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err was caused by provider-side rate limiting.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsTimeout reports whether err was caused by a deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// classify turns an SDK error into an *Error tagged with a sentinel cause.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	status := 0
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}

	var cause error
	switch {
	case status == http.StatusTooManyRequests,
		strings.Contains(strings.ToLower(err.Error()), "rate_limit"):
		cause = ErrRateLimited
	case errors.Is(err, context.DeadlineExceeded):
		cause = ErrTimeout
	case status >= 500:
		cause = ErrUnavailable
	}
	if cause != nil {
		err = fmt.Errorf("%w: %w", cause, err)
	}
	return &Error{Op: op, Status: status, Err: err}
}

// Diagnose returns a short, user-safe description of err that never
// includes the raw provider message.
func Diagnose(err error) string {
	switch {
	case err == nil:
		return ""
	case IsRateLimited(err):
		return "сервис перегружен"
	case IsTimeout(err):
		return "превышено время ожидания"
	case errors.Is(err, ErrEmptyResponse):
		return "текст не найден"
	case errors.Is(err, ErrUnavailable):
		return "сервис недоступен"
	default:
		return "внутренняя ошибка"
	}
}

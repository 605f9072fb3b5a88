package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrUnavailable indicates a network or provider failure that may
	// succeed on retry.
	ErrUnavailable = errors.New("completion provider unavailable")
	// ErrTimeout indicates the configured completion deadline was
	// exceeded.
	ErrTimeout = errors.New("completion deadline exceeded")
	// ErrRefused indicates a content-policy rejection. Never retried.
	ErrRefused = errors.New("completion refused by provider")
)

// Retryable reports whether the error is worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout)
}

// classifyStatus maps a provider HTTP status to the error taxonomy.
func classifyStatus(status int, body string) error {
	switch {
	case status == http.StatusBadRequest && strings.Contains(body, "content_policy"):
		return ErrRefused
	case status == http.StatusForbidden:
		return ErrRefused
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrTimeout
	default:
		return ErrUnavailable
	}
}

// classifyCtx maps context errors to the taxonomy, if applicable.
func classifyCtx(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return nil
}

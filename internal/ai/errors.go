package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harishm17/study-buddy/internal/ai/llm"
)

var (
	ErrMissingCredentials = errors.New("ai credentials not configured")
	ErrInferenceTimeout   = errors.New("ai inference timeout")
	ErrInvalidResponse    = llm.ErrInvalidResponse
)

// ConfigError means the provider cannot work until an operator changes its
// configuration. Retrying the same job will not help.
type ConfigError struct {
	Provider string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: configuration error: %v", e.Provider, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// TransientError covers network failures, rate limits, timeouts and bad
// model output. The job may succeed on a later attempt.
type TransientError struct {
	Provider string
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsConfigError reports whether err carries a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// classify wraps a raw provider error in ConfigError or TransientError.
// Already classified errors pass through unchanged.
func classify(provider string, err error) error {
	if err == nil {
		return nil
	}

	var ce *ConfigError
	var te *TransientError
	if errors.As(err, &ce) || errors.As(err, &te) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Provider: provider, Err: fmt.Errorf("%w: %w", ErrInferenceTimeout, err)}
	}
	if isAuthFailure(err) {
		return &ConfigError{Provider: provider, Err: err}
	}
	return &TransientError{Provider: provider, Err: err}
}

// langchaingo surfaces HTTP failures as formatted strings, so auth failures
// are recognised by status code and vendor error type.
var authMarkers = []string{
	"status code: 401",
	"status code: 403",
	"invalid_api_key",
	"invalid x-api-key",
	"authentication_error",
	"permission_error",
	"incorrect api key",
}

func isAuthFailure(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, m := range authMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

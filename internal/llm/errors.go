package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"google.golang.org/api/googleapi"
)

// APIError is a failed provider call. StatusCode is 0 when the provider gave none.
type APIError struct {
	Provider   Provider
	StatusCode int
	Cause      error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s API call failed (status %d): %v", e.Provider, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("%s API call failed: %v", e.Provider, e.Cause)
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// IsRateLimited reports whether err is a provider rate-limit (HTTP 429) failure.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return looksRateLimited(err.Error())
}

// IsPermanent reports whether retrying err cannot help (bad request or credentials).
func IsPermanent(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

func looksRateLimited(msg string) bool {
	upper := strings.ToUpper(msg)
	return strings.Contains(upper, "429") ||
		strings.Contains(upper, "RESOURCE_EXHAUSTED") ||
		strings.Contains(upper, "RESOURCEEXHAUSTED") ||
		strings.Contains(upper, "RATE LIMIT")
}

func wrapGeminiError(err error) error {
	apiErr := &APIError{Provider: ProviderGemini, Cause: err}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		apiErr.StatusCode = gerr.Code
	} else if looksRateLimited(err.Error()) {
		// The gRPC transport reports quota exhaustion without an HTTP status.
		apiErr.StatusCode = http.StatusTooManyRequests
	}
	return apiErr
}

func wrapAnthropicError(err error) error {
	apiErr := &APIError{Provider: ProviderAnthropic, Cause: err}
	var aerr *anthropic.Error
	if errors.As(err, &aerr) {
		apiErr.StatusCode = aerr.StatusCode
	}
	return apiErr
}

package llm

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestIsRateLimited(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"api error 429", &APIError{Provider: ProviderGemini, StatusCode: 429, Cause: errors.New("quota")}, true},
		{"api error 500", &APIError{Provider: ProviderGemini, StatusCode: 500, Cause: errors.New("Error 429 in body")}, false},
		{"wrapped api error", fmt.Errorf("bulk call: %w", &APIError{StatusCode: 429}), true},
		{"gRPC quota message", errors.New("rpc error: code = ResourceExhausted desc = RESOURCE_EXHAUSTED"), true},
		{"plain error", errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRateLimited(tt.err))
		})
	}
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(&APIError{StatusCode: 401}))
	assert.True(t, IsPermanent(fmt.Errorf("x: %w", &APIError{StatusCode: 400})))
	assert.False(t, IsPermanent(&APIError{StatusCode: 429}))
	assert.False(t, IsPermanent(&APIError{StatusCode: 503}))
	assert.False(t, IsPermanent(errors.New("401")))
}

func TestWrapGeminiError(t *testing.T) {
	err := wrapGeminiError(&googleapi.Error{Code: 429, Message: "quota exceeded"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, ProviderGemini, apiErr.Provider)
	assert.Equal(t, 429, apiErr.StatusCode)
	assert.True(t, IsRateLimited(err))

	err = wrapGeminiError(errors.New("rpc error: code = ResourceExhausted"))
	assert.True(t, IsRateLimited(err))

	err = wrapGeminiError(errors.New("deadline exceeded"))
	require.True(t, errors.As(err, &apiErr))
	assert.Zero(t, apiErr.StatusCode)
	assert.False(t, IsRateLimited(err))
}

func TestWrapAnthropicError(t *testing.T) {
	err := wrapAnthropicError(&anthropic.Error{StatusCode: 429})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, ProviderAnthropic, apiErr.Provider)
	assert.Equal(t, 429, apiErr.StatusCode)
	assert.True(t, IsRateLimited(err))
}

func TestAPIError_Message(t *testing.T) {
	err := &APIError{Provider: ProviderAnthropic, StatusCode: 529, Cause: errors.New("overloaded")}
	assert.Equal(t, "anthropic API call failed (status 529): overloaded", err.Error())

	err = &APIError{Provider: ProviderGemini, Cause: errors.New("timeout")}
	assert.Equal(t, "gemini API call failed: timeout", err.Error())
}

func TestBuildExtractionPrompt_ManualReview(t *testing.T) {
	prompt := BuildExtractionPrompt(ManualReviewSchema("Convert the review."), "Element b: Yes, compliant")

	assert.True(t, strings.HasPrefix(prompt, "Convert the review."))
	assert.Contains(t, prompt, `"entries": [`)
	assert.Contains(t, prompt, `"name": "string" (required)`)
	assert.Contains(t, prompt, "Element b: Yes, compliant")
}

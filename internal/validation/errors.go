// Package validation turns normalized application text and a rule set into per-element compliance verdicts.
package validation

import "fmt"

// maxExcerpt bounds how much of a bad reply is kept on an error.
const maxExcerpt = 200

// MalformedResponseError means the model reply is not JSON or lacks the expected top-level shape.
type MalformedResponseError struct {
	Message string
	Excerpt string
	Cause   error
}

func (e *MalformedResponseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed model response: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("malformed model response: %s", e.Message)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Cause
}

func newMalformed(message, raw string, cause error) *MalformedResponseError {
	excerpt := raw
	if len(excerpt) > maxExcerpt {
		excerpt = excerpt[:maxExcerpt] + "..."
	}
	return &MalformedResponseError{Message: message, Excerpt: excerpt, Cause: cause}
}

// ApplicationError is a fatal failure while validating one application.
// Section is empty when the failure was not tied to a single chapter.
type ApplicationError struct {
	ApplicationID string
	Section       string
	Cause         error
}

func (e *ApplicationError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("application %s: section %q: %v", e.ApplicationID, e.Section, e.Cause)
	}
	return fmt.Sprintf("application %s: %v", e.ApplicationID, e.Cause)
}

func (e *ApplicationError) Unwrap() error {
	return e.Cause
}

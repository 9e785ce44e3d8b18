// Package manual reads project-officer review results from spreadsheets, JSON files or free text.
package manual

import (
	"fmt"
	"strings"
)

// HeaderError means no row of a sheet carried the columns an entry needs.
type HeaderError struct {
	Source  string
	Missing []string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("%s: no header row with %s column", e.Source, strings.Join(e.Missing, " and "))
}

// ExtractionError is a failed LLM conversion of a free-text review.
type ExtractionError struct {
	Message string
	Cause   error
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("manual review extraction failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("manual review extraction failed: %s", e.Message)
}

func (e *ExtractionError) Unwrap() error {
	return e.Cause
}

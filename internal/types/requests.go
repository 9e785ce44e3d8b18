//nolint:revive // types is a standard Go package name pattern
package types

import "github.com/go-playground/validator/v10"

// ValidateRequest asks the service to validate one application's extracted text.
type ValidateRequest struct {
	ApplicationID string `json:"application_id" validate:"required"`
	Text          string `json:"text" validate:"required"`
	YearCode      string `json:"year_code,omitempty" validate:"omitempty,numeric,min=2,max=4"`
	SkipCache     bool   `json:"skip_cache,omitempty"`
}

// CompareRequest asks the service to reconcile AI verdicts with a manual review.
type CompareRequest struct {
	ApplicationID string              `json:"application_id" validate:"required"`
	Results       ValidationResults   `json:"results" validate:"required"`
	ManualEntries []ManualReviewEntry `json:"manual_entries" validate:"dive"`
}

// NormalizeRequest asks the service to normalize raw extracted text.
type NormalizeRequest struct {
	Text string `json:"text" validate:"required"`
}

// Validate validates the ValidateRequest using the validator.
func (r *ValidateRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the CompareRequest using the validator.
func (r *CompareRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Validate validates the NormalizeRequest using the validator.
func (r *NormalizeRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

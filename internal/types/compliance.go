// Package types provides type definitions for structured data used throughout the compliance reviewer.
//
//nolint:revive // types is a standard Go package name pattern
package types

import "github.com/go-playground/validator/v10"

// ComplianceElement is one individually gradable requirement within a chapter.
// Label is the only key used to join elements across independently produced artifacts.
type ComplianceElement struct {
	Label             string   `json:"element" yaml:"element" validate:"required"`
	RequirementText   string   `json:"requirementText" yaml:"requirementText" validate:"required"`
	MustAddress       []string `json:"mustAddress,omitempty" yaml:"mustAddress,omitempty"`
	ReviewHint        string   `json:"reviewHint,omitempty" yaml:"reviewHint,omitempty"`
	ChecklistItems    []string `json:"checklistItems,omitempty" yaml:"checklistItems,omitempty"`
	ApplicabilityNote string   `json:"applicabilityNote,omitempty" yaml:"applicabilityNote,omitempty"`
}

// ComplianceChapter groups the elements of one review section (e.g. "Budget").
type ComplianceChapter struct {
	ChapterTitle      string              `json:"chapterTitle" yaml:"chapterTitle" validate:"required"`
	SectionName       string              `json:"sectionName" yaml:"sectionName" validate:"required"`
	AuthorityCitation string              `json:"authorityCitation,omitempty" yaml:"authorityCitation,omitempty"`
	Elements          []ComplianceElement `json:"elements" yaml:"elements" validate:"required,min=1,dive"`
}

// Validate checks required fields on the chapter and every element.
func (c *ComplianceChapter) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// CountElements returns the total number of elements across chapters.
func CountElements(chapters []ComplianceChapter) int {
	total := 0
	for _, ch := range chapters {
		total += len(ch.Elements)
	}
	return total
}

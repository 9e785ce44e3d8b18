package manual

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/compliance-reviewer/internal/matching"
	"github.com/jonathan/compliance-reviewer/internal/types"
)

func TestFormatLabel(t *testing.T) {
	tests := []struct {
		letter string
		name   string
		want   string
	}{
		{"b", "Update of Needs Assessment", "Element b - Update of Needs Assessment"},
		{"B.", "Update of Needs Assessment", "Element b - Update of Needs Assessment"},
		{" c) ", "Sliding  Fee\nSchedule", "Element c - Sliding Fee Schedule"},
		{"", "Revenue Sources", "Revenue Sources"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatLabel(tt.letter, tt.name))
		})
	}
}

func TestFormatLabel_MatchesRuleLabel(t *testing.T) {
	m := matching.NewMatcher(nil)
	assert.True(t, m.ElementsMatch("b. Update of Needs Assessment", FormatLabel("b", "Update of Needs Assessment")))
}

func TestEntriesFromRows(t *testing.T) {
	rows := [][]string{
		{"Health Center Program Review"},
		{},
		{"Section", "Letter", "Element Name", "Compliance", "Reviewer Comments"},
		{"Needs Assessment", "a", "Service Area Identification", "Yes, the service area is defined.", ""},
		{"", "b", "Update of Needs Assessment", "No, not updated.", "Last updated 2019"},
		{"Budget", "a", "Annual Budgeting for Scope of Project", "N/A"},
		{"", "", "", "", ""},
		{"Budget", "", "Revenue Sources", "Compliant", "ok"},
	}

	entries, err := EntriesFromRows("review.xlsx", rows)
	require.NoError(t, err)

	assert.Equal(t, []types.ManualReviewEntry{
		{Section: "Needs Assessment", ElementLabel: "Element a - Service Area Identification", RawStatus: "Yes, the service area is defined."},
		{Section: "Needs Assessment", ElementLabel: "Element b - Update of Needs Assessment", RawStatus: "No, not updated.", Comments: "Last updated 2019"},
		{Section: "Budget", ElementLabel: "Element a - Annual Budgeting for Scope of Project", RawStatus: "N/A"},
		{Section: "Budget", ElementLabel: "Revenue Sources", RawStatus: "Compliant", Comments: "ok"},
	}, entries)
}

func TestEntriesFromRows_SectionHeadingRows(t *testing.T) {
	rows := [][]string{
		{"Element", "Status", "Comments"},
		{"Sliding Fee Discount Program"},
		{"a. Patient Eligibility for Discounts", "Yes", ""},
		{"Budget", "", ""},
		{"a. Annual Budgeting for Scope of Project", "", "status left blank"},
	}

	entries, err := EntriesFromRows("review.csv", rows)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "Sliding Fee Discount Program", entries[0].Section)
	assert.Equal(t, "a. Patient Eligibility for Discounts", entries[0].ElementLabel)
	assert.Equal(t, "Budget", entries[1].Section)
	assert.Empty(t, entries[1].RawStatus, "blank status is kept and later normalizes to UNKNOWN")
}

func TestEntriesFromRows_TrackingSheet(t *testing.T) {
	rows := [][]string{
		{"Tracking Number", "Section", "Question", "Answer", "Comment"},
		{"APP-1", "Budget", "a. Annual Budgeting for Scope of Project", "Yes", ""},
		{"", "", "b. Revenue Sources", "No", "not listed"},
		{"APP-2"},
		{"", "Budget", "a. Annual Budgeting for Scope of Project", "No", ""},
	}

	entries, err := EntriesFromRows("tracking.xlsx", rows)
	require.NoError(t, err)

	assert.Equal(t, []types.ManualReviewEntry{
		{ApplicationID: "APP-1", Section: "Budget", ElementLabel: "a. Annual Budgeting for Scope of Project", RawStatus: "Yes"},
		{ApplicationID: "APP-1", Section: "Budget", ElementLabel: "b. Revenue Sources", RawStatus: "No", Comments: "not listed"},
		{ApplicationID: "APP-2", Section: "Budget", ElementLabel: "a. Annual Budgeting for Scope of Project", RawStatus: "No"},
	}, entries)
}

func TestForApplication(t *testing.T) {
	tracked := []types.ManualReviewEntry{
		{ElementLabel: "Shared Element", RawStatus: "Yes"},
		{ApplicationID: "APP-1", ElementLabel: "a. Policies", RawStatus: "Yes"},
		{ApplicationID: "APP-2", ElementLabel: "a. Policies", RawStatus: "No"},
	}
	untracked := []types.ManualReviewEntry{
		{ElementLabel: "a. Policies", RawStatus: "Yes"},
		{ElementLabel: "b. Procedures", RawStatus: "No"},
	}

	tests := []struct {
		name    string
		entries []types.ManualReviewEntry
		appID   string
		want    []types.ManualReviewEntry
	}{
		{"keeps own and untagged rows", tracked, "APP-2", []types.ManualReviewEntry{tracked[0], tracked[2]}},
		{"ignores case and space", tracked, " app-1 ", []types.ManualReviewEntry{tracked[0], tracked[1]}},
		{"unknown application", tracked, "APP-9", []types.ManualReviewEntry{tracked[0]}},
		{"untagged list passes through", untracked, "APP-1", untracked},
		{"nil", nil, "APP-1", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ForApplication(tt.entries, tt.appID))
		})
	}
}

func TestEntriesFromRows_NoHeader(t *testing.T) {
	_, err := EntriesFromRows("notes.csv", [][]string{{"just", "some", "cells"}})
	require.Error(t, err)

	var headerErr *HeaderError
	require.ErrorAs(t, err, &headerErr)
	assert.Equal(t, "notes.csv", headerErr.Source)
	assert.Contains(t, err.Error(), "element and status")
}

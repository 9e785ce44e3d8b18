package report

import (
	"context"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/jonathan/compliance-reviewer/internal/storage"
	"github.com/jonathan/compliance-reviewer/internal/types"
	"github.com/jonathan/compliance-reviewer/internal/validation"
)

// ValidationWorkbook builds a workbook with one summary row per application and one row per verdict.
func ValidationWorkbook(results []*validation.Result) (*excelize.File, error) {
	f := excelize.NewFile()
	st, err := newStyles(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := writeValidationSheets(f, st, results); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func writeValidationSheets(f *excelize.File, st styles, results []*validation.Result) error {
	summary, err := newSheet(f, SheetSummary, true)
	if err != nil {
		return err
	}
	if err := summary.header(st.header, "Application", "Mode", "Compliant", "Non-Compliant",
		"Not Applicable", "Expected", "Accepted", "Warnings"); err != nil {
		return err
	}
	for _, r := range results {
		counts := r.Results.StatusCounts()
		expected, accepted := 0, r.Results.Total()
		var warnings []string
		if r.Coverage != nil {
			expected = r.Coverage.Expected
			warnings = r.Coverage.Warnings()
		}
		if err := summary.append(r.ApplicationID, r.Mode, counts[types.StatusCompliant], counts[types.StatusNonCompliant],
			counts[types.StatusNotApplicable], expected, accepted, strings.Join(warnings, "\n")); err != nil {
			return err
		}
		if len(warnings) > 0 {
			if err := summary.styleRow(st.missing); err != nil {
				return err
			}
		}
	}
	if err := summary.finish(18, 12, 12, 14, 14, 10, 10, 60); err != nil {
		return err
	}

	verdicts, err := newSheet(f, SheetVerdicts, false)
	if err != nil {
		return err
	}
	if err := verdicts.header(st.header, "Application", "Section", "Element", "Status", "Evidence",
		"Location", "Evidence Section", "Reasoning", "Requirement"); err != nil {
		return err
	}
	for _, r := range results {
		for _, section := range r.Results.Sections() {
			for _, v := range r.Results[section].All() {
				if err := verdicts.append(r.ApplicationID, section, v.Element, string(v.Status), v.Evidence,
					v.EvidenceLocation, v.EvidenceSection, v.Reasoning, v.Requirement); err != nil {
					return err
				}
				if err := verdicts.styleRow(statusStyle(st, v.Status)); err != nil {
					return err
				}
			}
		}
	}
	return verdicts.finish(16, 24, 40, 16, 60, 10, 24, 60, 60)
}

func statusStyle(st styles, status types.Status) int {
	switch status {
	case types.StatusCompliant:
		return st.good
	case types.StatusNotApplicable:
		return st.missing
	default:
		return st.bad
	}
}

// WriteValidationWorkbook builds the validation workbook and stores it under key.
func WriteValidationWorkbook(ctx context.Context, s storage.Storage, key string, results []*validation.Result) error {
	f, err := ValidationWorkbook(results)
	if err != nil {
		return err
	}
	return WriteWorkbook(ctx, s, key, f)
}

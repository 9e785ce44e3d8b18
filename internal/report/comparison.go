package report

import (
	"context"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/jonathan/compliance-reviewer/internal/storage"
	"github.com/jonathan/compliance-reviewer/internal/types"
)

// Sheet names used in the comparison workbook.
const (
	SheetSummary     = "Summary"
	SheetDetails     = "Details"
	SheetAmbiguities = "Ambiguities"
	SheetVerdicts    = "Verdicts"
)

// ComparisonWorkbook builds a workbook with per-application stats, every comparison record and any ambiguous matches.
// The summary ends with the aggregate rows; the mean and pooled success rates are labeled separately.
func ComparisonWorkbook(comparisons []types.ApplicationComparison, aggregate types.AggregateStats) (*excelize.File, error) {
	f := excelize.NewFile()
	st, err := newStyles(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := writeComparisonSheets(f, st, comparisons, aggregate); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func writeComparisonSheets(f *excelize.File, st styles, comparisons []types.ApplicationComparison, aggregate types.AggregateStats) error {
	summary, err := newSheet(f, SheetSummary, true)
	if err != nil {
		return err
	}
	if err := summary.header(st.header, "Application", "Total", "Matching", "Mismatching",
		"Missing in Manual", "Missing in AI", "Success Rate (%)", "Excluded"); err != nil {
		return err
	}
	for _, c := range comparisons {
		s := c.Stats
		if err := summary.append(c.ApplicationID, s.Total, s.Matching, s.Mismatching,
			s.MissingInManual, s.MissingInAI, s.SuccessRatePercent, strings.Join(c.Excluded, "; ")); err != nil {
			return err
		}
	}
	if err := summary.finish(18, 10, 10, 12, 16, 14, 16, 40); err != nil {
		return err
	}
	if err := summary.append(); err != nil {
		return err
	}
	if err := summary.append("All applications", aggregate.Total, aggregate.Matching, aggregate.Mismatching,
		aggregate.MissingInManual, aggregate.MissingInAI); err != nil {
		return err
	}
	if err := summary.append("Mean success rate (%)", aggregate.MeanSuccessRatePercent); err != nil {
		return err
	}
	if err := summary.styleRow(st.emphasis); err != nil {
		return err
	}
	if err := summary.append("Pooled success rate (%)", aggregate.PooledSuccessRatePercent); err != nil {
		return err
	}
	if err := summary.styleRow(st.emphasis); err != nil {
		return err
	}

	details, err := newSheet(f, SheetDetails, false)
	if err != nil {
		return err
	}
	if err := details.header(st.header, "Application", "Section", "Element", "Manual Element", "AI Status",
		"Manual Status", "Result", "Match Kind", "AI Evidence", "AI Reasoning", "Manual Comment"); err != nil {
		return err
	}
	for _, c := range comparisons {
		for _, r := range c.Records {
			if err := details.append(r.ApplicationID, r.Section, r.Element, r.ManualElement, string(r.AIStatus),
				string(r.ManualStatus), string(r.MatchResult), r.MatchKind, r.AIEvidence, r.AIReasoning, r.ManualComment); err != nil {
				return err
			}
			if err := details.styleRow(resultStyle(st, r.MatchResult)); err != nil {
				return err
			}
		}
	}
	if err := details.finish(16, 24, 40, 40, 16, 16, 18, 10, 50, 50, 40); err != nil {
		return err
	}

	var ambiguous []types.AmbiguousMatch
	var owners []string
	for _, c := range comparisons {
		for _, a := range c.Ambiguities {
			ambiguous = append(ambiguous, a)
			owners = append(owners, c.ApplicationID)
		}
	}
	if len(ambiguous) == 0 {
		return nil
	}
	amb, err := newSheet(f, SheetAmbiguities, false)
	if err != nil {
		return err
	}
	if err := amb.header(st.header, "Application", "Section", "Element", "Match Kind", "Chosen", "Candidates"); err != nil {
		return err
	}
	for i, a := range ambiguous {
		if err := amb.append(owners[i], a.Section, a.Element, a.MatchKind, a.Chosen, strings.Join(a.Candidates, "; ")); err != nil {
			return err
		}
	}
	return amb.finish(16, 24, 40, 10, 40, 60)
}

func resultStyle(st styles, result types.MatchResult) int {
	switch result {
	case types.MatchResultMatch:
		return st.good
	case types.MatchResultMismatch:
		return st.bad
	default:
		return st.missing
	}
}

// WriteComparisonWorkbook builds the comparison workbook and stores it under key.
func WriteComparisonWorkbook(ctx context.Context, s storage.Storage, key string, comparisons []types.ApplicationComparison, aggregate types.AggregateStats) error {
	f, err := ComparisonWorkbook(comparisons, aggregate)
	if err != nil {
		return err
	}
	return WriteWorkbook(ctx, s, key, f)
}

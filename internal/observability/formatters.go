// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/compliance-reviewer/internal/ingestion"
	"github.com/jonathan/compliance-reviewer/internal/rules"
	"github.com/jonathan/compliance-reviewer/internal/types"
	"github.com/jonathan/compliance-reviewer/internal/validation"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 72
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(title, boxWidth-4))
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// PrintMetadata outputs what was learned while normalizing an application.
func (p *Printer) PrintMetadata(meta *ingestion.Metadata) {
	if meta == nil {
		return
	}

	var sb strings.Builder
	if meta.SourcePath != "" {
		sb.WriteString(fmt.Sprintf("Source:       %s\n", meta.SourcePath))
	}
	sb.WriteString(fmt.Sprintf("Pages:        %d\n", meta.PageCount))
	if meta.AnnouncementNumber != "" {
		sb.WriteString(fmt.Sprintf("Announcement: %s (year code %s)\n", meta.AnnouncementNumber, meta.YearCode))
	} else {
		sb.WriteString("Announcement: not found\n")
	}
	sb.WriteString(fmt.Sprintf("Fingerprint:  %s", meta.Fingerprint))

	p.printBox("NORMALIZED APPLICATION", sb.String())
}

// PrintRuleSet outputs the chapters and element counts of a loaded rule set.
func (p *Printer) PrintRuleSet(rs *rules.RuleSet) {
	if rs == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Version:      %s\n", rs.VersionLabel))
	sb.WriteString(fmt.Sprintf("Requirements: %d in %d sections\n\n", rs.RequirementCount(), len(rs.Chapters)))
	for _, ch := range rs.Chapters {
		sb.WriteString(fmt.Sprintf("  • %s (%d)\n", ch.SectionName, len(ch.Elements)))
	}

	p.printBox("RULE SET", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintValidation outputs status counts per section and any coverage warnings.
func (p *Printer) PrintValidation(result *validation.Result) {
	if result == nil {
		return
	}

	var sb strings.Builder
	counts := result.Results.StatusCounts()
	sb.WriteString(fmt.Sprintf("Application: %s (%s)\n", result.ApplicationID, result.Mode))
	sb.WriteString(fmt.Sprintf("Compliant: %d  Non-compliant: %d  Not applicable: %d\n\n",
		counts[types.StatusCompliant], counts[types.StatusNonCompliant], counts[types.StatusNotApplicable]))

	for _, name := range result.Results.Sections() {
		section := result.Results[name]
		sb.WriteString(fmt.Sprintf("  %-40s C:%-3d NC:%-3d NA:%-3d\n", truncate(name, 40),
			len(section.CompliantItems), len(section.NonCompliantItems), len(section.NotApplicableItems)))
	}

	if result.Coverage != nil {
		warnings := result.Coverage.Warnings()
		if len(warnings) > 0 {
			sb.WriteString("\nWarnings:\n")
			count := min(len(warnings), maxItemsToShow)
			for _, w := range warnings[:count] {
				sb.WriteString(fmt.Sprintf("  ⚠ %s\n", w))
			}
			if len(warnings) > maxItemsToShow {
				sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(warnings)-maxItemsToShow))
			}
		}
	}

	p.printBox("VALIDATION RESULTS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintComparison outputs agreement stats and the first few disagreements for one application.
func (p *Printer) PrintComparison(comparison *types.ApplicationComparison) {
	if comparison == nil {
		return
	}

	var sb strings.Builder
	s := comparison.Stats
	sb.WriteString(fmt.Sprintf("Application:  %s\n", comparison.ApplicationID))
	sb.WriteString(fmt.Sprintf("Success rate: %.1f%% (%d of %d)\n", s.SuccessRatePercent, s.Matching, s.Total))
	sb.WriteString(fmt.Sprintf("Mismatching: %d  Missing in manual: %d  Missing in AI: %d\n",
		s.Mismatching, s.MissingInManual, s.MissingInAI))

	var disagreements []types.ComparisonRecord
	for _, r := range comparison.Records {
		if r.MatchResult != types.MatchResultMatch {
			disagreements = append(disagreements, r)
		}
	}
	if len(disagreements) > 0 {
		sb.WriteString("\nDisagreements:\n")
		count := min(len(disagreements), maxItemsToShow)
		for _, r := range disagreements[:count] {
			element := r.Element
			if element == "" {
				element = r.ManualElement
			}
			sb.WriteString(fmt.Sprintf("  ✗ %s: %s\n", r.Section, element))
			sb.WriteString(fmt.Sprintf("      AI %s / manual %s (%s)\n", r.AIStatus, r.ManualStatus, r.MatchResult))
		}
		if len(disagreements) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(disagreements)-maxItemsToShow))
		}
	}
	if len(comparison.Ambiguities) > 0 {
		sb.WriteString(fmt.Sprintf("\nAmbiguous matches: %d\n", len(comparison.Ambiguities)))
	}

	p.printBox("COMPARISON", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintAggregate outputs batch-level stats with the mean and pooled rates shown separately.
func (p *Printer) PrintAggregate(agg types.AggregateStats) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Applications:        %d\n", agg.Applications))
	sb.WriteString(fmt.Sprintf("Compared verdicts:   %d\n", agg.Total))
	sb.WriteString(fmt.Sprintf("Matching:            %d\n", agg.Matching))
	sb.WriteString(fmt.Sprintf("Mean success rate:   %.1f%%\n", agg.MeanSuccessRatePercent))
	sb.WriteString(fmt.Sprintf("Pooled success rate: %.1f%%", agg.PooledSuccessRatePercent))

	p.printBox("AGGREGATE", sb.String())
}

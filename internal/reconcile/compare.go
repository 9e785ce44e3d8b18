package reconcile

import (
	"log"
	"math"

	"github.com/jonathan/compliance-reviewer/internal/matching"
	"github.com/jonathan/compliance-reviewer/internal/types"
)

// DefaultExclusions lists elements that have no manual-review analogue and are left out of comparison.
func DefaultExclusions() []string {
	return []string{"Update of Needs Assessment"}
}

// Comparator reconciles AI verdicts with manual review entries for one application at a time.
type Comparator struct {
	matcher    *matching.Matcher
	exclusions map[string]bool
}

// NewComparator builds a comparator. Exclusions are compared by canonical element form.
// A nil matcher uses the default rename table.
func NewComparator(matcher *matching.Matcher, exclusions []string) *Comparator {
	if matcher == nil {
		matcher = matching.NewMatcher(matching.DefaultRenames())
	}
	excluded := make(map[string]bool, len(exclusions))
	for _, e := range exclusions {
		if c := matching.Canonicalize(e); c != "" {
			excluded[c] = true
		}
	}
	return &Comparator{matcher: matcher, exclusions: excluded}
}

func (c *Comparator) isExcluded(label string) bool {
	return c.exclusions[matching.Canonicalize(label)]
}

// CompareApplication joins every AI verdict with at most one manual entry.
// Sections are visited in sorted order and verdicts in compliant, non-compliant, not-applicable order,
// so the outcome is deterministic for identical inputs.
func (c *Comparator) CompareApplication(appID string, results types.ValidationResults, manual []types.ManualReviewEntry) types.ApplicationComparison {
	out := types.ApplicationComparison{
		ApplicationID: appID,
		Records:       []types.ComparisonRecord{},
	}

	candidates := make([]matching.Candidate, len(manual))
	claimed := make([]bool, len(manual))
	for i, entry := range manual {
		candidates[i] = matching.Candidate{Section: entry.Section, Label: entry.ElementLabel}
		if c.isExcluded(entry.ElementLabel) {
			claimed[i] = true
		}
	}

	var stats types.ComparisonStats
	for _, section := range results.Sections() {
		for _, verdict := range results[section].All() {
			if c.isExcluded(verdict.Element) {
				out.Excluded = append(out.Excluded, section+": "+verdict.Element)
				continue
			}

			record := types.ComparisonRecord{
				ApplicationID: appID,
				Section:       section,
				Element:       verdict.Element,
				AIStatus:      verdict.Status,
				AIEvidence:    verdict.Evidence,
				AIReasoning:   verdict.Reasoning,
			}
			stats.Total++

			res := c.matcher.Resolve(section, verdict.Element, candidates, claimed)
			if res.Index < 0 {
				record.ManualStatus = types.StatusNotFound
				record.MatchResult = types.MatchResultMissingInManual
				stats.MissingInManual++
				out.Records = append(out.Records, record)
				continue
			}

			if res.Ambiguous() {
				amb := types.AmbiguousMatch{
					Section:   section,
					Element:   verdict.Element,
					MatchKind: res.Kind.String(),
					Chosen:    manual[res.Index].ElementLabel,
				}
				for _, i := range res.Ties {
					amb.Candidates = append(amb.Candidates, manual[i].ElementLabel)
				}
				out.Ambiguities = append(out.Ambiguities, amb)
				log.Printf("[COMPARE] Warning: %s: %d manual entries match %q (%s); using the first", appID, len(res.Ties), verdict.Element, res.Kind)
			}

			entry := manual[res.Index]
			claimed[res.Index] = true
			record.ManualElement = entry.ElementLabel
			record.ManualStatus = NormalizeStatus(entry.RawStatus)
			record.ManualComment = entry.Comments
			record.MatchKind = res.Kind.String()
			if record.ManualStatus == verdict.Status {
				record.MatchResult = types.MatchResultMatch
				stats.Matching++
			} else {
				record.MatchResult = types.MatchResultMismatch
				stats.Mismatching++
			}
			out.Records = append(out.Records, record)
		}
	}

	for i, entry := range manual {
		if claimed[i] {
			continue
		}
		out.Records = append(out.Records, types.ComparisonRecord{
			ApplicationID: appID,
			Section:       entry.Section,
			Element:       entry.ElementLabel,
			ManualElement: entry.ElementLabel,
			AIStatus:      types.StatusNotFound,
			ManualStatus:  NormalizeStatus(entry.RawStatus),
			MatchResult:   types.MatchResultMissingInAI,
			ManualComment: entry.Comments,
		})
		stats.MissingInAI++
	}

	stats.SuccessRatePercent = successRate(stats.Matching, stats.Total)
	out.Stats = stats
	return out
}

// successRate returns matching/total as a percentage rounded to one decimal, or 0 when total is 0.
func successRate(matched, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(matched)/float64(total)*1000) / 10
}

// Aggregate summarizes many application comparisons.
// The mean rate weights every application equally regardless of how many elements it compared;
// the pooled rate weights every compared verdict equally.
func Aggregate(comparisons []types.ApplicationComparison) types.AggregateStats {
	agg := types.AggregateStats{Applications: len(comparisons)}
	if len(comparisons) == 0 {
		return agg
	}

	rateSum := 0.0
	for _, cmp := range comparisons {
		s := cmp.Stats
		agg.Total += s.Total
		agg.Matching += s.Matching
		agg.Mismatching += s.Mismatching
		agg.MissingInManual += s.MissingInManual
		agg.MissingInAI += s.MissingInAI
		rateSum += s.SuccessRatePercent
	}

	agg.MeanSuccessRatePercent = math.Round(rateSum/float64(len(comparisons))*10) / 10
	agg.PooledSuccessRatePercent = successRate(agg.Matching, agg.Total)
	return agg
}

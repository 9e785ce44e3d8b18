// Package reconcile compares AI verdicts against manual reviews and computes agreement statistics.
package reconcile

import (
	"regexp"
	"strings"

	"github.com/jonathan/compliance-reviewer/internal/types"
)

var (
	yesWordRe = regexp.MustCompile(`\byes\b`)
	noWordRe  = regexp.MustCompile(`\bno\b`)

	notApplicablePhrases = []string{"n/a", "not applicable", "not_applicable"}
	nonCompliantPhrases  = []string{"non-compliant", "non compliant", "noncompliant", "non_compliant", "not compliant"}
)

// NormalizeStatus maps human or model written status text onto the verdict taxonomy.
// Leading "Yes," / "No," answers are decided before any substring check, so prose such as
// "No, the organization does not demonstrate compliance" is NON_COMPLIANT.
// Empty input yields UNKNOWN.
func NormalizeStatus(raw string) types.Status {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return types.StatusUnknown
	}

	switch {
	case strings.HasPrefix(s, "yes,"):
		return types.StatusCompliant
	case strings.HasPrefix(s, "no,"):
		return types.StatusNonCompliant
	}

	// Negated and N/A forms contain "compliant" or "no" as substrings, so they are checked first.
	if s == "na" || containsAny(s, notApplicablePhrases) {
		return types.StatusNotApplicable
	}
	if containsAny(s, nonCompliantPhrases) || s == "nc" {
		return types.StatusNonCompliant
	}
	if strings.Contains(s, "compliant") || yesWordRe.MatchString(s) || s == "c" {
		return types.StatusCompliant
	}
	if noWordRe.MatchString(s) {
		return types.StatusNonCompliant
	}
	return types.StatusUnknown
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

//nolint:revive // types is a standard Go package name pattern
package types

import "sort"

// Status is the canonical compliance verdict taxonomy.
type Status string

const (
	StatusCompliant     Status = "COMPLIANT"
	StatusNonCompliant  Status = "NON_COMPLIANT"
	StatusNotApplicable Status = "NOT_APPLICABLE"
	// StatusUnknown is produced only when normalizing human-written status text.
	StatusUnknown Status = "UNKNOWN"
	// StatusNotFound marks the absent side of a comparison record.
	StatusNotFound Status = "NOT_FOUND"
)

// Placeholders substituted for fields the model left out.
const (
	NotSpecified = "Not specified"
	NotFound     = "Not found"
)

// ValidationVerdict is the normalized outcome for one element of one application.
type ValidationVerdict struct {
	Element          string `json:"element"`
	Requirement      string `json:"requirement"`
	Status           Status `json:"status"`
	Evidence         string `json:"evidence"`
	EvidenceLocation string `json:"evidenceLocation"`
	EvidenceSection  string `json:"evidenceSection"`
	Reasoning        string `json:"reasoning"`
}

// SectionResult buckets the verdicts of one section by status.
type SectionResult struct {
	CompliantItems     []ValidationVerdict `json:"compliantItems"`
	NonCompliantItems  []ValidationVerdict `json:"nonCompliantItems"`
	NotApplicableItems []ValidationVerdict `json:"notApplicableItems"`
}

// NewSectionResult returns a result with non-nil empty buckets so it serializes as [] rather than null.
func NewSectionResult() SectionResult {
	return SectionResult{
		CompliantItems:     []ValidationVerdict{},
		NonCompliantItems:  []ValidationVerdict{},
		NotApplicableItems: []ValidationVerdict{},
	}
}

// Add appends a verdict to the bucket matching its status.
// Anything other than COMPLIANT or NOT_APPLICABLE lands in the non-compliant bucket.
func (r *SectionResult) Add(v ValidationVerdict) {
	switch v.Status {
	case StatusCompliant:
		r.CompliantItems = append(r.CompliantItems, v)
	case StatusNotApplicable:
		r.NotApplicableItems = append(r.NotApplicableItems, v)
	default:
		v.Status = StatusNonCompliant
		r.NonCompliantItems = append(r.NonCompliantItems, v)
	}
}

// Total returns the number of verdicts across all buckets.
func (r SectionResult) Total() int {
	return len(r.CompliantItems) + len(r.NonCompliantItems) + len(r.NotApplicableItems)
}

// All returns every verdict in compliant, non-compliant, not-applicable order.
func (r SectionResult) All() []ValidationVerdict {
	all := make([]ValidationVerdict, 0, r.Total())
	all = append(all, r.CompliantItems...)
	all = append(all, r.NonCompliantItems...)
	all = append(all, r.NotApplicableItems...)
	return all
}

// ValidationResults maps section name to its bucketed verdicts.
type ValidationResults map[string]SectionResult

// Sections returns the section names in sorted order.
func (r ValidationResults) Sections() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Total returns the number of verdicts across all sections.
func (r ValidationResults) Total() int {
	total := 0
	for _, section := range r {
		total += section.Total()
	}
	return total
}

// StatusCounts tallies verdicts by status.
func (r ValidationResults) StatusCounts() map[Status]int {
	counts := map[Status]int{
		StatusCompliant:     0,
		StatusNonCompliant:  0,
		StatusNotApplicable: 0,
	}
	for _, section := range r {
		counts[StatusCompliant] += len(section.CompliantItems)
		counts[StatusNonCompliant] += len(section.NonCompliantItems)
		counts[StatusNotApplicable] += len(section.NotApplicableItems)
	}
	return counts
}

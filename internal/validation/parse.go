package validation

import (
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jonathan/compliance-reviewer/internal/llm"
	"github.com/jonathan/compliance-reviewer/internal/matching"
	"github.com/jonathan/compliance-reviewer/internal/schemas"
	"github.com/jonathan/compliance-reviewer/internal/types"
)

var (
	pageRefRe    = regexp.MustCompile(`(?i)\bpage\s*#?\s*(\d+)`)
	statusSepRe  = regexp.MustCompile(`[\s\-]+`)
	bareNumberRe = regexp.MustCompile(`^\d+$`)
)

// looseString accepts any JSON scalar and keeps its text. null decodes to "".
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = looseString(str)
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v.(type) {
	case float64, bool:
		*s = looseString(strings.TrimSpace(string(data)))
		return nil
	}
	return fmt.Errorf("expected a scalar, got %s", string(data))
}

type responseItem struct {
	Section          looseString `json:"section"`
	Element          looseString `json:"element"`
	Requirement      looseString `json:"requirement"`
	Status           looseString `json:"status"`
	Evidence         looseString `json:"evidence"`
	EvidenceLocation looseString `json:"evidence_location"`
	EvidenceSection  looseString `json:"evidence_section"`
	Reasoning        looseString `json:"reasoning"`
}

type response struct {
	Validations []responseItem `json:"validations"`
}

// Coverage records how completely a reply covered the rule set.
// Shortfalls are reported here rather than as errors so partial results stay usable.
type Coverage struct {
	Expected             int                  `json:"expected"`
	TotalValidations     int                  `json:"totalValidations"`
	Accepted             int                  `json:"accepted"`
	StatusCounts         map[types.Status]int `json:"statusCounts"`
	MissingSections      []string             `json:"missingSections,omitempty"`
	MissingElements      []string             `json:"missingElements,omitempty"`
	UnknownSections      []string             `json:"unknownSections,omitempty"`
	UnrecognizedStatuses []string             `json:"unrecognizedStatuses,omitempty"`
	InvalidCitations     []string             `json:"invalidCitations,omitempty"`
}

// Complete reports whether every expected element received exactly one verdict.
func (c *Coverage) Complete() bool {
	return len(c.MissingSections) == 0 && len(c.MissingElements) == 0 && c.Accepted == c.Expected
}

// Warnings returns human-readable descriptions of every recorded shortfall.
func (c *Coverage) Warnings() []string {
	var warnings []string
	if c.Accepted != c.Expected {
		warnings = append(warnings, fmt.Sprintf("expected %d validations, got %d", c.Expected, c.Accepted))
	}
	for _, s := range c.MissingSections {
		warnings = append(warnings, fmt.Sprintf("section %q missing from response", s))
	}
	for _, e := range c.MissingElements {
		warnings = append(warnings, fmt.Sprintf("element missing from response: %s", e))
	}
	for _, s := range c.UnknownSections {
		warnings = append(warnings, fmt.Sprintf("response section %q is not in the rule set", s))
	}
	for _, s := range c.UnrecognizedStatuses {
		warnings = append(warnings, fmt.Sprintf("unrecognized status treated as NON_COMPLIANT: %s", s))
	}
	for _, s := range c.InvalidCitations {
		warnings = append(warnings, fmt.Sprintf("citation beyond last page: %s", s))
	}
	return warnings
}

// merge folds another chapter's coverage into c.
func (c *Coverage) merge(other *Coverage) {
	c.Expected += other.Expected
	c.TotalValidations += other.TotalValidations
	c.Accepted += other.Accepted
	for status, n := range other.StatusCounts {
		c.StatusCounts[status] += n
	}
	c.MissingSections = append(c.MissingSections, other.MissingSections...)
	c.MissingElements = append(c.MissingElements, other.MissingElements...)
	c.UnknownSections = appendUnique(c.UnknownSections, other.UnknownSections...)
	c.UnrecognizedStatuses = append(c.UnrecognizedStatuses, other.UnrecognizedStatuses...)
}

func newCoverage(expected int) *Coverage {
	return &Coverage{
		Expected: expected,
		StatusCounts: map[types.Status]int{
			types.StatusCompliant:     0,
			types.StatusNonCompliant:  0,
			types.StatusNotApplicable: 0,
		},
	}
}

// ParseResponse converts a raw model reply into bucketed verdicts for every section in rules.
// The reply may be wrapped in a markdown fence. A reply that is not JSON, or lacks a
// "validations" array, yields a *MalformedResponseError. Every rule section is present in the
// result; sections the reply did not cover map to empty buckets and are listed in the Coverage.
func ParseResponse(raw string, rules []types.ComplianceChapter) (types.ValidationResults, *Coverage, error) {
	cleaned := llm.CleanJSONBlock(raw)
	if strings.TrimSpace(cleaned) == "" {
		return nil, nil, newMalformed("empty response", raw, nil)
	}
	if err := schemas.Validate(schemas.ValidationResponse, cleaned); err != nil {
		return nil, nil, newMalformed("response does not match the validations shape", raw, err)
	}

	var resp response
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, nil, newMalformed("failed to decode validations", raw, err)
	}

	coverage := newCoverage(RequirementCount(rules))
	coverage.TotalValidations = len(resp.Validations)

	results := make(types.ValidationResults, len(rules))
	for _, chapter := range rules {
		results[chapter.SectionName] = types.NewSectionResult()
	}

	placer := newSectionPlacer(rules)
	for _, item := range resp.Validations {
		idx, ok := placer.place(string(item.Section), string(item.Element))
		if !ok {
			name := strings.TrimSpace(string(item.Section))
			if name == "" {
				name = "(none)"
			}
			coverage.UnknownSections = appendUnique(coverage.UnknownSections, name)
			continue
		}
		chapter := rules[idx]

		verdict, recognized := buildVerdict(item, chapter, placer.matcher)
		if !recognized {
			coverage.UnrecognizedStatuses = append(coverage.UnrecognizedStatuses,
				fmt.Sprintf("%s: %s: %q", chapter.SectionName, verdict.Element, strings.TrimSpace(string(item.Status))))
		}

		section := results[chapter.SectionName]
		section.Add(verdict)
		results[chapter.SectionName] = section
		coverage.StatusCounts[verdict.Status]++
		coverage.Accepted++
	}

	recordMissing(results, rules, coverage)

	log.Printf("[VALIDATE] Parsed %d validations (%d accepted of %d expected): compliant=%d non_compliant=%d not_applicable=%d",
		coverage.TotalValidations, coverage.Accepted, coverage.Expected,
		coverage.StatusCounts[types.StatusCompliant],
		coverage.StatusCounts[types.StatusNonCompliant],
		coverage.StatusCounts[types.StatusNotApplicable])
	for _, w := range coverage.Warnings() {
		log.Printf("[VALIDATE] Warning: %s", w)
	}

	return results, coverage, nil
}

func buildVerdict(item responseItem, chapter types.ComplianceChapter, matcher *matching.Matcher) (types.ValidationVerdict, bool) {
	element := strings.TrimSpace(string(item.Element))
	if element == "" {
		element = types.NotSpecified
	}

	requirement := strings.TrimSpace(string(item.Requirement))
	if requirement == "" {
		requirement = types.NotSpecified
		for _, e := range chapter.Elements {
			if matcher.ElementsMatch(e.Label, element) {
				requirement = e.RequirementText
				break
			}
		}
	}

	status, recognized := parseStatus(string(item.Status))

	return types.ValidationVerdict{
		Element:          element,
		Requirement:      requirement,
		Status:           status,
		Evidence:         orDefault(string(item.Evidence), types.NotFound),
		EvidenceLocation: normalizeLocation(string(item.EvidenceLocation)),
		EvidenceSection:  orDefault(string(item.EvidenceSection), types.NotSpecified),
		Reasoning:        orDefault(string(item.Reasoning), types.NotSpecified),
	}, recognized
}

// parseStatus reads a canonical verdict status. Anything else is NON_COMPLIANT and reported as unrecognized.
func parseStatus(raw string) (types.Status, bool) {
	s := statusSepRe.ReplaceAllString(strings.ToUpper(strings.TrimSpace(raw)), "_")
	switch s {
	case "COMPLIANT":
		return types.StatusCompliant, true
	case "NON_COMPLIANT", "NONCOMPLIANT":
		return types.StatusNonCompliant, true
	case "NOT_APPLICABLE":
		return types.StatusNotApplicable, true
	default:
		return types.StatusNonCompliant, false
	}
}

// normalizeLocation renders a citation as "Page N", or "Not found" when no page can be read.
func normalizeLocation(raw string) string {
	s := strings.TrimSpace(raw)
	digits := ""
	if bareNumberRe.MatchString(s) {
		digits = s
	} else if m := pageRefRe.FindStringSubmatch(s); m != nil {
		digits = m[1]
	}
	if n, err := strconv.Atoi(digits); err == nil && n > 0 {
		return fmt.Sprintf("Page %d", n)
	}
	return types.NotFound
}

func orDefault(s, fallback string) string {
	if t := strings.TrimSpace(s); t != "" {
		return t
	}
	return fallback
}

// recordMissing lists sections with no verdicts and rule elements that no verdict covers.
func recordMissing(results types.ValidationResults, rules []types.ComplianceChapter, coverage *Coverage) {
	matcher := matching.NewMatcher(nil)
	for _, chapter := range rules {
		section := results[chapter.SectionName]
		if section.Total() == 0 {
			coverage.MissingSections = append(coverage.MissingSections, chapter.SectionName)
		}

		verdicts := section.All()
		used := make([]bool, len(verdicts))
		for _, element := range chapter.Elements {
			found := false
			for i, v := range verdicts {
				if !used[i] && matcher.ElementsMatch(element.Label, v.Element) {
					used[i] = true
					found = true
					break
				}
			}
			if !found {
				coverage.MissingElements = append(coverage.MissingElements, chapter.SectionName+": "+element.Label)
			}
		}
	}
}

// sectionPlacer maps the section (and, failing that, element) named by a reply item to a rule chapter.
// With a single chapter every item belongs to it.
type sectionPlacer struct {
	rules   []types.ComplianceChapter
	matcher *matching.Matcher
}

func newSectionPlacer(rules []types.ComplianceChapter) *sectionPlacer {
	return &sectionPlacer{rules: rules, matcher: matching.NewMatcher(nil)}
}

func (p *sectionPlacer) place(section, element string) (int, bool) {
	if len(p.rules) == 1 {
		return 0, true
	}
	section = strings.TrimSpace(section)
	if section != "" {
		for i, c := range p.rules {
			if c.SectionName == section {
				return i, true
			}
		}
		for i, c := range p.rules {
			if strings.EqualFold(c.SectionName, section) || strings.EqualFold(c.ChapterTitle, section) {
				return i, true
			}
		}
		if i, ok := p.unique(func(c types.ComplianceChapter) bool {
			return matching.SectionsAgree(c.SectionName, section)
		}); ok {
			return i, true
		}
	}

	if section == "" && strings.TrimSpace(element) != "" {
		return p.unique(func(c types.ComplianceChapter) bool {
			for _, e := range c.Elements {
				if p.matcher.ElementsMatch(e.Label, element) {
					return true
				}
			}
			return false
		})
	}
	return -1, false
}

func (p *sectionPlacer) unique(pred func(types.ComplianceChapter) bool) (int, bool) {
	found := -1
	for i, c := range p.rules {
		if !pred(c) {
			continue
		}
		if found >= 0 {
			return -1, false
		}
		found = i
	}
	return found, found >= 0
}

func appendUnique(list []string, values ...string) []string {
	for _, v := range values {
		exists := false
		for _, existing := range list {
			if existing == v {
				exists = true
				break
			}
		}
		if !exists {
			list = append(list, v)
		}
	}
	return list
}

// CheckCitations returns the verdicts whose "Page N" location is beyond pageCount.
// A pageCount of 0 means the text carried no page markers and nothing is checked.
func CheckCitations(results types.ValidationResults, pageCount int) []string {
	if pageCount <= 0 {
		return nil
	}
	var invalid []string
	for _, section := range results.Sections() {
		for _, v := range results[section].All() {
			m := pageRefRe.FindStringSubmatch(v.EvidenceLocation)
			if m == nil {
				continue
			}
			if n, err := strconv.Atoi(m[1]); err == nil && n > pageCount {
				invalid = append(invalid, fmt.Sprintf("%s: %s: %s", section, v.Element, v.EvidenceLocation))
			}
		}
	}
	sort.Strings(invalid)
	return invalid
}

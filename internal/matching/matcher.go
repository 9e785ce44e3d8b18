// Package matching decides whether two independently authored element labels refer to the same compliance element.
package matching

import (
	"regexp"
	"strings"
)

// MatchKind ranks how two labels were found to agree. Larger values are stronger.
type MatchKind int

const (
	// MatchNone means the labels do not refer to the same element.
	MatchNone MatchKind = iota
	// MatchLetter means only the element letter agreed, inside agreeing sections.
	MatchLetter
	// MatchRename means the rename table maps one canonical form to the other.
	MatchRename
	// MatchExact means the canonical forms are equal.
	MatchExact
)

func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchRename:
		return "rename"
	case MatchLetter:
		return "letter"
	default:
		return "none"
	}
}

var (
	prefixPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^requirement\s+\d+(?:\.\d+)*\s*[:\-\x{2013}\x{2014}]?\s*`),
		regexp.MustCompile(`^\d+(?:\.\d+)*\s*[:\-\x{2013}\x{2014}]\s*`),
		regexp.MustCompile(`(?i)^element\s+[a-z]\s*[:\-\x{2013}\x{2014}.)]\s*`),
		regexp.MustCompile(`(?i)^[a-z][.)]\s+`),
	}
	suffixPattern = regexp.MustCompile(`(?i)\s*-?\s*\(\s*(?:fpg|not\s+applicable\s+for\s+look[\s-]?alikes?)\s*\)\s*$`)

	elementLetterRe = regexp.MustCompile(`(?i)^\s*element\s+([a-z])\b`)
	dottedLetterRe  = regexp.MustCompile(`(?i)^\s*([a-z])[.)]\s+`)
)

// Canonicalize reduces an element label to the form used for identity comparison.
// Numbering prefixes and known non-semantic suffixes are stripped repeatedly, then the
// result is lowercased with internal whitespace collapsed.
func Canonicalize(label string) string {
	s := strings.TrimSpace(label)
	for {
		before := s
		for _, re := range prefixPatterns {
			s = strings.TrimSpace(re.ReplaceAllString(s, ""))
		}
		s = strings.TrimSpace(suffixPattern.ReplaceAllString(s, ""))
		if s == before {
			break
		}
	}
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// ElementLetter returns the lowercase element letter of labels like "Element b - ..." or "b. ...".
func ElementLetter(label string) (string, bool) {
	s := strings.TrimSpace(label)
	for _, re := range prefixPatterns[:2] {
		s = strings.TrimSpace(re.ReplaceAllString(s, ""))
	}
	if m := elementLetterRe.FindStringSubmatch(s); m != nil {
		return strings.ToLower(m[1]), true
	}
	if m := dottedLetterRe.FindStringSubmatch(s); m != nil {
		return strings.ToLower(m[1]), true
	}
	return "", false
}

// SectionsAgree reports whether two section names plausibly name the same chapter.
// An empty section never agrees with anything.
func SectionsAgree(a, b string) bool {
	ca, cb := Canonicalize(a), Canonicalize(b)
	if ca == "" || cb == "" {
		return false
	}
	return ca == cb || strings.Contains(ca, cb) || strings.Contains(cb, ca)
}

// Matcher compares element labels using canonical forms and a configurable rename table.
type Matcher struct {
	renames map[string]map[string]struct{}
}

// NewMatcher builds a matcher from a rename table. A nil table disables rename matching.
func NewMatcher(table RenameTable) *Matcher {
	m := &Matcher{renames: make(map[string]map[string]struct{})}
	for _, pair := range table {
		from, to := Canonicalize(pair.From), Canonicalize(pair.To)
		if from == "" || to == "" || from == to {
			continue
		}
		m.link(from, to)
		m.link(to, from)
	}
	return m
}

func (m *Matcher) link(from, to string) {
	if m.renames[from] == nil {
		m.renames[from] = make(map[string]struct{})
	}
	m.renames[from][to] = struct{}{}
}

// ElementsMatch reports whether two labels name the same element by canonical equality or a known rename.
func (m *Matcher) ElementsMatch(a, b string) bool {
	return m.labelMatch(a, b) != MatchNone
}

func (m *Matcher) labelMatch(a, b string) MatchKind {
	ca, cb := Canonicalize(a), Canonicalize(b)
	if ca == "" || cb == "" {
		return MatchNone
	}
	if ca == cb {
		return MatchExact
	}
	if _, ok := m.renames[ca][cb]; ok {
		return MatchRename
	}
	return MatchNone
}

// MatchInSection compares two labels with their section context.
// The letter-only fallback is used only when both sections are known and agree.
func (m *Matcher) MatchInSection(sectionA, labelA, sectionB, labelB string) MatchKind {
	if kind := m.labelMatch(labelA, labelB); kind != MatchNone {
		return kind
	}
	if !SectionsAgree(sectionA, sectionB) {
		return MatchNone
	}
	la, okA := ElementLetter(labelA)
	lb, okB := ElementLetter(labelB)
	if okA && okB && la == lb {
		return MatchLetter
	}
	return MatchNone
}

// Candidate is one label that may be claimed by Resolve.
type Candidate struct {
	Section string
	Label   string
}

// Resolution is the outcome of resolving one label against a candidate list.
// Index is -1 when nothing matched. Ties lists every unclaimed candidate that matched
// with the winning kind, in input order; more than one entry means the match was ambiguous.
type Resolution struct {
	Index int
	Kind  MatchKind
	Ties  []int
}

// Ambiguous reports whether more than one candidate matched equally well.
func (r Resolution) Ambiguous() bool {
	return len(r.Ties) > 1
}

// Resolve picks the best unclaimed candidate for (section, label).
// Stronger kinds win (exact, then rename, then letter). Within a kind, candidates whose
// section agrees with section outrank those that do not; among equals the first in input order wins.
// claimed may be nil or shorter than candidates; missing entries count as unclaimed.
func (m *Matcher) Resolve(section, label string, candidates []Candidate, claimed []bool) Resolution {
	best := Resolution{Index: -1, Kind: MatchNone}
	bestAgrees := false
	for i, c := range candidates {
		if i < len(claimed) && claimed[i] {
			continue
		}
		kind := m.MatchInSection(section, label, c.Section, c.Label)
		if kind == MatchNone {
			continue
		}
		agrees := SectionsAgree(section, c.Section)
		switch {
		case kind > best.Kind, kind == best.Kind && agrees && !bestAgrees:
			best = Resolution{Index: i, Kind: kind, Ties: []int{i}}
			bestAgrees = agrees
		case kind == best.Kind && agrees == bestAgrees:
			best.Ties = append(best.Ties, i)
		}
	}
	return best
}

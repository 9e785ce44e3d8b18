package manual

import (
	"log"
	"strings"

	"github.com/jonathan/compliance-reviewer/internal/types"
)

type column int

const (
	colSection column = iota
	colLetter
	colName
	colStatus
	colComments
	colApplication
	numColumns
)

// headerAliases maps lowercased header text to the column it names.
var headerAliases = map[string]column{
	"section":                  colSection,
	"chapter":                  colSection,
	"program requirement":      colSection,
	"requirement area":         colSection,
	"letter":                   colLetter,
	"element letter":           colLetter,
	"element":                  colName,
	"element name":             colName,
	"element label":            colName,
	"name":                     colName,
	"requirement element":      colName,
	"requirement":              colName,
	"question":                 colName,
	"question text":            colName,
	"status":                   colStatus,
	"compliance":               colStatus,
	"compliance status":        colStatus,
	"compliant":                colStatus,
	"response":                 colStatus,
	"answer":                   colStatus,
	"determination":            colStatus,
	"comments":                 colComments,
	"comment":                  colComments,
	"notes":                    colComments,
	"reviewer comments":        colComments,
	"project officer notes":    colComments,
	"project officer comments": colComments,
	"application":              colApplication,
	"application id":           colApplication,
	"application number":       colApplication,
	"app id":                   colApplication,
	"tracking number":          colApplication,
	"tracking #":               colApplication,
	"tracking no":              colApplication,
	"grant number":             colApplication,
}

// FormatLabel builds the element label used for manual entries: "Element <letter> - <name>".
// An empty letter leaves the name unchanged.
func FormatLabel(letter, name string) string {
	name = strings.Join(strings.Fields(name), " ")
	letter = strings.ToLower(strings.Trim(strings.TrimSpace(letter), ".):"))
	if letter == "" {
		return name
	}
	return "Element " + letter + " - " + name
}

// EntriesFromRows converts sheet rows into manual review entries.
// The first row naming both an element and a status column is the header; rows above it are ignored.
// A blank section or application cell inherits the value above it. Without a section column, a row
// holding a single value is read as a section heading. Status text is kept exactly as written.
// Sheets that track several applications carry an application column; see ForApplication.
func EntriesFromRows(source string, rows [][]string) ([]types.ManualReviewEntry, error) {
	headerAt, cols := findHeader(rows)
	if headerAt < 0 {
		return nil, &HeaderError{Source: source, Missing: []string{"element", "status"}}
	}

	entries := make([]types.ManualReviewEntry, 0, len(rows)-headerAt-1)
	section, application := "", ""
	for _, row := range rows[headerAt+1:] {
		cell := func(c column) string {
			i := cols[c]
			if i < 0 || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		if nonEmpty(row) == 0 {
			continue
		}
		if a := cell(colApplication); a != "" {
			application = a
			if nonEmpty(row) == 1 {
				continue
			}
		}
		if cols[colSection] >= 0 {
			if s := cell(colSection); s != "" {
				section = s
			}
		} else if nonEmpty(row) == 1 && cell(colStatus) == "" && cell(colLetter) == "" {
			section = firstNonEmpty(row)
			continue
		}

		name := cell(colName)
		if name == "" {
			continue
		}
		entries = append(entries, types.ManualReviewEntry{
			ApplicationID: application,
			Section:       section,
			ElementLabel:  FormatLabel(cell(colLetter), name),
			RawStatus:     cell(colStatus),
			Comments:      cell(colComments),
		})
	}
	return entries, nil
}

// ForApplication keeps the entries recorded for appID. Entries without an application ID are
// kept for every application, so lists that never name one pass through unchanged.
// IDs compare case-insensitively and ignore surrounding space.
func ForApplication(entries []types.ManualReviewEntry, appID string) []types.ManualReviewEntry {
	tagged := false
	for _, e := range entries {
		if strings.TrimSpace(e.ApplicationID) != "" {
			tagged = true
			break
		}
	}
	if !tagged {
		return entries
	}

	want := strings.TrimSpace(appID)
	kept := make([]types.ManualReviewEntry, 0, len(entries))
	for _, e := range entries {
		id := strings.TrimSpace(e.ApplicationID)
		if id == "" || strings.EqualFold(id, want) {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		log.Printf("[MANUAL] Warning: none of %d manual entries belong to application %s", len(entries), appID)
	}
	return kept
}

func findHeader(rows [][]string) (int, [numColumns]int) {
	for r, row := range rows {
		var cols [numColumns]int
		for i := range cols {
			cols[i] = -1
		}
		for i, cell := range row {
			key := strings.ToLower(strings.Join(strings.Fields(cell), " "))
			if c, ok := headerAliases[key]; ok && cols[c] < 0 {
				cols[c] = i
			}
		}
		if cols[colName] >= 0 && cols[colStatus] >= 0 {
			return r, cols
		}
	}
	return -1, [numColumns]int{}
}

func nonEmpty(row []string) int {
	n := 0
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			n++
		}
	}
	return n
}

func firstNonEmpty(row []string) string {
	for _, cell := range row {
		if s := strings.TrimSpace(cell); s != "" {
			return s
		}
	}
	return ""
}

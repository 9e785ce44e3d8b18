// Package ingestion prepares extracted application text for validation.
package ingestion

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// pageMarkerRe matches upstream page-boundary markers such as "========== PAGE 3 ==========".
	pageMarkerRe = regexp.MustCompile(`^=+\s*PAGE\s+(\d+)\s*=+$`)

	equalsRunRe       = regexp.MustCompile(`={10,}`)
	pageLineRe        = regexp.MustCompile(`(?i)^\s*page\s+\d+\s*$`)
	pageNumberLineRe  = regexp.MustCompile(`(?i)^\s*page\s+number\s*:\s*\d+\s*$`)
	trackingLineRe    = regexp.MustCompile(`(?i)^\s*tracking\s+number\b.*$`)
	horizontalSpaceRe = regexp.MustCompile(`[ \t\f\v\x{00A0}]+`)
	pageFooterRe      = regexp.MustCompile(`(?i)\bpage\s+\d+\s+of\s+\d+\b`)
	dateTokenRe       = regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`)
	boxDrawingRe      = regexp.MustCompile(`[\x{2500}-\x{257F}]+`)
	textTagRe         = regexp.MustCompile(`\[TEXT\]`)
	tableTagRe        = regexp.MustCompile(`\[TABLE[^\]\n]*\]:?`)
	separatorRe       = regexp.MustCompile(`_{5,}|-{5,}|\.{5,}`)
	excessNewlinesRe  = regexp.MustCompile(`\n{3,}`)
)

// NormalizeText strips layout noise from extracted application text.
// It is total and deterministic, never grows its input, and NormalizeText(NormalizeText(x)) == NormalizeText(x).
// Page-boundary markers are kept because page citations are resolved against them.
func NormalizeText(content string) string {
	if content == "" {
		return ""
	}

	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	lines := strings.Split(content, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		cleaned = append(cleaned, normalizeLine(line))
	}

	result := strings.Join(cleaned, "\n")
	result = excessNewlinesRe.ReplaceAllString(result, "\n\n")

	// Blank lines carry no content for the model; drop them entirely.
	kept := make([]string, 0, len(cleaned))
	for _, line := range strings.Split(result, "\n") {
		if line != "" {
			kept = append(kept, line)
		}
	}

	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// normalizeLine rewrites a single line until it stops changing.
// Removing one run can join its neighbours into a new run, so the pass count depends on the input.
// The loop ends because every changing pass shrinks the line or removes a '['.
func normalizeLine(line string) string {
	for {
		next := normalizeLineOnce(line)
		if next == line {
			return next
		}
		line = next
	}
}

func normalizeLineOnce(line string) string {
	trimmed := strings.TrimSpace(line)
	if IsPageMarker(trimmed) {
		return strings.Join(strings.Fields(trimmed), " ")
	}

	line = equalsRunRe.ReplaceAllString(line, "")

	if pageLineRe.MatchString(line) || pageNumberLineRe.MatchString(line) || trackingLineRe.MatchString(line) {
		return ""
	}

	line = horizontalSpaceRe.ReplaceAllString(line, " ")
	line = pageFooterRe.ReplaceAllString(line, "")
	line = dateTokenRe.ReplaceAllString(line, "")
	line = boxDrawingRe.ReplaceAllString(line, " ")
	line = textTagRe.ReplaceAllString(line, "")
	line = tableTagRe.ReplaceAllString(line, "TABLE: ")
	line = separatorRe.ReplaceAllString(line, "")

	// Substitutions above can leave doubled or edge spaces behind.
	line = horizontalSpaceRe.ReplaceAllString(line, " ")
	return strings.TrimSpace(line)
}

// IsPageMarker reports whether a trimmed line is an upstream page-boundary marker.
func IsPageMarker(line string) bool {
	return pageMarkerRe.MatchString(strings.TrimSpace(line))
}

// PageCount returns the highest page number announced by a page marker, or 0 when there are none.
func PageCount(text string) int {
	highest := 0
	for _, line := range strings.Split(text, "\n") {
		m := pageMarkerRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(m[1], "%d", &n); err == nil && n > highest {
			highest = n
		}
	}
	return highest
}

// IngestFromFile reads an extracted-text file and returns normalized text with metadata.
// PDF inputs are handled by the extract package before reaching this point.
func IngestFromFile(path string) (string, *Metadata, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, fmt.Errorf("file not found: %w", err)
		}
		return "", nil, fmt.Errorf("failed to read file: %w", err)
	}

	normalized := NormalizeText(string(content))
	return normalized, NewMetadata(normalized, path), nil
}

// WriteOutput writes the normalized text and metadata next to each other in outDir.
func WriteOutput(outDir, baseName, normalized string, metadata *Metadata) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	textPath := filepath.Join(outDir, baseName+".normalized.txt")
	if err := os.WriteFile(textPath, []byte(normalized), 0644); err != nil {
		return fmt.Errorf("failed to write normalized text file: %w", err)
	}

	metaJSON, err := metadata.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	metaPath := filepath.Join(outDir, baseName+".meta.json")
	if err := os.WriteFile(metaPath, metaJSON, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	return nil
}

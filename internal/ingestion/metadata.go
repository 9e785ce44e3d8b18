package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// announcementRe matches HRSA funding announcement numbers such as "HRSA-26-004".
var announcementRe = regexp.MustCompile(`HRSA-(\d{2})-(\d{3})`)

// Metadata describes one ingested application document.
type Metadata struct {
	SourcePath         string `json:"source_path,omitempty"`
	Timestamp          string `json:"timestamp"`   // RFC3339 format
	Fingerprint        string `json:"fingerprint"` // SHA256 hex digest of the normalized text
	AnnouncementNumber string `json:"announcement_number,omitempty"`
	YearCode           string `json:"year_code,omitempty"` // two-digit year from the announcement number
	PageCount          int    `json:"page_count"`
}

// NewMetadata creates metadata for normalized text with the current timestamp.
func NewMetadata(normalized string, sourcePath string) *Metadata {
	meta := &Metadata{
		SourcePath:  sourcePath,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Fingerprint: Fingerprint(normalized),
		PageCount:   PageCount(normalized),
	}
	if number, year, ok := DetectAnnouncement(normalized); ok {
		meta.AnnouncementNumber = number
		meta.YearCode = year
	}
	return meta
}

// Fingerprint returns the SHA256 hex digest used as the verdict cache key.
func Fingerprint(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

// DetectAnnouncement returns the first HRSA announcement number in text and its two-digit year.
func DetectAnnouncement(text string) (number string, yearCode string, ok bool) {
	m := announcementRe.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	return m[0], m[1], true
}

// DetectAnnouncementYear returns the two-digit year of the first announcement number in text.
func DetectAnnouncementYear(text string) (string, bool) {
	_, year, ok := DetectAnnouncement(text)
	return year, ok
}

// ToJSON marshals Metadata to pretty-printed JSON
func (m *Metadata) ToJSON() ([]byte, error) {
	jsonBytes, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata to JSON: %w", err)
	}
	return jsonBytes, nil
}

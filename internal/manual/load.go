package manual

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/jonathan/compliance-reviewer/internal/types"
)

// LoadFile reads manual entries from a .xlsx, .csv or .json file, chosen by extension.
// A JSON file holds either an array of entries or {"entries": [...]}.
func LoadFile(path string) ([]types.ManualReviewEntry, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return LoadSpreadsheet(path)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open manual review %s: %w", path, err)
		}
		defer func() { _ = f.Close() }()
		return ReadCSV(path, f)
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read manual review %s: %w", path, err)
		}
		return ParseJSON(data)
	default:
		return nil, fmt.Errorf("unsupported manual review file type %q", filepath.Ext(path))
	}
}

// LoadSpreadsheet reads entries from every sheet of an Excel workbook that has a recognizable header row.
func LoadSpreadsheet(path string) ([]types.ManualReviewEntry, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return readWorkbook(path, f)
}

// ReadSpreadsheet is LoadSpreadsheet over an open stream.
func ReadSpreadsheet(source string, r io.Reader) ([]types.ManualReviewEntry, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", source, err)
	}
	defer func() { _ = f.Close() }()
	return readWorkbook(source, f)
}

func readWorkbook(source string, f *excelize.File) ([]types.ManualReviewEntry, error) {
	var entries []types.ManualReviewEntry
	var lastErr error
	found := false
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q of %s: %w", sheet, source, err)
		}
		sheetEntries, err := EntriesFromRows(source+"#"+sheet, rows)
		if err != nil {
			lastErr = err
			continue
		}
		found = true
		entries = append(entries, sheetEntries...)
	}
	if !found {
		if lastErr == nil {
			lastErr = &HeaderError{Source: source, Missing: []string{"element", "status"}}
		}
		return nil, lastErr
	}
	log.Printf("[MANUAL] Read %d entries from %s", len(entries), source)
	return entries, nil
}

// ReadCSV reads entries from comma-separated rows. Rows may have differing field counts.
func ReadCSV(source string, r io.Reader) ([]types.ManualReviewEntry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV %s: %w", source, err)
	}
	entries, err := EntriesFromRows(source, rows)
	if err != nil {
		return nil, err
	}
	log.Printf("[MANUAL] Read %d entries from %s", len(entries), source)
	return entries, nil
}

// ParseJSON decodes entries stored as an array or under an "entries" key.
func ParseJSON(data []byte) ([]types.ManualReviewEntry, error) {
	trimmed := strings.TrimSpace(string(data))
	var entries []types.ManualReviewEntry
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("failed to parse manual entries: %w", err)
		}
		return entries, nil
	}

	var wrapped struct {
		Entries []types.ManualReviewEntry `json:"entries"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse manual entries: %w", err)
	}
	return wrapped.Entries, nil
}

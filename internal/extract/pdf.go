// Package extract produces page-annotated application text from source documents.
// Its output uses the same "========== PAGE N ==========" markers and [TEXT] tags as the
// upstream layout-analysis service, so normalized text looks the same regardless of origin.
package extract

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PageMarker renders the boundary line that opens page n.
func PageMarker(n int) string {
	return fmt.Sprintf("========== PAGE %d ==========", n)
}

// FormatPages joins per-page plain text into the annotated format.
// Each non-blank line is tagged [TEXT]; empty pages keep their marker so page numbers stay aligned.
func FormatPages(pages []string) string {
	var sb strings.Builder
	for i, page := range pages {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(PageMarker(i + 1))
		sb.WriteString("\n")
		for _, line := range strings.Split(strings.ReplaceAll(page, "\r\n", "\n"), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			sb.WriteString("[TEXT] ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// PDFText extracts the text layer of the PDF at path. Scanned pages without a text layer come back empty.
func PDFText(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %w", err)
		}
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat PDF: %w", err)
	}
	return ReadPDF(ctx, f, info.Size())
}

// ReadPDF is PDFText over an open document.
func ReadPDF(ctx context.Context, r io.ReaderAt, size int64) (string, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("failed to parse PDF: %w", err)
	}

	total := reader.NumPage()
	pages := make([]string, total)
	empty := 0
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			empty++
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			log.Printf("[EXTRACT] Warning: page %d: %v", i, err)
			empty++
			continue
		}
		if strings.TrimSpace(content) == "" {
			empty++
		}
		pages[i-1] = content
	}

	if empty > 0 {
		log.Printf("[EXTRACT] %d of %d pages had no text layer", empty, total)
	}
	return FormatPages(pages), nil
}

// LoadText returns annotated text for a .pdf file, or the file contents for anything else.
func LoadText(ctx context.Context, path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return PDFText(ctx, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %w", err)
		}
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(data), nil
}

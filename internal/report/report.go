// Package report writes validation and comparison results as JSON documents and Excel workbooks.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/jonathan/compliance-reviewer/internal/storage"
)

// WriteJSON stores v as indented JSON under key.
func WriteJSON(ctx context.Context, s storage.Storage, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report %s: %w", key, err)
	}
	if err := s.Put(ctx, key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to store report %s: %w", key, err)
	}
	return nil
}

// WriteWorkbook stores an Excel workbook under key and closes it.
func WriteWorkbook(ctx context.Context, s storage.Storage, key string, f *excelize.File) error {
	defer func() { _ = f.Close() }()
	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("failed to render workbook %s: %w", key, err)
	}
	if err := s.Put(ctx, key, buf); err != nil {
		return fmt.Errorf("failed to store workbook %s: %w", key, err)
	}
	return nil
}

// sheetWriter appends rows to one sheet.
type sheetWriter struct {
	f     *excelize.File
	sheet string
	row   int
	width int
}

func newSheet(f *excelize.File, name string, first bool) (*sheetWriter, error) {
	if first {
		if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
			return nil, err
		}
	} else if _, err := f.NewSheet(name); err != nil {
		return nil, err
	}
	return &sheetWriter{f: f, sheet: name}, nil
}

func (w *sheetWriter) header(headerStyle int, cols ...string) error {
	values := make([]interface{}, len(cols))
	for i, c := range cols {
		values[i] = c
	}
	if err := w.append(values...); err != nil {
		return err
	}
	w.width = len(cols)
	last, err := excelize.CoordinatesToCellName(len(cols), w.row)
	if err != nil {
		return err
	}
	return w.f.SetCellStyle(w.sheet, fmt.Sprintf("A%d", w.row), last, headerStyle)
}

func (w *sheetWriter) append(values ...interface{}) error {
	w.row++
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	return w.f.SetSheetRow(w.sheet, cell, &values)
}

// styleRow applies a style to the last written row.
func (w *sheetWriter) styleRow(style int) error {
	last, err := excelize.CoordinatesToCellName(w.width, w.row)
	if err != nil {
		return err
	}
	return w.f.SetCellStyle(w.sheet, fmt.Sprintf("A%d", w.row), last, style)
}

// finish adds an autofilter over the written table and sets column widths.
func (w *sheetWriter) finish(widths ...float64) error {
	if w.width == 0 {
		return nil
	}
	for i, width := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := w.f.SetColWidth(w.sheet, col, col, width); err != nil {
			return err
		}
	}
	if w.row < 2 {
		return nil
	}
	last, err := excelize.CoordinatesToCellName(w.width, w.row)
	if err != nil {
		return err
	}
	return w.f.AutoFilter(w.sheet, "A1:"+last, nil)
}

type styles struct {
	header   int
	good     int
	bad      int
	missing  int
	emphasis int
}

func newStyles(f *excelize.File) (styles, error) {
	var s styles
	var err error
	fill := func(color string) excelize.Fill {
		return excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}}
	}
	if s.header, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, Fill: fill("#D9E1F2")}); err != nil {
		return s, err
	}
	if s.good, err = f.NewStyle(&excelize.Style{Fill: fill("#E2EFDA")}); err != nil {
		return s, err
	}
	if s.bad, err = f.NewStyle(&excelize.Style{Fill: fill("#FCE4D6")}); err != nil {
		return s, err
	}
	if s.missing, err = f.NewStyle(&excelize.Style{Fill: fill("#FFF2CC")}); err != nil {
		return s, err
	}
	if s.emphasis, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err != nil {
		return s, err
	}
	return s, nil
}

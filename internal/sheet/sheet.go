// Package sheet writes tabular reports to xlsx workbooks.
package sheet

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// Sheet is one worksheet. Rows are keyed by column name; columns appear in
// order of first use unless Columns fixes them.
type Sheet struct {
	Name    string
	Columns []string
	Rows    []map[string]any
}

func (s *Sheet) Add(row map[string]any, order ...string) {
	for _, c := range order {
		if _, ok := row[c]; ok {
			s.addColumn(c)
		}
	}
	s.Rows = append(s.Rows, row)
}

func (s *Sheet) addColumn(c string) {
	for _, have := range s.Columns {
		if have == c {
			return
		}
	}
	s.Columns = append(s.Columns, c)
}

// Write saves the sheets into a new workbook at path, replacing any file
// already there.
func Write(path string, sheets ...Sheet) error {
	if len(sheets) == 0 {
		return fmt.Errorf("no sheets to write")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.Name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return err
		}
		if err := writeRows(f, s); err != nil {
			return fmt.Errorf("sheet %s: %w", s.Name, err)
		}
	}
	f.SetActiveSheet(0)
	return f.SaveAs(path)
}

func writeRows(f *excelize.File, s Sheet) error {
	header := make([]any, len(s.Columns))
	for i, c := range s.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(s.Name, "A1", &header); err != nil {
		return err
	}
	for r, row := range s.Rows {
		for i, c := range s.Columns {
			v, ok := row[c]
			if !ok || v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(i+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(s.Name, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

package importjob

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// LoadPayload reads an upload from disk and returns it as CSV text.
// Spreadsheets are converted using their first sheet.
func LoadPayload(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return XLSXToCSV(path, "")
	default:
		b, err := os.ReadFile(path)
		if err != nil {
			return "", eris.Wrapf(err, "importjob: read %s", path)
		}
		return string(b), nil
	}
}

// XLSXToCSV converts one sheet of a workbook to CSV. An empty sheetName
// selects the first sheet.
func XLSXToCSV(path, sheetName string) (string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return "", eris.Wrap(err, "xlsx: open file")
	}
	sheet, err := pickSheet(f, sheetName)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		if err := w.Write(rowToStrings(row)); err != nil {
			return "", eris.Wrap(err, "xlsx: write csv row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", eris.Wrap(err, "xlsx: flush csv")
	}
	return buf.String(), nil
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

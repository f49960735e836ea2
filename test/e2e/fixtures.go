package e2e

import (
	"bytes"
	"encoding/csv"

	"github.com/xuri/excelize/v2"
)

// Formats are the workbook formats E2E tests write the corpus as.
var Formats = []string{".xlsx", ".csv"}

// WriteWorkbook encodes rows as an xlsx or csv file, chosen by ext.
func WriteWorkbook(ext string, rows [][]string) ([]byte, error) {
	switch ext {
	case ".csv":
		return writeCSV(rows)
	default:
		return writeXLSX("Sheet1", rows)
	}
}

func writeCSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeXLSX(sheet string, rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return nil, err
		}
		values := make([]interface{}, len(row))
		for i, v := range row {
			values[i] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

package audit

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ExcelWriter writes tabular data to an xlsx workbook.
type ExcelWriter interface {
	// AddSheet adds a new sheet with the given name and makes it current.
	AddSheet(name string) error

	// WriteHeader writes column headers to the current sheet.
	WriteHeader(columns []string) error

	// WriteRow writes a data row to the current sheet.
	WriteRow(row []interface{}) error

	// Save writes the workbook to w.
	Save(w io.Writer) error

	// Close releases resources.
	Close() error
}

// ExcelizeWriter implements ExcelWriter using excelize library.
type ExcelizeWriter struct {
	file         *excelize.File
	currentSheet string
	currentRow   int
}

// NewExcelizeWriter creates a new Excel writer.
func NewExcelizeWriter() ExcelWriter {
	return &ExcelizeWriter{
		file: excelize.NewFile(),
	}
}

// AddSheet adds a new sheet with the given name.
func (w *ExcelizeWriter) AddSheet(name string) error {
	// Excel limits sheet names to 31 characters.
	if len(name) > 31 {
		name = name[:31]
	}

	if w.currentSheet == "" {
		// The workbook starts with a default sheet; reuse it.
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}

	w.currentSheet = name
	w.currentRow = 1
	return nil
}

// WriteHeader writes column headers to current sheet.
func (w *ExcelizeWriter) WriteHeader(columns []string) error {
	row := make([]interface{}, len(columns))
	for i, col := range columns {
		row[i] = col
	}
	startRow := w.currentRow
	if err := w.WriteRow(row); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err == nil && len(columns) > 0 {
		startCell, _ := excelize.CoordinatesToCellName(1, startRow)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), startRow)
		_ = w.file.SetCellStyle(w.currentSheet, startCell, endCell, style)
		_ = w.file.SetPanes(w.currentSheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      startRow,
			TopLeftCell: fmt.Sprintf("A%d", startRow+1),
			ActivePane:  "bottomLeft",
		})
	}
	return nil
}

// WriteRow writes a data row to current sheet.
func (w *ExcelizeWriter) WriteRow(row []interface{}) error {
	if w.currentSheet == "" {
		return fmt.Errorf("no active sheet")
	}

	cell, err := excelize.CoordinatesToCellName(1, w.currentRow)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.currentSheet, cell, &row); err != nil {
		return fmt.Errorf("write row %d: %w", w.currentRow, err)
	}

	w.currentRow++
	return nil
}

// Save writes the Excel file to the writer.
func (w *ExcelizeWriter) Save(wr io.Writer) error {
	return w.file.Write(wr)
}

// Close releases resources.
func (w *ExcelizeWriter) Close() error {
	return w.file.Close()
}

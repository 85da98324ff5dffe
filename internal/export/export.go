// Package export renders ledger rows as downloadable CSV and XLSX files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"ledger/internal/core"
)

const (
	ContentTypeCSV  = "text/csv"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// UnknownOwner is shown when a row's owner no longer exists.
const UnknownOwner = "Unknown"

// flushEvery bounds how many CSV rows are buffered before reaching the client.
const flushEvery = 100

// FileName returns "{revenue|expenses}-export-YYYY-MM-DD.{ext}" for the day of now.
func FileName(typ core.TransactionType, now time.Time, ext string) string {
	return fmt.Sprintf("%s-export-%s.%s", typ.Plural(), now.Format(core.DateLayout), ext)
}

// ContentDisposition is the attachment header value for name.
func ContentDisposition(name string) string {
	return fmt.Sprintf("attachment; filename=%q", name)
}

// Columns returns the header row for typ. Only revenue carries the link column.
func Columns(typ core.TransactionType) []string {
	cols := []string{"Date", "Description", "Amount", "Created By"}
	if typ == core.Revenue {
		cols = append(cols, "Linked Expense")
	}
	return cols
}

// Record returns the cells of one row in Columns order.
func Record(typ core.TransactionType, v core.TransactionView) []string {
	createdBy := v.CreatedBy
	if createdBy == "" {
		createdBy = UnknownOwner
	}
	rec := []string{v.Date.String(), v.Description, v.Amount.String(), createdBy}
	if typ == core.Revenue {
		rec = append(rec, v.LinkedExpense)
	}
	return rec
}

// WriteCSV writes the header and rows of typ to w, flushing as it goes.
// Rows are written in the order given.
func WriteCSV(w io.Writer, typ core.TransactionType, rows []core.TransactionView) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns(typ)); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, v := range rows {
		if err := cw.Write(Record(typ, v)); err != nil {
			return fmt.Errorf("write csv row %d: %w", v.ID, err)
		}
		if (i+1)%flushEvery == 0 {
			cw.Flush()
			if err := cw.Error(); err != nil {
				return fmt.Errorf("flush csv: %w", err)
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

var columnWidths = []float64{12, 40, 14, 20, 40}

// WriteXLSX writes the same table as WriteCSV as a single-sheet workbook.
// Amounts are numeric cells formatted with two decimals.
func WriteXLSX(w io.Writer, typ core.TransactionType, rows []core.TransactionView) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Revenue"
	if typ == core.Expense {
		sheet = "Expenses"
	}
	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}

	cols := Columns(typ)
	for i, h := range cols {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	for r, v := range rows {
		rec := Record(typ, v)
		for c, value := range rec {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			var cellValue any = value
			if c == 2 {
				cellValue = v.Amount.Decimal().InexactFloat64()
			}
			if err := f.SetCellValue(sheet, cell, cellValue); err != nil {
				return fmt.Errorf("write row %d: %w", v.ID, err)
			}
		}
	}

	if len(rows) > 0 {
		style, err := f.NewStyle(&excelize.Style{NumFmt: 2})
		if err != nil {
			return fmt.Errorf("amount style: %w", err)
		}
		last, _ := excelize.CoordinatesToCellName(3, len(rows)+1)
		if err := f.SetCellStyle(sheet, "C2", last, style); err != nil {
			return fmt.Errorf("apply amount style: %w", err)
		}
	}

	for i := range cols {
		name, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet, name, name, columnWidths[i]); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

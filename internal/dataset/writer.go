package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// DefaultSheet is the single sheet written by WriteXLSX.
const DefaultSheet = "Sheet1"

// XLSXContentType is the MIME type of WriteXLSX output.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WriteXLSX writes ds as a workbook with one sheet, a header row and no index
// column. Cells of int and float columns are stored as numbers.
func WriteXLSX(w io.Writer, ds *Dataset) error {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]interface{}, len(ds.Columns))
	for i, c := range ds.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(DefaultSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	kinds := ds.Kinds()
	for r, row := range ds.Rows {
		vals := make([]interface{}, len(row))
		for j, c := range row {
			vals[j] = cellValue(c, kinds[j])
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(DefaultSheet, cell, &vals); err != nil {
			return fmt.Errorf("write row %d: %w", r+1, err)
		}
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func cellValue(c Cell, k Kind) interface{} {
	if !c.Valid {
		return nil
	}
	switch k {
	case KindInt:
		if n, err := strconv.ParseInt(c.Value, 10, 64); err == nil {
			return n
		}
	case KindFloat:
		if f, ok := ParseNumber(c.Value); ok {
			return f
		}
	}
	return c.Value
}

// WriteCSV writes ds as comma-separated values with a header row.
func WriteCSV(w io.Writer, ds *Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ds.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(ds.Records()); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}

package workbook

import (
	"github.com/xuri/excelize/v2"
)

// ReadFile parses the xlsx workbook at path into a table set. Every sheet
// becomes a table: first row is the header, remaining rows are records with
// cells promoted back to tagged scalars via Parse. On any failure the caller
// gets a nil set and a *LoadError.
func ReadFile(path string) (*TableSet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer f.Close()
	ts := NewTableSet()
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, &LoadError{Path: path, Err: err}
		}
		t := ts.Table(sheet)
		if len(rows) == 0 {
			continue
		}
		header := rows[0]
		for _, col := range header {
			if col != "" {
				t.addColumn(col)
			}
		}
		for _, row := range rows[1:] {
			rec := Record{}
			for i, cell := range row {
				if i >= len(header) || header[i] == "" {
					continue
				}
				v := Parse(cell)
				if !v.IsNull() {
					rec[header[i]] = v
				}
			}
			t.Records = append(t.Records, rec)
		}
	}
	return ts, nil
}

// WriteFile serializes the table set to path, overwriting it in full.
func WriteFile(path string, ts *TableSet) error {
	f, err := encode(ts)
	if err != nil {
		return &SaveError{Path: path, Err: err}
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return &SaveError{Path: path, Err: err}
	}
	return nil
}

// WriteBytes renders the table set as workbook bytes for download.
func WriteBytes(ts *TableSet) ([]byte, error) {
	f, err := encode(ts)
	if err != nil {
		return nil, &SaveError{Path: "(buffer)", Err: err}
	}
	defer f.Close()
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, &SaveError{Path: "(buffer)", Err: err}
	}
	return buf.Bytes(), nil
}

func encode(ts *TableSet) (*excelize.File, error) {
	f := excelize.NewFile()
	for _, name := range ts.Names() {
		t := ts.tables[name]
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
		for ci, col := range t.Columns {
			cell, err := excelize.CoordinatesToCellName(ci+1, 1)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(name, cell, col); err != nil {
				return nil, err
			}
		}
		for ri, rec := range t.Records {
			for ci, col := range t.Columns {
				v := rec.Get(col)
				if v.IsNull() {
					continue
				}
				cell, err := excelize.CoordinatesToCellName(ci+1, ri+2)
				if err != nil {
					return nil, err
				}
				if err := setCell(f, name, cell, v); err != nil {
					return nil, err
				}
			}
		}
	}
	// Drop the implicit default sheet unless the document actually uses it.
	if !ts.Has("Sheet1") {
		_ = f.DeleteSheet("Sheet1")
	}
	return f, nil
}

func setCell(f *excelize.File, sheet, cell string, v Value) error {
	switch v.Kind() {
	case KindNumber:
		return f.SetCellValue(sheet, cell, v.Num())
	case KindDate:
		// Dates travel as their canonical string form so round trips are
		// style-independent.
		return f.SetCellValue(sheet, cell, v.Time().Format(dateLayout))
	default:
		return f.SetCellValue(sheet, cell, v.Str())
	}
}

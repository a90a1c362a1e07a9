package backup

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// Table is one collection flattened to rows of strings. Nested values are
// rendered as compact JSON. Numeric marks the cells that were JSON numbers.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]string
	Numeric [][]bool
}

// Tables flattens every collection of the bundle. Column order is id first,
// then the remaining fields alphabetically.
func Tables(b *Bundle) ([]Table, error) {
	tables := make([]Table, 0, len(collectionKeys))
	for _, name := range collectionKeys {
		t, err := flatten(name, b.records(name))
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func flatten(name string, records []any) (Table, error) {
	objects := make([]map[string]json.RawMessage, 0, len(records))
	columns := map[string]bool{}
	for _, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			return Table{}, fmt.Errorf("encoding %s record: %w", name, err)
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return Table{}, err
		}
		for k := range obj {
			columns[k] = true
		}
		objects = append(objects, obj)
	}

	headers := []string{"id"}
	delete(columns, "id")
	rest := make([]string, 0, len(columns))
	for k := range columns {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	headers = append(headers, rest...)

	t := Table{Name: name, Headers: headers}
	for _, obj := range objects {
		row := make([]string, len(headers))
		numeric := make([]bool, len(headers))
		for i, h := range headers {
			row[i] = cell(obj[h])
			numeric[i] = isNumber(obj[h])
		}
		t.Rows = append(t.Rows, row)
		t.Numeric = append(t.Numeric, numeric)
	}
	return t, nil
}

func cell(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func isNumber(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	c := raw[0]
	return c == '-' || (c >= '0' && c <= '9')
}

// WriteCSV writes every collection as a section: a "# name" marker line,
// the header row and the records.
func WriteCSV(w io.Writer, b *Bundle) error {
	tables, err := Tables(b)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	for _, t := range tables {
		if err := cw.Write([]string{"# " + t.Name}); err != nil {
			return err
		}
		if err := writeTable(cw, t); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCollectionCSV writes a single collection with a plain header row.
func WriteCollectionCSV(w io.Writer, b *Bundle, collection string) error {
	tables, err := Tables(b)
	if err != nil {
		return err
	}
	for _, t := range tables {
		if t.Name != collection {
			continue
		}
		cw := csv.NewWriter(w)
		if err := writeTable(cw, t); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	}
	return fmt.Errorf("unknown collection %q", collection)
}

func writeTable(cw *csv.Writer, t Table) error {
	if err := cw.Write(t.Headers); err != nil {
		return err
	}
	return cw.WriteAll(t.Rows)
}

// WriteXLSX writes a workbook with one sheet per collection. Fields that
// were JSON numbers are stored as numbers; strings stay text even when they
// look numeric.
func WriteXLSX(w io.Writer, b *Bundle) error {
	tables, err := Tables(b)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, t := range tables {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), t.Name); err != nil {
				return fmt.Errorf("naming sheet %s: %w", t.Name, err)
			}
		} else if _, err := f.NewSheet(t.Name); err != nil {
			return fmt.Errorf("creating sheet %s: %w", t.Name, err)
		}
		for col, h := range t.Headers {
			if err := setCell(f, t.Name, col+1, 1, h, false); err != nil {
				return err
			}
		}
		for r, row := range t.Rows {
			for col, v := range row {
				if err := setCell(f, t.Name, col+1, r+2, v, t.Numeric[r][col]); err != nil {
					return err
				}
			}
		}
	}

	_, err = f.WriteTo(w)
	return err
}

func setCell(f *excelize.File, sheet string, col, row int, v string, numeric bool) error {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if numeric {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return f.SetCellValue(sheet, name, n)
		}
	}
	return f.SetCellValue(sheet, name, v)
}

package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ParametersSheet is the name of the first workbook sheet.
const ParametersSheet = "Parameters"

// Workbook builds an XLSX file with a parameters sheet and one sheet per table.
func Workbook(o *Outcome) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), ParametersSheet); err != nil {
		return nil, err
	}
	header := []any{"Group", "Name", "Symbol", "Value", "Std. error", "Unit"}
	if err := f.SetSheetRow(ParametersSheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, p := range o.Parameters {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []any{p.Group, p.Name, p.Symbol, p.Value, p.StdErr, p.Unit}
		if err := f.SetSheetRow(ParametersSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	used := map[string]bool{ParametersSheet: true}
	for _, t := range o.Tables {
		name := sheetName(t.Name, used)
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("sheet %s: %w", name, err)
		}
		for c, h := range t.Header {
			cell, err := excelize.CoordinatesToCellName(c+1, 1)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(name, cell, h); err != nil {
				return nil, err
			}
		}
		for c, col := range t.Columns {
			for r, v := range col {
				cell, err := excelize.CoordinatesToCellName(c+1, r+2)
				if err != nil {
					return nil, err
				}
				if err := f.SetCellFloat(name, cell, v, -1, 64); err != nil {
					return nil, err
				}
			}
		}
	}

	return f.WriteToBuffer()
}

// sheetName makes a table file name usable as a unique sheet name: at most
// 31 characters and none of : \ / ? * [ ].
func sheetName(file string, used map[string]bool) string {
	base := file
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	base = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return '_'
		}
		return r
	}, base)
	if base == "" {
		base = "Table"
	}
	name := truncate(base, 31)
	for i := 2; used[name]; i++ {
		suffix := fmt.Sprintf(" (%d)", i)
		name = truncate(base, 31-len(suffix)) + suffix
	}
	used[name] = true
	return name
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}

package dataset

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

var (
	// ErrNoData is returned when a file holds no data rows.
	ErrNoData = errors.New("no data rows")
	// ErrColumnNotFound is returned when a column reference does not resolve.
	ErrColumnNotFound = errors.New("column not found")
)

// ParseError reports a cell that could not be read as a number.
type ParseError struct {
	Line   int
	Column ColumnRef
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d, column %s: cannot parse %q: %v", e.Line, e.Column, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SkippedRow records a row dropped by a lenient load.
type SkippedRow struct {
	Line   int
	Text   string
	Reason string
}

type row struct {
	line   int
	fields []string
}

// Table is a delimited text file held in memory. Cells are kept as text and
// parsed when a column is requested, so rows only need to be well formed in
// the columns an analysis actually reads.
type Table struct {
	names   []string
	rows    []row
	format  Format
	Skipped []SkippedRow
}

// LoadFile reads the whole file at path and parses it with f.
func LoadFile(path string, f Format) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, f)
}

// Load reads r to the end and parses it with f.
func Load(r io.Reader, f Format) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data, f)
}

// Parse splits data into rows according to f. When f fails and has a
// Fallback, the fallback layout is tried once.
func Parse(data []byte, f Format) (*Table, error) {
	t, err := parse(data, f)
	if err != nil && f.Fallback != nil {
		fb := *f.Fallback
		fb.Fallback = nil
		if t2, err2 := parse(data, fb); err2 == nil {
			return t2, nil
		}
	}
	return t, err
}

// ParseColumns parses data and extracts refs in one step. The fallback
// layout, if any, is also tried when the primary layout loads but does not
// yield the requested columns (a wrong delimiter usually shows up that way).
func ParseColumns(data []byte, f Format, refs ...ColumnRef) (*Table, [][]float64, error) {
	t, err := parse(data, f)
	if err == nil {
		var cols [][]float64
		if cols, err = t.Columns(refs...); err == nil {
			return t, cols, nil
		}
	}
	if f.Fallback == nil {
		return nil, nil, err
	}
	fb := *f.Fallback
	fb.Fallback = nil
	t2, err2 := parse(data, fb)
	if err2 != nil {
		return nil, nil, fmt.Errorf("%w (fallback: %v)", err, err2)
	}
	cols, err2 := t2.Columns(refs...)
	if err2 != nil {
		return nil, nil, fmt.Errorf("%w (fallback: %v)", err, err2)
	}
	return t2, cols, nil
}

func parse(data []byte, f Format) (*Table, error) {
	br := bufio.NewReader(bytes.NewReader(data))
	line := 0
	for i := 0; i < f.SkipRows; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			if err == io.EOF {
				return nil, ErrNoData
			}
			return nil, err
		}
		line++
	}

	var records []row
	var err error
	if comma, ok := f.delimiter(); ok {
		records, err = splitDelimited(br, comma, line)
	} else {
		records, err = splitWhitespace(br, line)
	}
	if err != nil {
		return nil, err
	}

	t := &Table{format: f}
	for _, r := range records {
		if f.Comment != "" && strings.HasPrefix(r.fields[0], f.Comment) {
			continue
		}
		if hasPrefix(r.fields[0], f.SkipPrefixes) {
			continue
		}
		if f.Header && t.names == nil {
			t.names = make([]string, len(r.fields))
			for i, name := range r.fields {
				t.names[i] = strings.TrimSpace(strings.Trim(name, "\""))
			}
			continue
		}
		t.rows = append(t.rows, r)
	}
	if len(t.rows) == 0 {
		return nil, ErrNoData
	}
	return t, nil
}

func splitDelimited(r io.Reader, comma rune, offset int) ([]row, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	var rows []row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, row{line: offset + line, fields: record})
	}
	return rows, nil
}

func splitWhitespace(r io.Reader, offset int) ([]row, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var rows []row
	line := offset
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		rows = append(rows, row{line: line, fields: fields})
	}
	return rows, scanner.Err()
}

func hasPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.rows) }

// Names returns the header names, or nil when the format has no header.
func (t *Table) Names() []string { return t.names }

func (t *Table) index(ref ColumnRef) (int, error) {
	if ref.Name == "" {
		if ref.Index < 0 {
			return 0, fmt.Errorf("%w: %s", ErrColumnNotFound, ref)
		}
		return ref.Index, nil
	}
	for i, name := range t.names {
		if name == ref.Name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %s (have %s)", ErrColumnNotFound, ref, strings.Join(t.names, ", "))
}

// Column returns one column as numbers.
func (t *Table) Column(ref ColumnRef) ([]float64, error) {
	cols, err := t.Columns(ref)
	if err != nil {
		return nil, err
	}
	return cols[0], nil
}

// Columns returns the requested columns, row-aligned. In a lenient table a
// row with any unreadable requested cell is dropped from every column and
// recorded in Skipped; otherwise the first bad cell is returned as a
// *ParseError.
func (t *Table) Columns(refs ...ColumnRef) ([][]float64, error) {
	if len(refs) == 0 {
		return nil, errors.New("no columns requested")
	}
	t.Skipped = nil
	idx := make([]int, len(refs))
	for i, ref := range refs {
		j, err := t.index(ref)
		if err != nil {
			return nil, err
		}
		idx[i] = j
	}

	cols := make([][]float64, len(refs))
	for i := range cols {
		cols[i] = make([]float64, 0, len(t.rows))
	}
	values := make([]float64, len(refs))

rows:
	for _, r := range t.rows {
		for i, j := range idx {
			if j >= len(r.fields) {
				err := &ParseError{Line: r.line, Column: refs[i], Err: fmt.Errorf("row has %d fields", len(r.fields))}
				if t.format.Lenient {
					t.skip(r, err.Error())
					continue rows
				}
				return nil, err
			}
			v, err := ParseFloat(r.fields[j], t.format.decimalComma())
			if err != nil {
				perr := &ParseError{Line: r.line, Column: refs[i], Value: r.fields[j], Err: err}
				if t.format.Lenient {
					t.skip(r, perr.Error())
					continue rows
				}
				return nil, perr
			}
			values[i] = v
		}
		for i, v := range values {
			cols[i] = append(cols[i], v)
		}
	}
	if len(cols[0]) == 0 {
		return nil, ErrNoData
	}
	return cols, nil
}

func (t *Table) skip(r row, reason string) {
	t.Skipped = append(t.Skipped, SkippedRow{
		Line:   r.line,
		Text:   strings.Join(r.fields, " "),
		Reason: reason,
	})
}

// ParseFloat parses one cell. Empty cells and NA/NaN markers read as NaN.
func ParseFloat(s string, decimalComma bool) (float64, error) {
	s = strings.TrimSpace(strings.Trim(s, "\""))
	switch s {
	case "", "NA", "NaN", "nan", "null":
		return math.NaN(), nil
	}
	if decimalComma {
		s = strings.Replace(s, ",", ".", 1)
	}
	return strconv.ParseFloat(s, 64)
}

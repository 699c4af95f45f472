package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Repr formats a value the way the lab's existing output files do: the
// shortest representation that round-trips, always with a decimal point or
// an exponent.
const Repr = "repr"

// ErrColumnLength is returned when output columns differ in length.
var ErrColumnLength = errors.New("columns have different lengths")

// WriteTSV writes a tab-separated table with a one-line header. formats holds
// one fmt verb (or Repr) per column; missing entries default to Repr.
func WriteTSV(w io.Writer, header []string, columns [][]float64, formats []string) error {
	if len(header) != len(columns) {
		return fmt.Errorf("%d header names for %d columns", len(header), len(columns))
	}
	n := 0
	for i, c := range columns {
		if i == 0 {
			n = len(c)
		} else if len(c) != n {
			return ErrColumnLength
		}
	}

	bw := bufio.NewWriter(w)
	bw.WriteString(strings.Join(header, "\t"))
	bw.WriteString("\n")
	cells := make([]string, len(columns))
	for r := 0; r < n; r++ {
		for c, col := range columns {
			verb := Repr
			if c < len(formats) && formats[c] != "" {
				verb = formats[c]
			}
			cells[c] = FormatValue(col[r], verb)
		}
		bw.WriteString(strings.Join(cells, "\t"))
		if r < n-1 {
			bw.WriteString("\n")
		}
	}
	return bw.Flush()
}

// WriteTSVFile is WriteTSV into a newly created file.
func WriteTSVFile(path string, header []string, columns [][]float64, formats []string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteTSV(file, header, columns, formats); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// FormatValue renders v with a fmt verb, or with Repr.
func FormatValue(v float64, verb string) string {
	if verb != Repr {
		return fmt.Sprintf(verb, v)
	}
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	abs := math.Abs(v)
	if v == 0 || (abs >= 1e-4 && abs < 1e16) {
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	}
	return strconv.FormatFloat(v, 'e', -1, 64)
}

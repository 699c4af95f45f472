package dataset

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Format describes how an instrument export is laid out on disk.
type Format struct {
	// Delimiter separates fields: ",", ";", "\t", or "" for runs of whitespace.
	// The names "comma", "semicolon", "tab" and "whitespace" are accepted too.
	Delimiter string `mapstructure:"delimiter" json:"delimiter,omitempty"`
	// Decimal is the decimal separator, "." (default) or ",".
	Decimal string `mapstructure:"decimal" json:"decimal,omitempty"`
	// SkipRows discards this many leading lines before anything else.
	SkipRows int `mapstructure:"skip_rows" json:"skip_rows,omitempty" validate:"gte=0"`
	// Header marks the first remaining line as column names.
	Header bool `mapstructure:"header" json:"header,omitempty"`
	// Comment ignores lines starting with this prefix.
	Comment string `mapstructure:"comment" json:"comment,omitempty"`
	// SkipPrefixes ignores lines whose first field starts with any of these.
	SkipPrefixes []string `mapstructure:"skip_prefixes" json:"skip_prefixes,omitempty"`
	// Lenient skips rows that cannot be parsed instead of failing.
	Lenient bool `mapstructure:"lenient" json:"lenient,omitempty"`
	// Fallback is tried once when loading with this format fails.
	Fallback *Format `mapstructure:"fallback" json:"fallback,omitempty"`
}

// Whitespace, CSV, TSV and Semicolon are the layouts the lab instruments export.
var (
	Whitespace = Format{}
	CSV        = Format{Delimiter: ",", Header: true}
	TSV        = Format{Delimiter: "\t", Header: true}
	Semicolon  = Format{Delimiter: ";", Decimal: ",", Header: true}
)

func (f Format) delimiter() (rune, bool) {
	switch strings.ToLower(f.Delimiter) {
	case "", "whitespace", " ", "space":
		return 0, false
	case ",", "comma":
		return ',', true
	case ";", "semicolon":
		return ';', true
	case "\t", "tab", `\t`:
		return '\t', true
	}
	r := []rune(f.Delimiter)
	return r[0], true
}

func (f Format) decimalComma() bool {
	return f.Decimal == ","
}

// ColumnRef addresses a column by zero-based index or by header name.
type ColumnRef struct {
	Index int
	Name  string
}

// Col refers to the column at index i.
func Col(i int) ColumnRef { return ColumnRef{Index: i} }

// Named refers to the column whose header is name.
func Named(name string) ColumnRef { return ColumnRef{Name: name} }

func (c ColumnRef) String() string {
	if c.Name != "" {
		return strconv.Quote(c.Name)
	}
	return "#" + strconv.Itoa(c.Index)
}

// ColumnRefHook decodes YAML integers and strings into a ColumnRef.
// A string made only of digits is treated as an index.
func ColumnRefHook() mapstructure.DecodeHookFuncType {
	target := reflect.TypeOf(ColumnRef{})
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != target {
			return data, nil
		}
		switch v := data.(type) {
		case int:
			return Col(v), nil
		case int64:
			return Col(int(v)), nil
		case uint64:
			return Col(int(v)), nil
		case float64:
			if v != float64(int(v)) {
				return nil, fmt.Errorf("column index %v is not an integer", v)
			}
			return Col(int(v)), nil
		case string:
			if i, err := strconv.Atoi(v); err == nil {
				return Col(i), nil
			}
			return Named(v), nil
		}
		return data, nil
	}
}

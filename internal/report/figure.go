// Package report turns analysis outcomes into console summaries, TSV tables,
// PNG figures and XLSX workbooks.
package report

import (
	"github.com/RMahshie/labfit/pkg/models"
)

// Style selects how a series is drawn.
type Style int

const (
	Points Style = iota
	Line
	Dashed
	LinePoints
	// ErrorBars draws points with the series' XErr and YErr as bars.
	ErrorBars
)

// Palette indices for Series.Color and RefLine.Color.
const (
	Red = iota + 1
	Green
	Blue
	Orange
	Purple
	Brown
	Pink
)

// Series is one set of x/y data in a panel.
type Series struct {
	Label string
	X, Y  []float64
	XErr  []float64
	YErr  []float64
	Style Style
	// Color is a 1-based palette index; zero picks the next free color.
	Color int
}

// RefLine is a horizontal or vertical reference line across a panel.
type RefLine struct {
	Vertical bool
	At       float64
	Label    string
	// Color as for Series.
	Color int
}

// Limits fixes an axis range when Set is true.
type Limits struct {
	Min, Max float64
	Set      bool
}

// Lim returns fixed limits.
func Lim(min, max float64) Limits {
	return Limits{Min: min, Max: max, Set: true}
}

// Panel is one set of axes.
type Panel struct {
	Title  string
	XLabel string
	YLabel string
	LogX   bool
	LogY   bool
	XLim   Limits
	YLim   Limits
	Series []Series
	Lines  []RefLine
	// Legend is drawn when any series or line has a label unless NoLegend is set.
	NoLegend bool
}

// Add appends a series and returns the panel for chaining.
func (p *Panel) Add(s Series) *Panel {
	p.Series = append(p.Series, s)
	return p
}

// Figure is a grid of panels saved as one image.
type Figure struct {
	// Name is the file name without extension.
	Name string
	Rows int
	Cols int
	// Panels are in row-major order.
	Panels []*Panel
	// HeightRatios optionally sizes rows relative to each other.
	HeightRatios []float64
	// Width and Height in inches; zero means 8×6 per single panel.
	Width, Height float64
	// DPI overrides the renderer's default resolution when positive.
	DPI int
}

// NewFigure returns a single-panel figure.
func NewFigure(name string, panel *Panel) *Figure {
	return &Figure{Name: name, Rows: 1, Cols: 1, Panels: []*Panel{panel}}
}

// Grid returns a figure with rows×cols empty panels.
func Grid(name string, rows, cols int) *Figure {
	f := &Figure{Name: name, Rows: rows, Cols: cols}
	for range rows * cols {
		f.Panels = append(f.Panels, &Panel{})
	}
	return f
}

// WithResiduals returns a two-row figure with a data panel on top and a
// residual panel below it at a third of its height.
func WithResiduals(name string, main, residuals *Panel) *Figure {
	return &Figure{
		Name:         name,
		Rows:         2,
		Cols:         1,
		Panels:       []*Panel{main, residuals},
		HeightRatios: []float64{3, 1},
		Width:        7,
		Height:       7,
	}
}

// At returns the panel at row r, column c.
func (f *Figure) At(r, c int) *Panel {
	return f.Panels[r*f.Cols+c]
}

// Table is a column-oriented output table written as TSV.
type Table struct {
	// Name is the output file name, including any extension.
	Name    string
	Header  []string
	Columns [][]float64
	// Formats holds a fmt verb per column; see dataset.WriteTSV.
	Formats []string
}

// Outcome is everything one analysis run produces.
type Outcome struct {
	Title      string
	Parameters []models.Parameter
	Tables     []Table
	Figures    []*Figure
	Notes      []string
}

// Note appends a formatted diagnostic line.
func (o *Outcome) Note(s string) {
	o.Notes = append(o.Notes, s)
}

// AddParameter appends a reported parameter.
func (o *Outcome) AddParameter(p models.Parameter) {
	o.Parameters = append(o.Parameters, p)
}

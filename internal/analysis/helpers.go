package analysis

import (
	"fmt"
	"math"
	"path"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/RMahshie/labfit/internal/config"
	"github.com/RMahshie/labfit/internal/fit"
	"github.com/RMahshie/labfit/internal/report"
	"github.com/RMahshie/labfit/internal/uncertainty"
	"github.com/RMahshie/labfit/pkg/models"
)

func quantity(group, name, symbol string, q uncertainty.Quantity, unit, verb string) models.Parameter {
	return models.Parameter{Group: group, Name: name, Symbol: symbol, Value: q.Value, StdErr: q.StdErr, Unit: unit, Verb: verb}
}

func value(group, name, symbol string, v float64, unit, verb string) models.Parameter {
	return models.Parameter{Group: group, Name: name, Symbol: symbol, Value: v, Unit: unit, Verb: verb}
}

func slope(r *fit.Result) uncertainty.Quantity {
	return uncertainty.Q(r.Slope(), r.SlopeErr())
}

func intercept(r *fit.Result) uncertainty.Quantity {
	return uncertainty.Q(r.Intercept(), r.InterceptErr())
}

func requireInputs(p *config.Profile, n int) error {
	if len(p.Inputs) < n {
		return fmt.Errorf("profile needs at least %d input(s), has %d", n, len(p.Inputs))
	}
	return nil
}

func linspace(lo, hi float64, n int) []float64 {
	return floats.Span(make([]float64, n), lo, hi)
}

func logspace(lo, hi float64, n int) []float64 {
	return floats.LogSpan(make([]float64, n), lo, hi)
}

func scale(v []float64, k float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x * k
	}
	return out
}

// halves splits every column at the midpoint of the first; the forward sweep
// is the first half.
func halves(cols ...[]float64) (first, second [][]float64) {
	mid := len(cols[0]) / 2
	for _, c := range cols {
		first = append(first, c[:mid])
		second = append(second, c[mid:])
	}
	return first, second
}

// gradient is the index-spaced derivative: central differences inside,
// one-sided at the ends.
func gradient(y []float64) []float64 {
	n := len(y)
	g := make([]float64, n)
	switch n {
	case 0:
		return g
	case 1:
		return g
	}
	g[0] = y[1] - y[0]
	g[n-1] = y[n-1] - y[n-2]
	for i := 1; i < n-1; i++ {
		g[i] = (y[i+1] - y[i-1]) / 2
	}
	return g
}

// positive keeps the pairs whose y is strictly positive.
func positive(x, y []float64) ([]float64, []float64, int) {
	var xs, ys []float64
	for i := range y {
		if y[i] > 0 {
			xs = append(xs, x[i])
			ys = append(ys, y[i])
		}
	}
	return xs, ys, len(y) - len(ys)
}

func log10All(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Log10(x)
	}
	return out
}

// fitSeries draws r over xs.
func fitSeries(label string, r *fit.Result, xs []float64, style report.Style, color int) report.Series {
	return report.Series{Label: label, X: xs, Y: r.EvalAll(xs), Style: style, Color: color}
}

// residualPanel plots the residuals of a fit as measured minus model.
func residualPanel(xlabel string, x []float64, r *fit.Result, color int) *report.Panel {
	res := make([]float64, len(r.Residuals))
	copy(res, r.Residuals)
	p := &report.Panel{XLabel: xlabel, YLabel: "Residuals", NoLegend: true}
	p.Add(report.Series{X: x, Y: res, Style: report.Points, Color: color})
	p.Lines = append(p.Lines, report.RefLine{At: 0, Color: report.Brown})
	return p
}

// numbered derives per-input file names from name when a profile has
// several inputs: "c.tsv" becomes "c_<label>.tsv".
func numbered(name string, in config.Input, many bool) string {
	if !many {
		return name
	}
	ext := path.Ext(name)
	label := strings.Map(func(r rune) rune {
		switch {
		case r == ' ' || r == '/' || r == '\\' || r == ':':
			return '_'
		}
		return r
	}, in.Name())
	label = strings.TrimSuffix(label, path.Ext(label))
	return strings.TrimSuffix(name, ext) + "_" + label + ext
}

func sweepLabel(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

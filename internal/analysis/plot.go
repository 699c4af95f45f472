package analysis

import (
	"context"
	"fmt"

	"github.com/RMahshie/labfit/internal/dataset"
	"github.com/RMahshie/labfit/internal/report"
)

var styles = map[string]report.Style{
	"points":     report.Points,
	"line":       report.Line,
	"dashed":     report.Dashed,
	"linepoints": report.LinePoints,
}

// XYPlotParams configures the xy-plot analyzer.
type XYPlotParams struct {
	X      dataset.ColumnRef `mapstructure:"x"`
	Y      dataset.ColumnRef `mapstructure:"y"`
	XScale float64           `mapstructure:"x_scale" validate:"ne=0"`
	YScale float64           `mapstructure:"y_scale" validate:"ne=0"`
	Title  string            `mapstructure:"title"`
	XLabel string            `mapstructure:"x_label"`
	YLabel string            `mapstructure:"y_label"`
	LogX   bool              `mapstructure:"log_x"`
	LogY   bool              `mapstructure:"log_y"`
	Style  string            `mapstructure:"style" validate:"oneof=points line dashed linepoints"`
	// Name is the figure file name without extension.
	Name string `mapstructure:"name" validate:"required"`
}

// XYPlot plots one column against another for each input.
type XYPlot struct{}

func (XYPlot) Kind() string { return "xy-plot" }

func (XYPlot) Run(ctx context.Context, req *Request) (*Outcome, error) {
	params := XYPlotParams{
		X:      dataset.Col(0),
		Y:      dataset.Col(1),
		XScale: 1,
		YScale: 1,
		Style:  "linepoints",
		Name:   "xy",
	}
	if err := req.Params(&params); err != nil {
		return nil, err
	}
	if err := requireInputs(req.Profile, 1); err != nil {
		return nil, err
	}

	out := &Outcome{Title: params.Title}
	panel := &report.Panel{
		Title:    params.Title,
		XLabel:   params.XLabel,
		YLabel:   params.YLabel,
		LogX:     params.LogX,
		LogY:     params.LogY,
		NoLegend: len(req.Profile.Inputs) == 1,
	}
	for _, in := range req.Profile.Inputs {
		cols, _, err := req.Columns(ctx, in, params.X, params.Y)
		if err != nil {
			return nil, err
		}
		x, y := scale(cols[0], params.XScale), scale(cols[1], params.YScale)
		panel.Add(report.Series{Label: in.Name(), X: x, Y: y, Style: styles[params.Style]})
		out.AddParameter(value(in.Name(), "Points", "", float64(len(x)), "", "%.0f"))
		if params.LogX || params.LogY {
			if dropped := nonPositive(x, y, params.LogX, params.LogY); dropped > 0 {
				out.Note(fmt.Sprintf("%s: %d non-positive points not shown on log axes", in.Name(), dropped))
			}
		}
	}
	out.Figures = append(out.Figures, report.NewFigure(params.Name, panel))
	return out, nil
}

func nonPositive(x, y []float64, logX, logY bool) int {
	n := 0
	for i := range x {
		if (logX && x[i] <= 0) || (logY && y[i] <= 0) {
			n++
		}
	}
	return n
}

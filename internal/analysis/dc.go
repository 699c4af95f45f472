package analysis

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/RMahshie/labfit/internal/config"
	"github.com/RMahshie/labfit/internal/dataset"
	"github.com/RMahshie/labfit/internal/fit"
	"github.com/RMahshie/labfit/internal/physics"
	"github.com/RMahshie/labfit/internal/report"
	"github.com/RMahshie/labfit/internal/uncertainty"
)

type sweep struct {
	name  string
	v, i  []float64
	color int
}

// splitSweeps halves a transfer scan into its forward and backward sweeps.
func splitSweeps(v, i []float64) []sweep {
	fwd, bwd := halves(v, i)
	return []sweep{
		{name: "forward", v: fwd[0], i: fwd[1], color: report.Blue},
		{name: "backward", v: bwd[0], i: bwd[1], color: report.Red},
	}
}

type transferColumns struct {
	Gate  dataset.ColumnRef `mapstructure:"gate"`
	Drain dataset.ColumnRef `mapstructure:"drain"`
}

// TransferLinearParams configures the transfer-linear analyzer.
type TransferLinearParams struct {
	Transistor physics.Transistor `mapstructure:"transistor"`
	Columns    transferColumns    `mapstructure:"columns"`
	// CurrentScale converts the drain current column to plotted units (µA).
	CurrentScale float64 `mapstructure:"current_scale" validate:"gt=0"`
	// Window is the linear-regime gate voltage range used for the fit.
	Window fit.Range `mapstructure:"window"`
	// Extend and Inner are the gate ranges the fitted line is drawn over,
	// dashed and solid.
	Extend fit.Range `mapstructure:"extend"`
	Inner  fit.Range `mapstructure:"inner"`
	XLim   []float64 `mapstructure:"x_lim" validate:"omitempty,len=2"`
	YLim   []float64 `mapstructure:"y_lim" validate:"omitempty,len=2"`
	DPI    int       `mapstructure:"dpi" validate:"gte=0"`
}

// TransferLinear extracts field-effect mobility and threshold voltage from
// the linear regime of a transfer scan.
type TransferLinear struct{}

func (TransferLinear) Kind() string { return "transfer-linear" }

func (TransferLinear) Run(ctx context.Context, req *Request) (*Outcome, error) {
	params := TransferLinearParams{
		Transistor: physics.Transistor{
			Length:      15 * 500e-6,
			Width:       9.5 * 500e-6,
			Capacitance: 54e-9,
			DrainSource: 0.1,
		},
		Columns:      transferColumns{Gate: dataset.Col(0), Drain: dataset.Col(4)},
		CurrentScale: 1e6,
		Window:       fit.Range{Min: 3, Max: 9},
		Extend:       fit.Range{Min: -2, Max: 5},
		Inner:        fit.Range{Min: 1, Max: 4},
		XLim:         []float64{-2, 5},
		YLim:         []float64{-25, 100},
		DPI:          300,
	}
	if err := req.Params(&params); err != nil {
		return nil, err
	}
	if err := requireInputs(req.Profile, 1); err != nil {
		return nil, err
	}

	in := req.Profile.Inputs[0]
	cols, _, err := req.Columns(ctx, in, params.Columns.Gate, params.Columns.Drain)
	if err != nil {
		return nil, err
	}
	vsd := params.Transistor.DrainSource
	sweeps := splitSweeps(cols[0], scale(cols[1], params.CurrentScale))

	out := &Outcome{Title: fmt.Sprintf("Transfer characteristic (V_SD = %g V)", vsd)}
	raw := &report.Panel{
		Title:  fmt.Sprintf("I_D vs V_SG (V_SD = %g V)", vsd),
		XLabel: "V_SG (V)",
		YLabel: "I_D (µA)",
	}
	var figures []*report.Figure
	for _, s := range sweeps {
		raw.Add(report.Series{Label: sweepLabel(s.name), X: s.v, Y: s.i, Style: report.Points, Color: s.color})

		sel, err := fit.InRange(s.name+" sweep", params.Window, s.v, s.i)
		if err != nil {
			return nil, err
		}
		r, err := fit.Linear(sel[0], sel[1], nil)
		if err != nil {
			return nil, fmt.Errorf("%s sweep: %w", s.name, err)
		}

		m := uncertainty.Scale(slope(r), 1/params.CurrentScale)
		mu := params.Transistor.Mobility(m)
		vt := physics.ThresholdVoltage(slope(r), intercept(r))
		out.AddParameter(quantity(s.name, "Mobility", "µ", mu, "cm²/Vs", "%.3g"))
		out.AddParameter(quantity(s.name, "Threshold Voltage", "V_t", vt, "V", "%.3f"))
		out.AddParameter(quantity(s.name, "Slope", "m", slope(r), "µA/V", "%.4g"))
		out.AddParameter(quantity(s.name, "Intercept", "q", intercept(r), "µA", "%.4g"))

		top := &report.Panel{
			Title:  fmt.Sprintf("%s Sweep (V_SD = %g V)", sweepLabel(s.name), vsd),
			YLabel: "I_D (µA)",
		}
		top.Add(report.Series{Label: sweepLabel(s.name), X: s.v, Y: s.i, Style: report.Points, Color: s.color})
		top.Add(fitSeries("", r, linspace(params.Extend.Min, params.Extend.Max, 300), report.Dashed, report.Green))
		top.Add(fitSeries("Fit: µ = "+uncertainty.Format(mu, 2)+" cm²/Vs", r,
			linspace(params.Inner.Min, params.Inner.Max, 100), report.Line, report.Green))
		top.Lines = append(top.Lines, report.RefLine{
			Vertical: true,
			At:       vt.Value,
			Label:    "V_t = " + uncertainty.Format(vt, 2) + " V",
			Color:    report.Brown,
		})
		if len(params.XLim) == 2 {
			top.XLim = report.Lim(params.XLim[0], params.XLim[1])
		}
		if len(params.YLim) == 2 {
			top.YLim = report.Lim(params.YLim[0], params.YLim[1])
		}

		fig := report.WithResiduals("fit_"+s.name, top, residualPanel("V_SG (V)", sel[0], r, s.color))
		fig.DPI = params.DPI
		figures = append(figures, fig)
	}

	rawFig := report.NewFigure("raw_transfer", raw)
	rawFig.Width, rawFig.Height, rawFig.DPI = 6, 5, params.DPI
	out.Figures = append([]*report.Figure{rawFig}, figures...)
	return out, nil
}

// SubthresholdWindow holds the gate ranges of one sweep's subthreshold
// analysis.
type SubthresholdWindow struct {
	// Fit is the range of the log-linear subthreshold fit.
	Fit fit.Range `mapstructure:"fit"`
	// On is searched for the steepest rise of log I_D, taken as V_on.
	On fit.Range `mapstructure:"on"`
}

// TransferLogParams configures the transfer-log analyzer.
type TransferLogParams struct {
	Columns  transferColumns    `mapstructure:"columns"`
	Forward  SubthresholdWindow `mapstructure:"forward"`
	Backward SubthresholdWindow `mapstructure:"backward"`
	// OffBelow is the gate voltage under which the current counts as off.
	OffBelow float64   `mapstructure:"off_below"`
	Extend   fit.Range `mapstructure:"extend"`
}

// TransferLog extracts subthreshold swing, on/off currents and turn-on
// voltage from log10 of the drain current.
type TransferLog struct{}

func (TransferLog) Kind() string { return "transfer-log" }

func (TransferLog) Run(ctx context.Context, req *Request) (*Outcome, error) {
	params := TransferLogParams{
		Columns: transferColumns{Gate: dataset.Col(0), Drain: dataset.Col(4)},
		Forward: SubthresholdWindow{
			Fit: fit.Range{Min: -6, Max: -3, Inclusive: true},
			On:  fit.Range{Min: -7.5, Max: -5, Inclusive: true},
		},
		Backward: SubthresholdWindow{
			Fit: fit.Range{Min: -4.6, Max: -2.8, Inclusive: true},
			On:  fit.Range{Min: -4.7, Max: -2, Inclusive: true},
		},
		OffBelow: -8,
		Extend:   fit.Range{Min: -7.5, Max: 5},
	}
	if err := req.Params(&params); err != nil {
		return nil, err
	}
	if err := requireInputs(req.Profile, 1); err != nil {
		return nil, err
	}

	in := req.Profile.Inputs[0]
	cols, _, err := req.Columns(ctx, in, params.Columns.Gate, params.Columns.Drain)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Title: "Subthreshold characteristic"}
	linear := &report.Panel{Title: "Forward and Backward Sweep", XLabel: "V_SG (V)", YLabel: "I_D (A)"}
	logs := &report.Panel{Title: "log(I_D) vs V_SG", XLabel: "V_SG (V)", YLabel: "log10(I_D) (A)"}
	var figures []*report.Figure
	for _, s := range splitSweeps(cols[0], cols[1]) {
		w := params.Forward
		if s.name == "backward" {
			w = params.Backward
		}
		label := sweepLabel(s.name) + " Sweep"
		linear.Add(report.Series{Label: label, X: s.v, Y: s.i, Style: report.LinePoints, Color: s.color})

		v, i, dropped := positive(s.v, s.i)
		if dropped > 0 {
			out.Note(fmt.Sprintf("%s sweep: %d non-positive currents left out of log10(I_D)", s.name, dropped))
		}
		logI := log10All(i)
		logs.Add(report.Series{Label: label, X: v, Y: logI, Style: report.LinePoints, Color: s.color})

		sub, err := Subthreshold(s.name, v, logI, w)
		if err != nil {
			return nil, err
		}
		ion := floats.Max(s.i)
		out.AddParameter(quantity(s.name, "Subthreshold Swing", "S", sub.Swing, "mV/dec", "%.1f"))
		out.AddParameter(quantity(s.name, "Slope", "m", slope(sub.Fit), "dec/V", "%.3e"))
		out.AddParameter(quantity(s.name, "Intercept", "q", intercept(sub.Fit), "", "%.3f"))
		out.AddParameter(value(s.name, "On Current", "I_on", ion, "A", "%.2e"))
		out.AddParameter(value(s.name, "Turn-on Voltage", "V_on", sub.On, "V", "%.2f"))

		panel := &report.Panel{Title: label, XLabel: "V_SG (V)", YLabel: "log10(I_D) (A)"}
		panel.Add(report.Series{Label: label, X: v, Y: logI, Style: report.LinePoints, Color: s.color})
		panel.Add(fitSeries(fmt.Sprintf("Fit (S = %.0f ± %.0f mV/dec)", sub.Swing.Value, sub.Swing.StdErr),
			sub.Fit, linspace(params.Extend.Min, params.Extend.Max, 300), report.Dashed, report.Green))
		panel.Lines = append(panel.Lines,
			report.RefLine{Vertical: true, At: sub.On, Label: fmt.Sprintf("V_on = %.2f V", sub.On), Color: report.Purple},
			report.RefLine{At: math.Log10(ion), Label: fmt.Sprintf("I_on = %.1e A", ion), Color: report.Orange},
		)

		off := fit.Select(fit.Mask(s.v, fit.Range{Min: math.Inf(-1), Max: params.OffBelow}), s.i)[0]
		if len(off) == 0 {
			out.Note(fmt.Sprintf("%s sweep: no gate voltage below %g V, off current not estimated", s.name, params.OffBelow))
		} else {
			ioff := stat.Mean(off, nil)
			out.AddParameter(value(s.name, "Off Current", "I_off", ioff, "A", "%.2e"))
			if ioff > 0 {
				out.AddParameter(value(s.name, "On/Off Ratio", "I_on/I_off", ion/ioff, "", "%.2e"))
				panel.Lines = append(panel.Lines, report.RefLine{
					At:    math.Log10(ioff),
					Label: fmt.Sprintf("I_off = %.1e A", ioff),
					Color: report.Brown,
				})
			}
		}
		figures = append(figures, report.NewFigure("subthreshold_"+s.name, panel))
	}

	out.Figures = append([]*report.Figure{
		report.NewFigure("transfer_sweeps", linear),
		report.NewFigure("transfer_log_sweeps", logs),
	}, figures...)
	return out, nil
}

// SubthresholdResult is the log-linear fit of one sweep.
type SubthresholdResult struct {
	Fit *fit.Result
	// Swing is 1/slope in mV/decade.
	Swing uncertainty.Quantity
	// On is the gate voltage of the steepest rise of log I_D in the On window.
	On float64
}

// Subthreshold fits log10 I_D against gate voltage inside w.Fit and locates
// the turn-on voltage inside w.On.
func Subthreshold(name string, v, logI []float64, w SubthresholdWindow) (*SubthresholdResult, error) {
	sel, err := fit.InRange(name+" subthreshold window", w.Fit, v, logI)
	if err != nil {
		return nil, err
	}
	r, err := fit.Linear(sel[0], sel[1], nil)
	if err != nil {
		return nil, fmt.Errorf("%s sweep: %w", name, err)
	}

	on, err := fit.InRange(name+" turn-on window", w.On, v, logI)
	if err != nil {
		return nil, err
	}
	g := gradient(on[1])
	return &SubthresholdResult{
		Fit:   r,
		Swing: uncertainty.Scale(physics.SubthresholdSwing(slope(r)), 1000),
		On:    on[0][floats.MaxIdx(g)],
	}, nil
}

// OutputParams configures the output-characteristics analyzer.
type OutputParams struct {
	Columns struct {
		Voltage dataset.ColumnRef `mapstructure:"voltage"`
		Current dataset.ColumnRef `mapstructure:"current"`
	} `mapstructure:"columns"`
}

// OutputCharacteristics plots drain current against drain voltage for a set
// of gate voltages, each input's Value being its gate voltage.
type OutputCharacteristics struct{}

func (OutputCharacteristics) Kind() string { return "output-characteristics" }

func (OutputCharacteristics) Run(ctx context.Context, req *Request) (*Outcome, error) {
	var params OutputParams
	params.Columns.Voltage = dataset.Col(3)
	params.Columns.Current = dataset.Col(4)
	if err := req.Params(&params); err != nil {
		return nil, err
	}
	if err := requireInputs(req.Profile, 1); err != nil {
		return nil, err
	}

	inputs := slices.Clone(req.Profile.Inputs)
	slices.SortStableFunc(inputs, func(a, b config.Input) int { return cmp.Compare(a.Value, b.Value) })

	out := &Outcome{Title: "Output characteristics"}
	all := &report.Panel{
		Title:  "Output Characteristics for Different Gate Voltages",
		XLabel: "Voltage [V]",
		YLabel: "Current [A]",
	}
	first := &report.Panel{Title: "Output Characteristics", XLabel: "Voltage [V]", YLabel: "Current [A]"}
	var maxV, maxI float64
	for _, in := range inputs {
		cols, _, err := req.Columns(ctx, in, params.Columns.Voltage, params.Columns.Current)
		if err != nil {
			return nil, err
		}
		label := fmt.Sprintf("V_G = %g V", in.Value)
		all.Add(report.Series{Label: label, X: cols[0], Y: cols[1], Style: report.Line})
		out.AddParameter(value(label, "Max Current", "I_D,max", floats.Max(cols[1]), "A", "%.3e"))

		v, i := FirstQuadrant(cols[0], cols[1])
		if len(v) == 0 {
			out.Note(label + ": no points in the first quadrant")
			continue
		}
		first.Add(report.Series{Label: label, X: v, Y: i, Style: report.Line})
		maxV, maxI = max(maxV, floats.Max(v)), max(maxI, floats.Max(i))
	}
	if maxV > 0 {
		first.XLim = report.Lim(0, maxV)
	}
	if maxI > 0 {
		first.YLim = report.Lim(0, maxI*1.05)
	}

	all.NoLegend = len(inputs) > 12
	first.NoLegend = all.NoLegend
	out.Figures = append(out.Figures,
		&report.Figure{Name: "output_characteristics", Rows: 1, Cols: 1, Panels: []*report.Panel{all}, Width: 10, Height: 6},
		&report.Figure{Name: "output_first_quadrant", Rows: 1, Cols: 1, Panels: []*report.Panel{first}, Width: 10, Height: 6},
	)
	return out, nil
}

// FirstQuadrant keeps the points with both voltage and current non-negative.
func FirstQuadrant(v, i []float64) ([]float64, []float64) {
	var vs, is []float64
	for k := range v {
		if v[k] >= 0 && i[k] >= 0 {
			vs = append(vs, v[k])
			is = append(is, i[k])
		}
	}
	return vs, is
}

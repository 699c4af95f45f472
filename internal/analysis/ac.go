package analysis

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/RMahshie/labfit/internal/dataset"
	"github.com/RMahshie/labfit/internal/fit"
	"github.com/RMahshie/labfit/internal/physics"
	"github.com/RMahshie/labfit/internal/report"
	"github.com/RMahshie/labfit/internal/uncertainty"
)

// CapacitanceParams configures the capacitance analyzer.
type CapacitanceParams struct {
	// Frequency of the AC excitation, Hz.
	Frequency float64 `mapstructure:"frequency" validate:"gt=0"`
	// Reference is the excitation amplitude, V.
	Reference float64 `mapstructure:"reference" validate:"gt=0"`
	Columns   struct {
		Voff dataset.ColumnRef `mapstructure:"voff"`
		Vout dataset.ColumnRef `mapstructure:"vout"`
		Gain dataset.ColumnRef `mapstructure:"gain"`
	} `mapstructure:"columns"`
	// Output is the TSV file name.
	Output string `mapstructure:"output" validate:"required"`
}

// Capacitance converts lock-in readings of a C-V sweep into capacitance.
type Capacitance struct{}

func (Capacitance) Kind() string { return "capacitance" }

func (Capacitance) Run(ctx context.Context, req *Request) (*Outcome, error) {
	params := CapacitanceParams{
		Frequency: 1000,
		Reference: physics.ReferenceVoltage,
		Output:    "output_capacitance.tsv",
	}
	params.Columns.Voff = dataset.Named("Voff")
	params.Columns.Vout = dataset.Named("Vout")
	params.Columns.Gain = dataset.Named("Gain")
	if err := req.Params(&params); err != nil {
		return nil, err
	}
	if err := requireInputs(req.Profile, 1); err != nil {
		return nil, err
	}

	out := &Outcome{Title: "Capacitance"}
	panel := &report.Panel{Title: "Capacitance vs Voff", XLabel: "Voff (V)", YLabel: "Capacitance (F)"}
	many := len(req.Profile.Inputs) > 1
	for _, in := range req.Profile.Inputs {
		cols, _, err := req.Columns(ctx, in, params.Columns.Voff, params.Columns.Vout, params.Columns.Gain)
		if err != nil {
			return nil, err
		}
		voff := cols[0]
		c := Capacitances(params.Frequency, params.Reference, cols[1], cols[2])

		out.Tables = append(out.Tables, report.Table{
			Name:    numbered(params.Output, in, many),
			Header:  []string{"Voff (V)", "Capacitance (F)"},
			Columns: [][]float64{voff, c},
		})
		panel.Add(report.Series{Label: in.Name(), X: voff, Y: c, Style: report.LinePoints})
		out.AddParameter(value(in.Name(), "Points", "", float64(len(c)), "", "%.0f"))
	}
	out.Figures = append(out.Figures, report.NewFigure("capacitance", panel))
	return out, nil
}

// Capacitances returns C = 1/(2π·f·Z) with Z = (Vref/Vout)·gain for each row.
func Capacitances(freq, vref float64, vout, gain []float64) []float64 {
	c := make([]float64, len(vout))
	for i := range vout {
		c[i] = physics.Capacitance(freq, physics.Impedance(vref, vout[i], gain[i]))
	}
	return c
}

// MottSchottkyParams configures the Mott-Schottky analyzer.
type MottSchottkyParams struct {
	Junction physics.Junction `mapstructure:"junction"`
	Columns  struct {
		Voff        dataset.ColumnRef `mapstructure:"voff"`
		Capacitance dataset.ColumnRef `mapstructure:"capacitance"`
	} `mapstructure:"columns"`
	// Window restricts the fit to part of the bias range.
	Window *fit.Range `mapstructure:"window"`
}

// MottSchottky fits 1/C² against bias for each C-V table and reports the
// doping density and flatband potential.
type MottSchottky struct{}

func (MottSchottky) Kind() string { return "mott-schottky" }

func (MottSchottky) Run(ctx context.Context, req *Request) (*Outcome, error) {
	params := MottSchottkyParams{
		Junction: physics.Junction{
			Area:         2.89e-6,
			Permittivity: physics.SiliconPermittivity,
			Temperature:  293,
		},
	}
	params.Columns.Voff = dataset.Col(0)
	params.Columns.Capacitance = dataset.Col(1)
	if err := req.Params(&params); err != nil {
		return nil, err
	}
	if err := requireInputs(req.Profile, 1); err != nil {
		return nil, err
	}

	out := &Outcome{Title: "Mott-Schottky"}
	cv := &report.Panel{Title: "Capacitance vs Voff", XLabel: "Voff (V)", YLabel: "Capacitance (F)"}
	ms := &report.Panel{Title: "1/C² vs Voff", XLabel: "Voff (V)", YLabel: "1/C² (1/F²)"}

	type line struct {
		label  string
		result *fit.Result
		color  int
	}
	var lines []line
	lo, hi := 0.0, 0.0
	for i, in := range req.Profile.Inputs {
		cols, _, err := req.Columns(ctx, in, params.Columns.Voff, params.Columns.Capacitance)
		if err != nil {
			return nil, err
		}
		voff, c := cols[0], cols[1]
		inv := make([]float64, len(c))
		sigma := make([]float64, len(c))
		for j, v := range c {
			inv[j], sigma[j] = physics.InverseSquare(v)
		}

		x, y, s := voff, inv, sigma
		if params.Window != nil {
			sel, err := fit.InRange(in.Name(), *params.Window, voff, inv, sigma)
			if err != nil {
				return nil, err
			}
			x, y, s = sel[0], sel[1], sel[2]
		}
		r, err := fit.Linear(x, y, s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", in.Name(), err)
		}

		nd := params.Junction.DopingDensity(slope(r))
		vfb := params.Junction.FlatbandPotential(slope(r), intercept(r))
		out.AddParameter(quantity(in.Name(), "Doping Density", "N_d", nd, "cm⁻³", "%.2e"))
		out.AddParameter(quantity(in.Name(), "Flatband Potential", "V_fb", vfb, "V", "%.3f"))

		color := i + 1
		cv.Add(report.Series{Label: in.Name(), X: voff, Y: c, Style: report.LinePoints, Color: color})
		ms.Add(report.Series{
			Label: fmt.Sprintf("%s: N_d = %s cm⁻³, V_fb = %.2f ± %.2f V", in.Name(), uncertainty.Format(nd, 2), vfb.Value, vfb.StdErr),
			X:     voff,
			Y:     inv,
			YErr:  sigma,
			Style: report.ErrorBars,
			Color: color,
		})
		lines = append(lines, line{in.Name(), r, color})

		if i == 0 {
			lo, hi = floats.Min(voff), floats.Max(voff)
		} else {
			lo, hi = min(lo, floats.Min(voff)), max(hi, floats.Max(voff))
		}
	}

	xs := linspace(lo, hi, 300)
	for _, l := range lines {
		ms.Add(fitSeries("Fit "+l.label, l.result, xs, report.Dashed, l.color))
	}
	out.Figures = append(out.Figures,
		report.NewFigure("capacitance_voff", cv),
		report.NewFigure("inverse_c2_fit", ms),
	)
	return out, nil
}

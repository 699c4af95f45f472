package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/RMahshie/labfit/internal/dataset"
	"github.com/RMahshie/labfit/internal/fit"
	"github.com/RMahshie/labfit/internal/physics"
	"github.com/RMahshie/labfit/internal/report"
	"github.com/RMahshie/labfit/internal/uncertainty"
)

// PowerLawFit configures the optional F(h) = a·h^(-n) fit.
type PowerLawFit struct {
	Window fit.Range      `mapstructure:"window"`
	// P0 is the starting (a, n); the largest force and 1 when unset.
	P0     []float64      `mapstructure:"p0" validate:"omitempty,len=2"`
	Solver fit.LMSettings `mapstructure:"solver"`
}

// AFMForceParams configures the afm-force analyzer.
type AFMForceParams struct {
	Columns struct {
		// Height in µm.
		Height dataset.ColumnRef `mapstructure:"height"`
		// Amplitude in nm.
		Amplitude dataset.ColumnRef `mapstructure:"amplitude"`
	} `mapstructure:"columns"`
	// Stiffness is the cantilever spring constant k_c, N/m.
	Stiffness float64 `mapstructure:"stiffness" validate:"gt=0"`
	// Reference is the height window far from the surface whose mean
	// amplitude is the free amplitude.
	Reference fit.Range    `mapstructure:"reference"`
	Fit       *PowerLawFit `mapstructure:"fit"`
	Output    string       `mapstructure:"output" validate:"required"`
}

var errNoReference = errors.New("reference window must have min < max")

// AFMForce converts amplitude-height spectroscopy into tip-sample force,
// F = k_c·(A_free - A), with A_free measured in a reference window.
type AFMForce struct{}

func (AFMForce) Kind() string { return "afm-force" }

func (AFMForce) Run(ctx context.Context, req *Request) (*Outcome, error) {
	params := AFMForceParams{Output: "afm_force.tsv"}
	params.Columns.Height = dataset.Col(1)
	params.Columns.Amplitude = dataset.Col(2)
	if err := req.Params(&params); err != nil {
		return nil, err
	}
	if params.Reference.Max <= params.Reference.Min {
		return nil, errNoReference
	}
	if err := requireInputs(req.Profile, 1); err != nil {
		return nil, err
	}

	out := &Outcome{Title: "AFM force spectroscopy"}
	amp := &report.Panel{
		Title:  "Oscillation amplitude as a function of height",
		XLabel: "Height (µm)",
		YLabel: "Amplitude (nm)",
	}
	force := &report.Panel{
		Title:  "Force as a function of height",
		XLabel: "Height (µm)",
		YLabel: "Force (nN)",
		Lines: []report.RefLine{
			{Vertical: true, At: params.Reference.Min, Label: "Reference window", Color: report.Brown},
			{Vertical: true, At: params.Reference.Max, Color: report.Brown},
		},
	}
	many := len(req.Profile.Inputs) > 1
	amp.NoLegend = !many

	for i, in := range req.Profile.Inputs {
		cols, _, err := req.Columns(ctx, in, params.Columns.Height, params.Columns.Amplitude)
		if err != nil {
			return nil, err
		}
		h, a := cols[0], cols[1]

		ref, err := fit.InRange(in.Name()+" reference", params.Reference, h, a)
		if err != nil {
			return nil, err
		}
		mean, std := stat.MeanStdDev(ref[1], nil)
		free := uncertainty.Q(mean, 0)
		if n := len(ref[1]); n > 1 {
			free.StdErr = std / math.Sqrt(float64(n))
		}
		f := physics.CantileverForce(params.Stiffness, free.Value, a)

		out.AddParameter(quantity(in.Name(), "Free Amplitude", "A_free", free, "nm", "%.3f"))
		out.AddParameter(value(in.Name(), "Reference Points", "", float64(len(ref[1])), "", "%.0f"))
		out.AddParameter(value(in.Name(), "Max Force", "F_max", floats.Max(f), "nN", "%.3f"))
		out.Tables = append(out.Tables, report.Table{
			Name:    numbered(params.Output, in, many),
			Header:  []string{"Height (um)", "Amplitude (nm)", "Force (nN)"},
			Columns: [][]float64{h, a, f},
		})

		color := i + 1
		amp.Add(report.Series{Label: in.Name(), X: h, Y: a, Style: report.LinePoints, Color: color})
		force.Add(report.Series{Label: in.Name(), X: h, Y: f, Style: report.Points, Color: color})

		if params.Fit == nil {
			continue
		}
		r, err := powerLaw(in.Name(), h, f, *params.Fit)
		if err != nil {
			return nil, err
		}
		pa := uncertainty.Q(r.Params[0], r.StdErr[0])
		pn := uncertainty.Q(r.Params[1], r.StdErr[1])
		out.AddParameter(quantity(in.Name(), "Power Law Prefactor", "a", pa, "nN·µm^n", "%.4g"))
		out.AddParameter(quantity(in.Name(), "Power Law Exponent", "n", pn, "", "%.3f"))
		w := params.Fit.Window
		lo, hi := math.Max(w.Min, floats.Min(h)), math.Min(w.Max, floats.Max(h))
		force.Add(fitSeries(
			fmt.Sprintf("%s: F = %.3g·h^-%.2f", in.Name(), pa.Value, pn.Value),
			r, linspace(lo, hi, 200), report.Dashed, color,
		))
	}

	ampFig := report.NewFigure("amplitude_height", amp)
	ampFig.Width, ampFig.Height = 10, 6
	forceFig := report.NewFigure("force_height", force)
	forceFig.Width, forceFig.Height = 10, 6
	out.Figures = append(out.Figures, ampFig, forceFig)
	return out, nil
}

// powerLaw fits F(h) inside the window, leaving out non-positive heights
// where the model diverges.
func powerLaw(name string, h, f []float64, cfg PowerLawFit) (*fit.Result, error) {
	sel, err := fit.InRange(name+" fit", cfg.Window, h, f)
	if err != nil {
		return nil, err
	}
	fs, hs, _ := positive(sel[1], sel[0])
	if len(hs) == 0 {
		return nil, fmt.Errorf("%s fit: no positive heights in %s: %w", name, cfg.Window, fit.ErrEmptySelection)
	}
	p0 := cfg.P0
	if len(p0) == 0 {
		p0 = []float64{floats.Max(fs), 1}
	}
	r, err := fit.Nonlinear(fit.InversePowerLaw, hs, fs, nil, p0, &cfg.Solver)
	if err != nil {
		return nil, fmt.Errorf("%s power-law fit: %w", name, err)
	}
	return r, nil
}

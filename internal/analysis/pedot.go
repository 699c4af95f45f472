package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"

	"github.com/RMahshie/labfit/internal/config"
	"github.com/RMahshie/labfit/internal/dataset"
	"github.com/RMahshie/labfit/internal/physics"
	"github.com/RMahshie/labfit/internal/report"
)

// potentiostatFormat is the potentiostat export: ";" with decimal commas,
// or plain CSV when re-saved.
var potentiostatFormat = func() dataset.Format {
	f := dataset.Semicolon
	csv := dataset.CSV
	f.Fallback = &csv
	return f
}()

// withFormat gives in the default format when neither it nor the profile
// sets one.
func withFormat(in config.Input, p *config.Profile, def dataset.Format) config.Input {
	if in.Format != nil || p.Format.Delimiter != "" || p.Format.Header {
		return in
	}
	f := def
	in.Format = &f
	return in
}

var errUnsortedTime = errors.New("time column is not increasing")

// CyclicVoltammetryParams configures the cyclic-voltammetry analyzer.
type CyclicVoltammetryParams struct {
	Columns struct {
		Potential dataset.ColumnRef `mapstructure:"potential"`
		Current   dataset.ColumnRef `mapstructure:"current"`
		Scan      dataset.ColumnRef `mapstructure:"scan"`
		Time      dataset.ColumnRef `mapstructure:"time"`
	} `mapstructure:"columns"`
	Film physics.Film `mapstructure:"film"`
	// Thickness integrates the current over the whole trace.
	Thickness bool   `mapstructure:"thickness"`
	Output    string `mapstructure:"output" validate:"required"`
}

// Cycle is the part of a voltammogram recorded during one scan.
type Cycle struct {
	Scan      float64
	Potential []float64
	Current   []float64
	Time      []float64
}

// CyclicVoltammetry plots each scan of a voltammogram and estimates the
// deposited film thickness from the total charge.
type CyclicVoltammetry struct{}

func (CyclicVoltammetry) Kind() string { return "cyclic-voltammetry" }

func (CyclicVoltammetry) Run(ctx context.Context, req *Request) (*Outcome, error) {
	params := CyclicVoltammetryParams{
		Film:      physics.Film{MolarMass: 142.19, Density: 1.3, Area: 1},
		Thickness: true,
		Output:    "cv_cycles.tsv",
	}
	params.Columns.Potential = dataset.Named("Potential applied (V)")
	params.Columns.Current = dataset.Named("WE(1).Current (A)")
	params.Columns.Scan = dataset.Named("Scan")
	params.Columns.Time = dataset.Named("Time (s)")
	if err := req.Params(&params); err != nil {
		return nil, err
	}
	if err := requireInputs(req.Profile, 1); err != nil {
		return nil, err
	}

	out := &Outcome{Title: "Cyclic voltammetry"}
	many := len(req.Profile.Inputs) > 1
	for _, in := range req.Profile.Inputs {
		in = withFormat(in, req.Profile, potentiostatFormat)
		c := params.Columns
		cols, _, err := req.Columns(ctx, in, c.Potential, c.Current, c.Scan, c.Time)
		if err != nil {
			return nil, err
		}
		cycles := SplitCycles(cols[0], cols[1], cols[2], cols[3])
		out.AddParameter(value(in.Name(), "Cycles", "", float64(len(cycles)), "", "%.0f"))

		panel := &report.Panel{
			Title:  "Cyclic Voltammetry - " + in.Name(),
			XLabel: "Potential applied (V)",
			YLabel: "Current (A)",
		}
		table := make([][]float64, 3)
		for _, cy := range cycles {
			panel.Add(report.Series{Label: fmt.Sprintf("Cycle %g", cy.Scan), X: cy.Potential, Y: cy.Current, Style: report.Line})
			table[0] = append(table[0], cy.Scan)
			table[1] = append(table[1], float64(len(cy.Current)))
			q, err := Charge(cy.Time, cy.Current)
			if err != nil {
				out.Note(fmt.Sprintf("%s: cycle %g: charge not computed: %v", in.Name(), cy.Scan, err))
			}
			table[2] = append(table[2], q)
		}
		out.Tables = append(out.Tables, report.Table{
			Name:    numbered(params.Output, in, many),
			Header:  []string{"Scan", "Points", "Charge (C)"},
			Columns: table,
			Formats: []string{"%g", "%.0f", "%.6e"},
		})
		fig := report.NewFigure(numbered("cyclic_voltammetry", in, many), panel)
		fig.Width, fig.Height = 10, 6
		out.Figures = append(out.Figures, fig)

		if !params.Thickness {
			continue
		}
		q, err := Charge(cols[3], cols[1])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", in.Name(), err)
		}
		d := params.Film.Thickness(q)
		out.AddParameter(value(in.Name(), "Total Charge", "Q", d.Charge, "C", "%.4e"))
		out.AddParameter(value(in.Name(), "Deposited Monomers", "N_m", d.Monomers, "", "%.4e"))
		out.AddParameter(value(in.Name(), "Film Thickness", "l", d.Thickness, "nm", "%.2f"))
	}
	return out, nil
}

// SplitCycles groups rows by scan number, keeping scans in the order they
// first appear.
func SplitCycles(potential, current, scan, time []float64) []Cycle {
	var cycles []Cycle
	index := make(map[float64]int)
	for i, s := range scan {
		j, ok := index[s]
		if !ok {
			j = len(cycles)
			index[s] = j
			cycles = append(cycles, Cycle{Scan: s})
		}
		cy := &cycles[j]
		cy.Potential = append(cy.Potential, potential[i])
		cy.Current = append(cy.Current, current[i])
		cy.Time = append(cy.Time, time[i])
	}
	return cycles
}

// Charge integrates current over time with the trapezoidal rule.
func Charge(t, i []float64) (float64, error) {
	if len(t) < 2 {
		return 0, fmt.Errorf("need at least 2 samples to integrate, got %d", len(t))
	}
	if !sort.Float64sAreSorted(t) {
		return 0, errUnsortedTime
	}
	return integrate.Trapezoidal(t, i), nil
}

// Roles of impedance-spectrum inputs.
const (
	RolePhasePoints = "phase-points"
	RolePhaseFit    = "phase-fit"
	RoleZPoints     = "z-points"
	RoleZFit        = "z-fit"
)

// ImpedanceSpectrumParams configures the impedance-spectrum analyzer.
type ImpedanceSpectrumParams struct {
	Columns struct {
		Frequency dataset.ColumnRef `mapstructure:"frequency"`
		Phase     dataset.ColumnRef `mapstructure:"phase"`
		Impedance dataset.ColumnRef `mapstructure:"impedance"`
	} `mapstructure:"columns"`
}

// ImpedanceSpectrum overlays measured phase and |Z| spectra with the
// spectra of fitted equivalent circuits exported by the potentiostat.
type ImpedanceSpectrum struct{}

func (ImpedanceSpectrum) Kind() string { return "impedance-spectrum" }

func (ImpedanceSpectrum) Run(ctx context.Context, req *Request) (*Outcome, error) {
	var params ImpedanceSpectrumParams
	params.Columns.Frequency = dataset.Named("Frequency (Hz)")
	params.Columns.Phase = dataset.Named("-Phase (°)")
	params.Columns.Impedance = dataset.Named("Z (Ω)")
	if err := req.Params(&params); err != nil {
		return nil, err
	}
	if err := requireInputs(req.Profile, 1); err != nil {
		return nil, err
	}
	for _, in := range req.Profile.Inputs {
		switch in.Role {
		case RolePhasePoints, RolePhaseFit, RoleZPoints, RoleZFit:
		default:
			return nil, fmt.Errorf("%s: unknown role %q", in.Name(), in.Role)
		}
	}

	out := &Outcome{Title: "Impedance spectrum"}
	fig := report.Grid("impedance_spectrum", 2, 1)
	fig.Width, fig.Height = 10, 12
	phase := fig.At(0, 0)
	phase.Title, phase.XLabel, phase.YLabel, phase.LogX = "Phase vs. Frequency", "Frequency (Hz)", "-Phase (°)", true
	z := fig.At(1, 0)
	z.Title, z.XLabel, z.YLabel, z.LogX = "Impedance vs. Frequency", "Frequency (Hz)", "Z (Ω)", true

	layers := []struct {
		panel  *report.Panel
		column dataset.ColumnRef
		points string
		fits   string
		name   string
		unit   string
	}{
		{phase, params.Columns.Phase, RolePhasePoints, RolePhaseFit, "Phase", "°"},
		{z, params.Columns.Impedance, RoleZPoints, RoleZFit, "Impedance", "Ω"},
	}
	for _, l := range layers {
		for _, in := range req.Profile.InputsWithRole(l.points) {
			in = withFormat(in, req.Profile, dataset.Semicolon)
			cols, _, err := req.Columns(ctx, in, params.Columns.Frequency, l.column)
			if err != nil {
				return nil, err
			}
			f, y := cols[0], cols[1]
			l.panel.Add(report.Series{Label: in.Name(), X: f, Y: y, Style: report.Points})
			k := floats.MaxIdx(y)
			out.AddParameter(value(in.Name(), "Points", "", float64(len(y)), "", "%.0f"))
			out.AddParameter(value(in.Name(), "Max "+l.name, "", y[k], l.unit, "%.4g"))
			out.AddParameter(value(in.Name(), "Frequency at Max "+l.name, "", f[k], "Hz", "%.4g"))
		}
		for _, in := range req.Profile.InputsWithRole(l.fits) {
			in = withFormat(in, req.Profile, dataset.Semicolon)
			cols, _, err := req.Columns(ctx, in, params.Columns.Frequency, l.column)
			if err != nil {
				return nil, err
			}
			l.panel.Add(report.Series{Label: in.Name(), X: cols[0], Y: cols[1], Style: report.Line})
		}
	}
	out.Figures = append(out.Figures, fig)
	return out, nil
}

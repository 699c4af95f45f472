package analysis

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/RMahshie/labfit/internal/dataset"
	"github.com/RMahshie/labfit/internal/fit"
	"github.com/RMahshie/labfit/internal/physics"
	"github.com/RMahshie/labfit/internal/report"
	"github.com/RMahshie/labfit/internal/spectrum"
	"github.com/RMahshie/labfit/internal/uncertainty"
)

// GainParams configures the gain analyzer.
type GainParams struct {
	Columns struct {
		// Vin is the input amplitude in mV.
		Vin       dataset.ColumnRef `mapstructure:"vin"`
		Vout      dataset.ColumnRef `mapstructure:"vout"`
		Frequency dataset.ColumnRef `mapstructure:"frequency"`
	} `mapstructure:"columns"`
	Output string `mapstructure:"output" validate:"required"`
}

// GainTable turns an amplifier sweep into a gain against frequency table.
// Malformed rows are skipped and reported.
type GainTable struct{}

func (GainTable) Kind() string { return "gain" }

func (GainTable) Run(ctx context.Context, req *Request) (*Outcome, error) {
	params := GainParams{Output: "gain_vs_frequency.tsv"}
	params.Columns.Vin = dataset.Col(0)
	params.Columns.Vout = dataset.Col(2)
	params.Columns.Frequency = dataset.Col(4)
	if err := req.Params(&params); err != nil {
		return nil, err
	}
	if err := requireInputs(req.Profile, 1); err != nil {
		return nil, err
	}

	out := &Outcome{Title: "Amplifier gain"}
	panel := &report.Panel{Title: "Gain vs Frequency", XLabel: "Frequency (Hz)", YLabel: "Gain", LogX: true}
	many := len(req.Profile.Inputs) > 1
	for _, in := range req.Profile.Inputs {
		f := in.FormatOr(req.Profile.Format)
		f.Lenient = true
		if len(f.SkipPrefixes) == 0 {
			f.SkipPrefixes = []string{"Vin"}
		}
		in.Format = &f

		cols, skipped, err := req.Columns(ctx, in, params.Columns.Vin, params.Columns.Vout, params.Columns.Frequency)
		if err != nil {
			return nil, err
		}
		for _, s := range skipped {
			out.Note(fmt.Sprintf("%s: line %d skipped: %s", in.Name(), s.Line, s.Text))
		}

		var gain, freq []float64
		for i, vin := range cols[0] {
			if vin == 0 {
				out.Note(fmt.Sprintf("%s: row %d skipped: zero input amplitude", in.Name(), i+1))
				continue
			}
			gain = append(gain, physics.Gain(vin, cols[1][i]))
			freq = append(freq, cols[2][i])
		}
		if len(gain) == 0 {
			return nil, fmt.Errorf("%s: %w", in.Name(), dataset.ErrNoData)
		}

		out.Tables = append(out.Tables, report.Table{
			Name:    numbered(params.Output, in, many),
			Header:  []string{"Gain", "Frequency(Hz)"},
			Columns: [][]float64{gain, freq},
			Formats: []string{"%.6f", dataset.Repr},
		})
		panel.Add(report.Series{Label: in.Name(), X: freq, Y: gain, Style: report.Points})
		out.AddParameter(value(in.Name(), "Points", "", float64(len(gain)), "", "%.0f"))
		out.AddParameter(value(in.Name(), "Skipped Rows", "", float64(len(skipped)), "", "%.0f"))
	}
	panel.NoLegend = !many
	out.Figures = append(out.Figures, report.NewFigure("gain_vs_frequency", panel))
	return out, nil
}

// TransferFunctionParams configures the transfer-function analyzer.
type TransferFunctionParams struct {
	Columns struct {
		Gain      dataset.ColumnRef `mapstructure:"gain"`
		Frequency dataset.ColumnRef `mapstructure:"frequency"`
	} `mapstructure:"columns"`
	// P0 is the starting guess (G0, f_b).
	P0     []float64      `mapstructure:"p0" validate:"len=2"`
	Solver fit.LMSettings `mapstructure:"solver"`
	// Points is the number of log-spaced frequencies the model is drawn at.
	Points int `mapstructure:"points" validate:"gte=2"`
}

// TransferFunction fits a first-order low-pass response to gain data.
type TransferFunction struct{}

func (TransferFunction) Kind() string { return "transfer-function" }

func (TransferFunction) Run(ctx context.Context, req *Request) (*Outcome, error) {
	params := TransferFunctionParams{
		P0:     []float64{1000, 10000},
		Solver: fit.DefaultLMSettings(),
		Points: 500,
	}
	params.Columns.Gain = dataset.Col(0)
	params.Columns.Frequency = dataset.Col(1)
	if err := req.Params(&params); err != nil {
		return nil, err
	}
	if err := requireInputs(req.Profile, 1); err != nil {
		return nil, err
	}

	in := req.Profile.Inputs[0]
	cols, _, err := req.Columns(ctx, in, params.Columns.Gain, params.Columns.Frequency)
	if err != nil {
		return nil, err
	}
	freq, gain := sortBy(cols[1], cols[0])

	r, err := fit.Nonlinear(fit.LowPassGain, freq, gain, nil, params.P0, &params.Solver)
	if err != nil {
		return nil, fmt.Errorf("low-pass fit: %w", err)
	}
	g0 := uncertainty.Q(r.Params[0], r.StdErr[0])
	fb := uncertainty.Q(r.Params[1], r.StdErr[1])

	out := &Outcome{Title: "Transfer function"}
	out.AddParameter(quantity("", "DC Gain", "G_0", g0, "", "%.1f"))
	out.AddParameter(quantity("", "Bandwidth", "f_b", fb, "Hz", "%.4g"))
	out.AddParameter(value("", "Iterations", "", float64(r.Iterations), "", "%.0f"))

	_, pos, _ := positive(gain, freq)
	if len(pos) == 0 {
		return nil, fmt.Errorf("%s: no positive frequencies to plot", in.Name())
	}
	panel := &report.Panel{Title: "Transfer Function and Fit", XLabel: "Frequency (Hz)", YLabel: "Gain", LogX: true}
	panel.Add(report.Series{Label: "Experimental data", X: freq, Y: gain, Style: report.Points})
	panel.Add(fitSeries(
		fmt.Sprintf("Fit: G_0 = %.1f±%.1f, f_b = %.2f±%.2f kHz", g0.Value, g0.StdErr, fb.Value/1000, fb.StdErr/1000),
		r, logspace(floats.Min(pos), floats.Max(pos), params.Points), report.Line, report.Orange,
	))
	fig := report.NewFigure("transfer_function", panel)
	fig.Width, fig.Height = 9, 6
	out.Figures = append(out.Figures, fig)
	return out, nil
}

// sortBy returns x sorted ascending with y permuted alongside.
func sortBy(x, y []float64) ([]float64, []float64) {
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int { return cmp.Compare(x[a], x[b]) })
	xs := make([]float64, len(x))
	ys := make([]float64, len(y))
	for i, j := range idx {
		xs[i], ys[i] = x[j], y[j]
	}
	return xs, ys
}

// NoisePSDParams configures the noise-psd analyzer.
type NoisePSDParams struct {
	Circuit physics.NoiseCircuit `mapstructure:"circuit"`
	Columns struct {
		Time    dataset.ColumnRef `mapstructure:"time"`
		Voltage dataset.ColumnRef `mapstructure:"voltage"`
	} `mapstructure:"columns"`
	// ResistanceScale converts each input's Value to ohms.
	ResistanceScale float64 `mapstructure:"resistance_scale" validate:"gt=0"`
	// Band is the flat part of the spectrum averaged for v_n².
	Band fit.Range `mapstructure:"band"`
	// Normalization is "one-sided" or "legacy".
	Normalization string `mapstructure:"normalization" validate:"oneof=one-sided legacy"`
	// Rows of the per-trace figure grids.
	Rows int `mapstructure:"rows" validate:"gte=1"`
}

// NoiseTrace is the spectral summary of one noise recording.
type NoiseTrace struct {
	Label      string
	Resistance float64
	Equivalent float64
	// Density is the mean PSD in the band, V²/Hz.
	Density float64
	// Area is the trapezoidal integral of the PSD over the band, V².
	Area     float64
	Variance float64
	Time     []float64
	Voltage  []float64
	Freqs    []float64
	PSD      []float64
}

// NoisePSD estimates the Boltzmann constant from thermal-noise traces of
// several resistors through the slope of v_n² against R_eq.
type NoisePSD struct{}

func (NoisePSD) Kind() string { return "noise-psd" }

func (NoisePSD) Run(ctx context.Context, req *Request) (*Outcome, error) {
	params := NoisePSDParams{
		Circuit:         physics.NoiseCircuit{Series: 200, Bias: 200000, Gain: 964, Temperature: 297},
		ResistanceScale: 1e3,
		Band:            fit.Range{Min: 1000, Max: 9000, Inclusive: true},
		Normalization:   "one-sided",
		Rows:            2,
	}
	params.Columns.Time = dataset.Col(0)
	params.Columns.Voltage = dataset.Col(1)
	if err := req.Params(&params); err != nil {
		return nil, err
	}
	if err := requireInputs(req.Profile, 2); err != nil {
		return nil, err
	}

	out := &Outcome{Title: "Thermal noise"}
	var traces []NoiseTrace
	for _, in := range req.Profile.Inputs {
		if in.Value <= 0 {
			return nil, fmt.Errorf("%s: resistance (value) must be positive", in.Name())
		}
		cols, _, err := req.Columns(ctx, in, params.Columns.Time, params.Columns.Voltage)
		if err != nil {
			return nil, err
		}
		tr, err := analyzeTrace(cols[0], cols[1], in.Value*params.ResistanceScale, params)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", in.Name(), err)
		}
		tr.Label = in.Name()
		traces = append(traces, *tr)

		out.AddParameter(value(tr.Label, "Equivalent Resistance", "R_eq", tr.Equivalent, "Ω", "%.1f"))
		out.AddParameter(value(tr.Label, "Noise Density", "v_n²", tr.Density, "V²/Hz", "%.3e"))
		out.AddParameter(value(tr.Label, "Band Area", "", tr.Area, "V²", "%.3e"))
		out.AddParameter(value(tr.Label, "Variance", "V_rms²", tr.Variance, "V²", "%.3e"))
	}

	reqs := make([]float64, len(traces))
	vn2 := make([]float64, len(traces))
	for i, tr := range traces {
		reqs[i], vn2[i] = tr.Equivalent, tr.Density
	}
	r, err := fit.Proportional(reqs, vn2, nil)
	if err != nil {
		return nil, fmt.Errorf("v_n² against R_eq: %w", err)
	}
	kb := params.Circuit.BoltzmannFromSlope(slope(r))
	out.AddParameter(quantity("", "Slope", "v_n²/R_eq", slope(r), "V²/(Hz·Ω)", "%.3e"))
	out.AddParameter(quantity("", "Boltzmann Constant", "k_B", kb, "J/K", "%.3e"))
	if params.Normalization == "legacy" {
		out.Note("legacy |X|²/(N·dt) normalization: v_n² and k_B are not densities")
	}

	out.Tables = append(out.Tables, noiseTable(traces))
	out.Figures = append(out.Figures, noiseFigures(traces, r, kb, params)...)
	return out, nil
}

func analyzeTrace(t, v []float64, resistance float64, params NoisePSDParams) (*NoiseTrace, error) {
	if len(t) < 2 {
		return nil, fmt.Errorf("%w: got %d", spectrum.ErrShortSignal, len(t))
	}
	t0 := t[0]
	ts := make([]float64, len(t))
	for i := range t {
		ts[i] = t[i] - t0
	}
	vc := scale(v, 1/params.Circuit.Gain)
	dt := ts[1] - ts[0]

	psdFunc := spectrum.PSD
	if params.Normalization == "legacy" {
		psdFunc = spectrum.LegacyPSD
	}
	freqs, psd, err := psdFunc(vc, dt)
	if err != nil {
		return nil, err
	}
	lo, hi := params.Band.Min, params.Band.Max
	density, err := spectrum.BandMean(freqs, psd, lo, hi)
	if err != nil {
		return nil, err
	}
	area, err := spectrum.BandArea(freqs, psd, lo, hi)
	if err != nil {
		return nil, err
	}
	bf, bp, err := spectrum.Band(freqs, psd, lo, hi)
	if err != nil {
		return nil, err
	}

	return &NoiseTrace{
		Resistance: resistance,
		Equivalent: params.Circuit.EquivalentResistance(uncertainty.Q(resistance, 0)).Value,
		Density:    density,
		Area:       area,
		Variance:   spectrum.Variance(vc),
		Time:       ts,
		Voltage:    v,
		Freqs:      bf,
		PSD:        bp,
	}, nil
}

func noiseTable(traces []NoiseTrace) report.Table {
	cols := make([][]float64, 5)
	for _, tr := range traces {
		cols[0] = append(cols[0], tr.Resistance)
		cols[1] = append(cols[1], tr.Equivalent)
		cols[2] = append(cols[2], tr.Density)
		cols[3] = append(cols[3], tr.Area)
		cols[4] = append(cols[4], tr.Variance)
	}
	return report.Table{
		Name:    "noise_summary.tsv",
		Header:  []string{"R (Ohm)", "R_eq (Ohm)", "v_n^2 (V^2/Hz)", "Area (V^2)", "Variance (V^2)"},
		Columns: cols,
		Formats: []string{"%.6g", "%.6g", "%.6e", "%.6e", "%.6e"},
	}
}

func noiseFigures(traces []NoiseTrace, r *fit.Result, kb uncertainty.Quantity, params NoisePSDParams) []*report.Figure {
	rows := min(params.Rows, len(traces))
	cols := (len(traces) + rows - 1) / rows

	raw := report.Grid("noise_raw_signal", rows, cols)
	psd := report.Grid("noise_power_spectra", rows, cols)
	for i, tr := range traces {
		p := raw.At(i/cols, i%cols)
		p.Title = "Noise Signal - " + tr.Label
		p.XLabel, p.YLabel, p.NoLegend = "Time (s)", "Voltage (V)", true
		p.Add(report.Series{X: tr.Time, Y: tr.Voltage, Style: report.Line})

		q := psd.At(i/cols, i%cols)
		q.Title = "Noise Power Spectrum - " + tr.Label
		q.XLabel, q.YLabel, q.NoLegend = "Frequency (Hz)", "Power Density (V²/Hz)", true
		q.Add(report.Series{X: tr.Freqs, Y: tr.PSD, Style: report.Line})
	}

	req := make([]float64, len(traces))
	vn2 := make([]float64, len(traces))
	rk := make([]float64, len(traces))
	variance := make([]float64, len(traces))
	area := make([]float64, len(traces))
	for i, tr := range traces {
		req[i], vn2[i] = tr.Equivalent, tr.Density
		rk[i], variance[i], area[i] = tr.Resistance/1e3, tr.Variance, tr.Area
	}
	top := &report.Panel{
		Title:  "Linear fit of v_n² against R_eq",
		YLabel: "v_n² (V²/Hz)",
	}
	top.Add(report.Series{Label: "Data (v_n²)", X: req, Y: vn2, Style: report.Points})
	top.Add(fitSeries(
		fmt.Sprintf("Fit: v_n² = (%.2e) R, k_B = %s J/K", r.Params[0], uncertainty.Format(kb, 2)),
		r, linspace(floats.Min(req), floats.Max(req), 200), report.Line, report.Green,
	))
	fitFig := report.WithResiduals("noise_fit", top, residualPanel("Equivalent resistance R_eq (Ohm)", req, r, report.Red))
	fitFig.Width, fitFig.Height = 10, 8

	power := report.Grid("noise_power_vs_resistance", 1, 2)
	power.Width, power.Height = 14, 6
	v := power.At(0, 0)
	v.Title, v.XLabel, v.YLabel, v.NoLegend = "V_rms² vs Resistance", "Resistance (kOhm)", "V_rms² (V²)", true
	v.Add(report.Series{X: rk, Y: variance, Style: report.LinePoints})
	a := power.At(0, 1)
	a.Title, a.XLabel, a.YLabel, a.NoLegend = "Area (Integrated Power) vs Resistance", "Resistance (kOhm)", "Area (V²)", true
	a.Add(report.Series{X: rk, Y: area, Style: report.LinePoints, Color: report.Orange})

	return []*report.Figure{raw, psd, fitFig, power}
}

// BoltzmannVarianceParams configures the boltzmann-variance analyzer.
type BoltzmannVarianceParams struct {
	Circuit physics.NoiseCircuit `mapstructure:"circuit"`
	Columns struct {
		Resistance    dataset.ColumnRef `mapstructure:"resistance"`
		Voltage       dataset.ColumnRef `mapstructure:"voltage"`
		ResistanceErr dataset.ColumnRef `mapstructure:"resistance_err"`
		VoltageErr    dataset.ColumnRef `mapstructure:"voltage_err"`
	} `mapstructure:"columns"`
	// ResistanceScale converts the resistance columns to Ω (kΩ by default).
	ResistanceScale float64 `mapstructure:"resistance_scale" validate:"gt=0"`
	// VoltageScale converts the rms voltage columns to V (mV by default).
	VoltageScale float64 `mapstructure:"voltage_scale" validate:"gt=0"`
}

var errNoBandwidth = errors.New("circuit bandwidth must be positive")

// BoltzmannVariance estimates k_B for each resistor from its rms noise
// voltage measured over a known bandwidth.
type BoltzmannVariance struct{}

func (BoltzmannVariance) Kind() string { return "boltzmann-variance" }

func (BoltzmannVariance) Run(ctx context.Context, req *Request) (*Outcome, error) {
	params := BoltzmannVarianceParams{
		Circuit: physics.NoiseCircuit{
			Series:      200,
			Bias:        200000,
			Gain:        953,
			Temperature: 293,
			Bandwidth:   10.97e3,
		},
		ResistanceScale: 1e3,
		VoltageScale:    1e-3,
	}
	params.Columns.Resistance = dataset.Col(0)
	params.Columns.Voltage = dataset.Col(1)
	params.Columns.ResistanceErr = dataset.Col(3)
	params.Columns.VoltageErr = dataset.Col(4)
	if err := req.Params(&params); err != nil {
		return nil, err
	}
	if params.Circuit.Bandwidth <= 0 {
		return nil, errNoBandwidth
	}
	if err := requireInputs(req.Profile, 1); err != nil {
		return nil, err
	}

	c := params.Columns
	cols, _, err := req.Columns(ctx, req.Profile.Inputs[0], c.Resistance, c.Voltage, c.ResistanceErr, c.VoltageErr)
	if err != nil {
		return nil, err
	}

	n := len(cols[0])
	table := make([][]float64, 6)
	for i := range table {
		table[i] = make([]float64, n)
	}
	out := &Outcome{Title: "Boltzmann constant from rms noise"}
	var sumW, sumWK float64
	for i := 0; i < n; i++ {
		r := uncertainty.Q(cols[0][i]*params.ResistanceScale, cols[2][i]*params.ResistanceScale)
		k := params.VoltageScale / params.Circuit.Gain
		v := uncertainty.Q(cols[1][i]*k, cols[3][i]*k)
		rEq := params.Circuit.EquivalentResistance(r)
		kb := params.Circuit.BoltzmannFromRMS(v, rEq)

		table[0][i], table[1][i] = rEq.Value, rEq.StdErr
		table[2][i], table[3][i] = v.Value, v.StdErr
		table[4][i], table[5][i] = kb.Value, kb.StdErr
		group := fmt.Sprintf("R = %.4g kΩ", r.Value/1e3)
		out.AddParameter(quantity(group, "Equivalent Resistance", "R_eq", rEq, "Ω", "%.2f"))
		out.AddParameter(quantity(group, "Corrected rms Voltage", "V_rms", v, "V", "%.6f"))
		out.AddParameter(quantity(group, "Boltzmann Constant", "k_B", kb, "J/K", "%.3e"))
		if kb.StdErr > 0 {
			w := 1 / (kb.StdErr * kb.StdErr)
			sumW += w
			sumWK += w * kb.Value
		}
	}
	if sumW > 0 {
		mean := uncertainty.Q(sumWK/sumW, 1/math.Sqrt(sumW))
		out.AddParameter(quantity("", "Weighted Mean Boltzmann Constant", "k_B", mean, "J/K", "%.3e"))
	}

	out.Tables = append(out.Tables, report.Table{
		Name:    "kb_estimates.tsv",
		Header:  []string{"R_eq (Ohm)", "dR_eq (Ohm)", "V_rms (V)", "dV_rms (V)", "k_B (J/K)", "dk_B (J/K)"},
		Columns: table,
		Formats: []string{"%.2f", "%.2f", "%.6e", "%.6e", "%.6e", "%.6e"},
	})

	panel := &report.Panel{
		Title:  "Estimation of Boltzmann Constant",
		XLabel: "Equivalent Resistance R_eq (Ohm)",
		YLabel: "Estimated k_B (J/K)",
	}
	panel.Add(report.Series{
		Label: "Estimated k_B",
		X:     table[0], XErr: table[1],
		Y: table[4], YErr: table[5],
		Style: report.ErrorBars,
		Color: report.Blue,
	})
	panel.Lines = append(panel.Lines, report.RefLine{At: physics.Boltzmann, Label: "Theoretical k_B", Color: report.Red})
	fig := report.NewFigure("boltzmann_estimate", panel)
	fig.Width, fig.Height = 10, 6
	out.Figures = append(out.Figures, fig)
	return out, nil
}

package analysis

import (
	"context"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/labfit/internal/config"
	"github.com/RMahshie/labfit/internal/dataset"
	"github.com/RMahshie/labfit/internal/fit"
	"github.com/RMahshie/labfit/internal/physics"
	"github.com/RMahshie/labfit/internal/storage"
	"github.com/RMahshie/labfit/internal/uncertainty"
	"github.com/RMahshie/labfit/pkg/models"
)

// rows renders numeric rows as a whitespace-separated file.
func rows(data [][]float64) []byte {
	var b strings.Builder
	for _, r := range data {
		for j, v := range r {
			if j > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func profile(kind string, params map[string]any, paths ...string) *config.Profile {
	p := &config.Profile{Name: kind + "-test", Kind: kind, Params: params}
	for _, path := range paths {
		p.Inputs = append(p.Inputs, config.Input{Path: path})
	}
	return p
}

func run(t *testing.T, p *config.Profile, files storage.Files) (*Outcome, error) {
	t.Helper()
	return Run(context.Background(), DefaultRegistry(), p, files)
}

func param(t *testing.T, out *Outcome, group, name string) models.Parameter {
	t.Helper()
	for _, p := range out.Parameters {
		if p.Group == group && p.Name == name {
			return p
		}
	}
	t.Fatalf("parameter [%s] %s not found", group, name)
	return models.Parameter{}
}

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()
	assert.Equal(t, []string{
		"afm-force",
		"boltzmann-variance",
		"capacitance",
		"cyclic-voltammetry",
		"gain",
		"impedance-spectrum",
		"mott-schottky",
		"noise-psd",
		"output-characteristics",
		"transfer-function",
		"transfer-linear",
		"transfer-log",
		"xy-plot",
	}, reg.Kinds())

	_, err := reg.Get("fourier")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestShippedProfiles(t *testing.T) {
	reg := DefaultRegistry()
	profiles, err := config.LoadProfiles("../../configs/profiles.yaml", reg.Kinds())
	require.NoError(t, err)

	kinds := map[string]bool{}
	for _, name := range profiles.Names() {
		p := profiles[name]
		kinds[p.Kind] = true
		// Params decode and validate before any input is read.
		_, err := Run(context.Background(), reg, p, storage.Files{})
		assert.ErrorIs(t, err, storage.ErrNotFound, name)
	}
	assert.Len(t, kinds, len(reg.Kinds()))
}

func TestRunUnknownFile(t *testing.T) {
	_, err := run(t, profile("xy-plot", nil, "missing.txt"), storage.Files{})
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Contains(t, err.Error(), "xy-plot-test (xy-plot)")
}

func TestRunInvalidParams(t *testing.T) {
	p := profile("xy-plot", map[string]any{"style": "bars"}, "a.txt")
	_, err := run(t, p, storage.Files{"a.txt": rows([][]float64{{1, 2}})})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oneof")

	p = profile("xy-plot", map[string]any{"colour": "red"}, "a.txt")
	_, err = run(t, p, storage.Files{"a.txt": rows([][]float64{{1, 2}})})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")
}

func TestCapacitance(t *testing.T) {
	p := profile("capacitance", nil, "c.txt")
	p.Format = dataset.TSV
	files := storage.Files{"c.txt": []byte("Voff\tVout\tGain\n0\t0.01\t10\n1\t0.02\t10\n")}

	out, err := run(t, p, files)
	require.NoError(t, err)

	require.Len(t, out.Tables, 1)
	tbl := out.Tables[0]
	assert.Equal(t, "output_capacitance.tsv", tbl.Name)
	assert.Equal(t, []string{"Voff (V)", "Capacitance (F)"}, tbl.Header)
	assert.Equal(t, []float64{0, 1}, tbl.Columns[0])
	assert.InDelta(t, 1/(2*math.Pi*1000*10), tbl.Columns[1][0], 1e-15)
	assert.InDelta(t, 3.183098861837907e-05, tbl.Columns[1][1], 1e-15)

	require.Len(t, out.Figures, 1)
	assert.Equal(t, "capacitance", out.Figures[0].Name)
	assert.Equal(t, 2.0, param(t, out, "c.txt", "Points").Value)
}

func TestCapacitanceNamesTablePerInput(t *testing.T) {
	p := profile("capacitance", map[string]any{"frequency": 10000}, "a/1kHz.tsv", "a/10kHz.tsv")
	p.Format = dataset.TSV
	data := []byte("Voff\tVout\tGain\n0\t0.01\t10\n")
	out, err := run(t, p, storage.Files{"a/1kHz.tsv": data, "a/10kHz.tsv": data})
	require.NoError(t, err)

	require.Len(t, out.Tables, 2)
	assert.Equal(t, "output_capacitance_1kHz.tsv", out.Tables[0].Name)
	assert.Equal(t, "output_capacitance_10kHz.tsv", out.Tables[1].Name)
	assert.InDelta(t, 1/(2*math.Pi*10000*10), out.Tables[0].Columns[1][0], 1e-15)
}

func mottSchottkyData(m, b float64) []byte {
	var data [][]float64
	for v := -1.0; v <= 1.0; v += 0.25 {
		data = append(data, []float64{v, 1 / math.Sqrt(m*v+b)})
	}
	return rows(data)
}

func TestMottSchottky(t *testing.T) {
	const m, b = -4e18, 1e19
	out, err := run(t, profile("mott-schottky", nil, "cv.txt"), storage.Files{"cv.txt": mottSchottkyData(m, b)})
	require.NoError(t, err)

	j := physics.Junction{Area: 2.89e-6, Permittivity: physics.SiliconPermittivity, Temperature: 293}
	nd := j.DopingDensity(uncertainty.Q(m, 0)).Value
	vfb := j.FlatbandPotential(uncertainty.Q(m, 0), uncertainty.Q(b, 0)).Value

	assert.InEpsilon(t, nd, param(t, out, "cv.txt", "Doping Density").Value, 1e-6)
	assert.InDelta(t, vfb, param(t, out, "cv.txt", "Flatband Potential").Value, 1e-6)

	require.Len(t, out.Figures, 2)
	assert.Equal(t, "capacitance_voff", out.Figures[0].Name)
	assert.Equal(t, "inverse_c2_fit", out.Figures[1].Name)
	// Error-bar data plus one fitted line.
	assert.Len(t, out.Figures[1].Panels[0].Series, 2)
}

func TestMottSchottkyEmptyWindow(t *testing.T) {
	params := map[string]any{"window": map[string]any{"min": 5, "max": 6}}
	_, err := run(t, profile("mott-schottky", params, "cv.txt"), storage.Files{"cv.txt": mottSchottkyData(-4e18, 1e19)})
	require.Error(t, err)
	assert.ErrorIs(t, err, fit.ErrEmptySelection)
	assert.Contains(t, err.Error(), "cv.txt")
}

func TestXYPlot(t *testing.T) {
	params := map[string]any{"log_y": true, "y_scale": 1e3, "name": "iv"}
	p := profile("xy-plot", params, "iv.txt")
	p.Output.DPI = 300
	out, err := run(t, p, storage.Files{"iv.txt": rows([][]float64{{0, 0}, {1, 0.5}, {2, 1}})})
	require.NoError(t, err)

	assert.Equal(t, "xy-plot-test", out.Title)
	require.Len(t, out.Figures, 1)
	fig := out.Figures[0]
	assert.Equal(t, "iv", fig.Name)
	assert.Equal(t, 300, fig.DPI)
	assert.Equal(t, []float64{0, 500, 1000}, fig.Panels[0].Series[0].Y)
	assert.True(t, fig.Panels[0].LogY)
	assert.Equal(t, []string{"iv.txt: 1 non-positive points not shown on log axes"}, out.Notes)
}

func transferScan() []byte {
	var data [][]float64
	var gate []float64
	for v := -2.0; v <= 10; v += 0.5 {
		gate = append(gate, v)
	}
	for k := len(gate) - 1; k >= 0; k-- {
		gate = append(gate, gate[k])
	}
	for _, v := range gate {
		i := 0.0
		if v > 1 {
			i = 10e-6 * (v - 1)
		}
		data = append(data, []float64{v, 0, 0, 0.1, i})
	}
	return rows(data)
}

func TestTransferLinear(t *testing.T) {
	out, err := run(t, profile("transfer-linear", nil, "transfer.txt"), storage.Files{"transfer.txt": transferScan()})
	require.NoError(t, err)

	tr := physics.Transistor{Length: 7.5e-3, Width: 4.75e-3, Capacitance: 54e-9, DrainSource: 0.1}
	mu := tr.Mobility(uncertainty.Q(10e-6, 0)).Value
	for _, sweep := range []string{"forward", "backward"} {
		assert.InEpsilon(t, mu, param(t, out, sweep, "Mobility").Value, 1e-6, sweep)
		assert.InDelta(t, 1, param(t, out, sweep, "Threshold Voltage").Value, 1e-6, sweep)
		assert.InDelta(t, 10, param(t, out, sweep, "Slope").Value, 1e-6, sweep)
	}

	require.Len(t, out.Figures, 3)
	assert.Equal(t, "raw_transfer", out.Figures[0].Name)
	assert.Equal(t, "fit_forward", out.Figures[1].Name)
	assert.Equal(t, "fit_backward", out.Figures[2].Name)
	for _, f := range out.Figures {
		assert.Equal(t, 300, f.DPI)
	}
	assert.Len(t, out.Figures[1].Panels, 2)
}

func TestTransferLinearEmptyWindow(t *testing.T) {
	params := map[string]any{"window": map[string]any{"min": 20, "max": 30}}
	_, err := run(t, profile("transfer-linear", params, "transfer.txt"), storage.Files{"transfer.txt": transferScan()})
	require.Error(t, err)
	assert.ErrorIs(t, err, fit.ErrEmptySelection)
	assert.Contains(t, err.Error(), "forward sweep")
}

func TestSubthreshold(t *testing.T) {
	var v, logI []float64
	for x := -8.0; x <= 0; x += 0.25 {
		v = append(v, x)
		if x < -6 {
			logI = append(logI, -10)
		} else {
			logI = append(logI, -10+0.5*(x+6))
		}
	}
	w := SubthresholdWindow{
		Fit: fit.Range{Min: -5, Max: -2, Inclusive: true},
		On:  fit.Range{Min: -7.5, Max: -4, Inclusive: true},
	}
	res, err := Subthreshold("forward", v, logI, w)
	require.NoError(t, err)

	assert.InDelta(t, 2000, res.Swing.Value, 1e-6)
	assert.InDelta(t, -6, res.On, 0.3)

	_, err = Subthreshold("forward", v, logI, SubthresholdWindow{Fit: fit.Range{Min: 1, Max: 2}, On: w.On})
	assert.ErrorIs(t, err, fit.ErrEmptySelection)
	assert.Contains(t, err.Error(), "forward subthreshold window")
}

func TestTransferLogNotesNonPositiveCurrents(t *testing.T) {
	params := map[string]any{
		"forward":  map[string]any{"fit": map[string]any{"min": 2, "max": 8}, "on": map[string]any{"min": 1, "max": 9}},
		"backward": map[string]any{"fit": map[string]any{"min": 2, "max": 8}, "on": map[string]any{"min": 1, "max": 9}},
	}
	out, err := run(t, profile("transfer-log", params, "transfer.txt"), storage.Files{"transfer.txt": transferScan()})
	require.NoError(t, err)

	assert.Contains(t, out.Notes, "forward sweep: 7 non-positive currents left out of log10(I_D)")
	assert.Contains(t, out.Notes, "forward sweep: no gate voltage below -8 V, off current not estimated")
	assert.InDelta(t, 90e-6, param(t, out, "forward", "On Current").Value, 1e-12)
	assert.Len(t, out.Figures, 4)
}

func TestOutputCharacteristics(t *testing.T) {
	p := profile("output-characteristics", nil, "vg_pos.txt", "vg_neg.txt")
	p.Inputs[0].Value = 1
	p.Inputs[1].Value = -1
	files := storage.Files{
		"vg_pos.txt": rows([][]float64{{0, 0, 0, -1, -2e-6}, {0, 0, 0, 0, 0}, {0, 0, 0, 1, 3e-6}}),
		"vg_neg.txt": rows([][]float64{{0, 0, 0, -1, -1e-6}, {0, 0, 0, 1, 1e-6}}),
	}
	out, err := run(t, p, files)
	require.NoError(t, err)

	require.Len(t, out.Figures, 2)
	all := out.Figures[0].Panels[0]
	require.Len(t, all.Series, 2)
	assert.Equal(t, "V_G = -1 V", all.Series[0].Label)
	assert.Equal(t, "V_G = 1 V", all.Series[1].Label)

	first := out.Figures[1].Panels[0]
	assert.Equal(t, []float64{0, 1}, first.Series[1].X)
	assert.Equal(t, 1.0, first.XLim.Max)
	assert.InDelta(t, 3e-6*1.05, first.YLim.Max, 1e-15)
	assert.Equal(t, 3e-6, param(t, out, "V_G = 1 V", "Max Current").Value)
}

func TestFirstQuadrant(t *testing.T) {
	v, i := FirstQuadrant([]float64{-1, 0, 1, 2}, []float64{1, 0, -1, 2})
	assert.Equal(t, []float64{0, 2}, v)
	assert.Equal(t, []float64{0, 2}, i)
}

func TestGainTable(t *testing.T) {
	data := "Vin(mV) Vpp Vout(V) Vrms f(Hz)\n" +
		"100 1 5 2 1000\n" +
		"100 1 0 2 2000\n" +
		"0 1 1 2 3000\n" +
		"broken\n"
	out, err := run(t, profile("gain", nil, "gain.txt"), storage.Files{"gain.txt": []byte(data)})
	require.NoError(t, err)

	require.Len(t, out.Tables, 1)
	tbl := out.Tables[0]
	assert.Equal(t, "gain_vs_frequency.tsv", tbl.Name)
	assert.Equal(t, []string{"Gain", "Frequency(Hz)"}, tbl.Header)
	assert.Equal(t, []string{"%.6f", dataset.Repr}, tbl.Formats)
	assert.Equal(t, []float64{50, 0}, tbl.Columns[0])
	assert.Equal(t, []float64{1000, 2000}, tbl.Columns[1])

	require.Len(t, out.Notes, 2)
	assert.Contains(t, out.Notes[0], "line 5 skipped")
	assert.Contains(t, out.Notes[1], "zero input amplitude")
	assert.Equal(t, 1.0, param(t, out, "gain.txt", "Skipped Rows").Value)
	assert.True(t, out.Figures[0].Panels[0].LogX)
}

func TestTransferFunction(t *testing.T) {
	const g0, fb = 950.0, 11000.0
	freqs := logspace(100, 1e5, 25)
	var data [][]float64
	for k := len(freqs) - 1; k >= 0; k-- {
		data = append(data, []float64{physics.LowPassGain(freqs[k], g0, fb), freqs[k]})
	}
	out, err := run(t, profile("transfer-function", nil, "tf.txt"), storage.Files{"tf.txt": rows(data)})
	require.NoError(t, err)

	assert.InEpsilon(t, g0, param(t, out, "", "DC Gain").Value, 1e-4)
	assert.InEpsilon(t, fb, param(t, out, "", "Bandwidth").Value, 1e-4)

	s := out.Figures[0].Panels[0].Series
	require.Len(t, s, 2)
	assert.Equal(t, freqs, s[0].X)
	assert.Len(t, s[1].X, 500)
}

func TestSortBy(t *testing.T) {
	x, y := sortBy([]float64{3, 1, 2}, []float64{30, 10, 20})
	assert.Equal(t, []float64{1, 2, 3}, x)
	assert.Equal(t, []float64{10, 20, 30}, y)
}

// noiseTrace samples white noise whose one-sided density at the amplifier
// input is 4·k_B·T·R_eq.
func noiseTrace(rng *rand.Rand, c physics.NoiseCircuit, r, dt float64, n int) []byte {
	req := c.EquivalentResistance(uncertainty.Q(r, 0)).Value
	sigma := math.Sqrt(2*physics.Boltzmann*c.Temperature*req/dt) * c.Gain
	data := make([][]float64, n)
	for i := range data {
		data[i] = []float64{1 + float64(i)*dt, sigma * rng.NormFloat64()}
	}
	return rows(data)
}

func TestNoisePSD(t *testing.T) {
	c := physics.NoiseCircuit{Series: 200, Bias: 200000, Gain: 964, Temperature: 297}
	rng := rand.New(rand.NewPCG(1, 2))
	p := profile("noise-psd", nil, "r10.txt", "r50.txt", "r100.txt")
	files := storage.Files{}
	for i, kohm := range []float64{10, 50, 100} {
		p.Inputs[i].Value = kohm
		files[p.Inputs[i].Path] = noiseTrace(rng, c, kohm*1e3, 2e-5, 1<<15)
	}

	out, err := run(t, p, files)
	require.NoError(t, err)

	assert.InEpsilon(t, physics.Boltzmann, param(t, out, "", "Boltzmann Constant").Value, 0.06)
	assert.InEpsilon(t, c.EquivalentResistance(uncertainty.Q(50e3, 0)).Value,
		param(t, out, "r50.txt", "Equivalent Resistance").Value, 1e-9)

	require.Len(t, out.Tables, 1)
	assert.Equal(t, "noise_summary.tsv", out.Tables[0].Name)
	assert.Equal(t, []float64{10e3, 50e3, 100e3}, out.Tables[0].Columns[0])

	names := make([]string, len(out.Figures))
	for i, f := range out.Figures {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"noise_raw_signal", "noise_power_spectra", "noise_fit", "noise_power_vs_resistance"}, names)
	assert.Equal(t, 2, out.Figures[0].Rows)
	assert.Equal(t, 2, out.Figures[0].Cols)
}

func TestNoisePSDRequiresResistance(t *testing.T) {
	p := profile("noise-psd", nil, "a.txt", "b.txt")
	data := rows([][]float64{{0, 1}, {1e-5, 2}})
	_, err := run(t, p, storage.Files{"a.txt": data, "b.txt": data})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a.txt: resistance (value) must be positive")
}

func TestNoisePSDEmptyBand(t *testing.T) {
	p := profile("noise-psd", map[string]any{"band": map[string]any{"min": 1e6, "max": 2e6}}, "a.txt", "b.txt")
	p.Inputs[0].Value, p.Inputs[1].Value = 1, 2
	data := rows([][]float64{{0, 1}, {1e-5, 2}, {2e-5, 1}, {3e-5, 0}})
	_, err := run(t, p, storage.Files{"a.txt": data, "b.txt": data})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "a.txt")
}

func TestBoltzmannVariance(t *testing.T) {
	c := physics.NoiseCircuit{Series: 200, Bias: 200000, Gain: 953, Temperature: 293, Bandwidth: 10.97e3}
	var data [][]float64
	for _, kohm := range []float64{10, 100} {
		req := c.EquivalentResistance(uncertainty.Q(kohm*1e3, 0)).Value
		v := math.Sqrt(physics.Boltzmann * 4 * c.Temperature * req * c.Bandwidth)
		data = append(data, []float64{kohm, v * c.Gain * 1e3, 0, 0.1, 0.5})
	}
	p := profile("boltzmann-variance", nil, "kb.tsv")
	p.Format = dataset.Format{Delimiter: "\t", SkipRows: 1}
	file := "R\tVrms\tn\tdR\tdVrms\n" + strings.ReplaceAll(string(rows(data)), " ", "\t")

	out, err := run(t, p, storage.Files{"kb.tsv": []byte(file)})
	require.NoError(t, err)

	kb := param(t, out, "R = 10 kΩ", "Boltzmann Constant")
	assert.InEpsilon(t, physics.Boltzmann, kb.Value, 1e-9)
	assert.Greater(t, kb.StdErr, 0.0)
	assert.InEpsilon(t, physics.Boltzmann, param(t, out, "", "Weighted Mean Boltzmann Constant").Value, 1e-9)

	require.Len(t, out.Tables, 1)
	assert.Len(t, out.Tables[0].Columns, 6)
	panel := out.Figures[0].Panels[0]
	require.Len(t, panel.Lines, 1)
	assert.Equal(t, physics.Boltzmann, panel.Lines[0].At)
}

func TestBoltzmannVarianceNeedsBandwidth(t *testing.T) {
	params := map[string]any{"circuit": map[string]any{"bandwidth": 0}}
	_, err := run(t, profile("boltzmann-variance", params, "kb.tsv"), storage.Files{})
	assert.ErrorIs(t, err, errNoBandwidth)
}

// afmCurve has a constant free amplitude of 50 nm from 6 µm up and a force
// of 2·h^-1.5 nN below.
func afmCurve(stiffness float64) []byte {
	var b strings.Builder
	for i := 0; i < 7; i++ {
		b.WriteString("# header\n")
	}
	var data [][]float64
	for i := 1; i <= 20; i++ {
		h := 0.5 * float64(i)
		a := 50.0
		if h < 6 {
			a = 50 - 2*math.Pow(h, -1.5)/stiffness
		}
		data = append(data, []float64{float64(i), h, a})
	}
	b.Write(rows(data))
	return []byte(b.String())
}

func TestAFMForce(t *testing.T) {
	params := map[string]any{
		"stiffness": 0.5,
		"reference": map[string]any{"min": 6, "max": 10, "inclusive": true},
		"fit":       map[string]any{"window": map[string]any{"min": 0.5, "max": 4, "inclusive": true}},
	}
	p := profile("afm-force", params, "h-Amp.txt")
	p.Format.SkipRows = 7
	out, err := run(t, p, storage.Files{"h-Amp.txt": afmCurve(0.5)})
	require.NoError(t, err)

	free := param(t, out, "h-Amp.txt", "Free Amplitude")
	assert.Equal(t, 50.0, free.Value)
	assert.Equal(t, 0.0, free.StdErr)
	assert.Equal(t, 9.0, param(t, out, "h-Amp.txt", "Reference Points").Value)
	assert.InEpsilon(t, 2, param(t, out, "h-Amp.txt", "Power Law Prefactor").Value, 1e-4)
	assert.InEpsilon(t, 1.5, param(t, out, "h-Amp.txt", "Power Law Exponent").Value, 1e-4)

	require.Len(t, out.Tables, 1)
	force := out.Tables[0].Columns[2]
	assert.InDelta(t, 2*math.Pow(0.5, -1.5), force[0], 1e-9)
	assert.Equal(t, 0.0, force[len(force)-1])

	require.Len(t, out.Figures, 2)
	assert.Equal(t, "force_height", out.Figures[1].Name)
	assert.Len(t, out.Figures[1].Panels[0].Series, 2)
}

func TestAFMForceEmptyReference(t *testing.T) {
	params := map[string]any{
		"stiffness": 0.5,
		"reference": map[string]any{"min": 20, "max": 30},
	}
	p := profile("afm-force", params, "h-Amp.txt")
	p.Format.SkipRows = 7
	_, err := run(t, p, storage.Files{"h-Amp.txt": afmCurve(0.5)})
	require.Error(t, err)
	assert.ErrorIs(t, err, fit.ErrEmptySelection)
	assert.Contains(t, err.Error(), "h-Amp.txt reference")
}

func TestAFMForceNeedsReference(t *testing.T) {
	_, err := run(t, profile("afm-force", map[string]any{"stiffness": 1}, "h.txt"), storage.Files{})
	assert.ErrorIs(t, err, errNoReference)
}

const voltammogram = "Potential applied (V);WE(1).Current (A);Scan;Time (s)\n" +
	"0,1;0,001;2;0\n" +
	"0,2;0,001;2;1\n" +
	"0,3;0,001;2;2\n" +
	"0,2;0,001;1;3\n" +
	"0,1;0,001;1;4\n" +
	"0,0;0,001;1;5\n"

func TestCyclicVoltammetry(t *testing.T) {
	out, err := run(t, profile("cyclic-voltammetry", nil, "ITO.txt"), storage.Files{"ITO.txt": []byte(voltammogram)})
	require.NoError(t, err)

	assert.Equal(t, 2.0, param(t, out, "ITO.txt", "Cycles").Value)
	assert.InEpsilon(t, 5e-3, param(t, out, "ITO.txt", "Total Charge").Value, 1e-9)
	film := physics.Film{MolarMass: 142.19, Density: 1.3, Area: 1}
	assert.InEpsilon(t, film.Thickness(5e-3).Thickness, param(t, out, "ITO.txt", "Film Thickness").Value, 1e-9)

	require.Len(t, out.Tables, 1)
	tbl := out.Tables[0]
	assert.Equal(t, []float64{2, 1}, tbl.Columns[0])
	assert.Equal(t, []float64{3, 3}, tbl.Columns[1])
	assert.InDelta(t, 2e-3, tbl.Columns[2][0], 1e-12)

	s := out.Figures[0].Panels[0].Series
	require.Len(t, s, 2)
	assert.Equal(t, "Cycle 2", s[0].Label)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, s[0].X)
}

func TestCyclicVoltammetryFallbackFormat(t *testing.T) {
	csv := "Potential applied (V),WE(1).Current (A),Scan,Time (s)\n" +
		"0.1,0.002,1,0\n" +
		"0.2,0.002,1,1\n"
	out, err := run(t, profile("cyclic-voltammetry", nil, "cv.csv"), storage.Files{"cv.csv": []byte(csv)})
	require.NoError(t, err)
	assert.InEpsilon(t, 2e-3, param(t, out, "cv.csv", "Total Charge").Value, 1e-9)
}

func TestCharge(t *testing.T) {
	q, err := Charge([]float64{0, 1, 3}, []float64{1, 1, 2})
	require.NoError(t, err)
	assert.InDelta(t, 4, q, 1e-12)

	_, err = Charge([]float64{0, 2, 1}, []float64{1, 1, 1})
	assert.ErrorIs(t, err, errUnsortedTime)

	_, err = Charge([]float64{0}, []float64{1})
	assert.Error(t, err)
}

func TestSplitCycles(t *testing.T) {
	cycles := SplitCycles(
		[]float64{1, 2, 3, 4, 5},
		[]float64{10, 20, 30, 40, 50},
		[]float64{3, 1, 3, 1, 2},
		[]float64{0, 1, 2, 3, 4},
	)
	require.Len(t, cycles, 3)
	assert.Equal(t, 3.0, cycles[0].Scan)
	assert.Equal(t, []float64{1, 3}, cycles[0].Potential)
	assert.Equal(t, 1.0, cycles[1].Scan)
	assert.Equal(t, []float64{20, 40}, cycles[1].Current)
	assert.Equal(t, []float64{4}, cycles[2].Time)
}

const spectrumHeader = "Frequency (Hz);-Phase (°);Z (Ω)\n"

func TestImpedanceSpectrum(t *testing.T) {
	p := profile("impedance-spectrum", nil, "phase_points.txt", "phase_fit.txt", "z_points.txt", "z_fit.txt")
	p.Inputs[0].Role = RolePhasePoints
	p.Inputs[1].Role = RolePhaseFit
	p.Inputs[1].Label = "Fit (Full Circuit)"
	p.Inputs[2].Role = RoleZPoints
	p.Inputs[3].Role = RoleZFit
	points := []byte(spectrumHeader + "10;45,5;1000\n100;80;150\n1000;20;12,5\n")
	fitted := []byte(spectrumHeader + "10;45;1001\n1000;21;12\n")
	files := storage.Files{
		"phase_points.txt": points,
		"phase_fit.txt":    fitted,
		"z_points.txt":     points,
		"z_fit.txt":        fitted,
	}

	out, err := run(t, p, files)
	require.NoError(t, err)

	require.Len(t, out.Figures, 1)
	fig := out.Figures[0]
	require.Len(t, fig.Panels, 2)
	for _, panel := range fig.Panels {
		assert.True(t, panel.LogX)
		assert.Len(t, panel.Series, 2)
	}
	assert.Equal(t, "Fit (Full Circuit)", fig.Panels[0].Series[1].Label)
	assert.Equal(t, []float64{1000, 150, 12.5}, fig.Panels[1].Series[0].Y)

	assert.Equal(t, 80.0, param(t, out, "phase_points.txt", "Max Phase").Value)
	assert.Equal(t, 100.0, param(t, out, "phase_points.txt", "Frequency at Max Phase").Value)
	assert.Equal(t, 1000.0, param(t, out, "z_points.txt", "Max Impedance").Value)
}

func TestImpedanceSpectrumUnknownRole(t *testing.T) {
	p := profile("impedance-spectrum", nil, "x.txt")
	p.Inputs[0].Role = "nyquist"
	_, err := run(t, p, storage.Files{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown role "nyquist"`)
}

func TestNumbered(t *testing.T) {
	in := config.Input{Path: "data/run 1.txt"}
	assert.Equal(t, "out.tsv", numbered("out.tsv", in, false))
	assert.Equal(t, "out_run_1.tsv", numbered("out.tsv", in, true))
	assert.Equal(t, "fig_V_G_1", numbered("fig", config.Input{Label: "V_G 1"}, true))
}

func TestGradient(t *testing.T) {
	assert.Equal(t, []float64{1, 1.5, 2.5, 3}, gradient([]float64{0, 1, 3, 6}))
	assert.Equal(t, []float64{0}, gradient([]float64{5}))
}

package physics

import (
	"math"

	"github.com/RMahshie/labfit/internal/uncertainty"
)

// Impedance returns the magnitude of the device impedance, (Vref/Vout)·gain.
func Impedance(vref, vout, gain float64) float64 {
	return vref / vout * gain
}

// Capacitance returns 1/(2π·f·Z).
func Capacitance(freq, z float64) float64 {
	return 1 / (2 * math.Pi * freq * z)
}

// InverseSquare returns 1/C² and its uncertainty, the larger of 2% of the
// value and 1e16 F⁻².
func InverseSquare(c float64) (float64, float64) {
	inv := 1 / (c * c)
	return inv, math.Max(InvC2RelativeFloor*inv, InvC2AbsoluteFloor)
}

// Junction describes a Schottky or p-n junction under a Mott-Schottky analysis.
type Junction struct {
	// Area in m².
	Area float64 `mapstructure:"area" validate:"gt=0"`
	// Permittivity of the semiconductor relative to vacuum.
	Permittivity float64 `mapstructure:"permittivity" validate:"gt=0"`
	// Temperature in K.
	Temperature float64 `mapstructure:"temperature" validate:"gt=0"`
}

// DopingDensity returns N_d = 2/(q·ε·ε0·A²·m) from the slope m of 1/C² vs V,
// converted from m⁻³ to cm⁻³.
func (j Junction) DopingDensity(m uncertainty.Quantity) uncertainty.Quantity {
	nd := 2 / (ElementaryCharge * j.Permittivity * VacuumPermittivity * j.Area * j.Area * m.Value)
	return uncertainty.Quantity{
		Value:  nd / 1e6,
		StdErr: math.Abs(nd*m.StdErr/m.Value) / 1e6,
	}
}

// ThermalVoltage returns kT/q in volts.
func ThermalVoltage(temperature float64) float64 {
	return Boltzmann * temperature / ElementaryCharge
}

// FlatbandPotential returns V_fb = -b/m - kT/q from the 1/C² line.
func (j Junction) FlatbandPotential(m, b uncertainty.Quantity) uncertainty.Quantity {
	v := uncertainty.NegRatio(b, m)
	v.Value -= ThermalVoltage(j.Temperature)
	return v
}

// Transistor holds the geometry of a thin-film transistor channel.
type Transistor struct {
	Length float64 `mapstructure:"length" validate:"gt=0"`
	Width  float64 `mapstructure:"width" validate:"gt=0"`
	// Capacitance of the gate dielectric per unit area.
	Capacitance float64 `mapstructure:"capacitance" validate:"gt=0"`
	// DrainSource is the drain-source bias in V.
	DrainSource float64 `mapstructure:"drain_source" validate:"ne=0"`
}

// Mobility returns the linear-regime field-effect mobility m·L/(W·C·V_SD)
// from the transconductance slope m in A/V.
func (t Transistor) Mobility(m uncertainty.Quantity) uncertainty.Quantity {
	return uncertainty.Scale(m, t.Length/(t.Width*t.Capacitance*t.DrainSource))
}

// ThresholdVoltage returns V_t = -b/m, the gate voltage where the fitted
// line crosses zero current.
func ThresholdVoltage(m, b uncertainty.Quantity) uncertainty.Quantity {
	return uncertainty.NegRatio(b, m)
}

// SubthresholdSwing returns S = 1/m in V/decade from the slope m of log10(I) vs V.
func SubthresholdSwing(m uncertainty.Quantity) uncertainty.Quantity {
	return uncertainty.Inverse(m)
}

// NoiseCircuit describes the bias network around a resistor under test.
type NoiseCircuit struct {
	// Series is the resistance in series with the sample, Ω.
	Series float64 `mapstructure:"series" validate:"gte=0"`
	// Bias is the bias resistance in parallel with the branch, Ω.
	Bias float64 `mapstructure:"bias" validate:"gt=0"`
	// Gain of the amplifier chain.
	Gain float64 `mapstructure:"gain" validate:"gt=0"`
	// Temperature of the resistor, K.
	Temperature float64 `mapstructure:"temperature" validate:"gt=0"`
	// Bandwidth of the measurement, Hz.
	Bandwidth float64 `mapstructure:"bandwidth" validate:"gte=0"`
}

// EquivalentResistance returns (R+Rt)·Rbias/(R+Rt+Rbias) with the error
// propagated from R through ∂Req/∂R = Rbias²/(R+Rt+Rbias)².
func (c NoiseCircuit) EquivalentResistance(r uncertainty.Quantity) uncertainty.Quantity {
	sum := r.Value + c.Series + c.Bias
	return uncertainty.Quantity{
		Value:  (r.Value + c.Series) * c.Bias / sum,
		StdErr: math.Abs(c.Bias * c.Bias / (sum * sum) * r.StdErr),
	}
}

// BoltzmannFromRMS returns k_B = V²/(4·T·Req·Δf) for one resistor, where v
// is the gain-corrected rms noise voltage.
func (c NoiseCircuit) BoltzmannFromRMS(v, req uncertainty.Quantity) uncertainty.Quantity {
	den := 4 * c.Temperature * req.Value * c.Bandwidth
	kb := v.Value * v.Value / den
	dv := 2 * v.Value / den
	dr := -v.Value * v.Value / (den * req.Value)
	return uncertainty.Quantity{
		Value:  kb,
		StdErr: uncertainty.PropagateGradient([]float64{dv, dr}, []float64{v.StdErr, req.StdErr}),
	}
}

// BoltzmannFromSlope returns k_B = slope/(4T) from the fit of noise density
// against equivalent resistance.
func (c NoiseCircuit) BoltzmannFromSlope(slope uncertainty.Quantity) uncertainty.Quantity {
	return uncertainty.Scale(slope, 1/(4*c.Temperature))
}

// Gain returns Vout/(Vin_mV/1000), or zero when the output is zero.
func Gain(vinMilliVolt, vout float64) float64 {
	if vout == 0 {
		return 0
	}
	return vout / (vinMilliVolt / 1000)
}

// LowPassGain is G0/√(1+(f/fb)²).
func LowPassGain(f, g0, fb float64) float64 {
	r := f / fb
	return g0 / math.Sqrt(1+r*r)
}

// Film describes an electropolymerised film.
type Film struct {
	// MolarMass of the monomer in g/mol.
	MolarMass float64 `mapstructure:"molar_mass" validate:"gt=0"`
	// Density of the film in g/cm³.
	Density float64 `mapstructure:"density" validate:"gt=0"`
	// Area of the electrode in cm².
	Area float64 `mapstructure:"area" validate:"gt=0"`
}

// Deposition is the result of integrating a deposition current.
type Deposition struct {
	Charge    float64 // C
	Monomers  float64
	Thickness float64 // nm
}

// Thickness converts a deposition charge to film thickness,
// l = M·(Q/e)/(ρ·N_A·A), reported in nm.
func (f Film) Thickness(charge float64) Deposition {
	n := charge / ElementaryCharge
	l := f.MolarMass * n / (f.Density * Avogadro * f.Area)
	return Deposition{Charge: charge, Monomers: n, Thickness: l * 1e7}
}

// CantileverForce returns k·(A_free - A) for each amplitude.
func CantileverForce(stiffness, free float64, amplitude []float64) []float64 {
	out := make([]float64, len(amplitude))
	for i, a := range amplitude {
		out[i] = stiffness * (free - a)
	}
	return out
}

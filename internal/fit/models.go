package fit

import "math"

// Model evaluates a curve with parameters p at x.
type Model func(x float64, p []float64) float64

// LinearModel is p[0]*x + p[1].
func LinearModel(x float64, p []float64) float64 {
	return p[0]*x + p[1]
}

// ProportionalModel is p[0]*x.
func ProportionalModel(x float64, p []float64) float64 {
	return p[0] * x
}

// LowPassGain is the first-order low-pass magnitude G0/sqrt(1+(f/fb)^2)
// with p = [G0, fb].
func LowPassGain(f float64, p []float64) float64 {
	r := f / p[1]
	return p[0] / math.Sqrt(1+r*r)
}

// InversePowerLaw is a*x^(-n) with p = [a, n].
func InversePowerLaw(x float64, p []float64) float64 {
	return p[0] * math.Pow(x, -p[1])
}

// Package uncertainty propagates standard errors through derived quantities
// with the first-order delta method.
package uncertainty

import (
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/diff/fd"
)

// Quantity is a value with its standard error.
type Quantity struct {
	Value  float64 `json:"value"`
	StdErr float64 `json:"std_err"`
}

// Q is shorthand for Quantity{v, err}.
func Q(v, err float64) Quantity {
	return Quantity{Value: v, StdErr: err}
}

// Rel returns the relative error |StdErr/Value|.
func (q Quantity) Rel() float64 {
	return math.Abs(q.StdErr / q.Value)
}

func (q Quantity) String() string {
	return Format(q, 2)
}

// Propagate evaluates f at x and propagates the independent standard errors
// sigma: σ_f² = Σ (∂f/∂xᵢ · σᵢ)². Partials use central differences with the
// step for each xᵢ scaled to its magnitude.
func Propagate(f func([]float64) float64, x, sigma []float64) Quantity {
	if len(x) != len(sigma) {
		panic("uncertainty: x and sigma differ in length")
	}
	scale := make([]float64, len(x))
	for i, v := range x {
		scale[i] = math.Abs(v)
		if scale[i] == 0 {
			scale[i] = 1
		}
	}
	unscaled := make([]float64, len(x))
	g := func(u []float64) float64 {
		for i := range u {
			unscaled[i] = u[i] * scale[i]
		}
		return f(unscaled)
	}
	u := make([]float64, len(x))
	for i := range x {
		u[i] = x[i] / scale[i]
	}
	grad := fd.Gradient(nil, g, u, &fd.Settings{Formula: fd.Central})
	for i := range grad {
		grad[i] /= scale[i]
	}
	return Quantity{Value: f(x), StdErr: PropagateGradient(grad, sigma)}
}

// PropagateGradient combines closed-form partial derivatives with standard errors.
func PropagateGradient(grad, sigma []float64) float64 {
	var sum float64
	for i := range grad {
		t := grad[i] * sigma[i]
		sum += t * t
	}
	return math.Sqrt(sum)
}

// Ratio returns a/b with σ = |a/b|·√((σa/a)² + (σb/b)²).
func Ratio(a, b Quantity) Quantity {
	v := a.Value / b.Value
	return Quantity{Value: v, StdErr: math.Abs(v) * math.Hypot(a.StdErr/a.Value, b.StdErr/b.Value)}
}

// Product returns a·b with relative errors added in quadrature.
func Product(a, b Quantity) Quantity {
	v := a.Value * b.Value
	return Quantity{Value: v, StdErr: math.Abs(v) * math.Hypot(a.StdErr/a.Value, b.StdErr/b.Value)}
}

// Scale multiplies a quantity by an exact constant.
func Scale(q Quantity, k float64) Quantity {
	return Quantity{Value: q.Value * k, StdErr: math.Abs(q.StdErr * k)}
}

// Inverse returns 1/q.
func Inverse(q Quantity) Quantity {
	return Quantity{Value: 1 / q.Value, StdErr: math.Abs(q.StdErr / (q.Value * q.Value))}
}

// NegRatio returns -b/m, the x-intercept of a line with slope m and
// intercept b, with σ = √((σb/m)² + (b·σm/m²)²).
func NegRatio(b, m Quantity) Quantity {
	return Quantity{
		Value:  -b.Value / m.Value,
		StdErr: math.Hypot(b.StdErr/m.Value, b.Value*m.StdErr/(m.Value*m.Value)),
	}
}

// Format renders q in scientific notation with a shared exponent,
// "(1.23 ± 0.04) × 10^-3", using digits decimals for both mantissas.
func Format(q Quantity, digits int) string {
	if q.Value == 0 || math.IsNaN(q.Value) || math.IsInf(q.Value, 0) {
		return fmt.Sprintf("%s ± %s", strconv.FormatFloat(q.Value, 'g', -1, 64), strconv.FormatFloat(q.StdErr, 'g', digits, 64))
	}
	exp := int(math.Floor(math.Log10(math.Abs(q.Value))))
	p := math.Pow(10, float64(exp))
	return fmt.Sprintf("(%.*f ± %.*f) × 10^%d", digits, q.Value/p, digits, q.StdErr/p, exp)
}

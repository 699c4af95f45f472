package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LMSettings tunes the Levenberg-Marquardt solver.
type LMSettings struct {
	// Iterations bounds the number of accepted or rejected steps.
	Iterations int `mapstructure:"iterations"`
	// Tau scales the initial damping relative to the largest diagonal of JᵀJ.
	Tau float64 `mapstructure:"tau"`
	// Eps1 stops when the infinity norm of the gradient falls below it.
	Eps1 float64 `mapstructure:"eps1"`
	// Eps2 stops when the relative step size falls below it.
	Eps2 float64 `mapstructure:"eps2"`
	// ObjectiveTol stops when half the chi-square falls below it.
	ObjectiveTol float64 `mapstructure:"objective_tol"`
}

// DefaultLMSettings returns the settings used when nil is passed to Nonlinear.
func DefaultLMSettings() LMSettings {
	return LMSettings{
		Iterations:   200,
		Tau:          1e-6,
		Eps1:         1e-10,
		Eps2:         1e-10,
		ObjectiveTol: 1e-30,
	}
}

func (s *LMSettings) withDefaults() LMSettings {
	d := DefaultLMSettings()
	if s == nil {
		return d
	}
	out := *s
	if out.Iterations <= 0 {
		out.Iterations = d.Iterations
	}
	if out.Tau <= 0 {
		out.Tau = d.Tau
	}
	if out.Eps1 <= 0 {
		out.Eps1 = d.Eps1
	}
	if out.Eps2 <= 0 {
		out.Eps2 = d.Eps2
	}
	if out.ObjectiveTol <= 0 {
		out.ObjectiveTol = d.ObjectiveTol
	}
	return out
}

// Nonlinear fits model to (x, y) starting from p0 with Levenberg-Marquardt.
// The Jacobian is taken by central differences on parameters scaled by the
// magnitude of p0, so parameters of very different size (a gain of 1e3 and a
// corner frequency of 1e4) are stepped alike.
func Nonlinear(model Model, x, y, sigma, p0 []float64, settings *LMSettings, opts ...Option) (*Result, error) {
	if len(p0) == 0 {
		return nil, fmt.Errorf("%w: no initial parameters", ErrInsufficientPoints)
	}
	if err := validate(x, y, sigma, len(p0)); err != nil {
		return nil, err
	}
	for i, v := range p0 {
		if !finite(v) {
			return nil, fmt.Errorf("%w: p0[%d]=%g", ErrNonFinite, i, v)
		}
	}
	set := settings.withDefaults()

	scale := make([]float64, len(p0))
	for i, v := range p0 {
		scale[i] = math.Abs(v)
		if scale[i] == 0 {
			scale[i] = 1
		}
	}
	w := weights(len(x), sigma)
	sw := make([]float64, len(w))
	for i := range w {
		sw[i] = math.Sqrt(w[i])
	}

	params := make([]float64, len(p0))
	residuals := func(dst, q []float64) {
		for j := range q {
			params[j] = q[j] * scale[j]
		}
		for i := range x {
			dst[i] = sw[i] * (model(x[i], params) - y[i])
		}
	}

	q := make([]float64, len(p0))
	for i, v := range p0 {
		q[i] = v / scale[i]
	}
	// The solver sees residuals relative to the largest weighted y so that its
	// tolerances do not depend on the units of the data.
	yscale := 0.0
	for i := range y {
		yscale = math.Max(yscale, math.Abs(sw[i]*y[i]))
	}
	if yscale == 0 {
		yscale = 1
	}
	normalized := func(dst, q []float64) {
		residuals(dst, q)
		floats.Scale(1/yscale, dst)
	}
	q, iters, err := levenbergMarquardt(normalized, q, len(x), set)
	if err != nil {
		return nil, err
	}

	// Covariance in the original parameters from the Jacobian at the solution.
	jac := mat.NewDense(len(x), len(q), nil)
	fd.Jacobian(jac, residuals, q, &fd.JacobianSettings{Formula: fd.Central})
	for j, s := range scale {
		for i := 0; i < len(x); i++ {
			jac.Set(i, j, jac.At(i, j)/s)
		}
	}
	normal := mat.NewSymDense(len(q), nil)
	normal.SymOuterK(1, jac.T())
	var chol mat.Cholesky
	if ok := chol.Factorize(normal); !ok {
		return nil, ErrSingular
	}
	inv := mat.NewSymDense(len(q), nil)
	if err := chol.InverseTo(inv); err != nil && !illConditioned(err) {
		return nil, ErrSingular
	}

	final := make([]float64, len(q))
	for j := range q {
		final[j] = q[j] * scale[j]
	}
	r := &Result{Params: final, Iterations: iters, model: model}
	r.finish(x, y, w, inv, collect(opts))
	return r, nil
}

// levenbergMarquardt minimises half the squared norm of f over q. It is the
// damped Gauss-Newton iteration with the gain-ratio damping update.
func levenbergMarquardt(f func(dst, q []float64), q []float64, m int, set LMSettings) ([]float64, int, error) {
	n := len(q)
	res := make([]float64, m)
	f(res, q)
	if !allFinite(res) {
		return nil, 0, fmt.Errorf("%w: residuals at the initial parameters", ErrNonFinite)
	}
	cost := 0.5 * floats.Dot(res, res)

	jac := mat.NewDense(m, n, nil)
	a := mat.NewSymDense(n, nil)
	g := mat.NewVecDense(n, nil)
	update := func() {
		fd.Jacobian(jac, f, q, &fd.JacobianSettings{Formula: fd.Central})
		a.SymOuterK(1, jac.T())
		g.MulVec(jac.T(), mat.NewVecDense(m, res))
	}
	update()

	mu := 0.0
	for i := 0; i < n; i++ {
		mu = math.Max(mu, a.At(i, i))
	}
	mu *= set.Tau
	nu := 2.0

	found := mat.Norm(g, math.Inf(1)) <= set.Eps1 || cost <= set.ObjectiveTol
	damped := mat.NewSymDense(n, nil)
	step := mat.NewVecDense(n, nil)
	trial := make([]float64, n)
	trialRes := make([]float64, m)

	iter := 0
	for ; !found && iter < set.Iterations; iter++ {
		damped.CopySym(a)
		for i := 0; i < n; i++ {
			damped.SetSym(i, i, a.At(i, i)+mu)
		}
		var chol mat.Cholesky
		if ok := chol.Factorize(damped); !ok {
			mu *= nu
			nu *= 2
			continue
		}
		if err := chol.SolveVecTo(step, g); err != nil && !illConditioned(err) {
			return nil, iter, ErrSingular
		}
		step.ScaleVec(-1, step)

		if mat.Norm(step, 2) <= set.Eps2*(floats.Norm(q, 2)+set.Eps2) {
			found = true
			break
		}
		for i := range trial {
			trial[i] = q[i] + step.AtVec(i)
		}
		f(trialRes, trial)

		rho := math.Inf(-1)
		if allFinite(trialRes) {
			trialCost := 0.5 * floats.Dot(trialRes, trialRes)
			// Predicted reduction ½hᵀ(μh − g).
			var predicted float64
			for i := 0; i < n; i++ {
				h := step.AtVec(i)
				predicted += 0.5 * h * (mu*h - g.AtVec(i))
			}
			if predicted > 0 {
				rho = (cost - trialCost) / predicted
			}
		}
		if rho > 0 {
			copy(q, trial)
			copy(res, trialRes)
			cost = 0.5 * floats.Dot(res, res)
			update()
			found = mat.Norm(g, math.Inf(1)) <= set.Eps1 || cost <= set.ObjectiveTol
			mu *= math.Max(1.0/3, 1-math.Pow(2*rho-1, 3))
			nu = 2
		} else {
			mu *= nu
			nu *= 2
		}
		if math.IsInf(mu, 0) || math.IsNaN(mu) {
			break
		}
	}
	if !found {
		return nil, iter, fmt.Errorf("%w after %d iterations (cost %g)", ErrNoConvergence, iter, cost)
	}
	return q, iter, nil
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if !finite(x) {
			return false
		}
	}
	return true
}

package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Result holds a least-squares solution.
type Result struct {
	// Params are the fitted parameters; [slope, intercept] for Linear.
	Params []float64
	// StdErr are the square roots of the covariance diagonal.
	StdErr []float64
	Cov    *mat.SymDense
	// Residuals are y - model(x), unweighted.
	Residuals []float64
	// ChiSq is the weighted sum of squared residuals.
	ChiSq float64
	DoF   int
	N     int
	// Iterations used by the nonlinear solver; zero for linear fits.
	Iterations int

	model Model
}

// Eval evaluates the fitted model at x.
func (r *Result) Eval(x float64) float64 {
	return r.model(x, r.Params)
}

// EvalAll evaluates the fitted model at every element of xs.
func (r *Result) EvalAll(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = r.Eval(x)
	}
	return out
}

// Slope and Intercept name the parameters of a straight-line fit.
func (r *Result) Slope() float64 { return r.Params[0] }
func (r *Result) SlopeErr() float64 { return r.StdErr[0] }
func (r *Result) Intercept() float64 { return r.Params[1] }
func (r *Result) InterceptErr() float64 { return r.StdErr[1] }
func (r *Result) ReducedChiSq() float64 { return r.ChiSq / float64(r.DoF) }

func (r *Result) String() string {
	return fmt.Sprintf("params=%v stderr=%v chi2=%g dof=%d", r.Params, r.StdErr, r.ChiSq, r.DoF)
}

type options struct {
	absoluteSigma bool
}

// Option modifies how a fit computes its covariance.
type Option func(*options)

// AbsoluteSigma treats sigma as absolute uncertainties, so the covariance is
// not rescaled by the reduced chi-square.
func AbsoluteSigma() Option {
	return func(o *options) { o.absoluteSigma = true }
}

func collect(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// validate checks the inputs shared by every fit entry point.
func validate(x, y, sigma []float64, nparams int) error {
	if len(x) != len(y) || (sigma != nil && len(sigma) != len(x)) {
		return fmt.Errorf("%w: x=%d y=%d sigma=%d", ErrLengthMismatch, len(x), len(y), len(sigma))
	}
	if len(x) == 0 {
		return ErrEmptySelection
	}
	if len(x) < nparams+1 {
		return fmt.Errorf("%w: have %d, need at least %d", ErrInsufficientPoints, len(x), nparams+1)
	}
	for i := range x {
		if !finite(x[i]) || !finite(y[i]) {
			return fmt.Errorf("%w at point %d: x=%g y=%g", ErrNonFinite, i, x[i], y[i])
		}
		if sigma != nil && (!finite(sigma[i]) || sigma[i] <= 0) {
			return fmt.Errorf("%w: sigma[%d]=%g", ErrInvalidSigma, i, sigma[i])
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// weights returns 1/sigma^2, or ones for an unweighted fit.
func weights(n int, sigma []float64) []float64 {
	w := make([]float64, n)
	for i := range w {
		if sigma == nil {
			w[i] = 1
		} else {
			w[i] = 1 / (sigma[i] * sigma[i])
		}
	}
	return w
}

// finish fills the residuals, chi-square and scaled covariance of r.
// normalInv is (J^T W J)^-1.
func (r *Result) finish(x, y, w []float64, normalInv *mat.SymDense, o options) {
	p := len(r.Params)
	r.N = len(x)
	r.DoF = r.N - p
	r.Residuals = make([]float64, r.N)
	r.ChiSq = 0
	for i := range x {
		res := y[i] - r.model(x[i], r.Params)
		r.Residuals[i] = res
		r.ChiSq += w[i] * res * res
	}

	scale := 1.0
	if !o.absoluteSigma {
		scale = r.ChiSq / float64(r.DoF)
	}
	r.Cov = mat.NewSymDense(p, nil)
	r.Cov.ScaleSym(scale, normalInv)
	r.StdErr = make([]float64, p)
	for i := range r.StdErr {
		r.StdErr[i] = math.Sqrt(r.Cov.At(i, i))
	}
}

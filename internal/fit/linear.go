package fit

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Linear fits y = m*x + b. A nil sigma gives ordinary least squares,
// otherwise points are weighted by 1/sigma^2. Params are [m, b].
func Linear(x, y, sigma []float64, opts ...Option) (*Result, error) {
	return linearLeastSquares(LinearModel, x, y, sigma, opts, func(xi float64) []float64 {
		return []float64{xi, 1}
	})
}

// Proportional fits y = k*x through the origin. Params are [k].
func Proportional(x, y, sigma []float64, opts ...Option) (*Result, error) {
	return linearLeastSquares(ProportionalModel, x, y, sigma, opts, func(xi float64) []float64 {
		return []float64{xi}
	})
}

// linearLeastSquares solves a model that is linear in its parameters through
// the weighted normal equations.
func linearLeastSquares(model Model, x, y, sigma []float64, opts []Option, basis func(float64) []float64) (*Result, error) {
	p := len(basis(0))
	if err := validate(x, y, sigma, p); err != nil {
		return nil, err
	}
	w := weights(len(x), sigma)

	// Rows of the design matrix and of y are scaled by sqrt(w).
	a := mat.NewDense(len(x), p, nil)
	b := mat.NewVecDense(len(x), nil)
	for i, xi := range x {
		sw := math.Sqrt(w[i])
		for j, v := range basis(xi) {
			a.Set(i, j, sw*v)
		}
		b.SetVec(i, sw*y[i])
	}

	params, normalInv, err := solveNormal(a, b)
	if err != nil {
		return nil, err
	}
	r := &Result{Params: params, model: model}
	r.finish(x, y, w, normalInv, collect(opts))
	return r, nil
}

// solveNormal solves (AᵀA) p = Aᵀb and returns p with (AᵀA)⁻¹.
func solveNormal(a *mat.Dense, b *mat.VecDense) ([]float64, *mat.SymDense, error) {
	_, p := a.Dims()
	normal := mat.NewSymDense(p, nil)
	normal.SymOuterK(1, a.T())

	var chol mat.Cholesky
	if ok := chol.Factorize(normal); !ok {
		return nil, nil, ErrSingular
	}
	rhs := mat.NewVecDense(p, nil)
	rhs.MulVec(a.T(), b)

	var sol mat.VecDense
	if err := chol.SolveVecTo(&sol, rhs); err != nil && !illConditioned(err) {
		return nil, nil, ErrSingular
	}
	inv := mat.NewSymDense(p, nil)
	if err := chol.InverseTo(inv); err != nil && !illConditioned(err) {
		return nil, nil, ErrSingular
	}
	params := make([]float64, p)
	for i := range params {
		params[i] = sol.AtVec(i)
	}
	return params, inv, nil
}

// illConditioned reports whether err is only gonum's condition-number
// warning, in which case the solution is still returned.
func illConditioned(err error) bool {
	var cond mat.Condition
	return errors.As(err, &cond)
}

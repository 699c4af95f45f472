package fit

import "errors"

var (
	// ErrEmptySelection is returned when a mask or window selects no points.
	ErrEmptySelection = errors.New("no data points selected for fitting")
	// ErrInsufficientPoints is returned when there are not more points than parameters.
	ErrInsufficientPoints = errors.New("not enough data points for fit")
	// ErrLengthMismatch is returned when x, y and sigma differ in length.
	ErrLengthMismatch = errors.New("input lengths differ")
	// ErrNonFinite is returned for NaN or Inf in the inputs or residuals.
	ErrNonFinite = errors.New("non-finite value")
	// ErrInvalidSigma is returned when an uncertainty is not strictly positive.
	ErrInvalidSigma = errors.New("uncertainties must be positive and finite")
	// ErrNoConvergence is returned when the nonlinear solver runs out of iterations.
	ErrNoConvergence = errors.New("fit did not converge")
	// ErrSingular is returned when the normal matrix cannot be inverted.
	ErrSingular = errors.New("singular normal matrix")
)

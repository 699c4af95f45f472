package fit

import "fmt"

// Range selects x values between Min and Max. Exclusive bounds unless
// Inclusive is set.
type Range struct {
	Min       float64 `mapstructure:"min" json:"min"`
	Max       float64 `mapstructure:"max" json:"max"`
	Inclusive bool    `mapstructure:"inclusive" json:"inclusive,omitempty"`
}

// Contains reports whether v lies in the range.
func (r Range) Contains(v float64) bool {
	if r.Inclusive {
		return v >= r.Min && v <= r.Max
	}
	return v > r.Min && v < r.Max
}

func (r Range) String() string {
	if r.Inclusive {
		return fmt.Sprintf("[%g, %g]", r.Min, r.Max)
	}
	return fmt.Sprintf("(%g, %g)", r.Min, r.Max)
}

// Mask marks the elements of x that fall inside r.
func Mask(x []float64, r Range) []bool {
	mask := make([]bool, len(x))
	for i, v := range x {
		mask[i] = r.Contains(v)
	}
	return mask
}

// Count returns the number of true entries in mask.
func Count(mask []bool) int {
	n := 0
	for _, m := range mask {
		if m {
			n++
		}
	}
	return n
}

// Select returns the masked elements of each slice. Slices shorter than the
// mask are indexed only as far as they go.
func Select(mask []bool, xs ...[]float64) [][]float64 {
	n := Count(mask)
	out := make([][]float64, len(xs))
	for j, x := range xs {
		sel := make([]float64, 0, n)
		for i, m := range mask {
			if m && i < len(x) {
				sel = append(sel, x[i])
			}
		}
		out[j] = sel
	}
	return out
}

// InRange is Select(Mask(x, r), x, ys...) returning an ErrEmptySelection
// naming subset when nothing falls inside r.
func InRange(subset string, r Range, x []float64, ys ...[]float64) ([][]float64, error) {
	mask := Mask(x, r)
	if Count(mask) == 0 {
		return nil, fmt.Errorf("%s: x in %s: %w", subset, r, ErrEmptySelection)
	}
	return Select(mask, append([][]float64{x}, ys...)...), nil
}

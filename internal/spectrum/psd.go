// Package spectrum computes one-sided power spectral densities of sampled
// voltage traces and integrates them over frequency bands.
package spectrum

import (
	"errors"
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrEmptyBand is returned when no frequency bin falls inside a band.
	ErrEmptyBand = errors.New("no frequency bins in band")
	// ErrShortSignal is returned for fewer than two samples.
	ErrShortSignal = errors.New("signal needs at least two samples")
	// ErrInvalidSpacing is returned for a non-positive sample spacing.
	ErrInvalidSpacing = errors.New("sample spacing must be positive")
)

// PSD returns the one-sided power spectral density of v sampled every dt
// seconds, in units of v²/Hz, and the frequency of each bin k/(N·dt) for
// k = 0..N/2. Interior bins carry 2|X_k|²·dt/N. The DC bin and, for even N,
// the Nyquist bin have no mirror image and carry half that, so summing
// psd·Δf over all bins returns the mean square of v.
func PSD(v []float64, dt float64) (freqs, psd []float64, err error) {
	freqs, power, err := periodogram(v, dt)
	if err != nil {
		return nil, nil, err
	}
	n := len(v)
	psd = make([]float64, len(power))
	for k, p := range power {
		psd[k] = 2 * p * dt / float64(n)
	}
	psd[0] /= 2
	if n%2 == 0 {
		psd[len(psd)-1] /= 2
	}
	return freqs, psd, nil
}

// LegacyPSD is the |X_k|²/(N·dt) normalization used by an older noise
// script. It is kept to compare old results against PSD and is not a
// density: interior bins differ from PSD by a factor of 1/(2·dt²) and the
// edge bins are not halved.
func LegacyPSD(v []float64, dt float64) (freqs, psd []float64, err error) {
	freqs, power, err := periodogram(v, dt)
	if err != nil {
		return nil, nil, err
	}
	psd = make([]float64, len(power))
	for k, p := range power {
		psd[k] = p / (float64(len(v)) * dt)
	}
	return freqs, psd, nil
}

// periodogram returns the bin frequencies and |X_k|² of the real FFT.
func periodogram(v []float64, dt float64) (freqs, power []float64, err error) {
	n := len(v)
	if n < 2 {
		return nil, nil, fmt.Errorf("%w: got %d", ErrShortSignal, n)
	}
	if !(dt > 0) {
		return nil, nil, fmt.Errorf("%w: dt=%g", ErrInvalidSpacing, dt)
	}
	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, v)

	freqs = make([]float64, len(coeffs))
	power = make([]float64, len(coeffs))
	for k, c := range coeffs {
		freqs[k] = float64(k) / (float64(n) * dt)
		a := cmplx.Abs(c)
		power[k] = a * a
	}
	return freqs, power, nil
}

// band returns the index range [lo, hi) of bins with lo ≤ f ≤ hi. freqs
// must be ascending.
func band(freqs []float64, lo, hi float64) (int, int, error) {
	start, end := -1, -1
	for k, f := range freqs {
		if f >= lo && f <= hi {
			if start < 0 {
				start = k
			}
			end = k + 1
		}
	}
	if start < 0 {
		return 0, 0, fmt.Errorf("%w [%g, %g] Hz", ErrEmptyBand, lo, hi)
	}
	return start, end, nil
}

// BandPower returns Σ psd_k·Δf over the bins with lo ≤ f ≤ hi, the power of
// the signal in that band.
func BandPower(freqs, psd []float64, lo, hi float64) (float64, error) {
	start, end, err := band(freqs, lo, hi)
	if err != nil {
		return 0, err
	}
	df := binWidth(freqs)
	var sum float64
	for _, p := range psd[start:end] {
		sum += p * df
	}
	return sum, nil
}

// BandMean returns the mean density over the bins with lo ≤ f ≤ hi.
func BandMean(freqs, psd []float64, lo, hi float64) (float64, error) {
	start, end, err := band(freqs, lo, hi)
	if err != nil {
		return 0, err
	}
	return stat.Mean(psd[start:end], nil), nil
}

// BandArea integrates psd over the band with the trapezoidal rule, between
// the first and last bins inside it. A single bin has zero area.
func BandArea(freqs, psd []float64, lo, hi float64) (float64, error) {
	start, end, err := band(freqs, lo, hi)
	if err != nil {
		return 0, err
	}
	if end-start < 2 {
		return 0, nil
	}
	return integrate.Trapezoidal(freqs[start:end], psd[start:end]), nil
}

// Band returns the bins with lo ≤ f ≤ hi.
func Band(freqs, psd []float64, lo, hi float64) ([]float64, []float64, error) {
	start, end, err := band(freqs, lo, hi)
	if err != nil {
		return nil, nil, err
	}
	return freqs[start:end], psd[start:end], nil
}

// Variance returns the population variance of v, the mean square of the
// trace after removing its mean.
func Variance(v []float64) float64 {
	_, variance := stat.PopMeanVariance(v, nil)
	return variance
}

func binWidth(freqs []float64) float64 {
	if len(freqs) < 2 {
		return 0
	}
	return freqs[1] - freqs[0]
}

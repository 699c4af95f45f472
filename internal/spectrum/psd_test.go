package spectrum

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func sine(n int, dt, amp, f0, offset float64) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = offset + amp*math.Sin(2*math.Pi*f0*float64(i)*dt)
	}
	return v
}

func TestPSDSinusoidBandPower(t *testing.T) {
	const (
		n   = 4096
		fs  = 40960.0
		amp = 0.3
	)
	dt := 1 / fs
	// 5 kHz falls on bin 500.
	v := sine(n, dt, amp, 5000, 0)

	freqs, psd, err := PSD(v, dt)
	require.NoError(t, err)
	require.Len(t, freqs, n/2+1)
	assert.InDelta(t, 10, freqs[1], 1e-12)
	assert.InDelta(t, fs/2, freqs[n/2], 1e-9)

	power, err := BandPower(freqs, psd, 1000, 9000)
	require.NoError(t, err)
	assert.InEpsilon(t, amp*amp/2, power, 1e-9)
}

func TestPSDOffBinSinusoid(t *testing.T) {
	dt := 1e-5
	v := sine(10000, dt, 1.2, 3333.3, 0)

	freqs, psd, err := PSD(v, dt)
	require.NoError(t, err)

	// Leakage spreads the line over neighbouring bins; a wide band holds
	// nearly all of it.
	power, err := BandPower(freqs, psd, 1000, 9000)
	require.NoError(t, err)
	assert.InEpsilon(t, 1.2*1.2/2, power, 0.01)
}

func TestPSDParsevalEvenLength(t *testing.T) {
	// DC offset plus a Nyquist-rate alternation: both live in unmirrored bins.
	n := 64
	v := make([]float64, n)
	for i := range v {
		v[i] = 0.5
		if i%2 == 0 {
			v[i] += 0.25
		} else {
			v[i] -= 0.25
		}
	}
	dt := 1e-3

	freqs, psd, err := PSD(v, dt)
	require.NoError(t, err)

	df := freqs[1]
	total := floats.Sum(psd) * df
	var meanSquare float64
	for _, x := range v {
		meanSquare += x * x
	}
	meanSquare /= float64(n)
	assert.InEpsilon(t, meanSquare, total, 1e-12)

	assert.InEpsilon(t, 0.25, psd[0]*df, 1e-12)
	assert.InEpsilon(t, 0.0625, psd[n/2]*df, 1e-12)
}

func TestPSDParsevalOddLength(t *testing.T) {
	v := sine(101, 1e-3, 1, 37, 0.2)

	freqs, psd, err := PSD(v, 1e-3)
	require.NoError(t, err)
	require.Len(t, psd, 51)

	var meanSquare float64
	for _, x := range v {
		meanSquare += x * x
	}
	meanSquare /= float64(len(v))
	assert.InEpsilon(t, meanSquare, floats.Sum(psd)*freqs[1], 1e-12)
}

func TestLegacyPSDRelation(t *testing.T) {
	dt := 1e-4
	v := sine(200, dt, 1, 500, 0.1)

	_, psd, err := PSD(v, dt)
	require.NoError(t, err)
	_, legacy, err := LegacyPSD(v, dt)
	require.NoError(t, err)

	k := 10
	assert.InEpsilon(t, psd[k]/(2*dt*dt), legacy[k], 1e-9)
	assert.InEpsilon(t, psd[0]/(dt*dt), legacy[0], 1e-9)
}

func TestBandMeanAndArea(t *testing.T) {
	freqs := []float64{0, 1000, 2000, 3000, 4000}
	psd := []float64{9, 1, 2, 3, 9}

	mean, err := BandMean(freqs, psd, 1000, 3000)
	require.NoError(t, err)
	assert.Equal(t, 2.0, mean)

	area, err := BandArea(freqs, psd, 1000, 3000)
	require.NoError(t, err)
	assert.Equal(t, 4000.0, area)

	power, err := BandPower(freqs, psd, 1000, 3000)
	require.NoError(t, err)
	assert.Equal(t, 6000.0, power)
}

func TestEmptyBand(t *testing.T) {
	freqs := []float64{0, 10, 20}
	psd := []float64{1, 1, 1}

	_, err := BandMean(freqs, psd, 100, 200)
	assert.ErrorIs(t, err, ErrEmptyBand)
	_, err = BandPower(freqs, psd, 100, 200)
	assert.ErrorIs(t, err, ErrEmptyBand)
	_, err = BandArea(freqs, psd, 100, 200)
	assert.ErrorIs(t, err, ErrEmptyBand)
}

func TestPSDInputErrors(t *testing.T) {
	_, _, err := PSD([]float64{1}, 1)
	assert.ErrorIs(t, err, ErrShortSignal)

	_, _, err = PSD([]float64{1, 2}, 0)
	assert.ErrorIs(t, err, ErrInvalidSpacing)
}

func TestVariance(t *testing.T) {
	assert.InDelta(t, 1.25, Variance([]float64{1, 2, 3, 4}), 1e-15)
}

package spectrum

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Epsilon is added to every bin power before the logarithm so that an empty
// bin maps to a finite floor of -120 dB.
const Epsilon = 1e-12

// DefaultFFTSize is the default spectrum resolution
const DefaultFFTSize = 1024

// ErrBlockSize is returned when a block does not match the FFT size
var ErrBlockSize = errors.New("block size does not match FFT size")

// Row is one power spectrum in dB, DC-centred, ascending frequency
type Row []float64

// Estimator computes windowed power spectra of fixed-size sample blocks. An
// Estimator reuses its buffers and must not be shared between goroutines.
type Estimator struct {
	size   int
	window []float64
	fft    *fourier.CmplxFFT
	in     []complex128
	out    []complex128
}

// NewEstimator creates an Estimator for blocks of size samples
func NewEstimator(size int, window Window) (*Estimator, error) {
	coeff, err := window.Coefficients(size)
	if err != nil {
		return nil, fmt.Errorf("creating window: %w", err)
	}

	return &Estimator{
		size:   size,
		window: coeff,
		fft:    fourier.NewCmplxFFT(size),
		in:     make([]complex128, size),
		out:    make([]complex128, size),
	}, nil
}

// Size returns the FFT size
func (e *Estimator) Size() int {
	return e.size
}

// Estimate returns the power spectrum of block, which must hold exactly Size
// samples.
func (e *Estimator) Estimate(block []complex64) (Row, error) {
	row := make(Row, e.size)
	if err := e.EstimateInto(row, block); err != nil {
		return nil, err
	}
	return row, nil
}

// EstimateInto writes the power spectrum of block into dst
func (e *Estimator) EstimateInto(dst Row, block []complex64) error {
	if len(block) != e.size {
		return fmt.Errorf("%w: %d samples, want %d", ErrBlockSize, len(block), e.size)
	}
	if len(dst) != e.size {
		return fmt.Errorf("%w: row of %d bins, want %d", ErrBlockSize, len(dst), e.size)
	}

	for i, s := range block {
		w := e.window[i]
		e.in[i] = complex(float64(real(s))*w, float64(imag(s))*w)
	}

	e.out = e.fft.Coefficients(e.out, e.in)

	// Shift so that the zero frequency bin lands in the centre
	half := e.size / 2
	for i := range dst {
		x := e.out[(i+e.size-half)%e.size]
		p := real(x)*real(x) + imag(x)*imag(x)
		dst[i] = 10 * math.Log10(p+Epsilon)
	}

	return nil
}

// BinFrequencies returns the centre frequency of every bin of a row computed
// at the given tuning, spanning [center-rate/2, center+rate/2).
func BinFrequencies(center, sampleRate float64, size int) []float64 {
	freqs := make([]float64, size)
	step := sampleRate / float64(size)
	half := size / 2
	for i := range freqs {
		freqs[i] = center + float64(i-half)*step
	}
	return freqs
}

// Power returns the mean instantaneous power of the block, mean(|s|^2)
func Power(block []complex64) float64 {
	if len(block) == 0 {
		return 0
	}

	var sum float64
	for _, s := range block {
		re, im := float64(real(s)), float64(imag(s))
		sum += re*re + im*im
	}
	return sum / float64(len(block))
}

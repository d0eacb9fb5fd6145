package spectrum

import (
	"fmt"
	"math"
	"strings"
)

// Window is the taper applied to a block before the FFT
type Window string

const (
	Hann           Window = "hann"
	Hamming        Window = "hamming"
	Blackman       Window = "blackman"
	BlackmanHarris Window = "blackman-harris"
	Bartlett       Window = "bartlett"
	Rectangle      Window = "rectangle"

	DefaultWindow = Hann
)

// ParseWindow returns the window with the given name, case-insensitive.
// An empty name selects the default Hann window.
func ParseWindow(name string) (Window, error) {
	w := Window(strings.ToLower(strings.TrimSpace(name)))
	switch w {
	case "":
		return DefaultWindow, nil
	case "boxcar":
		return Rectangle, nil
	case Hann, Hamming, Blackman, BlackmanHarris, Bartlett, Rectangle:
		return w, nil
	}
	return "", fmt.Errorf("unknown window type '%s'", name)
}

// Coefficients returns the periodic (DFT-even) form of the window for n
// samples, the form used for spectral analysis.
func (w Window) Coefficients(n int) ([]float64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("window size must be positive: %d given", n)
	}

	coeff := make([]float64, n)
	size := float64(n)

	for i := range coeff {
		x := 2 * math.Pi * float64(i) / size

		switch w {
		case Hann:
			coeff[i] = 0.5 - 0.5*math.Cos(x)
		case Hamming:
			coeff[i] = 0.54 - 0.46*math.Cos(x)
		case Blackman:
			coeff[i] = 0.42 - 0.5*math.Cos(x) + 0.08*math.Cos(2*x)
		case BlackmanHarris:
			coeff[i] = 0.35875 - 0.48829*math.Cos(x) + 0.14128*math.Cos(2*x) - 0.01168*math.Cos(3*x)
		case Bartlett:
			coeff[i] = 1 - math.Abs(2*float64(i)/size-1)
		case Rectangle:
			coeff[i] = 1
		default:
			return nil, fmt.Errorf("unknown window type '%s'", w)
		}
	}

	return coeff, nil
}

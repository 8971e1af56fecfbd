// internal/dsp/filter.go

// Package dsp holds the numeric stages that turn a raw utterance window into
// a log-mel spectrogram: a decimating Butterworth low-pass filter, a
// multi-worker STFT and a mel filter bank.
//
// Every stage owns scratch buffers that are reused across calls, so none of
// them is safe for concurrent use. Callers serialize access per instance.
package dsp

import (
	"errors"
	"math"

	"github.com/ColonelBlimp/voxctl/internal/vecmath"
)

var (
	// ErrInvalidSampleRate indicates sample rate must be positive
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	// ErrInvalidOrder indicates the filter order must be at least 1
	ErrInvalidOrder = errors.New("filter order must be at least 1")
	// ErrCutoffAboveNyquist indicates cutoff must be positive and below Nyquist
	ErrCutoffAboveNyquist = errors.New("cutoff must be positive and less than Nyquist frequency")
	// ErrInvalidDecimation indicates the decimation factor must be at least 1
	ErrInvalidDecimation = errors.New("decimation factor must be at least 1")
	// ErrInvalidMaxInput indicates the scratch size must be positive
	ErrInvalidMaxInput = errors.New("max input length must be positive")
	// ErrSignalTooLong indicates the input exceeds the preallocated scratch
	ErrSignalTooLong = errors.New("signal longer than filter scratch")
)

// zeroLeadReciprocal stands in for 1/a0 when the leading denominator
// coefficient is exactly zero.
const zeroLeadReciprocal = 1e12

// FilterConfig describes a decimating Butterworth low-pass filter.
type FilterConfig struct {
	// SampleRate of the input in Hz (from config: sample_rate)
	SampleRate float64
	// Cutoff frequency in Hz, normally the decimated Nyquist (derived: sample_rate / (2 * decimation))
	Cutoff float64
	// Order of the Butterworth prototype (from config: filter_order)
	Order int
	// Decimation keeps every Decimation-th filtered sample (from config: decimation)
	Decimation int
	// MaxInput sizes the scratch buffers (derived: buffer capacity)
	MaxInput int
}

// LowPassFilter is a direct-form IIR low-pass followed by decimation.
// Coefficients are fixed at construction; Apply reuses internal scratch and
// is not reentrant.
type LowPassFilter struct {
	config FilterConfig

	numerator   []float64
	denominator []float64
	gain        float64

	// Reversed so that a forward dot product walks from oldest to newest.
	flipNum     []float64
	flipDenTail []float64
	recip       float64

	padded   []float64
	filtered []float64
	out      []float64
}

// NewLowPassFilter designs the filter and allocates its scratch.
func NewLowPassFilter(cfg FilterConfig) (*LowPassFilter, error) {
	if cfg.SampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if cfg.Order < 1 {
		return nil, ErrInvalidOrder
	}
	if cfg.Cutoff <= 0 || cfg.Cutoff >= cfg.SampleRate/2 {
		return nil, ErrCutoffAboveNyquist
	}
	if cfg.Decimation < 1 {
		return nil, ErrInvalidDecimation
	}
	if cfg.MaxInput < 1 {
		return nil, ErrInvalidMaxInput
	}

	num, den, gain := butterworth(cfg.SampleRate, cfg.Cutoff, cfg.Order)

	return &LowPassFilter{
		config:      cfg,
		numerator:   num,
		denominator: den,
		gain:        gain,
		flipNum:     vecmath.Flip(num),
		flipDenTail: vecmath.Flip(den[1:]),
		recip:       reciprocal(den[0]),
		padded:      make([]float64, cfg.MaxInput+cfg.Order),
		filtered:    make([]float64, cfg.MaxInput+cfg.Order),
		out:         make([]float64, cfg.MaxInput/cfg.Decimation),
	}, nil
}

// butterworth returns numerator, denominator and gain of a digital
// Butterworth low-pass obtained through the bilinear transform.
func butterworth(fs, fc float64, order int) (num, den []float64, gain float64) {
	unitPoles := make([]complex128, order)
	for k := range unitPoles {
		angle := float64(2*k+1) * math.Pi / float64(2*order)
		// -sin(a) + i cos(a)
		unitPoles[k] = vecmath.Exp(complex(0, angle+math.Pi/2))
	}

	warped := math.Tan(math.Pi * fc / fs)
	analogCutoff := fs / math.Pi * warped

	analog := append([]complex128(nil), unitPoles...)
	vecmath.ScaleComplex(vecmath.Real(2*math.Pi*analogCutoff), analog)

	poles := make([]complex128, order)
	zeros := make([]complex128, order)
	twoFs := vecmath.Real(2 * fs)
	for k, a := range analog {
		poles[k] = vecmath.Div(1+a/twoFs, 1-a/twoFs)
		zeros[k] = -1
	}

	// Unity gain at DC: gain = t^N / prod(1 - t*p) with t = tan(pi*fc/fs),
	// written with the 4t scaling used by the bilinear prewarp.
	prewarp := 4 * warped
	terms := make([]complex128, order)
	for k, p := range unitPoles {
		terms[k] = 4 - vecmath.Real(prewarp)*p
	}
	gain = math.Pow(prewarp, float64(order)) * real(vecmath.Reciprocal(vecmath.ProdComplex(terms)))

	num = vecmath.RealParts(expandRoots(zeros))
	vecmath.Scale(gain, num)
	den = vecmath.RealParts(expandRoots(poles))
	return num, den, gain
}

// expandRoots multiplies out prod(1 - r*z^-1) into polynomial coefficients.
func expandRoots(roots []complex128) []complex128 {
	poly := []complex128{1}
	for _, r := range roots {
		poly = vecmath.ConvolveComplex(poly, []complex128{1, -r})
	}
	return poly
}

func reciprocal(lead float64) float64 {
	if lead == 0 {
		return zeroLeadReciprocal
	}
	return 1 / lead
}

// Filter runs the IIR recursion over signal at the input rate. The returned
// slice aliases internal scratch and is valid until the next call.
func (f *LowPassFilter) Filter(signal []float32) ([]float64, error) {
	n := len(signal)
	if n > f.config.MaxInput {
		return nil, ErrSignalTooLong
	}
	order := f.config.Order

	clear(f.padded[:order])
	vecmath.Float64s(f.padded[order:order+n], signal)
	clear(f.filtered[:order])

	for i := 0; i < n; i++ {
		acc := vecmath.Dot(f.flipNum, f.padded[i:i+order+1]) -
			vecmath.Dot(f.flipDenTail, f.filtered[i:i+order])
		f.filtered[i+order] = acc * f.recip
	}
	return f.filtered[order : order+n], nil
}

// Apply filters signal and keeps every Decimation-th output sample, giving
// len(signal)/Decimation samples. The returned slice aliases internal
// scratch and is valid until the next call.
func (f *LowPassFilter) Apply(signal []float32) ([]float64, error) {
	full, err := f.Filter(signal)
	if err != nil {
		return nil, err
	}
	n := len(signal) / f.config.Decimation
	return vecmath.DownsampleTo(f.out[:n], full, f.config.Decimation, 0), nil
}

// OutputLength returns the decimated length for an input of n samples.
func (f *LowPassFilter) OutputLength(n int) int {
	return n / f.config.Decimation
}

// Numerator returns b[0..order] in textbook order.
func (f *LowPassFilter) Numerator() []float64 {
	return append([]float64(nil), f.numerator...)
}

// Denominator returns a[0..order] in textbook order.
func (f *LowPassFilter) Denominator() []float64 {
	return append([]float64(nil), f.denominator...)
}

// Gain returns the passband normalisation applied to the numerator.
func (f *LowPassFilter) Gain() float64 {
	return f.gain
}

// Config returns the filter configuration.
func (f *LowPassFilter) Config() FilterConfig {
	return f.config
}

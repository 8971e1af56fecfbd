// internal/dsp/goertzel.go
package dsp

import (
	"errors"
	"math"
)

var (
	// ErrInvalidFrequency indicates frequency must be positive and below Nyquist
	ErrInvalidFrequency = errors.New("probe frequency must be positive and less than Nyquist frequency")
	// ErrInsufficientSamples indicates not enough samples for the configured block size
	ErrInsufficientSamples = errors.New("insufficient samples for block size")
)

// Goertzel measures the amplitude of a single frequency over a block of
// samples. It is used to probe the filter's response at chosen frequencies
// without running a full transform.
type Goertzel struct {
	frequency   float64
	sampleRate  float64
	blockSize   int
	coefficient float64 // 2cos(2*pi*f/fs)
	normalizer  float64 // 2/N so a unit sine reads as 1.0
}

// NewGoertzel builds a probe for frequency at sampleRate over blockSize samples.
func NewGoertzel(frequency, sampleRate float64, blockSize int) (*Goertzel, error) {
	if blockSize <= 0 {
		return nil, ErrInsufficientSamples
	}
	if sampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if frequency <= 0 || frequency >= sampleRate/2 {
		return nil, ErrInvalidFrequency
	}

	omega := 2 * math.Pi * frequency / sampleRate
	return &Goertzel{
		frequency:   frequency,
		sampleRate:  sampleRate,
		blockSize:   blockSize,
		coefficient: 2 * math.Cos(omega),
		normalizer:  2 / float64(blockSize),
	}, nil
}

// Amplitude returns the amplitude of the probe frequency in the last
// BlockSize samples of x.
func (g *Goertzel) Amplitude(x []float64) (float64, error) {
	if len(x) < g.blockSize {
		return 0, ErrInsufficientSamples
	}
	block := x[len(x)-g.blockSize:]

	var s0, s1, s2 float64
	for _, v := range block {
		s0 = v + g.coefficient*s1 - s2
		s2 = s1
		s1 = s0
	}

	power := s1*s1 + s2*s2 - g.coefficient*s1*s2
	if power < 0 {
		power = 0
	}
	return math.Sqrt(power) * g.normalizer, nil
}

// BlockSize returns the number of samples examined per measurement.
func (g *Goertzel) BlockSize() int {
	return g.blockSize
}

// Frequency returns the probe frequency in Hz.
func (g *Goertzel) Frequency() float64 {
	return g.frequency
}

// ResponseAt drives the filter with a unit sine at freq and returns the
// steady-state output amplitude measured at the input rate. n is the
// number of samples to synthesise; the last quarter is measured.
func ResponseAt(f *LowPassFilter, freq float64, n int) (float64, error) {
	cfg := f.Config()
	if n > cfg.MaxInput {
		n = cfg.MaxInput
	}
	probe, err := NewGoertzel(freq, cfg.SampleRate, n/4)
	if err != nil {
		return 0, err
	}

	tone := make([]float32, n)
	for i := range tone {
		tone[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / cfg.SampleRate))
	}
	out, err := f.Filter(tone)
	if err != nil {
		return 0, err
	}
	return probe.Amplitude(out)
}

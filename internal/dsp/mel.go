// internal/dsp/mel.go
package dsp

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ColonelBlimp/voxctl/internal/vecmath"
)

// ErrInvalidMelRange indicates the mel bank bounds or size are unusable
var ErrInvalidMelRange = errors.New("mel bins must be positive and 0 <= min_hz < max_hz <= sample_rate/2")

const (
	// refAmplitude is the dB reference and the dynamic range kept below the peak.
	refAmplitude = 80.0

	slaneyHzBoundary  = 1000.0
	slaneyMelBoundary = slaneyHzBoundary * 3 / 200
)

var slaneyLogStep = 27 / math.Log(6.4)

// HzToMel converts a frequency to the Slaney mel scale: linear below 1 kHz,
// logarithmic above.
func HzToMel(hz float64) float64 {
	if hz > slaneyHzBoundary {
		return slaneyMelBoundary + math.Log(hz/slaneyHzBoundary)*slaneyLogStep
	}
	return hz * 3 / 200
}

// MelToHz is the inverse of HzToMel.
func MelToHz(mel float64) float64 {
	if mel >= slaneyMelBoundary {
		return slaneyHzBoundary * math.Exp((mel-slaneyMelBoundary)/slaneyLogStep)
	}
	return mel * 200 / 3
}

// MelConfig describes a mel filter bank.
type MelConfig struct {
	// SampleRate of the spectrogram's source signal (derived: sample_rate / decimation)
	SampleRate float64
	// FrameLength is the FFT size the spectrogram was built with (from config: frame_length)
	FrameLength int
	// Bins is the number of mel filters (from config: mel_bins)
	Bins int
	// MinHz is the lower edge of the first filter (from config: mel_min_hz)
	MinHz float64
	// MaxHz is the upper edge of the last filter (from config: mel_max_hz)
	MaxHz float64
}

// MelCompressor projects magnitude spectrograms onto a Slaney-normalised
// triangular filter bank and converts the result to clipped decibels.
type MelCompressor struct {
	config MelConfig
	bank   *mat.Dense // (Bins, FrameLength/2+1)

	// Reused while the frame count stays the same.
	spec *mat.Dense
	mel  *mat.Dense
	rows [][]float64
}

// NewMelCompressor builds the filter bank.
func NewMelCompressor(cfg MelConfig) (*MelCompressor, error) {
	if cfg.SampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if !isPowerOfTwo(cfg.FrameLength) {
		return nil, ErrFrameLengthNotPow2
	}
	if cfg.Bins < 1 || cfg.MinHz < 0 || cfg.MinHz >= cfg.MaxHz || cfg.MaxHz > cfg.SampleRate/2 {
		return nil, ErrInvalidMelRange
	}
	return &MelCompressor{
		config: cfg,
		bank:   melFilterBank(cfg),
	}, nil
}

func melFilterBank(cfg MelConfig) *mat.Dense {
	nfft := cfg.FrameLength/2 + 1

	melPoints := vecmath.Linspace(HzToMel(cfg.MinHz), HzToMel(cfg.MaxHz), cfg.Bins+2)
	melHz := make([]float64, len(melPoints))
	for i, m := range melPoints {
		melHz[i] = MelToHz(m)
	}
	fftHz := vecmath.Linspace(0, cfg.SampleRate/2, nfft)

	spacing := vecmath.Diff(melHz)
	ramps := vecmath.OuterDiff(melHz, fftHz)

	bank := mat.NewDense(cfg.Bins, nfft, nil)
	lower := make([]float64, nfft)
	upper := make([]float64, nfft)
	row := make([]float64, nfft)
	for b := 0; b < cfg.Bins; b++ {
		copy(lower, ramps[b])
		vecmath.Scale(-1/spacing[b], lower)
		copy(upper, ramps[b+2])
		vecmath.Scale(1/spacing[b+1], upper)

		vecmath.MinimumOf(row, lower, upper)
		vecmath.Maximum(row, 0)
		vecmath.Scale(2/(melHz[b+2]-melHz[b]), row)
		bank.SetRow(b, row)
	}
	return bank
}

// Convert maps a (frames, FrameLength/2+1) magnitude spectrogram to a
// (frames, Bins) dB mel spectrogram. Values below the larger of
// -100-log10(80) and this call's peak minus 80 dB are raised to it.
// The returned rows are reused by the next call.
func (m *MelCompressor) Convert(spec [][]float64) [][]float64 {
	frames := len(spec)
	if frames == 0 {
		return [][]float64{}
	}
	nfft := m.config.FrameLength/2 + 1
	m.ensure(frames)

	for i, row := range spec {
		if len(row) != nfft {
			panic("dsp: spectrogram row length does not match mel bank")
		}
		m.spec.SetRow(i, row)
	}
	m.mel.Mul(m.spec, m.bank.T())

	logRef := math.Log10(refAmplitude)
	for _, row := range m.rows {
		for j, v := range row {
			row[j] = 10 * (math.Log10(v*v) - logRef)
		}
	}

	floor := math.Max(-100-logRef, vecmath.MaxMatrix(m.rows)-refAmplitude)
	for _, row := range m.rows {
		vecmath.Maximum(row, floor)
	}
	return m.rows
}

func (m *MelCompressor) ensure(frames int) {
	if m.spec != nil && len(m.rows) == frames {
		return
	}
	nfft := m.config.FrameLength/2 + 1
	m.spec = mat.NewDense(frames, nfft, nil)
	m.mel = mat.NewDense(frames, m.config.Bins, nil)

	raw := m.mel.RawMatrix()
	m.rows = make([][]float64, frames)
	for i := range m.rows {
		m.rows[i] = raw.Data[i*raw.Stride : i*raw.Stride+m.config.Bins]
	}
}

// Bank returns a copy of the filter bank.
func (m *MelCompressor) Bank() *mat.Dense {
	return mat.DenseCopyOf(m.bank)
}

// Config returns the compressor configuration.
func (m *MelCompressor) Config() MelConfig {
	return m.config
}

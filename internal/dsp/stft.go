// internal/dsp/stft.go
package dsp

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/ColonelBlimp/voxctl/internal/recovery"
	"github.com/ColonelBlimp/voxctl/internal/vecmath"
)

var (
	// ErrInvalidHop indicates the hop length must be positive
	ErrInvalidHop = errors.New("hop length must be positive")
	// ErrInvalidWorkers indicates at least one worker is required
	ErrInvalidWorkers = errors.New("worker count must be positive")
	// ErrSignalTooShort indicates the signal cannot hold a single frame
	ErrSignalTooShort = errors.New("signal length must be at least one frame")
	// ErrSignalLength indicates Transform got a signal of the wrong length
	ErrSignalLength = errors.New("signal length does not match engine")
)

// STFTConfig describes a spectrogram engine.
type STFTConfig struct {
	// FrameLength is the FFT size, a power of two (from config: frame_length)
	FrameLength int
	// HopLength is the frame advance in samples (from config: hop_length)
	HopLength int
	// Workers is the number of goroutines sharing the frames (from config: stft_workers)
	Workers int
	// SignalLength is the decimated input length (from config: spectrogram_timestamps)
	SignalLength int
}

// SpectrogramEngine computes magnitude spectrograms of fixed-length signals
// with a Hann-windowed iterative FFT. Frames are split into contiguous
// ranges, one per worker, and Transform waits for all of them.
//
// The output matrix and scratch are reused across calls, so Transform is not
// reentrant and its result is valid until the next call.
type SpectrogramEngine struct {
	config STFTConfig
	tables *fftTables
	window []float64

	numFrames int
	bins      int
	ranges    [][2]int

	padded  []float64
	frames  [][]float64       // per worker
	scratch [][2][]complex128 // per worker, double buffered
	out     [][]float64

	// beforeFrame is called ahead of every frame when set.
	beforeFrame func(worker, frame int)
}

// NewSpectrogramEngine precomputes the window and FFT tables and allocates
// all scratch for signals of cfg.SignalLength samples.
func NewSpectrogramEngine(cfg STFTConfig) (*SpectrogramEngine, error) {
	tables, err := newFFTTables(cfg.FrameLength)
	if err != nil {
		return nil, err
	}
	if cfg.HopLength < 1 {
		return nil, ErrInvalidHop
	}
	if cfg.Workers < 1 {
		return nil, ErrInvalidWorkers
	}
	if cfg.SignalLength < cfg.FrameLength {
		return nil, ErrSignalTooShort
	}

	n := cfg.FrameLength
	numFrames := 1 + (cfg.SignalLength-n)/cfg.HopLength
	bins := n/2 + 1

	e := &SpectrogramEngine{
		config:    cfg,
		tables:    tables,
		window:    hannWindow(n),
		numFrames: numFrames,
		bins:      bins,
		ranges:    frameRanges(numFrames, cfg.Workers),
		padded:    make([]float64, cfg.SignalLength+n),
		frames:    make([][]float64, cfg.Workers),
		scratch:   make([][2][]complex128, cfg.Workers),
		out:       make([][]float64, numFrames),
	}
	for w := 0; w < cfg.Workers; w++ {
		e.frames[w] = make([]float64, n)
		e.scratch[w] = [2][]complex128{make([]complex128, n), make([]complex128, n)}
	}
	for k := range e.out {
		e.out[k] = make([]float64, bins)
	}
	return e, nil
}

// hannWindow returns the periodic Hann window of length n.
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = math.Cos(2 * math.Pi * float64(i) / float64(n))
	}
	vecmath.Scale(-0.5, w)
	vecmath.AddConst(0.5, w)
	return w
}

// frameRanges splits [0, frames) into workers contiguous ranges whose
// boundaries are floor(linspace(0, frames, workers+1)).
func frameRanges(frames, workers int) [][2]int {
	bounds := vecmath.Linspace(0, float64(frames), workers+1)
	ranges := make([][2]int, workers)
	for w := range ranges {
		ranges[w] = [2]int{int(math.Floor(bounds[w])), int(math.Floor(bounds[w+1]))}
	}
	return ranges
}

// Transform returns the (frames, FrameLength/2+1) magnitude spectrogram of
// signal. It blocks until every worker finishes. A worker failure or a
// cancelled ctx fails the whole call; no partial result is returned.
func (e *SpectrogramEngine) Transform(ctx context.Context, signal []float64) ([][]float64, error) {
	if len(signal) != e.config.SignalLength {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSignalLength, len(signal), e.config.SignalLength)
	}
	vecmath.ReflectPadTo(e.padded, signal, e.config.FrameLength/2)

	g, ctx := errgroup.WithContext(ctx)
	for w, r := range e.ranges {
		g.Go(func() (err error) {
			defer recovery.CaptureError(&err)
			if err := e.work(ctx, w, r[0], r[1]); err != nil {
				return fmt.Errorf("stft worker %d: %w", w, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return e.out, nil
}

func (e *SpectrogramEngine) work(ctx context.Context, w, start, end int) error {
	n := e.config.FrameLength
	hop := e.config.HopLength
	frame := e.frames[w]
	a, b := e.scratch[w][0], e.scratch[w][1]
	perm := e.tables.permutation

	for k := start; k < end; k++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.beforeFrame != nil {
			e.beforeFrame(w, k)
		}

		vecmath.MulTo(frame, e.padded[k*hop:k*hop+n], e.window)
		for i, src := range perm {
			a[i] = complex(frame[src], 0)
		}
		spectrum := e.tables.forward(a, b)
		vecmath.MagnitudesTo(e.out[k], spectrum)
	}
	return nil
}

// NumFrames returns the number of frames Transform produces.
func (e *SpectrogramEngine) NumFrames() int {
	return e.numFrames
}

// Bins returns the number of frequency bins per frame.
func (e *SpectrogramEngine) Bins() int {
	return e.bins
}

// Workers returns the worker count.
func (e *SpectrogramEngine) Workers() int {
	return e.config.Workers
}

// Config returns the engine configuration.
func (e *SpectrogramEngine) Config() STFTConfig {
	return e.config
}

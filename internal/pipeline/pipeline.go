// internal/pipeline/pipeline.go

// Package pipeline chains the signal stages that turn a raw utterance window
// into a mel spectrogram, and runs recognition and actions on the results.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ColonelBlimp/voxctl/internal/config"
	"github.com/ColonelBlimp/voxctl/internal/dsp"
	"github.com/ColonelBlimp/voxctl/internal/observe"
	"github.com/ColonelBlimp/voxctl/internal/recovery"
)

// Stage names used for spans and the stage attribute on metrics.
const (
	StageFilter = "filter"
	StageSTFT   = "stft"
	StageMel    = "mel"
)

var (
	// ErrMissingStage indicates one of the stages is nil
	ErrMissingStage = errors.New("pipeline stage is nil")
	// ErrStageMismatch indicates adjacent stages disagree on shape
	ErrStageMismatch = errors.New("pipeline stages do not fit together")
)

// Stages are the signal processing steps, applied in field order.
type Stages struct {
	Filter *dsp.LowPassFilter
	STFT   *dsp.SpectrogramEngine
	Mel    *dsp.MelCompressor
}

// Durations holds the wall time of each stage.
type Durations struct {
	Filter time.Duration
	STFT   time.Duration
	Mel    time.Duration
}

// Total is the sum of all stages.
func (d Durations) Total() time.Duration {
	return d.Filter + d.STFT + d.Mel
}

// Result is the output of one Process call. It owns its data.
type Result struct {
	// Mel is the (Frames, Bins) dB mel spectrogram
	Mel       [][]float64
	Frames    int
	Bins      int
	Durations Durations
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics records stage durations into m.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// Pipeline runs filter, STFT and mel compression over utterance windows.
// Stages reuse scratch between calls, so Process holds a mutex for the whole run.
type Pipeline struct {
	mu      sync.Mutex
	stages  Stages
	metrics *observe.Metrics
	logger  *slog.Logger
}

// New checks that the stages fit together and returns a Pipeline.
func New(stages Stages, opts ...Option) (*Pipeline, error) {
	if stages.Filter == nil || stages.STFT == nil || stages.Mel == nil {
		return nil, ErrMissingStage
	}
	if got, want := stages.Mel.Config().FrameLength, stages.STFT.Config().FrameLength; got != want {
		return nil, fmt.Errorf("%w: mel bank built for frame length %d, stft uses %d", ErrStageMismatch, got, want)
	}
	if got, want := stages.Filter.OutputLength(stages.Filter.Config().MaxInput), stages.STFT.Config().SignalLength; got != want {
		return nil, fmt.Errorf("%w: filter yields %d samples, stft expects %d", ErrStageMismatch, got, want)
	}

	p := &Pipeline{stages: stages}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

// Build constructs every stage from settings.
func Build(s *config.Settings, opts ...Option) (*Pipeline, error) {
	filter, err := dsp.NewLowPassFilter(dsp.FilterConfig{
		SampleRate: float64(s.SampleRate),
		Cutoff:     s.Cutoff(),
		Order:      s.FilterOrder,
		Decimation: s.Decimation,
		MaxInput:   s.BufferCapacity(),
	})
	if err != nil {
		return nil, fmt.Errorf("low-pass filter: %w", err)
	}
	stft, err := dsp.NewSpectrogramEngine(dsp.STFTConfig{
		FrameLength:  s.FrameLength,
		HopLength:    s.HopLength,
		Workers:      s.STFTWorkers,
		SignalLength: s.SpectrogramTimestamps,
	})
	if err != nil {
		return nil, fmt.Errorf("spectrogram engine: %w", err)
	}
	mel, err := dsp.NewMelCompressor(dsp.MelConfig{
		SampleRate:  s.DecimatedRate(),
		FrameLength: s.FrameLength,
		Bins:        s.MelBins,
		MinHz:       s.MelMinHz,
		MaxHz:       s.MelUpperHz(),
	})
	if err != nil {
		return nil, fmt.Errorf("mel compressor: %w", err)
	}
	return New(Stages{Filter: filter, STFT: stft, Mel: mel}, opts...)
}

// Process turns one raw window of WindowLength samples into a mel spectrogram.
func (p *Pipeline) Process(ctx context.Context, samples []float32) (res *Result, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, span := observe.StartSpan(ctx, "pipeline.process",
		trace.WithAttributes(attribute.Int("samples", len(samples))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var d Durations
	var filtered []float64
	if err = p.stage(ctx, StageFilter, &d.Filter, func(context.Context) error {
		var ferr error
		filtered, ferr = p.stages.Filter.Apply(samples)
		return ferr
	}); err != nil {
		return nil, err
	}

	var spec [][]float64
	if err = p.stage(ctx, StageSTFT, &d.STFT, func(ctx context.Context) error {
		var serr error
		spec, serr = p.stages.STFT.Transform(ctx, filtered)
		return serr
	}); err != nil {
		return nil, err
	}

	var mel [][]float64
	if err = p.stage(ctx, StageMel, &d.Mel, func(context.Context) (merr error) {
		defer recovery.CaptureError(&merr)
		mel = p.stages.Mel.Convert(spec)
		return nil
	}); err != nil {
		return nil, err
	}

	res = &Result{
		Mel:       copyRows(mel),
		Frames:    len(mel),
		Bins:      p.stages.Mel.Config().Bins,
		Durations: d,
	}
	observe.LoggerFrom(ctx, p.logger).Debug("pipeline processed window",
		"frames", res.Frames,
		"filter", d.Filter,
		"stft", d.STFT,
		"mel", d.Mel)
	return res, nil
}

func (p *Pipeline) stage(ctx context.Context, name string, elapsed *time.Duration, fn func(context.Context) error) error {
	ctx, span := observe.StartSpan(ctx, "pipeline."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	*elapsed = time.Since(start)
	p.metrics.RecordStage(ctx, name, *elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// WindowLength is the raw sample count Process expects.
func (p *Pipeline) WindowLength() int {
	return p.stages.Filter.Config().MaxInput
}

// Frames is the number of mel frames per result.
func (p *Pipeline) Frames() int {
	return p.stages.STFT.NumFrames()
}

// Bins is the number of mel bins per frame.
func (p *Pipeline) Bins() int {
	return p.stages.Mel.Config().Bins
}

// Stages returns the underlying stages.
func (p *Pipeline) Stages() Stages {
	return p.stages
}

func copyRows(m [][]float64) [][]float64 {
	if len(m) == 0 {
		return [][]float64{}
	}
	cols := len(m[0])
	flat := make([]float64, len(m)*cols)
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = flat[i*cols : (i+1)*cols : (i+1)*cols]
		copy(out[i], row)
	}
	return out
}

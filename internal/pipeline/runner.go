// internal/pipeline/runner.go
package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ColonelBlimp/voxctl/internal/intent"
	"github.com/ColonelBlimp/voxctl/internal/observe"
	"github.com/ColonelBlimp/voxctl/internal/recognize"
	"github.com/ColonelBlimp/voxctl/internal/recovery"
	"github.com/ColonelBlimp/voxctl/internal/vad"
)

const defaultQueueSize = 4

// UtteranceSink stores raw utterance windows.
type UtteranceSink interface {
	Save(u vad.Utterance) (string, error)
}

// Outcome is everything the runner learned about one utterance.
type Outcome struct {
	Utterance vad.Utterance
	Result    *Result
	Syllables []string
	Phrase    string
	Action    intent.Action
	// SavedPath is set when a sink stored the window
	SavedPath string
	// Err is the first error that stopped handling, if any
	Err error
}

// ResultHook receives every outcome on the runner goroutine.
type ResultHook func(o Outcome)

// Stats counts runner activity.
type Stats struct {
	Submitted uint64
	Dropped   uint64
	Processed uint64
	Failed    uint64
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithSink saves every utterance window before processing.
func WithSink(s UtteranceSink) RunnerOption {
	return func(r *Runner) { r.sink = s }
}

// WithResultHook calls h after every utterance.
func WithResultHook(h ResultHook) RunnerOption {
	return func(r *Runner) { r.hook = h }
}

// WithQueueSize sets how many utterances may wait before Submit drops.
func WithQueueSize(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithRunnerMetrics records utterance and action counts into m.
func WithRunnerMetrics(m *observe.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// Runner owns the single goroutine that turns utterances into actions.
// Submit is safe to call from the audio thread; it never blocks.
type Runner struct {
	pipeline   *Pipeline
	recognizer recognize.Recognizer
	actuator   intent.Actuator
	sink       UtteranceSink
	hook       ResultHook
	metrics    *observe.Metrics
	logger     *slog.Logger

	queueSize int
	queue     chan vad.Utterance
	closed    atomic.Bool

	submitted atomic.Uint64
	dropped   atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64
}

// NewRunner wires the pipeline to a recognizer and an actuator.
func NewRunner(p *Pipeline, rec recognize.Recognizer, act intent.Actuator, opts ...RunnerOption) *Runner {
	r := &Runner{
		pipeline:   p,
		recognizer: rec,
		actuator:   act,
		queueSize:  defaultQueueSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.recognizer == nil {
		r.recognizer = recognize.NopRecognizer{}
	}
	if r.actuator == nil {
		r.actuator = intent.LogActuator{}
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.queue = make(chan vad.Utterance, r.queueSize)
	return r
}

// Submit queues u without blocking. It returns false if the queue is full
// or the runner is closed.
func (r *Runner) Submit(u vad.Utterance) bool {
	if r.closed.Load() {
		return false
	}
	r.submitted.Add(1)
	if r.trySend(u) {
		return true
	}
	r.dropped.Add(1)
	r.metrics.RecordUtterance(context.Background(), observe.OutcomeDropped)
	r.logger.Warn("utterance dropped, runner busy", "queued", len(r.queue))
	return false
}

// trySend reports false for a full queue, or one closed after Submit's check.
func (r *Runner) trySend(u vad.Utterance) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()
	select {
	case r.queue <- u:
		return true
	default:
		return false
	}
}

// Close stops accepting utterances. Run drains what is queued and returns.
func (r *Runner) Close() {
	if r.closed.CompareAndSwap(false, true) {
		close(r.queue)
	}
}

// Run handles utterances until ctx is done or Close drains the queue.
func (r *Runner) Run(ctx context.Context) error {
	defer recovery.HandlePanicFunc(r.Close)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-r.queue:
			if !ok {
				return nil
			}
			r.handle(ctx, u)
		}
	}
}

// Handle runs one utterance synchronously, bypassing the queue.
func (r *Runner) Handle(ctx context.Context, u vad.Utterance) Outcome {
	r.submitted.Add(1)
	return r.handle(ctx, u)
}

func (r *Runner) handle(ctx context.Context, u vad.Utterance) Outcome {
	ctx, span := observe.StartSpan(ctx, "runner.utterance")
	defer span.End()
	log := observe.LoggerFrom(ctx, r.logger).With("loud", u.Loud)

	o := r.process(ctx, u, log)
	if o.Err != nil {
		r.failed.Add(1)
		r.metrics.RecordUtterance(ctx, observe.OutcomeFailed)
		log.Error("utterance failed", "error", o.Err)
	} else {
		r.processed.Add(1)
		r.metrics.RecordUtterance(ctx, observe.OutcomeProcessed)
	}
	if r.hook != nil {
		r.hook(o)
	}
	return o
}

func (r *Runner) process(ctx context.Context, u vad.Utterance, log *slog.Logger) Outcome {
	o := Outcome{Utterance: u}

	if r.sink != nil {
		path, err := r.sink.Save(u)
		if err != nil {
			log.Warn("save utterance", "error", err)
		} else {
			o.SavedPath = path
			log.Debug("utterance saved", "path", path)
		}
	}

	res, err := r.pipeline.Process(ctx, u.Samples)
	if err != nil {
		o.Err = err
		return o
	}
	o.Result = res

	start := time.Now()
	syllables, err := r.recognizer.Recognize(ctx, res.Mel)
	r.metrics.RecordRecognize(ctx, time.Since(start))
	if err != nil {
		o.Err = err
		return o
	}
	o.Syllables = syllables
	o.Phrase = recognize.Phrase(syllables)
	o.Action = intent.Match(o.Phrase)

	log.Info("utterance recognized",
		"phrase", o.Phrase,
		"action", o.Action.String(),
		"pipeline", res.Durations.Total(),
		"recognize", time.Since(start))

	if o.Action == intent.ActionNone {
		return o
	}
	r.metrics.RecordAction(ctx, o.Action.String())
	if err := r.actuator.Perform(ctx, o.Action); err != nil {
		o.Err = err
	}
	return o
}

// Stats returns a snapshot of the counters.
func (r *Runner) Stats() Stats {
	return Stats{
		Submitted: r.submitted.Load(),
		Dropped:   r.dropped.Load(),
		Processed: r.processed.Load(),
		Failed:    r.failed.Load(),
	}
}

// Pipeline returns the runner's pipeline.
func (r *Runner) Pipeline() *Pipeline {
	return r.pipeline
}

// internal/observe/metrics.go
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/ColonelBlimp/voxctl"

// Utterance outcomes recorded by RecordUtterance.
const (
	OutcomeProcessed = "processed"
	OutcomeDropped   = "dropped"
	OutcomeFailed    = "failed"
)

// stageBuckets covers sub-millisecond filter runs up to slow STFT passes.
var stageBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics holds the voxctl instruments.
type Metrics struct {
	// StageDuration records per-stage pipeline latency, labelled by stage.
	StageDuration metric.Float64Histogram
	// RecognizeDuration records recognizer latency.
	RecognizeDuration metric.Float64Histogram
	// Utterances counts utterances by outcome.
	Utterances metric.Int64Counter
	// Actions counts matched actions by name.
	Actions metric.Int64Counter
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	if met.StageDuration, err = m.Float64Histogram("voxctl.stage.duration",
		metric.WithDescription("Latency of each signal pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecognizeDuration, err = m.Float64Histogram("voxctl.recognize.duration",
		metric.WithDescription("Latency of phrase recognition."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(stageBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("voxctl.utterances",
		metric.WithDescription("Utterances handed to the pipeline by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Actions, err = m.Int64Counter("voxctl.actions",
		metric.WithDescription("Matched actions by name."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a package-level Metrics built on the global meter
// provider the first time it is called.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordStage records the duration of one pipeline stage.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	m.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordRecognize records the duration of one recognition.
func (m *Metrics) RecordRecognize(ctx context.Context, d time.Duration) {
	m.RecognizeDuration.Record(ctx, d.Seconds())
}

// RecordUtterance counts an utterance with the given outcome.
func (m *Metrics) RecordUtterance(ctx context.Context, outcome string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordAction counts a matched action.
func (m *Metrics) RecordAction(ctx context.Context, action string) {
	m.Actions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("action", action)))
}

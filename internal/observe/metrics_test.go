package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestRecordStage(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStage(ctx, "filter", 2*time.Millisecond)
	m.RecordStage(ctx, "filter", 3*time.Millisecond)
	m.RecordStage(ctx, "stft", 10*time.Millisecond)

	got := findMetric(collect(t, reader), "voxctl.stage.duration")
	if got == nil {
		t.Fatal("voxctl.stage.duration not recorded")
	}
	hist, ok := got.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("data type = %T, want Histogram[float64]", got.Data)
	}

	counts := map[string]uint64{}
	for _, dp := range hist.DataPoints {
		stage, _ := dp.Attributes.Value(attribute.Key("stage"))
		counts[stage.AsString()] = dp.Count
	}
	if counts["filter"] != 2 || counts["stft"] != 1 {
		t.Errorf("stage counts = %v, want filter:2 stft:1", counts)
	}
}

func TestRecordUtterance(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordUtterance(ctx, OutcomeProcessed)
	m.RecordUtterance(ctx, OutcomeDropped)
	m.RecordUtterance(ctx, OutcomeDropped)

	got := findMetric(collect(t, reader), "voxctl.utterances")
	if got == nil {
		t.Fatal("voxctl.utterances not recorded")
	}
	sum, ok := got.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("data type = %T, want Sum[int64]", got.Data)
	}
	counts := map[string]int64{}
	for _, dp := range sum.DataPoints {
		outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
		counts[outcome.AsString()] = dp.Value
	}
	if counts[OutcomeProcessed] != 1 || counts[OutcomeDropped] != 2 {
		t.Errorf("outcome counts = %v", counts)
	}
}

func TestRecordActionAndRecognize(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAction(ctx, "heat")
	m.RecordRecognize(ctx, 40*time.Millisecond)

	rm := collect(t, reader)
	if findMetric(rm, "voxctl.actions") == nil {
		t.Error("voxctl.actions not recorded")
	}
	if findMetric(rm, "voxctl.recognize.duration") == nil {
		t.Error("voxctl.recognize.duration not recorded")
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	if DefaultMetrics() != DefaultMetrics() {
		t.Error("DefaultMetrics returned different instances")
	}
}

// SPDX-License-Identifier: MIT
package observe

import (
	"context"
	"testing"

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

// sumFor returns the int64 sum data point whose attribute key has value.
func sumFor(t *testing.T, m *metricdata.Metrics, key, value string) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: unexpected data type %T", m.Name, m.Data)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	return 0
}

func TestCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordUpload(ctx, StatusOK)
	m.RecordUpload(ctx, StatusOK)
	m.RecordUpload(ctx, StatusError)
	m.RecordClip(ctx, "played")
	m.RecordServerUpload(ctx, StatusOK)

	rm := collect(t, reader)

	uploads := findMetric(rm, "pulse.upload.requests")
	if uploads == nil {
		t.Fatal("pulse.upload.requests not found")
	}
	if got := sumFor(t, uploads, "status", StatusOK); got != 2 {
		t.Errorf("ok uploads = %d, want 2", got)
	}
	if got := sumFor(t, uploads, "status", StatusError); got != 1 {
		t.Errorf("error uploads = %d, want 1", got)
	}

	clips := findMetric(rm, "pulse.playback.clips")
	if clips == nil || sumFor(t, clips, "result", "played") != 1 {
		t.Error("expected one played clip")
	}
	if findMetric(rm, "pulse.server.uploads") == nil {
		t.Error("pulse.server.uploads not found")
	}
}

func TestFetchRecordsDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFetch(ctx, StatusOK, 0.12)
	m.RecordFetch(ctx, StatusError, 0)

	rm := collect(t, reader)
	hist := findMetric(rm, "pulse.fetch.duration")
	if hist == nil {
		t.Fatal("pulse.fetch.duration not found")
	}
	data, ok := hist.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("unexpected data type %T", hist.Data)
	}
	var count uint64
	for _, dp := range data.DataPoints {
		count += dp.Count
	}
	if count != 1 {
		t.Errorf("histogram count = %d, want 1", count)
	}

	reqs := findMetric(rm, "pulse.fetch.requests")
	if reqs == nil || sumFor(t, reqs, "status", StatusError) != 1 {
		t.Error("expected one failed fetch")
	}
}

func TestQueueDepth(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.AddQueueDepth(ctx, 3)
	m.AddQueueDepth(ctx, -1)
	m.AddQueueDepth(ctx, 0)

	rm := collect(t, reader)
	depth := findMetric(rm, "pulse.playback.queue_depth")
	if depth == nil {
		t.Fatal("pulse.playback.queue_depth not found")
	}
	sum := depth.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 2 {
		t.Errorf("queue depth = %+v, want 2", sum.DataPoints)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordUpload(ctx, StatusOK)
	m.RecordFetch(ctx, StatusOK, 1)
	m.RecordClip(ctx, "played")
	m.AddQueueDepth(ctx, 1)
	m.RecordServerUpload(ctx, StatusOK)
}

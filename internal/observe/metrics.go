// SPDX-License-Identifier: MIT

// Package observe holds the OpenTelemetry instruments recorded by the
// uploader, fetcher, playback queue and receiver backend, and the Prometheus
// bridge that exposes them on /metrics.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without metrics in tests.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all pulse metrics.
const meterName = "pulse"

// Status attribute values.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
	StatusEmpty   = "empty"
)

// Metrics holds every instrument used by the application. The OTel types
// handle their own synchronisation.
type Metrics struct {
	// UploadRequests counts uploader attempts by status.
	UploadRequests metric.Int64Counter

	// FetchRequests counts fetcher polls by status.
	FetchRequests metric.Int64Counter

	// FetchDuration tracks the round trip of a fetch, decode included.
	FetchDuration metric.Float64Histogram

	// PlaybackClips counts clips leaving the queue by result
	// (played, failed, dropped).
	PlaybackClips metric.Int64Counter

	// QueueDepth tracks clips waiting in the playback queue.
	QueueDepth metric.Int64UpDownCounter

	// ServerUploads counts uploads received by the backend by status.
	ServerUploads metric.Int64Counter
}

// latencyBuckets are histogram boundaries in seconds for HTTP round trips.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.UploadRequests, err = m.Int64Counter("pulse.upload.requests",
		metric.WithDescription("Upload attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.FetchRequests, err = m.Int64Counter("pulse.fetch.requests",
		metric.WithDescription("Fetch polls by status."),
	); err != nil {
		return nil, err
	}
	if met.FetchDuration, err = m.Float64Histogram("pulse.fetch.duration",
		metric.WithDescription("Latency of fetching and decoding a clip."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackClips, err = m.Int64Counter("pulse.playback.clips",
		metric.WithDescription("Clips leaving the playback queue by result."),
	); err != nil {
		return nil, err
	}
	if met.QueueDepth, err = m.Int64UpDownCounter("pulse.playback.queue_depth",
		metric.WithDescription("Clips waiting in the playback queue."),
	); err != nil {
		return nil, err
	}
	if met.ServerUploads, err = m.Int64Counter("pulse.server.uploads",
		metric.WithDescription("Uploads received by the backend by status."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordUpload increments the upload counter.
func (m *Metrics) RecordUpload(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.UploadRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordFetch increments the fetch counter and, when seconds is positive,
// records the round trip.
func (m *Metrics) RecordFetch(ctx context.Context, status string, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.FetchRequests.Add(ctx, 1, attrs)
	if seconds > 0 {
		m.FetchDuration.Record(ctx, seconds, attrs)
	}
}

// RecordClip increments the playback counter for result.
func (m *Metrics) RecordClip(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.PlaybackClips.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// AddQueueDepth moves the queue depth gauge by delta.
func (m *Metrics) AddQueueDepth(ctx context.Context, delta int64) {
	if m == nil || delta == 0 {
		return
	}
	m.QueueDepth.Add(ctx, delta)
}

// RecordServerUpload increments the backend upload counter.
func (m *Metrics) RecordServerUpload(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.ServerUploads.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// Package observe provides observability primitives for vocalink:
// OpenTelemetry metrics with a Prometheus exporter bridge so the standard
// /metrics endpoint keeps working.
//
// A package-level default [Metrics] instance ([Default]) is provided for
// convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all vocalink
// metrics.
const meterName = "github.com/MrWong99/vocalink"

// Metrics holds all OpenTelemetry metric instruments for the client. All
// fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Capture path ---

	// FramesSent counts audio frames written to the agent channel.
	FramesSent metric.Int64Counter

	// FramesDropped counts frames discarded because the capture queue was
	// full (the render callback never blocks).
	FramesDropped metric.Int64Counter

	// AudioBytesSent counts raw PCM bytes sent to the agent.
	AudioBytesSent metric.Int64Counter

	// --- Playback path ---

	// SegmentsReceived counts audio_response segments received.
	SegmentsReceived metric.Int64Counter

	// SegmentDecodeErrors counts segments skipped due to decode failure.
	SegmentDecodeErrors metric.Int64Counter

	// PlaybackQueueDepth tracks items waiting behind the active playback.
	PlaybackQueueDepth metric.Int64UpDownCounter

	// --- Session ---

	// ActiveSessions tracks live call sessions (0 or 1 per process).
	ActiveSessions metric.Int64UpDownCounter

	// SessionDuration tracks call length from start to teardown.
	SessionDuration metric.Float64Histogram

	// Transcripts counts transcript messages surfaced by the agent.
	Transcripts metric.Int64Counter
}

// sessionBuckets defines histogram boundaries (in seconds) sized for phone
// call durations.
var sessionBuckets = []float64{
	5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation
// fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesSent, err = m.Int64Counter("vocalink.capture.frames_sent",
		metric.WithDescription("Audio frames written to the agent channel."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("vocalink.capture.frames_dropped",
		metric.WithDescription("Frames discarded because the capture queue was full."),
	); err != nil {
		return nil, err
	}
	if met.AudioBytesSent, err = m.Int64Counter("vocalink.capture.bytes_sent",
		metric.WithDescription("Raw PCM bytes sent to the agent."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.SegmentsReceived, err = m.Int64Counter("vocalink.playback.segments_received",
		metric.WithDescription("Synthesized audio segments received from the agent."),
	); err != nil {
		return nil, err
	}
	if met.SegmentDecodeErrors, err = m.Int64Counter("vocalink.playback.decode_errors",
		metric.WithDescription("Segments skipped because they failed to decode."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackQueueDepth, err = m.Int64UpDownCounter("vocalink.playback.queue_depth",
		metric.WithDescription("Segments queued behind the active playback."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("vocalink.session.active",
		metric.WithDescription("Live call sessions."),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("vocalink.session.duration",
		metric.WithDescription("Call length from start to teardown."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Transcripts, err = m.Int64Counter("vocalink.session.transcripts",
		metric.WithDescription("Transcript messages surfaced by the agent."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the package-level [Metrics] instance backed by the
// global meter provider, creating it on first use. Instrument creation
// against the global provider cannot fail.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics, _ = NewMetrics(otel.GetMeterProvider())
	})
	return defaultMetrics
}

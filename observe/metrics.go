// Package observe provides the observability primitives shared by the capture
// pipeline and the conversation engine: OpenTelemetry metric instruments, the
// Prometheus exporter bridge and the slog logger setup.
//
// Components receive a [Metrics] explicitly. Tests should build one with
// [NewMetrics] over an SDK MeterProvider with a ManualReader; code that does
// not care about metrics can use [Discard].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope name used for all vadgate metrics.
const meterName = "github.com/d1nch8g/vadgate"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Capture ---

	// BlocksCaptured counts audio blocks delivered by the sample source.
	BlocksCaptured metric.Int64Counter

	// BlocksDropped counts blocks shed by the handoff because the detector fell
	// behind.
	BlocksDropped metric.Int64Counter

	// --- Detection ---

	// StateTransitions counts detector state changes. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	StateTransitions metric.Int64Counter

	// SegmentsEmitted counts segments handed to the sink.
	SegmentsEmitted metric.Int64Counter

	// SegmentsDiscarded counts closed utterances that were not emitted. Use with
	// attribute:
	//   attribute.String("reason", ...)
	SegmentsDiscarded metric.Int64Counter

	// SegmentsTruncated counts emitted segments whose start had already been
	// overwritten in the ring.
	SegmentsTruncated metric.Int64Counter

	// SegmentDuration tracks the duration of emitted segments.
	SegmentDuration metric.Float64Histogram

	// DeliveryFailures counts segments the sink rejected or failed to process.
	DeliveryFailures metric.Int64Counter

	// --- Conversation stages ---

	// STTDuration tracks speech-to-text latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks chat completion latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks synthesis latency.
	TTSDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries (in seconds) for provider calls.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// segmentBuckets are histogram boundaries (in seconds) for utterance lengths.
var segmentBuckets = []float64{
	1, 1.5, 2, 3, 5, 8, 13, 20,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.BlocksCaptured, err = m.Int64Counter("vadgate.blocks.captured",
		metric.WithDescription("Audio blocks delivered by the sample source."),
	); err != nil {
		return nil, err
	}
	if met.BlocksDropped, err = m.Int64Counter("vadgate.blocks.dropped",
		metric.WithDescription("Audio blocks dropped because the detector fell behind."),
	); err != nil {
		return nil, err
	}
	if met.StateTransitions, err = m.Int64Counter("vadgate.vad.transitions",
		metric.WithDescription("Detector state transitions by source and target state."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsEmitted, err = m.Int64Counter("vadgate.segments.emitted",
		metric.WithDescription("Utterance segments handed to the sink."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsDiscarded, err = m.Int64Counter("vadgate.segments.discarded",
		metric.WithDescription("Closed utterances that were not emitted, by reason."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsTruncated, err = m.Int64Counter("vadgate.segments.truncated",
		metric.WithDescription("Emitted segments that lost their start to buffer wrap-around."),
	); err != nil {
		return nil, err
	}
	if met.SegmentDuration, err = m.Float64Histogram("vadgate.segments.duration",
		metric.WithDescription("Duration of emitted utterance segments."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(segmentBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DeliveryFailures, err = m.Int64Counter("vadgate.delivery.failures",
		metric.WithDescription("Segments rejected or failed by the sink."),
	); err != nil {
		return nil, err
	}

	if met.STTDuration, err = m.Float64Histogram("vadgate.stt.duration",
		metric.WithDescription("Latency of speech-to-text recognition."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("vadgate.llm.duration",
		metric.WithDescription("Latency of chat completion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("vadgate.tts.duration",
		metric.WithDescription("Latency of speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once

	discardMetrics     *Metrics
	discardMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider].
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

// Discard returns a [Metrics] whose instruments record nothing.
func Discard() *Metrics {
	discardMetricsOnce.Do(func() {
		var err error
		discardMetrics, err = NewMetrics(noop.NewMeterProvider())
		if err != nil {
			panic("observe: failed to create noop metrics: " + err.Error())
		}
	})
	return discardMetrics
}

// RecordTransition increments the state transition counter.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.StateTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordDiscard increments the discarded segment counter.
func (m *Metrics) RecordDiscard(ctx context.Context, reason string) {
	m.SegmentsDiscarded.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

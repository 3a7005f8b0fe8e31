package observe_test

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/d1nch8g/vadgate/observe"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
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

func TestCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	counters := []struct {
		name string
		c    metric.Int64Counter
	}{
		{"vadgate.blocks.captured", m.BlocksCaptured},
		{"vadgate.blocks.dropped", m.BlocksDropped},
		{"vadgate.segments.emitted", m.SegmentsEmitted},
		{"vadgate.segments.truncated", m.SegmentsTruncated},
		{"vadgate.delivery.failures", m.DeliveryFailures},
	}
	for _, tc := range counters {
		tc.c.Add(ctx, 3)
	}

	rm := collect(t, reader)
	for _, tc := range counters {
		t.Run(tc.name, func(t *testing.T) {
			found := findMetric(rm, tc.name)
			if found == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			sum, ok := found.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("expected Sum[int64], got %T", found.Data)
			}
			if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 3 {
				t.Errorf("data points = %+v, want a single value of 3", sum.DataPoints)
			}
		})
	}
}

func TestHistograms(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"vadgate.segments.duration", m.SegmentDuration},
		{"vadgate.stt.duration", m.STTDuration},
		{"vadgate.llm.duration", m.LLMDuration},
		{"vadgate.tts.duration", m.TTSDuration},
	}
	for _, tc := range histograms {
		tc.h.Record(ctx, 0.25)
		tc.h.Record(ctx, 1.5)
	}

	rm := collect(t, reader)
	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			found := findMetric(rm, tc.name)
			if found == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := found.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("expected Histogram[float64], got %T", found.Data)
			}
			if len(hist.DataPoints) != 1 {
				t.Fatalf("expected 1 data point, got %d", len(hist.DataPoints))
			}
			if hist.DataPoints[0].Count != 2 {
				t.Errorf("count = %d, want 2", hist.DataPoints[0].Count)
			}
		})
	}
}

func TestRecordTransition(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTransition(ctx, "idle", "recording")
	m.RecordTransition(ctx, "idle", "recording")
	m.RecordTransition(ctx, "recording", "finalizing")

	found := findMetric(collect(t, reader), "vadgate.vad.transitions")
	if found == nil {
		t.Fatal("transition metric not found")
	}
	sum := found.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 2 {
		t.Fatalf("expected 2 attribute sets, got %d", len(sum.DataPoints))
	}

	want := attribute.NewSet(attribute.String("from", "idle"), attribute.String("to", "recording"))
	for _, dp := range sum.DataPoints {
		if dp.Attributes.Equals(&want) && dp.Value != 2 {
			t.Errorf("idle->recording = %d, want 2", dp.Value)
		}
	}
}

func TestRecordDiscard(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordDiscard(ctx, "too_short")
	m.RecordDiscard(ctx, "shutdown")

	found := findMetric(collect(t, reader), "vadgate.segments.discarded")
	if found == nil {
		t.Fatal("discard metric not found")
	}
	sum := found.Data.(metricdata.Sum[int64])
	reasons := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value("reason")
		reasons[v.AsString()] = dp.Value
	}
	if reasons["too_short"] != 1 || reasons["shutdown"] != 1 {
		t.Errorf("reasons = %v", reasons)
	}
}

func TestDiscard(t *testing.T) {
	m := observe.Discard()
	if m == nil || m != observe.Discard() {
		t.Fatal("Discard should return a shared instance")
	}
	m.RecordDiscard(context.Background(), "anything")
}

package vad

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Segment is one finalized utterance. Ownership passes to the Sink on
// delivery; the detector keeps no reference to Samples.
type Segment struct {
	ID uuid.UUID

	// Samples are mono PCM in [-1.0, 1.0] at SampleRate.
	Samples    []float32
	SampleRate int

	// Start is the position of the first sample relative to stream start.
	Start time.Duration

	// CapturedAt is the wall-clock time of the first sample.
	CapturedAt time.Time

	// Duration is the length of Samples: the utterance from its start up to
	// the moment it was finalized, trailing hangover silence included.
	Duration time.Duration

	// Span is the length of detected speech, from the first speech block to
	// the start of the closing silence.
	Span time.Duration

	// Truncated is set when the start of the utterance had already been
	// overwritten in the ring and only the retained window is delivered.
	Truncated bool
}

// Sink receives finalized segments. Delivery is not retried: a returned error
// is logged and the segment is dropped.
type Sink interface {
	Deliver(ctx context.Context, seg Segment) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, seg Segment) error

func (f SinkFunc) Deliver(ctx context.Context, seg Segment) error {
	return f(ctx, seg)
}

// LogSink logs every delivered segment and discards its samples.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Deliver(ctx context.Context, seg Segment) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "utterance",
		"id", seg.ID,
		"start", seg.Start,
		"duration", seg.Duration,
		"span", seg.Span,
		"truncated", seg.Truncated,
	)
	return nil
}

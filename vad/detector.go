package vad

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/d1nch8g/vadgate/audio"
	"github.com/d1nch8g/vadgate/observe"
)

// Config holds the detector parameters in wall-clock units.
type Config struct {
	SampleRate       int
	SilenceThreshold float64
	MinAudioLength   time.Duration
	SilenceHangover  time.Duration
}

// DefaultConfig returns the reference configuration: 16 kHz, RMS threshold
// 0.01, one second minimum utterance and a 500 ms hangover.
func DefaultConfig() Config {
	return Config{
		SampleRate:       16000,
		SilenceThreshold: 0.01,
		MinAudioLength:   time.Second,
		SilenceHangover:  500 * time.Millisecond,
	}
}

// Params converts the durations to sample counts.
func (c Config) Params() Params {
	return Params{
		Threshold: c.SilenceThreshold,
		Hangover:  c.samples(c.SilenceHangover),
		MinLength: c.samples(c.MinAudioLength),
	}
}

func (c Config) samples(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(int64(d) * int64(c.SampleRate) / int64(time.Second))
}

// Detector drives the state machine with blocks read from the handoff and
// finalizes utterances from the ring. It is not safe for concurrent use; the
// pipeline runs it on a single consumer goroutine.
type Detector struct {
	config  Config
	params  Params
	ring    *audio.Ring
	sink    Sink
	logger  *slog.Logger
	metrics *observe.Metrics

	machine Machine
	pos     uint64 // end of the last processed block
	origin  time.Time
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) { d.logger = l }
}

// WithMetrics sets the metric instruments. Default: observe.Discard().
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Detector) { d.metrics = m }
}

// WithOrigin sets the wall-clock time of sample 0. Default: construction time.
func WithOrigin(t time.Time) Option {
	return func(d *Detector) { d.origin = t }
}

func NewDetector(config Config, ring *audio.Ring, sink Sink, opts ...Option) *Detector {
	d := &Detector{
		config:  config,
		params:  config.Params(),
		ring:    ring,
		sink:    sink,
		logger:  slog.Default(),
		metrics: observe.Discard(),
		origin:  time.Now(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "vad")
	return d
}

// State returns the current state.
func (d *Detector) State() State {
	return d.machine.State
}

// Process consumes one block. Blocks must arrive in increasing offset order;
// gaps left by dropped blocks are allowed.
func (d *Detector) Process(ctx context.Context, b audio.Block) {
	ev := Event{
		Energy: audio.RMS(b.Samples),
		From:   b.Offset,
		To:     b.End(),
	}
	d.pos = ev.To

	prev := d.machine.State
	next, act := Transition(d.params, d.machine, ev)
	d.machine = next
	d.apply(ctx, prev, act)
}

// Flush closes an open utterance according to policy. Call it once the last
// block has been processed.
func (d *Detector) Flush(ctx context.Context, policy ShutdownPolicy) {
	prev := d.machine.State
	next, act := Flush(d.params, d.machine, d.pos, policy)
	d.machine = next
	if policy == ShutdownDiscard && act.Kind == ActionDiscard {
		d.recordTransition(ctx, prev)
		d.logger.InfoContext(ctx, "partial utterance discarded on shutdown", "span", d.duration(act.SpeechEnd-act.From))
		d.metrics.RecordDiscard(ctx, "shutdown")
		return
	}
	d.apply(ctx, prev, act)
}

func (d *Detector) apply(ctx context.Context, prev State, act Action) {
	d.recordTransition(ctx, prev)

	switch act.Kind {
	case ActionStart:
		d.logger.DebugContext(ctx, "speech started", "at", d.duration(act.From))
	case ActionResume:
		d.logger.DebugContext(ctx, "speech resumed within hangover", "at", d.duration(act.To))
	case ActionDiscard:
		d.logger.DebugContext(ctx, "utterance too short, discarded", "span", d.duration(act.SpeechEnd-act.From))
		d.metrics.RecordDiscard(ctx, "too_short")
	case ActionEmit:
		d.emit(ctx, act)
	}
}

func (d *Detector) recordTransition(ctx context.Context, prev State) {
	if prev != d.machine.State {
		d.metrics.RecordTransition(ctx, prev.String(), d.machine.State.String())
	}
}

// emit snapshots [act.From, act.To) from the ring and hands it to the sink. A
// range that is partly overwritten is clamped to the retained window and
// marked truncated. Segments shorter than the minimum length after clamping
// are discarded.
func (d *Detector) emit(ctx context.Context, act Action) {
	seg, err := d.segment(act.From, act.To, act.SpeechEnd)
	if err != nil {
		d.logger.WarnContext(ctx, "utterance no longer in buffer", "err", err)
		d.metrics.RecordDiscard(ctx, "unavailable")
		return
	}
	if uint64(len(seg.Samples)) < d.params.MinLength {
		d.logger.DebugContext(ctx, "retained part of utterance too short, discarded",
			"span", seg.Span, "kept", seg.Duration)
		d.metrics.RecordDiscard(ctx, "too_short")
		return
	}

	d.metrics.SegmentsEmitted.Add(ctx, 1)
	d.metrics.SegmentDuration.Record(ctx, seg.Duration.Seconds())
	if seg.Truncated {
		d.metrics.SegmentsTruncated.Add(ctx, 1)
		d.logger.InfoContext(ctx, "utterance exceeded buffer, truncated",
			"span", seg.Span, "kept", seg.Duration)
	}

	if err := d.sink.Deliver(ctx, seg); err != nil {
		d.metrics.DeliveryFailures.Add(ctx, 1)
		d.logger.WarnContext(ctx, "segment delivery failed, dropped", "id", seg.ID, "err", err)
		return
	}
	d.logger.DebugContext(ctx, "segment delivered", "id", seg.ID, "duration", seg.Duration)
}

func (d *Detector) segment(from, to, speechEnd uint64) (Segment, error) {
	span := d.duration(speechEnd - from)

	samples, err := d.ring.Snapshot(from, to)
	truncated := false
	if errors.Is(err, audio.ErrRangeUnavailable) {
		samples, from, err = d.ring.SnapshotRetained(from, to)
		truncated = true
	}
	if err != nil {
		return Segment{}, err
	}
	if len(samples) == 0 {
		return Segment{}, fmt.Errorf("%w: nothing retained in [%d, %d)", audio.ErrRangeUnavailable, from, to)
	}

	start := d.duration(from)
	return Segment{
		ID:         uuid.New(),
		Samples:    samples,
		SampleRate: d.config.SampleRate,
		Start:      start,
		CapturedAt: d.origin.Add(start),
		Duration:   d.duration(uint64(len(samples))),
		Span:       span,
		Truncated:  truncated,
	}, nil
}

func (d *Detector) duration(samples uint64) time.Duration {
	if d.config.SampleRate <= 0 {
		return 0
	}
	rate := uint64(d.config.SampleRate)
	return time.Duration(samples/rate)*time.Second + time.Duration(samples%rate)*time.Second/time.Duration(rate)
}

// Package pipeline runs the capture side of vadgate: a producer goroutine that
// reads the sample source into the ring and the handoff, and a consumer
// goroutine that feeds the voice activity detector and dispatches finalized
// segments to the sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/d1nch8g/vadgate/audio"
	"github.com/d1nch8g/vadgate/observe"
	"github.com/d1nch8g/vadgate/vad"
)

// Config holds the runtime parameters of the pipeline.
type Config struct {
	// BufferSize is how much recent audio the ring retains.
	BufferSize time.Duration

	// QueueSize is the capacity of the producer/consumer handoff in blocks.
	QueueSize int

	// Shutdown decides what happens to an open utterance on shutdown.
	Shutdown vad.ShutdownPolicy

	// DrainTimeout bounds how long shutdown waits for an in-flight delivery.
	DrainTimeout time.Duration

	// VAD configures the detector. SampleRate is taken from the source.
	VAD vad.Config
}

func DefaultConfig() Config {
	return Config{
		BufferSize:   3 * time.Second,
		QueueSize:    32,
		Shutdown:     vad.ShutdownDiscard,
		DrainTimeout: 5 * time.Second,
		VAD:          vad.DefaultConfig(),
	}
}

// Pipeline owns the capture runtime for one sample source.
type Pipeline struct {
	config  Config
	source  audio.SampleSource
	sink    vad.Sink
	logger  *slog.Logger
	metrics *observe.Metrics
}

func New(config Config, source audio.SampleSource, sink vad.Sink, logger *slog.Logger, metrics *observe.Metrics) *Pipeline {
	if config.QueueSize < 1 {
		config.QueueSize = DefaultConfig().QueueSize
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = DefaultConfig().DrainTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observe.Discard()
	}
	return &Pipeline{
		config:  config,
		source:  source,
		sink:    sink,
		logger:  logger,
		metrics: metrics,
	}
}

// Run captures and segments audio until ctx is cancelled or the device fails.
//
// On cancellation capture stops first, blocks already queued are still run
// through the detector, an open utterance is handled by the shutdown policy
// and the in-flight delivery gets up to DrainTimeout to finish. Device
// failures are returned as *audio.DeviceError; a cancelled run returns nil.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.source.Initialize(); err != nil {
		return deviceError("initialize", err)
	}
	defer p.source.Terminate()

	if err := p.source.Open(); err != nil {
		return deviceError("open", err)
	}
	defer func() {
		if err := p.source.Close(); err != nil {
			p.logger.Warn("close sample source", "err", err)
		}
	}()

	rate := p.source.SampleRate()
	capacity := int(int64(rate) * int64(p.config.BufferSize) / int64(time.Second))
	if capacity <= 0 {
		return fmt.Errorf("buffer of %s at %d Hz holds no samples", p.config.BufferSize, rate)
	}

	ring := audio.NewRing(capacity)
	defer ring.Release()
	handoff := audio.NewHandoff(p.config.QueueSize)

	vadConfig := p.config.VAD
	vadConfig.SampleRate = rate

	dispatcher := NewDispatcher(ctx, p.sink, p.logger, p.metrics)
	detector := vad.NewDetector(vadConfig, ring, dispatcher,
		vad.WithLogger(p.logger),
		vad.WithMetrics(p.metrics),
		vad.WithOrigin(time.Now()),
	)

	p.logger.Info("pipeline started",
		"sample_rate", rate,
		"buffer", p.config.BufferSize,
		"buffer_samples", ring.Capacity(),
		"threshold", vadConfig.SilenceThreshold,
		"hangover", vadConfig.SilenceHangover,
		"min_length", vadConfig.MinAudioLength,
	)

	g, gctx := errgroup.WithContext(ctx)

	// Producer: the capture loop. Nothing in onBlock waits on the consumer.
	g.Go(func() error {
		defer handoff.Close()
		err := p.source.StartCapture(gctx, func(samples []float32) {
			offset := ring.Write(samples)
			p.metrics.BlocksCaptured.Add(gctx, 1)
			if n := handoff.Offer(audio.Block{Offset: offset, Samples: samples}); n > 0 {
				p.metrics.BlocksDropped.Add(gctx, int64(n))
				p.logger.Debug("detector behind, dropped oldest blocks", "dropped", n, "total", handoff.Dropped())
			}
		})
		if err != nil && gctx.Err() != nil && errors.Is(err, gctx.Err()) {
			return nil
		}
		if err != nil {
			return deviceError("capture", err)
		}
		return nil
	})

	// Consumer: detection runs until the handoff is closed and drained.
	g.Go(func() error {
		dctx := context.WithoutCancel(gctx)
		for b := range handoff.C() {
			detector.Process(dctx, b)
		}
		detector.Flush(dctx, p.config.Shutdown)
		return nil
	})

	err := g.Wait()

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.config.DrainTimeout)
	defer cancel()
	if derr := dispatcher.Close(drainCtx); derr != nil {
		p.logger.Warn("in-flight delivery cancelled on shutdown", "err", derr)
	}

	if handoff.Dropped() > 0 {
		p.logger.Info("blocks dropped during run", "total", handoff.Dropped())
	}
	p.logger.Info("pipeline stopped")
	return err
}

func deviceError(op string, err error) error {
	var de *audio.DeviceError
	if errors.As(err, &de) {
		return err
	}
	return &audio.DeviceError{Op: op, Err: err}
}

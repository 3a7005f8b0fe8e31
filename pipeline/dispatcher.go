package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/d1nch8g/vadgate/observe"
	"github.com/d1nch8g/vadgate/vad"
)

// ErrSinkBusy is returned by Dispatcher.Deliver while the sink is still
// processing the previous segment.
var ErrSinkBusy = errors.New("sink busy")

// Dispatcher runs a sink on its own goroutine so that slow downstream work
// never stalls detection. It holds no queue: a segment offered while the sink
// is busy is rejected.
type Dispatcher struct {
	sink    vad.Sink
	logger  *slog.Logger
	metrics *observe.Metrics

	busy   atomic.Bool
	ch     chan vad.Segment
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

var _ vad.Sink = (*Dispatcher)(nil)

// NewDispatcher starts the worker. ctx is passed to the sink and its
// cancellation is not propagated, so shutdown can let a delivery finish; see
// Close.
func NewDispatcher(ctx context.Context, sink vad.Sink, logger *slog.Logger, metrics *observe.Metrics) *Dispatcher {
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d := &Dispatcher{
		sink:    sink,
		logger:  logger.With("component", "dispatcher"),
		metrics: metrics,
		ch:      make(chan vad.Segment, 1),
		ctx:     wctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Deliver hands seg to the worker without waiting. It must not be called after
// Close.
func (d *Dispatcher) Deliver(_ context.Context, seg vad.Segment) error {
	if !d.busy.CompareAndSwap(false, true) {
		return ErrSinkBusy
	}
	d.ch <- seg
	return nil
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for seg := range d.ch {
		if err := d.sink.Deliver(d.ctx, seg); err != nil {
			d.metrics.DeliveryFailures.Add(d.ctx, 1)
			d.logger.Warn("sink failed, segment dropped", "id", seg.ID, "err", err)
		}
		d.busy.Store(false)
	}
}

// Close stops accepting segments and waits for the in-flight delivery. If ctx
// expires first, the delivery's context is cancelled and Close returns
// ctx.Err() once the worker has exited.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.once.Do(func() { close(d.ch) })
	defer d.cancel()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		d.cancel()
		<-d.done
		return ctx.Err()
	}
}

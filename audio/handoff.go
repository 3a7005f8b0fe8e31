package audio

import (
	"sync"
	"sync/atomic"
)

// Handoff is a bounded queue between the capture path and the detector. Offer
// never blocks: when the queue is full the oldest pending block is dropped to
// make room for the new one.
//
// Offer and Close must be called from a single producer goroutine.
type Handoff struct {
	ch      chan Block
	dropped atomic.Uint64
	once    sync.Once
}

func NewHandoff(size int) *Handoff {
	if size < 1 {
		size = 1
	}
	return &Handoff{ch: make(chan Block, size)}
}

// Offer enqueues b and returns how many pending blocks were dropped for it.
func (h *Handoff) Offer(b Block) int {
	dropped := 0
	for {
		select {
		case h.ch <- b:
			if dropped > 0 {
				h.dropped.Add(uint64(dropped))
			}
			return dropped
		default:
		}

		// Full. The consumer may have taken a block in the meantime, in which
		// case there is nothing to drop and the next send succeeds.
		select {
		case <-h.ch:
			dropped++
		default:
		}
	}
}

// C returns the channel the consumer reads from. It is closed by Close.
func (h *Handoff) C() <-chan Block {
	return h.ch
}

// Len returns the number of pending blocks.
func (h *Handoff) Len() int {
	return len(h.ch)
}

// Dropped returns the total number of blocks dropped so far.
func (h *Handoff) Dropped() uint64 {
	return h.dropped.Load()
}

// Close signals that no more blocks will be offered. Pending blocks remain
// readable from C.
func (h *Handoff) Close() {
	h.once.Do(func() { close(h.ch) })
}

package audio

import (
	"errors"
	"fmt"
	"sync"
)

// ErrRangeUnavailable is returned by Ring.Snapshot when part of the requested
// range has already been overwritten or has not been written yet.
var ErrRangeUnavailable = errors.New("audio: range unavailable")

// Ring is a fixed-capacity circular buffer of the most recent samples.
//
// Positions are absolute sample indices counted from the first write, so a
// range stays addressable for as long as it is retained. Once full, each
// write overwrites the oldest samples. One goroutine writes while others take
// snapshots; a snapshot copies under the read lock and never sees a partial
// write.
type Ring struct {
	mu      sync.RWMutex
	data    []float32
	written uint64 // total samples ever written
}

// NewRing allocates a ring holding capacity samples.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		panic(fmt.Sprintf("audio: ring capacity must be positive, got %d", capacity))
	}
	return &Ring{data: make([]float32, capacity)}
}

// Capacity returns the number of samples the ring retains.
func (r *Ring) Capacity() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// Write appends samples and returns the absolute index of the first one.
// Writes longer than the capacity keep only the last Capacity samples.
func (r *Ring) Write(samples []float32) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	offset := r.written
	capacity := uint64(len(r.data))
	if capacity == 0 {
		r.written += uint64(len(samples))
		return offset
	}

	src := samples
	start := offset
	if uint64(len(src)) > capacity {
		skip := uint64(len(src)) - capacity
		src = src[skip:]
		start += skip
	}

	pos := start % capacity
	n := copy(r.data[pos:], src)
	copy(r.data, src[n:])

	r.written += uint64(len(samples))
	return offset
}

// Window returns the retained range [from, to) in absolute indices.
func (r *Ring) Window() (from, to uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.window()
}

func (r *Ring) window() (from, to uint64) {
	retained := min(r.written, uint64(len(r.data)))
	return r.written - retained, r.written
}

// Snapshot returns a copy of the samples in [from, to). It fails with
// ErrRangeUnavailable unless the whole range is currently retained.
func (r *Ring) Snapshot(from, to uint64) ([]float32, error) {
	if to < from {
		return nil, fmt.Errorf("audio: invalid range [%d, %d)", from, to)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	lo, hi := r.window()
	if from < lo || to > hi {
		return nil, fmt.Errorf("%w: [%d, %d) outside retained [%d, %d)", ErrRangeUnavailable, from, to, lo, hi)
	}

	out := make([]float32, to-from)
	if len(out) == 0 {
		return out, nil
	}

	capacity := uint64(len(r.data))
	pos := from % capacity
	n := copy(out, r.data[pos:])
	copy(out[n:], r.data)
	return out, nil
}

// Release drops the backing storage. The ring retains nothing afterwards and
// further writes only advance the position.
func (r *Ring) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = nil
}

// SnapshotRetained is Snapshot clamped to the retained window. It returns the
// copied samples and the absolute index of the first one. The result is empty
// when nothing of [from, to) is retained.
func (r *Ring) SnapshotRetained(from, to uint64) ([]float32, uint64, error) {
	if to < from {
		return nil, from, fmt.Errorf("audio: invalid range [%d, %d)", from, to)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	lo, hi := r.window()
	from = max(from, lo)
	to = min(to, hi)
	if from >= to {
		return []float32{}, from, nil
	}

	out := make([]float32, to-from)
	capacity := uint64(len(r.data))
	pos := from % capacity
	n := copy(out, r.data[pos:])
	copy(out[n:], r.data)
	return out, from, nil
}

package audio

import (
	"context"
	"fmt"
)

// Block is one run of consecutive mono samples delivered by a SampleSource.
type Block struct {
	// Offset is the absolute index of the first sample since the stream started.
	// It is assigned when the block is written to the Ring.
	Offset uint64

	// Samples are normalized to [-1.0, 1.0]. The slice is owned by the block.
	Samples []float32
}

// End returns the absolute index one past the last sample of the block.
func (b Block) End() uint64 {
	return b.Offset + uint64(len(b.Samples))
}

// SampleSource defines the interface for audio capture implementations
type SampleSource interface {
	// Initialize initializes the audio system
	Initialize() error

	// Terminate terminates the audio system
	Terminate()

	// Open opens the capture stream with configured parameters
	Open() error

	// Close closes the capture stream
	Close() error

	// SampleRate reports the rate of the samples passed to onBlock.
	SampleRate() int

	// StartCapture captures audio and calls onBlock once per device buffer with
	// mono samples at SampleRate. onBlock runs on the capture path and must not
	// block. The method blocks until the context is cancelled or the device fails.
	StartCapture(ctx context.Context, onBlock func(samples []float32)) error
}

// DeviceError reports a fatal failure of the audio device. Hardware
// reinitialization is left to the caller.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device: %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

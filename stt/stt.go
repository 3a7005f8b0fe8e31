package stt

import "context"

// Recognizer defines the interface for speech-to-text implementations
type Recognizer interface {
	// Recognize transcribes one complete utterance.
	// pcm: 16-bit little-endian mono PCM
	// sampleRate: audio sample rate in Hz
	Recognize(ctx context.Context, pcm []byte, sampleRate int64) (string, error)

	// Close closes the client and cleans up resources
	Close() error
}

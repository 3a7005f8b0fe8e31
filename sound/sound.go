package sound

import "context"

// Player defines the interface for audio playback
type Player interface {
	// Initialize initializes the audio playback system
	Initialize() error

	// Terminate terminates the audio playback system
	Terminate()

	// PlayMP3 decodes and plays one MP3 clip, blocking until it has finished or
	// ctx is cancelled.
	PlayMP3(ctx context.Context, data []byte) error
}

package tts

import "context"

// Synthesizer defines the interface for text-to-speech synthesis
type Synthesizer interface {
	// Synthesize returns the encoded audio for text in options.Format.
	Synthesize(ctx context.Context, text string, options SynthesisOptions) ([]byte, error)
	Close() error
}

// Format is the container of synthesized audio.
type Format int

const (
	FormatMP3 Format = iota
	FormatWAV
)

// SynthesisOptions represents the configuration for speech synthesis
type SynthesisOptions struct {
	Voice  string
	Speed  float64
	Volume float64
	Model  string
	Format Format
}

package sound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"
)

// PlayerConfig configures the output stream used for playback.
type PlayerConfig struct {
	FramesPerBuffer int // frames written per stream write
}

type PortaudioPlayer struct {
	config PlayerConfig
	logger *slog.Logger
}

var _ Player = (*PortaudioPlayer)(nil)

func NewPortaudioPlayer(config PlayerConfig, logger *slog.Logger) *PortaudioPlayer {
	if config.FramesPerBuffer <= 0 {
		config.FramesPerBuffer = GetDefaultConfig().FramesPerBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PortaudioPlayer{
		config: config,
		logger: logger.With("component", "player"),
	}
}

func GetDefaultConfig() PlayerConfig {
	return PlayerConfig{
		FramesPerBuffer: 1024,
	}
}

func (p *PortaudioPlayer) Initialize() error {
	return portaudio.Initialize()
}

func (p *PortaudioPlayer) Terminate() {
	if err := portaudio.Terminate(); err != nil {
		p.logger.Warn("terminate portaudio", "err", err)
	}
}

// PlayMP3 opens an output stream matching the clip format and writes the
// clip buffer by buffer. The last buffer is zero padded.
func (p *PortaudioPlayer) PlayMP3(ctx context.Context, data []byte) error {
	clip, err := DecodeMP3(data)
	if err != nil {
		return err
	}

	buffer := make([]int16, p.config.FramesPerBuffer*clip.Channels)
	stream, err := portaudio.OpenDefaultStream(0, clip.Channels, float64(clip.SampleRate), p.config.FramesPerBuffer, buffer)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	defer stream.Stop()

	for off := 0; off < len(clip.Samples); off += len(buffer) {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := copy(buffer, clip.Samples[off:])
		clear(buffer[n:])

		if err := stream.Write(); err != nil {
			if errors.Is(err, portaudio.OutputUnderflowed) {
				p.logger.Debug("output underflowed")
				continue
			}
			return fmt.Errorf("failed to write audio: %w", err)
		}
	}

	return nil
}

package audio

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gordonklaus/portaudio"
)

// Config is the capture format requested from the input device. When the
// device rejects it, the source falls back to the device defaults and converts
// to SampleRate mono.
type Config struct {
	SampleRate      float64 // target rate of delivered blocks, in Hz
	FramesPerBuffer int     // frames per device read
	InputChannels   int
}

// PortAudioSource captures the default input device through PortAudio's
// blocking read API.
type PortAudioSource struct {
	stream *portaudio.Stream
	buffer []float32
	config Config
	logger *slog.Logger

	// Format the device was actually opened with. It differs from config when
	// the device rejects the requested format.
	deviceRate     float64
	deviceChannels int
}

var _ SampleSource = (*PortAudioSource)(nil)

// NewPortAudioSource creates a source; zero fields of config take their
// values from GetDefaultConfig.
func NewPortAudioSource(config Config, logger *slog.Logger) *PortAudioSource {
	defaults := GetDefaultConfig()
	if config.SampleRate <= 0 {
		config.SampleRate = defaults.SampleRate
	}
	if config.FramesPerBuffer <= 0 {
		config.FramesPerBuffer = defaults.FramesPerBuffer
	}
	if config.InputChannels <= 0 {
		config.InputChannels = defaults.InputChannels
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PortAudioSource{
		config: config,
		logger: logger.With("component", "portaudio"),
	}
}

func (a *PortAudioSource) Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return &DeviceError{Op: "initialize", Err: err}
	}
	return nil
}

func (a *PortAudioSource) Terminate() {
	if err := portaudio.Terminate(); err != nil {
		a.logger.Warn("terminate portaudio", "err", err)
	}
}

// Open opens the default input device at the configured format and falls back
// to the device's default sample rate and channel count if that fails.
func (a *PortAudioSource) Open() error {
	a.deviceRate = a.config.SampleRate
	a.deviceChannels = a.config.InputChannels
	a.buffer = make([]float32, a.config.FramesPerBuffer*a.deviceChannels)

	stream, err := portaudio.OpenDefaultStream(
		a.deviceChannels,
		0,
		a.deviceRate,
		a.config.FramesPerBuffer,
		a.buffer,
	)
	if err == nil {
		a.stream = stream
		a.logger.Info("input stream opened", "sample_rate", a.deviceRate, "channels", a.deviceChannels)
		return nil
	}
	a.logger.Warn("requested input format rejected, using device defaults", "err", err)

	dev, derr := portaudio.DefaultInputDevice()
	if derr != nil {
		return &DeviceError{Op: "open", Err: errors.Join(err, derr)}
	}

	a.deviceRate = dev.DefaultSampleRate
	a.deviceChannels = min(dev.MaxInputChannels, 2)
	if a.deviceChannels < 1 {
		return &DeviceError{Op: "open", Err: errors.New("default device has no input channels")}
	}

	// Keep the block duration close to the configured one at the device rate.
	frames := int(float64(a.config.FramesPerBuffer) * a.deviceRate / a.config.SampleRate)
	a.buffer = make([]float32, frames*a.deviceChannels)

	stream, err = portaudio.OpenDefaultStream(a.deviceChannels, 0, a.deviceRate, frames, a.buffer)
	if err != nil {
		return &DeviceError{Op: "open", Err: err}
	}
	a.stream = stream
	a.logger.Info("input stream opened",
		"device", dev.Name,
		"sample_rate", a.deviceRate,
		"channels", a.deviceChannels,
		"resample_to", a.config.SampleRate,
	)
	return nil
}

func (a *PortAudioSource) Close() error {
	if a.stream != nil {
		err := a.stream.Close()
		a.stream = nil
		return err
	}
	return nil
}

func (a *PortAudioSource) SampleRate() int {
	return int(a.config.SampleRate)
}

func (a *PortAudioSource) StartCapture(ctx context.Context, onBlock func(samples []float32)) error {
	if a.stream == nil {
		return &DeviceError{Op: "start", Err: errors.New("stream not opened")}
	}

	if err := a.stream.Start(); err != nil {
		return &DeviceError{Op: "start", Err: err}
	}
	defer func() {
		if err := a.stream.Stop(); err != nil {
			a.logger.Warn("stop input stream", "err", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := a.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				// The buffer still holds valid samples; earlier ones were lost.
				a.logger.Debug("input overflowed")
			} else {
				return &DeviceError{Op: "read", Err: err}
			}
		}

		onBlock(a.convert())
	}
}

// convert returns a fresh mono copy of the device buffer at the target rate.
func (a *PortAudioSource) convert() []float32 {
	mono := Downmix(a.buffer, a.deviceChannels)
	if a.deviceRate != a.config.SampleRate {
		return Resample(mono, int(a.deviceRate), int(a.config.SampleRate))
	}
	return mono
}

func GetDefaultConfig() Config {
	return Config{
		SampleRate:      16000,
		FramesPerBuffer: 512,
		InputChannels:   1,
	}
}

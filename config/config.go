package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/d1nch8g/vadgate/observe"
	"github.com/d1nch8g/vadgate/vad"
)

// Config is the startup configuration. Nothing in it changes at runtime.
type Config struct {
	Audio    AudioConfig    `yaml:"audio"`
	VAD      VADConfig      `yaml:"vad"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Server   ServerConfig   `yaml:"server"`

	// Yandex credentials come from the environment only.
	Yandex YandexConfig `yaml:"-"`
}

type AudioConfig struct {
	SampleRate      int `yaml:"sample_rate"`
	Channels        int `yaml:"channels"`
	FramesPerBuffer int `yaml:"frames_per_buffer"`
}

type VADConfig struct {
	BufferSeconds    float64       `yaml:"buffer_seconds"`
	SilenceThreshold float64       `yaml:"silence_threshold"`
	MinAudioLength   time.Duration `yaml:"min_audio_length"`
	SilenceHangover  time.Duration `yaml:"silence_hangover"`
	ShutdownPolicy   string        `yaml:"shutdown_policy"`
}

type PipelineConfig struct {
	QueueSize    int           `yaml:"queue_size"`
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

type ServerConfig struct {
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`
}

type YandexConfig struct {
	IamToken string
	ApiKey   string
	FolderID string
	Language string
	Voice    string
}

// Enabled reports whether credentials for the conversation engine are set.
func (y YandexConfig) Enabled() bool {
	return y.IamToken != "" && y.FolderID != ""
}

// Default returns the reference configuration.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:      16000,
			Channels:        1,
			FramesPerBuffer: 512,
		},
		VAD: VADConfig{
			BufferSeconds:    3,
			SilenceThreshold: 0.01,
			MinAudioLength:   time.Second,
			SilenceHangover:  500 * time.Millisecond,
			ShutdownPolicy:   "discard",
		},
		Pipeline: PipelineConfig{
			QueueSize:    32,
			DrainTimeout: 5 * time.Second,
		},
		Server: ServerConfig{
			LogLevel: "info",
		},
		Yandex: YandexConfig{
			Language: "en-US",
			Voice:    "john",
		},
	}
}

// LoadConfig reads secrets from .env (if present) and the environment, then
// overlays the YAML file at path on the defaults. An empty path skips the
// file.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()

		if err := decode(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	cfg.Yandex.IamToken = os.Getenv("IAM_TOKEN")
	cfg.Yandex.ApiKey = os.Getenv("API_KEY")
	cfg.Yandex.FolderID = os.Getenv("FOLDER_ID")
	if v := os.Getenv("LANGUAGE"); v != "" {
		cfg.Yandex.Language = v
	}
	if v := os.Getenv("VOICE"); v != "" {
		cfg.Yandex.Voice = v
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults and validates the
// result. Environment variables are not consulted.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decode(r, cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// Validate checks that cfg is coherent and returns every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels != 1 {
		errs = append(errs, fmt.Errorf("audio.channels must be 1 (mono), got %d", cfg.Audio.Channels))
	}
	if cfg.Audio.FramesPerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer must be positive, got %d", cfg.Audio.FramesPerBuffer))
	}

	if cfg.VAD.BufferSeconds <= 0 {
		errs = append(errs, fmt.Errorf("vad.buffer_seconds must be positive, got %g", cfg.VAD.BufferSeconds))
	}
	if cfg.VAD.SilenceThreshold < 0 || cfg.VAD.SilenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("vad.silence_threshold must be within [0, 1], got %g", cfg.VAD.SilenceThreshold))
	}
	if cfg.VAD.MinAudioLength < 0 {
		errs = append(errs, fmt.Errorf("vad.min_audio_length must not be negative, got %s", cfg.VAD.MinAudioLength))
	}
	if cfg.VAD.SilenceHangover <= 0 {
		errs = append(errs, fmt.Errorf("vad.silence_hangover must be positive, got %s", cfg.VAD.SilenceHangover))
	}
	if cfg.VAD.BufferSeconds > 0 && cfg.BufferSize() < cfg.VAD.MinAudioLength {
		errs = append(errs, fmt.Errorf("vad.buffer_seconds (%s) is shorter than vad.min_audio_length (%s)", cfg.BufferSize(), cfg.VAD.MinAudioLength))
	}
	if _, err := vad.ParseShutdownPolicy(cfg.VAD.ShutdownPolicy); err != nil {
		errs = append(errs, fmt.Errorf("vad.shutdown_policy: %w", err))
	}

	if cfg.Pipeline.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("pipeline.queue_size must be at least 1, got %d", cfg.Pipeline.QueueSize))
	}
	if cfg.Pipeline.DrainTimeout < 0 {
		errs = append(errs, fmt.Errorf("pipeline.drain_timeout must not be negative, got %s", cfg.Pipeline.DrainTimeout))
	}

	if _, err := observe.ParseLevel(cfg.Server.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("server.log_level: %w", err))
	}

	return errors.Join(errs...)
}

// BufferSize returns the ring buffer length as a duration.
func (c *Config) BufferSize() time.Duration {
	return time.Duration(c.VAD.BufferSeconds * float64(time.Second))
}

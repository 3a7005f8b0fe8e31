package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/d1nch8g/vadgate/config"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := config.Default()
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate(Default()): %v", err)
	}
	if cfg.BufferSize() != 3*time.Second {
		t.Errorf("BufferSize = %v, want 3s", cfg.BufferSize())
	}
}

func TestLoadFromReader(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(`
vad:
  buffer_seconds: 5.5
  silence_threshold: 0.02
  min_audio_length: 750ms
  silence_hangover: 300ms
  shutdown_policy: finalize
pipeline:
  queue_size: 8
server:
  log_level: debug
  metrics_addr: ":9090"
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.BufferSize() != 5500*time.Millisecond {
		t.Errorf("BufferSize = %v, want 5.5s", cfg.BufferSize())
	}
	if cfg.VAD.SilenceThreshold != 0.02 {
		t.Errorf("SilenceThreshold = %v", cfg.VAD.SilenceThreshold)
	}
	if cfg.VAD.MinAudioLength != 750*time.Millisecond {
		t.Errorf("MinAudioLength = %v", cfg.VAD.MinAudioLength)
	}
	if cfg.VAD.SilenceHangover != 300*time.Millisecond {
		t.Errorf("SilenceHangover = %v", cfg.VAD.SilenceHangover)
	}
	if cfg.VAD.ShutdownPolicy != "finalize" {
		t.Errorf("ShutdownPolicy = %q", cfg.VAD.ShutdownPolicy)
	}
	if cfg.Pipeline.QueueSize != 8 {
		t.Errorf("QueueSize = %d", cfg.Pipeline.QueueSize)
	}
	// Unset keys keep their defaults.
	if cfg.Audio.SampleRate != 16000 || cfg.Pipeline.DrainTimeout != 5*time.Second {
		t.Errorf("defaults lost: %+v %+v", cfg.Audio, cfg.Pipeline)
	}
	if cfg.Server.MetricsAddr != ":9090" {
		t.Errorf("MetricsAddr = %q", cfg.Server.MetricsAddr)
	}
}

func TestLoadFromReader_Empty(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.VAD.SilenceHangover != 500*time.Millisecond {
		t.Errorf("SilenceHangover = %v, want default", cfg.VAD.SilenceHangover)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("vad:\n  hangover: 1s\n"))
	if err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := config.Default()
	cfg.Audio.Channels = 2
	cfg.VAD.SilenceThreshold = 1.5
	cfg.VAD.SilenceHangover = 0
	cfg.VAD.BufferSeconds = 0.5
	cfg.VAD.ShutdownPolicy = "drain"
	cfg.Pipeline.QueueSize = 0
	cfg.Server.LogLevel = "loud"

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("Validate accepted an invalid config")
	}

	for _, want := range []string{
		"audio.channels",
		"vad.silence_threshold",
		"vad.silence_hangover",
		"shorter than vad.min_audio_length",
		"vad.shutdown_policy",
		"pipeline.queue_size",
		"server.log_level",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %q:\n%v", want, err)
		}
	}
}

func TestLoadConfig_EnvironmentAndFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "vadgate.yaml")
	if err := os.WriteFile(path, []byte("vad:\n  silence_threshold: 0.05\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("IAM_TOKEN", "iam")
	t.Setenv("FOLDER_ID", "folder")
	t.Setenv("API_KEY", "")
	t.Setenv("LANGUAGE", "ru-RU")
	t.Setenv("VOICE", "")

	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.VAD.SilenceThreshold != 0.05 {
		t.Errorf("SilenceThreshold = %v", cfg.VAD.SilenceThreshold)
	}
	if !cfg.Yandex.Enabled() {
		t.Error("Yandex credentials not picked up")
	}
	if cfg.Yandex.Language != "ru-RU" {
		t.Errorf("Language = %q", cfg.Yandex.Language)
	}
	if cfg.Yandex.Voice != "john" {
		t.Errorf("Voice = %q, want default", cfg.Yandex.Voice)
	}
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("FOLDER_ID=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	// godotenv never overrides variables that are already set.
	t.Setenv("IAM_TOKEN", "iam")
	t.Setenv("FOLDER_ID", "")
	os.Unsetenv("FOLDER_ID")

	cfg, err := config.LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Yandex.FolderID != "from-dotenv" {
		t.Errorf("FolderID = %q, want value from .env", cfg.Yandex.FolderID)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	if _, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("missing config file accepted")
	}
}

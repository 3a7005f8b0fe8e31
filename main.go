package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/d1nch8g/vadgate/audio"
	"github.com/d1nch8g/vadgate/config"
	"github.com/d1nch8g/vadgate/engine"
	"github.com/d1nch8g/vadgate/gpt"
	"github.com/d1nch8g/vadgate/observe"
	"github.com/d1nch8g/vadgate/pipeline"
	"github.com/d1nch8g/vadgate/sound"
	"github.com/d1nch8g/vadgate/stt"
	"github.com/d1nch8g/vadgate/tts"
	"github.com/d1nch8g/vadgate/vad"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", os.Getenv("VADGATE_CONFIG"), "path to the YAML tuning file (optional)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vadgate: %v\n", err)
		return 1
	}

	level, _ := observe.ParseLevel(cfg.Server.LogLevel)
	logger := observe.NewLogger(os.Stderr, level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := shutdownMetrics(sctx); err != nil {
			slog.Warn("metrics shutdown", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	if cfg.Server.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: observe.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server", "err", err)
			}
		}()
		defer srv.Close()
		slog.Info("serving metrics", "addr", cfg.Server.MetricsAddr)
	}

	sink, closeSink, err := buildSink(cfg, logger, metrics)
	if err != nil {
		slog.Error("failed to build utterance sink", "err", err)
		return 1
	}
	defer closeSink()

	policy, _ := vad.ParseShutdownPolicy(cfg.VAD.ShutdownPolicy)
	pipelineConfig := pipeline.Config{
		BufferSize:   cfg.BufferSize(),
		QueueSize:    cfg.Pipeline.QueueSize,
		Shutdown:     policy,
		DrainTimeout: cfg.Pipeline.DrainTimeout,
		VAD: vad.Config{
			SilenceThreshold: cfg.VAD.SilenceThreshold,
			MinAudioLength:   cfg.VAD.MinAudioLength,
			SilenceHangover:  cfg.VAD.SilenceHangover,
		},
	}

	source := audio.NewPortAudioSource(audio.Config{
		SampleRate:      float64(cfg.Audio.SampleRate),
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		InputChannels:   cfg.Audio.Channels,
	}, logger)

	slog.Info("listening; press Ctrl-C to stop", "language", cfg.Yandex.Language)

	if err := pipeline.New(pipelineConfig, source, sink, logger, metrics).Run(ctx); err != nil {
		var de *audio.DeviceError
		if errors.As(err, &de) {
			slog.Error("audio device failed", "op", de.Op, "err", de.Err)
		} else {
			slog.Error("pipeline failed", "err", err)
		}
		return 1
	}
	return 0
}

// buildSink returns the conversation engine when Yandex credentials are
// configured and a logging sink otherwise.
func buildSink(cfg *config.Config, logger *slog.Logger, metrics *observe.Metrics) (vad.Sink, func(), error) {
	if !cfg.Yandex.Enabled() {
		slog.Warn("IAM_TOKEN and FOLDER_ID are not set; utterances will only be logged")
		return vad.LogSink{Logger: logger}, func() {}, nil
	}

	recognizer, err := stt.NewYandexSTTClient(stt.YandexConfig{
		IamToken: cfg.Yandex.IamToken,
		FolderID: cfg.Yandex.FolderID,
		Language: cfg.Yandex.Language,
	})
	if err != nil {
		return nil, nil, err
	}

	synthesizer, err := tts.NewYandexTTSClient(tts.YandexConfig{
		ApiKey:   cfg.Yandex.ApiKey,
		IamToken: cfg.Yandex.IamToken,
		FolderID: cfg.Yandex.FolderID,
	})
	if err != nil {
		recognizer.Close()
		return nil, nil, err
	}

	player := sound.NewPortaudioPlayer(sound.GetDefaultConfig(), logger)
	if err := player.Initialize(); err != nil {
		recognizer.Close()
		synthesizer.Close()
		return nil, nil, &audio.DeviceError{Op: "initialize output", Err: err}
	}

	synthesis := tts.GetDefaultSynthesisOptions()
	synthesis.Voice = cfg.Yandex.Voice

	eng := engine.NewEngine(
		engine.EngineConfig{Synthesis: synthesis},
		recognizer,
		gpt.NewClient(cfg.Yandex.FolderID, cfg.Yandex.IamToken),
		synthesizer,
		player,
		logger,
		metrics,
	)

	closeFn := func() {
		if err := eng.Close(); err != nil {
			slog.Warn("closing conversation engine", "err", err)
		}
		player.Terminate()
	}
	return eng, closeFn, nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"kokorod/internal/pkg/kokorod/config"
	"kokorod/internal/pkg/kokorod/engine"
	"kokorod/internal/pkg/kokorod/pipeline"
	"kokorod/internal/pkg/kokorod/server"
	"kokorod/internal/pkg/kokorod/stdio"

	_ "kokorod/internal/pkg/kokorod/backends/kokoroexec"
	_ "kokorod/internal/pkg/kokorod/backends/kokorohttp"
	_ "kokorod/internal/pkg/kokorod/backends/mock"
)

func main() {
	fmt.Fprintf(os.Stderr, "kokorod %s\n", Version)

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.LoadAndParse()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse configuration")
	}

	if err := setupLogging(cfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to setup logging")
	}

	log.Debug().
		Str("backend", cfg.Backend).
		Str("voice", cfg.Voice).
		Float32("speed", cfg.Speed).
		Int("max_chunk_size", cfg.MaxChunkSize).
		Float64("fade_duration", cfg.FadeDuration).
		Int("max_concurrency", cfg.MaxConcurrent).
		Msg("Configuration loaded")

	log.Info().Str("backend", cfg.Backend).Msg("Loading TTS engine...")
	eng, err := engine.New(cfg.Backend, engine.EngineConfig{
		Voice:         cfg.Voice,
		LangCode:      cfg.LangCode,
		URL:           cfg.EngineURL,
		Command:       cfg.EngineCommand,
		MaxConcurrent: cfg.MaxConcurrent,
	})
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Backend).Msg("Failed to load engine")
	}
	defer eng.Close()

	info := eng.Info()
	log.Debug().
		Str("engine", info.Name).
		Strs("languages", info.Languages).
		Int("sample_rate", info.SampleRate).
		Msg("Engine loaded")

	if cfg.ListVoices {
		voices := eng.ListVoices()
		sort.Strings(voices)
		fmt.Fprintf(os.Stderr, "Backend: %s\n", info.Name)
		fmt.Fprintf(os.Stderr, "Available voices (%d):\n", len(voices))
		for _, v := range voices {
			fmt.Fprintf(os.Stderr, "  %s\n", v)
		}
		return
	}

	synth := pipeline.New(eng, pipeline.Options{
		MaxChunkSize:  cfg.MaxChunkSize,
		FadeDuration:  cfg.FadeDuration,
		MaxConcurrent: cfg.MaxConcurrent,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case cfg.Serve:
		srv := server.New(synth, eng, cfg.Voice, cfg.Speed)
		if err := srv.ListenAndServe(ctx, cfg.ServeAddr); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	case cfg.Stdio:
		log.Info().Msg("Serving line protocol on stdin/stdout")
		opts := stdio.Options{DefaultVoice: cfg.Voice, DefaultSpeed: cfg.Speed}
		if err := stdio.Serve(ctx, os.Stdin, os.Stdout, synth, opts); err != nil {
			log.Fatal().Err(err).Msg("Line protocol server failed")
		}
	default:
		runOnce(ctx, cfg, synth)
	}
}

func runOnce(ctx context.Context, cfg *config.Config, synth *pipeline.Synthesizer) {
	log.Info().Str("text", truncateText(cfg.Text, 50)).Msg("Generating speech...")
	startTime := time.Now()

	wav, err := synth.SpeakWAV(ctx, pipeline.Request{
		Text:  cfg.Text,
		Voice: cfg.Voice,
		Speed: cfg.Speed,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to generate audio")
	}

	if err := os.WriteFile(cfg.Output, wav, 0644); err != nil {
		log.Fatal().Err(err).Msg("Failed to save audio")
	}

	log.Info().
		Dur("elapsed", time.Since(startTime)).
		Str("output", cfg.Output).
		Msg("Audio saved successfully")
}

func setupLogging(cfg *config.Config) error {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		log.Logger = zerolog.New(f).With().Timestamp().Logger()
	}

	return nil
}

func truncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}

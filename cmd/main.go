package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"consult-speech-pipeline/internal/config"
	"consult-speech-pipeline/internal/events"
	"consult-speech-pipeline/internal/observability"
	"consult-speech-pipeline/internal/observability/logging"
	"consult-speech-pipeline/internal/service/capture"
	"consult-speech-pipeline/internal/service/session"
	"consult-speech-pipeline/internal/service/stream"
	"consult-speech-pipeline/internal/service/transcribe"
	"consult-speech-pipeline/internal/service/translate"
)

func main() {
	// Optional .env for local development.
	_ = godotenv.Load()

	cfg := config.Load()

	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})

	publisher := events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicPartial: cfg.Kafka.TopicPartial,
		TopicFinal:   cfg.Kafka.TopicFinal,
		Principal:    cfg.Kafka.Principal,
	})
	defer publisher.Close()

	transcriber := transcribe.New(cfg.Endpoints.Transcription,
		transcribe.WithMode(cfg.Capture.TranscribeMode),
		transcribe.WithMinSegmentBytes(cfg.Capture.MinSegmentBytes),
	)
	translator := translate.New(cfg.Endpoints.Translation)

	threshold := cfg.Language.ThresholdLive
	if cfg.Capture.Mode == session.ModeBatch {
		threshold = cfg.Language.ThresholdBatch
	}

	sessionCfg := session.Config{
		Device:         capture.NewFileDevice(cfg.Capture.InputFile, cfg.Capture.ChunkSize),
		Transcriber:    transcriber,
		Translator:     translator,
		Publisher:      publisher,
		Mode:           cfg.Capture.Mode,
		LanguageHint:   cfg.Language.Hint,
		TargetLanguage: cfg.Language.Target,
		Threshold:      threshold,
		FlushInterval:  cfg.Capture.FlushInterval,
		MaxBacklog:     cfg.Capture.MaxBacklog,
		StopTimeout:    cfg.Capture.StopTimeout,
		ProbePeriod:    cfg.Observability.ProbePeriod,
	}
	if cfg.Stream.Enabled {
		sessionCfg.Streamer = stream.New(cfg.Endpoints.Streaming,
			stream.WithReconnectDelay(cfg.Stream.ReconnectDelay),
			stream.WithMaxReconnects(cfg.Stream.MaxReconnectAttempts),
		)
	}

	controller, err := session.New(sessionCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build session controller")
	}
	defer controller.Close()

	obs := observability.NewServer(cfg.Observability.HTTPAddr, controller.Status)
	obs.Start()

	if err := controller.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start capture session")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("Shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Capture.StopTimeout+5*time.Second)
	defer cancel()
	if err := controller.Stop(stopCtx); err != nil {
		log.Error().Err(err).Msg("Session stop failed")
	}

	if transcript := controller.GetTranscript(); transcript != "" {
		fmt.Println(transcript)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = obs.Shutdown(shutdownCtx)
}

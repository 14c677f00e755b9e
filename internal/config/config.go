// Package config loads pipeline configuration from the environment.
// Invalid values fall back to defaults rather than failing startup.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration holds all settings for the pipeline.
type Configuration struct {
	Service       ServiceConfig
	Endpoints     EndpointsConfig
	Capture       CaptureConfig
	Language      LanguageConfig
	Stream        StreamConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig identifies the running service instance.
type ServiceConfig struct {
	Principal string
}

// EndpointsConfig holds the base URLs of the remote dependencies.
type EndpointsConfig struct {
	Transcription string
	Translation   string
	Streaming     string
}

// CaptureConfig controls the audio capture session.
type CaptureConfig struct {
	FlushInterval   time.Duration // how often buffered audio is flushed as a segment
	MinSegmentBytes int           // segments below this are rejected locally
	MaxBacklog      int           // queued segments beyond this are coalesced to the newest
	StopTimeout     time.Duration // bound on awaiting the last in-flight submission at stop
	Mode            string        // "live" or "batch"
	TranscribeMode  string        // "fast" or "accurate", forwarded to the transcription service
	InputFile       string        // audio file replayed as the capture device
	ChunkSize       int           // bytes emitted per flush interval when replaying a file
}

// LanguageConfig controls transcription language hints and the
// target-language heuristic.
type LanguageConfig struct {
	Hint           string  // source language hint, "auto" for detection
	Target         string  // target language code
	ThresholdLive  float64 // heuristic threshold on the per-chunk path
	ThresholdBatch float64 // heuristic threshold on the end-of-session path
}

// StreamConfig controls the push result channel.
type StreamConfig struct {
	Enabled              bool
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// KafkaConfig controls transcript event publishing.
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicPartial string
	TopicFinal   string
	Principal    string
}

// ObservabilityConfig controls logging and the metrics HTTP server.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	HTTPAddr    string
	ProbePeriod time.Duration
}

// Load reads configuration from the environment.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "consult-speech-pipeline")

	return &Configuration{
		Service: ServiceConfig{
			Principal: principal,
		},
		Endpoints: EndpointsConfig{
			Transcription: envOrDefault("TRANSCRIPTION_URL", "http://localhost:9000"),
			Translation:   envOrDefault("TRANSLATION_URL", "http://localhost:9001"),
			Streaming:     envOrDefault("STREAMING_URL", "http://localhost:9002"),
		},
		Capture: CaptureConfig{
			FlushInterval:   envOrDefaultDuration("CAPTURE_FLUSH_INTERVAL", 2*time.Second),
			MinSegmentBytes: envOrDefaultInt("CAPTURE_MIN_SEGMENT_BYTES", 100),
			MaxBacklog:      envOrDefaultInt("CAPTURE_MAX_BACKLOG", 3),
			StopTimeout:     envOrDefaultDuration("CAPTURE_STOP_TIMEOUT", 10*time.Second),
			Mode:            envOrDefault("CAPTURE_MODE", "live"),
			TranscribeMode:  envOrDefault("TRANSCRIBE_MODE", "fast"),
			InputFile:       envOrDefault("CAPTURE_INPUT_FILE", "testdata/sample.webm"),
			ChunkSize:       envOrDefaultInt("CAPTURE_CHUNK_SIZE", 32*1024),
		},
		Language: LanguageConfig{
			Hint:           envOrDefault("LANGUAGE_HINT", "auto"),
			Target:         envOrDefault("LANGUAGE_TARGET", "en"),
			ThresholdLive:  envOrDefaultFloat("LANGUAGE_THRESHOLD_LIVE", 0.1),
			ThresholdBatch: envOrDefaultFloat("LANGUAGE_THRESHOLD_BATCH", 0.3),
		},
		Stream: StreamConfig{
			Enabled:              envOrDefaultBool("STREAM_ENABLED", true),
			ReconnectDelay:       envOrDefaultDuration("STREAM_RECONNECT_DELAY", 5*time.Second),
			MaxReconnectAttempts: envOrDefaultInt("STREAM_MAX_RECONNECT_ATTEMPTS", 5),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      envOrDefaultSlice("KAFKA_BROKERS", nil),
			TopicPartial: envOrDefault("KAFKA_TOPIC_PARTIAL", "transcripts.partial"),
			TopicFinal:   envOrDefault("KAFKA_TOPIC_FINAL", "transcripts.final"),
			Principal:    envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			HTTPAddr:    envOrDefault("OBSERVABILITY_ADDR", ":8090"),
			ProbePeriod: envOrDefaultDuration("HEALTH_PROBE_PERIOD", 30*time.Second),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultSlice(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		var out []string
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return def
}

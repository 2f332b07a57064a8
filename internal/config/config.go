// Package config loads this service's runtime configuration from the
// environment (optionally via a .env file): read env vars with os.Getenv,
// apply defaults that are awkward to express as zero values, and assemble a
// single typed Config.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EmbeddingConfig configures the outbound call to the embedding service.
type EmbeddingConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	Device    string
	BatchSize int
	Dimension int
}

// ChunkConfig is the default chunk window used by bulk ingestion; per-corpus
// builders scale it (see internal/ingest).
type ChunkConfig struct {
	Size    int
	Overlap int
}

// RetrievalConfig tunes the hybrid retriever and re-ranker.
type RetrievalConfig struct {
	Alpha         float64
	DefaultTopK   int
	RecencyWeight float64
}

// LLMConfig selects and configures the chat-completion backend.
type LLMConfig struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
}

// AnswerConfig bounds the grounded prompt the answer orchestrator builds.
type AnswerConfig struct {
	MaxContextLength int
}

// HistoryConfig bounds how much prior conversation is loaded per request.
type HistoryConfig struct {
	MaxEntries int
}

// ObsConfig configures the OpenTelemetry exporters.
type ObsConfig struct {
	OTLP           string
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// Config is the fully assembled runtime configuration.
type Config struct {
	HTTPAddr    string
	DatabaseURL string
	VectorDSN   string
	ChatDSN     string
	DataDir     string

	Embedding EmbeddingConfig
	Chunk     ChunkConfig
	Retrieval RetrievalConfig
	LLM       LLMConfig
	Answer    AnswerConfig
	History   HistoryConfig
	Obs       ObsConfig

	LogLevel string
	LogPath  string
}

// Load reads configuration from the environment (optionally overlaid by a
// .env file in the working directory) and returns a Config with defaults
// applied for anything the caller did not set.
func Load() (Config, error) {
	// Overload so repository-local .env values take precedence over
	// variables already set in the process environment.
	_ = godotenv.Overload()

	cfg := Config{
		HTTPAddr:    firstNonEmpty(os.Getenv("HTTP_ADDR"), ":8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		VectorDSN:   firstNonEmpty(os.Getenv("VECTOR_DSN"), "http://localhost:6334"),
		ChatDSN:     os.Getenv("CHAT_DSN"),
		DataDir:     firstNonEmpty(os.Getenv("DATA_DIR"), "./data"),
		LogLevel:    firstNonEmpty(os.Getenv("LOG_LEVEL"), "info"),
		LogPath:     os.Getenv("LOG_PATH"),
	}

	cfg.Embedding = EmbeddingConfig{
		BaseURL:   os.Getenv("EMBED_BASE_URL"),
		APIKey:    os.Getenv("EMBED_API_KEY"),
		Model:     firstNonEmpty(os.Getenv("EMBED_MODEL"), "text-embedding-3-small"),
		Device:    firstNonEmpty(os.Getenv("EMBED_DEVICE"), "cpu"),
		BatchSize: intFromEnv("EMBED_BATCH_SIZE", 64),
		Dimension: intFromEnv("EMBED_DIMENSION", 1536),
	}

	cfg.Chunk = ChunkConfig{
		Size:    intFromEnv("CHUNK_SIZE", 800),
		Overlap: intFromEnv("CHUNK_OVERLAP", 100),
	}

	cfg.Retrieval = RetrievalConfig{
		Alpha:         floatFromEnv("HYBRID_ALPHA", 0.5),
		DefaultTopK:   intFromEnv("DEFAULT_TOP_K", 5),
		RecencyWeight: floatFromEnv("RECENCY_WEIGHT", 0.2),
	}

	cfg.LLM = LLMConfig{
		Provider:    strings.ToLower(strings.TrimSpace(firstNonEmpty(os.Getenv("LLM_PROVIDER"), "anthropic"))),
		Model:       os.Getenv("LLM_MODEL"),
		BaseURL:     os.Getenv("LLM_BASE_URL"),
		MaxTokens:   int64(intFromEnv("LLM_MAX_TOKENS", 1024)),
		Temperature: floatFromEnv("LLM_TEMPERATURE", 0.2),
	}
	switch cfg.LLM.Provider {
	case "openai":
		cfg.LLM.APIKey = firstNonEmpty(os.Getenv("LLM_API_KEY"), os.Getenv("OPENAI_API_KEY"))
		if cfg.LLM.Model == "" {
			cfg.LLM.Model = "gpt-4o-mini"
		}
	default:
		cfg.LLM.APIKey = firstNonEmpty(os.Getenv("LLM_API_KEY"), os.Getenv("ANTHROPIC_API_KEY"))
		if cfg.LLM.Model == "" {
			cfg.LLM.Model = "claude-3-5-haiku-latest"
		}
	}

	cfg.Answer = AnswerConfig{
		MaxContextLength: intFromEnv("MAX_CONTEXT_LENGTH", 8000),
	}
	cfg.History = HistoryConfig{
		MaxEntries: intFromEnv("MAX_HISTORY_ENTRIES", 10),
	}

	cfg.Obs = ObsConfig{
		OTLP:           os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:    firstNonEmpty(os.Getenv("OTEL_SERVICE_NAME"), "campusqa"),
		ServiceVersion: firstNonEmpty(os.Getenv("OTEL_SERVICE_VERSION"), "dev"),
		Environment:    firstNonEmpty(os.Getenv("OTEL_ENVIRONMENT"), "development"),
	}

	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func intFromEnv(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

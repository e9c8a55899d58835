// Package config loads the application configuration. Environment
// variables are the source of truth; an optional YAML file passed with
// -config overlays them for values it sets.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/clinigraph/clinigraph/internal/gateway"
	graphcfg "github.com/clinigraph/clinigraph/pkg/stategraph/config"
)

// Config holds all configuration values.
type Config struct {
	// Language model
	LLMProvider string // "openai" or "ollama"
	LLMModel    string
	LLMAPIKey   string
	LLMServer   string

	// Embeddings
	EmbeddingModel string
	EmbeddingDim   int

	// Qdrant case store
	QdrantHost       string
	QdrantPort       int
	QdrantAPIKey     string
	QdrantCollection string
	QdrantTLS        bool

	// Checkpointing: "" disables, ":memory:" or a file path enables
	CheckpointPath string

	// Logging
	LogLevel slog.Level
	LogFile  string

	// Observability
	Tracing bool
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		LLMProvider: getEnv("CLINIGRAPH_LLM_PROVIDER", "ollama"),
		LLMModel:    getEnv("CLINIGRAPH_LLM_MODEL", "llama3.1"),
		LLMAPIKey:   getEnv("OPENAI_API_KEY", ""),
		LLMServer:   getEnv("CLINIGRAPH_LLM_SERVER", "http://localhost:11434"),

		EmbeddingModel: getEnv("CLINIGRAPH_EMBEDDING_MODEL", "all-minilm:l6-v2"),
		EmbeddingDim:   getEnvInt("CLINIGRAPH_EMBEDDING_DIM", gateway.DefaultEmbeddingDim),

		QdrantHost:       getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:       getEnvInt("QDRANT_PORT", 6334),
		QdrantAPIKey:     getEnv("QDRANT_API_KEY", ""),
		QdrantCollection: getEnv("CLINIGRAPH_COLLECTION", "patient_cases"),
		QdrantTLS:        getEnv("QDRANT_TLS", "false") == "true",

		CheckpointPath: getEnv("CLINIGRAPH_CHECKPOINT_PATH", ""),

		LogLevel: parseLogLevel(getEnv("CLINIGRAPH_LOG_LEVEL", "INFO")),
		LogFile:  getEnv("CLINIGRAPH_LOG_FILE", ""),

		Tracing: getEnv("CLINIGRAPH_TRACING", "false") == "true",
	}
}

// ApplyFile overlays values from a YAML file onto c. Keys the file does
// not set keep their current values.
func (c Config) ApplyFile(path string) (Config, error) {
	fc, err := graphcfg.FromFile(path)
	if err != nil {
		return c, fmt.Errorf("loading config file %s: %w", path, err)
	}

	llm := fc.Sub("llm")
	c.LLMProvider = llm.String("provider", c.LLMProvider)
	c.LLMModel = llm.String("model", c.LLMModel)
	c.LLMServer = llm.String("server", c.LLMServer)

	emb := fc.Sub("embedding")
	c.EmbeddingModel = emb.String("model", c.EmbeddingModel)
	c.EmbeddingDim = emb.Int("dimension", c.EmbeddingDim)

	qd := fc.Sub("qdrant")
	c.QdrantHost = qd.String("host", c.QdrantHost)
	c.QdrantPort = qd.Int("port", c.QdrantPort)
	c.QdrantCollection = qd.String("collection", c.QdrantCollection)
	c.QdrantTLS = qd.Bool("tls", c.QdrantTLS)

	c.CheckpointPath = fc.String("checkpoint_path", c.CheckpointPath)
	c.Tracing = fc.Bool("tracing", c.Tracing)
	if lvl := fc.String("log_level", ""); lvl != "" {
		c.LogLevel = parseLogLevel(lvl)
	}
	c.LogFile = fc.String("log_file", c.LogFile)

	return c, nil
}

// GeneratorConfig maps c onto the generation gateway's settings.
func (c Config) GeneratorConfig(logger *slog.Logger) gateway.GeneratorConfig {
	return gateway.GeneratorConfig{
		Provider:  c.LLMProvider,
		Model:     c.LLMModel,
		APIKey:    c.LLMAPIKey,
		ServerURL: c.LLMServer,
		Logger:    logger,
	}
}

// EmbedderConfig maps c onto the embedding gateway's settings.
func (c Config) EmbedderConfig() gateway.EmbedderConfig {
	return gateway.EmbedderConfig{
		Provider:  c.LLMProvider,
		Model:     c.EmbeddingModel,
		APIKey:    c.LLMAPIKey,
		ServerURL: c.LLMServer,
		Dimension: c.EmbeddingDim,
	}
}

// QdrantConfig maps c onto the case store's settings.
func (c Config) QdrantConfig() gateway.QdrantConfig {
	return gateway.QdrantConfig{
		Host:       c.QdrantHost,
		Port:       c.QdrantPort,
		APIKey:     c.QdrantAPIKey,
		Collection: c.QdrantCollection,
		UseTLS:     c.QdrantTLS,
		VectorDim:  c.EmbeddingDim,
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

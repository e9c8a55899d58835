package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// DefaultEmbeddingDim matches the all-MiniLM class of sentence models.
const DefaultEmbeddingDim = 384

// Embedder turns text into a vector for case similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// EmbedderConfig selects the embedding provider.
type EmbedderConfig struct {
	// Provider is "openai" or "ollama".
	Provider  string
	Model     string
	APIKey    string
	ServerURL string
	// Dimension validates returned vectors. Default DefaultEmbeddingDim.
	Dimension int
}

// TextEmbedder is the langchaingo-backed Embedder.
type TextEmbedder struct {
	model     embeddings.Embedder
	dimension int
}

// NewEmbedder builds an Embedder for the configured provider.
func NewEmbedder(cfg EmbedderConfig) (*TextEmbedder, error) {
	var model embeddings.Embedder
	var err error

	switch cfg.Provider {
	case "ollama":
		llm, ollamaErr := ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.ServerURL),
		)
		if ollamaErr != nil {
			return nil, fmt.Errorf("create ollama client: %w", ollamaErr)
		}
		model, err = embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("create ollama embedder: %w", err)
		}
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		llm, openaiErr := openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithEmbeddingModel(cfg.Model),
		)
		if openaiErr != nil {
			return nil, fmt.Errorf("create openai client: %w", openaiErr)
		}
		model, err = embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("create openai embedder: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	dim := cfg.Dimension
	if dim <= 0 {
		dim = DefaultEmbeddingDim
	}

	return &TextEmbedder{model: model, dimension: dim}, nil
}

// Embed implements Embedder, validating the vector dimension.
func (e *TextEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vectors, err := e.model.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, classify("embed", time.Since(start), err)
	}
	if len(vectors) == 0 {
		return nil, &ResponseFormatError{Op: "embed", Detail: "no embedding returned", Err: fmt.Errorf("empty result")}
	}
	if len(vectors[0]) != e.dimension {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vectors[0]), e.dimension)
	}
	return vectors[0], nil
}

// Dimension implements Embedder.
func (e *TextEmbedder) Dimension() int {
	return e.dimension
}

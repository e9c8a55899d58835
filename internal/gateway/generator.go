package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/clinigraph/clinigraph/pkg/resilience"
)

// Generator produces model completions. Stages depend on this interface,
// not on a concrete provider, so tests substitute fakes.
type Generator interface {
	// Generate returns the completion for a bare prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// GenerateJSON asks the model for JSON matching out's shape and
	// unmarshals into it. A malformed reply is retried as transient.
	GenerateJSON(ctx context.Context, system, user string, out any) error
}

// GeneratorConfig selects and tunes the model provider.
type GeneratorConfig struct {
	// Provider is "openai" or "ollama".
	Provider string
	Model    string
	APIKey   string
	// ServerURL is the ollama host; ignored for openai.
	ServerURL string
	// CallTimeout bounds each individual model call. Default 60s.
	CallTimeout time.Duration
	// Retry policy for generation calls. Defaults to
	// resilience.GenerationRetry with the transient predicate.
	Retry *resilience.RetryConfig

	Logger *slog.Logger
}

// LLMGenerator is the langchaingo-backed Generator.
type LLMGenerator struct {
	model   llms.Model
	name    string
	timeout time.Duration
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

// NewGenerator builds a Generator for the configured provider.
func NewGenerator(cfg GeneratorConfig) (*LLMGenerator, error) {
	var model llms.Model
	var err error

	switch cfg.Provider {
	case "ollama":
		model, err = ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.ServerURL),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}

	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	retry := resilience.GenerationRetry
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}
	if retry.Retryable == nil {
		retry.Retryable = IsTransient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &LLMGenerator{
		model:   model,
		name:    cfg.Model,
		timeout: timeout,
		retry:   retry,
		logger:  logger,
	}, nil
}

// Generate implements Generator.
func (g *LLMGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	res := resilience.Do(ctx, g.retry, func(ctx context.Context) (string, error) {
		return g.complete(ctx, "", prompt)
	})
	return res.Value, res.Err
}

// GenerateJSON implements Generator. The parse happens inside the retry
// loop: a reply that isn't valid JSON costs one attempt, like any other
// transient failure. Each attempt decodes into a fresh value and out is
// written only from the accepted reply, so fields a rejected reply
// managed to populate before its decode error never leak through.
func (g *LLMGenerator) GenerateJSON(ctx context.Context, system, user string, out any) error {
	outType := reflect.TypeOf(out)
	if outType == nil || outType.Kind() != reflect.Pointer || reflect.ValueOf(out).IsNil() {
		return fmt.Errorf("generate json: out must be a non-nil pointer")
	}

	res := resilience.Do(ctx, g.retry, func(ctx context.Context) (reflect.Value, error) {
		raw, err := g.complete(ctx, system, user)
		if err != nil {
			return reflect.Value{}, err
		}
		fresh := reflect.New(outType.Elem())
		if err := json.Unmarshal([]byte(extractJSON(raw)), fresh.Interface()); err != nil {
			return reflect.Value{}, &ResponseFormatError{Op: "generate_json", Detail: "invalid JSON", Err: err}
		}
		return fresh, nil
	})
	if res.Err != nil {
		g.logger.Warn("generation failed",
			slog.String("model", g.name),
			slog.Int("attempts", res.Attempts),
			slog.String("error", res.Err.Error()),
		)
		return res.Err
	}

	reflect.ValueOf(out).Elem().Set(res.Value.Elem())
	return nil
}

// complete performs one model call under the per-call timeout.
func (g *LLMGenerator) complete(ctx context.Context, system, user string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	var reply string
	var err error
	if system == "" {
		reply, err = llms.GenerateFromSinglePrompt(callCtx, g.model, user)
	} else {
		messages := []llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, system),
			llms.TextParts(llms.ChatMessageTypeHuman, user),
		}
		var resp *llms.ContentResponse
		resp, err = g.model.GenerateContent(callCtx, messages)
		if err == nil {
			if len(resp.Choices) == 0 {
				err = &ResponseFormatError{Op: "generate", Detail: "no choices", Err: fmt.Errorf("empty response")}
			} else {
				reply = resp.Choices[0].Content
			}
		}
	}
	if err != nil {
		return "", classify("generate", time.Since(start), err)
	}
	return reply, nil
}

// extractJSON strips markdown code fences that chat models like to wrap
// JSON in, and trims to the outermost braces.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

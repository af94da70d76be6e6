package langchain

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/cohere"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider names a langchaingo backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
	ProviderCohere    Provider = "cohere"
	ProviderOllama    Provider = "ollama"
)

// Providers lists every supported backend.
var Providers = []Provider{ProviderAnthropic, ProviderOpenAI, ProviderGemini, ProviderCohere, ProviderOllama}

// NeedsAPIKey reports whether the backend requires credentials.
func (p Provider) NeedsAPIKey() bool {
	return p != ProviderOllama
}

// ParseProvider resolves a configured provider name. Matching ignores case,
// and "claude" is accepted for anthropic.
func ParseProvider(name string) (Provider, bool) {
	p := Provider(strings.ToLower(strings.TrimSpace(name)))
	if p == "claude" {
		p = ProviderAnthropic
	}
	for _, known := range Providers {
		if p == known {
			return p, true
		}
	}
	return p, false
}

// NewModel creates the llms.Model for the configured provider.
func NewModel(ctx context.Context, cfg Config, logger zerolog.Logger) (llms.Model, error) {
	logger.Debug().
		Str("provider", string(cfg.Provider)).
		Str("model", cfg.Model).
		Float64("temperature", cfg.Temperature).
		Msg("Creating reasoning model")

	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case ProviderAnthropic:
		model, err = createAnthropicModel(cfg)
	case ProviderOpenAI:
		model, err = createOpenAIModel(cfg)
	case ProviderGemini:
		model, err = createGeminiModel(ctx, cfg)
	case ProviderCohere:
		model, err = createCohereModel(cfg)
	case ProviderOllama:
		model, err = createOllamaModel(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create model for provider %s: %w", cfg.Provider, err)
	}
	return model, nil
}

func createAnthropicModel(cfg Config) (llms.Model, error) {
	opts := []anthropic.Option{
		anthropic.WithToken(cfg.APIKey),
		anthropic.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	return anthropic.New(opts...)
}

func createOpenAIModel(cfg Config) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	return openai.New(opts...)
}

func createGeminiModel(ctx context.Context, cfg Config) (llms.Model, error) {
	opts := []googleai.Option{
		googleai.WithAPIKey(cfg.APIKey),
		googleai.WithDefaultModel(cfg.Model),
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, googleai.WithDefaultMaxTokens(cfg.MaxTokens))
	}
	return googleai.New(ctx, opts...)
}

func createCohereModel(cfg Config) (llms.Model, error) {
	opts := []cohere.Option{
		cohere.WithToken(cfg.APIKey),
		cohere.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, cohere.WithBaseURL(cfg.BaseURL))
	}
	return cohere.New(opts...)
}

func createOllamaModel(cfg Config) (llms.Model, error) {
	serverURL := cfg.BaseURL
	if serverURL == "" {
		serverURL = "http://localhost:11434"
	}
	return ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(cfg.Model),
	)
}

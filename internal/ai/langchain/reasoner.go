package langchain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"

	"github.com/maildigest/internal/ai"
	"github.com/maildigest/internal/llm"
	"github.com/maildigest/internal/retry"
)

// Config selects and tunes the reasoning backend.
type Config struct {
	Provider       Provider      `json:"provider"`
	APIKey         string        `json:"-"`
	BaseURL        string        `json:"base_url,omitempty"`
	Model          string        `json:"model"`
	MaxTokens      int           `json:"max_tokens"`
	Temperature    float64       `json:"temperature"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// Reasoner implements ai.Reasoner on top of any langchaingo model. It asks
// for a forced tool call and falls back to parsing JSON from the text
// content for backends that ignore tools.
type Reasoner struct {
	llm    llms.Model
	config Config
	logger zerolog.Logger
}

var _ ai.Reasoner = (*Reasoner)(nil)

// New creates the backend model from config and wraps it.
func New(ctx context.Context, config Config, logger zerolog.Logger) (*Reasoner, error) {
	model, err := NewModel(ctx, config, logger)
	if err != nil {
		return nil, err
	}
	return NewWithModel(model, config, logger), nil
}

// NewWithModel wraps an existing model.
func NewWithModel(model llms.Model, config Config, logger zerolog.Logger) *Reasoner {
	return &Reasoner{
		llm:    model,
		config: config,
		logger: logger.With().Str("component", "reasoner").Str("provider", string(config.Provider)).Logger(),
	}
}

// Categorize runs the categorization call.
func (r *Reasoner) Categorize(ctx context.Context, req ai.Request) ([]ai.CategorizeItem, error) {
	var envelope struct {
		Categorizations []ai.CategorizeItem `json:"categorizations"`
	}
	if err := r.call(ctx, req, ai.CategorizationTool, &envelope); err != nil {
		return nil, err
	}
	return envelope.Categorizations, nil
}

// Draft runs the draft-reply call.
func (r *Reasoner) Draft(ctx context.Context, req ai.Request) ([]ai.DraftItem, error) {
	var envelope struct {
		Drafts []ai.DraftItem `json:"drafts"`
	}
	if err := r.call(ctx, req, ai.DraftTool, &envelope); err != nil {
		return nil, err
	}
	return envelope.Drafts, nil
}

func (r *Reasoner) call(ctx context.Context, req ai.Request, tool ai.Tool, target interface{}) error {
	if r.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.RequestTimeout)
		defer cancel()
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, req.UserPrompt),
	}

	opts := []llms.CallOption{
		llms.WithTemperature(r.config.Temperature),
		llms.WithTools([]llms.Tool{{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		}}),
		llms.WithToolChoice(llms.ToolChoice{
			Type:     "function",
			Function: &llms.FunctionReference{Name: tool.Name},
		}),
	}
	if r.config.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(r.config.MaxTokens))
	}
	if r.config.Model != "" {
		opts = append(opts, llms.WithModel(r.config.Model))
	}

	start := time.Now()
	resp, err := r.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return r.wrap(tool, err)
	}

	payload, source := toolPayload(resp, tool.Name)
	if payload == "" {
		return r.wrap(tool, errors.New("empty response from model"))
	}

	r.logger.Debug().
		Str("tool", tool.Name).
		Str("source", source).
		Int("payload_bytes", len(payload)).
		Dur("duration", time.Since(start)).
		Msg("Reasoning call completed")

	if _, err := llm.ParseStructured(payload, target, r.logger); err != nil {
		return r.wrap(tool, fmt.Errorf("parse %s response: %w", source, err))
	}
	return nil
}

// toolPayload prefers the arguments of a matching tool call and falls back to
// the text content of the first non-empty choice.
func toolPayload(resp *llms.ContentResponse, toolName string) (string, string) {
	if resp == nil {
		return "", ""
	}
	for _, choice := range resp.Choices {
		for _, call := range choice.ToolCalls {
			if call.FunctionCall != nil && call.FunctionCall.Name == toolName {
				return call.FunctionCall.Arguments, "tool_call"
			}
		}
	}
	for _, choice := range resp.Choices {
		if choice.Content != "" {
			return choice.Content, "text"
		}
	}
	return "", ""
}

func (r *Reasoner) wrap(tool ai.Tool, err error) error {
	return &ai.APIError{
		Provider:    string(r.config.Provider),
		Op:          tool.Name,
		RateLimited: llms.IsRateLimitError(err) || retry.IsRateLimitError(err),
		Err:         err,
	}
}

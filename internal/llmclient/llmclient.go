// Package llmclient wraps the two chat-completion backends the answer
// orchestrator can be pointed at: Anthropic's Messages API and an
// OpenAI-compatible chat-completions endpoint, selected by configuration.
package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go/v2"
	openaiopt "github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/openai/openai-go/v2/shared"

	"campusqa/internal/observability"
)

// transientRetries is the per-call retry budget for rate limits and 5xx
// responses; both SDKs back off exponentially between attempts.
const transientRetries = 3

// Message is one turn of chat history passed to Complete.
type Message struct {
	Role    string // "user" | "assistant"
	Content string
}

// Client answers a grounded question given a system prompt and history.
type Client interface {
	Complete(ctx context.Context, systemPrompt string, history []Message, userMessage string) (string, error)
}

// Config selects and configures a backend.
type Config struct {
	Provider    string // "anthropic" | "openai"
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int64
	Temperature float64
}

// New builds a Client for cfg.Provider. Unknown providers are an error
// rather than a silent fallback, since answering with the wrong backend is
// worse than failing loudly.
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "", "anthropic":
		return newAnthropicClient(cfg), nil
	case "openai":
		return newOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("llmclient: unknown provider %q", cfg.Provider)
	}
}

type anthropicClient struct {
	client *anthropic.Client
	cfg    Config
}

func newAnthropicClient(cfg Config) *anthropicClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(observability.NewHTTPClient(nil)),
		option.WithMaxRetries(transientRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	return &anthropicClient{client: &client, cfg: cfg}
}

func (c *anthropicClient) Complete(ctx context.Context, systemPrompt string, history []Message, userMessage string) (string, error) {
	msgs := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, m := range history {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}
	msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage)))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: c.cfg.MaxTokens,
		Messages:  msgs,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	log := observability.LoggerWithTrace(ctx)
	if b, err := json.Marshal(msgs); err == nil {
		log.Debug().RawJSON("request", observability.RedactJSON(b)).Msg("anthropic_request")
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		log.Error().Err(err).Str("model", string(params.Model)).Msg("anthropic_request_error")
		return "", fmt.Errorf("llmclient: anthropic: %w", err)
	}
	if b, err := json.Marshal(resp); err == nil {
		log.Debug().RawJSON("response", observability.RedactJSON(b)).Msg("anthropic_response")
	}
	for _, block := range resp.Content {
		if text := block.Text; text != "" {
			return text, nil
		}
	}
	return "", errors.New("llmclient: anthropic: empty response")
}

type openAIClient struct {
	client openai.Client
	cfg    Config
}

func newOpenAIClient(cfg Config) *openAIClient {
	opts := []openaiopt.RequestOption{
		openaiopt.WithAPIKey(cfg.APIKey),
		openaiopt.WithHTTPClient(observability.NewHTTPClient(nil)),
		openaiopt.WithMaxRetries(transientRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openaiopt.WithBaseURL(cfg.BaseURL))
	}
	return &openAIClient{client: openai.NewClient(opts...), cfg: cfg}
}

func (c *openAIClient) Complete(ctx context.Context, systemPrompt string, history []Message, userMessage string) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	if systemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(systemPrompt))
	}
	for _, m := range history {
		if m.Role == "assistant" {
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		} else {
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	msgs = append(msgs, openai.UserMessage(userMessage))

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.cfg.Model),
		Messages:    msgs,
		Temperature: param.NewOpt(c.cfg.Temperature),
	}
	if c.cfg.MaxTokens > 0 {
		params.MaxTokens = param.NewOpt(c.cfg.MaxTokens)
	}

	log := observability.LoggerWithTrace(ctx)
	if b, err := json.Marshal(msgs); err == nil {
		log.Debug().RawJSON("request", observability.RedactJSON(b)).Msg("openai_request")
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		log.Error().Err(err).Str("model", string(params.Model)).Msg("openai_request_error")
		return "", fmt.Errorf("llmclient: openai: %w", err)
	}
	if b, err := json.Marshal(resp); err == nil {
		log.Debug().RawJSON("response", observability.RedactJSON(b)).Msg("openai_response")
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llmclient: openai: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

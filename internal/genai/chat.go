package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// ErrEmptyCompletion is returned when the model answers with no text.
var ErrEmptyCompletion = errors.New("model returned an empty completion")

// ChatConfig configures a ChatClient.
type ChatConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int // 0 = provider default
	Timeout     time.Duration
	Retry       RetryConfig
}

// ChatClient writes answers with an OpenAI-compatible chat completion API
// (OpenRouter by default).
type ChatClient struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
	retry       RetryConfig
}

// NewChatClient creates a chat client. An API key is required.
func NewChatClient(cfg ChatConfig) (*ChatClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("chat API key is required")
	}
	if cfg.BaseURL == "" || cfg.Model == "" {
		return nil, errors.New("chat base URL and model are required")
	}

	opts := []option.RequestOption{
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &ChatClient{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		retry:       retryOrDefault(cfg.Retry),
	}, nil
}

// Model returns the model identifier.
func (c *ChatClient) Model() string { return c.model }

func (c *ChatClient) params(system string, history []Message) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	msgs = append(msgs, openai.SystemMessage(system))
	for _, m := range history {
		switch m.Role {
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    msgs,
		Temperature: openai.Float(c.temperature),
	}
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.maxTokens))
	}
	return params
}

// Complete returns the full answer to history under the system instruction.
func (c *ChatClient) Complete(ctx context.Context, system string, history []Message) (string, error) {
	params := c.params(system, history)

	var resp *openai.ChatCompletion
	start := time.Now()
	err := WithRetryNotify(ctx, c.retry, func(attempt int, err error) {
		slog.WarnContext(ctx, "chat completion failed, retrying",
			"model", c.model,
			"attempt", attempt,
			"error", err)
	}, func() error {
		var callErr error
		resp, callErr = c.client.Chat.Completions.New(ctx, params)
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", ErrEmptyCompletion
	}

	slog.DebugContext(ctx, "chat completion finished",
		"model", c.model,
		"input_tokens", resp.Usage.PromptTokens,
		"output_tokens", resp.Usage.CompletionTokens,
		"duration_ms", time.Since(start).Milliseconds())
	return answer, nil
}

// Stream answers like Complete but hands each text delta to onDelta as it
// arrives and returns the concatenated answer. A stream that fails before the
// first delta is retried; once text has been delivered the error is returned
// as is. An error from onDelta aborts the stream.
func (c *ChatClient) Stream(ctx context.Context, system string, history []Message, onDelta func(string) error) (string, error) {
	params := c.params(system, history)

	var sb strings.Builder
	err := WithRetry(ctx, c.retry, func() error {
		return c.streamOnce(ctx, params, &sb, onDelta)
	})
	if err != nil {
		if sb.Len() > 0 {
			return sb.String(), fmt.Errorf("chat stream interrupted: %w", err)
		}
		return "", fmt.Errorf("chat stream: %w", err)
	}

	answer := strings.TrimSpace(sb.String())
	if answer == "" {
		return "", ErrEmptyCompletion
	}
	return answer, nil
}

func (c *ChatClient) streamOnce(ctx context.Context, params openai.ChatCompletionNewParams, sb *strings.Builder, onDelta func(string) error) error {
	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		sb.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return Permanent(err)
			}
		}
	}
	if err := stream.Err(); err != nil {
		if sb.Len() > 0 {
			return Permanent(err)
		}
		return err
	}
	return nil
}

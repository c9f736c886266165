// Package genai talks to the hosted models behind the advisor: the text
// embedding model used for retrieval and the chat model that writes the
// answer.
//
// Architecture:
//   - OpenAI-compatible endpoints (TEI, vLLM, OpenRouter) use
//     github.com/openai/openai-go/v3 with a custom base URL
//   - Gemini embeddings use google.golang.org/genai
//
// Transient failures are retried in this package with full-jitter backoff;
// callers see at most one error per request.
package genai

import (
	"context"
	"time"
)

// Provider identifies a model API family.
type Provider string

const (
	// ProviderOpenAI is any OpenAI-compatible HTTP API.
	ProviderOpenAI Provider = "openai"
	// ProviderGemini is Google's Gemini API.
	ProviderGemini Provider = "gemini"
)

// String returns the string representation of the provider.
func (p Provider) String() string {
	return string(p)
}

// Embedder turns texts into dense vectors. The result has one vector per
// input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Model returns the model identifier for logs and metrics.
	Model() string
}

// Role is the author of a chat message.
type Role string

// Chat roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// RetryConfig defines retry behavior for model API calls.
// Uses full jitter exponential backoff.
type RetryConfig struct {
	// MaxAttempts counts the initial attempt.
	MaxAttempts int

	// InitialDelay is the base delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps a single backoff.
	MaxDelay time.Duration
}

// Retry configuration defaults
const (
	DefaultMaxRetryAttempts  = 3
	DefaultInitialRetryDelay = 500 * time.Millisecond
	DefaultMaxRetryDelay     = 4 * time.Second
)

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  DefaultMaxRetryAttempts,
		InitialDelay: DefaultInitialRetryDelay,
		MaxDelay:     DefaultMaxRetryDelay,
	}
}

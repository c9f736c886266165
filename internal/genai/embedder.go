package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"google.golang.org/genai"
)

// EmbedderConfig selects and configures an Embedder.
type EmbedderConfig struct {
	Provider   Provider
	BaseURL    string // OpenAI-compatible only
	APIKey     string
	Model      string
	Dimensions int // 0 keeps the model default
	// TaskType is passed to Gemini ("RETRIEVAL_QUERY", "RETRIEVAL_DOCUMENT").
	TaskType string
	Timeout  time.Duration
	Retry    RetryConfig
}

// Gemini embedding task types.
const (
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

// NewEmbedder builds the Embedder selected by cfg.Provider.
func NewEmbedder(ctx context.Context, cfg EmbedderConfig) (Embedder, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIEmbedder(cfg)
	case ProviderGemini:
		return NewGeminiEmbedder(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding model returned %d vectors for 1 text", len(vecs))
	}
	return vecs[0], nil
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint, such as
// text-embeddings-inference serving BAAI/bge-m3.
type OpenAIEmbedder struct {
	client     openai.Client
	model      string
	dimensions int
	retry      RetryConfig
}

// NewOpenAIEmbedder creates an embedder for an OpenAI-compatible API.
// Self-hosted servers usually need no API key.
func NewOpenAIEmbedder(cfg EmbedderConfig) (*OpenAIEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("embedding base URL is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("embedding model is required")
	}

	opts := []option.RequestOption{
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(0),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	} else {
		opts = append(opts, option.WithAPIKey("unused"))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &OpenAIEmbedder{
		client:     openai.NewClient(opts...),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		retry:      retryOrDefault(cfg.Retry),
	}, nil
}

// Model returns the model identifier.
func (e *OpenAIEmbedder) Model() string { return e.model }

// Embed embeds texts in one request.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	params := openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:          openai.EmbeddingModel(e.model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if e.dimensions > 0 {
		params.Dimensions = openai.Int(int64(e.dimensions))
	}

	var resp *openai.CreateEmbeddingResponse
	start := time.Now()
	err := WithRetryNotify(ctx, e.retry, func(attempt int, err error) {
		slog.WarnContext(ctx, "embedding request failed, retrying",
			"model", e.model,
			"attempt", attempt,
			"error", err)
	}, func() error {
		var callErr error
		resp, callErr = e.client.Embeddings.New(ctx, params)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding model returned %d vectors for %d texts", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		i := int(d.Index)
		if i < 0 || i >= len(out) || out[i] != nil {
			return nil, fmt.Errorf("embedding model returned invalid index %d", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}

	slog.DebugContext(ctx, "embeddings completed",
		"model", e.model,
		"texts", len(texts),
		"duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

// GeminiEmbedder calls the Gemini embedding API.
type GeminiEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int
	taskType   string
	retry      RetryConfig
}

// NewGeminiEmbedder creates a Gemini embedder.
func NewGeminiEmbedder(ctx context.Context, cfg EmbedderConfig) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiEmbeddingModel
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiEmbedder{
		client:     client,
		model:      model,
		dimensions: cfg.Dimensions,
		taskType:   cfg.TaskType,
		retry:      retryOrDefault(cfg.Retry),
	}, nil
}

// DefaultGeminiEmbeddingModel is used when no Gemini model is configured.
const DefaultGeminiEmbeddingModel = "gemini-embedding-001"

// Model returns the model identifier.
func (e *GeminiEmbedder) Model() string { return e.model }

// Embed embeds texts in one batch request.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		// The API rejects empty parts.
		if strings.TrimSpace(t) == "" {
			t = " "
		}
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	config := &genai.EmbedContentConfig{TaskType: e.taskType}
	if e.dimensions > 0 {
		config.OutputDimensionality = genai.Ptr(int32(e.dimensions))
	}

	var resp *genai.EmbedContentResponse
	err := WithRetry(ctx, e.retry, func() error {
		var callErr error
		resp, callErr = e.client.Models.EmbedContent(ctx, e.model, contents, config)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embed content: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding model returned %d vectors for %d texts", len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("embedding model returned an empty vector at %d", i)
		}
		out[i] = emb.Values
	}
	return out, nil
}

func retryOrDefault(cfg RetryConfig) RetryConfig {
	if cfg.MaxAttempts <= 0 {
		return DefaultRetryConfig()
	}
	return cfg
}

package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/garyellow/ut-course-advisor/internal/genai"
)

// Wire formats of hosted rerank endpoints.
const (
	// FlavorTEI is Hugging Face text-embeddings-inference.
	FlavorTEI = "tei"
	// FlavorCohere is the Cohere-style API also served by Jina, Infinity and vLLM.
	FlavorCohere = "cohere"
)

// DefaultModel is the cross-encoder the catalog was tuned with.
const DefaultModel = "BAAI/bge-reranker-v2-m3"

// CrossEncoderConfig configures a CrossEncoder.
type CrossEncoderConfig struct {
	Flavor  string
	BaseURL string // POST {BaseURL}/rerank
	APIKey  string
	Model   string
	Timeout time.Duration
	Retry   genai.RetryConfig
}

// CrossEncoder scores (query, document) pairs with a hosted cross-encoder.
type CrossEncoder struct {
	flavor     string
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
	retry      genai.RetryConfig
}

// NewCrossEncoder validates cfg and creates the client.
func NewCrossEncoder(cfg CrossEncoderConfig) (*CrossEncoder, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("rerank base URL is required")
	}
	flavor := cfg.Flavor
	if flavor == "" {
		flavor = FlavorTEI
	}
	if flavor != FlavorTEI && flavor != FlavorCohere {
		return nil, fmt.Errorf("unsupported rerank flavor: %s", flavor)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry = genai.DefaultRetryConfig()
	}

	return &CrossEncoder{
		flavor:     flavor,
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/rerank",
		apiKey:     cfg.APIKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		retry:      retry,
	}, nil
}

// Model returns the model identifier.
func (c *CrossEncoder) Model() string { return c.model }

type teiRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
	Truncate  bool     `json:"truncate"`
}

type teiResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

type cohereRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type cohereResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Score sends all documents in one request.
func (c *CrossEncoder) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	if len(docs) == 0 {
		return []float64{}, nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		// Hosted servers reject empty inputs.
		if strings.TrimSpace(d) == "" {
			d = " "
		}
		texts[i] = d
	}

	var body any
	if c.flavor == FlavorCohere {
		body = cohereRequest{Model: c.model, Query: query, Documents: texts, TopN: len(texts)}
	} else {
		body = teiRequest{Query: query, Texts: texts, Truncate: true}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var scores []float64
	start := time.Now()
	err = genai.WithRetryNotify(ctx, c.retry, func(attempt int, err error) {
		slog.WarnContext(ctx, "rerank request failed, retrying",
			"model", c.model,
			"attempt", attempt,
			"error", err)
	}, func() error {
		raw, err := c.post(ctx, payload)
		if err != nil {
			return err
		}
		scores, err = c.decode(raw, len(docs))
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "rerank completed",
		"model", c.model,
		"documents", len(docs),
		"duration_ms", time.Since(start).Milliseconds())
	return scores, nil
}

func (c *CrossEncoder) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, genai.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &genai.APIError{
			Err:        fmt.Errorf("rerank endpoint: %s", bytes.TrimSpace(raw)),
			StatusCode: resp.StatusCode,
			RetryAfter: genai.ParseRetryAfter(resp.Header),
		}
	}
	return raw, nil
}

// decode maps index-tagged results back to document order. Every document
// must be scored exactly once.
func (c *CrossEncoder) decode(raw []byte, n int) ([]float64, error) {
	type pair struct {
		index int
		score float64
	}
	var pairs []pair

	if c.flavor == FlavorCohere {
		var resp cohereResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, genai.Permanent(fmt.Errorf("decode response: %w", err))
		}
		for _, r := range resp.Results {
			pairs = append(pairs, pair{r.Index, r.RelevanceScore})
		}
	} else {
		var resp []teiResult
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, genai.Permanent(fmt.Errorf("decode response: %w", err))
		}
		for _, r := range resp {
			pairs = append(pairs, pair{r.Index, r.Score})
		}
	}

	if len(pairs) != n {
		return nil, genai.Permanent(fmt.Errorf("rerank endpoint returned %d scores for %d documents", len(pairs), n))
	}
	scores := make([]float64, n)
	seen := make([]bool, n)
	for _, p := range pairs {
		if p.index < 0 || p.index >= n || seen[p.index] {
			return nil, genai.Permanent(fmt.Errorf("rerank endpoint returned invalid index %d", p.index))
		}
		seen[p.index] = true
		scores[p.index] = p.score
	}
	return scores, nil
}

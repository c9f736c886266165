// Package config provides application configuration management.
// It loads settings from environment variables (optionally seeded from a
// .env file) and validates them once at startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Embedding providers.
const (
	EmbeddingProviderOpenAI = "openai" // any OpenAI-compatible /embeddings endpoint
	EmbeddingProviderGemini = "gemini"
)

// Rerank providers.
const (
	RerankProviderTEI    = "tei"    // text-embeddings-inference /rerank
	RerankProviderCohere = "cohere" // Cohere, Jina, Infinity, vLLM /rerank
	RerankProviderBM25   = "bm25"   // local lexical scoring
)

// Config holds all application configuration
type Config struct {
	// Server Configuration
	Port            string
	LogLevel        string
	ServiceName     string
	ShutdownTimeout time.Duration
	TurnTimeout     time.Duration

	// Data Configuration
	DataDir        string
	CatalogPath    string // .csv or .db/.sqlite
	CatalogTable   string // table name for SQLite catalogs
	EmbeddingsPath string

	Embedding EmbeddingConfig
	Rerank    RerankConfig
	LLM       LLMConfig
	Pipeline  PipelineConfig

	// Sessions
	SessionTTL        time.Duration
	SessionMaxHistory int // messages kept per session, 0 = unlimited

	// Per-client turn rate limit (token bucket)
	ClientRateBurst  float64
	ClientRateRefill float64 // tokens per second

	// Warmup
	WarmupOnStart     bool
	WaitForWarmup     bool
	WarmupGracePeriod time.Duration

	R2 R2Config

	// Sentry
	SentryDSN         string
	SentryEnvironment string
	SentryRelease     string
	SentrySampleRate  float64

	// Better Stack
	BetterStackToken    string
	BetterStackEndpoint string

	// Metrics Authentication
	MetricsAuthEnabled bool
	MetricsUsername    string
	MetricsPassword    string
}

// EmbeddingConfig selects the query/document embedding model.
type EmbeddingConfig struct {
	Provider     string
	BaseURL      string
	APIKey       string
	Model        string
	Dimensions   int // 0 = model default
	BatchSize    int // texts per request in the offline builder
	GeminiAPIKey string
}

// RerankConfig selects the pairwise relevance model.
type RerankConfig struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
}

// LLMConfig configures the chat completion endpoint.
type LLMConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int // 0 = provider default
}

// PipelineConfig bounds retrieval and reranking.
type PipelineConfig struct {
	CandidatePool int
	DefaultTopK   int
	MaxTopK       int
}

// R2Config configures artifact storage on Cloudflare R2 (or any S3 endpoint).
type R2Config struct {
	Enabled         bool
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Endpoint        string // overrides the account-derived endpoint
	CatalogKey      string
	EmbeddingsKey   string
}

// Defaults shared with the offline builder.
const (
	DefaultEmbeddingModel = "BAAI/bge-m3"
	DefaultRerankModel    = "BAAI/bge-reranker-v2-m3"
	DefaultLLMBaseURL     = "https://openrouter.ai/api/v1"
	DefaultLLMModel       = "google/gemma-3-27b-it"
	DefaultCandidatePool  = 20
	DefaultTopK           = 5
	DefaultMaxTopK        = 10
)

// Load reads configuration from environment variables.
// It attempts to load .env file first, then reads from env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv(EnvDataDir, getDefaultDataDir())

	cfg := &Config{
		Port:            getEnv(EnvPort, "10000"),
		LogLevel:        getEnv(EnvLogLevel, "info"),
		ServiceName:     getEnv(EnvServiceName, "ut-course-advisor"),
		ShutdownTimeout: getDurationEnv(EnvShutdownTimeout, 30*time.Second),
		TurnTimeout:     getDurationEnv(EnvTurnTimeout, TurnTimeout),

		DataDir:        dataDir,
		CatalogPath:    getEnv(EnvCatalogPath, filepath.Join(dataDir, "courses.csv")),
		CatalogTable:   getEnv(EnvCatalogTable, "courses"),
		EmbeddingsPath: getEnv(EnvEmbeddingsPath, filepath.Join(dataDir, "embeddings.bin.zst")),

		Embedding: EmbeddingConfig{
			Provider:     strings.ToLower(getEnv(EnvEmbeddingProvider, EmbeddingProviderOpenAI)),
			BaseURL:      getEnv(EnvEmbeddingBaseURL, "http://localhost:8080/v1"),
			APIKey:       getEnv(EnvEmbeddingAPIKey, ""),
			Model:        getEnv(EnvEmbeddingModel, DefaultEmbeddingModel),
			Dimensions:   getIntEnv(EnvEmbeddingDimensions, 0),
			BatchSize:    getIntEnv(EnvEmbeddingBatchSize, 8),
			GeminiAPIKey: getEnv(EnvGeminiAPIKey, ""),
		},
		Rerank: RerankConfig{
			Provider: strings.ToLower(getEnv(EnvRerankProvider, RerankProviderTEI)),
			BaseURL:  getEnv(EnvRerankBaseURL, "http://localhost:8081"),
			APIKey:   getEnv(EnvRerankAPIKey, ""),
			Model:    getEnv(EnvRerankModel, DefaultRerankModel),
		},
		LLM: LLMConfig{
			BaseURL:     getEnv(EnvLLMBaseURL, DefaultLLMBaseURL),
			APIKey:      getEnv(EnvLLMAPIKey, ""),
			Model:       getEnv(EnvLLMModel, DefaultLLMModel),
			Temperature: getFloatEnv(EnvLLMTemperature, 0.2),
			MaxTokens:   getIntEnv(EnvLLMMaxTokens, 0),
		},
		Pipeline: PipelineConfig{
			CandidatePool: getIntEnv(EnvCandidatePool, DefaultCandidatePool),
			DefaultTopK:   getIntEnv(EnvDefaultTopK, DefaultTopK),
			MaxTopK:       getIntEnv(EnvMaxTopK, DefaultMaxTopK),
		},

		SessionTTL:        getDurationEnv(EnvSessionTTL, 2*time.Hour),
		SessionMaxHistory: getIntEnv(EnvSessionMaxHistory, 40),

		ClientRateBurst:  getFloatEnv(EnvClientRateBurst, 10),
		ClientRateRefill: getFloatEnv(EnvClientRateRefill, 0.2), // 1 per 5s

		WarmupOnStart:     getBoolEnv(EnvWarmupOnStart, true),
		WaitForWarmup:     getBoolEnv(EnvWarmupWait, true),
		WarmupGracePeriod: getDurationEnv(EnvWarmupGracePeriod, WarmupGracePeriod),

		R2: R2Config{
			Enabled:         getBoolEnv(EnvR2Enabled, false),
			AccountID:       getEnv(EnvR2AccountID, ""),
			AccessKeyID:     getEnv(EnvR2AccessKeyID, ""),
			SecretAccessKey: getEnv(EnvR2SecretAccessKey, ""),
			BucketName:      getEnv(EnvR2BucketName, ""),
			Endpoint:        getEnv(EnvR2Endpoint, ""),
			CatalogKey:      getEnv(EnvR2CatalogKey, "catalog/courses.csv"),
			EmbeddingsKey:   getEnv(EnvR2EmbeddingsKey, "catalog/embeddings.bin.zst"),
		},

		SentryDSN:         getEnv(EnvSentryDSN, ""),
		SentryEnvironment: getEnv(EnvSentryEnvironment, "production"),
		SentryRelease:     getEnv(EnvSentryRelease, ""),
		SentrySampleRate:  getFloatEnv(EnvSentrySampleRate, 1.0),

		BetterStackToken:    getEnv(EnvBetterStackToken, ""),
		BetterStackEndpoint: getEnv(EnvBetterStackEndpoint, ""),

		MetricsAuthEnabled: getBoolEnv(EnvMetricsAuthEnabled, false),
		MetricsUsername:    getEnv(EnvMetricsUsername, "prometheus"),
		MetricsPassword:    getEnv(EnvMetricsPassword, ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvPort))
	}
	if c.CatalogPath == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvCatalogPath))
	}
	if c.EmbeddingsPath == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvEmbeddingsPath))
	}
	if c.TurnTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvTurnTimeout, c.TurnTimeout))
	}

	errs = append(errs, c.Embedding.validate()...)
	errs = append(errs, c.Rerank.validate()...)
	errs = append(errs, c.Pipeline.validate()...)

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("%s must be within [0, 2], got %v", EnvLLMTemperature, c.LLM.Temperature))
	}
	if c.LLM.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("%s cannot be negative, got %d", EnvLLMMaxTokens, c.LLM.MaxTokens))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvSessionTTL, c.SessionTTL))
	}
	if c.SessionMaxHistory < 0 {
		errs = append(errs, fmt.Errorf("%s cannot be negative, got %d", EnvSessionMaxHistory, c.SessionMaxHistory))
	}
	if c.ClientRateBurst < 1 || c.ClientRateRefill <= 0 {
		errs = append(errs, fmt.Errorf("client rate limit needs burst >= 1 and refill > 0, got %v/%v", c.ClientRateBurst, c.ClientRateRefill))
	}
	if c.R2.Enabled {
		if c.R2.AccessKeyID == "" || c.R2.SecretAccessKey == "" || c.R2.BucketName == "" {
			errs = append(errs, errors.New("R2 requires access key, secret key and bucket name"))
		}
		if c.R2.AccountID == "" && c.R2.Endpoint == "" {
			errs = append(errs, fmt.Errorf("R2 requires %s or %s", EnvR2AccountID, EnvR2Endpoint))
		}
	}
	if c.SentrySampleRate < 0 || c.SentrySampleRate > 1 {
		errs = append(errs, fmt.Errorf("%s must be within [0, 1], got %v", EnvSentrySampleRate, c.SentrySampleRate))
	}
	if c.MetricsAuthEnabled && c.MetricsPassword == "" {
		errs = append(errs, fmt.Errorf("%s is required when metrics auth is enabled", EnvMetricsPassword))
	}

	return errors.Join(errs...)
}

func (e EmbeddingConfig) validate() []error {
	var errs []error
	switch e.Provider {
	case EmbeddingProviderOpenAI:
		if e.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s is required for provider %q", EnvEmbeddingBaseURL, e.Provider))
		}
	case EmbeddingProviderGemini:
		if e.GeminiAPIKey == "" {
			errs = append(errs, fmt.Errorf("%s is required for provider %q", EnvGeminiAPIKey, e.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("%s must be one of %q, %q, got %q",
			EnvEmbeddingProvider, EmbeddingProviderOpenAI, EmbeddingProviderGemini, e.Provider))
	}
	if e.Model == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvEmbeddingModel))
	}
	if e.Dimensions < 0 {
		errs = append(errs, fmt.Errorf("%s cannot be negative, got %d", EnvEmbeddingDimensions, e.Dimensions))
	}
	if e.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", EnvEmbeddingBatchSize, e.BatchSize))
	}
	return errs
}

func (r RerankConfig) validate() []error {
	providers := []string{RerankProviderTEI, RerankProviderCohere, RerankProviderBM25}
	if !slices.Contains(providers, r.Provider) {
		return []error{fmt.Errorf("%s must be one of %v, got %q", EnvRerankProvider, providers, r.Provider)}
	}
	if r.Provider != RerankProviderBM25 && r.BaseURL == "" {
		return []error{fmt.Errorf("%s is required for provider %q", EnvRerankBaseURL, r.Provider)}
	}
	return nil
}

func (p PipelineConfig) validate() []error {
	var errs []error
	if p.MaxTopK < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", EnvMaxTopK, p.MaxTopK))
	}
	if p.DefaultTopK < 1 || p.DefaultTopK > p.MaxTopK {
		errs = append(errs, fmt.Errorf("%s must be within [1, %d], got %d", EnvDefaultTopK, p.MaxTopK, p.DefaultTopK))
	}
	if p.CandidatePool < p.MaxTopK {
		errs = append(errs, fmt.Errorf("%s must be at least %s (%d), got %d", EnvCandidatePool, EnvMaxTopK, p.MaxTopK, p.CandidatePool))
	}
	return errs
}

// ClampTopK bounds a requested result count to [1, MaxTopK]; zero selects the default.
func (p PipelineConfig) ClampTopK(k int) int {
	switch {
	case k == 0:
		return p.DefaultTopK
	case k < 1:
		return 1
	case k > p.MaxTopK:
		return p.MaxTopK
	default:
		return k
	}
}

// HasLLM reports whether a chat completion key is configured.
func (c *Config) HasLLM() bool {
	return c.LLM.APIKey != ""
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getBoolEnv retrieves boolean environment variable with fallback to default value
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getDefaultDataDir returns platform-specific default data directory
func getDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		return "./data"
	}
	return "/data"
}

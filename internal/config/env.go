package config

//nolint:gosec,revive // Environment variable keys are not credentials and do not need per-const comments.
const (
	// Server
	EnvPort            = "UTCA_PORT"
	EnvLogLevel        = "UTCA_LOG_LEVEL"
	EnvShutdownTimeout = "UTCA_SHUTDOWN_TIMEOUT"
	EnvServiceName     = "UTCA_SERVICE_NAME"
	EnvTurnTimeout     = "UTCA_TURN_TIMEOUT"

	// Data
	EnvDataDir        = "UTCA_DATA_DIR"
	EnvCatalogPath    = "UTCA_CATALOG_PATH"
	EnvCatalogTable   = "UTCA_CATALOG_TABLE"
	EnvEmbeddingsPath = "UTCA_EMBEDDINGS_PATH"

	// Embedding model
	EnvEmbeddingProvider   = "UTCA_EMBEDDING_PROVIDER"
	EnvEmbeddingBaseURL    = "UTCA_EMBEDDING_BASE_URL"
	EnvEmbeddingAPIKey     = "UTCA_EMBEDDING_API_KEY"
	EnvEmbeddingModel      = "UTCA_EMBEDDING_MODEL"
	EnvEmbeddingDimensions = "UTCA_EMBEDDING_DIMENSIONS"
	EnvEmbeddingBatchSize  = "UTCA_EMBEDDING_BATCH_SIZE"
	EnvGeminiAPIKey        = "UTCA_GEMINI_API_KEY"

	// Reranker
	EnvRerankProvider = "UTCA_RERANK_PROVIDER"
	EnvRerankBaseURL  = "UTCA_RERANK_BASE_URL"
	EnvRerankAPIKey   = "UTCA_RERANK_API_KEY"
	EnvRerankModel    = "UTCA_RERANK_MODEL"

	// Chat model
	EnvLLMBaseURL     = "UTCA_LLM_BASE_URL"
	EnvLLMAPIKey      = "UTCA_LLM_API_KEY"
	EnvLLMModel       = "UTCA_LLM_MODEL"
	EnvLLMTemperature = "UTCA_LLM_TEMPERATURE"
	EnvLLMMaxTokens   = "UTCA_LLM_MAX_TOKENS"

	// Pipeline
	EnvCandidatePool = "UTCA_CANDIDATE_POOL"
	EnvDefaultTopK   = "UTCA_DEFAULT_TOP_K"
	EnvMaxTopK       = "UTCA_MAX_TOP_K"

	// Sessions
	EnvSessionTTL        = "UTCA_SESSION_TTL"
	EnvSessionMaxHistory = "UTCA_SESSION_MAX_HISTORY"

	// Rate Limits
	EnvClientRateBurst  = "UTCA_CLIENT_RATE_BURST"
	EnvClientRateRefill = "UTCA_CLIENT_RATE_REFILL"

	// Background Tasks
	EnvWarmupOnStart     = "UTCA_WARMUP_ON_START"
	EnvWarmupWait        = "UTCA_WARMUP_WAIT"
	EnvWarmupGracePeriod = "UTCA_WARMUP_GRACE_PERIOD"

	// R2 Artifact Storage
	EnvR2Enabled         = "UTCA_R2_ENABLED"
	EnvR2AccountID       = "UTCA_R2_ACCOUNT_ID"
	EnvR2AccessKeyID     = "UTCA_R2_ACCESS_KEY_ID"
	EnvR2SecretAccessKey = "UTCA_R2_SECRET_ACCESS_KEY"
	EnvR2BucketName      = "UTCA_R2_BUCKET_NAME"
	EnvR2Endpoint        = "UTCA_R2_ENDPOINT"
	EnvR2CatalogKey      = "UTCA_R2_CATALOG_KEY"
	EnvR2EmbeddingsKey   = "UTCA_R2_EMBEDDINGS_KEY"

	// Sentry Feature
	EnvSentryDSN         = "UTCA_SENTRY_DSN"
	EnvSentryEnvironment = "UTCA_SENTRY_ENVIRONMENT"
	EnvSentryRelease     = "UTCA_SENTRY_RELEASE"
	EnvSentrySampleRate  = "UTCA_SENTRY_SAMPLE_RATE"

	// Better Stack Feature
	EnvBetterStackToken    = "UTCA_BETTERSTACK_TOKEN"
	EnvBetterStackEndpoint = "UTCA_BETTERSTACK_ENDPOINT"

	// Metrics Auth Feature
	EnvMetricsAuthEnabled = "UTCA_METRICS_AUTH_ENABLED"
	EnvMetricsUsername    = "UTCA_METRICS_USERNAME"
	EnvMetricsPassword    = "UTCA_METRICS_PASSWORD"
)

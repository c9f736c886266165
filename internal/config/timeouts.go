// Package config provides centralized timeout constants for the application.
//
// A chat turn is bounded by TurnTimeout, which covers catalog access,
// embedding the query, reranking the pool and streaming the language model
// answer. Model calls get their own shorter per-request deadlines so a hung
// endpoint fails fast enough to leave room for the error reply.
package config

import "time"

// HTTP server timeouts
const (
	// HTTPRead is the server read timeout. Request bodies are small JSON documents.
	HTTPRead = 10 * time.Second

	// HTTPWrite must outlast TurnTimeout so streamed answers are not cut off.
	HTTPWrite = 150 * time.Second

	// HTTPIdle is the keep-alive idle timeout.
	HTTPIdle = 120 * time.Second

	// ReadinessCheckTimeout bounds a single /readyz evaluation.
	ReadinessCheckTimeout = 3 * time.Second
)

// Turn and model timeouts
const (
	// TurnTimeout is the default caller-imposed deadline around one pipeline
	// run plus the language model answer.
	TurnTimeout = 120 * time.Second

	// EmbeddingRequest bounds one embedding API request.
	EmbeddingRequest = 30 * time.Second

	// RerankRequest bounds one cross-encoder request over the whole pool.
	RerankRequest = 30 * time.Second

	// ModelInit bounds lazy model handle initialization (client setup and probe).
	ModelInit = 60 * time.Second

	// ArtifactDownload bounds fetching one artifact from object storage.
	ArtifactDownload = 5 * time.Minute
)

// Background task settings
const (
	// WarmupGracePeriod is how long /readyz waits for the first catalog load
	// before reporting ready anyway.
	WarmupGracePeriod = 3 * time.Minute

	// SessionCleanupInterval is how often expired sessions are evicted.
	SessionCleanupInterval = 5 * time.Minute

	// RateLimiterCleanupInterval is how often idle per-client limiters are dropped.
	RateLimiterCleanupInterval = 5 * time.Minute

	// MetricsUpdateInterval is how often gauges are refreshed.
	MetricsUpdateInterval = 30 * time.Second
)

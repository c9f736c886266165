// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/garyellow/ut-course-advisor/internal/advisor"
	"github.com/garyellow/ut-course-advisor/internal/buildinfo"
	"github.com/garyellow/ut-course-advisor/internal/catalog"
	"github.com/garyellow/ut-course-advisor/internal/config"
	"github.com/garyellow/ut-course-advisor/internal/genai"
	"github.com/garyellow/ut-course-advisor/internal/lazy"
	"github.com/garyellow/ut-course-advisor/internal/logger"
	"github.com/garyellow/ut-course-advisor/internal/metrics"
	"github.com/garyellow/ut-course-advisor/internal/pipeline"
	"github.com/garyellow/ut-course-advisor/internal/prompt"
	"github.com/garyellow/ut-course-advisor/internal/r2client"
	"github.com/garyellow/ut-course-advisor/internal/ratelimit"
	"github.com/garyellow/ut-course-advisor/internal/rerank"
	"github.com/garyellow/ut-course-advisor/internal/sentry"
	"github.com/garyellow/ut-course-advisor/internal/session"
	"github.com/garyellow/ut-course-advisor/internal/warmup"
)

// CatalogSource is the catalog as seen by the HTTP layer.
type CatalogSource interface {
	Load(ctx context.Context) (*catalog.Snapshot, error)
	IsReady() bool
}

// Application manages the application lifecycle and dependencies.
type Application struct {
	cfg            *config.Config
	logger         *logger.Logger
	metrics        *metrics.Metrics
	registry       *prometheus.Registry
	catalog        CatalogSource
	embedder       *lazy.Handle[genai.Embedder]
	scorer         *lazy.Handle[rerank.Scorer]
	chat           *genai.ChatClient
	advisor        *advisor.Controller
	sessions       *session.Store
	clientLimiter  *ratelimit.KeyedLimiter
	readinessState *warmup.ReadinessState
	server         *http.Server
	wg             sync.WaitGroup // background goroutines, waited on during shutdown
}

// Initialize creates and initializes a new application with all dependencies.
// Models and the catalog are not contacted here; they load lazily or during
// warmup.
func Initialize(ctx context.Context, cfg *config.Config) (*Application, error) {
	log := logger.NewWithOptions(cfg.LogLevel, os.Stdout, logger.Options{
		BetterStackToken:    cfg.BetterStackToken,
		BetterStackEndpoint: cfg.BetterStackEndpoint,
	})

	log = log.WithField("service", cfg.ServiceName)
	if host, err := os.Hostname(); err == nil && host != "" {
		log = log.WithField("instance_id", host)
	}

	// Package-level slog calls pick up request_id and session_id from ctx.
	slog.SetDefault(log.Logger)

	log.WithField("version", buildinfo.Version).
		WithField("commit", buildinfo.Commit).
		Info("Initializing application...")
	if cfg.BetterStackToken != "" {
		log.WithField("endpoint", cfg.BetterStackEndpoint).Info("Better Stack logging enabled")
	}

	if err := sentry.Initialize(sentry.Config{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     sentryRelease(cfg),
		SampleRate:  cfg.SentrySampleRate,
	}); err != nil {
		log.WithError(err).Warn("Sentry initialization failed, error reporting disabled")
	} else if sentry.IsEnabled() {
		log.WithField("environment", cfg.SentryEnvironment).Info("Sentry error reporting enabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	m := metrics.New(registry)

	var fetcher catalog.ArtifactFetcher
	if cfg.R2.Enabled {
		client, err := newR2Client(ctx, cfg.R2)
		if err != nil {
			return nil, fmt.Errorf("r2: %w", err)
		}
		fetcher = client
		log.WithField("bucket", cfg.R2.BucketName).Info("R2 artifact storage enabled")
	}

	store := catalog.NewStore(catalog.Options{
		CatalogPath:    cfg.CatalogPath,
		CatalogTable:   cfg.CatalogTable,
		EmbeddingsPath: cfg.EmbeddingsPath,
		Fetcher:        fetcher,
		CatalogKey:     cfg.R2.CatalogKey,
		EmbeddingsKey:  cfg.R2.EmbeddingsKey,
		Logger:         log,
		Observer:       m.ObserveModelInit,
	})

	embedder := newEmbedderHandle(cfg, m)
	scorer := newScorerHandle(cfg, m)

	composer, err := prompt.NewComposer()
	if err != nil {
		return nil, fmt.Errorf("prompt: %w", err)
	}

	pl, err := pipeline.New(pipeline.Options{
		Catalog:  store,
		Embedder: embedder,
		Scorer:   scorer,
		Composer: composer,
		Settings: cfg.Pipeline,
		Metrics:  m,
		Logger:   log,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	var chat *genai.ChatClient
	opts := advisor.Options{Recommender: pl, Metrics: m, Logger: log}
	if cfg.HasLLM() {
		chat, err = genai.NewChatClient(genai.ChatConfig{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.TurnTimeout,
			Retry:       genai.DefaultRetryConfig(),
		})
		if err != nil {
			return nil, fmt.Errorf("chat: %w", err)
		}
		opts.Chat = chat
		log.WithField("model", cfg.LLM.Model).Info("Chat model enabled")
	} else {
		log.Warn("No LLM API key configured, turns with matches will fail")
	}

	sessions := session.NewStore(session.Config{
		TTL:           cfg.SessionTTL,
		MaxHistory:    cfg.SessionMaxHistory,
		CleanupPeriod: config.SessionCleanupInterval,
		Metrics:       m,
	})
	opts.Sessions = sessions

	controller, err := advisor.New(opts)
	if err != nil {
		return nil, fmt.Errorf("advisor: %w", err)
	}

	clientLimiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:          "client",
		Burst:         cfg.ClientRateBurst,
		RefillRate:    cfg.ClientRateRefill,
		CleanupPeriod: config.RateLimiterCleanupInterval,
		Metrics:       m,
	})

	gin.SetMode(gin.ReleaseMode)

	app := &Application{
		cfg:            cfg,
		logger:         log,
		metrics:        m,
		registry:       registry,
		catalog:        store,
		embedder:       embedder,
		scorer:         scorer,
		chat:           chat,
		advisor:        controller,
		sessions:       sessions,
		clientLimiter:  clientLimiter,
		readinessState: warmup.NewReadinessState(cfg.WarmupGracePeriod),
	}

	app.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.router(),
		ReadHeaderTimeout: config.HTTPRead,
		ReadTimeout:       config.HTTPRead,
		WriteTimeout:      config.HTTPWrite,
		IdleTimeout:       config.HTTPIdle,
	}

	log.WithFields(map[string]any{
		"catalog":            cfg.CatalogPath,
		"embeddings":         cfg.EmbeddingsPath,
		"embedding_provider": cfg.Embedding.Provider,
		"rerank_provider":    cfg.Rerank.Provider,
	}).Info("Initialization complete")
	return app, nil
}

func sentryRelease(cfg *config.Config) string {
	if cfg.SentryRelease != "" {
		return cfg.SentryRelease
	}
	return buildinfo.Version
}

func newR2Client(ctx context.Context, cfg config.R2Config) (*r2client.Client, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = r2client.EndpointFor(cfg.AccountID)
	}
	return r2client.New(ctx, r2client.Config{
		Endpoint:    endpoint,
		AccessKeyID: cfg.AccessKeyID,
		SecretKey:   cfg.SecretAccessKey,
		BucketName:  cfg.BucketName,
	})
}

// newEmbedderHandle defers client creation to first use so a model server
// that is still booting does not block startup.
func newEmbedderHandle(cfg *config.Config, m *metrics.Metrics) *lazy.Handle[genai.Embedder] {
	ecfg := genai.EmbedderConfig{
		Provider:   genai.Provider(cfg.Embedding.Provider),
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		TaskType:   genai.TaskRetrievalQuery,
		Timeout:    config.EmbeddingRequest,
		Retry:      genai.DefaultRetryConfig(),
	}
	if ecfg.Provider == genai.ProviderGemini {
		ecfg.APIKey = cfg.Embedding.GeminiAPIKey
	}
	return lazy.New[genai.Embedder]("embedding", func(ctx context.Context) (genai.Embedder, error) {
		ctx, cancel := context.WithTimeout(ctx, config.ModelInit)
		defer cancel()
		return genai.NewEmbedder(ctx, ecfg)
	}, lazy.WithObserver[genai.Embedder](m.ObserveModelInit))
}

func newScorerHandle(cfg *config.Config, m *metrics.Metrics) *lazy.Handle[rerank.Scorer] {
	if cfg.Rerank.Provider == config.RerankProviderBM25 {
		return lazy.Ready[rerank.Scorer]("reranker", rerank.NewLexical())
	}
	rcfg := rerank.CrossEncoderConfig{
		Flavor:  cfg.Rerank.Provider,
		BaseURL: cfg.Rerank.BaseURL,
		APIKey:  cfg.Rerank.APIKey,
		Model:   cfg.Rerank.Model,
		Timeout: config.RerankRequest,
		Retry:   genai.DefaultRetryConfig(),
	}
	return lazy.New[rerank.Scorer]("reranker", func(context.Context) (rerank.Scorer, error) {
		return rerank.NewCrossEncoder(rcfg)
	}, lazy.WithObserver[rerank.Scorer](m.ObserveModelInit))
}

// Run starts the HTTP server and background jobs and blocks until SIGINT or
// SIGTERM.
//
// Shutdown order:
//  1. Cancel context so background jobs stop
//  2. Wait for background jobs
//  3. Drain the HTTP server, then release limiters, sessions and log sinks
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.startBackgroundJobs(ctx)
	a.startHTTPServer()

	sig := a.waitForShutdownSignal()
	a.logger.WithField("signal", sig.String()).Info("Received shutdown signal")

	cancel()

	a.logger.Info("Waiting for background jobs to finish...")
	start := time.Now()
	a.wg.Wait()
	a.logger.WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("All background jobs completed")

	return a.shutdown()
}

// startBackgroundJobs starts all background goroutines tracked by WaitGroup.
func (a *Application) startBackgroundJobs(ctx context.Context) {
	if a.cfg.WarmupOnStart {
		a.wg.Go(func() {
			a.runWarmup(ctx)
		})
	} else {
		a.readinessState.MarkReady()
	}
	a.wg.Go(func() {
		a.updateGaugeMetrics(ctx)
	})
}

func (a *Application) startHTTPServer() {
	go func() {
		a.logger.WithField("port", a.cfg.Port).Info("Starting HTTP server")
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.WithError(err).Error("HTTP server error")
		}
	}()
}

func (a *Application) waitForShutdownSignal() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return <-quit
}

// shutdown must run after background jobs have stopped.
func (a *Application) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	a.logger.Info("Stopping HTTP server...")
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("HTTP server shutdown error")
	}

	a.logger.Info("Closing resources...")
	if a.clientLimiter != nil {
		a.clientLimiter.Stop()
	}
	if a.sessions != nil {
		a.sessions.Stop()
	}

	if !sentry.Flush(2 * time.Second) {
		a.logger.Warn("Sentry flush timed out")
	}
	if err := a.logger.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Warn("Logger shutdown timed out")
	}

	a.logger.Info("Shutdown complete")
	return nil
}

// warmupTasks loads the catalog (required for readiness) and initializes the
// model clients. Model failures are retried on first use.
func (a *Application) warmupTasks() []warmup.Task {
	tasks := []warmup.Task{{
		Name:     "catalog",
		Required: true,
		Run: func(ctx context.Context) error {
			snap, err := a.catalog.Load(ctx)
			if err != nil {
				return err
			}
			a.metrics.SetCatalog(snap.Len(), snap.LoadedAt())
			return nil
		},
	}}
	if a.embedder != nil {
		tasks = append(tasks, warmup.HandleTask(a.embedder, false))
	}
	if a.scorer != nil {
		tasks = append(tasks, warmup.HandleTask(a.scorer, false))
	}
	return tasks
}

func (a *Application) runWarmup(ctx context.Context) {
	a.logger.Debug("Warmup job started")
	defer a.logger.Debug("Warmup job stopped")

	done := warmup.RunInBackground(a.warmupTasks(), a.readinessState, warmup.Options{
		Metrics: a.metrics,
		Logger:  a.logger,
	})

	select {
	case err := <-done:
		if err != nil {
			a.logger.WithError(err).Error("Warmup failed, catalog loads on first request")
			return
		}
		a.logger.Info("Service marked as ready after warmup")
	case <-ctx.Done():
		a.logger.Debug("Warmup received shutdown signal")
	}
}

// updateGaugeMetrics periodically records session and limiter counts.
func (a *Application) updateGaugeMetrics(ctx context.Context) {
	ticker := time.NewTicker(config.MetricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.metrics.SetActiveSessions(a.sessions.Len())
		}
	}
}

// Package main builds the embedding artifact for the course catalog and
// optionally publishes both files to object storage.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/garyellow/ut-course-advisor/internal/config"
	"github.com/garyellow/ut-course-advisor/internal/genai"
	"github.com/garyellow/ut-course-advisor/internal/logger"
	"github.com/garyellow/ut-course-advisor/internal/r2client"
)

// CLI flags
var (
	catalogFlag = flag.String("catalog", "", "Catalog path, .csv or SQLite (default from UTCA_CATALOG_PATH)")
	tableFlag   = flag.String("table", "", "SQLite table name (default from UTCA_CATALOG_TABLE)")
	outFlag     = flag.String("out", "", "Artifact output path (default from UTCA_EMBEDDINGS_PATH)")
	batchFlag   = flag.Int("batch", 0, "Texts per embedding request (0 = use config default)")
	workersFlag = flag.Int("workers", 4, "Concurrent embedding requests")
	uploadFlag  = flag.Bool("upload", false, "Upload catalog and artifact to R2 after building")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel).WithModule("embed")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := buildOptions{
		CatalogPath: firstNonEmpty(*catalogFlag, cfg.CatalogPath),
		Table:       firstNonEmpty(*tableFlag, cfg.CatalogTable),
		OutPath:     firstNonEmpty(*outFlag, cfg.EmbeddingsPath),
		BatchSize:   *batchFlag,
		Workers:     *workersFlag,
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = cfg.Embedding.BatchSize
	}

	if err := run(ctx, cfg, opts, *uploadFlag, log); err != nil {
		log.WithError(err).Error("Embedding build failed")
		_, _ = fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts buildOptions, upload bool, log *logger.Logger) error {
	start := time.Now()

	ecfg := genai.EmbedderConfig{
		Provider:   genai.Provider(cfg.Embedding.Provider),
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		TaskType:   genai.TaskRetrievalDocument,
		Timeout:    config.EmbeddingRequest,
		Retry:      genai.DefaultRetryConfig(),
	}
	if ecfg.Provider == genai.ProviderGemini {
		ecfg.APIKey = cfg.Embedding.GeminiAPIKey
	}
	embedder, err := genai.NewEmbedder(ctx, ecfg)
	if err != nil {
		return fmt.Errorf("embedder: %w", err)
	}
	log.WithField("model", embedder.Model()).
		WithField("catalog", opts.CatalogPath).
		Info("Building embedding artifact")

	stats, err := build(ctx, embedder, opts, log)
	if err != nil {
		return err
	}
	log.WithFields(map[string]any{
		"rows":        stats.Rows,
		"dimension":   stats.Dimension,
		"fallbacks":   stats.Fallbacks,
		"out":         opts.OutPath,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Embedding artifact written")

	if !upload {
		return nil
	}
	if !cfg.R2.Enabled {
		return fmt.Errorf("upload requested but %s is not set", config.EnvR2Enabled)
	}
	return publish(ctx, cfg.R2, opts, log)
}

// publish uploads the catalog and the artifact, artifact last, so a reader
// never sees a new artifact next to an old catalog for long.
func publish(ctx context.Context, cfg config.R2Config, opts buildOptions, log *logger.Logger) error {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = r2client.EndpointFor(cfg.AccountID)
	}
	client, err := r2client.New(ctx, r2client.Config{
		Endpoint:    endpoint,
		AccessKeyID: cfg.AccessKeyID,
		SecretKey:   cfg.SecretAccessKey,
		BucketName:  cfg.BucketName,
	})
	if err != nil {
		return fmt.Errorf("r2: %w", err)
	}

	uploads := []struct {
		key, path, contentType string
	}{
		{cfg.CatalogKey, opts.CatalogPath, catalogContentType(opts.CatalogPath)},
		{cfg.EmbeddingsKey, opts.OutPath, "application/zstd"},
	}
	for _, u := range uploads {
		etag, err := client.Upload(ctx, u.key, u.path, u.contentType)
		if err != nil {
			return fmt.Errorf("upload %s: %w", u.key, err)
		}
		log.WithField("key", u.key).WithField("etag", etag).Info("Uploaded")
	}
	fmt.Printf("✅ Uploaded %s and %s to bucket %s\n", cfg.CatalogKey, cfg.EmbeddingsKey, cfg.BucketName)
	return nil
}

func catalogContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "text/csv"
	default:
		return "application/vnd.sqlite3"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

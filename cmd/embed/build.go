package main

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/garyellow/ut-course-advisor/internal/catalog"
	domerrors "github.com/garyellow/ut-course-advisor/internal/errors"
	"github.com/garyellow/ut-course-advisor/internal/genai"
	"github.com/garyellow/ut-course-advisor/internal/logger"
)

type buildOptions struct {
	CatalogPath string
	Table       string
	OutPath     string
	BatchSize   int
	Workers     int
}

type buildStats struct {
	Rows      int
	Dimension int
	Fallbacks int // rows embedded from their name or code
}

// build embeds every catalog row and writes the artifact. The written file
// is read back and must hold exactly one vector per row.
func build(ctx context.Context, embedder genai.Embedder, opts buildOptions, log *logger.Logger) (buildStats, error) {
	courses, _, err := catalog.LoadCourses(ctx, opts.CatalogPath, opts.Table)
	if err != nil {
		return buildStats{}, fmt.Errorf("load catalog: %w", err)
	}
	if len(courses) == 0 {
		return buildStats{}, fmt.Errorf("catalog %s has no rows", opts.CatalogPath)
	}

	texts := make([]string, len(courses))
	stats := buildStats{Rows: len(courses)}
	for i := range courses {
		var fallback bool
		texts[i], fallback = documentText(&courses[i])
		if fallback {
			stats.Fallbacks++
		}
	}

	vectors, err := embedAll(ctx, embedder, texts, opts.BatchSize, opts.Workers, log)
	if err != nil {
		return buildStats{}, err
	}

	if err := catalog.WriteEmbeddingsFile(opts.OutPath, vectors); err != nil {
		return buildStats{}, fmt.Errorf("write artifact: %w", err)
	}

	written, err := catalog.ReadEmbeddingsFile(opts.OutPath)
	if err != nil {
		return buildStats{}, fmt.Errorf("verify artifact: %w", err)
	}
	if len(written) != len(courses) {
		return buildStats{}, &domerrors.ConsistencyError{Records: len(courses), Embeddings: len(written)}
	}
	stats.Dimension = len(written[0])
	return stats, nil
}

// documentText picks the text embedded for a course: the description, else
// a name, else the code. The flag reports a fallback.
func documentText(c *catalog.Course) (string, bool) {
	if d, ok := c.Description.Get(); ok && strings.TrimSpace(d) != "" {
		return d, false
	}
	for _, name := range []catalog.Text{c.NameEN, c.NameET} {
		if n, ok := name.Get(); ok && strings.TrimSpace(n) != "" {
			return n, true
		}
	}
	return c.Code, true
}

// embedAll embeds texts in batches with at most workers requests in flight.
// Output order matches input order.
func embedAll(ctx context.Context, embedder genai.Embedder, texts []string, batchSize, workers int, log *logger.Logger) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = 8
	}
	if workers <= 0 {
		workers = 1
	}

	out := make([][]float32, len(texts))
	batches := (len(texts) + batchSize - 1) / batchSize
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		g.Go(func() error {
			vecs, err := embedder.Embed(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed rows %d-%d: %w", start, end-1, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embed rows %d-%d: got %d vectors for %d texts", start, end-1, len(vecs), end-start)
			}
			copy(out[start:end], vecs)

			n := done.Add(1)
			if n%10 == 0 || int(n) == batches {
				log.WithField("batches", n).WithField("total", batches).Info("Embedding progress")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Package pipeline runs one recommendation query end to end: filter,
// retrieve, rerank, detect the answer language and compose the instruction
// for the chat model.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/garyellow/ut-course-advisor/internal/catalog"
	"github.com/garyellow/ut-course-advisor/internal/config"
	domerrors "github.com/garyellow/ut-course-advisor/internal/errors"
	"github.com/garyellow/ut-course-advisor/internal/filter"
	"github.com/garyellow/ut-course-advisor/internal/genai"
	"github.com/garyellow/ut-course-advisor/internal/langdetect"
	"github.com/garyellow/ut-course-advisor/internal/logger"
	"github.com/garyellow/ut-course-advisor/internal/metrics"
	"github.com/garyellow/ut-course-advisor/internal/prompt"
	"github.com/garyellow/ut-course-advisor/internal/rerank"
	"github.com/garyellow/ut-course-advisor/internal/retrieval"
)

// Status is the terminal state of a run.
type Status string

// Run states.
const (
	StatusReady Status = "ready"
	StatusEmpty Status = "empty"
)

// Stage names a pipeline step. Empty results record the stage that produced
// them.
type Stage string

// Pipeline stages.
const (
	StageCatalog   Stage = "catalog"
	StageFilter    Stage = "filter"
	StageRetrieval Stage = "retrieval"
	StageRerank    Stage = "rerank"
	StageCompose   Stage = "compose"
)

// Query is one user request.
type Query struct {
	Text    string
	Filters filter.Spec
	TopK    int               // 0 selects the configured default
	Locale  langdetect.Locale // empty means detect from Text
}

// Result is the outcome of a run. Instruction and Ranked are set only when
// Status is StatusReady.
type Result struct {
	Status        Status            `json:"status"`
	Stage         Stage             `json:"stage,omitempty"`
	Locale        langdetect.Locale `json:"locale"`
	Instruction   string            `json:"instruction,omitempty"`
	Ranked        []rerank.Ranked   `json:"ranked"`
	FilteredCount int               `json:"filtered_count"`
	PoolSize      int               `json:"pool_size"`
	TopK          int               `json:"top_k"`
	DroppedFacets []catalog.Facet   `json:"dropped_facets,omitempty"`
}

// CatalogSource yields the shared catalog snapshot.
type CatalogSource interface {
	Load(ctx context.Context) (*catalog.Snapshot, error)
}

// EmbedderSource yields the query embedder, typically a lazy handle.
type EmbedderSource interface {
	Get(ctx context.Context) (genai.Embedder, error)
}

// ScorerSource yields the reranking scorer, typically a lazy handle.
type ScorerSource interface {
	Get(ctx context.Context) (rerank.Scorer, error)
}

// Options wires a Pipeline.
type Options struct {
	Catalog  CatalogSource
	Embedder EmbedderSource
	Scorer   ScorerSource
	Composer *prompt.Composer
	Settings config.PipelineConfig
	Metrics  *metrics.Metrics
	Logger   *logger.Logger
}

// Pipeline is safe for concurrent use. Every run keeps its intermediate
// slices to itself; only the snapshot and model clients are shared.
type Pipeline struct {
	catalog  CatalogSource
	embedder EmbedderSource
	scorer   ScorerSource
	composer *prompt.Composer
	settings config.PipelineConfig
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// New creates a Pipeline. Zero settings fall back to the package defaults.
func New(opts Options) (*Pipeline, error) {
	var errs []error
	if opts.Catalog == nil {
		errs = append(errs, errors.New("catalog source is required"))
	}
	if opts.Embedder == nil {
		errs = append(errs, errors.New("embedder source is required"))
	}
	if opts.Scorer == nil {
		errs = append(errs, errors.New("scorer source is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	composer := opts.Composer
	if composer == nil {
		var err error
		if composer, err = prompt.NewComposer(); err != nil {
			return nil, err
		}
	}

	s := opts.Settings
	if s.CandidatePool < 1 {
		s.CandidatePool = retrieval.DefaultPoolSize
	}
	if s.MaxTopK < rerank.MinK || s.MaxTopK > rerank.MaxK {
		s.MaxTopK = rerank.MaxK
	}
	if s.DefaultTopK < rerank.MinK || s.DefaultTopK > s.MaxTopK {
		s.DefaultTopK = min(rerank.DefaultK, s.MaxTopK)
	}

	log := opts.Logger
	if log == nil {
		log = logger.New("info")
	}

	return &Pipeline{
		catalog:  opts.Catalog,
		embedder: opts.Embedder,
		scorer:   opts.Scorer,
		composer: composer,
		settings: s,
		metrics:  opts.Metrics,
		log:      log.WithModule("pipeline"),
	}, nil
}

// Settings returns the effective pool and top-K settings.
func (p *Pipeline) Settings() config.PipelineConfig {
	return p.settings
}

// Run executes the query. Empty filter or retrieval results are reported
// through Result.Status, not as errors; the models are never called for an
// empty filter selection.
//
// Errors match errors.ErrInvalidInput, errors.ErrDataUnavailable,
// errors.ErrConsistency or errors.ErrModelUnavailable when they stem from
// the query, the artifacts or the models respectively.
func (p *Pipeline) Run(ctx context.Context, q Query) (*Result, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, domerrors.NewValidationError("text", "query text is required")
	}
	if err := q.Filters.Validate(); err != nil {
		return nil, err
	}

	locale := q.Locale
	if locale == "" {
		locale = langdetect.Detect(text)
	}
	res := &Result{
		Locale: locale,
		Ranked: []rerank.Ranked{},
		TopK:   p.settings.ClampTopK(q.TopK),
	}
	log := p.log.WithField("locale", string(locale))

	var snap *catalog.Snapshot
	err := p.stage(StageCatalog, func() (err error) {
		snap, err = p.catalog.Load(ctx)
		return err
	})
	if err != nil {
		return nil, p.fail(StageCatalog, err)
	}

	spec, dropped := q.Filters.Restrict(snap.Available)
	res.DroppedFacets = dropped
	if len(dropped) > 0 {
		log.WithField("facets", dropped).Debug("Ignoring filters on unavailable columns")
	}

	var mask []bool
	_ = p.stage(StageFilter, func() error {
		mask = filter.ComputeMask(snap.Records(), spec)
		res.FilteredCount = filter.Count(mask)
		return nil
	})
	if res.FilteredCount == 0 {
		return p.empty(res, StageFilter), nil
	}

	var candidates []retrieval.Candidate
	err = p.stage(StageRetrieval, func() error {
		embedder, err := p.embedder.Get(ctx)
		if err != nil {
			return modelInitError("embedding", err)
		}
		candidates, err = retrieval.New(embedder).Retrieve(ctx, text, mask, snap.Records(), snap.Embeddings(), p.settings.CandidatePool)
		return err
	})
	if err != nil {
		return nil, p.fail(StageRetrieval, err)
	}
	res.PoolSize = len(candidates)
	if len(candidates) == 0 {
		return p.empty(res, StageRetrieval), nil
	}

	err = p.stage(StageRerank, func() error {
		scorer, err := p.scorer.Get(ctx)
		if err != nil {
			return modelInitError("reranker", err)
		}
		res.Ranked, err = rerank.Rerank(ctx, scorer, text, candidates, res.TopK)
		return err
	})
	if err != nil {
		return nil, p.fail(StageRerank, err)
	}

	err = p.stage(StageCompose, func() (err error) {
		res.Instruction, err = p.composer.Compose(res.Ranked, spec, locale)
		return err
	})
	if err != nil {
		return nil, p.fail(StageCompose, err)
	}

	res.Status = StatusReady
	p.metrics.RecordResult(string(StatusReady), string(StageCompose))
	log.WithFields(map[string]any{
		"filtered": res.FilteredCount,
		"pool":     res.PoolSize,
		"ranked":   len(res.Ranked),
	}).Debug("Recommendation ready")
	return res, nil
}

func (p *Pipeline) stage(s Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	p.metrics.ObserveStage(string(s), time.Since(start), err)
	return err
}

func (p *Pipeline) empty(res *Result, s Stage) *Result {
	res.Status = StatusEmpty
	res.Stage = s
	p.metrics.RecordResult(string(StatusEmpty), string(s))
	p.log.WithField("stage", string(s)).Debug("No candidates")
	return res
}

func (p *Pipeline) fail(s Stage, err error) error {
	p.metrics.RecordResult("error", string(s))
	return err
}

// modelInitError marks err as an initialization failure of model unless it
// already is a model error or a context error.
func modelInitError(model string, err error) error {
	var me *domerrors.ModelError
	if errors.As(err, &me) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domerrors.NewModelError(model, "init", err)
}

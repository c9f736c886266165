package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/ut-course-advisor/internal/catalog"
	"github.com/garyellow/ut-course-advisor/internal/config"
	domerrors "github.com/garyellow/ut-course-advisor/internal/errors"
	"github.com/garyellow/ut-course-advisor/internal/filter"
	"github.com/garyellow/ut-course-advisor/internal/genai"
	"github.com/garyellow/ut-course-advisor/internal/langdetect"
	"github.com/garyellow/ut-course-advisor/internal/lazy"
	"github.com/garyellow/ut-course-advisor/internal/logger"
	"github.com/garyellow/ut-course-advisor/internal/metrics"
	"github.com/garyellow/ut-course-advisor/internal/prompt"
	"github.com/garyellow/ut-course-advisor/internal/rerank"
)

// topicEmbedder maps words onto two topic axes: learning and art.
type topicEmbedder struct {
	calls atomic.Int32
}

func (e *topicEmbedder) Model() string { return "topic" }

func (e *topicEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = topicVector(t)
	}
	return out, nil
}

func topicVector(text string) []float32 {
	v := make([]float32, 2)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		switch w {
		case "machine", "learning", "supervised", "neural", "basics", "introduction", "masinõpe":
			v[0]++
		case "medieval", "art", "history", "painting", "kunst":
			v[1]++
		}
	}
	return v
}

// overlapScorer scores a document by the number of query words it contains.
type overlapScorer struct {
	mu    sync.Mutex
	calls int
	docs  [][]string
}

func (s *overlapScorer) Model() string { return "overlap" }

func (s *overlapScorer) Score(_ context.Context, query string, docs []string) ([]float64, error) {
	s.mu.Lock()
	s.calls++
	s.docs = append(s.docs, docs)
	s.mu.Unlock()

	words := strings.Fields(strings.ToLower(query))
	out := make([]float64, len(docs))
	for i, d := range docs {
		for _, w := range words {
			if strings.Contains(strings.ToLower(d), w) {
				out[i]++
			}
		}
	}
	return out, nil
}

func (s *overlapScorer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// source is a counting stand-in for a lazy handle.
type source[T any] struct {
	value T
	err   error
	calls atomic.Int32
}

func (s *source[T]) Get(context.Context) (T, error) {
	s.calls.Add(1)
	return s.value, s.err
}

type staticCatalog struct {
	snap *catalog.Snapshot
	err  error
}

func (c staticCatalog) Load(context.Context) (*catalog.Snapshot, error) {
	return c.snap, c.err
}

func course(code, semester, credits, description string) catalog.Course {
	return catalog.Course{
		Code:        code,
		NameEN:      catalog.NewText("Course " + code),
		Semester:    catalog.NewText(semester),
		Credits:     catalog.NewNumber(credits),
		Description: catalog.NewText(description),
	}
}

func allFacets(except ...catalog.Facet) map[catalog.Facet]bool {
	m := make(map[catalog.Facet]bool, len(catalog.AllFacets))
	for _, f := range catalog.AllFacets {
		m[f] = true
	}
	for _, f := range except {
		m[f] = false
	}
	return m
}

func snapshot(t *testing.T, available map[catalog.Facet]bool, courses ...catalog.Course) *catalog.Snapshot {
	t.Helper()
	embs := make([][]float32, len(courses))
	for i := range courses {
		embs[i] = topicVector(courses[i].Description.String())
	}
	snap, err := catalog.NewSnapshot(courses, embs, available)
	require.NoError(t, err)
	return snap
}

type fixture struct {
	embedder *topicEmbedder
	embedSrc *source[genai.Embedder]
	scorer   *overlapScorer
	scoreSrc *source[rerank.Scorer]
	metrics  *metrics.Metrics
	pipeline *Pipeline
}

func newFixture(t *testing.T, cat CatalogSource) *fixture {
	t.Helper()
	f := &fixture{
		embedder: &topicEmbedder{},
		scorer:   &overlapScorer{},
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	f.embedSrc = &source[genai.Embedder]{value: f.embedder}
	f.scoreSrc = &source[rerank.Scorer]{value: f.scorer}

	p, err := New(Options{
		Catalog:  cat,
		Embedder: f.embedSrc,
		Scorer:   f.scoreSrc,
		Settings: config.PipelineConfig{CandidatePool: 20, DefaultTopK: 5, MaxTopK: 10},
		Metrics:  f.metrics,
		Logger:   logger.NewWithWriter("error", io.Discard),
	})
	require.NoError(t, err)
	f.pipeline = p
	return f
}

func TestRun_EmptyFilterSkipsModels(t *testing.T) {
	t.Parallel()
	snap := snapshot(t, allFacets(),
		course("A1", "kevad", "3", "machine learning"),
		course("B2", "sügis", "6", "machine learning"),
	)
	f := newFixture(t, staticCatalog{snap: snap})

	res, err := f.pipeline.Run(context.Background(), Query{
		Text:    "machine learning",
		Filters: filter.Spec{Semesters: []string{"talv"}},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusEmpty, res.Status)
	assert.Equal(t, StageFilter, res.Stage)
	assert.Zero(t, res.FilteredCount)
	assert.Empty(t, res.Ranked)
	assert.Empty(t, res.Instruction)

	assert.Zero(t, f.embedSrc.calls.Load(), "embedder must not be initialized")
	assert.Zero(t, f.embedder.calls.Load(), "embedder must not be called")
	assert.Zero(t, f.scoreSrc.calls.Load(), "scorer must not be initialized")
	assert.Zero(t, f.scorer.callCount(), "scorer must not be called")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PipelineResultsTotal.WithLabelValues("empty", "filter")))
}

func TestRun_FilteredRowsNeverReachModels(t *testing.T) {
	t.Parallel()
	snap := snapshot(t, allFacets(),
		course("A1", "kevad", "3", "machine learning"),
		course("B2", "sügis", "6", "supervised learning"),
	)
	f := newFixture(t, staticCatalog{snap: snap})

	res, err := f.pipeline.Run(context.Background(), Query{
		Text: "machine learning",
		Filters: filter.Spec{
			Semesters: []string{"kevad"},
			Credits:   &filter.CreditRange{Min: 0, Max: 12},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusReady, res.Status)
	assert.Equal(t, 1, res.FilteredCount)
	assert.Equal(t, 1, res.PoolSize)
	require.Len(t, res.Ranked, 1)
	assert.Equal(t, "A1", res.Ranked[0].Course.Code)

	require.Len(t, f.scorer.docs, 1)
	assert.Equal(t, []string{"machine learning"}, f.scorer.docs[0])
	assert.NotContains(t, res.Instruction, "B2")
}

func TestRun_RanksRelevantCourseFirst(t *testing.T) {
	t.Parallel()
	snap := snapshot(t, allFacets(),
		course("ART", "kevad", "6", "medieval art history"),
		course("ML", "kevad", "6", "introduction to supervised learning"),
	)
	f := newFixture(t, staticCatalog{snap: snap})

	res, err := f.pipeline.Run(context.Background(), Query{Text: "machine learning basics"})
	require.NoError(t, err)

	require.Len(t, res.Ranked, 2)
	assert.Equal(t, "ML", res.Ranked[0].Course.Code)
	assert.Greater(t, res.Ranked[0].RetrievalScore, res.Ranked[1].RetrievalScore)
	assert.Greater(t, res.Ranked[0].Score, res.Ranked[1].Score)

	assert.Equal(t, langdetect.English, res.Locale)
	assert.Contains(t, res.Instruction, prompt.ContextStart)
	assert.Contains(t, res.Instruction, prompt.ContextEnd)
	assert.Contains(t, res.Instruction, "Recommend exactly 2 courses.")
	assert.Less(t,
		strings.Index(res.Instruction, "introduction to supervised learning"),
		strings.Index(res.Instruction, "medieval art history"),
	)
	assert.Equal(t, int32(1), f.embedder.calls.Load())
	assert.Equal(t, 1, f.scorer.callCount())
}

func TestRun_Deterministic(t *testing.T) {
	t.Parallel()
	courses := make([]catalog.Course, 0, 30)
	for i := range 30 {
		desc := "neural learning"
		if i%3 == 0 {
			desc = "art history"
		}
		courses = append(courses, course(string(rune('A'+i%26))+strings.Repeat("x", i/26), "kevad", "6", desc))
	}
	f := newFixture(t, staticCatalog{snap: snapshot(t, allFacets(), courses...)})
	q := Query{Text: "neural learning", TopK: 7}

	first, err := f.pipeline.Run(context.Background(), q)
	require.NoError(t, err)
	for range 5 {
		again, err := f.pipeline.Run(context.Background(), q)
		require.NoError(t, err)
		assert.Equal(t, first.Ranked, again.Ranked)
		assert.Equal(t, first.Instruction, again.Instruction)
	}
	assert.Len(t, first.Ranked, 7)
	assert.Equal(t, 20, first.PoolSize)
}

func TestRun_Locale(t *testing.T) {
	t.Parallel()
	snap := snapshot(t, allFacets(), course("ML", "kevad", "6", "masinõpe"))
	f := newFixture(t, staticCatalog{snap: snap})

	tests := []struct {
		name  string
		query Query
		want  langdetect.Locale
		role  string
	}{
		{"detects Estonian", Query{Text: "soovin õppida masinõpe"}, langdetect.Estonian, "Vasta eesti keeles."},
		{"detects English", Query{Text: "I want to find a course"}, langdetect.English, "Answer in English."},
		{"override wins", Query{Text: "I want to find a course", Locale: langdetect.Estonian}, langdetect.Estonian, "Vasta eesti keeles."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := f.pipeline.Run(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Locale)
			assert.Contains(t, res.Instruction, tt.role)
		})
	}
}

func TestRun_TopKIsClamped(t *testing.T) {
	t.Parallel()
	courses := make([]catalog.Course, 12)
	for i := range courses {
		courses[i] = course(strings.Repeat("C", i+1), "kevad", "6", "learning")
	}
	f := newFixture(t, staticCatalog{snap: snapshot(t, allFacets(), courses...)})

	tests := []struct {
		topK, want int
	}{
		{0, 5},
		{-3, 1},
		{50, 10},
		{3, 3},
	}
	for _, tt := range tests {
		res, err := f.pipeline.Run(context.Background(), Query{Text: "learning", TopK: tt.topK})
		require.NoError(t, err)
		assert.Equal(t, tt.want, res.TopK, "top-k %d", tt.topK)
		assert.Len(t, res.Ranked, tt.want, "top-k %d", tt.topK)
	}
}

func TestRun_DropsUnavailableFacets(t *testing.T) {
	t.Parallel()
	snap := snapshot(t, allFacets(catalog.FacetDomains), course("ML", "kevad", "6", "learning"))
	f := newFixture(t, staticCatalog{snap: snap})

	res, err := f.pipeline.Run(context.Background(), Query{
		Text:    "learning",
		Filters: filter.Spec{Domains: []string{"informaatika"}},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusReady, res.Status)
	assert.Equal(t, []catalog.Facet{catalog.FacetDomains}, res.DroppedFacets)
	assert.Equal(t, 1, res.FilteredCount)
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()
	snap := snapshot(t, allFacets(), course("ML", "kevad", "6", "learning"))

	t.Run("blank query", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, staticCatalog{snap: snap})
		_, err := f.pipeline.Run(context.Background(), Query{Text: "  "})
		assert.ErrorIs(t, err, domerrors.ErrInvalidInput)
	})

	t.Run("inverted credits", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, staticCatalog{snap: snap})
		_, err := f.pipeline.Run(context.Background(), Query{
			Text:    "learning",
			Filters: filter.Spec{Credits: &filter.CreditRange{Min: 6, Max: 3}},
		})
		assert.ErrorIs(t, err, domerrors.ErrInvalidInput)
	})

	t.Run("catalog unavailable", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, staticCatalog{err: domerrors.NewDataError("embeddings.bin", errors.New("no such file"))})
		_, err := f.pipeline.Run(context.Background(), Query{Text: "learning"})
		assert.ErrorIs(t, err, domerrors.ErrDataUnavailable)
		assert.Zero(t, f.embedSrc.calls.Load())
	})

	t.Run("catalog inconsistent", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, staticCatalog{err: &domerrors.ConsistencyError{Records: 3, Embeddings: 4}})
		_, err := f.pipeline.Run(context.Background(), Query{Text: "learning"})
		assert.ErrorIs(t, err, domerrors.ErrConsistency)
	})

	t.Run("embedder init fails", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, staticCatalog{snap: snap})
		f.embedSrc.err = errors.New("connection refused")

		_, err := f.pipeline.Run(context.Background(), Query{Text: "learning"})
		require.ErrorIs(t, err, domerrors.ErrModelUnavailable)
		var me *domerrors.ModelError
		require.ErrorAs(t, err, &me)
		assert.Equal(t, "embedding", me.Model)
		assert.Equal(t, "init", me.Op)
		assert.Zero(t, f.scoreSrc.calls.Load())
	})

	t.Run("scorer init fails", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, staticCatalog{snap: snap})
		f.scoreSrc.err = errors.New("model not found")

		_, err := f.pipeline.Run(context.Background(), Query{Text: "learning"})
		var me *domerrors.ModelError
		require.ErrorAs(t, err, &me)
		assert.Equal(t, "reranker", me.Model)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PipelineResultsTotal.WithLabelValues("error", "rerank")))
	})

	t.Run("unknown locale", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, staticCatalog{snap: snap})
		_, err := f.pipeline.Run(context.Background(), Query{Text: "learning", Locale: "fi"})
		assert.Error(t, err)
	})
}

func TestRun_AcceptsLazyHandles(t *testing.T) {
	t.Parallel()
	snap := snapshot(t, allFacets(), course("ML", "kevad", "6", "learning"))
	embedder := &topicEmbedder{}

	p, err := New(Options{
		Catalog:  staticCatalog{snap: snap},
		Embedder: lazy.New[genai.Embedder]("embedding", func(context.Context) (genai.Embedder, error) { return embedder, nil }),
		Scorer:   lazy.Ready[rerank.Scorer]("reranker", rerank.NewLexical()),
		Logger:   logger.NewWithWriter("error", io.Discard),
	})
	require.NoError(t, err)

	res, err := p.Run(context.Background(), Query{Text: "learning"})
	require.NoError(t, err)
	assert.Equal(t, StatusReady, res.Status)
	assert.Equal(t, int32(1), embedder.calls.Load())
}

func TestNew(t *testing.T) {
	t.Parallel()
	_, err := New(Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog source is required")
	assert.Contains(t, err.Error(), "scorer source is required")

	p, err := New(Options{
		Catalog:  staticCatalog{},
		Embedder: &source[genai.Embedder]{},
		Scorer:   &source[rerank.Scorer]{},
		Settings: config.PipelineConfig{MaxTopK: 99, DefaultTopK: 50},
		Logger:   logger.NewWithWriter("error", io.Discard),
	})
	require.NoError(t, err)
	s := p.Settings()
	assert.Equal(t, 20, s.CandidatePool)
	assert.Equal(t, 10, s.MaxTopK)
	assert.Equal(t, 5, s.DefaultTopK)
}

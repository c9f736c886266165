package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	domerrors "github.com/garyellow/ut-course-advisor/internal/errors"
	"github.com/garyellow/ut-course-advisor/internal/lazy"
	"github.com/garyellow/ut-course-advisor/internal/logger"
)

// Snapshot is an immutable, index-aligned view of courses and embeddings.
// Callers must not modify the returned slices.
type Snapshot struct {
	courses    []Course
	embeddings [][]float32
	facets     Facets
	loadedAt   time.Time
}

// NewSnapshot pairs courses with their embeddings. It fails with a
// *errors.ConsistencyError when the counts differ.
func NewSnapshot(courses []Course, embeddings [][]float32, available map[Facet]bool) (*Snapshot, error) {
	if len(courses) != len(embeddings) {
		return nil, &domerrors.ConsistencyError{Records: len(courses), Embeddings: len(embeddings)}
	}
	return &Snapshot{
		courses:    courses,
		embeddings: embeddings,
		facets:     BuildFacets(courses, available),
		loadedAt:   time.Now(),
	}, nil
}

// Records returns the courses in catalog order.
func (s *Snapshot) Records() []Course { return s.courses }

// Embeddings returns vectors aligned 1:1 with Records.
func (s *Snapshot) Embeddings() [][]float32 { return s.embeddings }

// Len returns the number of catalog rows.
func (s *Snapshot) Len() int { return len(s.courses) }

// Dimension returns the embedding dimension, or 0 for an empty catalog.
func (s *Snapshot) Dimension() int {
	if len(s.embeddings) == 0 {
		return 0
	}
	return len(s.embeddings[0])
}

// Facets returns the filter options derived from the catalog.
func (s *Snapshot) Facets() Facets { return s.facets }

// Available reports whether the catalog has a column for the facet.
func (s *Snapshot) Available(f Facet) bool { return s.facets.Available[f] }

// LoadedAt returns when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// ArtifactFetcher downloads an object to a local path.
type ArtifactFetcher interface {
	Download(ctx context.Context, key, dstPath string) error
}

// Options configures a Store.
type Options struct {
	CatalogPath    string
	CatalogTable   string
	EmbeddingsPath string

	// Fetcher, when set, downloads artifacts that are missing locally.
	Fetcher       ArtifactFetcher
	CatalogKey    string
	EmbeddingsKey string

	Logger   *logger.Logger
	Observer lazy.Observer
}

// Store loads the catalog once, on first use, and shares it read-only.
type Store struct {
	opts   Options
	log    *logger.Logger
	handle *lazy.Handle[*Snapshot]
}

// NewStore creates a store. Nothing is read until Load.
func NewStore(opts Options) *Store {
	s := &Store{opts: opts, log: opts.Logger}
	if s.log == nil {
		s.log = logger.New("info")
	}
	s.log = s.log.WithModule("catalog")

	var hopts []lazy.Option[*Snapshot]
	if opts.Observer != nil {
		hopts = append(hopts, lazy.WithObserver[*Snapshot](opts.Observer))
	}
	s.handle = lazy.New("catalog", s.load, hopts...)
	return s
}

// Load returns the shared snapshot, reading both artifacts on first call.
// It fails with errors.ErrDataUnavailable when an artifact cannot be read
// and errors.ErrConsistency when their row counts differ.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	return s.handle.Get(ctx)
}

// IsReady reports whether a snapshot has been loaded.
func (s *Store) IsReady() bool {
	return s.handle.IsReady()
}

func (s *Store) load(ctx context.Context) (*Snapshot, error) {
	start := time.Now()

	if err := s.ensureLocal(ctx, s.opts.CatalogPath, s.opts.CatalogKey); err != nil {
		return nil, err
	}
	if err := s.ensureLocal(ctx, s.opts.EmbeddingsPath, s.opts.EmbeddingsKey); err != nil {
		return nil, err
	}

	courses, available, err := LoadCourses(ctx, s.opts.CatalogPath, s.opts.CatalogTable)
	if err != nil {
		return nil, err
	}

	embeddings, err := ReadEmbeddingsFile(s.opts.EmbeddingsPath)
	if err != nil {
		return nil, domerrors.NewDataError(s.opts.EmbeddingsPath, err)
	}

	snap, err := NewSnapshot(courses, embeddings, available)
	if err != nil {
		s.log.WithError(err).Error("Catalog and embeddings are misaligned; rebuild the embeddings")
		return nil, err
	}

	for _, f := range AllFacets {
		if !available[f] {
			s.log.WithField("facet", string(f)).Warn("Catalog column missing; facet unavailable")
		}
	}
	s.log.WithField("records", snap.Len()).
		WithField("dimension", snap.Dimension()).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Info("Catalog loaded")
	return snap, nil
}

// ensureLocal downloads key to path when the file is missing and a fetcher
// is configured.
func (s *Store) ensureLocal(ctx context.Context, path, key string) error {
	_, err := os.Stat(path)
	if err == nil || s.opts.Fetcher == nil || key == "" || !errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return domerrors.NewDataError(path, err)
	}
	s.log.WithField("key", key).WithField("path", path).Info("Fetching artifact from object storage")
	if err := s.opts.Fetcher.Download(ctx, key, path); err != nil {
		return domerrors.NewDataError(path, fmt.Errorf("download %s: %w", key, err))
	}
	return nil
}

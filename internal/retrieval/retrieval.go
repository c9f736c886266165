// Package retrieval narrows the filtered catalog to the courses whose
// description embeddings lie closest to the query.
package retrieval

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/garyellow/ut-course-advisor/internal/catalog"
	domerrors "github.com/garyellow/ut-course-advisor/internal/errors"
	"github.com/garyellow/ut-course-advisor/internal/genai"
)

// DefaultPoolSize is the candidate pool handed to the reranker.
const DefaultPoolSize = 20

// Candidate is a catalog record kept by retrieval. Index is the record's
// position in the catalog.
type Candidate struct {
	Index  int
	Course *catalog.Course
	Score  float64 // cosine similarity to the query
}

// Retriever ranks masked catalog rows by embedding similarity.
type Retriever struct {
	embedder genai.Embedder
}

// New creates a Retriever that embeds queries with embedder.
func New(embedder genai.Embedder) *Retriever {
	return &Retriever{embedder: embedder}
}

// Retrieve embeds query once and returns up to poolSize masked records in
// descending similarity. Ties keep catalog order. When the mask selects
// nothing the embedder is not called. A poolSize below 1 uses
// DefaultPoolSize.
func (r *Retriever) Retrieve(ctx context.Context, query string, mask []bool, records []catalog.Course, embeddings [][]float32, poolSize int) ([]Candidate, error) {
	if len(mask) != len(records) {
		return nil, fmt.Errorf("mask has %d entries for %d records", len(mask), len(records))
	}
	if len(embeddings) != len(records) {
		return nil, &domerrors.ConsistencyError{Records: len(records), Embeddings: len(embeddings)}
	}
	if poolSize < 1 {
		poolSize = DefaultPoolSize
	}

	retained := make([]int, 0, len(mask))
	for i, ok := range mask {
		if ok {
			retained = append(retained, i)
		}
	}
	if len(retained) == 0 {
		return []Candidate{}, nil
	}

	qvec, err := genai.EmbedOne(ctx, r.embedder, query)
	if err != nil {
		return nil, domerrors.NewModelError("embedding", "embed", err)
	}

	candidates := make([]Candidate, 0, len(retained))
	for _, i := range retained {
		if len(embeddings[i]) != len(qvec) {
			return nil, domerrors.NewModelError("embedding", "embed",
				fmt.Errorf("query dimension %d does not match stored dimension %d", len(qvec), len(embeddings[i])))
		}
		candidates = append(candidates, Candidate{
			Index:  i,
			Course: &records[i],
			Score:  Cosine(qvec, embeddings[i]),
		})
	}

	// Stable sort keeps catalog order among equal scores.
	slices.SortStableFunc(candidates, func(a, b Candidate) int {
		return CompareDesc(a.Score, b.Score)
	})

	return candidates[:min(poolSize, len(candidates))], nil
}

// Cosine returns the cosine similarity of a and b. A zero-norm vector
// scores 0. Slices of different length score NaN.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.NaN()
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// CompareDesc orders scores from high to low with NaN last, for use with
// slices.SortStableFunc.
func CompareDesc(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	}
	return cmp.Compare(b, a)
}

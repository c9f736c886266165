// Package rerank reorders the retrieval pool with a pairwise relevance model
// and keeps the best few.
package rerank

import (
	"context"
	"fmt"
	"slices"

	"github.com/garyellow/ut-course-advisor/internal/catalog"
	domerrors "github.com/garyellow/ut-course-advisor/internal/errors"
	"github.com/garyellow/ut-course-advisor/internal/retrieval"
)

// Bounds for the number of recommended courses.
const (
	MinK     = 1
	MaxK     = 10
	DefaultK = 5
)

// Scorer scores each document's relevance to query. The result has exactly
// one score per document, in document order; higher is more relevant.
type Scorer interface {
	Score(ctx context.Context, query string, docs []string) ([]float64, error)
	// Model returns the model identifier for logs and metrics.
	Model() string
}

// Ranked is a reranked course. Index is the catalog position.
type Ranked struct {
	Index          int
	Course         *catalog.Course
	Score          float64 // relevance model score
	RetrievalScore float64
}

// ClampK applies the [MinK, MaxK] bounds, mapping 0 to DefaultK.
func ClampK(k int) int {
	switch {
	case k == 0:
		return DefaultK
	case k < MinK:
		return MinK
	case k > MaxK:
		return MaxK
	default:
		return k
	}
}

// Rerank scores every candidate's description against query in one scorer
// call and returns the top min(finalK, len(candidates)) in descending score.
// Ties keep pool order. Absent descriptions are scored as empty text. An
// empty pool returns an empty result without calling the scorer. finalK is
// used as given; callers apply ClampK.
func Rerank(ctx context.Context, scorer Scorer, query string, candidates []retrieval.Candidate, finalK int) ([]Ranked, error) {
	if len(candidates) == 0 {
		return []Ranked{}, nil
	}

	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Course.Description.String()
	}

	scores, err := scorer.Score(ctx, query, docs)
	if err != nil {
		return nil, domerrors.NewModelError("reranker", "score", err)
	}
	if len(scores) != len(docs) {
		return nil, domerrors.NewModelError("reranker", "score",
			fmt.Errorf("got %d scores for %d documents", len(scores), len(docs)))
	}

	ranked := make([]Ranked, len(candidates))
	for i, c := range candidates {
		ranked[i] = Ranked{
			Index:          c.Index,
			Course:         c.Course,
			Score:          scores[i],
			RetrievalScore: c.Score,
		}
	}
	slices.SortStableFunc(ranked, func(a, b Ranked) int {
		return retrieval.CompareDesc(a.Score, b.Score)
	})

	return ranked[:min(max(finalK, 0), len(ranked))], nil
}

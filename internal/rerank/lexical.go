package rerank

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/iwilltry42/bm25-go/bm25"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// BM25 parameters (standard Okapi values).
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// Lexical scores documents with BM25 Okapi over the candidate pool itself.
// It needs no model server and serves offline development.
type Lexical struct{}

// NewLexical creates a lexical scorer.
func NewLexical() *Lexical { return &Lexical{} }

// Model returns the scorer identifier.
func (*Lexical) Model() string { return "bm25" }

// Score builds a BM25 index over docs and scores query against it.
func (*Lexical) Score(_ context.Context, query string, docs []string) ([]float64, error) {
	scores := make([]float64, len(docs))
	if len(docs) == 0 {
		return scores, nil
	}

	terms := tokenize(query)
	if len(terms) == 0 || !anyTokens(docs) {
		return scores, nil
	}

	idx, err := bm25.NewBM25Okapi(docs, tokenize, bm25K1, bm25B, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create BM25 index: %w", err)
	}
	got, err := idx.GetScores(terms)
	if err != nil {
		return nil, fmt.Errorf("bm25 scoring: %w", err)
	}
	if len(got) != len(docs) {
		return nil, fmt.Errorf("bm25 returned %d scores for %d documents", len(got), len(docs))
	}
	copy(scores, got)
	return scores, nil
}

// tokenize folds case and splits on anything that is not a letter or digit.
func tokenize(text string) []string {
	folded := cases.Fold().String(norm.NFC.String(text))
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func anyTokens(docs []string) bool {
	for _, d := range docs {
		if len(tokenize(d)) > 0 {
			return true
		}
	}
	return false
}

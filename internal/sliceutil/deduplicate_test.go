package sliceutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeduplicate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		items []string
		want  []string
	}{
		{"nil", nil, nil},
		{"empty", []string{}, []string{}},
		{"no duplicates", []string{"kevad", "sügis"}, []string{"kevad", "sügis"}},
		{"first occurrence wins", []string{"Tartu", "tartu", "Tallinn", "TARTU"}, []string{"Tartu", "Tallinn"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Deduplicate(tt.items, strings.ToLower))
		})
	}
}

func TestDeduplicateStructKey(t *testing.T) {
	t.Parallel()
	type course struct{ code, name string }
	items := []course{{"A", "first"}, {"B", "b"}, {"A", "second"}}

	got := Deduplicate(items, func(c course) string { return c.code })
	assert.Equal(t, []course{{"A", "first"}, {"B", "b"}}, got)
	assert.Len(t, items, 3)
}

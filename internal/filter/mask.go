package filter

import (
	"strings"

	"github.com/garyellow/ut-course-advisor/internal/catalog"
)

// Grading label markers, matched as lowercase substrings. The negative
// markers are checked first because "mitteeristav" contains "eristav".
var (
	nonDistinguishingMarkers = []string{"mitteeristav", "non-differentiated", "pass/fail", "arvestatud"}
	distinguishingMarkers    = []string{"eristav", "differentiated"}
)

// IsDistinguishing reports whether a grading-scale label denotes a
// differentiated (graded) scale. Absent labels are not distinguishing.
func IsDistinguishing(label catalog.Text) bool {
	l := strings.ToLower(label.String())
	if l == "" {
		return false
	}
	for _, m := range nonDistinguishingMarkers {
		if strings.Contains(l, m) {
			return false
		}
	}
	for _, m := range distinguishingMarkers {
		if strings.Contains(l, m) {
			return true
		}
	}
	return false
}

// ComputeMask returns one flag per record, true where the record satisfies
// every facet of spec. Facets combine with AND; values within a multi-select
// facet combine with OR. An all-false result is valid.
func ComputeMask(records []catalog.Course, spec Spec) []bool {
	preds := compile(spec)
	mask := make([]bool, len(records))
	for i := range records {
		mask[i] = matches(&records[i], preds)
	}
	return mask
}

// Count returns the number of true entries.
func Count(mask []bool) int {
	n := 0
	for _, ok := range mask {
		if ok {
			n++
		}
	}
	return n
}

type predicate func(c *catalog.Course) bool

func matches(c *catalog.Course, preds []predicate) bool {
	for _, p := range preds {
		if !p(c) {
			return false
		}
	}
	return true
}

// compile builds one predicate per constraining facet. Empty selections
// produce no predicate and so match everything.
func compile(spec Spec) []predicate {
	var preds []predicate

	if set := valueSet(spec.Semesters); set != nil {
		preds = append(preds, func(c *catalog.Course) bool {
			s, ok := c.Semester.Get()
			if !ok {
				return false
			}
			_, hit := set[strings.ToLower(s)]
			return hit
		})
	}

	if r := spec.Credits; r != nil {
		lo, hi := r.Min, r.Max
		preds = append(preds, func(c *catalog.Course) bool {
			v, ok := c.Credits.Get()
			return ok && v >= lo && v <= hi
		})
	}

	switch spec.Grading {
	case GradingDistinguishing:
		preds = append(preds, func(c *catalog.Course) bool { return IsDistinguishing(c.Grading) })
	case GradingNonDistinguishing:
		preds = append(preds, func(c *catalog.Course) bool { return !IsDistinguishing(c.Grading) })
	}

	multi := []struct {
		selected []string
		values   func(c *catalog.Course) []string
	}{
		{spec.Languages, func(c *catalog.Course) []string { return c.Languages }},
		{spec.Cities, func(c *catalog.Course) []string { return c.Cities }},
		{spec.StudyLevels, func(c *catalog.Course) []string { return c.StudyLevels }},
		{spec.DeliveryModes, func(c *catalog.Course) []string { return c.DeliveryModes }},
		{spec.Domains, func(c *catalog.Course) []string { return c.Domains }},
	}
	for _, m := range multi {
		set := valueSet(m.selected)
		if set == nil {
			continue
		}
		values := m.values
		preds = append(preds, func(c *catalog.Course) bool {
			for _, v := range values(c) {
				if _, hit := set[strings.ToLower(v)]; hit {
					return true
				}
			}
			return false
		})
	}

	return preds
}

// valueSet lowercases and trims selections. It returns nil when nothing
// meaningful is selected.
func valueSet(values []string) map[string]struct{} {
	var set map[string]struct{}
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if set == nil {
			set = make(map[string]struct{}, len(values))
		}
		set[v] = struct{}{}
	}
	return set
}

// Package filter turns user-selected facets into a boolean selection over
// the catalog.
package filter

import (
	"fmt"
	"math"
	"strings"

	"github.com/garyellow/ut-course-advisor/internal/catalog"
	domerrors "github.com/garyellow/ut-course-advisor/internal/errors"
	"github.com/garyellow/ut-course-advisor/internal/sliceutil"
)

// Grading is the three-way grading-scale preference.
type Grading string

// Grading preferences.
const (
	GradingAny               Grading = "any"
	GradingDistinguishing    Grading = "distinguishing"
	GradingNonDistinguishing Grading = "non_distinguishing"
)

// ParseGrading accepts the API values and the Estonian UI labels
// ("Kõik", "Eristav", "Mitteeristav"). Empty means any.
func ParseGrading(s string) (Grading, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any", "all", "kõik", "koik":
		return GradingAny, nil
	case "distinguishing", "eristav", "differentiated":
		return GradingDistinguishing, nil
	case "non_distinguishing", "non-distinguishing", "mitteeristav", "pass_fail", "pass/fail":
		return GradingNonDistinguishing, nil
	default:
		return "", domerrors.NewValidationError("grading", fmt.Sprintf("unknown grading preference %q", s))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *Grading) UnmarshalText(b []byte) error {
	parsed, err := ParseGrading(string(b))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// CreditRange is an inclusive credit interval.
type CreditRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Spec holds the active selection criteria of one query. The zero value
// matches every course.
type Spec struct {
	Semesters     []string     `json:"semesters,omitempty"`
	Credits       *CreditRange `json:"credits,omitempty"`
	Grading       Grading      `json:"grading,omitempty"`
	Languages     []string     `json:"languages,omitempty"`
	Cities        []string     `json:"cities,omitempty"`
	StudyLevels   []string     `json:"study_levels,omitempty"`
	DeliveryModes []string     `json:"delivery_modes,omitempty"`
	Domains       []string     `json:"domains,omitempty"`
}

// Validate rejects inverted or non-finite credit ranges and unknown grading values.
func (s Spec) Validate() error {
	if s.Credits != nil {
		lo, hi := s.Credits.Min, s.Credits.Max
		if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
			return domerrors.NewValidationError("credits", "bounds must be finite numbers")
		}
		if lo > hi {
			return domerrors.NewValidationError("credits", fmt.Sprintf("min %v is greater than max %v", lo, hi))
		}
	}
	switch s.Grading {
	case "", GradingAny, GradingDistinguishing, GradingNonDistinguishing:
	default:
		return domerrors.NewValidationError("grading", fmt.Sprintf("unknown grading preference %q", s.Grading))
	}
	return nil
}

// Restrict drops selections on facets the catalog cannot evaluate and
// returns the dropped facets. A missing column degrades its facet to "no
// constraint" instead of excluding every row.
func (s Spec) Restrict(available func(catalog.Facet) bool) (Spec, []catalog.Facet) {
	var dropped []catalog.Facet
	drop := func(f catalog.Facet, active bool) bool {
		if active && !available(f) {
			dropped = append(dropped, f)
			return true
		}
		return false
	}

	out := s
	if drop(catalog.FacetSemester, len(s.Semesters) > 0) {
		out.Semesters = nil
	}
	if drop(catalog.FacetCredits, s.Credits != nil) {
		out.Credits = nil
	}
	if drop(catalog.FacetGrading, s.Grading != "" && s.Grading != GradingAny) {
		out.Grading = GradingAny
	}
	if drop(catalog.FacetLanguages, len(s.Languages) > 0) {
		out.Languages = nil
	}
	if drop(catalog.FacetCities, len(s.Cities) > 0) {
		out.Cities = nil
	}
	if drop(catalog.FacetStudyLevels, len(s.StudyLevels) > 0) {
		out.StudyLevels = nil
	}
	if drop(catalog.FacetDeliveryModes, len(s.DeliveryModes) > 0) {
		out.DeliveryModes = nil
	}
	if drop(catalog.FacetDomains, len(s.Domains) > 0) {
		out.Domains = nil
	}
	return out, dropped
}

// Selection is one active facet with its display values.
type Selection struct {
	Facet  catalog.Facet
	Values []string
}

// Summary lists the facets that constrain the query, in display order.
// Semester, credits and grading are always present so the reader can see
// they were left open.
func (s Spec) Summary() []Selection {
	out := []Selection{{Facet: catalog.FacetSemester, Values: distinct(s.Semesters)}}
	if s.Credits != nil {
		out = append(out, Selection{Facet: catalog.FacetCredits, Values: []string{
			formatCredit(s.Credits.Min) + "-" + formatCredit(s.Credits.Max),
		}})
	} else {
		out = append(out, Selection{Facet: catalog.FacetCredits})
	}
	grading := s.Grading
	if grading == "" || grading == GradingAny {
		out = append(out, Selection{Facet: catalog.FacetGrading})
	} else {
		out = append(out, Selection{Facet: catalog.FacetGrading, Values: []string{string(grading)}})
	}
	for _, sel := range []Selection{
		{catalog.FacetLanguages, s.Languages},
		{catalog.FacetCities, s.Cities},
		{catalog.FacetStudyLevels, s.StudyLevels},
		{catalog.FacetDeliveryModes, s.DeliveryModes},
		{catalog.FacetDomains, s.Domains},
	} {
		if len(sel.Values) > 0 {
			out = append(out, Selection{Facet: sel.Facet, Values: distinct(sel.Values)})
		}
	}
	return out
}

// distinct drops repeated selections, ignoring case and surrounding space.
func distinct(values []string) []string {
	return sliceutil.Deduplicate(values, func(v string) string {
		return strings.ToLower(strings.TrimSpace(v))
	})
}

func formatCredit(f float64) string {
	return catalog.SomeNumber(f).String()
}

package catalog

import (
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Default credit bounds when no course has a parseable credit value.
const (
	DefaultCreditMin = 0.0
	DefaultCreditMax = 12.0
)

// springSemester is listed first among semester options.
const springSemester = "kevad"

// Facets describes the selectable filter options of a catalog.
type Facets struct {
	Available     map[Facet]bool `json:"available"`
	Semesters     []string       `json:"semesters"`
	CreditMin     float64        `json:"credit_min"`
	CreditMax     float64        `json:"credit_max"`
	Languages     []string       `json:"languages"`
	Cities        []string       `json:"cities"`
	StudyLevels   []string       `json:"study_levels"`
	DeliveryModes []string       `json:"delivery_modes"`
	Domains       []string       `json:"domains"`
}

// BuildFacets collects distinct option values in Estonian collation order.
func BuildFacets(courses []Course, available map[Facet]bool) Facets {
	f := Facets{
		Available: make(map[Facet]bool, len(AllFacets)),
		CreditMin: DefaultCreditMin,
		CreditMax: DefaultCreditMax,
	}
	for _, facet := range AllFacets {
		f.Available[facet] = available[facet]
	}

	semesters := newOptionSet()
	languages, cities, levels, modes, domains := newOptionSet(), newOptionSet(), newOptionSet(), newOptionSet(), newOptionSet()
	first := true
	for i := range courses {
		c := &courses[i]
		if s, ok := c.Semester.Get(); ok {
			semesters.add(strings.ToLower(s))
		}
		if v, ok := c.Credits.Get(); ok {
			if first {
				f.CreditMin, f.CreditMax = v, v
				first = false
			}
			f.CreditMin = min(f.CreditMin, v)
			f.CreditMax = max(f.CreditMax, v)
		}
		languages.add(c.Languages...)
		cities.add(c.Cities...)
		levels.add(c.StudyLevels...)
		modes.add(c.DeliveryModes...)
		domains.add(c.Domains...)
	}

	f.Semesters = semesters.sorted()
	if i := slices.Index(f.Semesters, springSemester); i > 0 {
		f.Semesters = slices.Insert(slices.Delete(f.Semesters, i, i+1), 0, springSemester)
	}
	f.Languages = languages.sorted()
	f.Cities = cities.sorted()
	f.StudyLevels = levels.sorted()
	f.DeliveryModes = modes.sorted()
	f.Domains = domains.sorted()
	return f
}

// optionSet keeps the first spelling of each case-insensitive value.
type optionSet struct {
	seen   map[string]struct{}
	values []string
}

func newOptionSet() *optionSet {
	return &optionSet{seen: make(map[string]struct{})}
}

func (o *optionSet) add(values ...string) {
	for _, v := range values {
		key := strings.ToLower(v)
		if _, ok := o.seen[key]; ok {
			continue
		}
		o.seen[key] = struct{}{}
		o.values = append(o.values, v)
	}
}

func (o *optionSet) sorted() []string {
	out := slices.Clone(o.values)
	if out == nil {
		return []string{}
	}
	collate.New(language.Estonian, collate.IgnoreCase).SortStrings(out)
	return out
}

// Package catalog loads the course table and its aligned embedding artifact
// and serves them read-only for the lifetime of the process.
package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Course is one catalog row. Values are normalized once at load time and
// never mutated afterwards.
type Course struct {
	Code          string
	NameET        Text
	NameEN        Text
	Credits       Number
	Semester      Text
	Grading       Text
	Languages     []string
	Cities        []string
	StudyLevels   []string
	DeliveryModes []string
	Domains       []string
	Goals         Text
	Outcomes      Text
	Description   Text
	DescriptionET Text
	DescriptionEN Text
}

// Facet names one filter dimension.
type Facet string

// Facets backed by catalog columns.
const (
	FacetSemester      Facet = "semester"
	FacetCredits       Facet = "credits"
	FacetGrading       Facet = "grading"
	FacetLanguages     Facet = "languages"
	FacetCities        Facet = "cities"
	FacetStudyLevels   Facet = "study_levels"
	FacetDeliveryModes Facet = "delivery_modes"
	FacetDomains       Facet = "domains"
)

// AllFacets lists facets in display order.
var AllFacets = []Facet{
	FacetSemester, FacetCredits, FacetGrading, FacetLanguages,
	FacetCities, FacetStudyLevels, FacetDeliveryModes, FacetDomains,
}

// column maps header aliases to a Course field. The first alias is the
// canonical header written by the data cleaning step.
type column struct {
	aliases  []string
	required bool
	facet    Facet
	assign   func(c *Course, raw string)
}

var columns = []column{
	{aliases: []string{"aine_kood", "code", "course_code"}, required: true,
		assign: func(c *Course, raw string) { c.Code = NewText(raw).String() }},
	{aliases: []string{"nimi_et", "name_et"},
		assign: func(c *Course, raw string) { c.NameET = NewText(raw) }},
	{aliases: []string{"nimi_en", "name_en"},
		assign: func(c *Course, raw string) { c.NameEN = NewText(raw) }},
	{aliases: []string{"eap", "credits", "ects"}, facet: FacetCredits,
		assign: func(c *Course, raw string) { c.Credits = NewNumber(raw) }},
	{aliases: []string{"semester"}, facet: FacetSemester,
		assign: func(c *Course, raw string) { c.Semester = NewText(raw) }},
	{aliases: []string{"hindamisskaala", "grading", "grading_scale"}, facet: FacetGrading,
		assign: func(c *Course, raw string) { c.Grading = NewText(raw) }},
	{aliases: []string{"oppekeeled", "languages", "teaching_languages"}, facet: FacetLanguages,
		assign: func(c *Course, raw string) { c.Languages = splitValues(raw) }},
	{aliases: []string{"linn", "city", "cities"}, facet: FacetCities,
		assign: func(c *Course, raw string) { c.Cities = splitValues(raw) }},
	{aliases: []string{"oppetase", "study_level", "level"}, facet: FacetStudyLevels,
		assign: func(c *Course, raw string) { c.StudyLevels = splitValues(raw) }},
	{aliases: []string{"oppeviis", "delivery_mode", "delivery"}, facet: FacetDeliveryModes,
		assign: func(c *Course, raw string) { c.DeliveryModes = splitValues(raw) }},
	{aliases: []string{"valdkond", "domain", "field"}, facet: FacetDomains,
		assign: func(c *Course, raw string) { c.Domains = splitValues(raw) }},
	{aliases: []string{"eesmargid", "goals"},
		assign: func(c *Course, raw string) { c.Goals = NewText(plainText(raw)) }},
	{aliases: []string{"opivaljundid", "outcomes", "learning_outcomes"},
		assign: func(c *Course, raw string) { c.Outcomes = NewText(plainText(raw)) }},
	{aliases: []string{"description", "kirjeldus"}, required: true,
		assign: func(c *Course, raw string) { c.Description = NewText(plainText(raw)) }},
	{aliases: []string{"kirjeldus_et", "description_et"},
		assign: func(c *Course, raw string) { c.DescriptionET = NewText(plainText(raw)) }},
	{aliases: []string{"kirjeldus_en", "description_en"},
		assign: func(c *Course, raw string) { c.DescriptionEN = NewText(plainText(raw)) }},
}

// normalizeHeader lowercases, strips diacritics and maps separators to '_'
// so "Õppekeeled" and "oppekeeled" resolve to the same column.
func normalizeHeader(h string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, h)
	if err != nil {
		folded = h
	}
	folded = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(folded, "\ufeff")))
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '.' {
			return '_'
		}
		return r
	}, folded)
}

// Package prompt renders the system instruction that grounds the chat model
// in the reranked courses.
package prompt

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/garyellow/ut-course-advisor/internal/catalog"
	"github.com/garyellow/ut-course-advisor/internal/filter"
	"github.com/garyellow/ut-course-advisor/internal/langdetect"
	"github.com/garyellow/ut-course-advisor/internal/rerank"
)

// Context block delimiters.
const (
	ContextStart = "=== COURSE CONTEXT START ==="
	ContextEnd   = "=== COURSE CONTEXT END ==="
)

// BlockSeparator separates course blocks inside the context.
const BlockSeparator = "\n\n---\n\n"

// maxFilterValueRunes bounds one filter value in the active-filters line.
const maxFilterValueRunes = 64

const instructionTemplate = `{{.Role}}

{{.RulesHeading}}
{{range $i, $rule := .Rules}}{{inc $i}}) {{$rule}}
{{end}}
{{.Filters}}

` + ContextStart + `
{{.Context}}
` + ContextEnd

var tmpl = template.Must(template.New("instruction").
	Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
	Parse(instructionTemplate))

type templateData struct {
	Role         string
	RulesHeading string
	Rules        []string
	Filters      string
	Context      string
}

// Composer builds instructions from validated string tables.
type Composer struct {
	tables map[langdetect.Locale]Strings
}

// NewComposer returns a Composer over the built-in tables.
func NewComposer() (*Composer, error) {
	return New(DefaultTables())
}

// New validates tables and returns a Composer. Every table must be complete.
func New(tables map[langdetect.Locale]Strings) (*Composer, error) {
	if len(tables) == 0 {
		return nil, errors.New("no string tables")
	}
	var errs []error
	for loc, s := range tables {
		if err := validate(s); err != nil {
			errs = append(errs, fmt.Errorf("locale %s: %w", loc, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &Composer{tables: tables}, nil
}

func validate(s Strings) error {
	var errs []error
	required := map[string]string{
		"Role":           s.Role,
		"RulesHeading":   s.RulesHeading,
		"CountRule":      s.CountRule,
		"FormatRule":     s.FormatRule,
		"FiltersHeading": s.FiltersHeading,
		"All":            s.All,
		"CourseHeading":  s.CourseHeading,
	}
	for _, l := range s.Labels.list() {
		required["Labels."+l.name] = l.value
	}
	for name, v := range required {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("%s is empty", name))
		}
	}
	if len(s.Rules) == 0 {
		errs = append(errs, errors.New("no rules"))
	}
	for i, r := range s.Rules {
		if strings.TrimSpace(r) == "" {
			errs = append(errs, fmt.Errorf("rule %d is empty", i+1))
		}
	}
	if strings.Count(s.CountRule, "%d") != 1 || strings.Count(s.CountRule, "%") != 1 {
		errs = append(errs, errors.New("CountRule must contain exactly one %d verb"))
	}
	for _, f := range catalog.AllFacets {
		if strings.TrimSpace(s.FacetNames[f]) == "" {
			errs = append(errs, fmt.Errorf("facet %s has no name", f))
		}
	}
	for _, g := range []filter.Grading{filter.GradingAny, filter.GradingDistinguishing, filter.GradingNonDistinguishing} {
		if strings.TrimSpace(s.GradingNames[g]) == "" {
			errs = append(errs, fmt.Errorf("grading %s has no name", g))
		}
	}
	return errors.Join(errs...)
}

type labeled struct{ name, value string }

func (l Labels) list() []labeled {
	return []labeled{
		{"Code", l.Code}, {"NameET", l.NameET}, {"NameEN", l.NameEN},
		{"Credits", l.Credits}, {"Semester", l.Semester}, {"Grading", l.Grading},
		{"Languages", l.Languages}, {"Cities", l.Cities}, {"DeliveryModes", l.DeliveryModes},
		{"StudyLevels", l.StudyLevels}, {"Domains", l.Domains}, {"Goals", l.Goals},
		{"Outcomes", l.Outcomes}, {"Description", l.Description},
	}
}

// Compose renders the instruction for ranked in locale. User text is never
// part of the instruction; the caller sends it as a separate message.
func (c *Composer) Compose(ranked []rerank.Ranked, spec filter.Spec, locale langdetect.Locale) (string, error) {
	s, ok := c.tables[locale]
	if !ok {
		return "", fmt.Errorf("no strings for locale %q", locale)
	}

	rules := slices.Clone(s.Rules)
	rules = append(rules, fmt.Sprintf(s.CountRule, len(ranked)), s.FormatRule)

	blocks := make([]string, len(ranked))
	for i, r := range ranked {
		blocks[i] = courseBlock(s, i+1, r.Course)
	}

	var sb strings.Builder
	err := tmpl.Execute(&sb, templateData{
		Role:         s.Role,
		RulesHeading: s.RulesHeading,
		Rules:        rules,
		Filters:      filtersLine(s, spec),
		Context:      strings.Join(blocks, BlockSeparator),
	})
	if err != nil {
		return "", fmt.Errorf("render instruction: %w", err)
	}
	return sb.String(), nil
}

// courseBlock lists the non-empty fields of c under a numbered heading.
func courseBlock(s Strings, n int, c *catalog.Course) string {
	l := s.Labels
	fields := []labeled{
		{l.Code, c.Code},
		{l.NameET, c.NameET.String()},
		{l.NameEN, c.NameEN.String()},
		{l.Credits, c.Credits.String()},
		{l.Semester, c.Semester.String()},
		{l.Grading, c.Grading.String()},
		{l.Languages, strings.Join(c.Languages, ", ")},
		{l.Cities, strings.Join(c.Cities, ", ")},
		{l.StudyLevels, strings.Join(c.StudyLevels, ", ")},
		{l.DeliveryModes, strings.Join(c.DeliveryModes, ", ")},
		{l.Domains, strings.Join(c.Domains, ", ")},
		{l.Goals, c.Goals.String()},
		{l.Outcomes, c.Outcomes.String()},
		{l.Description, c.Description.String()},
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s %d]", s.CourseHeading, n)
	for _, f := range fields {
		v := strings.TrimSpace(f.value)
		if v == "" {
			continue
		}
		sb.WriteString("\n")
		sb.WriteString(f.name)
		sb.WriteString(": ")
		sb.WriteString(neutralize(v))
	}
	return sb.String()
}

// filtersLine renders "Heading: facet=value, value; facet=value".
func filtersLine(s Strings, spec filter.Spec) string {
	parts := make([]string, 0, len(catalog.AllFacets))
	for _, sel := range spec.Summary() {
		var value string
		switch {
		case sel.Facet == catalog.FacetGrading && len(sel.Values) > 0:
			value = s.GradingNames[filter.Grading(sel.Values[0])]
		case len(sel.Values) == 0:
			value = s.All
		default:
			vals := make([]string, 0, len(sel.Values))
			for _, v := range sel.Values {
				if v = filterValue(v); v != "" {
					vals = append(vals, v)
				}
			}
			if len(vals) == 0 {
				value = s.All
			} else {
				value = strings.Join(vals, ", ")
			}
		}
		parts = append(parts, s.FacetNames[sel.Facet]+"="+value)
	}
	return s.FiltersHeading + ": " + strings.Join(parts, "; ")
}

// filterValue collapses v to one line, truncates it and neutralizes markers.
func filterValue(v string) string {
	v = strings.Join(strings.Fields(v), " ")
	if utf8.RuneCountInString(v) > maxFilterValueRunes {
		r := []rune(v)
		v = strings.TrimSpace(string(r[:maxFilterValueRunes])) + "…"
	}
	return neutralize(v)
}

var markerReplacer = strings.NewReplacer(
	"===", "= = =",
	"\n---", "\n- - -",
)

// neutralize breaks sequences that could forge a context delimiter or a
// block separator.
func neutralize(v string) string {
	for {
		out := markerReplacer.Replace(v)
		if out == v {
			return out
		}
		v = out
	}
}

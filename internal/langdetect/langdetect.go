// Package langdetect picks the reply language of a user message.
//
// Only Estonian and English are recognized. Detection counts function words
// from two disjoint lists and never fails: anything undecided falls back to
// English unless the text carries Estonian diacritics.
package langdetect

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Locale identifies a reply language.
type Locale string

// Supported locales.
const (
	Estonian Locale = "et"
	English  Locale = "en"
)

// Default is used when the evidence is balanced and carries no diacritics.
const Default = English

// String returns the BCP 47 tag.
func (l Locale) String() string { return string(l) }

// ParseLocale accepts "et"/"en" and the common long forms. Empty input is
// an error so callers can distinguish "not set" themselves.
func ParseLocale(s string) (Locale, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "et", "est", "estonian", "eesti", "et-ee":
		return Estonian, nil
	case "en", "eng", "english", "inglise", "en-us", "en-gb":
		return English, nil
	default:
		return "", fmt.Errorf("unsupported locale %q", s)
	}
}

var estonianWords = wordSet(
	"ja", "et", "ma", "mina", "sa", "sina", "ta", "meie", "te", "nad",
	"ei", "see", "neid", "kui", "mis", "kas", "ka", "aga", "oma", "mulle",
	"minu", "ning", "või", "siis", "kus", "kes", "mida", "kohta", "jaoks",
	"sest", "nagu", "olen", "oli", "ole", "pole", "veel", "ainult",
	"soovin", "tahan", "tahaksin", "sooviksin", "õppida", "huvitab", "huvitavad",
	"otsin", "leia", "leida", "palun", "milline", "millised", "mingi", "mõni",
	"kursus", "kursust", "kursusi", "kursuse", "aine", "ainet", "aineid",
	"semestril", "sügisel", "kevadel", "midagi", "rohkem", "vähem", "väga",
	"tere", "aitäh", "tänan", "umbes", "ehk", "selle", "sellest", "mind",
)

var englishWords = wordSet(
	"i", "want", "to", "the", "a", "an", "and", "or", "of", "in", "for",
	"with", "about", "find", "what", "which", "is", "are", "me", "my",
	"learn", "course", "courses", "how", "can", "do", "some", "that", "this",
	"would", "like", "interested", "looking", "any", "something", "please",
	"show", "recommend", "suggest", "class", "classes", "you", "your", "it",
	"be", "have", "has", "there", "from", "at", "by", "not", "no", "more",
	"less", "spring", "autumn", "fall", "hello", "hi", "thanks",
	"where", "who", "should", "could", "am", "was", "also",
)

const estonianDiacritics = "õäöüšž"

// Detect returns the language of text. It is pure and deterministic.
func Detect(text string) Locale {
	folded := fold(text)

	var et, en int
	for _, tok := range tokenize(folded) {
		if _, ok := estonianWords[tok]; ok {
			et++
		}
		if _, ok := englishWords[tok]; ok {
			en++
		}
	}

	switch {
	case et > en:
		return Estonian
	case en > et:
		return English
	case strings.ContainsAny(folded, estonianDiacritics):
		return Estonian
	default:
		return Default
	}
}

// tokenize splits on anything that is not a letter.
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool { return !unicode.IsLetter(r) })
}

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[fold(w)] = struct{}{}
	}
	return set
}

// fold normalizes to NFC and case-folds. A Caser keeps state, so each call
// gets its own.
func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

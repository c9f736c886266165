package catalog

import (
	"math"
	"strconv"
	"strings"
)

// placeholders are cell values that mean "no value". Compared case-insensitively.
var placeholders = map[string]struct{}{
	"":     {},
	"nan":  {},
	"none": {},
	"null": {},
	"n/a":  {},
	"na":   {},
	"-":    {},
	"—":    {},
}

// IsPlaceholder reports whether a raw cell value stands for an absent value.
func IsPlaceholder(raw string) bool {
	_, ok := placeholders[strings.ToLower(strings.TrimSpace(raw))]
	return ok
}

// Text is an optional string field. The zero value is absent.
type Text struct {
	value string
	ok    bool
}

// NewText trims raw and returns an absent Text for placeholder values.
func NewText(raw string) Text {
	v := strings.TrimSpace(raw)
	if IsPlaceholder(v) {
		return Text{}
	}
	return Text{value: v, ok: true}
}

// Get returns the value and whether it is present.
func (t Text) Get() (string, bool) { return t.value, t.ok }

// IsSet reports whether the value is present.
func (t Text) IsSet() bool { return t.ok }

// String returns the value, or "" when absent.
func (t Text) String() string { return t.value }

// Number is an optional numeric field. Values that fail to parse are absent,
// never zero.
type Number struct {
	value float64
	ok    bool
}

// NewNumber parses raw, accepting a decimal comma ("4,5").
func NewNumber(raw string) Number {
	v := strings.TrimSpace(raw)
	if IsPlaceholder(v) {
		return Number{}
	}
	f, err := strconv.ParseFloat(strings.Replace(v, ",", ".", 1), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Number{}
	}
	return Number{value: f, ok: true}
}

// SomeNumber returns a present Number.
func SomeNumber(f float64) Number { return Number{value: f, ok: true} }

// Get returns the value and whether it is present.
func (n Number) Get() (float64, bool) { return n.value, n.ok }

// IsSet reports whether the value is present.
func (n Number) IsSet() bool { return n.ok }

// String formats the value without trailing zeros ("6", "4.5"), or "" when absent.
func (n Number) String() string {
	if !n.ok {
		return ""
	}
	return strconv.FormatFloat(n.value, 'f', -1, 64)
}

// splitValues splits a multi-valued cell on , ; / | and drops placeholders
// and case-insensitive duplicates, keeping first-seen order.
func splitValues(raw string) []string {
	if IsPlaceholder(raw) {
		return nil
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '/' || r == '|'
	})
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if IsPlaceholder(p) {
			continue
		}
		key := strings.ToLower(p)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

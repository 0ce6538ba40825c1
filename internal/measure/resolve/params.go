// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package resolve merges the per-item parameter sources into the single
// canonical map handed to measurement implementations.
package resolve

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Params is a parameter map with canonical lower_underscore keys. All
// inserts go through Set so lookups never depend on the author's casing.
type Params map[string]any

// CanonKey normalises a parameter key: CamelCase becomes lower_underscore,
// spaces and dashes become underscores. Already-canonical keys pass
// through unchanged.
func CanonKey(key string) string {
	key = strings.TrimSpace(key)
	var b strings.Builder
	b.Grow(len(key) + 4)
	runes := []rune(key)
	for i, r := range runes {
		switch {
		case r == ' ' || r == '-':
			b.WriteRune('_')
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteRune('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Set stores a value under the canonical form of key.
func (p Params) Set(key string, v any) {
	p[CanonKey(key)] = v
}

// Get looks a value up by any casing of key.
func (p Params) Get(key string) (any, bool) {
	v, ok := p[CanonKey(key)]
	return v, ok
}

// Has reports whether the key is present in any casing.
func (p Params) Has(key string) bool {
	_, ok := p[CanonKey(key)]
	return ok
}

// String returns the string form of a parameter. Numbers are rendered with
// the shortest decimal representation.
func (p Params) String(key string) (string, bool) {
	v, ok := p.Get(key)
	if !ok {
		return "", false
	}
	return Stringify(v), true
}

// Stringify renders an arbitrary parameter value as a string.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

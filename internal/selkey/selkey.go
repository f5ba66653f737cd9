// Package selkey resolves runner/selection identifiers to canonical lookup
// keys. Upstream producers are inconsistent about whether identifiers are
// emitted as JSON numbers or strings, and some wire formats pad them with
// whitespace, so every lookup tries a layered set of representations. The
// first strategy that matches is authoritative; strategies are never voted
// against each other.
package selkey

import (
	"fmt"
	"strconv"
	"strings"
)

// Normalize returns the canonical trimmed string form of a raw identifier.
// Malformed input never panics; the result is simply a key that will not
// match anything.
func Normalize(raw interface{}) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Candidates returns the lookup keys to try, in priority order: the exact
// trimmed form first, then the numeric-string form when the value parses
// as a number.
func Candidates(raw interface{}) []string {
	exact := Normalize(raw)
	if exact == "" {
		return nil
	}
	out := []string{exact}
	if f, err := strconv.ParseFloat(exact, 64); err == nil {
		numeric := strconv.FormatFloat(f, 'f', -1, 64)
		if numeric != exact {
			out = append(out, numeric)
		}
	}
	return out
}

// equivalent reports whether two keys denote the same identifier under
// string or numeric coercion.
func equivalent(a, b string) bool {
	ta, tb := strings.TrimSpace(a), strings.TrimSpace(b)
	if ta == tb {
		return true
	}
	fa, errA := strconv.ParseFloat(ta, 64)
	fb, errB := strconv.ParseFloat(tb, 64)
	return errA == nil && errB == nil && fa == fb
}

// Lookup resolves raw against a flat position map. It tries the candidate
// keys first, then falls back to scanning all keys for structural equality
// under coercion. A miss returns (0, false) — the caller treats it as "no
// position".
func Lookup(m map[string]float64, raw interface{}) (float64, bool) {
	if len(m) == 0 {
		return 0, false
	}
	cands := Candidates(raw)
	for _, k := range cands {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	if len(cands) == 0 {
		return 0, false
	}
	for k, v := range m {
		if equivalent(k, cands[0]) {
			return v, true
		}
	}
	return 0, false
}

// LookupNested resolves raw against a fancy position map (key -> outcome
// label -> value) with the same layered strategy.
func LookupNested(m map[string]map[string]float64, raw interface{}) (map[string]float64, bool) {
	if len(m) == 0 {
		return nil, false
	}
	cands := Candidates(raw)
	for _, k := range cands {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	if len(cands) == 0 {
		return nil, false
	}
	for k, v := range m {
		if equivalent(k, cands[0]) {
			return v, true
		}
	}
	return nil, false
}

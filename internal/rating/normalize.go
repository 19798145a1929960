package rating

import (
	"math"
	"strings"
)

// Normalize maps an untrusted label->value mapping onto the canonical schema.
// Every category starts at the unscored sentinel. A pair is applied only when
// its label resolves (through the alias table) to a canonical category and its
// value coerces to an integer in [ScoreMin, ScoreMax]; everything else is
// discarded silently, since the upstream producer is free text and routinely
// wrong. Pure function of its inputs.
//
// If two input labels resolve to the same category, the last one applied in
// map iteration order wins. The input comes from an external producer whose
// ordering is not stable, so that case is inherently non-deterministic.
func Normalize(raw map[string]any) Record {
	rec := Record{}
	for _, c := range Schema() {
		rec[c] = Unscored
	}
	for label, value := range raw {
		cat, ok := resolveLabel(label)
		if !ok {
			continue
		}
		v, ok := coerceScore(value)
		if !ok {
			continue
		}
		rec[cat] = ValidScore(v)
	}
	return rec
}

// resolveLabel canonicalizes a raw label. Identity resolution applies when the
// label is already canonical; otherwise the alias table is consulted.
func resolveLabel(label string) (Category, bool) {
	key := strings.ToLower(strings.TrimSpace(label))
	key = strings.ReplaceAll(key, "&", "and")
	key = strings.Join(strings.Fields(key), " ")
	if cat, ok := aliasTable[key]; ok {
		return cat, true
	}
	for _, c := range Schema() {
		canon := strings.ReplaceAll(strings.ToLower(string(c)), "&", "and")
		canon = strings.Join(strings.Fields(canon), " ")
		if key == canon {
			return c, true
		}
	}
	return "", false
}

// coerceScore accepts integers and integral floats inside the score bounds.
// Strings and fractional values are rejected, not rounded: a scorer that
// answers "4.5" or "four" has not followed the contract.
func coerceScore(value any) (int, bool) {
	var v float64
	switch n := value.(type) {
	case int:
		v = float64(n)
	case int32:
		v = float64(n)
	case int64:
		v = float64(n)
	case float32:
		v = float64(n)
	case float64:
		v = n
	default:
		return 0, false
	}
	if v != math.Trunc(v) {
		return 0, false
	}
	i := int(v)
	if i < ScoreMin || i > ScoreMax {
		return 0, false
	}
	return i, true
}

// NormalizeJustifications resolves justification labels against the schema the
// same way scores are resolved, dropping text for unrecognized categories.
func NormalizeJustifications(raw map[string]string) Justifications {
	if len(raw) == 0 {
		return nil
	}
	out := Justifications{}
	for label, text := range raw {
		cat, ok := resolveLabel(label)
		if !ok {
			continue
		}
		out[cat] = strings.TrimSpace(text)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

package rating

import "math"

// ApplyHygieneGate forces any category whose rationale is shorter than
// MinJustificationChars down to a valid 0 and replaces the rationale with a
// fixed message. A missing rationale counts as length zero. The gate only
// makes sense when the scorer produced justifications at all; callers with a
// flat score map pass nil and the record passes through untouched.
func ApplyHygieneGate(rec Record, just Justifications) (Record, Justifications, int) {
	if just == nil {
		return rec, just, 0
	}
	gated := 0
	out := make(Record, len(rec))
	outJust := make(Justifications, len(just))
	for c, t := range just {
		outJust[c] = t
	}
	for c, s := range rec {
		if !s.Valid {
			out[c] = s
			continue
		}
		if len(just[c]) < MinJustificationChars {
			out[c] = ValidScore(0)
			outJust[c] = InsufficientJustification
			gated++
			continue
		}
		out[c] = s
	}
	return out, outJust, gated
}

// ApplyRedFlagOverride suppresses over-optimistic scores when the transcript
// raised multiple red flags: with RedFlagThreshold or more flags and a
// valid-score mean above OverrideMeanFloor, every score above
// OverrideClampAbove is clamped to OverrideClampTarget. Deterministic and
// order-independent; must run after the hygiene gate and before the persisted
// average is computed.
func ApplyRedFlagOverride(rec Record, redFlags []string) (Record, bool) {
	if len(redFlags) < RedFlagThreshold {
		return rec, false
	}
	if Average(rec) <= OverrideMeanFloor {
		return rec, false
	}
	out := make(Record, len(rec))
	fired := false
	for c, s := range rec {
		if s.Valid && s.Value > OverrideClampAbove {
			out[c] = ValidScore(OverrideClampTarget)
			fired = true
			continue
		}
		out[c] = s
	}
	return out, fired
}

// Average is the arithmetic mean over valid scores only, rounded to four
// decimal digits. No valid scores means 0. Dividing by the valid count rather
// than the schema size keeps unscored categories from dragging the mean down.
func Average(rec Record) float64 {
	sum, n := 0, 0
	for _, s := range rec {
		if s.Valid {
			sum += s.Value
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Round(float64(sum)/float64(n)*10000) / 10000
}

// Finalize runs the full post-processing pass in its required order: hygiene
// gate, red-flag override, average.
func Finalize(rec Record, just Justifications, redFlags []string) Result {
	gatedRec, gatedJust, gated := ApplyHygieneGate(rec, just)
	overridden, fired := ApplyRedFlagOverride(gatedRec, redFlags)
	return Result{
		Scores:         overridden,
		Justifications: gatedJust,
		RedFlags:       redFlags,
		Average:        Average(overridden),
		OverrideFired:  fired,
		GatedCount:     gated,
	}
}

// Verdict bands the overall average the way the report presents it.
func Verdict(avg float64) string {
	switch {
	case avg >= 4.5:
		return "Excellent Management - Highly Consistent & Trustworthy"
	case avg >= 3.5:
		return "Good Management - Performing with Stability"
	default:
		return "Needs Further Review - Track Closely"
	}
}

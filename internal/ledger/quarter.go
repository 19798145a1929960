package ledger

import (
	"regexp"
	"strconv"
	"strings"
)

var quarterLabelPattern = regexp.MustCompile(`(?i)^Q([1-4])\s*(?:OF\s*)?FY\s*'?(\d{2,4})$`)

// parseQuarter turns a free-text label like "Q1 FY24" into a sortable
// (fiscal year, quarter number). Two-digit years land in the 2000s.
func parseQuarter(label string) (year, quarter int, ok bool) {
	m := quarterLabelPattern.FindStringSubmatch(strings.TrimSpace(label))
	if len(m) != 3 {
		return 0, 0, false
	}
	q, _ := strconv.Atoi(m[1])
	y, _ := strconv.Atoi(m[2])
	if y < 100 {
		y += 2000
	}
	return y, q, true
}

// quarterLess orders quarter labels chronologically when both parse, sorts
// parseable labels before unparseable ones, and falls back to lexicographic
// order otherwise.
func quarterLess(a, b string) bool {
	ay, aq, aok := parseQuarter(a)
	by, bq, bok := parseQuarter(b)
	switch {
	case aok && bok:
		if ay != by {
			return ay < by
		}
		if aq != bq {
			return aq < bq
		}
		return a < b
	case aok:
		return true
	case bok:
		return false
	default:
		return a < b
	}
}

// Package report renders a completed rating run as a markdown document
// suitable for display or PDF conversion.
package report

import (
	"fmt"
	"strings"

	"github.com/thewiningturtle/management-rating-app/internal/ledger"
	"github.com/thewiningturtle/management-rating-app/internal/rating"
)

func Build(entry ledger.Entry, res rating.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Management Evaluation Summary\n\n")
	fmt.Fprintf(&b, "- Company: %s\n", entry.Company)
	fmt.Fprintf(&b, "- Quarter: %s\n", entry.Quarter)
	fmt.Fprintf(&b, "- Date: %s\n\n", entry.Date)
	fmt.Fprintf(&b, "%s\n\n", rating.Disclaimer)

	fmt.Fprintf(&b, "## Category Ratings\n\n")
	fmt.Fprintf(&b, "| Category | Score | Rationale |\n")
	fmt.Fprintf(&b, "|---|---|---|\n")
	for _, c := range rating.Schema() {
		s := res.Scores[c]
		scoreCell := "unscored"
		if s.Valid {
			scoreCell = fmt.Sprintf("%d/5", s.Value)
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", c, scoreCell, sanitizeCell(res.Justifications[c]))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Overall\n\n")
	fmt.Fprintf(&b, "- Overall Management Rating: **%.2f / 5**\n", res.Average)
	fmt.Fprintf(&b, "- Verdict: %s\n", rating.Verdict(res.Average))
	if res.OverrideFired {
		fmt.Fprintf(&b, "- Consistency override applied: scores above %d were reduced to %d because %d or more red flags accompanied a high mean.\n",
			rating.OverrideClampAbove, rating.OverrideClampTarget, rating.RedFlagThreshold)
	}
	if res.GatedCount > 0 {
		fmt.Fprintf(&b, "- %d categor%s zeroed for insufficient justification.\n", res.GatedCount, plural(res.GatedCount, "y was", "ies were"))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Red Flags\n\n")
	if len(res.RedFlags) == 0 {
		fmt.Fprintf(&b, "None raised.\n")
	}
	for _, f := range res.RedFlags {
		fmt.Fprintf(&b, "- %s\n", sanitizeCell(f))
	}
	b.WriteString("\n")

	return b.String()
}

func sanitizeCell(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	s = strings.ReplaceAll(s, "|", "\\|")
	if s == "" {
		return "-"
	}
	return s
}

func plural(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

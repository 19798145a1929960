package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/thewiningturtle/management-rating-app/internal/rating"
)

// Scores travel through sqlite as a JSON object so the table keeps one row
// per observation regardless of schema width.

func marshalScores(rec rating.Record) string {
	b, err := json.Marshal(rec)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func unmarshalScores(blob string) (rating.Record, error) {
	var rec rating.Record
	if err := json.Unmarshal([]byte(blob), &rec); err != nil {
		return nil, fmt.Errorf("decode scores: %w", err)
	}
	// Older rows may predate a schema change; missing categories read as
	// unscored rather than failing the load.
	for _, c := range rating.Schema() {
		if _, ok := rec[c]; !ok {
			rec[c] = rating.Unscored
		}
	}
	return rec, nil
}

// Package ledger is the durable history of management-rating observations.
// One entry exists per (company, quarter); a new observation for the same key
// replaces the old one. The canonical on-disk form is a human-readable CSV
// table; a sqlite mirror is available for deployments that want queryable
// storage.
package ledger

import (
	"sort"
	"strings"
	"sync"

	"github.com/thewiningturtle/management-rating-app/internal/rating"
)

// Entry is one persisted observation.
type Entry struct {
	Date    string        `json:"date"`
	Company string        `json:"company"`
	Quarter string        `json:"quarter"`
	Scores  rating.Record `json:"scores"`
	Average float64       `json:"average"`
}

// Key is the composite identity of an entry.
type Key struct {
	Company string
	Quarter string
}

func (e Entry) Key() Key {
	return Key{Company: strings.TrimSpace(e.Company), Quarter: strings.TrimSpace(e.Quarter)}
}

// Store is what the pipeline and HTTP layer program against. Load returns the
// full collection (an absent backing store is empty, not an error); Save
// persists it atomically from the caller's perspective; Reset clears entries
// and persists the empty state.
type Store interface {
	Load() ([]Entry, error)
	Upsert(Entry) error
	Save() error
	Reset() error
	Find(Key) (Entry, bool)
	TrendByQuarter() []QuarterTrend
	TrendByCategory(rating.Category) []CategoryPoint
	TrendByCompany() []CompanyTrend
}

type QuarterTrend struct {
	Quarter string  `json:"quarter"`
	Mean    float64 `json:"mean"`
	Count   int     `json:"count"`
}

type CategoryPoint struct {
	Quarter string `json:"quarter"`
	Company string `json:"company"`
	Value   int    `json:"value"`
}

type CompanyTrend struct {
	Company string  `json:"company"`
	Mean    float64 `json:"mean"`
	Count   int     `json:"count"`
}

// History is the in-memory collection shared by both stores. Methods are
// serialized behind a single lock; the load-upsert-save sequence across two
// processes is still a documented lost-update race for the CSV store.
type History struct {
	mu      sync.Mutex
	entries []Entry
}

func NewHistory() *History { return &History{} }

func (h *History) Entries() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

func (h *History) Replace(entries []Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = make([]Entry, len(entries))
	copy(h.entries, entries)
}

// Upsert removes any entry with the same (company, quarter) key, then
// appends. At most one entry per key holds afterwards.
func (h *History) Upsert(e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := e.Key()
	kept := h.entries[:0]
	for _, existing := range h.entries {
		if existing.Key() != key {
			kept = append(kept, existing)
		}
	}
	h.entries = append(kept, e)
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}

func (h *History) Find(key Key) (Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.entries {
		if e.Key() == key {
			return e, true
		}
	}
	return Entry{}, false
}

// TrendByQuarter groups entries by quarter label and returns the mean average
// per quarter, chronologically ascending. Quarter labels parse into (fiscal
// year, quarter number) where possible so "Q2 FY24" sorts before "Q1 FY25";
// unparseable labels sort lexicographically after the parseable ones. The
// original tool sorted label text, which misorders year boundaries.
func (h *History) TrendByQuarter() []QuarterTrend {
	h.mu.Lock()
	defer h.mu.Unlock()
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, e := range h.entries {
		q := strings.TrimSpace(e.Quarter)
		sums[q] += e.Average
		counts[q]++
	}
	out := make([]QuarterTrend, 0, len(sums))
	for q, sum := range sums {
		out = append(out, QuarterTrend{Quarter: q, Mean: sum / float64(counts[q]), Count: counts[q]})
	}
	sort.Slice(out, func(i, j int) bool {
		return quarterLess(out[i].Quarter, out[j].Quarter)
	})
	return out
}

// TrendByCategory returns (quarter, value) pairs for entries holding a valid
// score in the category, chronologically ascending.
func (h *History) TrendByCategory(cat rating.Category) []CategoryPoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []CategoryPoint
	for _, e := range h.entries {
		s, ok := e.Scores[cat]
		if !ok || !s.Valid {
			continue
		}
		out = append(out, CategoryPoint{Quarter: strings.TrimSpace(e.Quarter), Company: e.Company, Value: s.Value})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return quarterLess(out[i].Quarter, out[j].Quarter)
	})
	return out
}

// TrendByCompany returns the mean average per company, descending by mean,
// company name breaking ties so output is stable.
func (h *History) TrendByCompany() []CompanyTrend {
	h.mu.Lock()
	defer h.mu.Unlock()
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, e := range h.entries {
		c := strings.TrimSpace(e.Company)
		sums[c] += e.Average
		counts[c]++
	}
	out := make([]CompanyTrend, 0, len(sums))
	for c, sum := range sums {
		out = append(out, CompanyTrend{Company: c, Mean: sum / float64(counts[c]), Count: counts[c]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Mean != out[j].Mean {
			return out[i].Mean > out[j].Mean
		}
		return out[i].Company < out[j].Company
	})
	return out
}

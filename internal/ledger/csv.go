package ledger

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/thewiningturtle/management-rating-app/internal/rating"
)

// CSVStore keeps the ledger in a human-readable CSV file: one header row, one
// row per entry, unscored categories as empty cells. Saves go through a temp
// file and rename so a concurrent reader never observes a partial write.
type CSVStore struct {
	path  string
	inner *History
}

func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path, inner: NewHistory()}
}

func csvHeader() []string {
	header := []string{"Date", "Company", "Quarter"}
	for _, c := range rating.Schema() {
		header = append(header, string(c))
	}
	return append(header, "Average")
}

func entryToRow(e Entry) []string {
	row := []string{e.Date, e.Company, e.Quarter}
	for _, c := range rating.Schema() {
		s := e.Scores[c]
		if s.Valid {
			row = append(row, strconv.Itoa(s.Value))
		} else {
			row = append(row, "")
		}
	}
	return append(row, strconv.FormatFloat(e.Average, 'f', 4, 64))
}

func rowToEntry(row []string) (Entry, error) {
	want := 4 + len(rating.Schema())
	if len(row) != want {
		return Entry{}, fmt.Errorf("row has %d columns, want %d", len(row), want)
	}
	e := Entry{Date: row[0], Company: row[1], Quarter: row[2], Scores: rating.Record{}}
	for i, c := range rating.Schema() {
		cell := row[3+i]
		if cell == "" {
			e.Scores[c] = rating.Unscored
			continue
		}
		v, err := strconv.Atoi(cell)
		if err != nil {
			return Entry{}, fmt.Errorf("column %q: %w", c, err)
		}
		e.Scores[c] = rating.ValidScore(v)
	}
	avg, err := strconv.ParseFloat(row[len(row)-1], 64)
	if err != nil {
		return Entry{}, fmt.Errorf("average column: %w", err)
	}
	e.Average = avg
	return e, nil
}

// Load reads the backing file into memory and returns the entries. A missing
// file is the valid initial state and yields an empty ledger.
func (s *CSVStore) Load() ([]Entry, error) {
	blob, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.inner.Replace(nil)
			return nil, nil
		}
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	rows, err := csv.NewReader(bytes.NewReader(blob)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse ledger: %w", err)
	}
	var entries []Entry
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		e, err := rowToEntry(row)
		if err != nil {
			return nil, fmt.Errorf("ledger row %d: %w", i+1, err)
		}
		entries = append(entries, e)
	}
	s.inner.Replace(entries)
	return s.inner.Entries(), nil
}

func (s *CSVStore) Upsert(e Entry) error {
	s.inner.Upsert(e)
	return nil
}

// Save rewrites the full table. A failed save leaves the previous file
// untouched and is reported, never swallowed.
func (s *CSVStore) Save() error {
	return writeCSV(s.path, s.inner.Entries())
}

// Reset clears all entries and persists the header-only state. Irreversible.
func (s *CSVStore) Reset() error {
	s.inner.Clear()
	return writeCSV(s.path, nil)
}

func (s *CSVStore) TrendByQuarter() []QuarterTrend { return s.inner.TrendByQuarter() }

func (s *CSVStore) TrendByCategory(cat rating.Category) []CategoryPoint {
	return s.inner.TrendByCategory(cat)
}

func (s *CSVStore) TrendByCompany() []CompanyTrend { return s.inner.TrendByCompany() }

func (s *CSVStore) Find(key Key) (Entry, bool) { return s.inner.Find(key) }

func writeCSV(path string, entries []Entry) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("save ledger: %w", err)
		}
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader()); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	for _, e := range entries {
		if err := w.Write(entryToRow(e)); err != nil {
			return fmt.Errorf("save ledger: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}

// ExportEntryCSV renders one entry as a standalone header+row CSV document,
// the per-run download the UI offers.
func ExportEntryCSV(e Entry) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(csvHeader())
	_ = w.Write(entryToRow(e))
	w.Flush()
	return buf.Bytes()
}

var _ Store = (*CSVStore)(nil)

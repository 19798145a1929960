package ledger

import (
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/thewiningturtle/management-rating-app/internal/rating"
)

// SQLiteStore mirrors the ledger into sqlite with write-through semantics.
// Trend queries run against the embedded in-memory History, which is loaded
// once at open; every Upsert and Reset is persisted immediately, so Save is a
// no-op kept only for the Store contract.
type SQLiteStore struct {
	inner *History
	db    *sqlx.DB
	mu    sync.Mutex
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ratings (
	company    TEXT NOT NULL,
	quarter    TEXT NOT NULL,
	rated_on   TEXT NOT NULL,
	scores     TEXT NOT NULL DEFAULT '{}',
	average    REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (company, quarter)
);
`

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &SQLiteStore{inner: NewHistory(), db: db}
	if err := s.loadAll(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load state: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) loadAll() error {
	rows, err := s.db.Query("SELECT company, quarter, rated_on, scores, average FROM ratings")
	if err != nil {
		return err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		var scoresJSON string
		if err := rows.Scan(&e.Company, &e.Quarter, &e.Date, &scoresJSON, &e.Average); err != nil {
			return err
		}
		rec, err := unmarshalScores(scoresJSON)
		if err != nil {
			return fmt.Errorf("entry (%s, %s): %w", e.Company, e.Quarter, err)
		}
		e.Scores = rec
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	s.inner.Replace(entries)
	return nil
}

func (s *SQLiteStore) Load() ([]Entry, error) {
	return s.inner.Entries(), nil
}

// Upsert writes through to sqlite first and mirrors into memory only on
// success, so a failed write never leaves a phantom entry visible to Load or
// the trend queries.
func (s *SQLiteStore) Upsert(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := e.Key()
	_, err := s.db.Exec(`INSERT OR REPLACE INTO ratings (company, quarter, rated_on, scores, average)
		VALUES (?, ?, ?, ?, ?)`,
		key.Company, key.Quarter, e.Date, marshalScores(e.Scores), e.Average)
	if err != nil {
		return fmt.Errorf("persist entry: %w", err)
	}
	s.inner.Upsert(e)
	return nil
}

func (s *SQLiteStore) Save() error { return nil }

func (s *SQLiteStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("DELETE FROM ratings"); err != nil {
		return fmt.Errorf("reset ledger: %w", err)
	}
	s.inner.Clear()
	return nil
}

func (s *SQLiteStore) TrendByQuarter() []QuarterTrend { return s.inner.TrendByQuarter() }

func (s *SQLiteStore) TrendByCategory(cat rating.Category) []CategoryPoint {
	return s.inner.TrendByCategory(cat)
}

func (s *SQLiteStore) TrendByCompany() []CompanyTrend { return s.inner.TrendByCompany() }

func (s *SQLiteStore) Find(key Key) (Entry, bool) { return s.inner.Find(key) }

var _ Store = (*SQLiteStore)(nil)

package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS price_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	product_url TEXT NOT NULL,
	title TEXT NOT NULL,
	price TEXT NOT NULL,
	observed_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_price_history_url ON price_history (product_url, observed_at);

CREATE TABLE IF NOT EXISTS product_catalog (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source TEXT NOT NULL,
	external_id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	price TEXT NOT NULL DEFAULT '',
	currency TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	image TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	brand TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL,
	UNIQUE (source, external_id)
);
`

// Store persists price observations and catalog rows in one SQLite file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

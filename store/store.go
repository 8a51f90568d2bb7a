package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"mealagent/nutrition"
)

// Store provides access to the meal-logging SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	if path == ":memory:" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS meals (
			id TEXT PRIMARY KEY,
			raw_text TEXT NOT NULL,
			label TEXT NOT NULL,
			kcal REAL NOT NULL DEFAULT 0,
			protein REAL NOT NULL DEFAULT 0,
			carbs REAL NOT NULL DEFAULT 0,
			fat REAL NOT NULL DEFAULT 0,
			date TEXT NOT NULL,
			time_of_day TEXT NOT NULL,
			timezone TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			deleted_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_meals_date ON meals(date)`,
		`CREATE TABLE IF NOT EXISTS meal_entries (
			id TEXT PRIMARY KEY,
			meal_id TEXT REFERENCES meals(id),
			name TEXT NOT NULL,
			display TEXT NOT NULL DEFAULT '',
			amount_grams REAL,
			kcal REAL,
			protein REAL,
			carbs REAL,
			fat REAL,
			source TEXT NOT NULL,
			confidence REAL NOT NULL,
			assumptions TEXT NOT NULL DEFAULT '[]',
			provenance TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			deleted_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_meal ON meal_entries(meal_id)`,
		`CREATE TABLE IF NOT EXISTS entry_revisions (
			id TEXT PRIMARY KEY,
			entry_id TEXT NOT NULL REFERENCES meal_entries(id),
			actor TEXT NOT NULL,
			reason TEXT NOT NULL,
			before_state TEXT NOT NULL,
			after_state TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_sessions (
			session_id TEXT PRIMARY KEY,
			active_meal_id TEXT,
			last_intent TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}',
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS meal_actions (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			meal_id TEXT,
			action_type TEXT NOT NULL,
			status TEXT NOT NULL,
			raw_text TEXT NOT NULL,
			intent TEXT NOT NULL DEFAULT '{}',
			reason TEXT NOT NULL DEFAULT '',
			entry_ids TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			brand TEXT NOT NULL DEFAULT '',
			kcal_100g REAL NOT NULL,
			protein_100g REAL NOT NULL,
			carbs_100g REAL NOT NULL,
			fat_100g REAL NOT NULL,
			url TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// JSON column helpers. Typed values live in the domain layer; they become
// text only here at the persistence boundary.

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal json column: %w", err)
	}
	return string(b), nil
}

func jsonUnmarshal(raw string, out any) error {
	return json.Unmarshal([]byte(raw), out)
}

func unmarshalStrings(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("unmarshal string list column: %w", err)
	}
	return out, nil
}

func unmarshalProvenance(raw string) (nutrition.Provenance, error) {
	var p nutrition.Provenance
	if raw == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, fmt.Errorf("unmarshal provenance column: %w", err)
	}
	return p, nil
}

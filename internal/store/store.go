package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migrations upgrade an archive from user_version i to i+1.
var migrations = []func(*sql.DB) error{
	indexEventType,
}

// Store is a trace archive kept in one SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens the archive at path, creating and migrating it as needed.
// Opening an up-to-date archive changes nothing.
//
// Connection settings travel in the go-sqlite3 DSN so every pooled
// connection gets them:
//   - WAL journal, NORMAL synchronous
//   - 5 second busy timeout
//   - foreign keys on, so deleting a trace deletes its messages
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}

	// One writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func dsn(path string) string {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	q.Set("_busy_timeout", "5000")
	q.Set("_foreign_keys", "on")
	return "file:" + path + "?" + q.Encode()
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SchemaVersion reports the archive's user_version.
func (s *Store) SchemaVersion() (int, error) {
	return schemaVersion(s.db)
}

func schemaVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return v, nil
}

// migrate creates the base tables, then applies every migration past the
// archive's user_version in order.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	v, err := schemaVersion(db)
	if err != nil {
		return err
	}
	for ; v < len(migrations); v++ {
		if err := migrations[v](db); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// indexEventType lets the external-event listing skip whole-trace scans.
func indexEventType(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_messages_event_type
		ON messages(event_type, trace_id, seq)
	`)
	return err
}

// pragma reads a single pragma value as text.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return value, nil
}

package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/TheMichaelB/spritesync/internal/events"
	"github.com/TheMichaelB/spritesync/internal/models"
)

// SQLiteStore keeps the ledger in a SQLite database.
// The database is opened lazily so loading a missing ledger creates nothing
// on disk.
type SQLiteStore struct {
	path   string
	logger *events.Logger

	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteStore creates a SQLite ledger store.
func NewSQLiteStore(path string, logger *events.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite ledger path is required")
	}

	return &SQLiteStore{
		path:   path,
		logger: logger.WithField("component", "sqlite_ledger"),
	}, nil
}

// Path returns the database path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) open() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	db, err := sql.Open("sqlite3", s.path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s.db = db
	return db, nil
}

// initialize creates tables.
func (s *SQLiteStore) initialize(db *sql.DB) error {
	schema := `
    CREATE TABLE IF NOT EXISTS ledger (
        path TEXT PRIMARY KEY,
        hash TEXT NOT NULL,
        position INTEGER NOT NULL
    );

    CREATE TABLE IF NOT EXISTS ledger_info (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL
    );
    `

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Load reads the ledger from the database.
func (s *SQLiteStore) Load() (*models.Ledger, error) {
	s.logger.WithField("path", s.path).Debug("Loading ledger from SQLite")

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil, models.ErrLedgerNotFound
	} else if err != nil {
		return nil, fmt.Errorf("stat ledger: %w", err)
	}

	db, err := s.open()
	if err != nil {
		return nil, err
	}

	var tables int
	err = db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'ledger'`).Scan(&tables)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrLedgerCorrupt, err)
	}
	if tables == 0 {
		return nil, models.ErrLedgerNotFound
	}

	rows, err := db.Query(`SELECT path, hash FROM ledger ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	ledger := models.NewLedger()
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		ledger.Set(path, hash)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger: %w", err)
	}

	return ledger, nil
}

// Save replaces the ledger in a single transaction.
func (s *SQLiteStore) Save(ledger *models.Ledger) error {
	if err := ledger.Validate(); err != nil {
		return fmt.Errorf("validate ledger: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"path":    s.path,
		"entries": ledger.Len(),
	}).Debug("Saving ledger to SQLite")

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}

	db, err := s.open()
	if err != nil {
		return err
	}
	if err := s.initialize(db); err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM ledger"); err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO ledger (path, hash, position) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, path := range ledger.Paths() {
		hash, _ := ledger.Get(path)
		if _, err := stmt.Exec(path, hash, i); err != nil {
			return fmt.Errorf("insert %s: %w", path, err)
		}
	}

	_, err = tx.Exec(`
        INSERT INTO ledger_info (key, value) VALUES ('generator', ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value
    `, Header)
	if err != nil {
		return fmt.Errorf("write ledger info: %w", err)
	}

	return tx.Commit()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

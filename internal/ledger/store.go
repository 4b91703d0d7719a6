package ledger

import (
	"fmt"

	"github.com/spf13/afero"

	"github.com/TheMichaelB/spritesync/internal/events"
	"github.com/TheMichaelB/spritesync/internal/models"
)

// Store persists the fingerprint ledger.
type Store interface {
	// Load reads the ledger. A missing ledger returns
	// models.ErrLedgerNotFound.
	Load() (*models.Ledger, error)

	// Save replaces the whole ledger. On failure the previous ledger is left
	// intact.
	Save(ledger *models.Ledger) error

	// Path returns where the ledger lives.
	Path() string

	// Close releases resources.
	Close() error
}

// Header is the first line of every text ledger.
const Header = "# Generated by spritesync"

// Backend names.
const (
	BackendText   = "text"
	BackendSQLite = "sqlite"
)

// Open creates the store for a backend.
func Open(backend string, fs afero.Fs, path string, logger *events.Logger) (Store, error) {
	switch backend {
	case "", BackendText:
		return NewTextStore(fs, path, logger), nil
	case BackendSQLite:
		return NewSQLiteStore(path, logger)
	default:
		return nil, fmt.Errorf("unknown ledger backend: %s", backend)
	}
}

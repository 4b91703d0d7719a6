package ledger

import (
	"sync"

	"github.com/TheMichaelB/spritesync/internal/models"
)

// MockStore provides a mock implementation for testing.
type MockStore struct {
	mu      sync.Mutex
	ledger  *models.Ledger
	saves   int
	loadErr error
	saveErr error
}

// NewMockStore creates an empty mock store; Load reports ErrLedgerNotFound
// until something is saved or seeded.
func NewMockStore() *MockStore {
	return &MockStore{}
}

// Load returns a copy of the stored ledger.
func (m *MockStore) Load() (*models.Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.ledger == nil {
		return nil, models.ErrLedgerNotFound
	}
	return m.ledger.Clone(), nil
}

// Save stores a copy of the ledger.
func (m *MockStore) Save(ledger *models.Ledger) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveErr != nil {
		return m.saveErr
	}
	if err := ledger.Validate(); err != nil {
		return err
	}
	m.ledger = ledger.Clone()
	m.saves++
	return nil
}

// Path returns a fixed placeholder.
func (m *MockStore) Path() string {
	return "mock://ledger"
}

// Close releases resources.
func (m *MockStore) Close() error {
	return nil
}

// Helper methods for testing

// Seed sets the stored ledger without counting a save.
func (m *MockStore) Seed(ledger *models.Ledger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger = ledger.Clone()
}

// Saves returns how many times Save succeeded.
func (m *MockStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Current returns the stored ledger, or nil.
func (m *MockStore) Current() *models.Ledger {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ledger == nil {
		return nil
	}
	return m.ledger.Clone()
}

// SetLoadError makes Load fail.
func (m *MockStore) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

// SetSaveError makes Save fail.
func (m *MockStore) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

package models

import (
	"fmt"
	"strings"
)

// LedgerCommentPrefix starts a comment line in the ledger file.
const LedgerCommentPrefix = "# "

// Ledger records the fingerprint of every asset as of the last pass.
// Entries keep insertion order so the ledger file is written in scan order.
type Ledger struct {
	order  []string
	hashes map[string]string
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		hashes: make(map[string]string),
	}
}

// LedgerFromScan builds a ledger holding the fresh fingerprints of a scan,
// in scan order.
func LedgerFromScan(scan *ScanResult) *Ledger {
	l := NewLedger()
	for _, path := range scan.Sources {
		l.Set(path, scan.Hashes[path])
	}
	return l
}

// Set adds or updates an entry. New paths are appended to the order.
func (l *Ledger) Set(path, hash string) {
	if l.hashes == nil {
		l.hashes = make(map[string]string)
	}
	if _, exists := l.hashes[path]; !exists {
		l.order = append(l.order, path)
	}
	l.hashes[path] = hash
}

// Remove drops an entry.
func (l *Ledger) Remove(path string) {
	if _, exists := l.hashes[path]; !exists {
		return
	}
	delete(l.hashes, path)
	for i, p := range l.order {
		if p == path {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// Get returns the fingerprint for path.
func (l *Ledger) Get(path string) (string, bool) {
	if l.hashes == nil {
		return "", false
	}
	hash, ok := l.hashes[path]
	return hash, ok
}

// Has checks if path is tracked.
func (l *Ledger) Has(path string) bool {
	_, ok := l.Get(path)
	return ok
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	return len(l.order)
}

// Paths returns the tracked paths in ledger order.
func (l *Ledger) Paths() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Map returns a copy of the entries as a plain map.
func (l *Ledger) Map() map[string]string {
	out := make(map[string]string, len(l.hashes))
	for k, v := range l.hashes {
		out[k] = v
	}
	return out
}

// Equal reports whether both ledgers hold the same entries in the same order.
func (l *Ledger) Equal(other *Ledger) bool {
	if other == nil || l.Len() != other.Len() {
		return false
	}
	for i, path := range l.order {
		if other.order[i] != path || other.hashes[path] != l.hashes[path] {
			return false
		}
	}
	return true
}

// Clone creates a deep copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	clone := NewLedger()
	for _, path := range l.order {
		clone.Set(path, l.hashes[path])
	}
	return clone
}

// Validate checks that every entry can be written as a ledger line.
func (l *Ledger) Validate() error {
	for _, path := range l.order {
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("ledger path cannot be empty")
		}
		if strings.ContainsAny(path, "\n\r") {
			return fmt.Errorf("ledger path contains a line break: %q", path)
		}
		if strings.HasPrefix(path, LedgerCommentPrefix) {
			return fmt.Errorf("ledger path would be read back as a comment: %q", path)
		}

		hash := l.hashes[path]
		if hash == "" || strings.ContainsAny(hash, " \n\r") {
			return fmt.Errorf("invalid fingerprint for path %s: %q", path, hash)
		}
	}
	return nil
}

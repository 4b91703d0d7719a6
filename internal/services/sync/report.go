package sync

import (
	"time"

	"github.com/TheMichaelB/spritesync/internal/models"
)

// Report summarizes one pass.
type Report struct {
	Plan          *models.Plan
	Preview       bool
	Deleted       []string
	Exported      []string
	Failures      []Failure
	Warnings      []Warning
	LedgerMissing bool // no ledger existed before the pass
	LedgerWritten bool
	StartTime     time.Time
	Duration      time.Duration
}

// Failure is a per-asset error that did not stop the pass.
type Failure struct {
	Path  string
	Class models.Classification
	Err   error
}

// Warning is a tolerated anomaly, such as an artifact that vanished before
// it could be deleted.
type Warning struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Failed returns the number of per-asset failures.
func (r *Report) Failed() int {
	return len(r.Failures)
}

// Changed reports whether the pass had anything to do.
func (r *Report) Changed() bool {
	return r.Plan != nil && !r.Plan.Empty()
}

package sync

import (
	"github.com/TheMichaelB/spritesync/internal/models"
)

// Classify assigns every logical path in the scan to exactly one class.
// Source paths keep scan order; deleted paths are sorted.
func Classify(scan *models.ScanResult, ledger *models.Ledger) *models.Plan {
	plan := &models.Plan{
		Added:     []string{},
		Updated:   []string{},
		Unchanged: []string{},
		Deleted:   []string{},
	}

	for _, path := range scan.Sources {
		if !scan.HasOutput(path) {
			plan.Added = append(plan.Added, path)
			continue
		}

		known, ok := ledger.Get(path)
		if !ok || known != scan.Hashes[path] {
			plan.Updated = append(plan.Updated, path)
			continue
		}

		plan.Unchanged = append(plan.Unchanged, path)
	}

	for _, path := range scan.SortedOutputs() {
		if !scan.HasSource(path) {
			plan.Deleted = append(plan.Deleted, path)
		}
	}

	return plan
}

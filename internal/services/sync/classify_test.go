package sync_test

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TheMichaelB/spritesync/internal/models"
	"github.com/TheMichaelB/spritesync/internal/services/sync"
)

func scanOf(sources map[string]string, outputs ...string) *models.ScanResult {
	scan := models.NewScanResult()
	for path, hash := range sources {
		scan.Sources = append(scan.Sources, path)
		scan.Hashes[path] = hash
	}
	sort.Strings(scan.Sources)
	for _, path := range outputs {
		scan.Outputs[path] = models.OutputEntry{Path: path, Artifact: path + ".png"}
	}
	return scan
}

func ledgerOf(entries map[string]string) *models.Ledger {
	l := models.NewLedger()
	for path, hash := range entries {
		l.Set(path, hash)
	}
	return l
}

func TestClassify(t *testing.T) {
	scan := scanOf(map[string]string{
		"added.ase":     "a1",
		"updated.ase":   "u2",
		"untracked.ase": "t1",
		"same.ase":      "s1",
	}, "updated.ase", "untracked.ase", "same.ase", "gone.ase")

	ledger := ledgerOf(map[string]string{
		"updated.ase": "u1",
		"same.ase":    "s1",
		"gone.ase":    "g1",
		"added.ase":   "a0",
	})

	plan := sync.Classify(scan, ledger)

	assert.Equal(t, []string{"added.ase"}, plan.Added)
	assert.Equal(t, []string{"untracked.ase", "updated.ase"}, plan.Updated)
	assert.Equal(t, []string{"same.ase"}, plan.Unchanged)
	assert.Equal(t, []string{"gone.ase"}, plan.Deleted)
}

func TestClassifyEmpty(t *testing.T) {
	plan := sync.Classify(models.NewScanResult(), models.NewLedger())

	assert.True(t, plan.Empty())
	assert.Equal(t, 0, plan.Total())
	assert.NotNil(t, plan.Added)
	assert.NotNil(t, plan.Deleted)
}

func TestClassifyIgnoresLedgerOnlyEntries(t *testing.T) {
	// A path known only to the ledger has neither source nor output.
	plan := sync.Classify(models.NewScanResult(), ledgerOf(map[string]string{"ghost.ase": "x"}))
	assert.Equal(t, 0, plan.Total())
}

func TestClassifyPartition(t *testing.T) {
	// Every combination of source present, output present, ledger state.
	scan := models.NewScanResult()
	ledger := models.NewLedger()
	union := make(map[string]bool)

	for i := 0; i < 24; i++ {
		path := fmt.Sprintf("sprite/%02d.ase", i)
		hasSource := i%2 == 0
		hasOutput := (i/2)%2 == 0
		ledgerState := (i / 4) % 3 // 0 absent, 1 matches, 2 differs

		if hasSource {
			scan.Sources = append(scan.Sources, path)
			scan.Hashes[path] = "h" + path
		}
		if hasOutput {
			scan.Outputs[path] = models.OutputEntry{Path: path, Artifact: path + ".png"}
		}
		switch ledgerState {
		case 1:
			ledger.Set(path, "h"+path)
		case 2:
			ledger.Set(path, "old")
		}
		if hasSource || hasOutput {
			union[path] = true
		}
	}

	plan := sync.Classify(scan, ledger)

	seen := make(map[string]int)
	for _, group := range [][]string{plan.Added, plan.Updated, plan.Unchanged, plan.Deleted} {
		for _, path := range group {
			seen[path]++
		}
	}

	assert.Len(t, seen, len(union), "no path omitted or invented")
	for path := range union {
		assert.Equal(t, 1, seen[path], "path %s must be in exactly one class", path)
	}
	assert.Equal(t, len(union), plan.Total())
}

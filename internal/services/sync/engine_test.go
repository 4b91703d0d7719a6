package sync_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/spritesync/internal/events"
	"github.com/TheMichaelB/spritesync/internal/ledger"
	"github.com/TheMichaelB/spritesync/internal/models"
	"github.com/TheMichaelB/spritesync/internal/scanner"
	"github.com/TheMichaelB/spritesync/internal/services/sync"
	"github.com/TheMichaelB/spritesync/internal/storage"
	"github.com/TheMichaelB/spritesync/internal/testutil"
)

const header = "# Generated by spritesync\n"

type harness struct {
	tree   *testutil.SpriteTree
	conv   *testutil.FakeConverter
	store  ledger.Store
	engine *sync.Engine
	events []sync.Event
	logs   *testutil.LogOutput
}

type harnessOption func(*harness, *sync.EngineConfig)

func withStore(store ledger.Store) harnessOption {
	return func(h *harness, _ *sync.EngineConfig) { h.store = store }
}

func withRetryFailed() harnessOption {
	return func(_ *harness, cfg *sync.EngineConfig) { cfg.RetryFailed = true }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	return newHarnessWithScanner(t, nil, opts...)
}

func newHarnessWithScanner(t *testing.T, wrap func(sync.Scanner) sync.Scanner, opts ...harnessOption) *harness {
	t.Helper()

	tree := testutil.NewSpriteTree(t)
	cfg := tree.Config
	logger, logs := testutil.NewCapturingLogger()

	h := &harness{
		tree: tree,
		conv: testutil.NewFakeConverter(tree.Fs, cfg.Export.Suffix),
		logs: logs,
	}

	engineCfg := &sync.EngineConfig{
		SidecarSuffixes: cfg.Export.SidecarSuffixes,
	}
	for _, opt := range opts {
		opt(h, engineCfg)
	}
	if h.store == nil {
		h.store = ledger.NewTextStore(tree.Fs, cfg.Paths.LedgerFile, logger)
	}

	fsScanner, err := scanner.New(tree.Fs, scanner.Options{
		SourceRoot:       cfg.Paths.SourceDir,
		OutputRoot:       cfg.Paths.OutputDir,
		SourceExtensions: cfg.Export.SourceExtensions,
		ExportSuffix:     cfg.Export.Suffix,
		Algorithm:        cfg.Fingerprint.Algorithm,
	}, logger)
	require.NoError(t, err)

	var scan sync.Scanner = fsScanner
	if wrap != nil {
		scan = wrap(scan)
	}

	output, err := storage.NewLocalStore(tree.Fs, cfg.Paths.OutputDir, logger)
	require.NoError(t, err)

	h.engine = sync.NewEngine(scan, h.store, output, h.conv, engineCfg, logger)
	h.engine.OnEvent(func(e sync.Event) {
		h.events = append(h.events, e)
	})
	return h
}

func (h *harness) run(t *testing.T) *sync.Report {
	t.Helper()
	report, err := h.engine.Run(context.Background(), sync.RunOptions{})
	require.NoError(t, err)
	require.NotNil(t, report)
	return report
}

func (h *harness) eventTypes() []sync.EventType {
	types := make([]sync.EventType, len(h.events))
	for i, e := range h.events {
		types[i] = e.Type
	}
	return types
}

func TestAddedScenario(t *testing.T) {
	h := newHarness(t)
	h.tree.WriteSource("sprite/walk.ase", "walk-v1")

	report := h.run(t)

	assert.Equal(t, []string{"sprite/walk.ase"}, report.Plan.Added)
	assert.True(t, report.LedgerMissing)
	assert.True(t, report.LedgerWritten)
	assert.Equal(t, []string{"sprite/walk.ase"}, report.Exported)

	calls := h.conv.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, h.tree.SourcePath("sprite/walk.ase"), calls[0].Source)
	assert.Equal(t, h.tree.OutputPath("sprite/walk.ase"), calls[0].Target)

	assert.True(t, h.tree.OutputExists("sprite/walk.ase.png"))
	assert.Equal(t, header+"sprite/walk.ase "+testutil.Hash("walk-v1")+"\n", h.tree.ReadLedger())
}

func TestUpdatedScenario(t *testing.T) {
	h := newHarness(t)
	h.tree.WriteSource("sprite/walk.ase", "walk-v2")
	h.tree.WriteOutput("sprite/walk.ase.png", "old png")
	h.tree.WriteLedger(header + "sprite/walk.ase abc123\n")

	report := h.run(t)

	assert.Equal(t, []string{"sprite/walk.ase"}, report.Plan.Updated)
	assert.Empty(t, report.Plan.Added)
	assert.Len(t, h.conv.Calls(), 1)
	assert.Equal(t, header+"sprite/walk.ase "+testutil.Hash("walk-v2")+"\n", h.tree.ReadLedger())
}

func TestUpdatedWhenMissingFromLedger(t *testing.T) {
	h := newHarness(t)
	h.tree.WriteSource("walk.ase", "walk")
	h.tree.WriteOutput("walk.ase.png", "png")

	report := h.run(t)

	assert.Equal(t, []string{"walk.ase"}, report.Plan.Updated)
	assert.Len(t, h.conv.Calls(), 1)
}

func TestDeletedScenario(t *testing.T) {
	h := newHarness(t)
	h.tree.WriteOutput("sprite/old.ase.png", "png")
	h.tree.WriteOutput("sprite/old.ase.png.import", "sidecar")
	h.tree.WriteSource("keep.ase", "keep")
	h.tree.WriteOutput("keep.ase.png", "png")
	h.tree.WriteLedger(header + "sprite/old.ase abc123\nkeep.ase " + testutil.Hash("keep") + "\n")

	// Deletions alone never need the converter.
	h.conv.SetMissing(true)

	report := h.run(t)

	assert.Equal(t, []string{"sprite/old.ase"}, report.Plan.Deleted)
	assert.Equal(t, []string{"sprite/old.ase"}, report.Deleted)
	assert.Empty(t, report.Warnings)
	assert.Empty(t, h.conv.Calls())

	assert.False(t, h.tree.OutputExists("sprite/old.ase.png"))
	assert.False(t, h.tree.OutputExists("sprite/old.ase.png.import"))
	assert.True(t, h.tree.OutputExists("keep.ase.png"))

	dirExists, err := afero.DirExists(h.tree.Fs, h.tree.OutputPath("sprite"))
	require.NoError(t, err)
	assert.False(t, dirExists, "emptied directory is pruned")

	assert.Equal(t, header+"keep.ase "+testutil.Hash("keep")+"\n", h.tree.ReadLedger())
}

func TestDeletedWithoutSidecar(t *testing.T) {
	h := newHarness(t)
	h.tree.WriteOutput("old.ase.png", "png")

	report := h.run(t)

	assert.Equal(t, []string{"old.ase"}, report.Deleted)
	assert.Empty(t, report.Warnings, "a missing sidecar is not reported")
	assert.Equal(t, 0, report.Failed())
	assert.False(t, h.tree.OutputExists("old.ase.png"))
	assert.Equal(t, header, h.tree.ReadLedger())
}

func TestRenameDeletesBeforeExport(t *testing.T) {
	h := newHarness(t)
	h.tree.WriteSource("walk.ase", "walk")
	h.run(t)

	h.tree.RemoveSource("walk.ase")
	h.tree.WriteSource("run.ase", "walk")
	h.events = nil

	report := h.run(t)

	assert.Equal(t, []string{"walk.ase"}, report.Plan.Deleted)
	assert.Equal(t, []string{"run.ase"}, report.Plan.Added)
	assert.False(t, h.tree.OutputExists("walk.ase.png"))
	assert.True(t, h.tree.OutputExists("run.ase.png"))

	deletedAt, exportedAt := -1, -1
	for i, e := range h.events {
		switch e.Type {
		case sync.EventDeleted:
			deletedAt = i
		case sync.EventExportStarted:
			exportedAt = i
		}
	}
	require.NotEqual(t, -1, deletedAt)
	require.NotEqual(t, -1, exportedAt)
	assert.Less(t, deletedAt, exportedAt)
}

func TestUpdatedExportedBeforeAdded(t *testing.T) {
	h := newHarness(t)
	h.tree.WriteSource("a-new.ase", "new")
	h.tree.WriteSource("z-changed.ase", "v2")
	h.tree.WriteOutput("z-changed.ase.png", "png")
	h.tree.WriteLedger(header + "z-changed.ase old\n")

	h.run(t)

	assert.Equal(t, []string{
		h.tree.SourcePath("z-changed.ase"),
		h.tree.SourcePath("a-new.ase"),
	}, h.conv.Sources())

	var classes []models.Classification
	for _, e := range h.events {
		if e.Type == sync.EventExportComplete {
			classes = append(classes, e.Class)
		}
	}
	assert.Equal(t, []models.Classification{models.ClassUpdated, models.ClassAdded}, classes)
}

func TestIdempotence(t *testing.T) {
	h := newHarness(t)
	h.tree.WriteSource("sprite/walk.ase", "walk")
	h.tree.WriteSource("hero.aseprite", "hero")

	first := h.run(t)
	require.True(t, first.Changed())
	ledgerAfterFirst := h.tree.ReadLedger()
	callsAfterFirst := len(h.conv.Calls())

	second := h.run(t)

	assert.False(t, second.Changed())
	assert.False(t, second.LedgerWritten)
	assert.Equal(t, []string{"hero.aseprite", "sprite/walk.ase"}, second.Plan.Unchanged)
	assert.Len(t, h.conv.Calls(), callsAfterFirst)
	assert.Equal(t, ledgerAfterFirst, h.tree.ReadLedger())
}

func TestIdempotenceWithHashPrefixedName(t *testing.T) {
	h := newHarness(t)
	h.tree.WriteSource("#boss.ase", "boss")

	first := h.run(t)
	assert.Equal(t, []string{"#boss.ase"}, first.Exported)
	assert.Contains(t, h.tree.ReadLedger(), "\n#boss.ase "+testutil.Hash("boss")+"\n")

	second := h.run(t)
	assert.False(t, second.Changed())
	assert.Equal(t, []string{"#boss.ase"}, second.Plan.Unchanged)
	assert.Len(t, h.conv.Calls(), 1)
}

func TestHiddenSourceKeepsHiddenArtifact(t *testing.T) {
	h := newHarness(t)
	h.tree.WriteSource(".draft.ase", "draft")
	h.tree.WriteOutput(".draft.ase.png", "png")
	h.tree.WriteSource("walk.ase", "walk")

	report := h.run(t)

	assert.Empty(t, report.Plan.Deleted)
	assert.Empty(t, report.Deleted)
	assert.Equal(t, []string{"walk.ase"}, report.Exported)
	assert.True(t, h.tree.OutputExists(".draft.ase.png"))
	assert.Equal(t, header+"walk.ase "+testutil.Hash("walk")+"\n", h.tree.ReadLedger())
}

func TestNoOpDoesNotWriteLedger(t *testing.T) {
	store := ledger.NewMockStore()
	h := newHarness(t, withStore(store))
	h.tree.WriteSource("walk.ase", "walk")
	h.tree.WriteOutput("walk.ase.png", "png")

	seed := models.NewLedger()
	seed.Set("walk.ase", testutil.Hash("walk"))
	store.Seed(seed)

	report := h.run(t)

	assert.True(t, report.Plan.Empty())
	assert.Equal(t, 0, store.Saves())
	assert.Empty(t, h.conv.Calls())
	assert.Contains(t, h.eventTypes(), sync.EventNothingToDo)
}

func TestEmptyTreeIsNoOp(t *testing.T) {
	h := newHarness(t)

	report := h.run(t)

	assert.False(t, report.Changed())
	assert.Equal(t, "", h.tree.ReadLedger(), "no ledger is created for an empty pass")
}

func TestPreviewMode(t *testing.T) {
	setup := func(h *harness) {
		h.tree.WriteSource("added.ase", "added")
		h.tree.WriteSource("updated.ase", "v2")
		h.tree.WriteOutput("updated.ase.png", "png")
		h.tree.WriteOutput("deleted.ase.png", "png")
		h.tree.WriteOutput("deleted.ase.png.import", "sidecar")
		h.tree.WriteLedger(header + "updated.ase v1\ndeleted.ase d1\n")
	}

	preview := newHarness(t)
	setup(preview)
	before := preview.tree.Snapshot()

	report, err := preview.engine.Run(context.Background(), sync.RunOptions{Preview: true})
	require.NoError(t, err)

	assert.True(t, report.Preview)
	assert.False(t, report.LedgerWritten)
	assert.Equal(t, before, preview.tree.Snapshot(), "preview must not touch the filesystem")
	assert.Empty(t, preview.conv.Calls())
	assert.Contains(t, preview.eventTypes(), sync.EventPreview)

	normal := newHarness(t)
	setup(normal)
	normalReport := normal.run(t)

	assert.Equal(t, normalReport.Plan, report.Plan)
}

func TestPreviewWithMissingLedgerCreatesNothing(t *testing.T) {
	h := newHarness(t)
	h.tree.WriteSource("walk.ase", "walk")
	before := h.tree.Snapshot()

	_, err := h.engine.Run(context.Background(), sync.RunOptions{Preview: true})
	require.NoError(t, err)

	assert.Equal(t, before, h.tree.Snapshot())
}

func TestExportFailureContinuesBatch(t *testing.T) {
	h := newHarness(t)
	h.tree.WriteSource("bad.ase", "bad")
	h.tree.WriteSource("good.ase", "good")
	h.conv.FailOn("bad.ase", "cannot open file")

	report := h.run(t)

	require.Equal(t, 1, report.Failed())
	assert.Equal(t, "bad.ase", report.Failures[0].Path)
	assert.Equal(t, models.ClassAdded, report.Failures[0].Class)

	var exportErr *models.ExportError
	require.True(t, errors.As(report.Failures[0].Err, &exportErr))
	assert.Equal(t, "cannot open file", exportErr.Diagnostic)

	assert.Equal(t, []string{"good.ase"}, report.Exported)
	assert.True(t, h.tree.OutputExists("good.ase.png"))
	assert.Contains(t, h.eventTypes(), sync.EventExportFailed)
	assert.True(t, h.logs.HasMessage("Export failed"))

	// The failed asset is recorded with its current fingerprint.
	assert.Equal(t, header+
		"bad.ase "+testutil.Hash("bad")+"\n"+
		"good.ase "+testutil.Hash("good")+"\n", h.tree.ReadLedger())
}

func TestRetryFailedKeepsAssetDirty(t *testing.T) {
	h := newHarness(t, withRetryFailed())
	h.tree.WriteSource("new.ase", "new")
	h.tree.WriteSource("changed.ase", "v2")
	h.tree.WriteOutput("changed.ase.png", "png")
	h.tree.WriteLedger(header + "changed.ase v1\n")
	h.conv.FailOn("new.ase", "boom")
	h.conv.FailOn("changed.ase", "boom")

	report := h.run(t)
	assert.Equal(t, 2, report.Failed())

	// Failed updates keep the old fingerprint, failed adds are left out.
	assert.Equal(t, header+"changed.ase v1\n", h.tree.ReadLedger())

	second := h.run(t)
	assert.Equal(t, []string{"new.ase"}, second.Plan.Added)
	assert.Equal(t, []string{"changed.ase"}, second.Plan.Updated)
}

func TestConverterMissingIsFatalBeforeMutation(t *testing.T) {
	h := newHarness(t)
	h.tree.WriteSource("walk.ase", "walk")
	h.tree.WriteOutput("old.ase.png", "png")
	h.conv.SetMissing(true)
	before := h.tree.Snapshot()

	_, err := h.engine.Run(context.Background(), sync.RunOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConverterNotFound)

	var syncErr *models.SyncError
	require.True(t, errors.As(err, &syncErr))
	assert.Equal(t, models.ErrCodeConverter, syncErr.Code)

	assert.Equal(t, before, h.tree.Snapshot(), "no deletion or ledger write may happen")
	assert.Contains(t, h.eventTypes(), sync.EventFailed)
}

func TestMalformedLedgerIsFatal(t *testing.T) {
	h := newHarness(t)
	h.tree.WriteSource("walk.ase", "walk")
	h.tree.WriteLedger(header + "no-space-here\n")
	before := h.tree.Snapshot()

	_, err := h.engine.Run(context.Background(), sync.RunOptions{})

	assert.ErrorIs(t, err, models.ErrLedgerCorrupt)
	assert.Empty(t, h.conv.Calls())
	assert.Equal(t, before, h.tree.Snapshot())
}

func TestMissingSourceRootIsFatal(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.tree.Fs.RemoveAll(h.tree.Config.Paths.SourceDir))

	_, err := h.engine.Run(context.Background(), sync.RunOptions{})

	assert.ErrorIs(t, err, models.ErrScan)
}

// vanishingScanner removes an artifact after scanning, as if another
// process deleted it mid-pass.
type vanishingScanner struct {
	inner  sync.Scanner
	remove func() error
}

func (s *vanishingScanner) Scan(ctx context.Context) (*models.ScanResult, error) {
	result, err := s.inner.Scan(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.remove(); err != nil {
		return nil, err
	}
	return result, nil
}

func TestMissingArtifactIsWarning(t *testing.T) {
	// The harness builds the scanner before it returns, so the tree is only
	// reachable once Scan runs.
	var h *harness
	h = newHarnessWithScanner(t, func(inner sync.Scanner) sync.Scanner {
		return &vanishingScanner{inner: inner, remove: func() error {
			return h.tree.Fs.Remove(h.tree.OutputPath("old.ase.png"))
		}}
	})
	h.tree.WriteOutput("old.ase.png", "png")
	h.tree.WriteSource("walk.ase", "walk")

	report := h.run(t)

	require.Len(t, report.Warnings, 1)
	assert.Equal(t, "old.ase", report.Warnings[0].Path)
	assert.Equal(t, 0, report.Failed())
	assert.Contains(t, h.eventTypes(), sync.EventDeleteWarning)
	assert.True(t, h.logs.HasLevel("warn"))
	assert.True(t, h.logs.HasMessage("Artifact already gone"))
	assert.True(t, report.LedgerWritten)
	assert.True(t, h.tree.OutputExists("walk.ase.png"))
}

func TestEventOrder(t *testing.T) {
	h := newHarness(t)
	h.tree.WriteSource("walk.ase", "walk")

	h.run(t)

	assert.Equal(t, []sync.EventType{
		sync.EventStarted,
		sync.EventScanned,
		sync.EventClassified,
		sync.EventExportStarted,
		sync.EventExportComplete,
		sync.EventLedgerWritten,
		sync.EventCompleted,
	}, h.eventTypes())

	for _, e := range h.events {
		assert.False(t, e.Timestamp.IsZero())
	}
}

func TestProgress(t *testing.T) {
	h := newHarness(t)
	assert.Nil(t, h.engine.GetProgress())

	h.tree.WriteSource("a.ase", "a")
	h.tree.WriteSource("b.ase", "b")
	h.run(t)

	progress := h.engine.GetProgress()
	require.NotNil(t, progress)
	assert.Equal(t, "complete", progress.Phase)
	assert.Equal(t, 2, progress.TotalFiles)
	assert.Equal(t, 2, progress.ProcessedFiles)
}

func TestProgressSnapshotsAreStable(t *testing.T) {
	h := newHarness(t)
	h.tree.WriteSource("a.ase", "a")
	h.tree.WriteSource("b.ase", "b")

	var started []*sync.Progress
	h.engine.OnEvent(func(e sync.Event) {
		if e.Type == sync.EventExportStarted {
			started = append(started, e.Progress)
		}
	})

	// Poll from another goroutine while the pass mutates its own state.
	stop := make(chan struct{})
	polled := make(chan struct{})
	go func() {
		defer close(polled)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if p := h.engine.GetProgress(); p != nil {
				_ = p.Phase
				_ = p.ProcessedFiles
				_ = len(p.Errors)
			}
		}
	}()

	h.run(t)
	close(stop)
	<-polled

	require.Len(t, started, 2)
	assert.Equal(t, "exporting", started[0].Phase)
	assert.Equal(t, "a.ase", started[0].CurrentFile)
	assert.Equal(t, 0, started[0].ProcessedFiles)
	assert.Equal(t, "b.ase", started[1].CurrentFile)
	assert.Equal(t, 1, started[1].ProcessedFiles)

	final := h.engine.GetProgress()
	assert.Equal(t, "complete", final.Phase)
	assert.NotSame(t, started[1], final)
}

// blockingConverter holds every export until released.
type blockingConverter struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingConverter) Check() error { return nil }

func (b *blockingConverter) Export(ctx context.Context, source, target string) error {
	b.started <- struct{}{}
	<-b.release
	return nil
}

func TestPassInProgress(t *testing.T) {
	tree := testutil.NewSpriteTree(t)
	tree.WriteSource("walk.ase", "walk")
	logger := events.NewNopLogger()
	cfg := tree.Config

	scan, err := scanner.New(tree.Fs, scanner.Options{
		SourceRoot:       cfg.Paths.SourceDir,
		OutputRoot:       cfg.Paths.OutputDir,
		SourceExtensions: cfg.Export.SourceExtensions,
		ExportSuffix:     cfg.Export.Suffix,
	}, logger)
	require.NoError(t, err)
	output, err := storage.NewLocalStore(tree.Fs, cfg.Paths.OutputDir, logger)
	require.NoError(t, err)

	conv := &blockingConverter{started: make(chan struct{}, 1), release: make(chan struct{})}
	engine := sync.NewEngine(scan, ledger.NewMockStore(), output, conv, &sync.EngineConfig{}, logger)

	done := make(chan error, 1)
	go func() {
		_, err := engine.Run(context.Background(), sync.RunOptions{})
		done <- err
	}()

	select {
	case <-conv.started:
	case <-time.After(5 * time.Second):
		t.Fatal("export never started")
	}

	_, err = engine.Run(context.Background(), sync.RunOptions{})
	assert.ErrorIs(t, err, models.ErrPassInProgress)

	close(conv.release)
	require.NoError(t, <-done)
}

func TestPassLogsCarryPassNumber(t *testing.T) {
	h := newHarness(t)
	h.tree.WriteSource("walk.ase", "walk")

	h.run(t)
	h.run(t)

	var passes []interface{}
	for _, entry := range h.logs.Entries() {
		if entry.Message == "Starting pass" {
			passes = append(passes, entry.Fields["pass"])
		}
	}
	// JSON numbers decode as float64.
	assert.Equal(t, []interface{}{float64(1), float64(2)}, passes)
}

func TestCancelledBeforeMutation(t *testing.T) {
	h := newHarness(t)
	h.tree.WriteSource("walk.ase", "walk")
	before := h.tree.Snapshot()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.engine.Run(ctx, sync.RunOptions{})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, before, h.tree.Snapshot())
}

func TestSQLiteBackedPass(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	store, err := ledger.NewSQLiteStore(dbPath, events.NewNopLogger())
	require.NoError(t, err)
	defer store.Close()

	h := newHarness(t, withStore(store))
	h.tree.WriteSource("walk.ase", "walk")

	first := h.run(t)
	assert.True(t, first.LedgerWritten)

	second := h.run(t)
	assert.False(t, second.Changed())
	assert.Equal(t, []string{"walk.ase"}, second.Plan.Unchanged)
}

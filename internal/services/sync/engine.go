package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TheMichaelB/spritesync/internal/converter"
	"github.com/TheMichaelB/spritesync/internal/events"
	"github.com/TheMichaelB/spritesync/internal/ledger"
	"github.com/TheMichaelB/spritesync/internal/models"
	"github.com/TheMichaelB/spritesync/internal/storage"
)

// Scanner produces the current state of the source and output trees.
type Scanner interface {
	Scan(ctx context.Context) (*models.ScanResult, error)
}

// Engine implements the reconciliation pass.
type Engine struct {
	scanner   Scanner
	ledger    ledger.Store
	output    storage.OutputStore
	converter converter.Converter
	logger    *events.Logger

	// Configuration
	sidecarSuffixes []string
	retryFailed     bool

	// Progress tracking
	progress atomic.Value // *Progress
	handler  Handler
	passes   atomic.Int64

	// Pass state
	mu      sync.Mutex
	running bool
}

// Progress tracks pass progress.
type Progress struct {
	Phase          string
	TotalFiles     int
	ProcessedFiles int
	CurrentFile    string
	StartTime      time.Time
	Errors         []error
}

// Event represents a pass event.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Path      string
	Class     models.Classification
	Plan      *models.Plan
	Error     error
	Message   string
	Progress  *Progress
}

// EventType defines pass event types.
type EventType string

const (
	EventStarted        EventType = "started"
	EventScanned        EventType = "scanned"
	EventClassified     EventType = "classified"
	EventNothingToDo    EventType = "nothing_to_do"
	EventPreview        EventType = "preview"
	EventDeleted        EventType = "deleted"
	EventDeleteWarning  EventType = "delete_warning"
	EventDeleteFailed   EventType = "delete_failed"
	EventExportStarted  EventType = "export_started"
	EventExportComplete EventType = "export_complete"
	EventExportFailed   EventType = "export_failed"
	EventLedgerWritten  EventType = "ledger_written"
	EventCompleted      EventType = "completed"
	EventFailed         EventType = "failed"
)

// Handler receives events synchronously, in emission order.
type Handler func(Event)

// EngineConfig contains engine configuration.
type EngineConfig struct {
	SidecarSuffixes []string
	RetryFailed     bool
}

// RunOptions configures one pass.
type RunOptions struct {
	Preview bool // classify and report only
}

// NewEngine creates a sync engine.
func NewEngine(
	scanner Scanner,
	store ledger.Store,
	output storage.OutputStore,
	conv converter.Converter,
	config *EngineConfig,
	logger *events.Logger,
) *Engine {
	return &Engine{
		scanner:         scanner,
		ledger:          store,
		output:          output,
		converter:       conv,
		logger:          logger.WithField("component", "sync_engine"),
		sidecarSuffixes: config.SidecarSuffixes,
		retryFailed:     config.RetryFailed,
	}
}

// OnEvent sets the event handler. It must be called before Run.
func (e *Engine) OnEvent(h Handler) {
	e.handler = h
}

// GetProgress returns a snapshot of the current pass progress. The snapshot
// is never modified after it is returned.
func (e *Engine) GetProgress() *Progress {
	if p := e.progress.Load(); p != nil {
		return p.(*Progress)
	}
	return nil
}

// Run performs one reconciliation pass: scan, classify, delete, export,
// rewrite the ledger. The returned report is never nil.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return &Report{Preview: opts.Preview}, models.ErrPassInProgress
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	passID := int(e.passes.Add(1))
	ctx = events.WithPassID(ctx, passID)
	logger := e.logger.WithField("pass", passID)

	report := &Report{
		Preview:   opts.Preview,
		StartTime: time.Now(),
	}
	defer func() {
		report.Duration = time.Since(report.StartTime)
	}()

	progress := &Progress{
		Phase:     "scanning",
		StartTime: report.StartTime,
	}

	logger.WithField("preview", opts.Preview).Info("Starting pass")
	e.emit(Event{Type: EventStarted, Progress: e.publish(progress)})

	scan, err := e.scanner.Scan(ctx)
	if err != nil {
		return report, e.fail(&models.SyncError{Code: models.ErrCodeScan, Phase: "scan", Err: err})
	}
	e.emit(Event{Type: EventScanned, Progress: e.publish(progress)})

	previous, missing, err := e.loadLedger(logger)
	if err != nil {
		return report, e.fail(&models.SyncError{Code: models.ErrCodeLedger, Phase: "load", Path: e.ledger.Path(), Err: err})
	}
	report.LedgerMissing = missing

	plan := Classify(scan, previous)
	report.Plan = plan

	logger.WithFields(map[string]interface{}{
		"added":     len(plan.Added),
		"updated":   len(plan.Updated),
		"deleted":   len(plan.Deleted),
		"unchanged": len(plan.Unchanged),
	}).Info("Classified assets")
	e.emit(Event{Type: EventClassified, Plan: plan, Progress: e.publish(progress)})

	if plan.Empty() {
		logger.Info("Nothing to do")
		e.emit(Event{Type: EventNothingToDo, Plan: plan})
		e.emit(Event{Type: EventCompleted, Plan: plan})
		return report, nil
	}

	if opts.Preview {
		e.emit(Event{Type: EventPreview, Plan: plan})
		e.emit(Event{Type: EventCompleted, Plan: plan})
		return report, nil
	}

	if len(plan.Exports()) > 0 {
		if err := e.converter.Check(); err != nil {
			return report, e.fail(&models.SyncError{Code: models.ErrCodeConverter, Phase: "check", Err: err})
		}
	}

	if err := ctx.Err(); err != nil {
		return report, e.fail(err)
	}

	// Nothing below observes cancellation: once mutation starts the pass
	// runs to completion so the ledger matches what was attempted.
	runCtx := context.WithoutCancel(ctx)

	progress.Phase = "deleting"
	progress.TotalFiles = len(plan.Deleted) + len(plan.Exports())
	e.publish(progress)
	e.deletePhase(scan, plan, report, progress, logger)

	progress.Phase = "exporting"
	e.publish(progress)
	failed := e.exportPhase(runCtx, scan, plan, report, progress, logger)

	progress.Phase = "saving"
	e.publish(progress)
	next := e.nextLedger(scan, previous, failed)
	if err := e.ledger.Save(next); err != nil {
		return report, e.fail(&models.SyncError{Code: models.ErrCodeLedger, Phase: "save", Path: e.ledger.Path(), Err: err})
	}
	report.LedgerWritten = true
	e.emit(Event{Type: EventLedgerWritten, Path: e.ledger.Path()})

	progress.Phase = "complete"
	logger.WithFields(map[string]interface{}{
		"exported": len(report.Exported),
		"deleted":  len(report.Deleted),
		"failed":   report.Failed(),
	}).Info("Pass complete")
	e.emit(Event{Type: EventCompleted, Plan: plan, Progress: e.publish(progress)})

	return report, nil
}

// loadLedger reads the previous ledger. A missing ledger is an empty one.
func (e *Engine) loadLedger(logger *events.Logger) (*models.Ledger, bool, error) {
	previous, err := e.ledger.Load()
	if errors.Is(err, models.ErrLedgerNotFound) {
		logger.WithField("path", e.ledger.Path()).Info("No ledger found, starting fresh")
		return models.NewLedger(), true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return previous, false, nil
}

func (e *Engine) deletePhase(scan *models.ScanResult, plan *models.Plan, report *Report, progress *Progress, logger *events.Logger) {
	for _, logical := range plan.Deleted {
		artifact := scan.Outputs[logical].Artifact
		progress.CurrentFile = logical

		err := e.output.Remove(artifact)
		switch {
		case errors.Is(err, os.ErrNotExist):
			msg := fmt.Sprintf("artifact %s vanished before deletion", artifact)
			logger.WithField("path", artifact).Warn("Artifact already gone")
			report.Warnings = append(report.Warnings, Warning{Path: logical, Message: msg})
			e.emit(Event{Type: EventDeleteWarning, Path: logical, Class: models.ClassDeleted, Message: msg})
		case err != nil:
			logger.WithError(err).WithField("path", artifact).Error("Failed to delete artifact")
			report.Failures = append(report.Failures, Failure{Path: logical, Class: models.ClassDeleted, Err: err})
			progress.Errors = append(progress.Errors, err)
			progress.ProcessedFiles++
			e.emit(Event{Type: EventDeleteFailed, Path: logical, Class: models.ClassDeleted, Error: err, Progress: e.publish(progress)})
			continue
		}

		for _, suffix := range e.sidecarSuffixes {
			removed, err := e.output.RemoveIfExists(artifact + suffix)
			if err != nil {
				msg := fmt.Sprintf("sidecar %s: %v", artifact+suffix, err)
				logger.WithError(err).WithField("path", artifact+suffix).Warn("Failed to delete sidecar")
				report.Warnings = append(report.Warnings, Warning{Path: logical, Message: msg})
				e.emit(Event{Type: EventDeleteWarning, Path: logical, Class: models.ClassDeleted, Message: msg})
			} else if removed {
				logger.WithField("path", artifact+suffix).Debug("Deleted sidecar")
			}
		}

		if dir := path.Dir(artifact); dir != "." {
			e.output.PruneEmptyDirs(dir)
		}

		report.Deleted = append(report.Deleted, logical)
		progress.ProcessedFiles++
		e.emit(Event{Type: EventDeleted, Path: logical, Class: models.ClassDeleted, Progress: e.publish(progress)})
	}
}

// exportPhase runs the converter for updated then added paths and returns
// the paths whose export failed.
func (e *Engine) exportPhase(ctx context.Context, scan *models.ScanResult, plan *models.Plan, report *Report, progress *Progress, logger *events.Logger) map[string]bool {
	failed := make(map[string]bool)

	batches := []struct {
		class models.Classification
		paths []string
	}{
		{models.ClassUpdated, plan.Updated},
		{models.ClassAdded, plan.Added},
	}

	for _, batch := range batches {
		class := batch.class
		for _, logical := range batch.paths {
			progress.CurrentFile = logical
			e.emit(Event{Type: EventExportStarted, Path: logical, Class: class, Progress: e.publish(progress)})

			err := e.exportOne(ctx, scan, logical)
			progress.ProcessedFiles++

			if err != nil {
				logger.WithError(err).WithField("path", logical).Error("Export failed")
				failed[logical] = true
				report.Failures = append(report.Failures, Failure{Path: logical, Class: class, Err: err})
				progress.Errors = append(progress.Errors, err)
				e.emit(Event{Type: EventExportFailed, Path: logical, Class: class, Error: err, Progress: e.publish(progress)})
				continue
			}

			logger.WithField("path", logical).Debug("Exported")
			report.Exported = append(report.Exported, logical)
			e.emit(Event{Type: EventExportComplete, Path: logical, Class: class, Progress: e.publish(progress)})
		}
	}

	return failed
}

// publish stores a copy of p for GetProgress and returns it. Published
// snapshots are never mutated by the pass.
func (e *Engine) publish(p *Progress) *Progress {
	snapshot := *p
	snapshot.Errors = append([]error(nil), p.Errors...)
	e.progress.Store(&snapshot)
	return &snapshot
}

func (e *Engine) exportOne(ctx context.Context, scan *models.ScanResult, logical string) error {
	if err := e.output.EnsureParent(logical); err != nil {
		return err
	}

	target, err := e.output.FullPath(logical)
	if err != nil {
		return err
	}

	return e.converter.Export(ctx, scan.Files[logical], target)
}

// nextLedger builds the ledger to persist from the fresh scan. With
// retryFailed, failed paths keep their previous fingerprint, or are left
// out, so the next pass picks them up again.
func (e *Engine) nextLedger(scan *models.ScanResult, previous *models.Ledger, failed map[string]bool) *models.Ledger {
	next := models.LedgerFromScan(scan)
	if !e.retryFailed {
		return next
	}

	for logical := range failed {
		if old, ok := previous.Get(logical); ok {
			next.Set(logical, old)
		} else {
			next.Remove(logical)
		}
	}
	return next
}

func (e *Engine) emit(event Event) {
	if e.handler == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	e.handler(event)
}

func (e *Engine) fail(err error) error {
	e.logger.WithError(err).Error("Pass failed")
	e.emit(Event{
		Type:  EventFailed,
		Error: err,
	})
	return err
}

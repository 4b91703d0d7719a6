package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/spritesync/internal/models"
	"github.com/TheMichaelB/spritesync/internal/services/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Export new and changed sprites, delete orphaned artifacts",
	Long: `Sync runs one reconciliation pass over the source and output trees.

Artifacts whose source was removed are deleted first, then changed sprites
are re-exported, then new ones. The ledger is rewritten at the end of any
pass that had something to do. A failed export is reported and the pass
continues; use --strict to turn failures into a non-zero exit code.`,
	Example: `  spritesync sync
  spritesync sync --preview
  spritesync sync --source art/ase --output game/sprites`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	if cfg.Watch.Enabled {
		return runWatch(cmd, args)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	return syncOnce(ctx, svc, sync.SyncOptions{})
}

func newService() (*sync.Service, error) {
	svc, err := sync.NewService(cfg, afero.NewOsFs(), nil, logger)
	if err != nil {
		return nil, fmt.Errorf("create sync service: %w", err)
	}
	return svc, nil
}

// syncOnce runs a pass and prints its report.
func syncOnce(ctx context.Context, svc *sync.Service, opts sync.SyncOptions) error {
	var rep *reporter
	if !jsonOutput {
		rep = newReporter(os.Stdout, plain)
		svc.OnEvent(rep.Handle)
	}

	report, err := svc.Sync(ctx, opts)
	if err != nil {
		if jsonOutput {
			_ = printJSON(newSyncOutput(report, err))
		}
		return fmt.Errorf("sync failed: %w", err)
	}

	if jsonOutput {
		if err := printJSON(newSyncOutput(report, nil)); err != nil {
			return err
		}
	} else {
		rep.Summary(report)
	}

	if report.Failed() > 0 {
		if cfg.Strict {
			return fmt.Errorf("%d asset(s) failed", report.Failed())
		}
		when := "once their source changes"
		if cfg.Export.RetryFailed {
			when = "on the next run"
		}
		printWarning("%d asset(s) failed and will be retried %s", report.Failed(), when)
	}
	return nil
}

// syncOutput is the --json form of a report.
type syncOutput struct {
	Preview       bool            `json:"preview"`
	Plan          *models.Plan    `json:"plan,omitempty"`
	Deleted       []string        `json:"deleted"`
	Exported      []string        `json:"exported"`
	Failures      []failureOutput `json:"failures"`
	Warnings      []sync.Warning  `json:"warnings"`
	LedgerWritten bool            `json:"ledger_written"`
	Duration      string          `json:"duration"`
	Error         string          `json:"error,omitempty"`
}

type failureOutput struct {
	Path  string                `json:"path"`
	Class models.Classification `json:"class"`
	Error string                `json:"error"`
}

func newSyncOutput(report *sync.Report, err error) *syncOutput {
	out := &syncOutput{
		Preview:       report.Preview,
		Plan:          report.Plan,
		Deleted:       nonNil(report.Deleted),
		Exported:      nonNil(report.Exported),
		Failures:      []failureOutput{},
		Warnings:      report.Warnings,
		LedgerWritten: report.LedgerWritten,
		Duration:      report.Duration.Round(time.Millisecond).String(),
	}
	if out.Warnings == nil {
		out.Warnings = []sync.Warning{}
	}
	for _, f := range report.Failures {
		out.Failures = append(out.Failures, failureOutput{
			Path:  f.Path,
			Class: f.Class,
			Error: f.Err.Error(),
		})
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

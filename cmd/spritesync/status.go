package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/spritesync/internal/models"
	"github.com/TheMichaelB/spritesync/internal/services/sync"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show how every sprite would be classified",
	Long: `Status scans both trees and prints the classification of every asset
without touching the filesystem. It is a preview pass that also lists
unchanged sprites when --all is given.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var statusAll bool

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&statusAll, "all", "a", false,
		"Also list unchanged sprites")
}

func runStatus(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	report, err := svc.Sync(context.Background(), sync.SyncOptions{Preview: true})
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	if jsonOutput {
		return printJSON(report.Plan)
	}

	printStatus(newReporter(os.Stdout, plain), report, statusAll)
	return nil
}

func printStatus(rep *reporter, report *sync.Report, all bool) {
	plan := report.Plan

	if report.LedgerMissing {
		rep.line(rep.warn, "No ledger yet, every sprite with an artifact counts as updated")
	}

	if plan.Empty() && !all {
		rep.line(rep.dim, "Nothing to do, all sprites up to date")
	} else {
		rep.section("Status")
		rep.printPlan(plan)
		if all {
			for _, p := range plan.Unchanged {
				rep.action(models.ClassUnchanged, p)
			}
		}
	}

	rep.Summary(report)
}

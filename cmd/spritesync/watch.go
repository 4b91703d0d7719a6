package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/spritesync/internal/services/sync"
	"github.com/TheMichaelB/spritesync/internal/services/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-sync whenever the source tree changes",
	Long: `Watch runs a pass on start and again after every batch of changes to
the source tree. Passes never overlap: changes seen while a pass runs
schedule exactly one more pass. Interrupt with Ctrl-C; a running pass is
allowed to finish first.`,
	Example: `  spritesync watch
  spritesync --watch --base ./assets`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	w, err := watch.NewWatcher(watch.Options{
		Root:             cfg.Paths.SourceDir,
		SourceExtensions: cfg.Export.SourceExtensions,
		Debounce:         cfg.Watch.Debounce,
	}, logger)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	printInfo("Watching %s (Ctrl-C to stop)", cfg.Paths.SourceDir)

	err = w.Run(ctx, func(ctx context.Context) error {
		return syncOnce(ctx, svc, sync.SyncOptions{})
	})
	if errors.Is(err, context.Canceled) {
		printInfo("Stopped watching")
		return nil
	}
	return err
}

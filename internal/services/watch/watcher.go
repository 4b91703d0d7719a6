package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/TheMichaelB/spritesync/internal/events"
	"github.com/TheMichaelB/spritesync/internal/scanner"
)

// Watcher re-runs a pass whenever the source tree changes.
type Watcher struct {
	root       string
	extensions []string
	queue      *Queue
	debounce   *debouncer
	fsw        *fsnotify.Watcher
	logger     *events.Logger
}

// Options configures a watcher.
type Options struct {
	Root             string
	SourceExtensions []string
	Debounce         time.Duration
}

// NewWatcher watches root and every directory below it.
func NewWatcher(opts Options, logger *events.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		root:       opts.Root,
		extensions: opts.SourceExtensions,
		queue:      NewQueue(),
		debounce:   &debouncer{delay: opts.Debounce},
		fsw:        fsw,
		logger:     logger.WithField("component", "watcher"),
	}

	if err := w.addRecursive(opts.Root); err != nil {
		fsw.Close()
		return nil, err
	}

	return w, nil
}

// Run performs an initial pass, then one pass per batch of changes, until
// ctx is done. Passes never overlap; a pass in progress when ctx is
// cancelled finishes first. Pass errors are logged and do not stop the
// watcher.
func (w *Watcher) Run(ctx context.Context, pass func(context.Context) error) error {
	defer w.fsw.Close()
	defer w.debounce.stop()

	w.logger.WithField("root", w.root).Info("Watching for changes")

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		w.eventLoop(ctx)
	}()

	w.queue.Request()

	err := w.queue.Serve(ctx, func(ctx context.Context) {
		if err := pass(ctx); err != nil {
			w.logger.WithError(err).Error("Pass failed")
		}
	})

	<-loopDone
	return err
}

// Trigger requests a pass as if a change had been seen.
func (w *Watcher) Trigger() {
	w.queue.Request()
}

func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("Watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.WithError(err).WithField("path", event.Name).Warn("Cannot watch new directory")
			}
		}
	}

	if !w.relevant(event) {
		return
	}

	w.logger.WithFields(map[string]interface{}{
		"path": event.Name,
		"op":   event.Op.String(),
	}).Debug("Change detected")

	w.debounce.trigger(func() {
		w.queue.Request()
	})
}

// relevant reports whether an event can change the set of sources.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}

	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return false
	}

	if scanner.IsSource(name, w.extensions) {
		return true
	}

	// A removed or renamed directory can take sources with it.
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		return filepath.Ext(name) == ""
	}

	if event.Has(fsnotify.Create) {
		info, err := os.Stat(event.Name)
		return err == nil && info.IsDir()
	}

	return false
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A directory removed while walking is not an error.
			if errors.Is(err, fs.ErrNotExist) && path != w.root {
				return nil
			}
			return fmt.Errorf("watch %s: %w", path, err)
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		w.logger.WithField("dir", path).Debug("Watching directory")
		return nil
	})
}

package converter

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/TheMichaelB/spritesync/internal/config"
	"github.com/TheMichaelB/spritesync/internal/events"
	"github.com/TheMichaelB/spritesync/internal/models"
)

// Converter renders one source sprite into an exported image.
type Converter interface {
	// Check verifies the converter can be run.
	Check() error

	// Export renders source into target. target is the artifact path
	// without the export suffix. A failure is returned as *models.ExportError.
	Export(ctx context.Context, source, target string) error
}

// Aseprite runs the Aseprite CLI in batch mode.
type Aseprite struct {
	binary    string
	sheetType string
	suffix    string
	runner    CommandRunner
	logger    *events.Logger

	mu       sync.Mutex
	resolved string
}

// NewAseprite creates an Aseprite converter from export settings.
func NewAseprite(cfg *config.ExportConfig, runner CommandRunner, logger *events.Logger) *Aseprite {
	if runner == nil {
		runner = NewExecRunner()
	}

	return &Aseprite{
		binary:    cfg.Converter,
		sheetType: cfg.SheetType,
		suffix:    cfg.Suffix,
		runner:    runner,
		logger:    logger.WithField("component", "converter"),
	}
}

// Check resolves the binary on PATH.
func (a *Aseprite) Check() error {
	_, err := a.resolve()
	return err
}

func (a *Aseprite) resolve() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.resolved != "" {
		return a.resolved, nil
	}

	path, err := a.runner.LookPath(a.binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", models.ErrConverterNotFound, a.binary, err)
	}

	a.logger.WithField("binary", path).Debug("Converter resolved")
	a.resolved = path
	return path, nil
}

// Args builds the command line for one export.
func (a *Aseprite) Args(source, target string) []string {
	return []string{
		"-b", source,
		"--sheet", target + a.suffix,
		"--sheet-type", a.sheetType,
	}
}

// Export runs the converter and waits for it to finish. Any output on
// stderr counts as a failure even with a zero exit code.
func (a *Aseprite) Export(ctx context.Context, source, target string) error {
	binary, err := a.resolve()
	if err != nil {
		return err
	}

	a.logger.WithFields(map[string]interface{}{
		"pass":   events.GetPassID(ctx),
		"source": source,
		"target": target + a.suffix,
	}).Debug("Running converter")

	result, err := a.runner.Run(ctx, binary, a.Args(source, target)...)
	if err != nil {
		return &models.ExportError{Path: source, ExitCode: result.ExitCode, Err: err}
	}

	// Any stderr output fails the export, even whitespace.
	if result.ExitCode != 0 || len(result.Stderr) > 0 {
		return &models.ExportError{
			Path:       source,
			ExitCode:   result.ExitCode,
			Diagnostic: strings.TrimSpace(string(result.Stderr)),
		}
	}

	return nil
}

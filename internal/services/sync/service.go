package sync

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/TheMichaelB/spritesync/internal/config"
	"github.com/TheMichaelB/spritesync/internal/converter"
	"github.com/TheMichaelB/spritesync/internal/events"
	"github.com/TheMichaelB/spritesync/internal/ledger"
	"github.com/TheMichaelB/spritesync/internal/scanner"
	"github.com/TheMichaelB/spritesync/internal/storage"
)

// Service wires an engine from configuration.
type Service struct {
	engine *Engine
	ledger ledger.Store
	cfg    *config.Config
	logger *events.Logger
}

// NewService builds the scanner, ledger store, output store and converter
// for cfg. A nil runner uses os/exec.
func NewService(cfg *config.Config, fs afero.Fs, runner converter.CommandRunner, logger *events.Logger) (*Service, error) {
	scan, err := scanner.New(fs, scanner.Options{
		SourceRoot:       cfg.Paths.SourceDir,
		OutputRoot:       cfg.Paths.OutputDir,
		SourceExtensions: cfg.Export.SourceExtensions,
		ExportSuffix:     cfg.Export.Suffix,
		Algorithm:        cfg.Fingerprint.Algorithm,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create scanner: %w", err)
	}

	store, err := ledger.Open(cfg.Ledger.Backend, fs, cfg.Paths.LedgerFile, logger)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	output, err := storage.NewLocalStore(fs, cfg.Paths.OutputDir, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create output store: %w", err)
	}

	conv := converter.NewAseprite(&cfg.Export, runner, logger)

	engine := NewEngine(scan, store, output, conv, &EngineConfig{
		SidecarSuffixes: cfg.Export.SidecarSuffixes,
		RetryFailed:     cfg.Export.RetryFailed,
	}, logger)

	return &Service{
		engine: engine,
		ledger: store,
		cfg:    cfg,
		logger: logger.WithField("service", "sync"),
	}, nil
}

// Engine returns the underlying engine.
func (s *Service) Engine() *Engine {
	return s.engine
}

// OnEvent sets the engine event handler.
func (s *Service) OnEvent(h Handler) {
	s.engine.OnEvent(h)
}

// Sync runs one pass, honoring the configured preview mode unless opts
// asks for it explicitly.
func (s *Service) Sync(ctx context.Context, opts SyncOptions) (*Report, error) {
	preview := s.cfg.Preview || opts.Preview

	s.logger.WithFields(map[string]interface{}{
		"source":  s.cfg.Paths.SourceDir,
		"output":  s.cfg.Paths.OutputDir,
		"ledger":  s.ledger.Path(),
		"preview": preview,
	}).Debug("Sync requested")

	return s.engine.Run(ctx, RunOptions{Preview: preview})
}

// GetProgress returns pass progress.
func (s *Service) GetProgress() *Progress {
	return s.engine.GetProgress()
}

// Close releases the ledger store.
func (s *Service) Close() error {
	return s.ledger.Close()
}

// SyncOptions configures a sync operation.
type SyncOptions struct {
	Preview bool // Classify and report only
}

package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/TheMichaelB/spritesync/internal/events"
	"github.com/TheMichaelB/spritesync/internal/models"
)

// Options configures a scan.
type Options struct {
	SourceRoot       string
	OutputRoot       string
	SourceExtensions []string
	ExportSuffix     string
	Algorithm        string
}

// Scanner walks the source and output trees.
type Scanner struct {
	fs      afero.Fs
	opts    Options
	newHash HashFunc
	logger  *events.Logger
}

// New creates a scanner.
func New(fs afero.Fs, opts Options, logger *events.Logger) (*Scanner, error) {
	newHash, err := NewHashFunc(opts.Algorithm)
	if err != nil {
		return nil, err
	}

	return &Scanner{
		fs:      fs,
		opts:    opts,
		newHash: newHash,
		logger:  logger.WithField("component", "scanner"),
	}, nil
}

// Scan fingerprints every source file and collects existing exports.
// Any read failure aborts the scan; a partial result is never returned.
func (s *Scanner) Scan(ctx context.Context) (*models.ScanResult, error) {
	result := models.NewScanResult()

	if err := s.scanSources(ctx, result); err != nil {
		return nil, err
	}

	if err := s.scanOutputs(ctx, result); err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"sources": len(result.Sources),
		"outputs": len(result.Outputs),
	}).Debug("Scan complete")

	return result, nil
}

func (s *Scanner) scanSources(ctx context.Context, result *models.ScanResult) error {
	root := s.opts.SourceRoot

	info, err := s.fs.Stat(root)
	if err != nil {
		return scanError(root, err)
	}
	if !info.IsDir() {
		return scanError(root, fmt.Errorf("not a directory"))
	}

	err = afero.Walk(s.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return scanError(path, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if path == root {
			return nil
		}
		if info.IsDir() {
			if skipName(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if skipName(info.Name()) || !IsSource(info.Name(), s.opts.SourceExtensions) {
			return nil
		}

		info, err = s.resolve(path, info)
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		logical, err := relativeLogical(root, path)
		if err != nil {
			return scanError(path, err)
		}
		if s.unstorable(logical) {
			return nil
		}
		if result.HasSource(logical) {
			return scanError(path, fmt.Errorf("duplicate logical path %s", logical))
		}

		hash, err := HashFile(s.fs, path, s.newHash)
		if err != nil {
			return scanError(path, fmt.Errorf("hash: %w", err))
		}

		s.logger.WithFields(map[string]interface{}{
			"path": logical,
			"hash": hash,
		}).Debug("Hashed source")

		result.Sources = append(result.Sources, logical)
		result.Hashes[logical] = hash
		result.Files[logical] = path
		return nil
	})
	if err != nil {
		return err
	}

	sort.Strings(result.Sources)
	return nil
}

func (s *Scanner) scanOutputs(ctx context.Context, result *models.ScanResult) error {
	root := s.opts.OutputRoot

	info, err := s.fs.Stat(root)
	if os.IsNotExist(err) {
		s.logger.WithField("path", root).Debug("Output root missing, nothing exported yet")
		return nil
	}
	if err != nil {
		return scanError(root, err)
	}
	if !info.IsDir() {
		return scanError(root, fmt.Errorf("not a directory"))
	}

	return afero.Walk(s.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return scanError(path, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == root {
			return nil
		}
		// Same visibility rules as the source side, so a hidden source
		// never leaves its artifact looking orphaned.
		if skipName(info.Name()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return scanError(path, err)
		}

		logical, ok := OutputLogicalPath(rel, s.opts.ExportSuffix, s.opts.SourceExtensions)
		if !ok || strings.HasPrefix(logical, models.LedgerCommentPrefix) {
			return nil
		}

		info, err = s.resolve(path, info)
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		result.Outputs[logical] = models.OutputEntry{
			Path:     logical,
			Artifact: filepath.ToSlash(rel),
		}
		return nil
	})
}

// unstorable reports a logical path the ledger would read back as a comment.
func (s *Scanner) unstorable(logical string) bool {
	if !strings.HasPrefix(logical, models.LedgerCommentPrefix) {
		return false
	}
	s.logger.WithField("path", logical).Warn("Skipping source the ledger cannot record")
	return true
}

// resolve follows a symlink to the file it points at. A dangling link is a
// scan error. Links to directories are not descended into.
func (s *Scanner) resolve(path string, info os.FileInfo) (os.FileInfo, error) {
	if info.Mode()&os.ModeSymlink == 0 {
		return info, nil
	}

	target, err := s.fs.Stat(path)
	if err != nil {
		return nil, scanError(path, fmt.Errorf("resolve symlink: %w", err))
	}
	return target, nil
}

func relativeLogical(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	return NormalizePath(rel), nil
}

func scanError(path string, err error) error {
	return fmt.Errorf("%w: %s: %w", models.ErrScan, path, err)
}

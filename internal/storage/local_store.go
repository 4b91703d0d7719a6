package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/afero"

	"github.com/TheMichaelB/spritesync/internal/events"
)

// LocalStore implements output tree operations on an afero filesystem.
type LocalStore struct {
	fs      afero.Fs
	baseDir string
	logger  *events.Logger
}

// NewLocalStore creates a store rooted at baseDir. The root is not created;
// the export phase creates directories as it needs them.
func NewLocalStore(fs afero.Fs, baseDir string, logger *events.Logger) (*LocalStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("output directory is required")
	}

	return &LocalStore{
		fs:      fs,
		baseDir: filepath.Clean(baseDir),
		logger:  logger.WithField("component", "output_store"),
	}, nil
}

// Root returns the output root.
func (s *LocalStore) Root() string {
	return s.baseDir
}

// FullPath resolves path under the output root.
func (s *LocalStore) FullPath(path string) (string, error) {
	return s.sanitizePath(path)
}

// EnsureParent creates the parent directory of path.
func (s *LocalStore) EnsureParent(path string) error {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return fmt.Errorf("sanitize path: %w", err)
	}

	if err := s.fs.MkdirAll(filepath.Dir(safePath), 0755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}
	return nil
}

// Remove deletes a file.
func (s *LocalStore) Remove(path string) error {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return fmt.Errorf("sanitize path: %w", err)
	}

	s.logger.WithField("path", path).Debug("Deleting file")

	if err := s.fs.Remove(safePath); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// RemoveIfExists deletes a file, treating absence as success.
func (s *LocalStore) RemoveIfExists(path string) (bool, error) {
	err := s.Remove(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Exists checks if a file exists.
func (s *LocalStore) Exists(path string) (bool, error) {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return false, fmt.Errorf("sanitize path: %w", err)
	}

	return afero.Exists(s.fs, safePath)
}

// PruneEmptyDirs removes empty directories from dir up to, but not
// including, the output root.
func (s *LocalStore) PruneEmptyDirs(dir string) {
	safePath, err := s.sanitizePath(dir)
	if err != nil {
		return
	}
	s.cleanEmptyDirs(safePath)
}

// Helper methods

// sanitizePath validates and normalizes a file path.
func (s *LocalStore) sanitizePath(path string) (string, error) {
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("path contains null bytes")
	}

	// Normalize path separators
	normalized := filepath.FromSlash(strings.ReplaceAll(path, `\`, "/"))

	// Clean path (remove .., ., etc)
	cleaned := filepath.Clean(string(filepath.Separator) + normalized)
	cleaned = strings.TrimPrefix(cleaned, string(filepath.Separator))

	if cleaned == "" {
		return s.baseDir, nil
	}

	// Check for directory traversal
	rawParts := strings.Split(normalized, string(filepath.Separator))
	for _, part := range rawParts {
		if part == ".." {
			return "", fmt.Errorf("invalid path: contains '..'")
		}
	}

	if err := s.validatePlatformPath(cleaned); err != nil {
		return "", err
	}

	fullPath := filepath.Join(s.baseDir, cleaned)

	// Verify it's under base directory
	rel, err := filepath.Rel(s.baseDir, fullPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes base directory")
	}

	return fullPath, nil
}

// validatePlatformPath checks platform-specific path restrictions.
func (s *LocalStore) validatePlatformPath(path string) error {
	if runtime.GOOS != "windows" {
		return nil
	}

	reserved := []string{"CON", "PRN", "AUX", "NUL", "COM1", "COM2", "COM3", "COM4",
		"COM5", "COM6", "COM7", "COM8", "COM9", "LPT1", "LPT2", "LPT3",
		"LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9"}

	for _, part := range strings.Split(path, string(filepath.Separator)) {
		// "con.ase.png" is as reserved as "con"
		baseName := strings.ToUpper(strings.SplitN(part, ".", 2)[0])
		for _, name := range reserved {
			if baseName == name {
				return fmt.Errorf("invalid path: contains reserved name '%s'", part)
			}
		}

		for _, char := range `<>:"|?*` {
			if strings.ContainsRune(part, char) {
				return fmt.Errorf("invalid path: contains character '%c'", char)
			}
		}
	}

	return nil
}

// cleanEmptyDirs removes empty parent directories.
func (s *LocalStore) cleanEmptyDirs(dirPath string) {
	for dirPath != s.baseDir && strings.HasPrefix(dirPath, s.baseDir+string(filepath.Separator)) {
		entries, err := afero.ReadDir(s.fs, dirPath)
		if err != nil || len(entries) > 0 {
			break
		}

		if err := s.fs.Remove(dirPath); err != nil {
			break
		}

		s.logger.WithField("dir", dirPath).Debug("Removed empty directory")
		dirPath = filepath.Dir(dirPath)
	}
}

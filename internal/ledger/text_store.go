package ledger

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/TheMichaelB/spritesync/internal/events"
	"github.com/TheMichaelB/spritesync/internal/models"
)

// TextStore keeps the ledger as "path hash" lines.
type TextStore struct {
	fs     afero.Fs
	path   string
	logger *events.Logger
}

// NewTextStore creates a text ledger store.
func NewTextStore(fs afero.Fs, path string, logger *events.Logger) *TextStore {
	return &TextStore{
		fs:     fs,
		path:   path,
		logger: logger.WithField("component", "text_ledger"),
	}
}

// Path returns the ledger file path.
func (s *TextStore) Path() string {
	return s.path
}

// Load reads the ledger file.
func (s *TextStore) Load() (*models.Ledger, error) {
	s.logger.WithField("path", s.path).Debug("Loading ledger")

	file, err := s.fs.Open(s.path)
	if os.IsNotExist(err) {
		return nil, models.ErrLedgerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer file.Close()

	ledger, err := Parse(file, s.path)
	if err != nil {
		return nil, err
	}

	s.logger.WithField("entries", ledger.Len()).Debug("Ledger loaded")
	return ledger, nil
}

// Parse reads ledger lines. name is only used in error messages.
func Parse(r io.Reader, name string) (*models.Ledger, error) {
	ledger := models.NewLedger()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSuffix(scanner.Text(), "\r")

		// "#boss.ase <hash>" is an entry; only "# " starts a comment.
		if strings.HasPrefix(line, models.LedgerCommentPrefix) || strings.TrimSpace(line) == "" {
			continue
		}

		// Paths may contain spaces, fingerprints never do.
		idx := strings.LastIndexByte(line, ' ')
		if idx <= 0 || idx == len(line)-1 {
			return nil, &models.LedgerParseError{File: name, Line: lineNo, Text: line}
		}

		ledger.Set(line[:idx], line[idx+1:])
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	return ledger, nil
}

// Format writes the ledger in file form.
func Format(w io.Writer, ledger *models.Ledger) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(Header + "\n"); err != nil {
		return err
	}
	for _, path := range ledger.Paths() {
		hash, _ := ledger.Get(path)
		if _, err := fmt.Fprintf(bw, "%s %s\n", path, hash); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Save writes the ledger atomically through a temp file and rename.
func (s *TextStore) Save(ledger *models.Ledger) error {
	if err := ledger.Validate(); err != nil {
		return fmt.Errorf("validate ledger: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"path":    s.path,
		"entries": ledger.Len(),
	}).Debug("Saving ledger")

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}

	tmpPath := fmt.Sprintf("%s.tmp.%d", s.path, time.Now().UnixNano())
	tmp, err := s.fs.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = s.fs.Remove(tmpPath)
		}
	}()

	if err := Format(tmp, ledger); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := s.fs.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename ledger file: %w", err)
	}

	success = true
	return nil
}

// Close releases resources.
func (s *TextStore) Close() error {
	return nil
}

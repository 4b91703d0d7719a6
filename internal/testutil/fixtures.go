package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/spritesync/internal/config"
	"github.com/TheMichaelB/spritesync/internal/events"
	"github.com/TheMichaelB/spritesync/internal/models"
)

// NewTestLogger creates a logger for tests.
func NewTestLogger() *events.Logger {
	logger, _ := NewCapturingLogger()
	return logger
}

// NewCapturingLogger creates a debug logger whose entries can be inspected.
func NewCapturingLogger() (*events.Logger, *LogOutput) {
	out := NewLogOutput()
	return events.NewTestLogger(events.DebugLevel, "json", out), out
}

// SpriteTree is an in-memory project with source, output and ledger paths
// laid out the way the default config expects.
type SpriteTree struct {
	t      testing.TB
	Fs     afero.Fs
	Config *config.Config
}

// NewSpriteTree creates an empty project under /project/assets.
func NewSpriteTree(t testing.TB) *SpriteTree {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Paths.BaseDir = "/project/assets"
	cfg.ResolvePaths()
	require.NoError(t, cfg.Validate())

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(cfg.Paths.SourceDir, 0755))

	return &SpriteTree{t: t, Fs: fs, Config: cfg}
}

// SourcePath returns the absolute path of a source file.
func (s *SpriteTree) SourcePath(rel string) string {
	return filepath.Join(s.Config.Paths.SourceDir, filepath.FromSlash(rel))
}

// OutputPath returns the absolute path of an output file.
func (s *SpriteTree) OutputPath(rel string) string {
	return filepath.Join(s.Config.Paths.OutputDir, filepath.FromSlash(rel))
}

// WriteSource creates or replaces a source sprite.
func (s *SpriteTree) WriteSource(rel, content string) {
	s.t.Helper()
	s.write(s.SourcePath(rel), content)
}

// RemoveSource deletes a source sprite.
func (s *SpriteTree) RemoveSource(rel string) {
	s.t.Helper()
	require.NoError(s.t, s.Fs.Remove(s.SourcePath(rel)))
}

// WriteOutput creates an output file.
func (s *SpriteTree) WriteOutput(rel, content string) {
	s.t.Helper()
	s.write(s.OutputPath(rel), content)
}

// OutputExists reports whether an output file exists.
func (s *SpriteTree) OutputExists(rel string) bool {
	s.t.Helper()
	exists, err := afero.Exists(s.Fs, s.OutputPath(rel))
	require.NoError(s.t, err)
	return exists
}

// WriteLedger writes a raw ledger file.
func (s *SpriteTree) WriteLedger(content string) {
	s.t.Helper()
	s.write(s.Config.Paths.LedgerFile, content)
}

// ReadLedger returns the raw ledger file, or "" if it does not exist.
func (s *SpriteTree) ReadLedger() string {
	s.t.Helper()
	data, err := afero.ReadFile(s.Fs, s.Config.Paths.LedgerFile)
	if os.IsNotExist(err) {
		return ""
	}
	require.NoError(s.t, err)
	return string(data)
}

// Snapshot returns every file in the project mapped to its content.
func (s *SpriteTree) Snapshot() map[string]string {
	s.t.Helper()

	files := make(map[string]string)
	err := afero.Walk(s.Fs, "/", func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		data, err := afero.ReadFile(s.Fs, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(path)] = string(data)
		return nil
	})
	require.NoError(s.t, err)
	return files
}

func (s *SpriteTree) write(path, content string) {
	require.NoError(s.t, s.Fs.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(s.t, afero.WriteFile(s.Fs, path, []byte(content), 0644))
}

// Hash returns the sha256 fingerprint of content.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// FakeConverter writes "<target><suffix>" into an afero filesystem instead
// of running a real converter.
type FakeConverter struct {
	mu      sync.Mutex
	fs      afero.Fs
	suffix  string
	missing bool
	fail    map[string]string // source base name -> diagnostic
	calls   []ExportCall
}

// ExportCall records one Export invocation.
type ExportCall struct {
	Source string
	Target string
}

// NewFakeConverter creates a converter writing artifacts into fs.
func NewFakeConverter(fs afero.Fs, suffix string) *FakeConverter {
	return &FakeConverter{
		fs:     fs,
		suffix: suffix,
		fail:   make(map[string]string),
	}
}

// SetMissing makes Check report the binary as not found.
func (f *FakeConverter) SetMissing(missing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.missing = missing
}

// FailOn makes exports of sources whose path ends with suffix fail.
func (f *FakeConverter) FailOn(sourceSuffix, diagnostic string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[sourceSuffix] = diagnostic
}

// Check implements converter.Converter.
func (f *FakeConverter) Check() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing {
		return models.ErrConverterNotFound
	}
	return nil
}

// Export implements converter.Converter.
func (f *FakeConverter) Export(ctx context.Context, source, target string) error {
	f.mu.Lock()
	f.calls = append(f.calls, ExportCall{Source: source, Target: target})
	var diagnostic string
	failing := false
	for suffix, diag := range f.fail {
		if strings.HasSuffix(filepath.ToSlash(source), suffix) {
			diagnostic, failing = diag, true
		}
	}
	f.mu.Unlock()

	if failing {
		return &models.ExportError{Path: source, ExitCode: 1, Diagnostic: diagnostic}
	}

	data, err := afero.ReadFile(f.fs, source)
	if err != nil {
		return &models.ExportError{Path: source, ExitCode: 1, Err: err}
	}
	return afero.WriteFile(f.fs, target+f.suffix, append([]byte("png:"), data...), 0644)
}

// Calls returns the recorded invocations.
func (f *FakeConverter) Calls() []ExportCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ExportCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// Sources returns the source paths of recorded invocations.
func (f *FakeConverter) Sources() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, call := range calls {
		out[i] = call.Source
	}
	return out
}

// SortedKeys returns the keys of m in order.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package models

import (
	"errors"
	"fmt"
)

// Error codes for structured error handling.
const (
	ErrCodeScan      = "SCAN_ERROR"
	ErrCodeLedger    = "LEDGER_ERROR"
	ErrCodeConverter = "CONVERTER_ERROR"
	ErrCodeStorage   = "STORAGE_ERROR"
	ErrCodeConfig    = "CONFIG_ERROR"
)

// Sentinel errors
var (
	ErrScan              = errors.New("scan failed")
	ErrLedgerNotFound    = errors.New("ledger not found")
	ErrLedgerCorrupt     = errors.New("ledger is corrupt")
	ErrConverterNotFound = errors.New("converter not found")
	ErrPassInProgress    = errors.New("sync pass already in progress")
	ErrInvalidConfig     = errors.New("invalid configuration")
)

// SyncError provides detailed pass failure information.
type SyncError struct {
	Code  string
	Phase string
	Path  string
	Err   error
}

func (e *SyncError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("sync %s [%s]: %s: %v", e.Phase, e.Code, e.Path, e.Err)
	}
	return fmt.Sprintf("sync %s [%s]: %v", e.Phase, e.Code, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// LedgerParseError reports a ledger line that is neither a comment nor a
// "path hash" pair.
type LedgerParseError struct {
	File string
	Line int
	Text string
}

func (e *LedgerParseError) Error() string {
	return fmt.Sprintf("%s:%d: malformed ledger line %q", e.File, e.Line, e.Text)
}

func (e *LedgerParseError) Unwrap() error {
	return ErrLedgerCorrupt
}

// ExportError represents a converter failure for one asset.
type ExportError struct {
	Path       string
	ExitCode   int
	Diagnostic string
	Err        error
}

func (e *ExportError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("export %s: %v", e.Path, e.Err)
	case e.Diagnostic != "":
		return fmt.Sprintf("export %s: exit %d: %s", e.Path, e.ExitCode, e.Diagnostic)
	case e.ExitCode == 0:
		return fmt.Sprintf("export %s: unexpected stderr output", e.Path)
	default:
		return fmt.Sprintf("export %s: exit %d", e.Path, e.ExitCode)
	}
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

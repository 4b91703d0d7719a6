package models

import (
	"slices"
	"sort"
)

// SourceEntry is an editable sprite found under the source root.
type SourceEntry struct {
	Path string `json:"path"` // logical asset path
	Hash string `json:"hash"`
}

// OutputEntry is an exported artifact found under the output root, keyed by
// the logical path of the asset it was exported from.
type OutputEntry struct {
	Path     string `json:"path"`     // logical asset path
	Artifact string `json:"artifact"` // path relative to the output root
}

// ScanResult is the state of both trees at the start of a pass.
type ScanResult struct {
	// Sources holds logical paths in lexicographic order.
	Sources []string
	// Hashes maps each source logical path to its fingerprint.
	Hashes map[string]string
	// Files maps each source logical path to the file it was read from.
	Files map[string]string
	// Outputs is the set of logical paths that already have an export.
	Outputs map[string]OutputEntry
}

// NewScanResult creates an empty scan result.
func NewScanResult() *ScanResult {
	return &ScanResult{
		Hashes:  make(map[string]string),
		Files:   make(map[string]string),
		Outputs: make(map[string]OutputEntry),
	}
}

// HasSource checks whether path exists in the source tree.
func (s *ScanResult) HasSource(path string) bool {
	_, ok := s.Hashes[path]
	return ok
}

// HasOutput checks whether path already has an export.
func (s *ScanResult) HasOutput(path string) bool {
	_, ok := s.Outputs[path]
	return ok
}

// SortedOutputs returns the output logical paths in lexicographic order.
func (s *ScanResult) SortedOutputs() []string {
	paths := make([]string, 0, len(s.Outputs))
	for path := range s.Outputs {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Classification is the state of one logical asset path.
type Classification string

const (
	ClassAdded     Classification = "added"
	ClassUpdated   Classification = "updated"
	ClassUnchanged Classification = "unchanged"
	ClassDeleted   Classification = "deleted"
)

// Symbol returns the one-character marker used in reports.
func (c Classification) Symbol() string {
	switch c {
	case ClassAdded:
		return "+"
	case ClassUpdated:
		return "~"
	case ClassDeleted:
		return "-"
	default:
		return " "
	}
}

// Plan is the classification of every logical path seen in a pass.
type Plan struct {
	Added     []string `json:"added"`
	Updated   []string `json:"updated"`
	Unchanged []string `json:"unchanged"`
	Deleted   []string `json:"deleted"`
}

// Empty reports whether the plan requires no filesystem mutation.
func (p *Plan) Empty() bool {
	return len(p.Added) == 0 && len(p.Updated) == 0 && len(p.Deleted) == 0
}

// Exports returns the paths to export, updated before added.
func (p *Plan) Exports() []string {
	out := make([]string, 0, len(p.Updated)+len(p.Added))
	out = append(out, p.Updated...)
	return append(out, p.Added...)
}

// Total returns the number of classified paths.
func (p *Plan) Total() int {
	return len(p.Added) + len(p.Updated) + len(p.Unchanged) + len(p.Deleted)
}

// ClassOf returns the classification of path, or false if the plan does not
// contain it. It scans every class; the engine walks the class slices
// directly instead.
func (p *Plan) ClassOf(path string) (Classification, bool) {
	switch {
	case slices.Contains(p.Added, path):
		return ClassAdded, true
	case slices.Contains(p.Updated, path):
		return ClassUpdated, true
	case slices.Contains(p.Unchanged, path):
		return ClassUnchanged, true
	case slices.Contains(p.Deleted, path):
		return ClassDeleted, true
	}
	return "", false
}

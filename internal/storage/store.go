package storage

// OutputStore manages the exported artifacts under the output root.
// Paths are relative to the root and use forward slashes.
type OutputStore interface {
	// FullPath resolves a relative path to a path under the root.
	FullPath(path string) (string, error)

	// EnsureParent creates the parent directory of path.
	EnsureParent(path string) error

	// Remove deletes a file. A missing file returns an error matching
	// os.ErrNotExist.
	Remove(path string) error

	// RemoveIfExists deletes a file and reports whether it was there.
	RemoveIfExists(path string) (bool, error)

	// Exists checks if a file exists.
	Exists(path string) (bool, error)

	// PruneEmptyDirs removes dir and its empty parents up to the root.
	PruneEmptyDirs(dir string)
}

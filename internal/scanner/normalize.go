package scanner

import (
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizePath turns a path relative to a scan root into a logical asset
// path: forward slashes, cleaned, no leading "./" or "/", NFC.
// macOS reports decomposed names, so NFC keeps source and output keys equal
// across platforms.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = path.Clean(p)
	p = strings.TrimLeft(p, "/")
	if p == "." {
		return ""
	}
	return norm.NFC.String(p)
}

// IsSource reports whether name carries one of the sprite extensions.
func IsSource(name string, extensions []string) bool {
	for _, ext := range extensions {
		if hasSuffixFold(name, ext) && len(name) > len(ext) {
			return true
		}
	}
	return false
}

// OutputLogicalPath maps an output file path (relative to the output root)
// to the logical path of the asset it was exported from. It returns false
// for files that do not follow the "<source name><suffix>" convention.
func OutputLogicalPath(rel, suffix string, extensions []string) (string, bool) {
	if suffix == "" || !hasSuffixFold(rel, suffix) {
		return "", false
	}

	logical := NormalizePath(rel[:len(rel)-len(suffix)])
	if !IsSource(path.Base(logical), extensions) {
		return "", false
	}
	return logical, true
}

// ArtifactPath returns the output-relative path of the export for a logical
// asset path.
func ArtifactPath(logical, suffix string) string {
	return logical + suffix
}

func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}

// skipName reports hidden files and editor backups.
func skipName(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~")
}

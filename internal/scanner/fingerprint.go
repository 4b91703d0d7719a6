package scanner

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/spf13/afero"
	"golang.org/x/crypto/blake2b"
)

// HashFunc creates a fresh hash for one file.
type HashFunc func() hash.Hash

// NewHashFunc returns the hash constructor for a fingerprint algorithm.
func NewHashFunc(algorithm string) (HashFunc, error) {
	switch algorithm {
	case "", "sha256":
		return sha256.New, nil
	case "blake2b":
		return func() hash.Hash {
			// New256 only fails for keys longer than 64 bytes.
			h, _ := blake2b.New256(nil)
			return h
		}, nil
	default:
		return nil, fmt.Errorf("unsupported fingerprint algorithm: %s", algorithm)
	}
}

// HashFile computes the hex fingerprint of the full contents of a file.
func HashFile(fs afero.Fs, name string, newHash HashFunc) (string, error) {
	file, err := fs.Open(name)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hasher := newHash()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

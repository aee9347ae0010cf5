// Package fingerprint computes content digests of working tree files.
//
// The index and the relocator must agree on the algorithm, so both take a
// Fingerprinter and the CLI wires the same instance into each.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Fingerprinter returns a deterministic hex digest of a file's bytes.
type Fingerprinter interface {
	Fingerprint(path string) (string, error)
}

// MD5 hashes file content with MD5. It is not collision resistant against an
// adversary; it only has to tell content versions of one file apart.
type MD5 struct{}

func (MD5) Fingerprint(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	return Reader(file)
}

// Reader returns the MD5 hex digest of everything read from r.
func Reader(r io.Reader) (string, error) {
	hash := md5.New()
	if _, err := io.Copy(hash, r); err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// Bytes returns the MD5 hex digest of data.
func Bytes(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

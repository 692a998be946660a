// Package hashing provides SHA-256 digests over raw bytes, canonicalized
// values, and files — the three primitives every other component builds
// on. Grounded on the teacher's pkg/crypto/hasher.go and
// pkg/canonicalize/jcs.go CanonicalHash helpers.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/Adjoshi06/chainofCommand/pkg/canonicalize"
)

// SHA256Hex returns the lowercase hex SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashCanonical canonicalizes v (RFC 8785 + NFC) and returns the SHA-256 hex
// digest of the resulting bytes.
func HashCanonical(v interface{}) (string, error) {
	b, err := canonicalize.Canonicalize(v)
	if err != nil {
		return "", fmt.Errorf("hashing: canonicalize: %w", err)
	}
	return SHA256Hex(b), nil
}

// HashFile streams path and returns the SHA-256 hex digest of its bytes.
// The digest is identical to SHA256Hex applied to the full file contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // caller-controlled path within COC_HOME
	if err != nil {
		return "", fmt.Errorf("hashing: open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing: read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytesReader streams r and returns the SHA-256 hex digest.
func HashBytesReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hashing: read: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

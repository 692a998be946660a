package hashing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSHA256Hex_KnownVector(t *testing.T) {
	// sha256("") == e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855
	require.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", SHA256Hex(nil))
}

func TestHashCanonical_OrderIndependent(t *testing.T) {
	h1, err := HashCanonical(map[string]interface{}{"a": 1, "b": 2})
	require.NoError(t, err)
	h2, err := HashCanonical(map[string]interface{}{"b": 2, "a": 1})
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestHashFile_MatchesInMemoryDigest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.bin")
	data := []byte("chain of custody demo bytes")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	fileHash, err := HashFile(path)
	require.NoError(t, err)
	require.Equal(t, SHA256Hex(data), fileHash)
}

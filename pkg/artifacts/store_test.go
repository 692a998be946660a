package artifacts

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adjoshi06/chainofCommand/pkg/model"
)

func TestWriteArtifact_DedupsBlobAcrossTracesAndAccumulatesReferences(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	data := []byte(`{"finding":"shared evidence"}`)

	first, err := store.WriteArtifact("trace_a", "evt_a1", data, "application/json", "", model.RedactionNone)
	require.NoError(t, err)

	second, err := store.WriteArtifact("trace_b", "evt_b1", data, "application/json", "", model.RedactionNone)
	require.NoError(t, err)

	require.Equal(t, first.ArtifactHash, second.ArtifactHash)

	desc, err := store.ReadDescriptor(first.ArtifactHash)
	require.NoError(t, err)
	require.Len(t, desc.References, 2)

	// Repeating the same (trace, event) pair is an idempotent no-op.
	third, err := store.WriteArtifact("trace_a", "evt_a1", data, "application/json", "", model.RedactionNone)
	require.NoError(t, err)
	require.Equal(t, first.ArtifactHash, third.ArtifactHash)

	desc, err = store.ReadDescriptor(first.ArtifactHash)
	require.NoError(t, err)
	require.Len(t, desc.References, 2)

	blobPath := store.blobPath(first.ArtifactHash)
	infos, err := os.Lstat(blobPath)
	require.NoError(t, err)
	require.False(t, infos.IsDir())
}

func TestWriteArtifact_PreservesOriginalMetadataOnRepeat(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	data := []byte("immutable payload")
	first, err := store.WriteArtifact("trace_a", "evt_1", data, "text/plain", "", model.RedactionNone)
	require.NoError(t, err)

	second, err := store.WriteArtifact("trace_c", "evt_2", data, "text/plain", "", model.RedactionNone)
	require.NoError(t, err)

	require.Equal(t, first.CreatedAt, second.CreatedAt)
	require.Equal(t, first.ByteSize, second.ByteSize)
	require.Equal(t, first.MediaType, second.MediaType)
}

func TestReadArtifact_RoundTrips(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	data := []byte("roundtrip bytes")
	desc, err := store.WriteArtifact("trace_a", "evt_1", data, "application/octet-stream", "", model.RedactionNone)
	require.NoError(t, err)

	got, err := store.ReadArtifact(desc.ArtifactHash)
	require.NoError(t, err)
	require.Equal(t, data, got)

	has, err := store.HasArtifact(desc.ArtifactHash)
	require.NoError(t, err)
	require.True(t, has)
}

func TestHasArtifact_MissingReturnsFalse(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	has, err := store.HasArtifact("ab000000000000000000000000000000000000000000000000000000000000cd")
	require.NoError(t, err)
	require.False(t, has)
}

func TestReadArtifact_RejectsMalformedHash(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.ReadArtifact("not-a-hash")
	require.ErrorIs(t, err, ErrInvalidHash)

	_, err = store.ReadArtifact("ABCDEF0000000000000000000000000000000000000000000000000000000000")
	require.ErrorIs(t, err, ErrInvalidHash)
}

func TestRecomputeHash_DetectsSubstitution(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	data := []byte("original bytes")
	desc, err := store.WriteArtifact("trace_a", "evt_1", data, "text/plain", "", model.RedactionNone)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(store.blobPath(desc.ArtifactHash), []byte("tampered-bytes"), 0o644))

	actual, err := store.RecomputeHash(desc.ArtifactHash)
	require.NoError(t, err)
	require.NotEqual(t, desc.ArtifactHash, actual)
}

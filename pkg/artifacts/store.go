// Package artifacts implements the content-addressed Artifact Store
// (spec.md §4.5): sharded SHA-256 blob storage with a sidecar metadata file
// carrying a multi-trace back-reference list for dedup.
//
// Grounded on the teacher's pkg/artifacts/store.go (FileStore: compute hash,
// ensure dir, write-temp-then-rename for idempotent concurrent writers) and
// pkg/artifacts/registry.go (sidecar JSON alongside the blob). Generalized
// from the teacher's flat `<hash>.blob` layout to spec.md's sharded
// `sha256/<p1>/<p2>/` layout and from a single-owner registry to the
// per-artifact `references` list spec.md §4.5 step 5 requires.
package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Adjoshi06/chainofCommand/internal/hexid"
	"github.com/Adjoshi06/chainofCommand/pkg/hashing"
	"github.com/Adjoshi06/chainofCommand/pkg/model"
)

// ErrInvalidHash is returned when a caller-supplied hash fails the
// lowercase-hex-64 validation spec.md §9 mandates at read boundaries.
var ErrInvalidHash = errors.New("artifacts: hash must match ^[a-f0-9]{64}$")

// ErrNotFound is returned when no blob or sidecar exists for a hash.
var ErrNotFound = errors.New("artifacts: not found")

// Store is the sharded, content-addressed blob store rooted at
// <coc_home>/artifacts.
type Store struct {
	root string
	mu   sync.Mutex
}

// New opens (creating if absent) the artifact store rooted at root
// (typically "<coc_home>/artifacts").
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil { //nolint:gosec // shared store root
		return nil, fmt.Errorf("artifacts: mkdir %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

func (s *Store) shardDir(hash string) string {
	return filepath.Join(s.root, "sha256", hash[0:2], hash[2:4])
}

func (s *Store) blobPath(hash string) string {
	return filepath.Join(s.shardDir(hash), hash+".blob")
}

func (s *Store) sidecarPath(hash string) string {
	return filepath.Join(s.shardDir(hash), hash+".meta.json")
}

// WriteArtifact persists data under its SHA-256 digest and records a
// (traceID, producerEventID) back-reference in the sidecar, per spec.md
// §4.5. Repeated calls with the same bytes and a new (trace, event) pair
// append to the sidecar's references list rather than duplicating the
// blob; repeated calls with the same pair are idempotent no-ops.
func (s *Store) WriteArtifact(traceID, producerEventID string, data []byte, mediaType, encoding string, redaction model.RedactionStatus) (model.ArtifactDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := hashing.SHA256Hex(data)
	dir := s.shardDir(hash)
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // shard dir, not secret
		return model.ArtifactDescriptor{}, fmt.Errorf("artifacts: mkdir shard: %w", err)
	}

	blobPath := s.blobPath(hash)
	if _, err := os.Stat(blobPath); errors.Is(err, os.ErrNotExist) {
		if err := writeFileAtomic(blobPath, data, 0o644); err != nil { //nolint:gosec // content-addressed, public by design
			return model.ArtifactDescriptor{}, fmt.Errorf("artifacts: write blob: %w", err)
		}
	} else if err != nil {
		return model.ArtifactDescriptor{}, fmt.Errorf("artifacts: stat blob: %w", err)
	}

	now := model.NowISO()
	ref := model.ArtifactReference{TraceID: traceID, ProducerEventID: producerEventID, CreatedAt: now}

	existing, err := s.readSidecarLocked(hash)
	switch {
	case errors.Is(err, ErrNotFound):
		desc := model.ArtifactDescriptor{
			ArtifactHash:    hash,
			HashAlgorithm:   "sha256",
			MediaType:       mediaType,
			Encoding:        encoding,
			ByteSize:        int64(len(data)),
			CreatedAt:       now,
			ProducerEventID: producerEventID,
			StorageURI:      relStorageURI(hash),
			RedactionStatus: redaction,
			TraceID:         traceID,
			References:      []model.ArtifactReference{ref},
		}
		if err := s.writeSidecarLocked(hash, desc); err != nil {
			return model.ArtifactDescriptor{}, err
		}
		return desc, nil
	case err != nil:
		return model.ArtifactDescriptor{}, err
	default:
		if !hasReference(existing.References, traceID, producerEventID) {
			existing.References = append(existing.References, ref)
			if err := s.writeSidecarLocked(hash, existing); err != nil {
				return model.ArtifactDescriptor{}, err
			}
		}
		// Preserve original created_at/byte_size/media_type/encoding per
		// spec.md §4.5 step 5; return the (possibly unchanged) descriptor.
		return existing, nil
	}
}

func hasReference(refs []model.ArtifactReference, traceID, producerEventID string) bool {
	for _, r := range refs {
		if r.TraceID == traceID && r.ProducerEventID == producerEventID {
			return true
		}
	}
	return false
}

func relStorageURI(hash string) string {
	return fmt.Sprintf("artifacts/sha256/%s/%s/%s.blob", hash[0:2], hash[2:4], hash)
}

// ReadArtifact returns the raw bytes of the blob addressed by hash.
func (s *Store) ReadArtifact(hash string) ([]byte, error) {
	if !hexid.ValidHash64(hash) {
		return nil, ErrInvalidHash
	}
	data, err := os.ReadFile(s.blobPath(hash)) //nolint:gosec // hash validated above
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("artifacts: read blob: %w", err)
	}
	return data, nil
}

// ReadDescriptor returns the sidecar descriptor for hash.
func (s *Store) ReadDescriptor(hash string) (model.ArtifactDescriptor, error) {
	if !hexid.ValidHash64(hash) {
		return model.ArtifactDescriptor{}, ErrInvalidHash
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readSidecarLocked(hash)
}

// HasArtifact reports whether a blob exists for hash.
func (s *Store) HasArtifact(hash string) (bool, error) {
	if !hexid.ValidHash64(hash) {
		return false, ErrInvalidHash
	}
	_, err := os.Stat(s.blobPath(hash))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("artifacts: stat blob: %w", err)
	}
	return true, nil
}

// RecomputeHash streams the on-disk blob for hash and returns its actual
// SHA-256 digest, used by CHK_ARTIFACT_HASH_MATCH to detect substitution.
func (s *Store) RecomputeHash(hash string) (string, error) {
	if !hexid.ValidHash64(hash) {
		return "", ErrInvalidHash
	}
	return hashing.HashFile(s.blobPath(hash))
}

func (s *Store) readSidecarLocked(hash string) (model.ArtifactDescriptor, error) {
	data, err := os.ReadFile(s.sidecarPath(hash)) //nolint:gosec // hash validated by caller
	if errors.Is(err, os.ErrNotExist) {
		return model.ArtifactDescriptor{}, ErrNotFound
	}
	if err != nil {
		return model.ArtifactDescriptor{}, fmt.Errorf("artifacts: read sidecar: %w", err)
	}
	var desc model.ArtifactDescriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return model.ArtifactDescriptor{}, fmt.Errorf("artifacts: parse sidecar: %w", err)
	}
	return desc, nil
}

func (s *Store) writeSidecarLocked(hash string, desc model.ArtifactDescriptor) error {
	data, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return fmt.Errorf("artifacts: marshal sidecar: %w", err)
	}
	return writeFileAtomic(s.sidecarPath(hash), data, 0o644) //nolint:gosec // metadata, not secret
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Package signing implements the Signer/Verifier (spec.md §4.4): Ed25519
// signatures over the canonical bytes of an event's signed-field subset.
//
// Grounded on the teacher's pkg/crypto/signer.go and pkg/crypto/verifier.go
// (Ed25519Signer/Ed25519Verifier split, Sign/Verify symmetry) generalized
// from the teacher's hex-encoded DecisionRecord/Receipt payloads to the
// canonical-JSON signed subset spec.md §4.4 defines, and to base64 envelope
// encoding (spec.md §3: "Signatures are base64").
package signing

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/Adjoshi06/chainofCommand/pkg/canonicalize"
	"github.com/Adjoshi06/chainofCommand/pkg/hashing"
	"github.com/Adjoshi06/chainofCommand/pkg/model"
)

// Algorithm is the sole supported signature algorithm.
const Algorithm = "ed25519"

// Sign canonicalizes event's signed subset and produces a model.Signature
// envelope: the base64 Ed25519 signature plus the sha256 hex digest of the
// exact bytes signed (signed_bytes_hash), per spec.md §4.4.
func Sign(priv ed25519.PrivateKey, event *model.ProtocolEvent) (*model.Signature, error) {
	bytes, err := canonicalize.Canonicalize(event.SignedSubset())
	if err != nil {
		return nil, fmt.Errorf("signing: canonicalize signed subset: %w", err)
	}
	sig := ed25519.Sign(priv, bytes)
	return &model.Signature{
		Algorithm:       Algorithm,
		SignatureB64:    base64.StdEncoding.EncodeToString(sig),
		SignedBytesHash: hashing.SHA256Hex(bytes),
	}, nil
}

// Verify recomputes the canonical signed-subset bytes of event's *current*
// state and checks both that signed_bytes_hash still matches those bytes
// (catching any mutation that would otherwise be masked by replaying a
// stale signature) and that the Ed25519 signature verifies against pub.
func Verify(pub ed25519.PublicKey, event *model.ProtocolEvent, sig *model.Signature) (bool, error) {
	if sig == nil {
		return false, fmt.Errorf("signing: nil signature")
	}
	if sig.Algorithm != Algorithm {
		return false, fmt.Errorf("signing: unsupported algorithm %q", sig.Algorithm)
	}

	bytes, err := canonicalize.Canonicalize(event.SignedSubset())
	if err != nil {
		return false, fmt.Errorf("signing: canonicalize signed subset: %w", err)
	}
	if hashing.SHA256Hex(bytes) != sig.SignedBytesHash {
		return false, nil
	}

	raw, err := base64.StdEncoding.DecodeString(sig.SignatureB64)
	if err != nil {
		return false, fmt.Errorf("signing: decode signature: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("signing: invalid public key size %d", len(pub))
	}
	return ed25519.Verify(pub, bytes, raw), nil
}

// EventHash computes spec.md §4.4's event-hash rule: sha256 of the
// canonical bytes of the event with event_hash itself omitted. The
// signature IS included, binding it to chain position.
func EventHash(event *model.ProtocolEvent) (string, error) {
	return hashing.HashCanonical(event.EventWithoutHash())
}

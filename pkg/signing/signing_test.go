package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adjoshi06/chainofCommand/internal/hexid"
	"github.com/Adjoshi06/chainofCommand/pkg/hashing"
	"github.com/Adjoshi06/chainofCommand/pkg/model"
)

func sampleEvent() *model.ProtocolEvent {
	return &model.ProtocolEvent{
		SchemaVersion: model.SchemaVersion,
		TraceID:       "trace_01",
		EventID:       "evt_01",
		EventType:     model.EventProposalCreated,
		CreatedAt:     "2026-08-06T00:00:00.000Z",
		Actor:         model.Actor{AgentID: "agent.planner", Role: model.RolePlanner, KeyID: "key_test"},
		PayloadHash:   hashing.SHA256Hex([]byte("payload")),
		PayloadType:   "proposal.v1",
		PrevEventHash: hexid.GenesisPrevHash,
	}
}

func TestSignVerify_RoundTripSucceeds(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	event := sampleEvent()
	sig, err := Sign(priv, event)
	require.NoError(t, err)
	event.Signature = sig

	ok, err := Verify(pub, event, sig)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerify_SignatureMutationFails(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	event := sampleEvent()
	sig, err := Sign(priv, event)
	require.NoError(t, err)

	raw := []byte(sig.SignatureB64)
	raw[0] ^= 0xFF
	sig.SignatureB64 = string(raw)

	ok, _ := Verify(pub, event, sig)
	require.False(t, ok)
}

func TestVerify_PayloadMutationFails(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	event := sampleEvent()
	sig, err := Sign(priv, event)
	require.NoError(t, err)

	event.PayloadHash = hashing.SHA256Hex([]byte("tampered"))

	ok, err := Verify(pub, event, sig)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerify_WrongKeyFails(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	otherPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	event := sampleEvent()
	sig, err := Sign(priv, event)
	require.NoError(t, err)

	ok, err := Verify(otherPub, event, sig)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEventHash_ChangesWithSignature(t *testing.T) {
	event := sampleEvent()
	hashBefore, err := EventHash(event)
	require.NoError(t, err)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	_ = pub
	sig, err := Sign(priv, event)
	require.NoError(t, err)
	event.Signature = sig

	hashAfter, err := EventHash(event)
	require.NoError(t, err)
	require.NotEqual(t, hashBefore, hashAfter)
}

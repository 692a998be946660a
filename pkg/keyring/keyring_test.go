package keyring

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adjoshi06/chainofCommand/pkg/model"
)

func TestEnsureKey_IdempotentForSameAgent(t *testing.T) {
	reg, err := New(t.TempDir())
	require.NoError(t, err)

	first, err := reg.EnsureKey("agent.planner", "Planner", []model.Role{model.RolePlanner})
	require.NoError(t, err)

	second, err := reg.EnsureKey("agent.planner", "Planner", []model.Role{model.RolePlanner})
	require.NoError(t, err)

	require.Equal(t, first.Identity.KeyID, second.Identity.KeyID)
	require.Equal(t, first.PrivateKey, second.PrivateKey)
}

func TestEnsureKey_RejectsInvalidAgentID(t *testing.T) {
	reg, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = reg.EnsureKey("Agent With Spaces", "x", nil)
	require.ErrorIs(t, err, ErrInvalidID)
}

func TestResolvePublicKey_RoundTripsThroughPEM(t *testing.T) {
	reg, err := New(t.TempDir())
	require.NoError(t, err)

	material, err := reg.EnsureKey("agent.executor", "Executor", []model.Role{model.RoleExecutor})
	require.NoError(t, err)

	pub, err := reg.ResolvePublicKey(material.Identity.KeyID)
	require.NoError(t, err)
	require.Equal(t, material.PublicKey, pub)
}

func TestRevokeKey_MarksStatusAndStopsFutureEnsure(t *testing.T) {
	reg, err := New(t.TempDir())
	require.NoError(t, err)

	material, err := reg.EnsureKey("agent.critic", "Critic", []model.Role{model.RoleCritic})
	require.NoError(t, err)

	require.NoError(t, reg.RevokeKey(material.Identity.KeyID, model.NowISO(), "rotation drill"))

	identity, err := reg.ResolveIdentity(material.Identity.KeyID)
	require.NoError(t, err)
	require.Equal(t, model.KeyStatusRevoked, identity.Status)

	// A revoked identity must not be reused by EnsureKey; a fresh key_id
	// is minted for the same agent_id instead.
	second, err := reg.EnsureKey("agent.critic", "Critic", []model.Role{model.RoleCritic})
	require.NoError(t, err)
	require.NotEqual(t, material.Identity.KeyID, second.Identity.KeyID)
}

func TestRevokeKey_UnknownKeyIDErrors(t *testing.T) {
	reg, err := New(t.TempDir())
	require.NoError(t, err)

	err = reg.RevokeKey("key_doesnotexist", model.NowISO(), "n/a")
	require.Error(t, err)
}

package ulid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNew_ValidShape(t *testing.T) {
	id := New()
	require.Len(t, id, Len)
	require.True(t, Valid(id))
}

func TestNewAt_MonotonicWithinSameMillisecond(t *testing.T) {
	ts := time.UnixMilli(1_700_000_000_000)
	a := NewAt(ts)
	b := NewAt(ts)
	require.NotEqual(t, a, b)
	require.Less(t, a, b)
}

func TestPrefixed_Shape(t *testing.T) {
	claim := Prefixed("claim")
	require.Regexp(t, `^claim_[0-9A-Z]{26}$`, claim)
}

func TestValid_RejectsWrongLength(t *testing.T) {
	require.False(t, Valid("too-short"))
}

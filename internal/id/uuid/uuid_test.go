package uuid

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewIDIsV7(t *testing.T) {
	t.Parallel()

	gen := NewUUIDGenerator()
	raw, err := gen.NewID()
	require.NoError(t, err)

	parsed, err := uuid.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, uuid.Version(7), parsed.Version())
}

func TestNewIDUnique(t *testing.T) {
	t.Parallel()

	gen := NewUUIDGenerator()
	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		id, err := gen.NewID()
		require.NoError(t, err)
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestValid(t *testing.T) {
	t.Parallel()

	require.True(t, Valid("0190d5c2-7b3c-7a4e-9f00-1234567890ab"))
	require.False(t, Valid("not-a-uuid"))
	require.False(t, Valid(""))
}

package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id, err := pub.Publish(context.Background(), "https://worker/callback", map[string]string{"jobId": "j1"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "https://worker/callback", msgs[0].Destination)

	msgs[0].Destination = "mutated"
	require.Equal(t, "https://worker/callback", pub.Messages()[0].Destination)
}

func TestPublisherFailWith(t *testing.T) {
	t.Parallel()

	pub := New()
	boom := errors.New("queue unavailable")
	pub.FailWith(boom)
	_, err := pub.Publish(context.Background(), "dest", nil)
	require.ErrorIs(t, err, boom)
	require.Empty(t, pub.Messages())

	pub.FailWith(nil)
	_, err = pub.Publish(context.Background(), "dest", nil)
	require.NoError(t, err)
}

func TestPublisherHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Publish(ctx, "dest", nil)
	require.ErrorIs(t, err, context.Canceled)
}

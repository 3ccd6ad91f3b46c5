//go:build integration

package engine

import (
	"context"
	"testing"

	"mostrod/pkg/cache"
	"mostrod/pkg/logger"

	"github.com/stretchr/testify/require"
)

func init() {
	_ = logger.Init("development")
}

func setupTestCache(t *testing.T) {
	t.Helper()
	err := cache.Init(cache.Config{Host: "localhost", Port: "6379", DB: 2})
	require.NoError(t, err, "failed to connect to test Redis")
	require.NoError(t, cache.Client.FlushDB(context.Background()).Err())
}

func TestIdempotency_SeenRequest_FirstThenRepeat(t *testing.T) {
	setupTestCache(t)
	idem := NewIdempotency()
	ctx := context.Background()

	seen, err := idem.SeenRequest(ctx, "order-1", "req-1")
	require.NoError(t, err)
	require.False(t, seen)

	seen, err = idem.SeenRequest(ctx, "order-1", "req-1")
	require.NoError(t, err)
	require.True(t, seen)
}

func TestIdempotency_SeenRequest_EmptyRequestIDNeverDedups(t *testing.T) {
	setupTestCache(t)
	idem := NewIdempotency()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		seen, err := idem.SeenRequest(ctx, "order-1", "")
		require.NoError(t, err)
		require.False(t, seen)
	}
}

func TestIdempotency_SeenRequest_DifferentOrdersIndependent(t *testing.T) {
	setupTestCache(t)
	idem := NewIdempotency()
	ctx := context.Background()

	seen, err := idem.SeenRequest(ctx, "order-1", "req-1")
	require.NoError(t, err)
	require.False(t, seen)

	seen, err = idem.SeenRequest(ctx, "order-2", "req-1")
	require.NoError(t, err)
	require.False(t, seen, "same request_id on a different order must not be deduped")
}

func TestIdempotency_SeenNotification_FirstThenRepeat(t *testing.T) {
	setupTestCache(t)
	idem := NewIdempotency()
	ctx := context.Background()

	seen, err := idem.SeenNotification(ctx, "settled", "deadbeef")
	require.NoError(t, err)
	require.False(t, seen)

	seen, err = idem.SeenNotification(ctx, "settled", "deadbeef")
	require.NoError(t, err)
	require.True(t, seen)
}

func TestIdempotency_SeenNotification_KindsIndependent(t *testing.T) {
	setupTestCache(t)
	idem := NewIdempotency()
	ctx := context.Background()

	seen, err := idem.SeenNotification(ctx, "accepted", "deadbeef")
	require.NoError(t, err)
	require.False(t, seen)

	seen, err = idem.SeenNotification(ctx, "settled", "deadbeef")
	require.NoError(t, err)
	require.False(t, seen, "different notification kinds for the same hash must not collide")
}

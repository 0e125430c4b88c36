//go:build integration

package window

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingressgw/pkg/testutil/containers"
)

func TestRedisStore_AgainstRealRedis(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	store := NewRedisStore(rc.Client)

	t.Run("limit is shared and enforced", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		for i := 0; i < 3; i++ {
			result, err := store.Increment(ctx, "it:window", 3, time.Minute)
			require.NoError(t, err)
			assert.True(t, result.Admitted)
		}
		result, err := store.Increment(ctx, "it:window", 3, time.Minute)
		require.NoError(t, err)
		assert.False(t, result.Admitted)
		assert.Equal(t, 4, result.Count)

		ttl, err := rc.Client.PTTL(ctx, "it:window").Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
		assert.LessOrEqual(t, ttl, time.Minute)
	})

	t.Run("window expires", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		_, err := store.Increment(ctx, "it:short", 1, 200*time.Millisecond)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			result, err := store.Increment(ctx, "it:short", 1, 200*time.Millisecond)
			return err == nil && result.Admitted
		}, 3*time.Second, 50*time.Millisecond)
	})
}

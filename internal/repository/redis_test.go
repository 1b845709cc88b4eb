package repository

import (
	"context"
	"testing"
	"time"

	"studiodesk/internal/config"
	"studiodesk/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisSlotLocker(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	defer client.Close()

	locker := NewRedisSlotLocker(client)
	ctx := context.Background()

	t.Run("SecondHolderBlocked", func(t *testing.T) {
		token, err := locker.Acquire(ctx, "2024-06-01", time.Minute)
		require.NoError(t, err)
		assert.NotEmpty(t, token)

		_, err = locker.Acquire(ctx, "2024-06-01", time.Minute)
		assert.ErrorIs(t, err, domain.ErrLockHeld)

		require.NoError(t, locker.Release(ctx, "2024-06-01", token))

		_, err = locker.Acquire(ctx, "2024-06-01", time.Minute)
		assert.NoError(t, err)
	})

	t.Run("StaleTokenKeepsLock", func(t *testing.T) {
		token, err := locker.Acquire(ctx, "2024-06-02", time.Minute)
		require.NoError(t, err)

		require.NoError(t, locker.Release(ctx, "2024-06-02", "not-the-token"))
		assert.True(t, s.Exists(slotLockPrefix+"2024-06-02"))

		got, err := s.Get(slotLockPrefix + "2024-06-02")
		require.NoError(t, err)
		assert.Equal(t, token, got)
	})

	t.Run("Expiry", func(t *testing.T) {
		_, err := locker.Acquire(ctx, "2024-06-03", time.Second)
		require.NoError(t, err)

		s.FastForward(2 * time.Second)

		_, err = locker.Acquire(ctx, "2024-06-03", time.Second)
		assert.NoError(t, err)
	})

	t.Run("NilClient", func(t *testing.T) {
		_, err := NewRedisSlotLocker(nil).Acquire(ctx, "x", time.Second)
		assert.Error(t, err)
	})
}

func TestRedisHelpers(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	assert.NoError(t, Ping(context.Background(), client))
	assert.NoError(t, Close(client))
	assert.NoError(t, Close(nil))
}

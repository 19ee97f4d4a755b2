package otpstore_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"medride/internal/domain/model"
	"medride/internal/infra/otpstore"
	"medride/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ttl = 10 * time.Minute

// 両実装に同じテストを流す
func stores(t *testing.T) map[string]repository.OTPStore {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]repository.OTPStore{
		"memory": otpstore.NewMemoryStore(),
		"redis":  otpstore.NewRedisStore(client),
	}
}

func challenge(email, hash string, now time.Time) model.OTPChallenge {
	return model.OTPChallenge{Email: email, CodeHash: hash, ExpiresAt: now.Add(ttl)}
}

func TestOTPStore_ConsumeOnce(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()

			require.NoError(t, s.Save(ctx, challenge("a@example.com", "h1", now), ttl))

			ok, err := s.Consume(ctx, "a@example.com", "h1", now)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = s.Consume(ctx, "a@example.com", "h1", now)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestOTPStore_WrongCodeKeepsChallenge(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()

			require.NoError(t, s.Save(ctx, challenge("a@example.com", "h1", now), ttl))

			ok, err := s.Consume(ctx, "a@example.com", "wrong", now)
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = s.Consume(ctx, "a@example.com", "h1", now)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestOTPStore_Expired(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()

			require.NoError(t, s.Save(ctx, challenge("a@example.com", "h1", now), ttl))

			ok, err := s.Consume(ctx, "a@example.com", "h1", now.Add(ttl+time.Second))
			require.NoError(t, err)
			assert.False(t, ok)

			//期限切れは削除されている
			ok, err = s.Consume(ctx, "a@example.com", "h1", now)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestOTPStore_SaveOverwrites(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()

			require.NoError(t, s.Save(ctx, challenge("a@example.com", "old", now), ttl))
			require.NoError(t, s.Save(ctx, challenge("a@example.com", "new", now), ttl))

			ok, err := s.Consume(ctx, "a@example.com", "old", now)
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = s.Consume(ctx, "a@example.com", "new", now)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestOTPStore_PerEmail(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()

			require.NoError(t, s.Save(ctx, challenge("a@example.com", "h1", now), ttl))

			ok, err := s.Consume(ctx, "b@example.com", "h1", now)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestOTPStore_ConcurrentConsume(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now()

			require.NoError(t, s.Save(ctx, challenge("a@example.com", "h1", now), ttl))

			var wins atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := s.Consume(ctx, "a@example.com", "h1", now)
					if err == nil && ok {
						wins.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(1), wins.Load())
		})
	}
}

func TestMemoryStore_Sweep(t *testing.T) {
	ctx := context.Background()
	s := otpstore.NewMemoryStore()
	now := time.Now()

	require.NoError(t, s.Save(ctx, challenge("a@example.com", "h1", now.Add(-time.Hour)), ttl))
	require.NoError(t, s.Save(ctx, challenge("b@example.com", "h2", now), ttl))

	assert.Equal(t, 1, s.Sweep(now))
	assert.Equal(t, 1, s.Len())
}

func TestRedisStore_KeyExpiresWithTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	s := otpstore.NewRedisStore(client)
	now := time.Now()

	require.NoError(t, s.Save(ctx, challenge("a@example.com", "h1", now), ttl))
	assert.True(t, mr.Exists("otp:a@example.com"))

	mr.FastForward(ttl + time.Second)
	assert.False(t, mr.Exists("otp:a@example.com"))
}

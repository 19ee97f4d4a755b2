package otpstore

import (
	"context"
	"fmt"
	"time"

	"medride/internal/domain/model"

	"github.com/redis/go-redis/v9"
)

const otpKeyPrefix = "otp"

// GETと比較とDELを1回で行う。
// 1: 消費成功 / 0: 無い・期限切れ・不一致
const consumeScript = `
local hash = redis.call("HGET", KEYS[1], "hash")
if not hash then
  return 0
end

local exp = tonumber(redis.call("HGET", KEYS[1], "exp"))
if not exp or exp <= tonumber(ARGV[2]) then
  redis.call("DEL", KEYS[1])
  return 0
end

if hash ~= ARGV[1] then
  return 0
end

redis.call("DEL", KEYS[1])
return 1
`

var consumeLua = redis.NewScript(consumeScript)

// Redis上のOTP置き場。レプリカ間で共有できる。
type RedisStore struct {
	redis redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{redis: client}
}

func (s *RedisStore) key(email string) string {
	return otpKeyPrefix + ":" + email
}

func (s *RedisStore) Save(ctx context.Context, challenge model.OTPChallenge, ttl time.Duration) error {
	const op = "otpstore.RedisStore.Save"

	key := s.key(challenge.Email)
	_, err := s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key, "hash", challenge.CodeHash, "exp", challenge.ExpiresAt.UnixMilli())
		p.PExpire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, email string, codeHash string, now time.Time) (bool, error) {
	const op = "otpstore.RedisStore.Consume"

	res, err := consumeLua.Run(ctx, s.redis, []string{s.key(email)}, codeHash, now.UnixMilli()).Int64()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return res == 1, nil
}

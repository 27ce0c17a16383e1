package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storefront/internal/domain/model"

	"github.com/go-redis/redis/v8"
)

const otpKeyPrefix = "otp:"

// 期限が切れてもすぐには消さず、少し残す（期限切れの判定はexpires_atで行う）
const otpKeyGrace = time.Minute

// 照合と使用済み化を1スクリプトで行う（同じコードで2回通らない）
var consumeOTPScript = redis.NewScript(`
local v = redis.call('HMGET', KEYS[1], 'code_hash', 'expires_at', 'consumed')
if not v[1] then
  return 0
end
if v[3] == '1' then
  return 0
end
if tonumber(v[2]) <= tonumber(ARGV[2]) then
  return 0
end
if v[1] ~= ARGV[1] then
  local n = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
  if n >= tonumber(ARGV[3]) then
    redis.call('HSET', KEYS[1], 'consumed', '1')
  end
  return 0
end
redis.call('HSET', KEYS[1], 'consumed', '1')
return 1
`)

type OtpRedisRepository struct {
	client *redis.Client
}

func NewOtpRedisRepository(client *redis.Client) *OtpRedisRepository {
	return &OtpRedisRepository{client: client}
}

func otpKey(email string) string {
	return otpKeyPrefix + strings.ToLower(strings.TrimSpace(email))
}

// Save は前のコードを消してから新しいコードを書く
func (r *OtpRedisRepository) Save(ctx context.Context, code model.OneTimeCode) error {
	key := otpKey(code.Email)
	ttl := code.ExpiresAt.Sub(code.IssuedAt) + otpKeyGrace

	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key,
			"code_hash", code.CodeHash,
			"expires_at", code.ExpiresAt.UnixMilli(),
			"consumed", "0",
			"attempts", 0,
		)
		p.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save otp: %w", err)
	}
	return nil
}

func (r *OtpRedisRepository) Consume(ctx context.Context, email string, codeHash string, now time.Time, maxAttempts int) (bool, error) {
	n, err := consumeOTPScript.Run(ctx, r.client, []string{otpKey(email)}, codeHash, now.UnixMilli(), maxAttempts).Int()
	if err != nil {
		return false, fmt.Errorf("consume otp: %w", err)
	}
	return n == 1, nil
}

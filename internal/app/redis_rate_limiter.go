package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// payoutWindowScript counts one payout attempt inside a fixed window. The
// window starts on the first attempt; a key left without a TTL (for example
// after a Redis restart) gets one reattached so the bucket cannot leak.
var payoutWindowScript = redis.NewScript(`
local attempts = redis.call("INCR", KEYS[1])
local window = tonumber(ARGV[1])
if attempts == 1 then
  redis.call("PEXPIRE", KEYS[1], window)
end
local remaining = redis.call("PTTL", KEYS[1])
if remaining < 0 then
  remaining = window
  redis.call("PEXPIRE", KEYS[1], remaining)
end
return {attempts, remaining}
`)

// LimitDecision is the outcome of charging one payout attempt against a
// bucket. RetryAfter is only meaningful when Allowed is false.
type LimitDecision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RedisPayoutRateLimiter caps payout issuance per fund-account key using a
// per-minute window shared across service instances.
type RedisPayoutRateLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

// NewRedisPayoutRateLimiter builds a limiter allowing limitPerMinute payout
// attempts per key. A non-positive limit produces a limiter that always
// allows.
func NewRedisPayoutRateLimiter(client redis.UniversalClient, prefix string, limitPerMinute int) *RedisPayoutRateLimiter {
	cleaned := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if cleaned == "" {
		cleaned = "payctf:rate_limit"
	}

	return &RedisPayoutRateLimiter{
		client: client,
		prefix: cleaned,
		limit:  limitPerMinute,
		window: time.Minute,
	}
}

// ConsumePayout charges one payout attempt for the given key and decides
// whether it may proceed.
func (r *RedisPayoutRateLimiter) ConsumePayout(ctx context.Context, key string) (LimitDecision, error) {
	allow := LimitDecision{Allowed: true, Remaining: -1}
	if r == nil || r.client == nil || r.limit <= 0 {
		return allow, nil
	}
	subject := strings.TrimSpace(key)
	if subject == "" {
		return allow, nil
	}

	bucket := fmt.Sprintf("%s:payout:%s", r.prefix, subject)
	raw, err := payoutWindowScript.Run(ctx, r.client, []string{bucket}, r.window.Milliseconds()).Result()
	if err != nil {
		return allow, err
	}

	reply, ok := raw.([]interface{})
	if !ok || len(reply) != 2 {
		return allow, fmt.Errorf("malformed payout limiter reply: %T", raw)
	}
	attempts, attemptsOK := reply[0].(int64)
	ttlMs, ttlOK := reply[1].(int64)
	if !attemptsOK || !ttlOK {
		return allow, fmt.Errorf("malformed payout limiter reply values: %v", reply)
	}

	if attempts > int64(r.limit) {
		retryAfter := time.Duration(ttlMs) * time.Millisecond
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return LimitDecision{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
	}

	return LimitDecision{Allowed: true, Remaining: r.limit - int(attempts)}, nil
}

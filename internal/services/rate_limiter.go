package services

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// INCR+EXPIRE одним скриптом: счётчик и его TTL появляются атомарно.
const rateLimitScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// redisRateLimiter — окно отправок кода на номер.
// При недоступном Redis пропускает запрос (fail-open).
type redisRateLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
	prefix string
}

func NewRedisRateLimiter(client *redis.Client, window time.Duration, max int) RateLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = 10 * time.Minute
	}
	if max <= 0 {
		max = 3
	}
	return &redisRateLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "sendcode:rl:",
	}
}

func (l *redisRateLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	if key == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	seconds := int(l.window.Seconds())
	count, err := l.client.Eval(ctx, rateLimitScript, []string{l.prefix + key}, seconds).Int()
	if err != nil {
		log.Printf("[ratelimit] redis error, allowing: %v", err)
		return true
	}
	return count <= l.max
}

package server

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

const (
	DefaultRequestsPerSecond = 20
	DefaultRequestBurst      = 40

	visitorStaleAfter   = 3 * time.Minute
	visitorCleanupEvery = 256
	redisLimiterTimeout = 250 * time.Millisecond
)

// RequestLimiter decides whether one more request from key may proceed.
// When it may not, retryAfter says how long the client should wait.
type RequestLimiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// LocalLimiter keeps one token bucket per client in process memory.
type LocalLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	ops      int
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter returns a per-client limiter refilling rps tokens per
// second up to burst.
func NewLocalLimiter(rps float64, burst int) *LocalLimiter {
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	if burst <= 0 {
		burst = DefaultRequestBurst
	}
	return &LocalLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.maybeCleanupLocked(now)

	reservation := v.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, time.Second, nil
	}
	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.CancelAt(now)
		return false, delay, nil
	}
	return true, 0, nil
}

func (l *LocalLimiter) maybeCleanupLocked(now time.Time) {
	l.ops++
	if l.ops%visitorCleanupEvery != 0 {
		return
	}
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > visitorStaleAfter {
			delete(l.visitors, key)
		}
	}
}

// redisTokenBucketScript refills and consumes one bucket atomically.
// KEYS[1] = bucket key
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity
// ARGV[3] = now (unix seconds, microsecond precision)
// Returns {allowed, retry_after_ms}.
var redisTokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])
if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate)
    last_refill = now
end

local allowed = 0
local retry_ms = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
else
    retry_ms = math.ceil((1 - tokens) / rate * 1000)
end

redis.call("HSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, math.ceil(capacity / rate) + 1)
return {allowed, retry_ms}
`)

// RedisLimiter shares token buckets between server instances.
type RedisLimiter struct {
	client redis.UniversalClient
	rps    float64
	burst  int
	prefix string
}

// NewRedisLimiter returns a limiter backed by the Redis server at addr.
func NewRedisLimiter(addr string, rps float64, burst int) *RedisLimiter {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  redisLimiterTimeout,
		ReadTimeout:  redisLimiterTimeout,
		WriteTimeout: redisLimiterTimeout,
		MaxRetries:   -1,
	})
	return newRedisLimiterWithClient(client, rps, burst)
}

func newRedisLimiterWithClient(client redis.UniversalClient, rps float64, burst int) *RedisLimiter {
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	if burst <= 0 {
		burst = DefaultRequestBurst
	}
	return &RedisLimiter{client: client, rps: rps, burst: burst, prefix: "filebox:ratelimit:"}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := float64(time.Now().UnixMicro()) / 1e6
	res, err := redisTokenBucketScript.Run(ctx, l.client, []string{l.prefix + key}, l.rps, l.burst, now).Result()
	if err != nil {
		return false, 0, fmt.Errorf("redis limiter: %w", err)
	}
	results, ok := res.([]any)
	if !ok || len(results) != 2 {
		return false, 0, fmt.Errorf("redis limiter: unexpected script result %v", res)
	}
	allowed, _ := results[0].(int64)
	retryMS, _ := results[1].(int64)
	return allowed == 1, time.Duration(retryMS) * time.Millisecond, nil
}

// Close releases the Redis connection pool.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

// withRateLimit enforces the request limiter per client address. Limiter
// failures let the request through.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.requestLimiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		key := requestClientIP(r)
		if key == "" {
			key = "<unknown>"
		}
		allowed, retryAfter, err := s.requestLimiter.Allow(r.Context(), key)
		if err != nil {
			s.log().LogAttrs(r.Context(), slog.LevelWarn, "rate limiter unavailable; allowing request",
				slog.String("client", key), slog.Any("error", err))
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			s.writeErrorReq(w, r, http.StatusTooManyRequests, apiError{
				status:  http.StatusTooManyRequests,
				code:    "resource_exhausted",
				errCode: ErrCodeResourceExhausted,
				err:     fmt.Errorf("rate limit exceeded"),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

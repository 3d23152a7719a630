package api

import (
	"context"
	"fmt"
	"log"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/trogers1052/form4-tracker/internal/service"
)

// DefaultRateLimitPrefix namespaces limiter keys in a shared Redis
const DefaultRateLimitPrefix = "form4:ratelimit:"

// RedisRateLimiter is a sliding-window limiter backed by one sorted set per
// client, scored by request time in milliseconds
type RedisRateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisRateLimiter allows limit requests per window for each client
func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: DefaultRateLimitPrefix,
		now:    time.Now,
	}
}

// Allow records a request for clientID and reports whether it is within the
// limit. When it is not, retryAfter says when the oldest request leaves the window.
func (l *RedisRateLimiter) Allow(ctx context.Context, clientID string) (bool, time.Duration, error) {
	key := l.prefix + clientID
	now := l.now()
	nowMs := now.UnixMilli()
	windowStart := nowMs - l.window.Milliseconds()
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()

	var card *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(nowMs), Member: member})
		card = pipe.ZCard(ctx, key)
		pipe.Expire(ctx, key, l.window)
		return nil
	})
	if err != nil {
		return true, 0, fmt.Errorf("failed to record request: %w", err)
	}

	if card.Val() <= int64(l.limit) {
		return true, 0, nil
	}

	// Rejected requests do not count against the window
	if err := l.client.ZRem(ctx, key, member).Err(); err != nil {
		log.Printf("Failed to drop rejected request for %s: %v", clientID, err)
	}

	retryAfter := l.window
	oldest, err := l.client.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err == nil && len(oldest) == 1 {
		expires := time.UnixMilli(int64(oldest[0].Score)).Add(l.window)
		if d := expires.Sub(now); d > 0 {
			retryAfter = d
		}
	}
	return false, retryAfter, nil
}

// Middleware rejects clients over the limit with 429. It fails open when
// Redis is unavailable. A nil limiter lets everything through.
func (l *RedisRateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter, err := l.Allow(r.Context(), clientID(r))
		if err != nil {
			log.Printf("Rate limiter unavailable, allowing request: %v", err)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			respondDetail(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientID identifies the caller by API key when one is sent, else by IP
func clientID(r *http.Request) string {
	if key := apiKeyFromRequest(r); key != "" {
		return "key:" + service.HashAPIKey(key)[:16]
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

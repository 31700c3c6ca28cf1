// Package ratelimit bounds how many commands a user can issue per window.
package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"discord-economy-bot/internal/config"
)

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// RedisLimiter is a fixed-window counter shared by every bot instance
// pointed at the same redis. It fails open.
type RedisLimiter struct {
	client *redis.Client
	max    int64
	window time.Duration
	prefix string
}

// NewRedisLimiter creates a RedisLimiter.
func NewRedisLimiter(client *redis.Client, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		max:    int64(max),
		window: window,
		prefix: "rl:" + strconv.FormatInt(int64(window.Seconds()), 10) + ":",
	}
}

// Allow increments the key's counter for the current window. SET NX EX and
// INCR run in one MULTI, so a counter never exists without its expiry.
func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	k := l.prefix + key
	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, k, 0, l.window)
		incr = pipe.Incr(ctx, k)
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Rate limiter unavailable, allowing")
		return true
	}
	return incr.Val() <= l.max
}

type localEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter is an in-process token bucket per key. Buckets idle for a
// whole window are full again and get dropped.
type LocalLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*localEntry
	every     rate.Limit
	burst     int
	window    time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewLocalLimiter allows max commands per window per key, refilling evenly.
func NewLocalLimiter(max int, window time.Duration) *LocalLimiter {
	return &LocalLimiter{
		limiters: make(map[string]*localEntry),
		every:    rate.Every(window / time.Duration(max)),
		burst:    max,
		window:   window,
		now:      time.Now,
	}
}

// Allow takes a token from the key's bucket.
func (l *LocalLimiter) Allow(_ context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.window {
		l.sweep(now)
	}

	e, ok := l.limiters[key]
	if !ok {
		e = &localEntry{lim: rate.NewLimiter(l.every, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	return e.lim.AllowN(now, 1)
}

func (l *LocalLimiter) sweep(now time.Time) {
	for key, e := range l.limiters {
		if now.Sub(e.lastSeen) >= l.window {
			delete(l.limiters, key)
		}
	}
	l.lastSweep = now
}

// Size returns the number of tracked keys.
func (l *LocalLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// New returns a RedisLimiter when redis is configured and reachable, and a
// LocalLimiter otherwise. The returned close func releases the redis client.
func New(ctx context.Context, rc config.RedisConfig, lc config.RateLimitConfig) (Limiter, func()) {
	if rc.Addr == "" {
		return NewLocalLimiter(lc.Max, lc.Window), func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", rc.Addr).Msg("Redis unreachable, using in-process rate limiter")
		_ = client.Close()
		return NewLocalLimiter(lc.Max, lc.Window), func() {}
	}

	log.Info().Str("addr", rc.Addr).Msg("Using redis rate limiter")
	return NewRedisLimiter(client, lc.Max, lc.Window), func() { _ = client.Close() }
}

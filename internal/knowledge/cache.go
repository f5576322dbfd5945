package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "casi:knowledge:"

// DialRedis connects to the shared answer cache and checks it answers.
func DialRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// answerCache is two-tiered: an in-process map in front of an optional
// redis shared by every replica.
type answerCache struct {
	local  *gocache.Cache
	shared *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func newAnswerCache(ttl time.Duration, shared *redis.Client, logger *slog.Logger) *answerCache {
	return &answerCache{
		local:  gocache.New(ttl, 10*time.Minute),
		shared: shared,
		ttl:    ttl,
		logger: logger,
	}
}

func (a *answerCache) get(ctx context.Context, key string) (string, bool) {
	if v, ok := a.local.Get(key); ok {
		return v.(string), true
	}
	if a.shared == nil {
		return "", false
	}
	v, err := a.shared.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			a.logger.Warn("shared answer cache read failed", "component", "redis", "error", err)
		}
		return "", false
	}
	a.local.Set(key, v, gocache.DefaultExpiration)
	return v, true
}

func (a *answerCache) set(ctx context.Context, key, value string) {
	a.local.Set(key, value, gocache.DefaultExpiration)
	if a.shared == nil {
		return
	}
	if err := a.shared.Set(ctx, keyPrefix+key, value, a.ttl).Err(); err != nil {
		a.logger.Warn("shared answer cache write failed", "component", "redis", "error", err)
	}
}

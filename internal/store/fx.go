package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"embedbot/internal/config"
)

// Module provides the request tracker. Redis is used when REDIS_ADDR is set
// and reachable at startup, memory otherwise.
var Module = fx.Module("store",
	fx.Provide(provideStore),
)

func provideStore(lc fx.Lifecycle, cfg *config.TrackerConfig, logger zerolog.Logger) RequestStore {
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err == nil {
			rs := NewRedisStore(rdb, cfg.TTL)
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error { return rs.Close() },
			})
			logger.Info().Str("addr", cfg.RedisAddr).Msg("request tracker using redis")
			return rs
		}
		_ = rdb.Close()
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, request tracker falling back to memory")
	}
	return NewMemoryStore()
}

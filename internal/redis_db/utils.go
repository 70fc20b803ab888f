package redisdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewRedisClient connects to redisURL and pings it once so a bad address
// fails at startup rather than on the first poll cycle.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	zlog := zerolog.Ctx(ctx)

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Join(fmt.Errorf("ping redis at %s: %w", opts.Addr, err), client.Close())
	}

	zlog.Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("Connected to redis")
	return client, nil
}

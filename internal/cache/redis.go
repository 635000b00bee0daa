package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"go_sitegen/internal/config"
)

const pingTimeout = 5 * time.Second

// OpenRedis connects the client backing the publish lock and checks it answers
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	logrus.WithFields(logrus.Fields{
		"component": "redis",
		"addr":      cfg.Addr,
		"db":        cfg.DB,
	}).Info("redis connected")
	return rdb, nil
}

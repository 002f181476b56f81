package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"argus/config"
	"argus/protocol"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisPingTimeout = 5 * time.Second

var redisRetryDelays = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

// InitRedis connects to the Redis server used by the distributed
// transport, retrying the initial ping.
func InitRedis(ctx context.Context, cfg *config.Config, sugar *zap.SugaredLogger) (*redis.Client, error) {
	addr := cfg.Distributed.Redis.Addr
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Distributed.Redis.Password,
		DB:       cfg.Distributed.Redis.DB,
	})

	maxRetries := len(redisRetryDelays)
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := redisRetryDelays[attempt-1]
			sugar.Infow("Retrying Redis connection",
				"attempt", attempt,
				"max_retries", maxRetries,
				"delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				client.Close()
				return nil, ctx.Err()
			}
		}

		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		lastErr = client.Ping(pingCtx).Err()
		cancel()
		if lastErr == nil {
			break
		}
		sugar.Warnw("Redis connection attempt failed",
			"attempt", attempt+1,
			"error", lastErr)
	}

	if lastErr != nil {
		client.Close()
		fmt.Fprintf(os.Stderr, "\n========================================\n")
		fmt.Fprintf(os.Stderr, "FATAL: Redis Connection Failed\n")
		fmt.Fprintf(os.Stderr, "========================================\n")
		fmt.Fprintf(os.Stderr, "%s\n", ClassifyConnectionError(lastErr, addr))
		fmt.Fprintf(os.Stderr, "========================================\n\n")
		return nil, fmt.Errorf("failed to connect to Redis after %d attempts: %w", maxRetries+1, lastErr)
	}

	sugar.Infow("Connected to Redis", "addr", addr, "db", cfg.Distributed.Redis.DB)
	return client, nil
}

// RedisOptions maps the config onto the stream transport settings.
func RedisOptions(cfg *config.Config) protocol.RedisOptions {
	return protocol.RedisOptions{
		Prefix: cfg.Distributed.Redis.StreamPrefix,
		Block:  cfg.Distributed.Redis.BlockTimeout,
		MaxLen: cfg.Distributed.Redis.MaxLen,
	}
}

package redisclient

import (
	"context"
	"sync"
	"time"

	"messer/internal/logger"

	"github.com/go-redis/redis/v8"
)

const pingTimeout = 5 * time.Second

var (
	mu     sync.RWMutex
	client *redis.Client
)

// InitRedis connects to Redis. On a failed ping no client is kept and the
// process runs without presence mirroring or revocation.
func InitRedis(addr, password string, db int) error {
	c := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable", "addr", addr, "error", err)
		_ = c.Close()
		return err
	}

	mu.Lock()
	prev := client
	client = c
	mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}

	logger.Info("redis connected", "addr", addr, "db", db)
	return nil
}

// GetRedisClient returns the shared client, nil when Redis is disabled.
func GetRedisClient() *redis.Client {
	mu.RLock()
	defer mu.RUnlock()
	return client
}

func CloseRedis() error {
	mu.Lock()
	c := client
	client = nil
	mu.Unlock()

	if c == nil {
		return nil
	}
	return c.Close()
}

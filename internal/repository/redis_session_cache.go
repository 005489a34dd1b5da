package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"crypto-dashboard/internal/config"
	"crypto-dashboard/internal/domain"
)

const sessionKeyPrefix = "dashboard:session:"

// RedisSessionCache shares verified sessions between server instances.
// Tokens are stored hashed.
type RedisSessionCache struct {
	client *redis.Client
	logger *slog.Logger
}

var _ domain.SessionCache = (*RedisSessionCache)(nil)

// NewRedisClient connects to Redis and pings it.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func NewRedisSessionCache(client *redis.Client, logger *slog.Logger) *RedisSessionCache {
	return &RedisSessionCache{client: client, logger: logger}
}

func sessionKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return sessionKeyPrefix + hex.EncodeToString(sum[:])
}

// Get treats any Redis failure as a miss so that verification falls back
// to the identity provider.
func (c *RedisSessionCache) Get(ctx context.Context, token string) (*domain.User, bool) {
	data, err := c.client.Get(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("session cache read failed", slog.Any("error", err))
		}
		return nil, false
	}
	var u domain.User
	if err := json.Unmarshal(data, &u); err != nil {
		c.logger.Warn("session cache entry unreadable", slog.Any("error", err))
		return nil, false
	}
	return &u, true
}

func (c *RedisSessionCache) Set(ctx context.Context, token string, user *domain.User, ttl time.Duration) error {
	if user == nil || ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, sessionKey(token), data, ttl).Err()
}

func (c *RedisSessionCache) Delete(ctx context.Context, token string) error {
	return c.client.Del(ctx, sessionKey(token)).Err()
}

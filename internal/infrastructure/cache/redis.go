package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bimakw/blue-liquidator/internal/config"
	"github.com/bimakw/blue-liquidator/internal/domain/repositories"
)

// Ensure RedisCache implements DecimalsCache
var _ repositories.DecimalsCache = (*RedisCache)(nil)

// Ensure RedisCooldown implements CooldownRepository
var _ repositories.CooldownRepository = (*RedisCooldown)(nil)

const keyPrefix = "blue-liquidator:"

// RedisCache shares liquidation cooldowns and token metadata between bot replicas
type RedisCache struct {
	client redis.UniversalClient
	logger *zap.Logger
}

// NewRedisCache creates a new Redis cache instance
func NewRedisCache(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
	)

	return NewRedisCacheFromClient(client, logger), nil
}

// NewRedisCacheFromClient wraps an existing client
func NewRedisCacheFromClient(client redis.UniversalClient, logger *zap.Logger) *RedisCache {
	return &RedisCache{client: client, logger: logger}
}

// Close closes the Redis connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// HealthCheck checks if Redis is reachable
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// GetDecimals returns cached token decimals
func (c *RedisCache) GetDecimals(ctx context.Context, chainID int64, token common.Address) (uint8, bool, error) {
	v, err := c.client.Get(ctx, decimalsKey(chainID, token)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get decimals from cache: %w", err)
	}
	return uint8(v), true, nil
}

// SetDecimals caches token decimals without expiry
func (c *RedisCache) SetDecimals(ctx context.Context, chainID int64, token common.Address, decimals uint8) error {
	if err := c.client.Set(ctx, decimalsKey(chainID, token), int(decimals), 0).Err(); err != nil {
		return fmt.Errorf("failed to set decimals in cache: %w", err)
	}
	return nil
}

// Cooldown returns a distributed cooldown namespaced by scope
func (c *RedisCache) Cooldown(scope string, period time.Duration) *RedisCooldown {
	return &RedisCooldown{client: c.client, scope: scope, period: period}
}

// RedisCooldown claims cooldown windows with SET NX so replicas never race on a key
type RedisCooldown struct {
	client redis.UniversalClient
	scope  string
	period time.Duration
}

// Claim reserves key for period if no reservation is live. The expiry is relative
// to the server's clock at the time of the call, so a window never ends before now+period.
// A zero period is always ready.
func (c *RedisCooldown) Claim(ctx context.Context, key string, now time.Time) (bool, error) {
	if c.period <= 0 {
		return true, nil
	}
	err := c.client.SetArgs(ctx, c.key(key), now.UnixMilli(), redis.SetArgs{
		Mode: "NX",
		TTL:  c.period,
	}).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to claim cooldown: %w", err)
	}
	return true, nil
}

func (c *RedisCooldown) key(key string) string {
	return keyPrefix + "cooldown:" + c.scope + ":" + strings.ToLower(key)
}

func decimalsKey(chainID int64, token common.Address) string {
	return fmt.Sprintf("%sdecimals:%d:%s", keyPrefix, chainID, strings.ToLower(token.Hex()))
}

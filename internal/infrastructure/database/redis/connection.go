// internal/infrastructure/database/redis/connection.go
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-checkout/internal/config"
)

// Client holds the connection backing checkout sessions, the in-flight guard and rate limiting
type Client struct {
	rdb *redis.Client
}

// NewConnection dials Redis and fails fast when it does not answer
func NewConnection(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		ClientName:   cfg.App.Name,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.OpTimeout,
		WriteTimeout: cfg.Redis.OpTimeout,
		// Session writes must not silently outlive the request that made them.
		ContextTimeoutEnabled: true,
	})

	c := &Client{rdb: rdb}
	if err := c.Health(ctx); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.GetRedisAddr(), err)
	}

	logger.WithFields(logrus.Fields{
		"addr": cfg.GetRedisAddr(),
		"db":   cfg.Redis.DB,
	}).Info("✅ Redis connection established")
	return c, nil
}

// GetClient returns the go-redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Health pings Redis within the connection's dial timeout
func (c *Client) Health(ctx context.Context) error {
	timeout := c.rdb.Options().DialTimeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

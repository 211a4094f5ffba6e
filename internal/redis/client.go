package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	grantKeyPrefix     = "grant:"
	grantCodeKeyPrefix = "grant_code:"
	GrantExpiryKey     = "grant_expiry"
)

type Client struct {
	*redis.Client
}

func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

func GrantKeyPrefix() string {
	return grantKeyPrefix
}

func GrantCodeKeyPrefix() string {
	return grantCodeKeyPrefix
}

func GrantKey(deviceID string) string {
	return grantKeyPrefix + deviceID
}

func GrantCodeKey(code string) string {
	return grantCodeKeyPrefix + code
}

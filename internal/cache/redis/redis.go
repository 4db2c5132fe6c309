// Package redis implementa cache.Client sobre Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/dropDatabas3/idpgate/internal/cache"
	rdb "github.com/redis/go-redis/v9"
)

type client struct {
	client *rdb.Client
	prefix string
}

// New crea un cliente de cache Redis y verifica la conexión.
func New(cfg cache.Config) (cache.Client, error) {
	c := rdb.NewClient(&rdb.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: redis ping failed: %w", err)
	}

	return &client{client: c, prefix: cfg.Prefix}, nil
}

// Underlying expone el cliente redis crudo (rate limiter lo necesita).
func Underlying(c cache.Client) *rdb.Client {
	if rc, ok := c.(*client); ok {
		return rc.client
	}
	return nil
}

func (c *client) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

func (c *client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, c.key(key)).Result()
	if err == rdb.Nil {
		return "", cache.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (c *client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, c.key(key), value, ttl).Err()
}

func (c *client) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

func (c *client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *client) Close() error {
	return c.client.Close()
}

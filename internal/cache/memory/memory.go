// Package memory implementa cache.Client in-process sobre go-cache.
package memory

import (
	"context"
	"time"

	"github.com/dropDatabas3/idpgate/internal/cache"
	gocache "github.com/patrickmn/go-cache"
)

type client struct {
	c *gocache.Cache
}

// New crea un cache en memoria con TTL por defecto.
func New(defaultTTL time.Duration) cache.Client {
	if defaultTTL <= 0 {
		defaultTTL = 2 * time.Minute
	}
	return &client{c: gocache.New(defaultTTL, time.Minute)}
}

func (m *client) Get(_ context.Context, key string) (string, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return "", cache.ErrNotFound
	}
	s, _ := v.(string)
	return s, nil
}

func (m *client) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.c.Set(key, value, ttl)
	return nil
}

func (m *client) Delete(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

func (m *client) Ping(_ context.Context) error { return nil }

func (m *client) Close() error {
	m.c.Flush()
	return nil
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultCacheTTL bounds how stale a cached record can be
	DefaultCacheTTL = 30 * time.Second

	cacheKeyPrefix = "machinewatch:device:"
)

// Cached is a read-through Redis cache in front of another Store.
// Writes go to the inner store and invalidate the cached entry. Any Redis
// failure falls back to the inner store.
type Cached struct {
	inner  Store
	client redis.UniversalClient
	ttl    time.Duration
	log    *zap.Logger
}

// NewCached wraps inner with client. A zero ttl uses DefaultCacheTTL.
func NewCached(inner Store, client redis.UniversalClient, ttl time.Duration, log *zap.Logger) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cached{inner: inner, client: client, ttl: ttl, log: log}
}

// NewRedisClient builds a client from a redis:// URL
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

func cacheKey(addr string) string {
	return cacheKeyPrefix + addr
}

func (c *Cached) FindByAddress(ctx context.Context, addr string) (*Record, error) {
	data, err := c.client.Get(ctx, cacheKey(addr)).Bytes()
	switch {
	case err == nil:
		var rec Record
		if err := json.Unmarshal(data, &rec); err == nil {
			return &rec, nil
		}
		c.log.Warn("discarding undecodable cache entry", zap.String("ip", addr))
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn("redis read failed, using store", zap.String("ip", addr), zap.Error(err))
	}

	rec, err := c.inner.FindByAddress(ctx, addr)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, rec)
	return rec, nil
}

func (c *Cached) fill(ctx context.Context, rec *Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(rec.IPAddress), data, c.ttl).Err(); err != nil {
		c.log.Debug("redis write failed", zap.String("ip", rec.IPAddress), zap.Error(err))
	}
}

func (c *Cached) invalidate(ctx context.Context, addr string) {
	if err := c.client.Del(ctx, cacheKey(addr)).Err(); err != nil {
		c.log.Debug("redis invalidate failed", zap.String("ip", addr), zap.Error(err))
	}
}

func (c *Cached) Insert(ctx context.Context, rec *Record) error {
	if err := c.inner.Insert(ctx, rec); err != nil {
		return err
	}
	c.invalidate(ctx, rec.IPAddress)
	return nil
}

func (c *Cached) Update(ctx context.Context, addr string, rec *Record) error {
	if err := c.inner.Update(ctx, addr, rec); err != nil {
		return err
	}
	c.invalidate(ctx, addr)
	return nil
}

// Upsert delegates to the inner store so its atomic path is kept
func (c *Cached) Upsert(ctx context.Context, rec *Record) (bool, error) {
	inserted, err := Upsert(ctx, c.inner, rec)
	if err != nil {
		return false, err
	}
	c.invalidate(ctx, rec.IPAddress)
	return inserted, nil
}

func (c *Cached) List(ctx context.Context) ([]*Record, error) {
	return c.inner.List(ctx)
}

// Ping checks the inner store only; the cache is optional
func (c *Cached) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.log.Warn("redis unreachable", zap.Error(err))
	}
	return c.inner.Ping(ctx)
}

func (c *Cached) Close() error {
	cerr := c.client.Close()
	if err := c.inner.Close(); err != nil {
		return err
	}
	return cerr
}

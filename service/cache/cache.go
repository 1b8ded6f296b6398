// Package cache puts an optional Redis read-through cache in front of the
// query API.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/aascan/client"
	"github.com/brojonat/aascan/service/browser"
	"github.com/brojonat/aascan/service/metrics"
	"github.com/brojonat/aascan/service/resolver"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "aascan:q:v1:"
	defaultTTL = 30 * time.Second
)

// Backend is what the cache fronts.
type Backend interface {
	browser.Querier
	resolver.Prober
}

// Config configures the cache. An empty Addr disables caching.
type Config struct {
	Addr string
	TTL  time.Duration
}

// CachedQuerier serves repeated queries from Redis. Only successful
// responses are cached; errors always reach the caller.
type CachedQuerier struct {
	Backend
	cache   *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New wraps base. With no Addr configured the wrapper passes every call
// through.
func New(base Backend, cfg Config, logger *slog.Logger, m *metrics.Metrics) (*CachedQuerier, error) {
	if base == nil {
		return nil, errors.New("base querier is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	c := &CachedQuerier{Backend: base, logger: logger, metrics: m}
	if strings.TrimSpace(cfg.Addr) == "" {
		return c, nil
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	c.cache = rdb
	c.ttl = cfg.TTL
	return c, nil
}

// Enabled reports whether a Redis connection is in use.
func (c *CachedQuerier) Enabled() bool { return c.cache != nil }

// Close closes the Redis connection, if any.
func (c *CachedQuerier) Close() error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Close()
}

func (c *CachedQuerier) LatestBundles(ctx context.Context, network string, limit, offset int) ([]client.Bundle, error) {
	return readThrough(ctx, c, "latest_bundles", listKey("latest_bundles", network, limit, offset), func() ([]client.Bundle, error) {
		return c.Backend.LatestBundles(ctx, network, limit, offset)
	})
}

func (c *CachedQuerier) LatestUserOps(ctx context.Context, network string, limit, offset int) ([]client.UserOp, error) {
	return readThrough(ctx, c, "latest_user_ops", listKey("latest_user_ops", network, limit, offset), func() ([]client.UserOp, error) {
		return c.Backend.LatestUserOps(ctx, network, limit, offset)
	})
}

func (c *CachedQuerier) TopBundlers(ctx context.Context, network string, limit, offset int) ([]client.Bundler, error) {
	return readThrough(ctx, c, "top_bundlers", listKey("top_bundlers", network, limit, offset), func() ([]client.Bundler, error) {
		return c.Backend.TopBundlers(ctx, network, limit, offset)
	})
}

func (c *CachedQuerier) TopPaymasters(ctx context.Context, network string, limit, offset int) ([]client.Paymaster, error) {
	return readThrough(ctx, c, "top_paymasters", listKey("top_paymasters", network, limit, offset), func() ([]client.Paymaster, error) {
		return c.Backend.TopPaymasters(ctx, network, limit, offset)
	})
}

func (c *CachedQuerier) PaymasterDetails(ctx context.Context, address, network string, pageNo, pageSize int) (*client.PaymasterActivity, error) {
	return readThrough(ctx, c, "paymaster_details", detailKey("paymaster_details", address, network, pageNo, pageSize), func() (*client.PaymasterActivity, error) {
		return c.Backend.PaymasterDetails(ctx, address, network, pageNo, pageSize)
	})
}

func (c *CachedQuerier) BundlerDetails(ctx context.Context, address, network string, pageNo, pageSize int) (*client.BundlerActivity, error) {
	return readThrough(ctx, c, "bundler_details", detailKey("bundler_details", address, network, pageNo, pageSize), func() (*client.BundlerActivity, error) {
		return c.Backend.BundlerDetails(ctx, address, network, pageNo, pageSize)
	})
}

func (c *CachedQuerier) AddressActivity(ctx context.Context, address, network string, pageNo, pageSize int) (*client.AccountActivity, error) {
	return readThrough(ctx, c, "address_activity", detailKey("address_activity", address, network, pageNo, pageSize), func() (*client.AccountActivity, error) {
		return c.Backend.AddressActivity(ctx, address, network, pageNo, pageSize)
	})
}

func (c *CachedQuerier) ProbeNetwork(ctx context.Context, hash, network string) (client.ProbeResult, error) {
	key := keyPrefix + "probe_network:network=" + strings.ToLower(network) + ":entry=" + strings.ToLower(hash)
	return readThrough(ctx, c, "probe_network", key, func() (client.ProbeResult, error) {
		return c.Backend.ProbeNetwork(ctx, hash, network)
	})
}

// readThrough returns the cached value for key or loads and stores it.
// Redis failures degrade to a direct load.
func readThrough[T any](ctx context.Context, c *CachedQuerier, op, key string, load func() (T, error)) (T, error) {
	if c.cache == nil {
		return load()
	}
	if cached, err := c.cache.Get(ctx, key).Result(); err == nil {
		var v T
		if err := json.Unmarshal([]byte(cached), &v); err == nil {
			c.recordLookup(op, true)
			return v, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.WarnContext(ctx, "cache read failed", "op", op, "error", err)
	}
	c.recordLookup(op, false)

	v, err := load()
	if err != nil {
		return v, err
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return v, nil
	}
	if err := c.cache.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "cache write failed", "op", op, "error", err)
	}
	return v, nil
}

func (c *CachedQuerier) recordLookup(op string, hit bool) {
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(op, hit)
	}
}

func listKey(op, network string, limit, offset int) string {
	var b strings.Builder
	b.Grow(64)
	b.WriteString(keyPrefix)
	b.WriteString(op)
	b.WriteString(":network=")
	b.WriteString(strings.ToLower(network))
	b.WriteString(":first=")
	b.WriteString(strconv.Itoa(limit))
	b.WriteString(":skip=")
	b.WriteString(strconv.Itoa(offset))
	return b.String()
}

func detailKey(op, address, network string, pageNo, pageSize int) string {
	var b strings.Builder
	b.Grow(128)
	b.WriteString(keyPrefix)
	b.WriteString(op)
	b.WriteString(":network=")
	b.WriteString(strings.ToLower(network))
	b.WriteString(":addr=")
	b.WriteString(strings.ToLower(address))
	b.WriteString(":first=")
	b.WriteString(strconv.Itoa(pageSize))
	b.WriteString(":skip=")
	b.WriteString(strconv.Itoa((pageNo - 1) * pageSize))
	return b.String()
}

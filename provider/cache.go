package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rustyeddy/ashare/market"
)

// Cache labels set on snapshots served by SnapshotCache.
const (
	CacheHit   = "redis"
	CacheStale = "stale"

	staleTTL = 7 * 24 * time.Hour
)

// KV is the subset of a redis client the cache uses.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// NewRedis connects to addr. The connection is not checked here; a down
// server degrades the cache to a pass-through.
func NewRedis(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

// SnapshotCache wraps a provider and caches its snapshot in redis until
// the next session boundary, so every session sees a fresh fetch. When
// the live fetch fails the last snapshot is served, labelled CacheStale.
type SnapshotCache struct {
	Provider
	kv  KV
	loc *time.Location
	now func() time.Time
	log *slog.Logger
}

func NewSnapshotCache(p Provider, kv KV, o Options) *SnapshotCache {
	return &SnapshotCache{Provider: p, kv: kv, loc: o.location(), now: time.Now, log: o.logger()}
}

func (c *SnapshotCache) keys(now time.Time) (fresh, last string) {
	b := market.NextSessionBoundary(now)
	base := "ashare:snapshot:" + c.Provider.Name()
	return fmt.Sprintf("%s:%d", base, b.Unix()), base + ":last"
}

// TTL is the time left until the next session boundary.
func (c *SnapshotCache) TTL(now time.Time) time.Duration {
	return market.NextSessionBoundary(now.In(c.loc)).Sub(now)
}

func (c *SnapshotCache) get(ctx context.Context, key string) (*market.Snapshot, error) {
	b, err := c.kv.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var snap market.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *SnapshotCache) Snapshot(ctx context.Context) (*market.Snapshot, error) {
	now := c.now().In(c.loc)
	fresh, last := c.keys(now)

	snap, err := c.get(ctx, fresh)
	if err == nil {
		snap.Cache = CacheHit
		return snap, nil
	}
	if !errors.Is(err, redis.Nil) {
		c.log.Warn("snapshot cache read", "key", fresh, "err", err)
	}

	live, liveErr := c.Provider.Snapshot(ctx)
	if liveErr != nil {
		stale, err := c.get(ctx, last)
		if err != nil {
			return nil, liveErr
		}
		c.log.Warn("serving stale snapshot", "source", stale.Source, "as_of", stale.AsOf, "err", liveErr)
		stale.Cache = CacheStale
		return stale, nil
	}

	b, err := json.Marshal(live)
	if err == nil {
		if err := c.kv.Set(ctx, fresh, b, c.TTL(now)).Err(); err != nil {
			c.log.Warn("snapshot cache write", "key", fresh, "err", err)
		}
		if err := c.kv.Set(ctx, last, b, staleTTL).Err(); err != nil {
			c.log.Warn("snapshot cache write", "key", last, "err", err)
		}
	}
	return live, nil
}

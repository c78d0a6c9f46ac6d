package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-calendar-engine/internal/appointment"
	"github.com/hackgods/clinic-calendar-engine/internal/occupancy"
)

// SnapshotCache keeps the latest occupancy snapshot per site selector.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{client: client, ttl: ttl}
}

func snapshotKey(site appointment.Site) string {
	return "occupancy:snapshot:" + string(site)
}

// Get returns (nil, nil) on a cache miss.
func (c *SnapshotCache) Get(ctx context.Context, site appointment.Site) (*occupancy.Snapshot, error) {
	raw, err := c.client.Get(ctx, snapshotKey(site)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	var snap occupancy.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

func (c *SnapshotCache) Put(ctx context.Context, snap occupancy.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := c.client.Set(ctx, snapshotKey(snap.Site), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

// Invalidate drops the combined snapshot and every per-site snapshot.
func (c *SnapshotCache) Invalidate(ctx context.Context) error {
	keys := []string{snapshotKey(appointment.SiteAll)}
	for _, site := range appointment.Sites() {
		keys = append(keys, snapshotKey(site))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate snapshots: %w", err)
	}
	return nil
}

// Package persistence stores generator descriptors in Redis.
package persistence

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"idgen_server/core/domain"
	"idgen_server/core/port/out"
	"idgen_server/pkg/cache"
)

var _ out.GeneratorDirectory = (*GeneratorDirectory)(nil)

const directoryKeyPrefix = "idgen:generator:"

func directoryKey(nodeID int64) string {
	return directoryKeyPrefix + strconv.FormatInt(nodeID, 10)
}

// GeneratorDirectory keeps one JSON descriptor per node id. Entries expire
// after ttl unless Refresh rewrites them, so a crashed instance drops out of
// the listing on its own.
type GeneratorDirectory struct {
	cache *cache.RedisCache
	ttl   time.Duration
}

func NewGeneratorDirectory(c *cache.RedisCache, ttl time.Duration) *GeneratorDirectory {
	return &GeneratorDirectory{cache: c, ttl: ttl}
}

func (d *GeneratorDirectory) Save(ctx context.Context, info domain.GeneratorInfo) error {
	return d.cache.SetJSON(ctx, directoryKey(info.NodeID), info, d.ttl)
}

func (d *GeneratorDirectory) Delete(ctx context.Context, nodeID int64) error {
	return d.cache.Delete(ctx, directoryKey(nodeID))
}

// List returns every stored descriptor. Keys that expire between the scan
// and the read are skipped.
func (d *GeneratorDirectory) List(ctx context.Context) ([]domain.GeneratorInfo, error) {
	keys, err := d.keys(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]domain.GeneratorInfo, 0, len(keys))
	for _, key := range keys {
		var info domain.GeneratorInfo
		ok, err := d.cache.GetJSON(ctx, key, &info)
		if err != nil {
			return nil, err
		}
		if ok {
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// Refresh rewrites the descriptors of the given generators.
func (d *GeneratorDirectory) Refresh(ctx context.Context, infos []domain.GeneratorInfo) {
	for _, info := range infos {
		info := info
		d.cache.TryExecute(ctx, "directory.refresh", func(ctx context.Context, _ redis.UniversalClient) error {
			return d.Save(ctx, info)
		})
	}
}

// Forget removes the descriptors owned by instance. It is called on
// shutdown and never fails.
func (d *GeneratorDirectory) Forget(ctx context.Context, instance string) {
	infos, err := d.List(ctx)
	if err != nil {
		d.cache.TryExecute(ctx, "directory.forget", func(context.Context, redis.UniversalClient) error { return err })
		return
	}
	for _, info := range infos {
		if info.Instance != instance {
			continue
		}
		nodeID := info.NodeID
		d.cache.TryExecute(ctx, "directory.forget", func(ctx context.Context, client redis.UniversalClient) error {
			return client.Del(ctx, directoryKey(nodeID)).Err()
		})
	}
}

func (d *GeneratorDirectory) keys(ctx context.Context) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := d.cache.Client().Scan(ctx, cursor, directoryKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range batch {
			if _, err := strconv.ParseInt(strings.TrimPrefix(key, directoryKeyPrefix), 10, 64); err == nil {
				keys = append(keys, key)
			}
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

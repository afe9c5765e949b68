package persistence

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idgen_server/core/domain"
	"idgen_server/pkg/cache"
)

func newTestDirectory(t *testing.T, ttl time.Duration) (*GeneratorDirectory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewGeneratorDirectory(cache.NewRedisCache(client), ttl), mr
}

func TestGeneratorDirectory_SaveListDelete(t *testing.T) {
	dir, mr := newTestDirectory(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, dir.Save(ctx, domain.GeneratorInfo{NodeID: 2, Instance: "a", Layout: "41/10/12"}))
	require.NoError(t, dir.Save(ctx, domain.GeneratorInfo{NodeID: 7, Instance: "b"}))
	// Unrelated keys under the prefix are ignored.
	require.NoError(t, mr.Set("idgen:generator:bogus", "{}"))

	infos, err := dir.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	sort.Slice(infos, func(i, j int) bool { return infos[i].NodeID < infos[j].NodeID })
	assert.Equal(t, "41/10/12", infos[0].Layout)
	assert.Equal(t, "b", infos[1].Instance)

	assert.True(t, mr.TTL("idgen:generator:2") > 0)

	require.NoError(t, dir.Delete(ctx, 2))
	infos, err = dir.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, int64(7), infos[0].NodeID)
}

func TestGeneratorDirectory_Expiry(t *testing.T) {
	dir, mr := newTestDirectory(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, dir.Save(ctx, domain.GeneratorInfo{NodeID: 1}))
	mr.FastForward(2 * time.Minute)

	infos, err := dir.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)

	dir.Refresh(ctx, []domain.GeneratorInfo{{NodeID: 1}})
	infos, err = dir.List(ctx)
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

func TestGeneratorDirectory_Forget(t *testing.T) {
	dir, _ := newTestDirectory(t, 0)
	ctx := context.Background()

	require.NoError(t, dir.Save(ctx, domain.GeneratorInfo{NodeID: 1, Instance: "mine"}))
	require.NoError(t, dir.Save(ctx, domain.GeneratorInfo{NodeID: 2, Instance: "mine"}))
	require.NoError(t, dir.Save(ctx, domain.GeneratorInfo{NodeID: 3, Instance: "theirs"}))

	dir.Forget(ctx, "mine")

	infos, err := dir.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "theirs", infos[0].Instance)
}

func TestGeneratorDirectory_RedisDown(t *testing.T) {
	dir, mr := newTestDirectory(t, time.Minute)
	mr.Close()

	_, err := dir.List(context.Background())
	assert.Error(t, err)
	assert.NotPanics(t, func() { dir.Forget(context.Background(), "mine") })
}

package cache

import (
	"context"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeyNormalizesQueryOrder(t *testing.T) {
	first := NewKey("get", "/api/wiki/entries/", url.Values{"page": {"2"}, "limit": {"10"}})
	second := NewKey("GET", "api//wiki/entries", url.Values{"limit": {"10"}, "page": {"2"}})

	assert.Equal(t, first, second)
	assert.Equal(t, "GET /api/wiki/entries?limit=10&page=2", first.String())
	assert.Equal(t, "GET /api/wiki/resolve", NewKey("GET", "/api/wiki/resolve", nil).String())
}

func TestPrefixMatchesBySegment(t *testing.T) {
	prefix := NewPrefix("GET", "/api/wiki")

	assert.True(t, prefix.Matches(NewKey("GET", "/api/wiki", nil)))
	assert.True(t, prefix.Matches(NewKey("GET", "/api/wiki/entries", url.Values{"page": {"1"}})))
	assert.False(t, prefix.Matches(NewKey("GET", "/api/wikis", nil)))
	assert.False(t, prefix.Matches(NewKey("GET", "/api", nil)))
	assert.False(t, prefix.Matches(NewKey("HEAD", "/api/wiki/entries", nil)))
	assert.True(t, NewPrefix("GET", "/").Matches(NewKey("GET", "/anything/at/all", nil)))
}

func TestMemoryGetSetInvalidate(t *testing.T) {
	ctx := context.Background()
	cache := NewMemory(time.Minute)

	entries := NewKey("GET", "/api/wiki/entries", nil)
	resolve := NewKey("GET", "/api/wiki/resolve", url.Values{"term": {"fpga"}})
	other := NewKey("GET", "/api/wikis", nil)

	for _, key := range []Key{entries, resolve, other} {
		require.NoError(t, cache.Set(ctx, key, Item{Status: 200, Body: []byte(key.String())}))
	}

	item, ok, err := cache.Get(ctx, resolve)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(resolve.String()), item.Body)

	removed, err := cache.Invalidate(ctx, WikiReads)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, ok, err = cache.Get(ctx, entries)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = cache.Get(ctx, other)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	cache := NewMemory(time.Minute)

	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return current }

	first := NewKey("GET", "/api/wiki/a", nil)
	second := NewKey("GET", "/api/wiki/b", nil)
	require.NoError(t, cache.Set(ctx, first, Item{Status: 200}))
	require.NoError(t, cache.Set(ctx, second, Item{Status: 200}))

	current = current.Add(2 * time.Minute)

	_, ok, err := cache.Get(ctx, first)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Len())

	assert.Equal(t, 1, cache.Prune())
	assert.Equal(t, 0, cache.Len())
}

func TestNopNeverHits(t *testing.T) {
	ctx := context.Background()
	key := NewKey("GET", "/api/wiki", nil)

	require.NoError(t, Nop{}.Set(ctx, key, Item{Status: 200}))
	_, ok, err := Nop{}.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisInvalidate(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx := context.Background()
	cache, err := NewRedis(ctx, RedisOptions{Addr: addr, TTL: time.Minute})
	require.NoError(t, err)
	defer cache.Close()

	entries := NewKey("GET", "/api/wiki/entries", url.Values{"page": {"1"}})
	other := NewKey("GET", "/api/wikis", nil)
	require.NoError(t, cache.Set(ctx, entries, Item{Status: 200, ContentType: "application/json", Body: []byte(`{"items":[]}`)}))
	require.NoError(t, cache.Set(ctx, other, Item{Status: 200}))

	item, ok, err := cache.Get(ctx, entries)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "application/json", item.ContentType)

	removed, err := cache.Invalidate(ctx, WikiReads)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok, err = cache.Get(ctx, entries)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = cache.Get(ctx, other)
	require.NoError(t, err)
	assert.True(t, ok)

	for _, prefix := range []Prefix{NewPrefix("GET", "/"), NewPrefix("GET", "/api"), NewPrefix("GET", "/api/wiki/entries")} {
		listed, err := cache.client.SMembers(ctx, indexKey(prefix)).Result()
		require.NoError(t, err)
		assert.NotContains(t, listed, itemKey(entries), "index %s", prefix)
	}

	ttl, err := cache.client.TTL(ctx, indexKey(NewPrefix("GET", "/api"))).Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0, "index ttl %s", ttl)

	_, err = cache.Invalidate(ctx, NewPrefix("GET", "/"))
	require.NoError(t, err)

	size, err := cache.client.SCard(ctx, indexKey(NewPrefix("GET", "/api"))).Result()
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestKeyOfItem(t *testing.T) {
	key := NewKey("GET", "/api/wiki/entries", url.Values{"page": {"2"}, "limit": {"5"}})

	parsed, ok := keyOfItem(itemKey(key))
	require.True(t, ok)
	assert.Equal(t, key, parsed)
	assert.Equal(t, []Prefix{
		{Method: "GET", Path: "/"},
		{Method: "GET", Path: "/api"},
		{Method: "GET", Path: "/api/wiki"},
		{Method: "GET", Path: "/api/wiki/entries"},
	}, prefixesOf(parsed))

	_, ok = keyOfItem("unrelated")
	assert.False(t, ok)
}

func TestNewRedisRequiresAddress(t *testing.T) {
	_, err := NewRedis(context.Background(), RedisOptions{})
	assert.Error(t, err)
}

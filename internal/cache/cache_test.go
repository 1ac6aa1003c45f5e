package cache

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	a := Key("items", 0, "q=long", "page=1")
	assert.Equal(t, a, Key("items", 0, "q=long", "page=1"))
	assert.NotEqual(t, a, Key("items", 1, "q=long", "page=1"))
	assert.NotEqual(t, a, Key("items", 0, "q=long", "page=2"))
	assert.NotEqual(t, Key("items", 0, "ab", "c"), Key("items", 0, "a", "bc"))
	assert.Regexp(t, `^items:v0:[0-9a-f]{24}$`, a)
}

func TestNop(t *testing.T) {
	ctx := context.Background()
	c := Nop()

	require.NoError(t, c.Set(ctx, "k", []byte("v")))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Invalidate(ctx, "items"))
}

// exerciseCache runs the behaviour every Cache implementation shares.
func exerciseCache(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()

	v, err := c.Version(ctx, "items")
	require.NoError(t, err)

	key := Key("items", v, "q=long")
	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, key, []byte(`{"data":[]}`)))
	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"data":[]}`, string(got))

	require.NoError(t, c.Invalidate(ctx, "items"))
	next, err := c.Version(ctx, "items")
	require.NoError(t, err)
	assert.Equal(t, v+1, next)

	_, ok, err = c.Get(ctx, Key("items", next, "q=long"))
	require.NoError(t, err)
	assert.False(t, ok, "a new version misses")

	races, err := c.Version(ctx, "races")
	require.NoError(t, err)
	assert.Zero(t, races, "versions are per entity")
}

func TestMemory(t *testing.T) {
	exerciseCache(t, NewMemory(10, 0))
}

func TestMemory_TTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(10, 20*time.Millisecond)

	require.NoError(t, c.Set(ctx, "items:v0:x", []byte("1")))
	_, ok, _ := c.Get(ctx, "items:v0:x")
	assert.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok, _ := c.Get(ctx, "items:v0:x")
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
}

func TestMemory_SizeIsBounded(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(100, time.Minute)

	for i := 0; i < 5000; i++ {
		require.NoError(t, c.Set(ctx, Key("items", 0, strconv.Itoa(i)), []byte("page")))
	}
	assert.Equal(t, 100, c.Len())

	_, ok, _ := c.Get(ctx, Key("items", 0, "0"))
	assert.False(t, ok, "the oldest entries are evicted")
	_, ok, _ = c.Get(ctx, Key("items", 0, "4999"))
	assert.True(t, ok)

	def := NewMemory(0, 0)
	for i := 0; i < DefaultMemorySize+10; i++ {
		require.NoError(t, def.Set(ctx, Key("races", 0, strconv.Itoa(i)), []byte("page")))
	}
	assert.Equal(t, DefaultMemorySize, def.Len())
}

func TestMemory_SetCopiesValue(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(10, 0)

	value := []byte("abc")
	require.NoError(t, c.Set(ctx, "items:v0:x", value))
	value[0] = 'z'

	got, ok, _ := c.Get(ctx, "items:v0:x")
	require.True(t, ok)
	assert.Equal(t, "abc", string(got))
}

func TestMemory_InvalidateDropsEntries(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(10, 0)

	require.NoError(t, c.Set(ctx, Key("items", 0, "a"), []byte("1")))
	require.NoError(t, c.Set(ctx, Key("races", 0, "a"), []byte("2")))
	require.NoError(t, c.Invalidate(ctx, "items"))

	assert.Equal(t, 1, c.Len())
	_, ok, _ := c.Get(ctx, Key("races", 0, "a"))
	assert.True(t, ok)
}

// TestRedis needs a reachable server, e.g. COMPENDIUM_TEST_REDIS_ADDR=localhost:6379.
func TestRedis(t *testing.T) {
	addr := os.Getenv("COMPENDIUM_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("COMPENDIUM_TEST_REDIS_ADDR not set, skipping redis test")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	exerciseCache(t, NewRedis(client, "compendium-test-"+uuid.NewString()+":", time.Minute))
}

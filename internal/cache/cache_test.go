package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisStore(rdb, zap.NewNop(), "test:")
}

func TestRedisStoreMissIsNilEntry(t *testing.T) {
	store := setupTestRedisStore(t)
	entry, err := store.Read(context.Background(), EntryKeys{Subject: "redirect", Key: "https://t.co/x"})
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestRedisStoreWriteReadRoundTrip(t *testing.T) {
	store := setupTestRedisStore(t)
	value := "https://e.org/p"
	err := store.Write(context.Background(), NewCacheEntry("redirect", "https://t.co/x", &value, 5*time.Millisecond))
	require.NoError(t, err)

	entry, err := store.Read(context.Background(), EntryKeys{Subject: "redirect", Key: "https://t.co/x"})
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.NotNil(t, entry.Value)
	assert.Equal(t, value, *entry.Value)
	assert.Equal(t, 5*time.Millisecond, entry.Duration)
}

func TestRedisStoreNegativeCacheHasNilValue(t *testing.T) {
	store := setupTestRedisStore(t)
	err := store.Write(context.Background(), NewCacheEntry("lookup", "missing", nil, time.Second))
	require.NoError(t, err)

	entry, err := store.Read(context.Background(), EntryKeys{Subject: "lookup", Key: "missing"})
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Nil(t, entry.Value)
}

func TestRedisStoreNoDuplicateRows(t *testing.T) {
	store := setupTestRedisStore(t)
	v1, v2 := "a", "b"
	require.NoError(t, store.Write(context.Background(), NewCacheEntry("s", "k", &v1, 0)))
	require.NoError(t, store.Write(context.Background(), NewCacheEntry("s", "k", &v2, 0)))

	entry, err := store.Read(context.Background(), EntryKeys{Subject: "s", Key: "k"})
	require.NoError(t, err)
	assert.Equal(t, "b", *entry.Value)
}

func TestMemStoreRoundTrip(t *testing.T) {
	store := NewMemStore()
	v := "value"
	require.NoError(t, store.Write(context.Background(), NewCacheEntry("s", "k", &v, time.Minute)))

	entry, err := store.Read(context.Background(), EntryKeys{Subject: "s", Key: "k"})
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "value", *entry.Value)
}

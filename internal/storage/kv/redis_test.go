package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/aicheck/internal/config"
	"github.com/magabrotheeeer/aicheck/internal/lib/apperr"
)

type testStruct struct {
	Name string
	Age  int
}

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store, err := InitServer(context.Background(), config.RedisConnection{AddressRedis: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestSetAndGet(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "key", "value"))

	val, ok, err := store.Get(ctx, "key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "value", val)
}

func TestGetNotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	val, ok, err := store.Get(context.Background(), "no_such_key")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, val)
}

func TestRemove(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "key", "value"))
	require.NoError(t, store.Remove(ctx, "key"))
	require.NoError(t, store.Remove(ctx, "key"))

	exists, err := store.Exists(ctx, "key")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSetTTLExpires(t *testing.T) {
	store, mr := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetTTL(ctx, "revoked", "1", time.Minute))
	exists, err := store.Exists(ctx, "revoked")
	require.NoError(t, err)
	assert.True(t, exists)

	mr.FastForward(2 * time.Minute)

	exists, err = store.Exists(ctx, "revoked")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestJSONRoundTrip(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	expected := testStruct{Name: "Alice", Age: 30}
	require.NoError(t, store.SetJSON(ctx, "user:1", expected, time.Minute))

	var actual testStruct
	found, err := store.GetJSON(ctx, "user:1", &actual)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, expected, actual)
}

func TestGetJSONInvalid(t *testing.T) {
	store, mr := setupTestStore(t)
	require.NoError(t, mr.Set("bad", "not-json"))

	var out testStruct
	found, err := store.GetJSON(context.Background(), "bad", &out)
	assert.False(t, found)
	assert.ErrorIs(t, err, apperr.ErrStorage)
}

func TestStorageFailureIsWrapped(t *testing.T) {
	store, mr := setupTestStore(t)
	mr.Close()

	_, _, err := store.Get(context.Background(), "key")
	assert.ErrorIs(t, err, apperr.ErrStorage)

	err = store.Set(context.Background(), "key", "v")
	assert.ErrorIs(t, err, apperr.ErrStorage)
}

func TestInitServerInvalidAddr(t *testing.T) {
	store, err := InitServer(context.Background(), config.RedisConnection{
		AddressRedis: "127.0.0.1:1",
		DialTimeout:  100 * time.Millisecond,
	})
	assert.Nil(t, store)
	assert.ErrorIs(t, err, apperr.ErrStorage)
}

func TestPing(t *testing.T) {
	store, mr := setupTestStore(t)
	require.NoError(t, store.Ping(context.Background()))

	mr.Close()
	assert.ErrorIs(t, store.Ping(context.Background()), apperr.ErrStorage)
}

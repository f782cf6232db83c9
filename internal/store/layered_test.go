package store

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyKV 包装 MemoryKV，可按需让所有操作失败
type flakyKV struct {
	inner *MemoryKV
	fail  bool
}

func (f *flakyKV) Get(ctx context.Context, key string) (string, bool, error) {
	if f.fail {
		return "", false, errors.New("cache down")
	}
	return f.inner.Get(ctx, key)
}

func (f *flakyKV) Set(ctx context.Context, key, value string) error {
	if f.fail {
		return errors.New("cache down")
	}
	return f.inner.Set(ctx, key, value)
}

func (f *flakyKV) Remove(ctx context.Context, key string) error {
	if f.fail {
		return errors.New("cache down")
	}
	return f.inner.Remove(ctx, key)
}

func (f *flakyKV) KeysWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	if f.fail {
		return nil, errors.New("cache down")
	}
	return f.inner.KeysWithPrefix(ctx, prefix)
}

func TestMemoryKVRoundTrip(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	_, ok, err := kv.Get(ctx, "streak:l1:topic-a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "streak:l1:topic-a", `{"streak":2}`))
	v, ok, err := kv.Get(ctx, "streak:l1:topic-a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"streak":2}`, v)

	require.NoError(t, kv.Remove(ctx, "streak:l1:topic-a"))
	_, ok, _ = kv.Get(ctx, "streak:l1:topic-a")
	assert.False(t, ok)
}

func TestMemoryKVKeysWithPrefix(t *testing.T) {
	kv := NewMemoryKV()
	ctx := context.Background()

	kv.Set(ctx, "gate:l1:path-1:sec-1", "{}")
	kv.Set(ctx, "gate:l1:path-1:sec-2", "{}")
	kv.Set(ctx, "gate:l2:path-1:sec-1", "{}")

	keys, err := kv.KeysWithPrefix(ctx, "gate:l1:path-1:")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"gate:l1:path-1:sec-1", "gate:l1:path-1:sec-2"}, keys)
}

func TestLayeredKVBackfillsCacheOnMiss(t *testing.T) {
	cache := NewMemoryKV()
	durable := NewMemoryKV()
	layered := NewLayeredKV(cache, durable)
	ctx := context.Background()

	durable.Set(ctx, "k", "v")

	v, ok, err := layered.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	cached, ok, _ := cache.Get(ctx, "k")
	assert.True(t, ok, "read-through miss backfills the cache layer")
	assert.Equal(t, "v", cached)
}

func TestLayeredKVSurvivesCacheFailure(t *testing.T) {
	cache := &flakyKV{inner: NewMemoryKV(), fail: true}
	durable := NewMemoryKV()
	layered := NewLayeredKV(cache, durable)
	ctx := context.Background()

	require.NoError(t, layered.Set(ctx, "k", "v"))

	v, ok, err := layered.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestLayeredKVDurableFailurePropagates(t *testing.T) {
	cache := NewMemoryKV()
	durable := &flakyKV{inner: NewMemoryKV(), fail: true}
	layered := NewLayeredKV(cache, durable)

	err := layered.Set(context.Background(), "k", "v")
	assert.Error(t, err, "the durable layer is authoritative")
}

func TestLayeredKVRemoveClearsBothLayers(t *testing.T) {
	cache := NewMemoryKV()
	durable := NewMemoryKV()
	layered := NewLayeredKV(cache, durable)
	ctx := context.Background()

	layered.Set(ctx, "k", "v")
	require.NoError(t, layered.Remove(ctx, "k"))

	_, ok, _ := durable.Get(ctx, "k")
	assert.False(t, ok)
	_, ok, _ = cache.Get(ctx, "k")
	assert.False(t, ok)
}

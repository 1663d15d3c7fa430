package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	re "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memClient struct {
	data map[string]string
	ttl  map[string]time.Duration
	err  error
}

func newMemClient() *memClient {
	return &memClient{data: map[string]string{}, ttl: map[string]time.Duration{}}
}

func (m *memClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *re.StatusCmd {
	if m.err != nil {
		return re.NewStatusResult("", m.err)
	}
	m.data[key] = string(value.([]byte))
	m.ttl[key] = expiration
	return re.NewStatusResult("OK", nil)
}

func (m *memClient) Get(ctx context.Context, key string) *re.StringCmd {
	if m.err != nil {
		return re.NewStringResult("", m.err)
	}
	v, ok := m.data[key]
	if !ok {
		return re.NewStringResult("", re.Nil)
	}
	return re.NewStringResult(v, nil)
}

func (m *memClient) Del(ctx context.Context, keys ...string) *re.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			n++
		}
	}
	return re.NewIntResult(n, nil)
}

type snapshot struct {
	ID    string `json:"id"`
	Stage string `json:"stage"`
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := newMemClient()
	store := New(mem)

	require.NoError(t, store.Set(ctx, "session:1", snapshot{ID: "1", Stage: "questioning"}, time.Hour))
	assert.Equal(t, time.Hour, mem.ttl["session:1"])

	var got snapshot
	ok, err := store.Get(ctx, "session:1", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "questioning", got.Stage)

	ok, err = store.Get(ctx, "session:2", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err := store.Delete(ctx, "session:1")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestStoreErrors(t *testing.T) {
	ctx := context.Background()
	mem := newMemClient()
	mem.data["bad"] = "{not json"
	store := New(mem)

	var got snapshot
	_, err := store.Get(ctx, "bad", &got)
	assert.Error(t, err)

	mem.err = errors.New("connection reset")
	assert.Error(t, store.Set(ctx, "k", snapshot{}, 0))
	_, err = store.Get(ctx, "k", &got)
	assert.Error(t, err)
}

func TestDummy(t *testing.T) {
	ctx := context.Background()
	store := New(nil)

	assert.NoError(t, store.Set(ctx, "k", 1, 0))
	var v int
	ok, err := store.Get(ctx, "k", &v)
	assert.NoError(t, err)
	assert.False(t, ok)
}

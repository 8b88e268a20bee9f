package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type body struct {
	Balance string `json:"balance"`
}

func setupCache(t *testing.T) *redis.Client {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return rdb
}

func TestResults_PutGet(t *testing.T) {
	c := &Results{Rdb: setupCache(t), TTL: time.Hour}
	ctx := context.Background()

	var out body
	found, err := c.Get(ctx, "stripe:pi_1", &out)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Put(ctx, "stripe:pi_1", body{Balance: "10"}))
	found, err = c.Get(ctx, "stripe:pi_1", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "10", out.Balance)
}

func TestSnapshots_OlderVersionDoesNotOverwrite(t *testing.T) {
	c := &Snapshots{Rdb: setupCache(t), TTL: time.Hour}
	ctx := context.Background()

	ok, err := c.Put(ctx, "inv", 2, body{Balance: "200"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Put(ctx, "inv", 1, body{Balance: "100"})
	require.NoError(t, err)
	assert.False(t, ok)

	var out body
	found, err := c.Get(ctx, "inv", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "200", out.Balance)

	ok, err = c.Put(ctx, "inv", 3, body{Balance: "300"})
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = c.Get(ctx, "inv", &out)
	require.NoError(t, err)
	assert.Equal(t, "300", out.Balance)

	require.NoError(t, c.Invalidate(ctx, "inv"))
	found, err = c.Get(ctx, "inv", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNilClientIsNoop(t *testing.T) {
	var r *Results
	var s *Snapshots
	ctx := context.Background()

	require.NoError(t, r.Put(ctx, "k", body{}))
	found, err := r.Get(ctx, "k", &body{})
	require.NoError(t, err)
	assert.False(t, found)

	ok, err := s.Put(ctx, "k", 1, body{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConnect(t *testing.T) {
	rdb, err := Connect("")
	require.NoError(t, err)
	assert.Nil(t, rdb)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb, err = Connect("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())

	_, err = Connect("http://not-redis")
	assert.Error(t, err)
}

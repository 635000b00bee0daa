package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go_sitegen/internal/config"
)

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := OpenRedis(context.Background(), config.RedisConfig{Addr: mr.Addr(), DB: 2})
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })

	lk, err := NewLocker(rdb, "sitegen:lock:").Acquire(context.Background(), "7", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.DB(2).Exists("sitegen:lock:7"))
	require.NoError(t, lk.Release(context.Background()))
}

func TestOpenRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	rdb, err := OpenRedis(context.Background(), config.RedisConfig{Addr: addr})
	assert.Error(t, err)
	assert.Nil(t, rdb)
}

func TestOpenRedis_WrongPassword(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("s3cret")

	_, err := OpenRedis(context.Background(), config.RedisConfig{Addr: mr.Addr(), Password: "nope"})
	assert.Error(t, err)

	rdb, err := OpenRedis(context.Background(), config.RedisConfig{Addr: mr.Addr(), Password: "s3cret"})
	require.NoError(t, err)
	rdb.Close()
}

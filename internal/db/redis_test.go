package db_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reposcout/search-service/internal/db"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := db.NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer rdb.Close()

	assert.GreaterOrEqual(t, rdb.Options().ReadTimeout.Seconds(), 10.0)
	assert.NoError(t, rdb.Set(context.Background(), "k", "v", 0).Err())
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := db.NewRedisClient(context.Background(), "not-a-url://x")
	assert.Error(t, err)
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := db.NewRedisClient(context.Background(), "redis://"+addr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping")
}

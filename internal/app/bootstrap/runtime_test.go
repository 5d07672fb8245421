package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/barber-booking/internal/config"
	"github.com/wolfman30/barber-booking/pkg/logging"
)

func TestBuildRedisClient(t *testing.T) {
	ctx := context.Background()
	logger := logging.New("error")

	assert.Nil(t, BuildRedisClient(ctx, nil, logger, true))
	assert.Nil(t, BuildRedisClient(ctx, &appconfig.Config{}, logger, true))

	mr := miniredis.RunT(t)
	client := BuildRedisClient(ctx, &appconfig.Config{RedisAddr: mr.Addr()}, logger, true)
	require.NotNil(t, client)
	defer client.Close()
	require.NoError(t, client.Set(ctx, "k", "v", 0).Err())
	mr.CheckGet(t, "k", "v")
}

func TestBuildRedisClientUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := &appconfig.Config{RedisAddr: addr}
	assert.Nil(t, BuildRedisClient(context.Background(), cfg, logging.New("error"), true))

	unverified := BuildRedisClient(context.Background(), cfg, logging.New("error"), false)
	require.NotNil(t, unverified)
	_ = unverified.Close()
}

func TestBuildPostgresPool(t *testing.T) {
	pool, err := BuildPostgresPool(context.Background(), &appconfig.Config{UseMemoryStore: true})
	require.NoError(t, err)
	assert.Nil(t, pool)

	_, err = BuildPostgresPool(context.Background(), &appconfig.Config{DatabaseURL: "postgres://%zz"})
	assert.ErrorContains(t, err, "parse database url")

	_, err = BuildPostgresPool(context.Background(), nil)
	assert.Error(t, err)
}

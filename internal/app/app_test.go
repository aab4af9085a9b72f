package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/bulkmail/internal/analytics"
	"github.com/ignite/bulkmail/internal/config"
)

func TestOpen_InMemoryFallback(t *testing.T) {
	d, err := Open(context.Background(), &config.Config{})
	require.NoError(t, err)
	defer d.Close()

	assert.Nil(t, d.DB)
	assert.Nil(t, d.Redis)
	assert.IsType(t, &analytics.MemoryCursorStore{}, d.Cursors)
	require.NotNil(t, d.Suppressions)

	ok, err := d.Suppressions.IsSuppressed(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpen_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	d, err := Open(context.Background(), &config.Config{Redis: config.RedisConfig{URL: "redis://" + mr.Addr()}})
	require.NoError(t, err)
	defer d.Close()

	require.NotNil(t, d.Redis)
	assert.IsType(t, &analytics.RedisCursorStore{}, d.Cursors)

	ok, err := d.Locks("analytics:mailgun").Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 10*time.Minute, mr.TTL("bulkmail:lock:analytics:mailgun"))
}

func TestOpen_LockTTLFromConfig(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := &config.Config{
		Redis:     config.RedisConfig{URL: "redis://" + mr.Addr()},
		Analytics: config.AnalyticsConfig{LockTTLMinutes: 3},
	}
	d, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer d.Close()

	ok, err := d.Locks("analytics:ses").Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3*time.Minute, mr.TTL("bulkmail:lock:analytics:ses"))
}

func TestOpen_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	d, err := Open(context.Background(), &config.Config{Redis: config.RedisConfig{URL: "redis://" + addr}})
	require.NoError(t, err)
	defer d.Close()

	assert.Nil(t, d.Redis)
	assert.IsType(t, &analytics.MemoryCursorStore{}, d.Cursors)
}

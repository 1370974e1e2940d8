package worker_registry

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) (*miniredis.Miniredis, *Registry) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, New(rdb, "test")
}

func TestRegistry_PublishAndListActive(t *testing.T) {
	_, reg := newRegistry(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	hb := Heartbeat{
		ID:            "worker-1",
		Hostname:      "host-a",
		ProcessedJobs: 12,
		FailedJobs:    1,
		Concurrency:   2,
		Leader:        true,
		CurrentJob:    "graph_refresh:42",
		StartedAt:     now.Add(-10 * time.Minute),
		LastHeartbeat: now,
		Version:       "1.0.0",
	}
	require.NoError(t, reg.Publish(ctx, hb, 30*time.Second))

	active, err := reg.ListActive(ctx, 35*time.Second, 100)
	require.NoError(t, err)
	require.Len(t, active, 1)
	hb.Status = "active"
	assert.True(t, hb.StartedAt.Equal(active[0].StartedAt))
	active[0].StartedAt, active[0].LastHeartbeat = hb.StartedAt, hb.LastHeartbeat
	assert.Equal(t, hb, active[0])
}

func TestRegistry_StaleWorkersAreNotActive(t *testing.T) {
	_, reg := newRegistry(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-5 * time.Minute)
	require.NoError(t, reg.Publish(ctx, Heartbeat{ID: "old", LastHeartbeat: old}, time.Minute))
	require.NoError(t, reg.Publish(ctx, Heartbeat{ID: "fresh"}, time.Minute))

	active, err := reg.ListActive(ctx, time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "fresh", active[0].ID)
}

func TestRegistry_NilIsNoop(t *testing.T) {
	var reg *Registry
	assert.NoError(t, reg.Publish(context.Background(), Heartbeat{ID: "x"}, 0))
	active, err := reg.ListActive(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestRegistry_RequiresID(t *testing.T) {
	_, reg := newRegistry(t)
	assert.Error(t, reg.Publish(context.Background(), Heartbeat{}, 0))
}

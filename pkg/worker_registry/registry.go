// Package worker_registry keeps a Redis-backed roster of live graph workers
// so the admin API can show who is processing refresh jobs and which
// instance holds the scheduler lock.
package worker_registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a heartbeat counts as live.
const DefaultTTL = 45 * time.Second

// Heartbeat is one worker instance's self-report.
type Heartbeat struct {
	ID            string    `json:"id"`
	Hostname      string    `json:"hostname"`
	Status        string    `json:"status"`
	CurrentJob    string    `json:"current_job,omitempty"`
	ProcessedJobs int64     `json:"processed_jobs"`
	FailedJobs    int64     `json:"failed_jobs"`
	Concurrency   int       `json:"concurrency"`
	Leader        bool      `json:"leader"`
	StartedAt     time.Time `json:"started_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	Version       string    `json:"version"`
}

// Registry stores heartbeats as a score-by-time ZSET of IDs plus one JSON
// document per worker.
type Registry struct {
	redisClient *redis.Client
	namespace   string
}

func New(redisClient *redis.Client, namespace string) *Registry {
	return &Registry{redisClient: redisClient, namespace: namespace}
}

func (r *Registry) heartbeatsKey() string {
	return fmt.Sprintf("worker_registry:%s:heartbeats", r.namespace)
}

func (r *Registry) workerKey(workerID string) string {
	return fmt.Sprintf("worker_registry:%s:worker:%s", r.namespace, workerID)
}

// Publish records hb. A nil registry is a no-op.
func (r *Registry) Publish(ctx context.Context, hb Heartbeat, ttl time.Duration) error {
	if r == nil || r.redisClient == nil {
		return nil
	}
	if hb.ID == "" {
		return errors.New("worker id is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := time.Now().UTC()
	if hb.StartedAt.IsZero() {
		hb.StartedAt = now
	}
	if hb.LastHeartbeat.IsZero() {
		hb.LastHeartbeat = now
	}
	if hb.Status == "" {
		hb.Status = "active"
	}
	data, err := json.Marshal(hb)
	if err != nil {
		return fmt.Errorf("marshal heartbeat: %w", err)
	}

	pipe := r.redisClient.Pipeline()
	pipe.ZAdd(ctx, r.heartbeatsKey(), redis.Z{Score: float64(hb.LastHeartbeat.Unix()), Member: hb.ID})
	pipe.Set(ctx, r.workerKey(hb.ID), data, ttl*3)
	pipe.ZRemRangeByScore(ctx, r.heartbeatsKey(), "-inf", fmt.Sprintf("%d", now.Add(-ttl*10).Unix()))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish heartbeat: %w", err)
	}
	return nil
}

// ListActive returns workers seen within the window, newest first.
func (r *Registry) ListActive(ctx context.Context, within time.Duration, limit int64) ([]Heartbeat, error) {
	if r == nil || r.redisClient == nil {
		return []Heartbeat{}, nil
	}
	if within <= 0 {
		within = DefaultTTL
	}
	if limit <= 0 {
		limit = 100
	}

	now := time.Now().UTC()
	ids, err := r.redisClient.ZRevRangeByScore(ctx, r.heartbeatsKey(), &redis.ZRangeBy{
		Max:   "+inf",
		Min:   fmt.Sprintf("%d", now.Add(-within).Unix()),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list heartbeats: %w", err)
	}

	out := make([]Heartbeat, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.workerKey(id)
	}
	docs, err := r.redisClient.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load heartbeats: %w", err)
	}
	for i, doc := range docs {
		s, ok := doc.(string)
		if !ok {
			continue
		}
		var hb Heartbeat
		if err := json.Unmarshal([]byte(s), &hb); err != nil {
			return nil, fmt.Errorf("decode heartbeat %s: %w", ids[i], err)
		}
		out = append(out, hb)
	}
	return out, nil
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gilby125/tripfinder/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const jobTTL = 24 * time.Hour

// Job types. Each type has its own stream.
const (
	JobRebuildGraph = "graph_rebuild"
	JobRefreshGraph = "graph_refresh"
)

// Job states.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// ErrJobNotFound is returned when a job record has expired or never existed.
var ErrJobNotFound = errors.New("job not found")

// EnqueueMeta carries best-effort attribution for who enqueued a job.
type EnqueueMeta struct {
	Actor     string `json:"actor,omitempty"` // e.g. "http", "scheduler"
	RequestID string `json:"request_id,omitempty"`
	RemoteIP  string `json:"remote_ip,omitempty"`
}

func (m EnqueueMeta) isEmpty() bool {
	return m.Actor == "" && m.RequestID == "" && m.RemoteIP == ""
}

type enqueueMetaKey struct{}

// WithEnqueueMeta attaches enqueue attribution to the provided context.
func WithEnqueueMeta(ctx context.Context, meta EnqueueMeta) context.Context {
	if meta.isEmpty() {
		return ctx
	}
	return context.WithValue(ctx, enqueueMetaKey{}, meta)
}

// EnqueueMetaFromContext returns enqueue attribution stored on the context, if present.
func EnqueueMetaFromContext(ctx context.Context) EnqueueMeta {
	if v := ctx.Value(enqueueMetaKey{}); v != nil {
		if meta, ok := v.(EnqueueMeta); ok {
			return meta
		}
	}
	return EnqueueMeta{}
}

// RebuildPayload asks the worker to rebuild the route graph around a new
// set of base airports.
type RebuildPayload struct {
	BaseAirports []string `json:"base_airports"`
}

// RefreshPayload asks the worker to refresh flights for the current bases.
type RefreshPayload struct{}

// Job represents a route graph maintenance job
type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Status      string          `json:"status"`
	LastError   string          `json:"last_error,omitempty"`
	StreamID    string          `json:"stream_id,omitempty"`
	EnqueueMeta *EnqueueMeta    `json:"enqueue_meta,omitempty"`
}

// Queue defines the interface for a job queue
type Queue interface {
	Enqueue(ctx context.Context, jobType string, payload interface{}) (string, error)
	Dequeue(ctx context.Context, queueName string) (*Job, error)
	Ack(ctx context.Context, queueName, jobID string) error
	// Nack records cause and requeues the job until it runs out of attempts.
	Nack(ctx context.Context, queueName, jobID string, cause error) error
	GetJob(ctx context.Context, jobID string) (*Job, error)
	GetJobStatus(ctx context.Context, jobID string) (string, error)
	GetQueueStats(ctx context.Context, queueName string) (map[string]int64, error)
	CancelJob(ctx context.Context, queueName, jobID string) error
	IsJobCanceled(ctx context.Context, jobID string) (bool, error)
}

// RedisQueue implements the Queue interface using Redis Streams
type RedisQueue struct {
	client          *redis.Client
	cfg             config.RedisConfig
	consumerName    string
	mu              sync.Mutex
	ensuredStreams  map[string]struct{}
	lastAutoClaimID map[string]string
}

// NewRedisQueue creates a new Redis-backed queue
func NewRedisQueue(cfg config.RedisConfig) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "worker"
	}

	return &RedisQueue{
		client:          client,
		cfg:             cfg,
		consumerName:    fmt.Sprintf("%s-%d", hostname, time.Now().UnixNano()),
		ensuredStreams:  make(map[string]struct{}),
		lastAutoClaimID: make(map[string]string),
	}, nil
}

// Enqueue adds a job to the queue. A refresh enqueued while another refresh
// is still pending returns the pending job's ID instead.
func (q *RedisQueue) Enqueue(ctx context.Context, jobType string, payload interface{}) (string, error) {
	if err := q.ensureStream(ctx, jobType); err != nil {
		return "", err
	}
	if jobType == JobRefreshGraph {
		id, err := q.client.SRandMember(ctx, q.pendingKey(jobType)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("failed to check pending refresh: %w", err)
		}
		if id != "" {
			return id, nil
		}
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}

	job := &Job{
		ID:          uuid.NewString(),
		Type:        jobType,
		Payload:     payloadBytes,
		CreatedAt:   time.Now().UTC(),
		MaxAttempts: 3,
		Status:      StatusPending,
	}
	if meta := EnqueueMetaFromContext(ctx); !meta.isEmpty() {
		job.EnqueueMeta = &meta
	}

	if err := q.addToStream(ctx, jobType, job); err != nil {
		return "", err
	}
	if err := q.client.SAdd(ctx, q.pendingKey(jobType), job.ID).Err(); err != nil {
		return "", fmt.Errorf("failed to record pending job: %w", err)
	}
	return job.ID, nil
}

// Dequeue retrieves a job from the queue. It returns nil, nil when no job
// arrived within the block timeout.
func (q *RedisQueue) Dequeue(ctx context.Context, queueName string) (*Job, error) {
	if err := q.ensureStream(ctx, queueName); err != nil {
		return nil, err
	}

	// First attempt to reclaim stale messages
	if job, err := q.claimStale(ctx, queueName); err != nil {
		return nil, err
	} else if job != nil {
		return job, nil
	}

	res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.cfg.QueueGroup,
		Consumer: q.consumerName,
		Streams:  []string{q.streamName(queueName), ">"},
		Count:    1,
		Block:    q.cfg.QueueBlockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) || (err == nil && len(res) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}
	if len(res[0].Messages) == 0 {
		return nil, nil
	}

	return q.prepareMessage(ctx, queueName, res[0].Messages[0])
}

// Ack acknowledges a job as completed
func (q *RedisQueue) Ack(ctx context.Context, queueName, jobID string) error {
	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	job.Status = StatusCompleted
	job.FinishedAt = &now
	if err := q.persistJob(ctx, job); err != nil {
		return err
	}
	q.dropStreamEntry(ctx, queueName, job)

	if err := q.client.SRem(ctx, q.processingKey(queueName), jobID).Err(); err != nil {
		return fmt.Errorf("failed to remove job from processing set: %w", err)
	}
	if err := q.client.SAdd(ctx, q.completedKey(queueName), jobID).Err(); err != nil {
		return fmt.Errorf("failed to add job to completed set: %w", err)
	}
	return nil
}

// Nack marks a job as failed or requeues it
func (q *RedisQueue) Nack(ctx context.Context, queueName, jobID string, cause error) error {
	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if cause != nil {
		job.LastError = cause.Error()
	}
	q.dropStreamEntry(ctx, queueName, job)

	if err := q.client.SRem(ctx, q.processingKey(queueName), jobID).Err(); err != nil {
		return fmt.Errorf("failed to clear processing flag: %w", err)
	}

	if job.Attempts < job.MaxAttempts {
		job.Status = StatusPending
		job.StreamID = ""
		if err := q.addToStream(ctx, queueName, job); err != nil {
			return fmt.Errorf("failed to requeue job: %w", err)
		}
		if err := q.client.SAdd(ctx, q.pendingKey(queueName), jobID).Err(); err != nil {
			return fmt.Errorf("failed to mark job pending: %w", err)
		}
		return nil
	}

	now := time.Now().UTC()
	job.Status = StatusFailed
	job.FinishedAt = &now
	if err := q.persistJob(ctx, job); err != nil {
		return err
	}
	if err := q.client.SAdd(ctx, q.failedKey(queueName), jobID).Err(); err != nil {
		return fmt.Errorf("failed to add job to failed set: %w", err)
	}
	return nil
}

// GetJob fetches persisted job details by job ID.
func (q *RedisQueue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	jobBytes, err := q.client.Get(ctx, q.jobKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job details: %w", err)
	}

	var job Job
	if err := json.Unmarshal(jobBytes, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// GetJobStatus gets the status of a job
func (q *RedisQueue) GetJobStatus(ctx context.Context, jobID string) (string, error) {
	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	return job.Status, nil
}

// GetQueueStats gets statistics for a queue
func (q *RedisQueue) GetQueueStats(ctx context.Context, queueName string) (map[string]int64, error) {
	keys := map[string]string{
		StatusPending:    q.pendingKey(queueName),
		StatusProcessing: q.processingKey(queueName),
		StatusCompleted:  q.completedKey(queueName),
		StatusFailed:     q.failedKey(queueName),
	}

	stats := make(map[string]int64, len(keys))
	for state, key := range keys {
		n, err := q.client.SCard(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to get %s count: %w", state, err)
		}
		stats[state] = n
	}
	return stats, nil
}

// CancelJob requests cancellation for a job. A pending job never starts; a
// running job observes the flag through IsJobCanceled.
func (q *RedisQueue) CancelJob(ctx context.Context, queueName, jobID string) error {
	if jobID == "" {
		return fmt.Errorf("missing job id")
	}

	if err := q.client.Set(ctx, q.cancelKey(jobID), "1", jobTTL).Err(); err != nil {
		return fmt.Errorf("failed to set cancel flag: %w", err)
	}

	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return nil
	}
	if job.Status == StatusPending {
		q.dropStreamEntry(ctx, queueName, job)
		_ = q.client.SRem(ctx, q.pendingKey(queueName), jobID).Err()
	}
	job.Status = StatusCanceled
	return q.persistJob(ctx, job)
}

// IsJobCanceled returns whether a cancellation has been requested for the job.
func (q *RedisQueue) IsJobCanceled(ctx context.Context, jobID string) (bool, error) {
	n, err := q.client.Exists(ctx, q.cancelKey(jobID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read cancel flag: %w", err)
	}
	return n > 0, nil
}

// GetClient returns the underlying Redis client for distributed locking
func (q *RedisQueue) GetClient() *redis.Client {
	return q.client
}

// Close closes the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) addToStream(ctx context.Context, queueName string, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	msgID, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.streamName(queueName),
		Values: map[string]interface{}{"job": raw},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to add job to stream: %w", err)
	}
	job.StreamID = msgID
	return q.persistJob(ctx, job)
}

func (q *RedisQueue) dropStreamEntry(ctx context.Context, queueName string, job *Job) {
	if job.StreamID == "" {
		return
	}
	stream := q.streamName(queueName)
	_ = q.client.XAck(ctx, stream, q.cfg.QueueGroup, job.StreamID).Err()
	_ = q.client.XDel(ctx, stream, job.StreamID).Err()
}

func (q *RedisQueue) ensureStream(ctx context.Context, queueName string) error {
	stream := q.streamName(queueName)

	q.mu.Lock()
	if _, ok := q.ensuredStreams[stream]; ok {
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()

	err := q.client.XGroupCreateMkStream(ctx, stream, q.cfg.QueueGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	q.mu.Lock()
	q.ensuredStreams[stream] = struct{}{}
	q.mu.Unlock()
	return nil
}

func (q *RedisQueue) claimStale(ctx context.Context, queueName string) (*Job, error) {
	stream := q.streamName(queueName)

	q.mu.Lock()
	startID := q.lastAutoClaimID[stream]
	if startID == "" {
		startID = "0-0"
	}
	q.mu.Unlock()

	messages, nextID, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    q.cfg.QueueGroup,
		Consumer: q.consumerName,
		MinIdle:  q.cfg.QueueVisibilityTimeout,
		Start:    startID,
		Count:    1,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to auto-claim messages: %w", err)
	}

	q.mu.Lock()
	q.lastAutoClaimID[stream] = nextID
	q.mu.Unlock()

	if len(messages) == 0 {
		return nil, nil
	}
	return q.prepareMessage(ctx, queueName, messages[0])
}

func (q *RedisQueue) prepareMessage(ctx context.Context, queueName string, msg redis.XMessage) (*Job, error) {
	rawJob, ok := msg.Values["job"]
	if !ok {
		return nil, fmt.Errorf("stream message missing job payload")
	}

	var jobBytes []byte
	switch v := rawJob.(type) {
	case string:
		jobBytes = []byte(v)
	case []byte:
		jobBytes = v
	default:
		return nil, fmt.Errorf("unexpected job payload type %T", v)
	}

	var job Job
	if err := json.Unmarshal(jobBytes, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job payload: %w", err)
	}

	// Attempts live on the stored record; the stream copy may be stale.
	if stored, err := q.GetJob(ctx, job.ID); err == nil {
		job.Attempts = stored.Attempts
		job.LastError = stored.LastError
	}

	job.StreamID = msg.ID
	if job.Type == "" {
		job.Type = queueName
	}
	job.Attempts++
	job.Status = StatusProcessing

	if err := q.persistJob(ctx, &job); err != nil {
		return nil, err
	}
	if err := q.client.SAdd(ctx, q.processingKey(queueName), job.ID).Err(); err != nil {
		return nil, fmt.Errorf("failed to mark job processing: %w", err)
	}
	if err := q.client.SRem(ctx, q.pendingKey(queueName), job.ID).Err(); err != nil {
		return nil, fmt.Errorf("failed to remove job from pending: %w", err)
	}
	return &job, nil
}

func (q *RedisQueue) persistJob(ctx context.Context, job *Job) error {
	jobBytes, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job for storage: %w", err)
	}
	if err := q.client.Set(ctx, q.jobKey(job.ID), jobBytes, jobTTL).Err(); err != nil {
		return fmt.Errorf("failed to store job: %w", err)
	}
	return nil
}

func (q *RedisQueue) streamName(jobType string) string {
	return fmt.Sprintf("%s:%s", q.cfg.QueueStreamPrefix, jobType)
}

func (q *RedisQueue) jobKey(jobID string) string {
	return fmt.Sprintf("%s:job:%s", q.cfg.QueueStreamPrefix, jobID)
}

func (q *RedisQueue) cancelKey(jobID string) string {
	return q.jobKey(jobID) + ":cancel"
}

// stateKey names the set of job IDs of one type in one state.
func (q *RedisQueue) stateKey(queueName, state string) string {
	return fmt.Sprintf("%s:queue:%s:%s", q.cfg.QueueStreamPrefix, queueName, state)
}

func (q *RedisQueue) pendingKey(queueName string) string {
	return q.stateKey(queueName, StatusPending)
}

func (q *RedisQueue) processingKey(queueName string) string {
	return q.stateKey(queueName, StatusProcessing)
}

func (q *RedisQueue) completedKey(queueName string) string {
	return q.stateKey(queueName, StatusCompleted)
}

func (q *RedisQueue) failedKey(queueName string) string {
	return q.stateKey(queueName, StatusFailed)
}

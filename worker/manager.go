package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gilby125/tripfinder/config"
	"github.com/gilby125/tripfinder/pkg/logger"
	"github.com/gilby125/tripfinder/pkg/notify"
	"github.com/gilby125/tripfinder/pkg/worker_registry"
	"github.com/gilby125/tripfinder/queue"
)

// Queues consumed by the worker pool.
var Queues = []string{queue.JobRebuildGraph, queue.JobRefreshGraph}

// GraphRefresher runs route graph maintenance.
type GraphRefresher interface {
	Rebuild(ctx context.Context, bases []string) (notify.RefreshSummary, error)
	RefreshAll(ctx context.Context) (notify.RefreshSummary, error)
}

// Leader is the leader election used to gate the scheduler.
type Leader interface {
	Start()
	Stop()
	IsLeader() bool
}

// HeartbeatPublisher receives worker liveness reports.
type HeartbeatPublisher interface {
	Publish(ctx context.Context, hb worker_registry.Heartbeat, ttl time.Duration) error
}

// Manager manages a pool of workers consuming route graph jobs
type Manager struct {
	queue     queue.Queue
	refresher GraphRefresher
	config    config.WorkerConfig
	scheduler *Scheduler
	leader    Leader
	stopChan  chan struct{}
	workerWg  sync.WaitGroup
	pollDelay time.Duration

	registry   HeartbeatPublisher
	instanceID string
	version    string
	startedAt  time.Time
	processed  atomic.Int64
	failed     atomic.Int64
	currentJob atomic.Value
}

// NewManager creates a new worker manager. scheduler and leader may be nil.
func NewManager(q queue.Queue, refresher GraphRefresher, cfg config.WorkerConfig, scheduler *Scheduler, leader Leader) *Manager {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Hour
	}
	return &Manager{
		queue:     q,
		refresher: refresher,
		config:    cfg,
		scheduler: scheduler,
		leader:    leader,
		stopChan:  make(chan struct{}),
		pollDelay: 100 * time.Millisecond,
	}
}

// Start starts the worker pool. The scheduler is started directly when
// there is no leader election, otherwise by the leader callbacks.
func (m *Manager) Start() {
	logger.Info("Starting worker pool", "workers", m.config.Concurrency)
	m.startedAt = time.Now().UTC()

	for i := 0; i < m.config.Concurrency; i++ {
		m.workerWg.Add(1)
		go m.runWorker(i)
	}
	if m.registry != nil {
		m.workerWg.Add(1)
		go m.heartbeatLoop()
	}

	switch {
	case m.leader != nil:
		m.leader.Start()
	case m.scheduler != nil:
		if err := m.scheduler.Start(); err != nil {
			logger.Error(err, "Failed to start scheduler")
		}
	}
}

// Stop stops the worker pool and scheduler
func (m *Manager) Stop() {
	logger.Info("Stopping worker pool and scheduler")

	if m.leader != nil {
		m.leader.Stop()
	}
	if m.scheduler != nil {
		m.scheduler.Stop()
	}

	close(m.stopChan)

	done := make(chan struct{})
	go func() {
		m.workerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("All workers stopped gracefully")
	case <-time.After(m.config.ShutdownTimeout):
		logger.Warn("Worker shutdown timed out")
	}
}

// OnBecomeLeader starts the scheduler. Pass it to the leader elector.
func (m *Manager) OnBecomeLeader() {
	if m.scheduler == nil {
		return
	}
	if err := m.scheduler.Start(); err != nil {
		logger.Error(err, "Failed to start scheduler after acquiring leadership")
	}
}

// OnLoseLeader stops the scheduler. Pass it to the leader elector.
func (m *Manager) OnLoseLeader() {
	if m.scheduler != nil {
		m.scheduler.Stop()
	}
}

// WithLeader gates the scheduler behind leader election. The elector's
// callbacks should be OnBecomeLeader and OnLoseLeader.
func (m *Manager) WithLeader(leader Leader) *Manager {
	m.leader = leader
	return m
}

// WithRegistry makes the manager publish heartbeats under id. An empty id
// uses the hostname.
func (m *Manager) WithRegistry(reg HeartbeatPublisher, id, version string) *Manager {
	if id == "" {
		id, _ = os.Hostname()
	}
	m.registry = reg
	m.instanceID = id
	m.version = version
	return m
}

// Heartbeat reports the manager's current state.
func (m *Manager) Heartbeat() worker_registry.Heartbeat {
	hostname, _ := os.Hostname()
	current, _ := m.currentJob.Load().(string)
	status := "idle"
	if current != "" {
		status = "busy"
	}
	leader := false
	switch {
	case m.leader != nil:
		leader = m.leader.IsLeader()
	case m.scheduler != nil:
		leader = m.scheduler.Running()
	}
	return worker_registry.Heartbeat{
		ID:            m.instanceID,
		Hostname:      hostname,
		Status:        status,
		CurrentJob:    current,
		ProcessedJobs: m.processed.Load(),
		FailedJobs:    m.failed.Load(),
		Concurrency:   m.config.Concurrency,
		Leader:        leader,
		StartedAt:     m.startedAt,
		LastHeartbeat: time.Now().UTC(),
		Version:       m.version,
	}
}

func (m *Manager) heartbeatLoop() {
	defer m.workerWg.Done()
	ticker := time.NewTicker(worker_registry.DefaultTTL / 3)
	defer ticker.Stop()

	for {
		m.publishHeartbeat()
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
		}
	}
}

func (m *Manager) publishHeartbeat() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.registry.Publish(ctx, m.Heartbeat(), worker_registry.DefaultTTL); err != nil {
		logger.Warn("Failed to publish worker heartbeat", "error", err)
	}
}

// GetScheduler returns the scheduler, which may be nil.
func (m *Manager) GetScheduler() *Scheduler {
	return m.scheduler
}

func (m *Manager) runWorker(id int) {
	defer m.workerWg.Done()
	log := logger.WithField("worker", id)
	log.Info("Worker started")

	for {
		select {
		case <-m.stopChan:
			log.Info("Worker stopping")
			return
		default:
			for _, name := range Queues {
				if err := m.processQueue(name); err != nil {
					log.Error(err, "Error processing queue", "queue", name)
				}
			}
			time.Sleep(m.pollDelay)
		}
	}
}

// processQueue processes at most one job from the named queue.
func (m *Manager) processQueue(queueName string) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.JobTimeout)
	defer cancel()

	job, err := m.queue.Dequeue(ctx, queueName)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil
		}
		return fmt.Errorf("failed to dequeue job: %w", err)
	}
	if job == nil {
		return nil
	}

	log := logger.WithFields(map[string]interface{}{"queue": queueName, "job_id": job.ID, "attempt": job.Attempts})

	if canceled, err := m.queue.IsJobCanceled(ctx, job.ID); err == nil && canceled {
		log.Info("Skipping canceled job")
		return m.queue.Ack(ctx, queueName, job.ID)
	}

	log.Info("Processing job")
	m.currentJob.Store(queueName + ":" + job.ID)
	defer m.currentJob.Store("")
	if err := m.processJob(ctx, queueName, job); err != nil {
		m.failed.Add(1)
		if nackErr := m.queue.Nack(context.WithoutCancel(ctx), queueName, job.ID, err); nackErr != nil {
			log.Error(nackErr, "Error nacking job")
		}
		return fmt.Errorf("failed to process job %s: %w", job.ID, err)
	}

	if err := m.queue.Ack(ctx, queueName, job.ID); err != nil {
		return fmt.Errorf("failed to ack job %s: %w", job.ID, err)
	}
	m.processed.Add(1)
	log.Info("Completed job")
	return nil
}

// processJob processes a job based on its type
func (m *Manager) processJob(ctx context.Context, queueName string, job *queue.Job) error {
	switch queueName {
	case queue.JobRebuildGraph:
		var payload queue.RebuildPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("failed to unmarshal rebuild payload: %w", err)
		}
		_, err := m.refresher.Rebuild(ctx, payload.BaseAirports)
		return err
	case queue.JobRefreshGraph:
		_, err := m.refresher.RefreshAll(ctx)
		return err
	default:
		return fmt.Errorf("unknown job type: %s", queueName)
	}
}

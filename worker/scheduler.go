package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/gilby125/tripfinder/pkg/logger"
	"github.com/gilby125/tripfinder/queue"
	"github.com/robfig/cron/v3"
)

// Cronner is the subset of *cron.Cron the scheduler uses.
type Cronner interface {
	Start()
	Stop() context.Context
	AddFunc(spec string, cmd func()) (cron.EntryID, error)
}

// Scheduler enqueues a route graph refresh on a cron schedule. Only the
// leader instance should run it.
type Scheduler struct {
	queue   queue.Queue
	cron    Cronner
	spec    string
	mutex   sync.Mutex
	added   bool
	running bool
}

// NewScheduler creates a scheduler. A nil cronner uses a default cron instance.
func NewScheduler(q queue.Queue, spec string, cronner Cronner) *Scheduler {
	if cronner == nil {
		cronner = cron.New()
	}
	return &Scheduler{queue: q, cron: cronner, spec: spec}
}

// Start registers the refresh entry (once) and starts the cron loop.
func (s *Scheduler) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return nil
	}
	if !s.added {
		if _, err := s.cron.AddFunc(s.spec, s.EnqueueRefresh); err != nil {
			return fmt.Errorf("failed to add cron job %q: %w", s.spec, err)
		}
		s.added = true
	}
	s.cron.Start()
	s.running = true
	logger.Info("Scheduler started", "cron", s.spec)
	return nil
}

// Stop stops the cron loop and waits for a running entry to finish.
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	logger.Info("Scheduler stopped")
}

// Running reports whether the cron loop is active.
func (s *Scheduler) Running() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.running
}

// EnqueueRefresh enqueues a refresh of the current base airports.
func (s *Scheduler) EnqueueRefresh() {
	ctx := queue.WithEnqueueMeta(context.Background(), queue.EnqueueMeta{Actor: "scheduler"})
	id, err := s.queue.Enqueue(ctx, queue.JobRefreshGraph, queue.RefreshPayload{})
	if err != nil {
		logger.Error(err, "Failed to enqueue scheduled refresh")
		return
	}
	logger.Info("Scheduled refresh enqueued", "job_id", id)
}

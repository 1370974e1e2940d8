package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gilby125/tripfinder/config"
	"github.com/gilby125/tripfinder/pkg/notify"
	"github.com/gilby125/tripfinder/pkg/worker_registry"
	"github.com/gilby125/tripfinder/queue"
	"github.com/gilby125/tripfinder/test/mocks"
	"github.com/gilby125/tripfinder/worker"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func workerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		Concurrency:     1,
		JobTimeout:      time.Second,
		ShutdownTimeout: time.Second,
	}
}

func rebuildJob(t *testing.T, id string, bases ...string) *queue.Job {
	payload, err := json.Marshal(queue.RebuildPayload{BaseAirports: bases})
	require.NoError(t, err)
	return &queue.Job{ID: id, Type: queue.JobRebuildGraph, Payload: payload}
}

func TestManager_ProcessesRebuildJob(t *testing.T) {
	q := new(mocks.MockQueue)
	r := new(mocks.MockGraphRefresher)

	q.On("Dequeue", mock.Anything, queue.JobRebuildGraph).Return(rebuildJob(t, "job-1", "SNN", "DUB"), nil).Once()
	q.On("Dequeue", mock.Anything, mock.Anything).Return(nil, nil)
	q.On("IsJobCanceled", mock.Anything, "job-1").Return(false, nil)
	acked := make(chan struct{})
	q.On("Ack", mock.Anything, queue.JobRebuildGraph, "job-1").Run(func(mock.Arguments) { close(acked) }).Return(nil).Once()
	r.On("Rebuild", mock.Anything, []string{"SNN", "DUB"}).Return(notify.RefreshSummary{Kind: worker.KindRebuild}, nil).Once()

	m := worker.NewManager(q, r, workerConfig(), nil, nil)
	m.Start()
	waitFor(t, acked)
	m.Stop()

	r.AssertExpectations(t)
	q.AssertNotCalled(t, "Nack", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestManager_FailedJobIsNacked(t *testing.T) {
	q := new(mocks.MockQueue)
	r := new(mocks.MockGraphRefresher)
	cause := errors.New("feed unavailable")

	q.On("Dequeue", mock.Anything, queue.JobRefreshGraph).Return(&queue.Job{ID: "job-2", Type: queue.JobRefreshGraph, Payload: []byte("{}")}, nil).Once()
	q.On("Dequeue", mock.Anything, mock.Anything).Return(nil, nil)
	q.On("IsJobCanceled", mock.Anything, "job-2").Return(false, nil)
	nacked := make(chan struct{})
	q.On("Nack", mock.Anything, queue.JobRefreshGraph, "job-2", cause).Run(func(mock.Arguments) { close(nacked) }).Return(nil).Once()
	r.On("RefreshAll", mock.Anything).Return(notify.RefreshSummary{}, cause).Once()

	m := worker.NewManager(q, r, workerConfig(), nil, nil)
	m.Start()
	waitFor(t, nacked)
	m.Stop()

	q.AssertNotCalled(t, "Ack", mock.Anything, mock.Anything, mock.Anything)
}

func TestManager_CanceledJobIsAckedWithoutRunning(t *testing.T) {
	q := new(mocks.MockQueue)
	r := new(mocks.MockGraphRefresher)

	q.On("Dequeue", mock.Anything, queue.JobRebuildGraph).Return(rebuildJob(t, "job-3", "SNN"), nil).Once()
	q.On("Dequeue", mock.Anything, mock.Anything).Return(nil, nil)
	q.On("IsJobCanceled", mock.Anything, "job-3").Return(true, nil)
	acked := make(chan struct{})
	q.On("Ack", mock.Anything, queue.JobRebuildGraph, "job-3").Run(func(mock.Arguments) { close(acked) }).Return(nil).Once()

	m := worker.NewManager(q, r, workerConfig(), nil, nil)
	m.Start()
	waitFor(t, acked)
	m.Stop()

	r.AssertNotCalled(t, "Rebuild", mock.Anything, mock.Anything)
}

func TestManager_LeaderGatesScheduler(t *testing.T) {
	q := new(mocks.MockQueue)
	q.On("Dequeue", mock.Anything, mock.Anything).Return(nil, nil)

	c := new(mocks.MockCronner)
	c.On("AddFunc", "@hourly", mock.Anything).Return(cron.EntryID(1), nil)
	c.On("Start").Return()
	c.On("Stop").Return(stoppedContext())

	leader := new(mocks.MockLeaderElector)
	leader.On("Start").Return().Once()
	leader.On("Stop").Return().Once()

	s := worker.NewScheduler(q, "@hourly", c)
	m := worker.NewManager(q, new(mocks.MockGraphRefresher), workerConfig(), s, leader)
	m.Start()
	assert.False(t, s.Running(), "followers never schedule")

	m.OnBecomeLeader()
	assert.True(t, m.GetScheduler().Running())

	m.OnLoseLeader()
	assert.False(t, s.Running())

	m.Stop()
	leader.AssertExpectations(t)
}

func TestManager_WithoutLeaderStartsScheduler(t *testing.T) {
	q := new(mocks.MockQueue)
	q.On("Dequeue", mock.Anything, mock.Anything).Return(nil, nil)

	c := new(mocks.MockCronner)
	c.On("AddFunc", "@hourly", mock.Anything).Return(cron.EntryID(1), nil)
	c.On("Start").Return()
	c.On("Stop").Return(stoppedContext())

	s := worker.NewScheduler(q, "@hourly", c)
	m := worker.NewManager(q, new(mocks.MockGraphRefresher), workerConfig(), s, nil)
	m.Start()
	assert.True(t, s.Running())
	m.Stop()
	assert.False(t, s.Running())
}

func waitFor(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the worker")
	}
}

type heartbeatSink struct {
	beats chan worker_registry.Heartbeat
}

func (h *heartbeatSink) Publish(_ context.Context, hb worker_registry.Heartbeat, _ time.Duration) error {
	select {
	case h.beats <- hb:
	default:
	}
	return nil
}

func TestManager_PublishesHeartbeat(t *testing.T) {
	q := new(mocks.MockQueue)
	q.On("Dequeue", mock.Anything, mock.Anything).Return(nil, nil)
	leader := new(mocks.MockLeaderElector)
	leader.On("Start").Return()
	leader.On("Stop").Return()
	leader.On("IsLeader").Return(true)

	sink := &heartbeatSink{beats: make(chan worker_registry.Heartbeat, 1)}
	cfg := workerConfig()
	cfg.Concurrency = 2
	m := worker.NewManager(q, new(mocks.MockGraphRefresher), cfg, nil, leader).WithRegistry(sink, "worker-a", "v1")
	m.Start()
	defer m.Stop()

	select {
	case hb := <-sink.beats:
		assert.Equal(t, "worker-a", hb.ID)
		assert.Equal(t, "v1", hb.Version)
		assert.Equal(t, "idle", hb.Status)
		assert.Equal(t, 2, hb.Concurrency)
		assert.True(t, hb.Leader)
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat published")
	}
}

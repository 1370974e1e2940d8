package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gilby125/tripfinder/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// LeaderElector holds a Redis lock so that a single instance schedules
// route graph refreshes. The lock value is the instance ID and expires
// after the TTL unless renewed.
type LeaderElector struct {
	client   *redis.Client
	key      string
	ttl      time.Duration
	interval time.Duration
	id       string

	leader    atomic.Bool
	stop      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	onAcquire func()
	onLose    func()
}

// NewLeaderElector creates an elector. onBecomeLeader and onLoseLeader may
// be nil; they run on the election goroutine.
func NewLeaderElector(
	redisClient *redis.Client,
	lockKey string,
	lockTTL time.Duration,
	renewInterval time.Duration,
	onBecomeLeader func(),
	onLoseLeader func(),
) *LeaderElector {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "tripfinder"
	}
	if renewInterval <= 0 || renewInterval >= lockTTL {
		renewInterval = lockTTL / 3
	}
	return &LeaderElector{
		client:    redisClient,
		key:       lockKey,
		ttl:       lockTTL,
		interval:  renewInterval,
		id:        fmt.Sprintf("%s-%d-%d", hostname, os.Getpid(), time.Now().UnixNano()),
		stop:      make(chan struct{}),
		onAcquire: onBecomeLeader,
		onLose:    onLoseLeader,
	}
}

// holdScript renews the lock when this instance owns it and takes it when
// nobody does. Returns 1 when the caller holds the lock afterwards.
var holdScript = redis.NewScript(`
local owner = redis.call("GET", KEYS[1])
if owner == ARGV[1] then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
	return 1
end
if not owner then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Start runs the election loop until Stop.
func (le *LeaderElector) Start() {
	le.wg.Add(1)
	go le.loop()
	logger.Info("Scheduler leader election started",
		"instance", le.id, "key", le.key, "ttl", le.ttl.String(), "renew", le.interval.String())
}

// Stop ends the loop and releases the lock if this instance holds it.
// Safe to call more than once.
func (le *LeaderElector) Stop() {
	le.stopOnce.Do(func() {
		close(le.stop)
		le.wg.Wait()
		if le.leader.Swap(false) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			le.release(ctx)
		}
		logger.Info("Scheduler leader election stopped", "instance", le.id)
	})
}

// IsLeader reports whether this instance held the lock at the last check.
func (le *LeaderElector) IsLeader() bool {
	return le.leader.Load()
}

// InstanceID is the value this instance writes into the lock.
func (le *LeaderElector) InstanceID() string {
	return le.id
}

func (le *LeaderElector) loop() {
	defer le.wg.Done()
	ticker := time.NewTicker(le.interval)
	defer ticker.Stop()

	for {
		le.step()
		select {
		case <-le.stop:
			return
		case <-ticker.C:
		}
	}
}

// step runs one election round and fires the callbacks on transitions.
// A Redis error counts as losing the lock.
func (le *LeaderElector) step() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	held, err := le.hold(ctx)
	if err != nil {
		logger.Error(err, "Scheduler leader lock check failed", "instance", le.id)
	}
	switch was := le.leader.Swap(held); {
	case held && !was:
		logger.Info("Acquired scheduler leadership", "instance", le.id)
		if le.onAcquire != nil {
			le.onAcquire()
		}
	case !held && was:
		logger.Warn("Lost scheduler leadership", "instance", le.id)
		if le.onLose != nil {
			le.onLose()
		}
	}
}

func (le *LeaderElector) hold(ctx context.Context) (bool, error) {
	n, err := holdScript.Run(ctx, le.client, []string{le.key}, le.id, le.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (le *LeaderElector) release(ctx context.Context) {
	n, err := releaseScript.Run(ctx, le.client, []string{le.key}, le.id).Int()
	switch {
	case err != nil:
		logger.Error(err, "Failed to release scheduler leader lock", "instance", le.id)
	case n == 1:
		logger.Info("Released scheduler leader lock", "instance", le.id)
	default:
		logger.Debug("Scheduler leader lock held by another instance", "instance", le.id)
	}
}

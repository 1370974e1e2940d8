package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gilby125/tripfinder/graph"
	"github.com/gilby125/tripfinder/queue"
)

// Status represents the health status of a component
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Check represents a single health check
type Check struct {
	Name      string            `json:"name"`
	Status    Status            `json:"status"`
	Message   string            `json:"message,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	Duration  time.Duration     `json:"duration"`
	Timestamp time.Time         `json:"timestamp"`
}

// HealthReport represents the overall health of the application
type HealthReport struct {
	Status    Status           `json:"status"`
	Version   string           `json:"version"`
	Timestamp time.Time        `json:"timestamp"`
	Checks    map[string]Check `json:"checks"`
	Uptime    time.Duration    `json:"uptime"`
}

// Checker defines the interface for health checks
type Checker interface {
	Check(ctx context.Context) Check
}

// Pinger is implemented by the Neo4j and Postgres clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker reports a dependency as up when Ping succeeds. Critical
// checkers gate readiness.
type PingChecker struct {
	Name     string
	Target   Pinger
	Critical bool
}

func (c *PingChecker) Check(ctx context.Context) Check {
	start := time.Now()
	err := c.Target.Ping(ctx)
	return result(c.Name, start, err, nil)
}

// PingFunc adapts a function to Pinger, e.g. a go-redis client's
// Ping(ctx).Err().
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// QueueChecker reports the backlog of the graph maintenance queues.
type QueueChecker struct {
	Queue  queue.Queue
	Queues []string
	Name   string
}

func (c *QueueChecker) Check(ctx context.Context) Check {
	start := time.Now()
	details := make(map[string]string)
	for _, name := range c.Queues {
		stats, err := c.Queue.GetQueueStats(ctx, name)
		if err != nil {
			return result(c.Name, start, err, nil)
		}
		details[name+"_pending"] = fmt.Sprintf("%d", stats["pending"])
		details[name+"_processing"] = fmt.Sprintf("%d", stats["processing"])
	}
	return result(c.Name, start, nil, details)
}

// GraphChecker reports whether the route graph has base airports to search
// from. An empty graph is reported down: searches would return nothing.
type GraphChecker struct {
	Graph graph.AirportLister
	Name  string
}

func (c *GraphChecker) Check(ctx context.Context) Check {
	start := time.Now()
	bases, err := c.Graph.ListBaseAirports(ctx)
	if err == nil && len(bases) == 0 {
		err = fmt.Errorf("route graph has no base airports")
	}
	return result(c.Name, start, err, map[string]string{"base_airports": fmt.Sprintf("%d", len(bases))})
}

func result(name string, start time.Time, err error, details map[string]string) Check {
	duration := time.Since(start)
	check := Check{
		Name:      name,
		Status:    StatusUp,
		Message:   "ok",
		Details:   map[string]string{"response_time": duration.String()},
		Duration:  duration,
		Timestamp: start,
	}
	for k, v := range details {
		check.Details[k] = v
	}
	if err != nil {
		check.Status = StatusDown
		check.Message = err.Error()
	}
	return check
}

// HealthChecker orchestrates multiple health checks
type HealthChecker struct {
	checkers  []Checker
	version   string
	timeout   time.Duration
	startTime time.Time
}

// NewHealthChecker creates a new health checker. Each check is bounded by
// timeout.
func NewHealthChecker(version string, timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HealthChecker{version: version, timeout: timeout, startTime: time.Now()}
}

// AddChecker adds a health checker
func (h *HealthChecker) AddChecker(checker Checker) {
	h.checkers = append(h.checkers, checker)
}

// CheckHealth runs every check concurrently.
func (h *HealthChecker) CheckHealth(ctx context.Context) HealthReport {
	return h.run(ctx, h.checkers)
}

// CheckReadiness runs only the critical ping checks.
func (h *HealthChecker) CheckReadiness(ctx context.Context) HealthReport {
	var critical []Checker
	for _, c := range h.checkers {
		if p, ok := c.(*PingChecker); ok && p.Critical {
			critical = append(critical, c)
		}
	}
	return h.run(ctx, critical)
}

func (h *HealthChecker) run(ctx context.Context, checkers []Checker) HealthReport {
	checks := make([]Check, len(checkers))
	var wg sync.WaitGroup
	for i, checker := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			checks[i] = checker.Check(cctx)
		}()
	}
	wg.Wait()

	report := HealthReport{
		Status:    StatusUp,
		Version:   h.version,
		Timestamp: time.Now(),
		Checks:    make(map[string]Check, len(checks)),
		Uptime:    time.Since(h.startTime),
	}
	for _, c := range checks {
		report.Checks[c.Name] = c
		if c.Status == StatusDown {
			report.Status = StatusDown
		}
	}
	return report
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// AlertType represents different types of alerts
type AlertType string

const (
	AlertTypeRefreshStarted  AlertType = "refresh_started"
	AlertTypeRefreshComplete AlertType = "refresh_complete"
	AlertTypeRefreshFailed   AlertType = "refresh_failed"
	AlertTypeRateLimited     AlertType = "rate_limited"
	AlertTypeInfo            AlertType = "info"
)

// Priority levels for NTFY
type Priority int

const (
	PriorityMin     Priority = 1
	PriorityLow     Priority = 2
	PriorityDefault Priority = 3
	PriorityHigh    Priority = 4
	PriorityUrgent  Priority = 5
)

// NTFYConfig holds configuration for NTFY notifications
type NTFYConfig struct {
	ServerURL       string
	Topic           string
	Username        string // Optional basic auth
	Password        string // Optional basic auth
	Enabled         bool
	DefaultPriority Priority
	// MinGap is the minimum time between two alerts of the same type.
	MinGap time.Duration
}

// NTFYClient handles sending notifications via NTFY
type NTFYClient struct {
	config     NTFYConfig
	httpClient *http.Client
	mu         sync.Mutex

	// Rate limiting to prevent notification spam
	lastAlerts map[AlertType]time.Time
}

// NTFYMessage represents a message to send
type NTFYMessage struct {
	Topic    string   `json:"topic"`
	Title    string   `json:"title,omitempty"`
	Message  string   `json:"message"`
	Priority int      `json:"priority,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// RefreshSummary describes a finished route graph refresh.
type RefreshSummary struct {
	Kind         string
	BaseAirports []string
	Airports     int
	FlightEdges  int
	Distances    int
	Duration     time.Duration
}

// NewNTFYClient creates a new NTFY client
func NewNTFYClient(config NTFYConfig) *NTFYClient {
	if config.ServerURL == "" {
		config.ServerURL = "https://ntfy.sh"
	}
	if config.DefaultPriority == 0 {
		config.DefaultPriority = PriorityDefault
	}
	if config.MinGap == 0 {
		config.MinGap = 5 * time.Minute
	}

	return &NTFYClient{
		config: config,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		lastAlerts: make(map[AlertType]time.Time),
	}
}

// SendAlert sends a notification with rate limiting
func (c *NTFYClient) SendAlert(ctx context.Context, alertType AlertType, title, message string, priority Priority) error {
	if !c.IsEnabled() {
		return nil
	}

	c.mu.Lock()
	if lastTime, ok := c.lastAlerts[alertType]; ok && time.Since(lastTime) < c.config.MinGap {
		c.mu.Unlock()
		return nil // Skip, too soon
	}
	c.lastAlerts[alertType] = time.Now()
	c.mu.Unlock()

	return c.send(ctx, title, message, priority, tagsForAlertType(alertType))
}

// SendImmediate sends a notification immediately without rate limiting
func (c *NTFYClient) SendImmediate(ctx context.Context, title, message string, priority Priority, tags []string) error {
	if !c.IsEnabled() {
		return nil
	}
	return c.send(ctx, title, message, priority, tags)
}

func (c *NTFYClient) send(ctx context.Context, title, message string, priority Priority, tags []string) error {
	cfg := c.GetConfig()
	msg := NTFYMessage{
		Topic:    cfg.Topic,
		Title:    title,
		Message:  message,
		Priority: int(priority),
		Tags:     tags,
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal NTFY message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.ServerURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create NTFY request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if cfg.Username != "" && cfg.Password != "" {
		req.SetBasicAuth(cfg.Username, cfg.Password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send NTFY notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("NTFY returned error status: %d", resp.StatusCode)
	}
	return nil
}

func tagsForAlertType(alertType AlertType) []string {
	switch alertType {
	case AlertTypeRefreshStarted:
		return []string{"rocket", "airplane"}
	case AlertTypeRefreshComplete:
		return []string{"white_check_mark", "airplane"}
	case AlertTypeRefreshFailed:
		return []string{"rotating_light", "x"}
	case AlertTypeRateLimited:
		return []string{"stop_sign", "snail"}
	default:
		return []string{"information_source"}
	}
}

// AlertRefreshStarted announces a refresh run.
func (c *NTFYClient) AlertRefreshStarted(ctx context.Context, kind string, bases []string) error {
	title := fmt.Sprintf("Route graph %s started", kind)
	message := fmt.Sprintf("Base airports: %s", strings.Join(bases, ", "))
	return c.SendAlert(ctx, AlertTypeRefreshStarted, title, message, PriorityLow)
}

// AlertRefreshComplete reports the size of a finished refresh.
func (c *NTFYClient) AlertRefreshComplete(ctx context.Context, s RefreshSummary) error {
	title := fmt.Sprintf("Route graph %s complete", s.Kind)
	message := fmt.Sprintf("%d airports, %d flight edges, %d distances in %v (bases: %s)",
		s.Airports, s.FlightEdges, s.Distances, s.Duration.Round(time.Second), strings.Join(s.BaseAirports, ", "))
	return c.SendAlert(ctx, AlertTypeRefreshComplete, title, message, PriorityDefault)
}

// AlertRefreshFailed reports a failed refresh. Failures are never rate limited.
func (c *NTFYClient) AlertRefreshFailed(ctx context.Context, kind string, cause error) error {
	title := fmt.Sprintf("Route graph %s failed", kind)
	return c.SendImmediate(ctx, title, cause.Error(), PriorityHigh, tagsForAlertType(AlertTypeRefreshFailed))
}

// AlertRateLimited reports a 429 from the fare source.
func (c *NTFYClient) AlertRateLimited(ctx context.Context, route string) error {
	return c.SendAlert(ctx, AlertTypeRateLimited, "Fare source rate limited",
		fmt.Sprintf("Got 429 response on route: %s", route), PriorityUrgent)
}

// IsEnabled returns whether notifications are enabled
func (c *NTFYClient) IsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config.Enabled && c.config.Topic != ""
}

// GetConfig returns the current configuration
func (c *NTFYClient) GetConfig() NTFYConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

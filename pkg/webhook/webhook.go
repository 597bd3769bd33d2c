// Package webhook provides HTTP notification support for pipeline events.
// Operators point hooks at chat bridges or incident tooling so approval
// requests and applies surface outside the terminal.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// EventType represents the type of pipeline event that can trigger hooks.
type EventType string

const (
	EventApprovalRequested EventType = "approval.requested"
	EventApprovalGranted   EventType = "approval.granted"
	EventApprovalDenied    EventType = "approval.denied"
	EventValidationFailed  EventType = "validation.failed"
	EventPatchApplied      EventType = "patch.applied"
	EventApplyFailed       EventType = "apply.failed"
	EventRolledBack        EventType = "patch.rolled_back"
)

// Event represents a pipeline event payload sent to hooks.
type Event struct {
	Event       EventType      `json:"event"`
	Timestamp   string         `json:"timestamp"`
	InstallID   string         `json:"install_id,omitempty"`
	Root        string         `json:"root,omitempty"`
	PatchID     string         `json:"patch_id,omitempty"`
	Tier        string         `json:"tier,omitempty"`
	Description string         `json:"description,omitempty"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// HookConfig represents a single hook endpoint.
type HookConfig struct {
	URL     string        `json:"url" yaml:"url"`
	Secret  string        `json:"secret,omitempty" yaml:"secret,omitempty"`
	Events  []EventType   `json:"events" yaml:"events"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	Enabled bool          `json:"enabled" yaml:"enabled"`
}

// Config represents the webhook configuration.
type Config struct {
	Hooks          []HookConfig  `json:"hooks" yaml:"hooks"`
	Enabled        bool          `json:"enabled" yaml:"enabled"`
	MaxRetries     int           `json:"max_retries" yaml:"max_retries"`
	RetryDelay     time.Duration `json:"retry_delay" yaml:"retry_delay"`
	AsyncQueueSize int           `json:"async_queue_size" yaml:"async_queue_size"`
}

// DefaultConfig returns the default webhook configuration. No hooks are
// configured, so sending is a no-op until an operator adds one.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		MaxRetries:     3,
		RetryDelay:     5 * time.Second,
		AsyncQueueSize: 100,
	}
}

// Client handles sending hook notifications.
type Client struct {
	config Config
	http   *http.Client
	queue  chan *job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	mu     sync.RWMutex
}

type job struct {
	event Event
	hook  HookConfig
}

// NewClient creates a new hook client.
func NewClient(cfg Config) *Client {
	if cfg.AsyncQueueSize <= 0 {
		cfg.AsyncQueueSize = DefaultConfig().AsyncQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		config: cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
		queue:  make(chan *job, cfg.AsyncQueueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.Enabled && len(cfg.Hooks) > 0 {
		c.start()
	}

	return c
}

func (c *Client) start() {
	c.once.Do(func() {
		c.wg.Add(1)
		go c.worker()
	})
}

// worker processes hook notifications in the background.
func (c *Client) worker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			// Drain remaining jobs
			for len(c.queue) > 0 {
				job := <-c.queue
				c.send(job)
			}
			return
		case job := <-c.queue:
			c.send(job)
		}
	}
}

// Send sends an event to all matching hooks.
// If async is true, the event is queued for background sending.
// If async is false, the event is sent synchronously.
func (c *Client) Send(event Event, async bool) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.config.Enabled {
		return nil
	}

	var hooks []HookConfig
	for _, hook := range c.config.Hooks {
		if !hook.Enabled {
			continue
		}
		if c.matchesEvent(hook, event.Event) {
			hooks = append(hooks, hook)
		}
	}

	if len(hooks) == 0 {
		return nil
	}

	if event.Timestamp == "" {
		event.Timestamp = time.Now().Format(time.RFC3339)
	}

	if async {
		for _, hook := range hooks {
			job := &job{event: event, hook: hook}
			select {
			case c.queue <- job:
			default:
				// Queue full; notification is best-effort
				fmt.Printf("Warning: webhook queue full, dropping event: %s\n", event.Event)
			}
		}
		return nil
	}

	var lastErr error
	for _, hook := range hooks {
		if err := c.sendSync(&job{event: event, hook: hook}); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (c *Client) send(job *job) {
	if err := c.sendSync(job); err != nil {
		fmt.Printf("Webhook error: %v\n", err)
	}
}

// sendSync sends a hook notification synchronously with retries.
func (c *Client) sendSync(job *job) error {
	payload, err := json.Marshal(job.event)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-c.ctx.Done():
				return c.ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		req, err := c.createRequest(job.hook, job.event.Event, payload)
		if err != nil {
			return err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		lastErr = fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	return lastErr
}

func (c *Client) createRequest(hook HookConfig, event EventType, payload []byte) (*http.Request, error) {
	req, err := http.NewRequest("POST", hook.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Crucible-Webhook/1.0")
	req.Header.Set("X-Crucible-Event", string(event))

	// HMAC signature lets the receiver authenticate the sender
	if hook.Secret != "" {
		signature := c.sign(payload, hook.Secret)
		req.Header.Set("X-Crucible-Signature", signature)
	}

	return req, nil
}

// sign creates an HMAC-SHA256 signature for the payload.
func (c *Client) sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// matchesEvent checks if a hook is configured for the given event.
func (c *Client) matchesEvent(hook HookConfig, event EventType) bool {
	for _, e := range hook.Events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}

// Close gracefully shuts down the client, draining queued notifications.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.config.Enabled {
		return nil
	}

	c.cancel()
	c.wg.Wait()
	return nil
}

// SendApprovalRequested sends an approval.requested event.
func (c *Client) SendApprovalRequested(installID, root, patchID, tier, description string, async bool) error {
	return c.Send(Event{
		Event:       EventApprovalRequested,
		InstallID:   installID,
		Root:        root,
		PatchID:     patchID,
		Tier:        tier,
		Description: description,
	}, async)
}

// SendApprovalGranted sends an approval.granted event.
func (c *Client) SendApprovalGranted(installID, root, patchID, approver string, async bool) error {
	return c.Send(Event{
		Event:     EventApprovalGranted,
		InstallID: installID,
		Root:      root,
		PatchID:   patchID,
		Metadata:  map[string]any{"approver": approver},
	}, async)
}

// SendApprovalDenied sends an approval.denied event.
func (c *Client) SendApprovalDenied(installID, root, patchID, reason string, async bool) error {
	return c.Send(Event{
		Event:     EventApprovalDenied,
		InstallID: installID,
		Root:      root,
		PatchID:   patchID,
		Error:     reason,
	}, async)
}

// SendValidationFailed sends a validation.failed event.
func (c *Client) SendValidationFailed(installID, root, patchID, errMsg string, async bool) error {
	return c.Send(Event{
		Event:     EventValidationFailed,
		InstallID: installID,
		Root:      root,
		PatchID:   patchID,
		Error:     errMsg,
	}, async)
}

// SendPatchApplied sends a patch.applied event.
func (c *Client) SendPatchApplied(installID, root, patchID, tier string, filesModified int, async bool) error {
	return c.Send(Event{
		Event:     EventPatchApplied,
		InstallID: installID,
		Root:      root,
		PatchID:   patchID,
		Tier:      tier,
		Metadata:  map[string]any{"files_modified": filesModified},
	}, async)
}

// SendApplyFailed sends an apply.failed event.
func (c *Client) SendApplyFailed(installID, root, patchID, errMsg string, rolledBack, async bool) error {
	return c.Send(Event{
		Event:     EventApplyFailed,
		InstallID: installID,
		Root:      root,
		PatchID:   patchID,
		Error:     errMsg,
		Metadata:  map[string]any{"rolled_back": rolledBack},
	}, async)
}

// SendRolledBack sends a patch.rolled_back event.
func (c *Client) SendRolledBack(installID, root, patchID string, pathsRestored int, async bool) error {
	return c.Send(Event{
		Event:     EventRolledBack,
		InstallID: installID,
		Root:      root,
		PatchID:   patchID,
		Metadata:  map[string]any{"paths_restored": pathsRestored},
	}, async)
}

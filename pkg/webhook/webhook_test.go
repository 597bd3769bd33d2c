package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.Enabled {
		t.Error("default config should be enabled")
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("expected MaxRetries 3, got %d", cfg.MaxRetries)
	}
	if cfg.RetryDelay != 5*time.Second {
		t.Errorf("expected RetryDelay 5s, got %v", cfg.RetryDelay)
	}
	if cfg.AsyncQueueSize != 100 {
		t.Errorf("expected AsyncQueueSize 100, got %d", cfg.AsyncQueueSize)
	}
	if len(cfg.Hooks) != 0 {
		t.Error("default config should carry no hooks")
	}
}

func TestClientSendSync(t *testing.T) {
	var receivedEvent map[string]any
	var receivedHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&receivedEvent)
		receivedHeader = r.Header.Get("X-Crucible-Event")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := Config{
		Enabled:    true,
		MaxRetries: 1,
		RetryDelay: 10 * time.Millisecond,
		Hooks: []HookConfig{
			{
				URL:     server.URL,
				Events:  []EventType{EventApprovalRequested},
				Enabled: true,
			},
		},
	}

	client := NewClient(cfg)
	defer client.Close()

	event := Event{
		Event:       EventApprovalRequested,
		InstallID:   "install-1",
		PatchID:     "1700000000000-a3f7c1b2",
		Tier:        "SENSITIVE",
		Description: "rotate signing key",
	}

	err := client.Send(event, false)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if receivedEvent == nil {
		t.Fatal("expected event to be received")
	}
	if receivedEvent["event"] != string(EventApprovalRequested) {
		t.Errorf("expected event %s, got %v", EventApprovalRequested, receivedEvent["event"])
	}
	if receivedEvent["tier"] != "SENSITIVE" {
		t.Errorf("tier not carried: %v", receivedEvent["tier"])
	}
	if receivedHeader != string(EventApprovalRequested) {
		t.Errorf("X-Crucible-Event header %q", receivedHeader)
	}
	if receivedEvent["timestamp"] == "" {
		t.Error("timestamp not set")
	}
}

func TestClientSendWithSignature(t *testing.T) {
	var receivedSignature string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedSignature = r.Header.Get("X-Crucible-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := Config{
		Enabled:    true,
		MaxRetries: 1,
		Hooks: []HookConfig{
			{
				URL:     server.URL,
				Secret:  "test-secret-key",
				Events:  []EventType{EventPatchApplied},
				Enabled: true,
			},
		},
	}

	client := NewClient(cfg)
	defer client.Close()

	err := client.Send(Event{Event: EventPatchApplied, PatchID: "abc123"}, false)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if receivedSignature == "" {
		t.Fatal("expected X-Crucible-Signature header")
	}
	if len(receivedSignature) < 7 || receivedSignature[:7] != "sha256=" {
		t.Errorf("invalid signature format: %s", receivedSignature)
	}
}

func TestClientSendAsync(t *testing.T) {
	calls := make(chan bool, 10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls <- true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := Config{
		Enabled:        true,
		MaxRetries:     1,
		AsyncQueueSize: 10,
		Hooks: []HookConfig{
			{
				URL:     server.URL,
				Events:  []EventType{EventPatchApplied},
				Enabled: true,
			},
		},
	}

	client := NewClient(cfg)
	defer client.Close()

	err := client.Send(Event{Event: EventPatchApplied}, true)
	if err != nil {
		t.Fatalf("Send async failed: %v", err)
	}

	select {
	case <-calls:
		// Success
	case <-time.After(2 * time.Second):
		t.Error("async webhook not received within timeout")
	}
}

func TestClientRetry(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := Config{
		Enabled:    true,
		MaxRetries: 3,
		RetryDelay: 10 * time.Millisecond,
		Hooks: []HookConfig{
			{
				URL:     server.URL,
				Events:  []EventType{EventApplyFailed},
				Enabled: true,
			},
		},
	}

	client := NewClient(cfg)
	defer client.Close()

	start := time.Now()
	err := client.Send(Event{Event: EventApplyFailed}, false)
	duration := time.Since(start)

	if err != nil {
		t.Fatalf("Send with retry failed: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if duration < 20*time.Millisecond {
		t.Errorf("expected retries to take at least 20ms, took %v", duration)
	}
}

func TestClientDisabled(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := Config{
		Enabled: false,
		Hooks: []HookConfig{
			{
				URL:    server.URL,
				Events: []EventType{EventPatchApplied},
			},
		},
	}

	client := NewClient(cfg)
	defer client.Close()

	if err := client.Send(Event{Event: EventPatchApplied}, false); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if called {
		t.Error("webhook should not have been called when disabled")
	}
}

func TestClientWildcardEvent(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := Config{
		Enabled: true,
		Hooks: []HookConfig{
			{
				URL:     server.URL,
				Events:  []EventType{"*"},
				Enabled: true,
			},
		},
	}

	client := NewClient(cfg)
	defer client.Close()

	events := []EventType{
		EventApprovalRequested,
		EventValidationFailed,
		EventRolledBack,
	}

	for _, event := range events {
		called = false
		if err := client.Send(Event{Event: event}, false); err != nil {
			t.Fatalf("Send failed for %s: %v", event, err)
		}
		if !called {
			t.Errorf("wildcard hook not called for event %s", event)
		}
	}
}

func TestClientEventFiltering(t *testing.T) {
	var receivedEventType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		receivedEventType = payload["event"].(string)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := Config{
		Enabled: true,
		Hooks: []HookConfig{
			{
				URL:     server.URL,
				Events:  []EventType{EventApprovalRequested},
				Enabled: true,
			},
		},
	}

	client := NewClient(cfg)
	defer client.Close()

	receivedEventType = ""
	client.Send(Event{Event: EventApprovalRequested}, false)
	if receivedEventType != string(EventApprovalRequested) {
		t.Errorf("approval hook should have been called, got event: %s", receivedEventType)
	}

	receivedEventType = ""
	client.Send(Event{Event: EventPatchApplied}, false)
	if receivedEventType == string(EventPatchApplied) {
		t.Error("apply hook should not have been called")
	}
}

func TestConvenienceMethods(t *testing.T) {
	var receivedEvent Event

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&receivedEvent)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := Config{
		Enabled: true,
		Hooks: []HookConfig{
			{
				URL:     server.URL,
				Events:  []EventType{"*"},
				Enabled: true,
			},
		},
	}

	client := NewClient(cfg)
	defer client.Close()

	err := client.SendApprovalRequested("install-1", "/tree", "patch-1", "CRITICAL", "drop the users table", false)
	if err != nil {
		t.Fatalf("SendApprovalRequested failed: %v", err)
	}
	if receivedEvent.Event != EventApprovalRequested {
		t.Errorf("expected %s, got %s", EventApprovalRequested, receivedEvent.Event)
	}
	if receivedEvent.Tier != "CRITICAL" {
		t.Errorf("tier not carried: %s", receivedEvent.Tier)
	}

	err = client.SendPatchApplied("install-1", "/tree", "patch-1", "SAFE", 2, false)
	if err != nil {
		t.Fatalf("SendPatchApplied failed: %v", err)
	}
	if receivedEvent.Event != EventPatchApplied {
		t.Errorf("expected %s, got %s", EventPatchApplied, receivedEvent.Event)
	}
	if receivedEvent.Metadata == nil {
		t.Error("expected metadata in applied event")
	}

	err = client.SendRolledBack("install-1", "/tree", "patch-1", 2, false)
	if err != nil {
		t.Fatalf("SendRolledBack failed: %v", err)
	}
	if receivedEvent.Event != EventRolledBack {
		t.Errorf("expected %s, got %s", EventRolledBack, receivedEvent.Event)
	}
}

func TestClientConnectionError(t *testing.T) {
	cfg := Config{
		Enabled:    true,
		MaxRetries: 1,
		RetryDelay: 10 * time.Millisecond,
		Hooks: []HookConfig{
			{
				URL:     "http://invalid.local:9999",
				Events:  []EventType{EventPatchApplied},
				Enabled: true,
			},
		},
	}

	client := NewClient(cfg)
	defer client.Close()

	err := client.Send(Event{Event: EventPatchApplied}, false)
	if err == nil {
		t.Error("expected error for invalid URL")
	}
}

func TestClientGracefulShutdown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := Config{
		Enabled:        true,
		MaxRetries:     0,
		AsyncQueueSize: 5,
		Hooks: []HookConfig{
			{
				URL:     server.URL,
				Events:  []EventType{EventPatchApplied},
				Enabled: true,
			},
		},
	}

	client := NewClient(cfg)

	for i := 0; i < 3; i++ {
		client.Send(Event{Event: EventPatchApplied}, true)
	}

	// Close waits for the queue to drain
	start := time.Now()
	err := client.Close()
	duration := time.Since(start)

	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if duration < 300*time.Millisecond {
		t.Errorf("Close should have waited for pending events, took %v", duration)
	}
}

func TestClientQueueFull(t *testing.T) {
	cfg := Config{
		Enabled:        true,
		MaxRetries:     0,
		AsyncQueueSize: 2,
		Hooks: []HookConfig{
			{
				URL:     "http://slow.example.com",
				Events:  []EventType{EventPatchApplied},
				Enabled: true,
			},
		},
	}

	client := NewClient(cfg)
	defer client.Close()

	for i := 0; i < 10; i++ {
		client.Send(Event{Event: EventPatchApplied}, true)
	}

	// Queue is full, but Send must not block
	done := make(chan bool)
	go func() {
		client.Send(Event{Event: EventPatchApplied}, true)
		close(done)
	}()

	select {
	case <-done:
		// Success
	case <-time.After(100 * time.Millisecond):
		t.Error("Send blocked when queue full")
	}
}

func TestHookEnabledDisabled(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := Config{
		Enabled: true,
		Hooks: []HookConfig{
			{
				URL:     server.URL,
				Events:  []EventType{EventPatchApplied},
				Enabled: false,
			},
		},
	}

	client := NewClient(cfg)
	defer client.Close()

	if err := client.Send(Event{Event: EventPatchApplied}, false); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if called {
		t.Error("disabled hook should not have been called")
	}
}

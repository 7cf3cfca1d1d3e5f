package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/civicscan/civicscan/internal/config"
)

func TestDisabledRecorderIsNoOp(t *testing.T) {
	r, err := NewRecorder(config.AuditConfig{})
	if err != nil {
		t.Fatalf("NewRecorder() error: %v", err)
	}
	// Must not panic or write anything.
	r.Record(context.Background(), Event{Action: ActionUserLogin, ActorID: "user-1"})
	if err := r.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestFileShipperWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	r, err := NewRecorder(config.AuditConfig{
		Enabled: true,
		File:    config.AuditFileConfig{Path: path},
	})
	if err != nil {
		t.Fatalf("NewRecorder() error: %v", err)
	}

	r.Record(context.Background(), Event{
		Action:       ActionCodeRevoke,
		ActorID:      "admin-1",
		ResourceType: "auth_code",
		ResourceID:   "code-1",
	})
	r.Record(context.Background(), Event{
		Action:   ActionUserSetActive,
		ActorID:  "admin-1",
		Metadata: map[string]any{"is_active": false},
	})
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open audit log: %v", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		events = append(events, e)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 records, got %d", len(events))
	}
	if events[0].Action != ActionCodeRevoke || events[0].ResourceID != "code-1" {
		t.Errorf("unexpected first record: %+v", events[0])
	}
	if events[0].Timestamp.IsZero() {
		t.Error("timestamp should be filled in when left zero")
	}
	if events[1].Metadata["is_active"] != false {
		t.Errorf("metadata should survive the round trip: %+v", events[1].Metadata)
	}
}

func TestFileShipperRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	fs, err := NewFileShipper(config.AuditFileConfig{Path: path, MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewFileShipper() error: %v", err)
	}
	defer fs.Close()

	// Force the size check to trigger by writing past 1 MB.
	big := strings.Repeat("x", 64*1024)
	for i := 0; i < 20; i++ {
		event := &Event{
			Timestamp: time.Now(),
			Action:    ActionStorageCleanup,
			Metadata:  map[string]any{"padding": big},
		}
		if err := fs.Ship(context.Background(), event); err != nil {
			t.Fatalf("Ship() error: %v", err)
		}
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("expected a rotated backup at %s.1: %v", path, err)
	}
}

func TestWebhookShipperPostsEvent(t *testing.T) {
	received := make(chan Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var e Event
		if err := json.NewDecoder(req.Body).Decode(&e); err != nil {
			t.Errorf("failed to decode webhook body: %v", err)
		}
		received <- e
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ws := NewWebhookShipper(config.AuditWebhookConfig{URL: srv.URL})
	defer ws.Close()

	err := ws.Ship(context.Background(), &Event{Action: ActionUserLoginFailed, Metadata: map[string]any{"username": "alice"}})
	if err != nil {
		t.Fatalf("Ship() error: %v", err)
	}

	select {
	case e := <-received:
		if e.Action != ActionUserLoginFailed {
			t.Errorf("unexpected action: %q", e.Action)
		}
	case <-time.After(time.Second):
		t.Fatal("webhook never received the event")
	}
}

func TestWebhookShipperErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ws := NewWebhookShipper(config.AuditWebhookConfig{URL: srv.URL})
	defer ws.Close()

	if err := ws.Ship(context.Background(), &Event{Action: ActionUserLogin}); err == nil {
		t.Error("expected an error for a 500 response")
	}
}

func TestWebhookShipperBatchFlushOnClose(t *testing.T) {
	received := make(chan []Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var batch []Event
		if err := json.NewDecoder(req.Body).Decode(&batch); err != nil {
			t.Errorf("failed to decode batch body: %v", err)
		}
		received <- batch
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ws := NewWebhookShipper(config.AuditWebhookConfig{
		URL:           srv.URL,
		BatchSize:     10,
		FlushInterval: time.Hour,
	})

	for i := 0; i < 3; i++ {
		if err := ws.Ship(context.Background(), &Event{Timestamp: time.Now(), Action: ActionCodeCreate}); err != nil {
			t.Fatalf("Ship() error: %v", err)
		}
	}
	ws.Close()

	select {
	case batch := <-received:
		if len(batch) != 3 {
			t.Errorf("expected a batch of 3, got %d", len(batch))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("batch was never flushed on close")
	}
}

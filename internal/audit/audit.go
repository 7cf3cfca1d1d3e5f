// Package audit records who did what: registrations, logins, invitation code
// management, account toggles, and storage cleanup. Audit records are
// intentionally separate from application logs because they have different
// consumers and retention requirements. Application logs are ephemeral debug
// output for on-call engineers; audit records are an immutable trail that may
// need to be kept for years. The package ships records to a local JSON-lines
// file, a webhook, or both, so the trail can reach a SIEM or log aggregator
// independently of the logging pipeline.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/civicscan/civicscan/internal/config"
)

// Actions recorded by the handlers.
const (
	ActionUserRegister    = "user.register"
	ActionUserLogin       = "user.login"
	ActionUserLoginFailed = "user.login_failed"
	ActionPasswordReset   = "user.password_reset"
	ActionUserSetActive   = "user.set_active"
	ActionCodeCreate      = "code.create"
	ActionCodeRevoke      = "code.revoke"
	ActionStorageCleanup  = "storage.cleanup"
)

// Event is one audit record.
type Event struct {
	Timestamp    time.Time      `json:"timestamp"`
	Action       string         `json:"action"`
	ActorID      string         `json:"actor_id,omitempty"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	IPAddress    string         `json:"ip_address,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Shipper sends audit records to one destination.
type Shipper interface {
	Ship(ctx context.Context, event *Event) error
	Close() error
}

// Recorder fans audit events out to the configured shippers. A Recorder built
// from a disabled config has no shippers and Record is a no-op, so callers
// never need to branch on whether auditing is on.
type Recorder struct {
	shippers []Shipper
}

// NewRecorder builds a Recorder from config. With auditing disabled it returns
// a working no-op Recorder.
func NewRecorder(cfg config.AuditConfig) (*Recorder, error) {
	r := &Recorder{}
	if !cfg.Enabled {
		return r, nil
	}

	if cfg.File.Path != "" {
		fs, err := NewFileShipper(cfg.File)
		if err != nil {
			return nil, err
		}
		r.shippers = append(r.shippers, fs)
	}
	if cfg.Webhook.URL != "" {
		r.shippers = append(r.shippers, NewWebhookShipper(cfg.Webhook))
	}
	return r, nil
}

// Record ships one event. Failures are logged, not returned; a broken audit
// destination must not fail the request that triggered the event.
func (r *Recorder) Record(ctx context.Context, event Event) {
	if len(r.shippers) == 0 {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	for _, shipper := range r.shippers {
		if err := shipper.Ship(ctx, &event); err != nil {
			slog.Error("audit record not shipped", "action", event.Action, "error", err)
		}
	}
}

// Close flushes and closes all shippers.
func (r *Recorder) Close() error {
	var lastErr error
	for _, shipper := range r.shippers {
		if err := shipper.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

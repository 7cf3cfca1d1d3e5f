// auth_code.go defines the invitation code model gating user registration,
// including the derived lifecycle status.
package models

import "time"

// CodeStatus is the derived lifecycle state of an auth code. It is never
// stored; it is computed from the code's fields at evaluation time.
type CodeStatus string

const (
	CodeStatusActive    CodeStatus = "active"
	CodeStatusExpired   CodeStatus = "expired"
	CodeStatusExhausted CodeStatus = "exhausted"
	CodeStatusRevoked   CodeStatus = "revoked"
)

// AuthCode is an invitation code required for registration. Codes are
// single-use by default but may allow multiple redemptions via MaxUses.
type AuthCode struct {
	ID          string     `json:"id"`
	Code        string     `json:"code"`
	CreatedBy   string     `json:"created_by"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"` // nil means the code never expires
	MaxUses     int        `json:"max_uses"`
	CurrentUses int        `json:"current_uses"`
	IsActive    bool       `json:"is_active"`
	Notes       *string    `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Status derives the code's lifecycle state at the given time. The checks are
// ordered: a revoked code reports revoked even if it is also expired, and an
// expired code reports expired even if it is also exhausted.
func (c *AuthCode) Status(now time.Time) CodeStatus {
	if !c.IsActive {
		return CodeStatusRevoked
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return CodeStatusExpired
	}
	if c.CurrentUses >= c.MaxUses {
		return CodeStatusExhausted
	}
	return CodeStatusActive
}

// CodeUsage is one redemption of an auth code. Usage rows are append-only.
type CodeUsage struct {
	ID     string    `json:"id"`
	CodeID string    `json:"code_id"`
	UserID string    `json:"user_id"`
	UsedAt time.Time `json:"used_at"`
}

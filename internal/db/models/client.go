// client.go defines the municipal client (agency) model, its scrape source
// URLs, and per-user favorites.
package models

import "time"

// Client is a municipal agency whose meeting documents are scraped.
// Clients are soft-deleted via IsActive so historical jobs keep their
// referent.
type Client struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ClientSource is one page URL scanned for documents when a client is
// scraped. A client may have several (minutes page, board packet page, ...).
type ClientSource struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	URL       string    `json:"url"`
	Label     *string   `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Favorite marks a client as pinned by a user.
type Favorite struct {
	UserID      string    `json:"user_id"`
	ClientID    string    `json:"client_id"`
	FavoritedAt time.Time `json:"favorited_at"`
}

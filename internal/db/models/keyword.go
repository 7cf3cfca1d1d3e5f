// keyword.go defines the search term model matched against scraped documents.
package models

import "time"

// Keyword is a term scanned for in scraped documents. Keywords are global;
// the client_keywords association selects which apply to a given client.
type Keyword struct {
	ID        string    `json:"id"`
	Term      string    `json:"term"`
	Category  *string   `json:"category,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// scrape_job.go defines the scrape job lifecycle model, per-job configuration,
// and the match results a job produces.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a scrape job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is final. Terminal jobs never change
// state again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// ScrapeJob is one execution of the scrape pipeline against a client.
//
// Lifecycle: pending → running → completed | failed | cancelled. A pending
// job may also go straight to cancelled. StartedAt is set on the running
// transition, CompletedAt on any terminal transition. ErrorMessage is set
// only on failure.
type ScrapeJob struct {
	ID           string     `json:"id"`
	ClientID     string     `json:"client_id"`
	CreatedBy    string     `json:"created_by"`
	Status       JobStatus  `json:"status"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// JobConfig is the per-job scrape configuration captured at submission time,
// so later edits to defaults never change what an old job meant.
type JobConfig struct {
	JobID           string     `json:"job_id"`
	DateFrom        *time.Time `json:"date_from,omitempty"`
	DateTo          *time.Time `json:"date_to,omitempty"`
	MaxPages        int        `json:"max_pages"`
	IncludeMinutes  bool       `json:"include_minutes"`
	IncludePackages bool       `json:"include_packages"`
}

// EntitySet holds named entities extracted from the page a keyword matched on.
// Stored as a JSONB column; a nil *EntitySet means extraction was disabled or
// produced nothing.
type EntitySet struct {
	Organizations   []string `json:"organizations,omitempty"`
	Locations       []string `json:"locations,omitempty"`
	MonetaryAmounts []string `json:"monetary_amounts,omitempty"`
	Dates           []string `json:"dates,omitempty"`
}

// IsEmpty reports whether no entities of any kind were found.
func (e *EntitySet) IsEmpty() bool {
	return e == nil ||
		(len(e.Organizations) == 0 && len(e.Locations) == 0 &&
			len(e.MonetaryAmounts) == 0 && len(e.Dates) == 0)
}

// Value implements driver.Valuer so an EntitySet can be written to a JSONB column.
func (e *EntitySet) Value() (driver.Value, error) {
	if e == nil {
		return nil, nil
	}
	return json.Marshal(e)
}

// Scan implements sql.Scanner so an EntitySet can be read from a JSONB column.
func (e *EntitySet) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into EntitySet", src)
	}
	return json.Unmarshal(data, e)
}

// ScrapeResult is one keyword match on one page of one scraped document.
// The matched term is denormalized into Keyword so results stay readable
// even if the keyword row is later renamed.
type ScrapeResult struct {
	ID         string     `json:"id"`
	JobID      string     `json:"job_id"`
	FileName   string     `json:"file_name"`
	PageNumber int        `json:"page_number"`
	KeywordID  string     `json:"keyword_id"`
	Keyword    string     `json:"keyword"`
	Snippet    string     `json:"snippet"`
	Entities   *EntitySet `json:"entities,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// stats_repository.go implements the read-only aggregate queries behind the
// admin dashboard. It uses sqlx struct scanning since these queries return
// wide one-off rows rather than domain entities.
package repositories

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// DashboardStats is the aggregate snapshot shown on the admin dashboard
type DashboardStats struct {
	TotalUsers      int `db:"total_users" json:"total_users"`
	ActiveUsers     int `db:"active_users" json:"active_users"`
	TotalClients    int `db:"total_clients" json:"total_clients"`
	ActiveClients   int `db:"active_clients" json:"active_clients"`
	TotalKeywords   int `db:"total_keywords" json:"total_keywords"`
	ActiveAuthCodes int `db:"active_auth_codes" json:"active_auth_codes"`
	JobsPending     int `db:"jobs_pending" json:"jobs_pending"`
	JobsRunning     int `db:"jobs_running" json:"jobs_running"`
	JobsCompleted   int `db:"jobs_completed" json:"jobs_completed"`
	JobsFailed      int `db:"jobs_failed" json:"jobs_failed"`
	JobsCancelled   int `db:"jobs_cancelled" json:"jobs_cancelled"`
	TotalResults    int `db:"total_results" json:"total_results"`
}

// JobOutcomeByClient is one row of the per-client job outcome breakdown
type JobOutcomeByClient struct {
	ClientID   string `db:"client_id" json:"client_id"`
	ClientName string `db:"client_name" json:"client_name"`
	Completed  int    `db:"completed" json:"completed"`
	Failed     int    `db:"failed" json:"failed"`
	Cancelled  int    `db:"cancelled" json:"cancelled"`
}

// StatsRepository handles aggregate dashboard queries
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository creates a new StatsRepository wrapping the shared pool
func NewStatsRepository(db *sql.DB) *StatsRepository {
	return &StatsRepository{db: sqlx.NewDb(db, "postgres")}
}

// GetDashboardStats returns the aggregate snapshot in a single query
func (r *StatsRepository) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM users)                                          AS total_users,
			(SELECT COUNT(*) FROM users WHERE is_active = true)                   AS active_users,
			(SELECT COUNT(*) FROM clients)                                        AS total_clients,
			(SELECT COUNT(*) FROM clients WHERE is_active = true)                 AS active_clients,
			(SELECT COUNT(*) FROM keywords WHERE is_active = true)                AS total_keywords,
			(SELECT COUNT(*) FROM auth_codes
			 WHERE is_active = true
			   AND current_uses < max_uses
			   AND (expires_at IS NULL OR expires_at > NOW()))                    AS active_auth_codes,
			(SELECT COUNT(*) FROM scrape_jobs WHERE status = 'pending')           AS jobs_pending,
			(SELECT COUNT(*) FROM scrape_jobs WHERE status = 'running')           AS jobs_running,
			(SELECT COUNT(*) FROM scrape_jobs WHERE status = 'completed')         AS jobs_completed,
			(SELECT COUNT(*) FROM scrape_jobs WHERE status = 'failed')            AS jobs_failed,
			(SELECT COUNT(*) FROM scrape_jobs WHERE status = 'cancelled')         AS jobs_cancelled,
			(SELECT COUNT(*) FROM scrape_results)                                 AS total_results
	`

	stats := &DashboardStats{}
	if err := r.db.GetContext(ctx, stats, query); err != nil {
		return nil, err
	}
	return stats, nil
}

// GetJobOutcomesByClient returns terminal job counts per client, busiest first
func (r *StatsRepository) GetJobOutcomesByClient(ctx context.Context, limit int) ([]JobOutcomeByClient, error) {
	query := `
		SELECT c.id AS client_id, c.name AS client_name,
			COUNT(*) FILTER (WHERE j.status = 'completed') AS completed,
			COUNT(*) FILTER (WHERE j.status = 'failed')    AS failed,
			COUNT(*) FILTER (WHERE j.status = 'cancelled') AS cancelled
		FROM scrape_jobs j
		JOIN clients c ON c.id = j.client_id
		GROUP BY c.id, c.name
		ORDER BY COUNT(*) DESC
		LIMIT $1
	`

	outcomes := make([]JobOutcomeByClient, 0)
	if err := r.db.SelectContext(ctx, &outcomes, query, limit); err != nil {
		return nil, err
	}
	return outcomes, nil
}

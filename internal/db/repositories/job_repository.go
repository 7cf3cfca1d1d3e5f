// job_repository.go implements data access for scrape jobs, their captured
// configuration, status transitions, and match results.
//
// All status transitions are conditional UPDATEs keyed on the current status.
// The database row is the single source of truth for the job lifecycle, so
// two processes racing to start or cancel the same job cannot both win: one
// UPDATE matches, the other affects zero rows and reports changed=false.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/civicscan/civicscan/internal/db/models"
)

// JobRepository handles scrape job database operations
type JobRepository struct {
	db *sql.DB
}

// NewJobRepository creates a new JobRepository
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// CreateJob creates a pending job and its captured configuration in one transaction
func (r *JobRepository) CreateJob(ctx context.Context, job *models.ScrapeJob, config *models.JobConfig) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	job.ID = uuid.New().String()
	job.Status = models.JobStatusPending
	job.CreatedAt = time.Now()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scrape_jobs (id, client_id, created_by, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, job.ID, job.ClientID, job.CreatedBy, job.Status, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	config.JobID = job.ID
	_, err = tx.ExecContext(ctx, `
		INSERT INTO scrape_job_configs (job_id, date_from, date_to, max_pages, include_minutes, include_packages)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, config.JobID, config.DateFrom, config.DateTo, config.MaxPages, config.IncludeMinutes, config.IncludePackages)
	if err != nil {
		return fmt.Errorf("failed to create job config: %w", err)
	}

	return tx.Commit()
}

// GetJob retrieves a job by ID
func (r *JobRepository) GetJob(ctx context.Context, jobID string) (*models.ScrapeJob, error) {
	query := `
		SELECT id, client_id, created_by, status, error_message, created_at, started_at, completed_at
		FROM scrape_jobs
		WHERE id = $1
	`

	job := &models.ScrapeJob{}
	err := r.db.QueryRowContext(ctx, query, jobID).Scan(
		&job.ID,
		&job.ClientID,
		&job.CreatedBy,
		&job.Status,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return job, nil
}

// GetConfig retrieves the captured configuration for a job
func (r *JobRepository) GetConfig(ctx context.Context, jobID string) (*models.JobConfig, error) {
	query := `
		SELECT job_id, date_from, date_to, max_pages, include_minutes, include_packages
		FROM scrape_job_configs
		WHERE job_id = $1
	`

	config := &models.JobConfig{}
	err := r.db.QueryRowContext(ctx, query, jobID).Scan(
		&config.JobID,
		&config.DateFrom,
		&config.DateTo,
		&config.MaxPages,
		&config.IncludeMinutes,
		&config.IncludePackages,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return config, nil
}

// ListJobs retrieves a paginated list of jobs with the total count, newest
// first. clientID filters to one client when non-empty.
func (r *JobRepository) ListJobs(ctx context.Context, clientID string, limit, offset int) ([]*models.ScrapeJob, int, error) {
	var total int
	var rows *sql.Rows
	var err error

	if clientID != "" {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scrape_jobs WHERE client_id = $1`, clientID).Scan(&total)
		if err != nil {
			return nil, 0, err
		}
		rows, err = r.db.QueryContext(ctx, `
			SELECT id, client_id, created_by, status, error_message, created_at, started_at, completed_at
			FROM scrape_jobs
			WHERE client_id = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3
		`, clientID, limit, offset)
	} else {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scrape_jobs`).Scan(&total)
		if err != nil {
			return nil, 0, err
		}
		rows, err = r.db.QueryContext(ctx, `
			SELECT id, client_id, created_by, status, error_message, created_at, started_at, completed_at
			FROM scrape_jobs
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2
		`, limit, offset)
	}
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	jobs := make([]*models.ScrapeJob, 0)
	for rows.Next() {
		job := &models.ScrapeJob{}
		err := rows.Scan(
			&job.ID,
			&job.ClientID,
			&job.CreatedBy,
			&job.Status,
			&job.ErrorMessage,
			&job.CreatedAt,
			&job.StartedAt,
			&job.CompletedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}

	return jobs, total, rows.Err()
}

// MarkRunning transitions a job from pending to running and stamps started_at.
// Returns false when the job was not pending, which rejects duplicate starts.
func (r *JobRepository) MarkRunning(ctx context.Context, jobID string) (bool, error) {
	query := `
		UPDATE scrape_jobs
		SET status = $2, started_at = $3
		WHERE id = $1 AND status = $4
	`
	return r.transition(ctx, query, jobID, models.JobStatusRunning, time.Now(), models.JobStatusPending)
}

// Complete transitions a running job to completed and stamps completed_at
func (r *JobRepository) Complete(ctx context.Context, jobID string) (bool, error) {
	query := `
		UPDATE scrape_jobs
		SET status = $2, completed_at = $3
		WHERE id = $1 AND status = $4
	`
	return r.transition(ctx, query, jobID, models.JobStatusCompleted, time.Now(), models.JobStatusRunning)
}

// Fail transitions a running job to failed with an error message
func (r *JobRepository) Fail(ctx context.Context, jobID, message string) (bool, error) {
	query := `
		UPDATE scrape_jobs
		SET status = $2, completed_at = $3, error_message = $4
		WHERE id = $1 AND status = $5
	`
	result, err := r.db.ExecContext(ctx, query, jobID, models.JobStatusFailed, time.Now(), message, models.JobStatusRunning)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Cancel transitions a pending or running job to cancelled. Terminal jobs are
// left untouched and Cancel reports false.
func (r *JobRepository) Cancel(ctx context.Context, jobID string) (bool, error) {
	query := `
		UPDATE scrape_jobs
		SET status = $2, completed_at = $3
		WHERE id = $1 AND status IN ($4, $5)
	`
	result, err := r.db.ExecContext(ctx, query, jobID, models.JobStatusCancelled, time.Now(),
		models.JobStatusPending, models.JobStatusRunning)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *JobRepository) transition(ctx context.Context, query string, args ...interface{}) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// InsertResults stores a batch of match results for a job in one transaction
func (r *JobRepository) InsertResults(ctx context.Context, jobID string, results []*models.ScrapeResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO scrape_results (id, job_id, file_name, page_number, keyword_id, keyword, snippet, entities, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	for _, result := range results {
		result.ID = uuid.New().String()
		result.JobID = jobID
		result.CreatedAt = time.Now()

		_, err := tx.ExecContext(ctx, query,
			result.ID,
			result.JobID,
			result.FileName,
			result.PageNumber,
			result.KeywordID,
			result.Keyword,
			result.Snippet,
			result.Entities,
			result.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert result: %w", err)
		}
	}

	return tx.Commit()
}

// ListResults retrieves a paginated list of results for a job with the total
// count, ordered by file then page.
func (r *JobRepository) ListResults(ctx context.Context, jobID string, limit, offset int) ([]*models.ScrapeResult, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scrape_results WHERE job_id = $1`, jobID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, job_id, file_name, page_number, keyword_id, keyword, snippet, entities, created_at
		FROM scrape_results
		WHERE job_id = $1
		ORDER BY file_name ASC, page_number ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, jobID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	results := make([]*models.ScrapeResult, 0)
	for rows.Next() {
		result := &models.ScrapeResult{}
		entities := &models.EntitySet{}
		var entitiesRaw []byte
		err := rows.Scan(
			&result.ID,
			&result.JobID,
			&result.FileName,
			&result.PageNumber,
			&result.KeywordID,
			&result.Keyword,
			&result.Snippet,
			&entitiesRaw,
			&result.CreatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		if len(entitiesRaw) > 0 {
			if err := entities.Scan(entitiesRaw); err != nil {
				return nil, 0, err
			}
			result.Entities = entities
		}
		results = append(results, result)
	}

	return results, total, rows.Err()
}

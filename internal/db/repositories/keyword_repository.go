// keyword_repository.go implements data access for keywords and their
// client associations.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/civicscan/civicscan/internal/db/models"
)

// KeywordRepository handles keyword database operations
type KeywordRepository struct {
	db *sql.DB
}

// NewKeywordRepository creates a new KeywordRepository
func NewKeywordRepository(db *sql.DB) *KeywordRepository {
	return &KeywordRepository{db: db}
}

// CreateKeyword creates a new keyword
func (r *KeywordRepository) CreateKeyword(ctx context.Context, keyword *models.Keyword) error {
	keyword.ID = uuid.New().String()
	keyword.CreatedAt = time.Now()
	keyword.UpdatedAt = time.Now()
	keyword.IsActive = true

	query := `
		INSERT INTO keywords (id, term, category, is_active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		keyword.ID,
		keyword.Term,
		keyword.Category,
		keyword.IsActive,
		keyword.CreatedBy,
		keyword.CreatedAt,
		keyword.UpdatedAt,
	)

	return err
}

// GetKeywordByID retrieves a keyword by ID
func (r *KeywordRepository) GetKeywordByID(ctx context.Context, keywordID string) (*models.Keyword, error) {
	query := `
		SELECT id, term, category, is_active, created_by, created_at, updated_at
		FROM keywords
		WHERE id = $1
	`

	keyword := &models.Keyword{}
	err := r.db.QueryRowContext(ctx, query, keywordID).Scan(
		&keyword.ID,
		&keyword.Term,
		&keyword.Category,
		&keyword.IsActive,
		&keyword.CreatedBy,
		&keyword.CreatedAt,
		&keyword.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return keyword, nil
}

// ListKeywords retrieves a paginated list of keywords with the total count.
// Soft-deleted keywords are excluded unless includeInactive is set.
func (r *KeywordRepository) ListKeywords(ctx context.Context, limit, offset int, includeInactive bool) ([]*models.Keyword, int, error) {
	filter := `WHERE is_active = true`
	if includeInactive {
		filter = ``
	}

	var total int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM keywords `+filter).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, term, category, is_active, created_by, created_at, updated_at
		FROM keywords ` + filter + `
		ORDER BY term ASC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	keywords := make([]*models.Keyword, 0)
	for rows.Next() {
		keyword := &models.Keyword{}
		err := rows.Scan(
			&keyword.ID,
			&keyword.Term,
			&keyword.Category,
			&keyword.IsActive,
			&keyword.CreatedBy,
			&keyword.CreatedAt,
			&keyword.UpdatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		keywords = append(keywords, keyword)
	}

	return keywords, total, rows.Err()
}

// UpdateKeyword updates a keyword's term and category
func (r *KeywordRepository) UpdateKeyword(ctx context.Context, keyword *models.Keyword) error {
	keyword.UpdatedAt = time.Now()

	query := `
		UPDATE keywords
		SET term = $2, category = $3, updated_at = $4
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		keyword.ID,
		keyword.Term,
		keyword.Category,
		keyword.UpdatedAt,
	)

	return err
}

// DeactivateKeyword soft-deletes a keyword. Existing scrape results keep
// their denormalized term; the keyword just stops matching in new jobs.
func (r *KeywordRepository) DeactivateKeyword(ctx context.Context, keywordID string) error {
	query := `UPDATE keywords SET is_active = false, updated_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, keywordID, time.Now())
	return err
}

// Associate links a keyword to a client. Re-associating is a no-op.
func (r *KeywordRepository) Associate(ctx context.Context, clientID, keywordID string) error {
	query := `
		INSERT INTO client_keywords (client_id, keyword_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (client_id, keyword_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, clientID, keywordID, time.Now())
	return err
}

// Dissociate unlinks a keyword from a client. Removing a missing link is a no-op.
func (r *KeywordRepository) Dissociate(ctx context.Context, clientID, keywordID string) error {
	query := `DELETE FROM client_keywords WHERE client_id = $1 AND keyword_id = $2`
	_, err := r.db.ExecContext(ctx, query, clientID, keywordID)
	return err
}

// ListForClient retrieves the keywords associated with a client. When
// activeOnly is set, soft-deleted keywords are excluded; the scrape pipeline
// always passes activeOnly so deactivated terms stop matching immediately.
func (r *KeywordRepository) ListForClient(ctx context.Context, clientID string, activeOnly bool) ([]*models.Keyword, error) {
	query := `
		SELECT k.id, k.term, k.category, k.is_active, k.created_by, k.created_at, k.updated_at
		FROM client_keywords ck
		JOIN keywords k ON k.id = ck.keyword_id
		WHERE ck.client_id = $1
	`
	if activeOnly {
		query += ` AND k.is_active = true`
	}
	query += ` ORDER BY k.term ASC`

	rows, err := r.db.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keywords := make([]*models.Keyword, 0)
	for rows.Next() {
		keyword := &models.Keyword{}
		err := rows.Scan(
			&keyword.ID,
			&keyword.Term,
			&keyword.Category,
			&keyword.IsActive,
			&keyword.CreatedBy,
			&keyword.CreatedAt,
			&keyword.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		keywords = append(keywords, keyword)
	}

	return keywords, rows.Err()
}

// auth_code_repository.go implements data access for invitation codes, their
// usage history, and the atomic consume-with-registration flow.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/civicscan/civicscan/internal/authcode"
	"github.com/civicscan/civicscan/internal/db/models"
)

// AuthCodeRepository handles auth code database operations
type AuthCodeRepository struct {
	db *sql.DB
}

// NewAuthCodeRepository creates a new AuthCodeRepository
func NewAuthCodeRepository(db *sql.DB) *AuthCodeRepository {
	return &AuthCodeRepository{db: db}
}

// CreateCode stores a new invitation code
func (r *AuthCodeRepository) CreateCode(ctx context.Context, code *models.AuthCode) error {
	code.ID = uuid.New().String()
	code.CreatedAt = time.Now()
	code.IsActive = true
	if code.MaxUses < 1 {
		code.MaxUses = 1
	}

	query := `
		INSERT INTO auth_codes (id, code, created_by, expires_at, max_uses, current_uses, is_active, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		code.ID,
		code.Code,
		code.CreatedBy,
		code.ExpiresAt,
		code.MaxUses,
		code.CurrentUses,
		code.IsActive,
		code.Notes,
		code.CreatedAt,
	)

	return err
}

// GetByCode retrieves an auth code by its normalized code string
func (r *AuthCodeRepository) GetByCode(ctx context.Context, code string) (*models.AuthCode, error) {
	query := `
		SELECT id, code, created_by, expires_at, max_uses, current_uses, is_active, notes, created_at
		FROM auth_codes
		WHERE code = $1
	`

	return r.scanCode(r.db.QueryRowContext(ctx, query, authcode.Normalize(code)))
}

// GetByID retrieves an auth code by ID
func (r *AuthCodeRepository) GetByID(ctx context.Context, codeID string) (*models.AuthCode, error) {
	query := `
		SELECT id, code, created_by, expires_at, max_uses, current_uses, is_active, notes, created_at
		FROM auth_codes
		WHERE id = $1
	`

	return r.scanCode(r.db.QueryRowContext(ctx, query, codeID))
}

func (r *AuthCodeRepository) scanCode(row *sql.Row) (*models.AuthCode, error) {
	code := &models.AuthCode{}
	err := row.Scan(
		&code.ID,
		&code.Code,
		&code.CreatedBy,
		&code.ExpiresAt,
		&code.MaxUses,
		&code.CurrentUses,
		&code.IsActive,
		&code.Notes,
		&code.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return code, nil
}

// ListCodes retrieves a paginated list of auth codes with the total count
func (r *AuthCodeRepository) ListCodes(ctx context.Context, limit, offset int) ([]*models.AuthCode, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM auth_codes`
	err := r.db.QueryRowContext(ctx, countQuery).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, code, created_by, expires_at, max_uses, current_uses, is_active, notes, created_at
		FROM auth_codes
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	codes := make([]*models.AuthCode, 0)
	for rows.Next() {
		code := &models.AuthCode{}
		err := rows.Scan(
			&code.ID,
			&code.Code,
			&code.CreatedBy,
			&code.ExpiresAt,
			&code.MaxUses,
			&code.CurrentUses,
			&code.IsActive,
			&code.Notes,
			&code.CreatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		codes = append(codes, code)
	}

	return codes, total, rows.Err()
}

// Revoke deactivates an auth code. Revoking an already-revoked code is a no-op.
func (r *AuthCodeRepository) Revoke(ctx context.Context, codeID string) error {
	query := `UPDATE auth_codes SET is_active = false WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, codeID)
	return err
}

// ListUsages retrieves the redemption history for a code, newest first
func (r *AuthCodeRepository) ListUsages(ctx context.Context, codeID string) ([]*models.CodeUsage, error) {
	query := `
		SELECT id, code_id, user_id, used_at
		FROM auth_code_usages
		WHERE code_id = $1
		ORDER BY used_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, codeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	usages := make([]*models.CodeUsage, 0)
	for rows.Next() {
		usage := &models.CodeUsage{}
		err := rows.Scan(&usage.ID, &usage.CodeID, &usage.UserID, &usage.UsedAt)
		if err != nil {
			return nil, err
		}
		usages = append(usages, usage)
	}

	return usages, rows.Err()
}

// ConsumeWithRegistration creates the user, their credential, increments the
// code's use count, and records the usage in a single transaction. The
// conditional increment is the concurrency guard: two racing registrations on
// a code with one use left cannot both succeed, because only one UPDATE will
// find current_uses < max_uses.
//
// The code's status must be validated by the caller before entry; this method
// re-checks only exhaustion (the one check that can change between validation
// and commit) and returns authcode.ErrExhaustedCode if the increment loses
// the race.
func (r *AuthCodeRepository) ConsumeWithRegistration(ctx context.Context, codeID string, user *models.User, passwordHash string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	user.ID = uuid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	user.IsActive = true

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, username, email, role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.Username, user.Email, user.Role, user.IsActive, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO credentials (id, user_id, provider, password_hash, created_at)
		VALUES ($1, $2, 'local', $3, $4)
	`, uuid.New().String(), user.ID, passwordHash, now)
	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE auth_codes
		SET current_uses = current_uses + 1
		WHERE id = $1 AND current_uses < max_uses
	`, codeID)
	if err != nil {
		return fmt.Errorf("failed to consume auth code: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read consume result: %w", err)
	}
	if affected == 0 {
		return authcode.ErrExhaustedCode
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO auth_code_usages (id, code_id, user_id, used_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.New().String(), codeID, user.ID, now)
	if err != nil {
		return fmt.Errorf("failed to record code usage: %w", err)
	}

	return tx.Commit()
}

// client_repository.go implements data access for municipal clients, their
// source URLs, and per-user favorites.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/civicscan/civicscan/internal/db/models"
)

// ClientRepository handles client database operations
type ClientRepository struct {
	db *sql.DB
}

// NewClientRepository creates a new ClientRepository
func NewClientRepository(db *sql.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

// CreateClient creates a new client
func (r *ClientRepository) CreateClient(ctx context.Context, client *models.Client) error {
	client.ID = uuid.New().String()
	client.CreatedAt = time.Now()
	client.UpdatedAt = time.Now()
	client.IsActive = true

	query := `
		INSERT INTO clients (id, name, description, is_active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		client.ID,
		client.Name,
		client.Description,
		client.IsActive,
		client.CreatedBy,
		client.CreatedAt,
		client.UpdatedAt,
	)

	return err
}

// GetClientByID retrieves a client by ID
func (r *ClientRepository) GetClientByID(ctx context.Context, clientID string) (*models.Client, error) {
	query := `
		SELECT id, name, description, is_active, created_by, created_at, updated_at
		FROM clients
		WHERE id = $1
	`

	client := &models.Client{}
	err := r.db.QueryRowContext(ctx, query, clientID).Scan(
		&client.ID,
		&client.Name,
		&client.Description,
		&client.IsActive,
		&client.CreatedBy,
		&client.CreatedAt,
		&client.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return client, nil
}

// ListClients retrieves a paginated list of clients with the total count.
// Soft-deleted clients are excluded unless includeInactive is set.
func (r *ClientRepository) ListClients(ctx context.Context, limit, offset int, includeInactive bool) ([]*models.Client, int, error) {
	filter := `WHERE is_active = true`
	if includeInactive {
		filter = ``
	}

	var total int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM clients `+filter).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, name, description, is_active, created_by, created_at, updated_at
		FROM clients ` + filter + `
		ORDER BY name ASC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	clients := make([]*models.Client, 0)
	for rows.Next() {
		client := &models.Client{}
		err := rows.Scan(
			&client.ID,
			&client.Name,
			&client.Description,
			&client.IsActive,
			&client.CreatedBy,
			&client.CreatedAt,
			&client.UpdatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		clients = append(clients, client)
	}

	return clients, total, rows.Err()
}

// UpdateClient updates a client's name and description
func (r *ClientRepository) UpdateClient(ctx context.Context, client *models.Client) error {
	client.UpdatedAt = time.Now()

	query := `
		UPDATE clients
		SET name = $2, description = $3, updated_at = $4
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		client.ID,
		client.Name,
		client.Description,
		client.UpdatedAt,
	)

	return err
}

// DeactivateClient soft-deletes a client. Historical jobs keep their referent;
// the client just stops appearing in listings and accepting new jobs.
func (r *ClientRepository) DeactivateClient(ctx context.Context, clientID string) error {
	query := `UPDATE clients SET is_active = false, updated_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, clientID, time.Now())
	return err
}

// AddSource attaches a source URL to a client
func (r *ClientRepository) AddSource(ctx context.Context, source *models.ClientSource) error {
	source.ID = uuid.New().String()
	source.CreatedAt = time.Now()

	query := `
		INSERT INTO client_sources (id, client_id, url, label, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		source.ID,
		source.ClientID,
		source.URL,
		source.Label,
		source.CreatedAt,
	)

	return err
}

// RemoveSource deletes a source URL from a client
func (r *ClientRepository) RemoveSource(ctx context.Context, sourceID string) error {
	query := `DELETE FROM client_sources WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, sourceID)
	return err
}

// ListSources retrieves all source URLs for a client
func (r *ClientRepository) ListSources(ctx context.Context, clientID string) ([]*models.ClientSource, error) {
	query := `
		SELECT id, client_id, url, label, created_at
		FROM client_sources
		WHERE client_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sources := make([]*models.ClientSource, 0)
	for rows.Next() {
		source := &models.ClientSource{}
		err := rows.Scan(&source.ID, &source.ClientID, &source.URL, &source.Label, &source.CreatedAt)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}

	return sources, rows.Err()
}

// Favorite marks a client as favorited by a user. Favoriting an
// already-favorited client is a no-op.
func (r *ClientRepository) Favorite(ctx context.Context, userID, clientID string) error {
	query := `
		INSERT INTO favorites (user_id, client_id, favorited_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, client_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, userID, clientID, time.Now())
	return err
}

// Unfavorite removes a client from a user's favorites. Removing a
// non-favorite is a no-op.
func (r *ClientRepository) Unfavorite(ctx context.Context, userID, clientID string) error {
	query := `DELETE FROM favorites WHERE user_id = $1 AND client_id = $2`
	_, err := r.db.ExecContext(ctx, query, userID, clientID)
	return err
}

// ListFavorites retrieves a user's favorited clients, most recently
// favorited first. Soft-deleted clients are excluded.
func (r *ClientRepository) ListFavorites(ctx context.Context, userID string) ([]*models.Client, error) {
	query := `
		SELECT c.id, c.name, c.description, c.is_active, c.created_by, c.created_at, c.updated_at
		FROM favorites f
		JOIN clients c ON c.id = f.client_id
		WHERE f.user_id = $1 AND c.is_active = true
		ORDER BY f.favorited_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := make([]*models.Client, 0)
	for rows.Next() {
		client := &models.Client{}
		err := rows.Scan(
			&client.ID,
			&client.Name,
			&client.Description,
			&client.IsActive,
			&client.CreatedBy,
			&client.CreatedAt,
			&client.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}

	return clients, rows.Err()
}

// IsFavorite reports whether a user has favorited a client
func (r *ClientRepository) IsFavorite(ctx context.Context, userID, clientID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM favorites WHERE user_id = $1 AND client_id = $2)`
	err := r.db.QueryRowContext(ctx, query, userID, clientID).Scan(&exists)
	return exists, err
}

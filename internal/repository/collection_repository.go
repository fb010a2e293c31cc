package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/linkshelf/server/internal/models"
)

// CollectionRepository implements CollectionRepo for PostgreSQL/SQLite
type CollectionRepository struct {
	db DBTX
}

// NewCollectionRepository creates a new CollectionRepository
func NewCollectionRepository(db DBTX) *CollectionRepository {
	return &CollectionRepository{db: db}
}

const collectionColumns = `id, user_id, name, visibility, state, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCollection(row rowScanner) (*models.Collection, error) {
	var c models.Collection
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Visibility, &c.State, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByID returns the collection in any state, or nil when it does not exist
func (r *CollectionRepository) GetByID(ctx context.Context, id string) (*models.Collection, error) {
	query := `SELECT ` + collectionColumns + ` FROM collections WHERE id = $1`

	c, err := scanCollection(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListByOwner returns the active collections of userID, newest first, starting
// after the cursor.
func (r *CollectionRepository) ListByOwner(ctx context.Context, userID string, publicOnly bool, after *models.Cursor, limit int) ([]*models.Collection, error) {
	query := `SELECT ` + collectionColumns + ` FROM collections
			  WHERE user_id = $1 AND state = $2`
	args := []interface{}{userID, models.StateActive}

	if publicOnly {
		query += ` AND visibility = $3`
		args = append(args, models.VisibilityPublic)
	}
	if after != nil {
		n := len(args)
		query += ` AND (created_at < $` + itoa(n+1) + ` OR (created_at = $` + itoa(n+1) + ` AND id < $` + itoa(n+2) + `))`
		args = append(args, after.CreatedAt, after.ID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT $` + itoa(len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var collections []*models.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		collections = append(collections, c)
	}
	return collections, rows.Err()
}

func (r *CollectionRepository) Add(ctx context.Context, c *models.Collection) error {
	query := `INSERT INTO collections (id, user_id, name, visibility, state, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.UserID, c.Name, c.Visibility, c.State, c.CreatedAt, c.UpdatedAt)
	return err
}

// Update persists the mutable fields of a collection. Visibility is not among them.
func (r *CollectionRepository) Update(ctx context.Context, c *models.Collection) error {
	query := `UPDATE collections SET name = $1, updated_at = $2 WHERE id = $3`

	_, err := r.db.ExecContext(ctx, query, c.Name, c.UpdatedAt, c.ID)
	return err
}

// SoftDelete marks an active collection deleted. Items are left untouched.
func (r *CollectionRepository) SoftDelete(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `UPDATE collections SET state = $1, updated_at = $2 WHERE id = $3 AND state = $4`

	result, err := r.db.ExecContext(ctx, query, models.StateDeleted, at, id, models.StateActive)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

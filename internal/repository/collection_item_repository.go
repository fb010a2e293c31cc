package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/linkshelf/server/internal/models"
)

// CollectionItemRepository implements CollectionItemRepo for PostgreSQL/SQLite
type CollectionItemRepository struct {
	db DBTX
}

// NewCollectionItemRepository creates a new CollectionItemRepository
func NewCollectionItemRepository(db DBTX) *CollectionItemRepository {
	return &CollectionItemRepository{db: db}
}

const collectionItemColumns = `id, collection_id, user_id, description, state, item_data_id, created_at, updated_at`

func scanCollectionItem(row rowScanner) (*models.CollectionItem, error) {
	var i models.CollectionItem
	if err := row.Scan(&i.ID, &i.CollectionID, &i.UserID, &i.Description, &i.State,
		&i.ItemDataID, &i.CreatedAt, &i.UpdatedAt); err != nil {
		return nil, err
	}
	return &i, nil
}

// GetByID returns the item in any state, or nil when it does not exist
func (r *CollectionItemRepository) GetByID(ctx context.Context, id string) (*models.CollectionItem, error) {
	query := `SELECT ` + collectionItemColumns + ` FROM collection_items WHERE id = $1`

	item, err := scanCollectionItem(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ListByCollection returns active items of a collection, newest first
func (r *CollectionItemRepository) ListByCollection(ctx context.Context, collectionID string, after *models.Cursor, limit int) ([]*models.CollectionItem, error) {
	query := `SELECT ` + collectionItemColumns + ` FROM collection_items
			  WHERE collection_id = $1 AND state = $2`
	args := []interface{}{collectionID, models.StateActive}

	if after != nil {
		query += ` AND (created_at < $3 OR (created_at = $3 AND id < $4))`
		args = append(args, after.CreatedAt, after.ID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT $` + itoa(len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.CollectionItem
	for rows.Next() {
		item, err := scanCollectionItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *CollectionItemRepository) Add(ctx context.Context, item *models.CollectionItem) error {
	query := `INSERT INTO collection_items (id, collection_id, user_id, description, state, item_data_id, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		item.ID, item.CollectionID, item.UserID, item.Description, item.State,
		item.ItemDataID, item.CreatedAt, item.UpdatedAt)
	return err
}

func (r *CollectionItemRepository) UpdateDescription(ctx context.Context, item *models.CollectionItem) error {
	query := `UPDATE collection_items SET description = $1, updated_at = $2 WHERE id = $3`

	_, err := r.db.ExecContext(ctx, query, item.Description, item.UpdatedAt, item.ID)
	return err
}

// SoftDelete marks an active item deleted. The item data's post_count is not changed.
func (r *CollectionItemRepository) SoftDelete(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `UPDATE collection_items SET state = $1, updated_at = $2 WHERE id = $3 AND state = $4`

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

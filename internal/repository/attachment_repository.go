package repository

import (
	"context"
	"database/sql"

	"github.com/linkshelf/server/internal/models"
)

// AttachmentRepository implements AttachmentRepo for PostgreSQL/SQLite
type AttachmentRepository struct {
	db DBTX
}

// NewAttachmentRepository creates a new AttachmentRepository
func NewAttachmentRepository(db DBTX) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

func (r *AttachmentRepository) GetByID(ctx context.Context, id string) (*models.Attachment, error) {
	query := `SELECT id, uuid, content_type, size, checksum, stored_path, orientation, created_at
			  FROM attachments WHERE id = $1`

	var a models.Attachment
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.UUID, &a.ContentType, &a.Size, &a.Checksum, &a.StoredPath, &a.Orientation, &a.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AttachmentRepository) Add(ctx context.Context, a *models.Attachment) error {
	query := `INSERT INTO attachments (id, uuid, content_type, size, checksum, stored_path, orientation, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.UUID, a.ContentType, a.Size, a.Checksum, a.StoredPath, a.Orientation, a.CreatedAt)
	return err
}

func (r *AttachmentRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/linkshelf/server/internal/models"
)

// ItemDataRepository implements ItemDataRepo for PostgreSQL/SQLite.
// Counter updates are single atomic statements; callers pair the upvote set
// change with its counter update inside one transaction.
type ItemDataRepository struct {
	db DBTX
}

// NewItemDataRepository creates a new ItemDataRepository
func NewItemDataRepository(db DBTX) *ItemDataRepository {
	return &ItemDataRepository{db: db}
}

const itemDataSelect = `SELECT d.id, d.link_url, d.item_type, d.post_count, d.upvote_count, d.root_item_id,
		  d.image_attachment_id, d.image_pending, d.html_preview, d.requested_image_url, d.abandoned_at,
		  d.created_at, d.updated_at,
		  a.id, a.uuid, a.content_type, a.size, a.checksum, a.stored_path, a.orientation, a.created_at
		  FROM item_data d LEFT JOIN attachments a ON a.id = d.image_attachment_id`

func scanItemData(row rowScanner) (*models.ItemData, error) {
	var d models.ItemData
	var (
		attID, attUUID, attType, attChecksum, attPath sql.NullString
		attSize, attOrientation                       sql.NullInt64
		attCreated                                    sql.NullTime
	)

	if err := row.Scan(
		&d.ID, &d.LinkURL, &d.ItemType, &d.PostCount, &d.UpvoteCount, &d.RootItemID,
		&d.ImageAttachmentID, &d.ImagePending, &d.HTMLPreview, &d.RequestedImageURL, &d.AbandonedAt,
		&d.CreatedAt, &d.UpdatedAt,
		&attID, &attUUID, &attType, &attSize, &attChecksum, &attPath, &attOrientation, &attCreated,
	); err != nil {
		return nil, err
	}

	if attID.Valid {
		d.Image = &models.Attachment{
			ID:          attID.String,
			UUID:        attUUID.String,
			ContentType: attType.String,
			Size:        attSize.Int64,
			Checksum:    attChecksum.String,
			StoredPath:  attPath.String,
			Orientation: int(attOrientation.Int64),
			CreatedAt:   attCreated.Time,
		}
	}
	return &d, nil
}

func (r *ItemDataRepository) GetByID(ctx context.Context, id string) (*models.ItemData, error) {
	d, err := scanItemData(r.db.QueryRowContext(ctx, itemDataSelect+` WHERE d.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *ItemDataRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*models.ItemData, error) {
	result := make(map[string]*models.ItemData, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, itemDataSelect+` WHERE d.id IN (`+placeholders(1, len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		d, err := scanItemData(rows)
		if err != nil {
			return nil, err
		}
		result[d.ID] = d
	}
	return result, rows.Err()
}

// GetByLinkURL looks up data by its normalized link
func (r *ItemDataRepository) GetByLinkURL(ctx context.Context, linkURL string) (*models.ItemData, error) {
	d, err := scanItemData(r.db.QueryRowContext(ctx, itemDataSelect+` WHERE d.link_url = $1`, linkURL))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// InsertIfAbsent inserts d unless a record for the same link already exists.
// It reports whether the row was inserted.
func (r *ItemDataRepository) InsertIfAbsent(ctx context.Context, d *models.ItemData) (bool, error) {
	query := `INSERT INTO item_data (id, link_url, item_type, post_count, upvote_count, root_item_id,
			  image_pending, requested_image_url, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			  ON CONFLICT (link_url) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query,
		d.ID, d.LinkURL, d.ItemType, d.PostCount, d.UpvoteCount, d.RootItemID,
		d.ImagePending, d.RequestedImageURL, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *ItemDataRepository) IncrementPostCount(ctx context.Context, id string) error {
	query := `UPDATE item_data SET post_count = post_count + 1, updated_at = $1 WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, models.Now(), id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrItemDataNotFound
	}
	return nil
}

// CompleteEnrichment leaves the pending state, writing the result only if the
// record is still pending. It reports false when a concurrent run got there first.
func (r *ItemDataRepository) CompleteEnrichment(ctx context.Context, id string, result *models.EnrichmentResult) (bool, error) {
	query := `UPDATE item_data SET
			  item_type = COALESCE($1, item_type),
			  html_preview = COALESCE($2, html_preview),
			  image_attachment_id = COALESCE($3, image_attachment_id),
			  image_pending = $4,
			  updated_at = $5
			  WHERE id = $6 AND image_pending = $7`

	var itemType interface{}
	if result.ItemType != "" {
		itemType = result.ItemType
	}

	res, err := r.db.ExecContext(ctx, query,
		itemType, result.HTMLPreview, result.ImageAttachmentID, false, models.Now(), id, true)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ListPending returns records still pending that were last touched before
// updatedBefore and have not been abandoned, oldest first.
func (r *ItemDataRepository) ListPending(ctx context.Context, updatedBefore time.Time, limit int) ([]*models.ItemData, error) {
	query := itemDataSelect + ` WHERE d.image_pending = $1 AND d.abandoned_at IS NULL AND d.updated_at < $2
			  ORDER BY d.updated_at ASC LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, true, updatedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []*models.ItemData
	for rows.Next() {
		d, err := scanItemData(rows)
		if err != nil {
			return nil, err
		}
		pending = append(pending, d)
	}
	return pending, rows.Err()
}

// Touch bumps updated_at so the pending sweeper leaves the record alone for a while
func (r *ItemDataRepository) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE item_data SET updated_at = $1 WHERE id = $2`, at, id)
	return err
}

// MarkAbandoned records that the job system gave up on a pending record
func (r *ItemDataRepository) MarkAbandoned(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE item_data SET abandoned_at = $1, updated_at = $1 WHERE id = $2 AND image_pending = $3`

	_, err := r.db.ExecContext(ctx, query, at, id, true)
	return err
}

// AddUpvote inserts into the upvote set and bumps the counter when the set
// changed. Duplicates are a no-op reported as false.
func (r *ItemDataRepository) AddUpvote(ctx context.Context, upvote *models.Upvote) (bool, error) {
	query := `INSERT INTO item_data_upvotes (item_data_id, user_id, created_at)
			  VALUES ($1, $2, $3)
			  ON CONFLICT (item_data_id, user_id) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query, upvote.ItemDataID, upvote.UserID, upvote.CreatedAt)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, nil
	}

	if _, err := r.db.ExecContext(ctx,
		`UPDATE item_data SET upvote_count = upvote_count + 1 WHERE id = $1`, upvote.ItemDataID); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveUpvote deletes from the upvote set and decrements the counter when
// the set changed. Removing a missing upvote is a no-op reported as false.
func (r *ItemDataRepository) RemoveUpvote(ctx context.Context, itemDataID, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM item_data_upvotes WHERE item_data_id = $1 AND user_id = $2`, itemDataID, userID)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, nil
	}

	if _, err := r.db.ExecContext(ctx,
		`UPDATE item_data SET upvote_count = upvote_count - 1 WHERE id = $1 AND upvote_count > 0`, itemDataID); err != nil {
		return false, err
	}
	return true, nil
}

func (r *ItemDataRepository) GetUpvote(ctx context.Context, itemDataID, userID string) (*models.Upvote, error) {
	query := `SELECT item_data_id, user_id, created_at FROM item_data_upvotes
			  WHERE item_data_id = $1 AND user_id = $2`

	var u models.Upvote
	err := r.db.QueryRowContext(ctx, query, itemDataID, userID).Scan(&u.ItemDataID, &u.UserID, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpvotedBy returns the subset of itemDataIDs the user has upvoted
func (r *ItemDataRepository) UpvotedBy(ctx context.Context, userID string, itemDataIDs []string) (map[string]bool, error) {
	result := make(map[string]bool, len(itemDataIDs))
	if userID == "" || len(itemDataIDs) == 0 {
		return result, nil
	}

	args := make([]interface{}, 0, len(itemDataIDs)+1)
	args = append(args, userID)
	for _, id := range itemDataIDs {
		args = append(args, id)
	}

	query := `SELECT item_data_id FROM item_data_upvotes
			  WHERE user_id = $1 AND item_data_id IN (` + placeholders(2, len(itemDataIDs)) + `)`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result[id] = true
	}
	return result, rows.Err()
}

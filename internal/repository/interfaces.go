package repository

import (
	"context"
	"time"

	"github.com/linkshelf/server/internal/models"
)

// CollectionRepo defines persistence operations for collections
type CollectionRepo interface {
	GetByID(ctx context.Context, id string) (*models.Collection, error)
	ListByOwner(ctx context.Context, userID string, publicOnly bool, after *models.Cursor, limit int) ([]*models.Collection, error)
	Add(ctx context.Context, c *models.Collection) error
	Update(ctx context.Context, c *models.Collection) error
	SoftDelete(ctx context.Context, id string, at time.Time) (bool, error)
}

// CollectionItemRepo defines persistence operations for collection items
type CollectionItemRepo interface {
	GetByID(ctx context.Context, id string) (*models.CollectionItem, error)
	ListByCollection(ctx context.Context, collectionID string, after *models.Cursor, limit int) ([]*models.CollectionItem, error)
	Add(ctx context.Context, item *models.CollectionItem) error
	UpdateDescription(ctx context.Context, item *models.CollectionItem) error
	SoftDelete(ctx context.Context, id string, at time.Time) (bool, error)
}

// ItemDataRepo defines persistence operations for deduplicated item data and
// its upvote set
type ItemDataRepo interface {
	GetByID(ctx context.Context, id string) (*models.ItemData, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*models.ItemData, error)
	GetByLinkURL(ctx context.Context, linkURL string) (*models.ItemData, error)
	InsertIfAbsent(ctx context.Context, d *models.ItemData) (bool, error)
	IncrementPostCount(ctx context.Context, id string) error
	CompleteEnrichment(ctx context.Context, id string, result *models.EnrichmentResult) (bool, error)
	ListPending(ctx context.Context, updatedBefore time.Time, limit int) ([]*models.ItemData, error)
	Touch(ctx context.Context, id string, at time.Time) error
	MarkAbandoned(ctx context.Context, id string, at time.Time) error

	AddUpvote(ctx context.Context, upvote *models.Upvote) (bool, error)
	RemoveUpvote(ctx context.Context, itemDataID, userID string) (bool, error)
	GetUpvote(ctx context.Context, itemDataID, userID string) (*models.Upvote, error)
	UpvotedBy(ctx context.Context, userID string, itemDataIDs []string) (map[string]bool, error)
}

// AttachmentRepo defines persistence operations for attachment metadata
type AttachmentRepo interface {
	GetByID(ctx context.Context, id string) (*models.Attachment, error)
	Add(ctx context.Context, a *models.Attachment) error
	Delete(ctx context.Context, id string) (bool, error)
}

// Store groups the repositories and runs them inside a transaction when asked
type Store interface {
	Collections() CollectionRepo
	Items() CollectionItemRepo
	ItemData() ItemDataRepo
	Attachments() AttachmentRepo
	Transaction(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
}

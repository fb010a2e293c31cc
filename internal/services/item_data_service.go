package services

import (
	"context"
	"fmt"

	"github.com/linkshelf/server/internal/models"
	"github.com/linkshelf/server/internal/repository"
)

// Dedup paths taken by ResolveForCreate
const (
	ResolvedNew      = "new"
	ResolvedExisting = "existing"
	ResolvedClone    = "clone"
)

// Resolution is the ItemData a new item will point at
type Resolution struct {
	Data  *models.ItemData
	IsNew bool
	Path  string
}

// ItemDataService owns the deduplicated link metadata: resolving links to
// shared records, reference counting and the upvote set
type ItemDataService struct {
	store   repository.Store
	baseURL string
}

// NewItemDataService creates a new ItemDataService. baseURL is the public
// origin whose item detail URLs are treated as clone requests.
func NewItemDataService(store repository.Store, baseURL string) *ItemDataService {
	return &ItemDataService{store: store, baseURL: baseURL}
}

// ResolveForCreate finds or creates the ItemData for a new item, running on
// tx so that it commits or rolls back together with the item insert.
//
// A link pointing at this server's item detail URL clones that item's data. Any other
// link is normalized and deduplicated on the normalized form. Only a freshly
// inserted record reports IsNew and needs enrichment.
func (s *ItemDataService) ResolveForCreate(ctx context.Context, tx repository.Store, actorID, newItemID, link string, imageURL *string) (*Resolution, error) {
	if itemID, ok := models.ParseItemReference(link, s.baseURL); ok {
		return s.resolveClone(ctx, tx, actorID, itemID)
	}

	normalized, err := models.NormalizeLink(link)
	if err != nil {
		return nil, err
	}

	data := models.NewItemData(normalized, newItemID)
	data.RequestedImageURL = imageURL

	inserted, err := tx.ItemData().InsertIfAbsent(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to insert item data: %w", err)
	}
	if inserted {
		return &Resolution{Data: data, IsNew: true, Path: ResolvedNew}, nil
	}

	existing, err := tx.ItemData().GetByLinkURL(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to get item data: %w", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("item data for %s vanished after conflict", normalized)
	}
	if err := tx.ItemData().IncrementPostCount(ctx, existing.ID); err != nil {
		return nil, fmt.Errorf("failed to increment post count: %w", err)
	}
	existing.PostCount++

	return &Resolution{Data: existing, Path: ResolvedExisting}, nil
}

func (s *ItemDataService) resolveClone(ctx context.Context, tx repository.Store, actorID, itemID string) (*Resolution, error) {
	source, err := tx.Items().GetByID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	if source == nil || !source.IsActive() {
		return nil, models.ErrItemNotFound
	}

	collection, err := tx.Collections().GetByID(ctx, source.CollectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	if collection == nil || !collection.IsActive() {
		return nil, models.ErrItemNotFound
	}

	if !models.CanAccessItem(actorID, collection, source, models.OpRead) {
		return nil, models.NewNotAuthorized("")
	}

	data, err := tx.ItemData().GetByID(ctx, source.ItemDataID)
	if err != nil {
		return nil, fmt.Errorf("failed to get item data: %w", err)
	}
	if data == nil {
		return nil, models.ErrItemDataNotFound
	}

	if err := tx.ItemData().IncrementPostCount(ctx, data.ID); err != nil {
		return nil, fmt.Errorf("failed to increment post count: %w", err)
	}
	data.PostCount++

	return &Resolution{Data: data, Path: ResolvedClone}, nil
}

// Upvote adds userID to the data's upvote set. A repeated upvote changes
// nothing and returns the original vote.
func (s *ItemDataService) Upvote(ctx context.Context, itemDataID, userID string) (*models.Upvote, bool, error) {
	vote := &models.Upvote{ItemDataID: itemDataID, UserID: userID, CreatedAt: models.Now()}

	var changed bool
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		changed, err = tx.ItemData().AddUpvote(ctx, vote)
		if err != nil || changed {
			return err
		}

		existing, err := tx.ItemData().GetUpvote(ctx, itemDataID, userID)
		if err != nil {
			return err
		}
		if existing != nil {
			vote = existing
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to upvote: %w", err)
	}
	return vote, changed, nil
}

// RemoveUpvote removes userID from the upvote set. Removing a vote that was
// never cast succeeds without changes.
func (s *ItemDataService) RemoveUpvote(ctx context.Context, itemDataID, userID string) (bool, error) {
	var changed bool
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		changed, err = tx.ItemData().RemoveUpvote(ctx, itemDataID, userID)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to remove upvote: %w", err)
	}
	return changed, nil
}

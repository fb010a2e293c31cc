package services

import (
	"context"
	"fmt"

	"github.com/linkshelf/server/internal/models"
	"github.com/linkshelf/server/internal/observability"
	"github.com/linkshelf/server/internal/queue"
	"github.com/linkshelf/server/internal/repository"
	"go.opentelemetry.io/otel/trace"
)

// CollectionService handles collection and item business logic
type CollectionService struct {
	store       repository.Store
	itemData    *ItemDataService
	queue       queue.Queue
	attachments AttachmentStore
	metrics     *observability.Metrics
	baseURL     string
	log         *observability.Logger
}

// NewCollectionService creates a new CollectionService
func NewCollectionService(
	store repository.Store,
	q queue.Queue,
	attachments AttachmentStore,
	metrics *observability.Metrics,
	baseURL string,
) *CollectionService {
	return &CollectionService{
		store:       store,
		itemData:    NewItemDataService(store, baseURL),
		queue:       q,
		attachments: attachments,
		metrics:     metrics,
		baseURL:     baseURL,
		log:         observability.GetLogger().Component("collections"),
	}
}

// CreateCollection creates a new collection owned by the actor
func (s *CollectionService) CreateCollection(ctx context.Context, actorID string, req *models.CreateCollectionRequest) (*models.Collection, error) {
	if actorID == "" {
		return nil, models.NewNotAuthorized("create collections")
	}

	collection, err := models.NewCollection(actorID, req.Name, req.Visibility)
	if err != nil {
		return nil, err
	}

	if err := s.store.Collections().Add(ctx, collection); err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	return collection, nil
}

// GetCollection returns a collection the actor can read
func (s *CollectionService) GetCollection(ctx context.Context, actorID, id string) (*models.Collection, error) {
	return s.visibleCollection(ctx, s.store, actorID, id)
}

// UpdateCollection renames a collection. A patch that tries to change the
// visibility is rejected without writing anything.
func (s *CollectionService) UpdateCollection(ctx context.Context, actorID, id string, req *models.UpdateCollectionRequest) (*models.Collection, error) {
	collection, err := s.writableCollection(ctx, s.store, actorID, id)
	if err != nil {
		return nil, err
	}

	if err := collection.ApplyUpdate(req); err != nil {
		return nil, err
	}

	if err := s.store.Collections().Update(ctx, collection); err != nil {
		return nil, fmt.Errorf("failed to update collection: %w", err)
	}
	return collection, nil
}

// DeleteCollection soft deletes a collection. Its items keep their state.
func (s *CollectionService) DeleteCollection(ctx context.Context, actorID, id string) error {
	if _, err := s.writableCollection(ctx, s.store, actorID, id); err != nil {
		return err
	}

	deleted, err := s.store.Collections().SoftDelete(ctx, id, models.Now())
	if err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	if !deleted {
		return models.ErrCollectionNotFound
	}
	return nil
}

// ListCollections returns one page of ownerID's collections as seen by the
// actor: everything for the owner, public collections for everyone else
func (s *CollectionService) ListCollections(ctx context.Context, actorID, ownerID, cursor string, perPage int) (*models.CollectionPage, error) {
	after, err := models.DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	limit := models.ClampPageSize(perPage)

	collections, err := s.store.Collections().ListByOwner(ctx, ownerID, actorID != ownerID, after, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}

	page := &models.CollectionPage{}
	for _, c := range collections {
		if len(page.Collections) == limit {
			last := page.Collections[limit-1]
			page.Next = &models.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
			break
		}
		if models.CanAccess(actorID, c, models.OpRead) {
			page.Collections = append(page.Collections, c)
		}
	}
	return page, nil
}

// CreateItem adds a link to a collection. The ItemData is resolved and the
// item inserted in one transaction; enrichment is enqueued after commit only
// for newly created ItemData.
func (s *CollectionService) CreateItem(ctx context.Context, actorID, collectionID string, req *models.CreateItemRequest) (*models.ItemView, error) {
	ctx, span := observability.StartServiceSpan(ctx, "CollectionService", "CreateItem",
		observability.UserID(actorID), observability.CollectionID(collectionID))
	defer span.End()

	var imageURL *string
	if req.ImageURL != nil && *req.ImageURL != "" {
		validated, err := models.ValidateImageURL(*req.ImageURL)
		if err != nil {
			return nil, err
		}
		imageURL = &validated
	}

	var (
		item       *models.CollectionItem
		resolution *Resolution
	)
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		if _, err := s.writableCollection(ctx, tx, actorID, collectionID); err != nil {
			return err
		}

		var err error
		item, err = models.NewCollectionItem(collectionID, actorID, req.Description)
		if err != nil {
			return err
		}

		resolution, err = s.itemData.ResolveForCreate(ctx, tx, actorID, item.ID, req.LinkURL, imageURL)
		if err != nil {
			return err
		}
		item.ItemDataID = resolution.Data.ID

		if err := tx.Items().Add(ctx, item); err != nil {
			return fmt.Errorf("failed to create item: %w", err)
		}
		return nil
	})
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	s.metrics.RecordItemCreated(ctx, resolution.Path)
	if resolution.IsNew {
		s.enqueue(ctx, span, resolution.Data.ID, imageURL)
	}

	observability.SetSuccess(span)
	return &models.ItemView{Item: item, Data: resolution.Data}, nil
}

// enqueue hands a new ItemData to the enrichment worker. A failure leaves the
// record pending for the sweeper.
func (s *CollectionService) enqueue(ctx context.Context, span trace.Span, itemDataID string, imageURL *string) {
	err := s.queue.Enqueue(ctx, queue.NewEnrichItemDataJob(itemDataID, imageURL))
	s.metrics.RecordEnqueue(ctx, "create", err == nil)
	if err != nil {
		observability.AddEvent(span, "enqueue_failed")
		s.log.WithContext(ctx).WithError(err).WithField("item_data_id", itemDataID).
			Error("Failed to enqueue enrichment job, leaving it to the sweeper")
	}
}

// GetItem returns an item the actor can read
func (s *CollectionService) GetItem(ctx context.Context, actorID, itemID string) (*models.ItemView, error) {
	item, _, err := s.visibleItem(ctx, actorID, itemID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, actorID, item)
}

// ListItems returns one page of a readable collection's active items
func (s *CollectionService) ListItems(ctx context.Context, actorID, collectionID, cursor string, perPage int) (*models.ItemPage, error) {
	after, err := models.DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	limit := models.ClampPageSize(perPage)

	if _, err := s.visibleCollection(ctx, s.store, actorID, collectionID); err != nil {
		return nil, err
	}

	items, err := s.store.Items().ListByCollection(ctx, collectionID, after, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}

	page := &models.ItemPage{}
	if len(items) > limit {
		items = items[:limit]
		last := items[limit-1]
		page.Next = &models.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ItemDataID)
	}

	data, err := s.store.ItemData().GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get item data: %w", err)
	}
	upvoted, err := s.store.ItemData().UpvotedBy(ctx, actorID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get upvotes: %w", err)
	}

	for _, item := range items {
		d, ok := data[item.ItemDataID]
		if !ok {
			s.log.WithContext(ctx).WithField("item_id", item.ID).Warn("Item references missing item data")
			continue
		}
		page.Items = append(page.Items, &models.ItemView{
			Item:          item,
			Data:          d,
			UpvotedByUser: upvoted[item.ItemDataID],
		})
	}
	return page, nil
}

// UpdateItem changes an item's description. Link, type and image fields in
// the patch are ignored.
func (s *CollectionService) UpdateItem(ctx context.Context, actorID, itemID string, req *models.UpdateItemRequest) (*models.ItemView, error) {
	item, err := s.writableItem(ctx, actorID, itemID)
	if err != nil {
		return nil, err
	}

	item.ApplyUpdate(req)
	if err := s.store.Items().UpdateDescription(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to update item: %w", err)
	}
	return s.view(ctx, actorID, item)
}

// DeleteItem soft deletes an item. The shared post count is left as is.
func (s *CollectionService) DeleteItem(ctx context.Context, actorID, itemID string) error {
	if _, err := s.writableItem(ctx, actorID, itemID); err != nil {
		return err
	}

	deleted, err := s.store.Items().SoftDelete(ctx, itemID, models.Now())
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if !deleted {
		return models.ErrItemNotFound
	}
	return nil
}

// UpvoteItem adds the actor's upvote to the item's shared data
func (s *CollectionService) UpvoteItem(ctx context.Context, actorID, itemID string) (*models.UpvoteResponse, error) {
	ctx, span := observability.StartServiceSpan(ctx, "CollectionService", "UpvoteItem",
		observability.UserID(actorID), observability.ItemID(itemID))
	defer span.End()

	item, data, err := s.upvotableItem(ctx, actorID, itemID)
	if err != nil {
		return nil, err
	}

	vote, changed, err := s.itemData.Upvote(ctx, data.ID, actorID)
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.RecordUpvote(ctx, true)
	}

	return &models.UpvoteResponse{
		ItemID:     item.ID,
		RootItemID: data.RootItemID,
		UserID:     vote.UserID,
		CreatedAt:  vote.CreatedAt,
	}, nil
}

// RemoveUpvote withdraws the actor's upvote. Withdrawing a vote that was
// never cast succeeds.
func (s *CollectionService) RemoveUpvote(ctx context.Context, actorID, itemID string) error {
	_, data, err := s.upvotableItem(ctx, actorID, itemID)
	if err != nil {
		return err
	}

	changed, err := s.itemData.RemoveUpvote(ctx, data.ID, actorID)
	if err != nil {
		return err
	}
	if changed {
		s.metrics.RecordUpvote(ctx, false)
	}
	return nil
}

// Present converts a view into its API shape
func (s *CollectionService) Present(v *models.ItemView) *models.ItemResponse {
	var imageURL *string
	if v.Data.Image != nil {
		u := s.attachments.ThumbnailURL(v.Data.Image, DefaultThumbnailSize)
		imageURL = &u
	}
	return models.NewItemResponse(v, imageURL, models.ItemURL(s.baseURL, v.Item.ID))
}

func (s *CollectionService) view(ctx context.Context, actorID string, item *models.CollectionItem) (*models.ItemView, error) {
	data, err := s.store.ItemData().GetByID(ctx, item.ItemDataID)
	if err != nil {
		return nil, fmt.Errorf("failed to get item data: %w", err)
	}
	if data == nil {
		return nil, models.ErrItemDataNotFound
	}

	upvoted, err := s.store.ItemData().UpvotedBy(ctx, actorID, []string{data.ID})
	if err != nil {
		return nil, fmt.Errorf("failed to get upvotes: %w", err)
	}
	return &models.ItemView{Item: item, Data: data, UpvotedByUser: upvoted[data.ID]}, nil
}

// visibleCollection loads an active collection the actor can read. Anything
// else is reported as not found.
func (s *CollectionService) visibleCollection(ctx context.Context, store repository.Store, actorID, id string) (*models.Collection, error) {
	collection, err := store.Collections().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	if collection == nil || !collection.IsActive() || !models.CanAccess(actorID, collection, models.OpRead) {
		return nil, models.ErrCollectionNotFound
	}
	return collection, nil
}

func (s *CollectionService) writableCollection(ctx context.Context, store repository.Store, actorID, id string) (*models.Collection, error) {
	collection, err := s.visibleCollection(ctx, store, actorID, id)
	if err != nil {
		return nil, err
	}
	if !models.CanAccess(actorID, collection, models.OpWrite) {
		return nil, models.NewNotAuthorized("")
	}
	return collection, nil
}

// visibleItem loads an active item in an active collection the actor can read
func (s *CollectionService) visibleItem(ctx context.Context, actorID, itemID string) (*models.CollectionItem, *models.Collection, error) {
	item, err := s.store.Items().GetByID(ctx, itemID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get item: %w", err)
	}
	if item == nil || !item.IsActive() {
		return nil, nil, models.ErrItemNotFound
	}

	collection, err := s.store.Collections().GetByID(ctx, item.CollectionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get collection: %w", err)
	}
	if collection == nil || !collection.IsActive() || !models.CanAccessItem(actorID, collection, item, models.OpRead) {
		return nil, nil, models.ErrItemNotFound
	}
	return item, collection, nil
}

func (s *CollectionService) writableItem(ctx context.Context, actorID, itemID string) (*models.CollectionItem, error) {
	item, collection, err := s.visibleItem(ctx, actorID, itemID)
	if err != nil {
		return nil, err
	}
	if !models.CanAccessItem(actorID, collection, item, models.OpWrite) {
		return nil, models.NewNotAuthorized("")
	}
	return item, nil
}

func (s *CollectionService) upvotableItem(ctx context.Context, actorID, itemID string) (*models.CollectionItem, *models.ItemData, error) {
	item, collection, err := s.visibleItem(ctx, actorID, itemID)
	if err != nil {
		return nil, nil, err
	}
	if actorID == "" || !models.CanAccessItem(actorID, collection, item, models.OpUpvote) {
		return nil, nil, models.NewNotAuthorized("upvote")
	}

	data, err := s.store.ItemData().GetByID(ctx, item.ItemDataID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get item data: %w", err)
	}
	if data == nil {
		return nil, nil, models.ErrItemDataNotFound
	}
	return item, data, nil
}

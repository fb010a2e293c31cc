package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/linkshelf/server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLStore {
	t.Helper()

	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewSQLStore(db, nil)
}

func addCollection(t *testing.T, store *SQLStore, userID, visibility string, createdAt time.Time) *models.Collection {
	t.Helper()

	c, err := models.NewCollection(userID, "Links", visibility)
	require.NoError(t, err)
	c.CreatedAt = createdAt
	c.UpdatedAt = createdAt
	require.NoError(t, store.Collections().Add(context.Background(), c))
	return c
}

func addItemWithData(t *testing.T, store *SQLStore, collectionID, link string, createdAt time.Time) (*models.CollectionItem, *models.ItemData) {
	t.Helper()
	ctx := context.Background()

	item, err := models.NewCollectionItem(collectionID, "user-1", "desc")
	require.NoError(t, err)
	item.CreatedAt = createdAt
	item.UpdatedAt = createdAt

	data := models.NewItemData(link, item.ID)
	inserted, err := store.ItemData().InsertIfAbsent(ctx, data)
	require.NoError(t, err)
	require.True(t, inserted)

	item.ItemDataID = data.ID
	require.NoError(t, store.Items().Add(ctx, item))
	return item, data
}

func TestCollectionRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("adds and gets collection", func(t *testing.T) {
		store := setupTestStore(t)
		c := addCollection(t, store, "user-1", "public", models.Now())

		got, err := store.Collections().GetByID(ctx, c.ID)

		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, c.Name, got.Name)
		assert.Equal(t, models.VisibilityPublic, got.Visibility)
		assert.Equal(t, models.StateActive, got.State)
		assert.True(t, c.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("returns nil for missing collection", func(t *testing.T) {
		store := setupTestStore(t)

		got, err := store.Collections().GetByID(ctx, "missing")

		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("update does not touch visibility", func(t *testing.T) {
		store := setupTestStore(t)
		c := addCollection(t, store, "user-1", "private", models.Now())

		c.Name = "Renamed"
		c.Visibility = models.VisibilityPublic
		require.NoError(t, store.Collections().Update(ctx, c))

		got, err := store.Collections().GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Name)
		assert.Equal(t, models.VisibilityPrivate, got.Visibility)
	})

	t.Run("lists newest first with cursor pagination", func(t *testing.T) {
		store := setupTestStore(t)
		base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		var ids []string
		for i := 0; i < 5; i++ {
			ids = append(ids, addCollection(t, store, "user-1", "public", base.Add(time.Duration(i)*time.Minute)).ID)
		}
		addCollection(t, store, "user-2", "public", base)

		first, err := store.Collections().ListByOwner(ctx, "user-1", false, nil, 2)
		require.NoError(t, err)
		require.Len(t, first, 2)
		assert.Equal(t, ids[4], first[0].ID)
		assert.Equal(t, ids[3], first[1].ID)

		cursor := &models.Cursor{CreatedAt: first[1].CreatedAt, ID: first[1].ID}
		second, err := store.Collections().ListByOwner(ctx, "user-1", false, cursor, 10)
		require.NoError(t, err)
		require.Len(t, second, 3)
		assert.Equal(t, ids[2], second[0].ID)
		assert.Equal(t, ids[0], second[2].ID)
	})

	t.Run("filters private and deleted collections", func(t *testing.T) {
		store := setupTestStore(t)
		now := models.Now()
		public := addCollection(t, store, "user-1", "public", now)
		addCollection(t, store, "user-1", "private", now.Add(time.Second))
		deleted := addCollection(t, store, "user-1", "public", now.Add(2*time.Second))

		ok, err := store.Collections().SoftDelete(ctx, deleted.ID, models.Now())
		require.NoError(t, err)
		assert.True(t, ok)

		all, err := store.Collections().ListByOwner(ctx, "user-1", false, nil, 10)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		publicOnly, err := store.Collections().ListByOwner(ctx, "user-1", true, nil, 10)
		require.NoError(t, err)
		require.Len(t, publicOnly, 1)
		assert.Equal(t, public.ID, publicOnly[0].ID)
	})

	t.Run("soft delete is reported once", func(t *testing.T) {
		store := setupTestStore(t)
		c := addCollection(t, store, "user-1", "public", models.Now())

		first, err := store.Collections().SoftDelete(ctx, c.ID, models.Now())
		require.NoError(t, err)
		second, err := store.Collections().SoftDelete(ctx, c.ID, models.Now())
		require.NoError(t, err)

		assert.True(t, first)
		assert.False(t, second)
	})
}

func TestCollectionItemRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("lists active items newest first", func(t *testing.T) {
		store := setupTestStore(t)
		base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		older, _ := addItemWithData(t, store, "col-1", "http://example.com/a", base)
		newer, _ := addItemWithData(t, store, "col-1", "http://example.com/b", base.Add(time.Minute))
		gone, _ := addItemWithData(t, store, "col-1", "http://example.com/c", base.Add(2*time.Minute))
		addItemWithData(t, store, "col-2", "http://example.com/d", base)

		_, err := store.Items().SoftDelete(ctx, gone.ID, models.Now())
		require.NoError(t, err)

		items, err := store.Items().ListByCollection(ctx, "col-1", nil, 10)

		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, newer.ID, items[0].ID)
		assert.Equal(t, older.ID, items[1].ID)
	})

	t.Run("deleted item is still addressable by id", func(t *testing.T) {
		store := setupTestStore(t)
		item, _ := addItemWithData(t, store, "col-1", "http://example.com/a", models.Now())

		_, err := store.Items().SoftDelete(ctx, item.ID, models.Now())
		require.NoError(t, err)

		got, err := store.Items().GetByID(ctx, item.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.StateDeleted, got.State)
	})

	t.Run("updates description", func(t *testing.T) {
		store := setupTestStore(t)
		item, _ := addItemWithData(t, store, "col-1", "http://example.com/a", models.Now())

		item.Description = "changed"
		require.NoError(t, store.Items().UpdateDescription(ctx, item))

		got, err := store.Items().GetByID(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, "changed", got.Description)
	})
}

func TestItemDataRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("insert if absent deduplicates by link", func(t *testing.T) {
		store := setupTestStore(t)
		_, data := addItemWithData(t, store, "col-1", "http://example.com/a", models.Now())

		dup := models.NewItemData("http://example.com/a", "other-root")
		inserted, err := store.ItemData().InsertIfAbsent(ctx, dup)
		require.NoError(t, err)
		assert.False(t, inserted)

		got, err := store.ItemData().GetByLinkURL(ctx, "http://example.com/a")
		require.NoError(t, err)
		assert.Equal(t, data.ID, got.ID)
		assert.Equal(t, data.RootItemID, got.RootItemID)
		assert.True(t, got.ImagePending)
		assert.Nil(t, got.Image)
	})

	t.Run("increments post count", func(t *testing.T) {
		store := setupTestStore(t)
		_, data := addItemWithData(t, store, "col-1", "http://example.com/a", models.Now())

		require.NoError(t, store.ItemData().IncrementPostCount(ctx, data.ID))
		require.NoError(t, store.ItemData().IncrementPostCount(ctx, data.ID))

		got, err := store.ItemData().GetByID(ctx, data.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.PostCount)
	})

	t.Run("increment on missing data is not found", func(t *testing.T) {
		store := setupTestStore(t)

		err := store.ItemData().IncrementPostCount(ctx, "missing")
		assert.True(t, models.IsNotFound(err))
	})

	t.Run("completes enrichment only while pending", func(t *testing.T) {
		store := setupTestStore(t)
		_, data := addItemWithData(t, store, "col-1", "http://example.com/a", models.Now())

		att, err := models.NewAttachment("image/png", 10, "abc")
		require.NoError(t, err)
		att.StoredPath = "2024/01/x.png"
		require.NoError(t, store.Attachments().Add(ctx, att))

		html := "<iframe>test</iframe>"
		ok, err := store.ItemData().CompleteEnrichment(ctx, data.ID, &models.EnrichmentResult{
			ItemType:          "video",
			HTMLPreview:       &html,
			ImageAttachmentID: &att.ID,
		})
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.ItemData().CompleteEnrichment(ctx, data.ID, &models.EnrichmentResult{ItemType: "image"})
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := store.ItemData().GetByID(ctx, data.ID)
		require.NoError(t, err)
		assert.False(t, got.ImagePending)
		assert.Equal(t, "video", got.ItemType)
		require.NotNil(t, got.HTMLPreview)
		assert.Equal(t, html, *got.HTMLPreview)
		require.NotNil(t, got.Image)
		assert.Equal(t, att.UUID, got.Image.UUID)
	})

	t.Run("exhaustion keeps default type", func(t *testing.T) {
		store := setupTestStore(t)
		_, data := addItemWithData(t, store, "col-1", "http://example.com/a", models.Now())

		ok, err := store.ItemData().CompleteEnrichment(ctx, data.ID, &models.EnrichmentResult{})
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := store.ItemData().GetByID(ctx, data.ID)
		require.NoError(t, err)
		assert.False(t, got.ImagePending)
		assert.Equal(t, models.DefaultItemType, got.ItemType)
		assert.Nil(t, got.ImageAttachmentID)
	})

	t.Run("lists stale pending records and skips abandoned ones", func(t *testing.T) {
		store := setupTestStore(t)
		_, stale := addItemWithData(t, store, "col-1", "http://example.com/a", models.Now())
		_, abandoned := addItemWithData(t, store, "col-1", "http://example.com/b", models.Now())
		require.NoError(t, store.ItemData().MarkAbandoned(ctx, abandoned.ID, models.Now()))

		pending, err := store.ItemData().ListPending(ctx, models.Now().Add(time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, stale.ID, pending[0].ID)

		require.NoError(t, store.ItemData().Touch(ctx, stale.ID, models.Now().Add(2*time.Hour)))
		pending, err = store.ItemData().ListPending(ctx, models.Now().Add(time.Hour), 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("batch lookup", func(t *testing.T) {
		store := setupTestStore(t)
		_, a := addItemWithData(t, store, "col-1", "http://example.com/a", models.Now())
		_, b := addItemWithData(t, store, "col-1", "http://example.com/b", models.Now())

		got, err := store.ItemData().GetByIDs(ctx, []string{a.ID, b.ID, "missing"})

		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.Equal(t, "http://example.com/b", got[b.ID].LinkURL)
	})
}

func TestItemDataRepository_Upvotes(t *testing.T) {
	ctx := context.Background()

	upvote := func(t *testing.T, store *SQLStore, dataID, userID string) bool {
		var changed bool
		err := store.Transaction(ctx, func(tx Store) error {
			var err error
			changed, err = tx.ItemData().AddUpvote(ctx, &models.Upvote{ItemDataID: dataID, UserID: userID, CreatedAt: models.Now()})
			return err
		})
		require.NoError(t, err)
		return changed
	}

	t.Run("upvote set is idempotent", func(t *testing.T) {
		store := setupTestStore(t)
		_, data := addItemWithData(t, store, "col-1", "http://example.com/a", models.Now())

		assert.True(t, upvote(t, store, data.ID, "user-2"))
		assert.False(t, upvote(t, store, data.ID, "user-2"))
		assert.True(t, upvote(t, store, data.ID, "user-3"))

		got, err := store.ItemData().GetByID(ctx, data.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.UpvoteCount)

		voted, err := store.ItemData().UpvotedBy(ctx, "user-2", []string{data.ID})
		require.NoError(t, err)
		assert.True(t, voted[data.ID])
	})

	t.Run("removing a missing upvote is a no-op", func(t *testing.T) {
		store := setupTestStore(t)
		_, data := addItemWithData(t, store, "col-1", "http://example.com/a", models.Now())

		changed, err := store.ItemData().RemoveUpvote(ctx, data.ID, "user-2")
		require.NoError(t, err)
		assert.False(t, changed)

		got, err := store.ItemData().GetByID(ctx, data.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.UpvoteCount)
	})

	t.Run("removes upvote and decrements", func(t *testing.T) {
		store := setupTestStore(t)
		_, data := addItemWithData(t, store, "col-1", "http://example.com/a", models.Now())
		upvote(t, store, data.ID, "user-2")

		changed, err := store.ItemData().RemoveUpvote(ctx, data.ID, "user-2")
		require.NoError(t, err)
		assert.True(t, changed)

		got, err := store.ItemData().GetByID(ctx, data.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.UpvoteCount)

		u, err := store.ItemData().GetUpvote(ctx, data.ID, "user-2")
		require.NoError(t, err)
		assert.Nil(t, u)
	})
}

func TestSQLStore_Transaction(t *testing.T) {
	ctx := context.Background()

	t.Run("rolls back on error", func(t *testing.T) {
		store := setupTestStore(t)
		c, err := models.NewCollection("user-1", "Links", "private")
		require.NoError(t, err)

		boom := errors.New("boom")
		err = store.Transaction(ctx, func(tx Store) error {
			if err := tx.Collections().Add(ctx, c); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := store.Collections().GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("commits on success", func(t *testing.T) {
		store := setupTestStore(t)
		c, err := models.NewCollection("user-1", "Links", "private")
		require.NoError(t, err)

		err = store.Transaction(ctx, func(tx Store) error {
			return tx.Collections().Add(ctx, c)
		})
		require.NoError(t, err)

		got, err := store.Collections().GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.NotNil(t, got)
	})
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/linkshelf/server/internal/middleware"
	"github.com/linkshelf/server/internal/models"
	"github.com/linkshelf/server/internal/queue"
	"github.com/linkshelf/server/internal/repository"
	"github.com/linkshelf/server/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "http://links.test"

var testSecret = []byte("test-secret")

type memQueue struct {
	mu   sync.Mutex
	jobs []*queue.EnrichItemDataJob
}

func (q *memQueue) Enqueue(ctx context.Context, job *queue.EnrichItemDataJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memQueue) Dequeue(ctx context.Context) (*queue.EnrichItemDataJob, error) {
	return nil, nil
}

func (q *memQueue) Close() error { return nil }

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error { return errors.New("database is locked") }

type testServer struct {
	handler http.Handler
	queue   *memQueue
}

func setupServer(t *testing.T) *testServer {
	t.Helper()

	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := repository.NewSQLStore(db, nil)

	storage, err := services.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	attachments := services.NewAttachmentService(store.Attachments(), storage, testBaseURL, 1<<20)

	q := &memQueue{}
	svc := services.NewCollectionService(store, q, attachments, nil, testBaseURL)

	return &testServer{
		handler: NewRouter(RouterDeps{
			CollectionService: svc,
			Attachments:       attachments,
			DB:                store,
			JWTSecret:         testSecret,
			BaseURL:           testBaseURL,
		}),
		queue: q,
	}
}

func (s *testServer) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := middleware.IssueToken(testSecret, userID, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) createCollection(t *testing.T, userID, name string, visibility models.CollectionVisibility) *models.CollectionResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/users/"+userID+"/collections", userID,
		models.CreateCollectionRequest{Name: name, Visibility: string(visibility)})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[*models.CollectionResponse](t, rec)
}

func (s *testServer) createItem(t *testing.T, userID, collectionID, link string) *models.ItemResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/collections/"+collectionID+"/items", userID,
		models.CreateItemRequest{LinkURL: link, Description: "saved"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[*models.ItemResponse](t, rec)
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		s := setupServer(t)
		rec := s.do(t, http.MethodGet, "/health", "", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		resp := decode[models.HealthResponse](t, rec)
		assert.Equal(t, "healthy", resp.Status)
		assert.Equal(t, "ok", resp.Database)
	})

	t.Run("database unreachable", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealthHandler(failingPinger{}).HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		resp := decode[models.HealthResponse](t, rec)
		assert.Equal(t, "unhealthy", resp.Status)
		assert.Contains(t, resp.Database, "locked")
	})
}

func TestCollectionRoutes(t *testing.T) {
	t.Run("create requires the path user", func(t *testing.T) {
		s := setupServer(t)

		rec := s.do(t, http.MethodPost, "/api/v1/users/alice/collections", "bob",
			models.CreateCollectionRequest{Name: "links"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "user not authorized to perform that action", decode[models.ErrorResponse](t, rec).Message)

		rec = s.do(t, http.MethodPost, "/api/v1/users/alice/collections", "",
			models.CreateCollectionRequest{Name: "links"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("create defaults to private and validates", func(t *testing.T) {
		s := setupServer(t)

		c := s.createCollection(t, "alice", "reading", "")
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, models.VisibilityPrivate, c.Visibility)

		rec := s.do(t, http.MethodPost, "/api/v1/users/alice/collections", "alice",
			models.CreateCollectionRequest{Name: ""})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "name", decode[models.ErrorResponse](t, rec).Field)
	})

	t.Run("malformed body", func(t *testing.T) {
		s := setupServer(t)
		token, err := middleware.IssueToken(testSecret, "alice", time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/alice/collections", strings.NewReader("{"))
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("private collections are concealed", func(t *testing.T) {
		s := setupServer(t)
		c := s.createCollection(t, "alice", "secret", models.VisibilityPrivate)

		assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/collections/"+c.ID, "alice", nil).Code)
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/collections/"+c.ID, "bob", nil).Code)
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/collections/"+c.ID, "", nil).Code)
	})

	t.Run("nested path checks the owner", func(t *testing.T) {
		s := setupServer(t)
		c := s.createCollection(t, "alice", "public", models.VisibilityPublic)

		assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/users/alice/collections/"+c.ID, "bob", nil).Code)
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/users/bob/collections/"+c.ID, "bob", nil).Code)
	})

	t.Run("update and delete", func(t *testing.T) {
		s := setupServer(t)
		c := s.createCollection(t, "alice", "old", models.VisibilityPublic)

		name := "new"
		rec := s.do(t, http.MethodPut, "/api/v1/collections/"+c.ID, "alice", models.UpdateCollectionRequest{Name: &name})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "new", decode[*models.CollectionResponse](t, rec).Name)

		private := string(models.VisibilityPrivate)
		rec = s.do(t, http.MethodPut, "/api/v1/collections/"+c.ID, "alice", models.UpdateCollectionRequest{Visibility: &private})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodDelete, "/api/v1/collections/"+c.ID, "bob", nil).Code)
		assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/v1/collections/"+c.ID, "alice", nil).Code)
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/collections/"+c.ID, "alice", nil).Code)
	})

	t.Run("list paginates with a Link header", func(t *testing.T) {
		s := setupServer(t)
		for _, name := range []string{"a", "b", "c"} {
			s.createCollection(t, "alice", name, models.VisibilityPublic)
		}
		s.createCollection(t, "alice", "hidden", models.VisibilityPrivate)

		rec := s.do(t, http.MethodGet, "/api/v1/users/alice/collections?per_page=2", "bob", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		first := decode[[]*models.CollectionResponse](t, rec)
		assert.Len(t, first, 2)

		link := rec.Header().Get("Link")
		require.NotEmpty(t, link)
		assert.True(t, strings.HasPrefix(link, "<"+testBaseURL+"/api/v1/users/alice/collections?"))
		assert.True(t, strings.HasSuffix(link, `>; rel="next"`))

		next := strings.TrimPrefix(link[1:strings.Index(link, ">")], testBaseURL)
		rec = s.do(t, http.MethodGet, next, "bob", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		second := decode[[]*models.CollectionResponse](t, rec)
		require.Len(t, second, 1)
		assert.Empty(t, rec.Header().Get("Link"))

		for _, c := range append(first, second...) {
			assert.Equal(t, models.VisibilityPublic, c.Visibility)
		}

		rec = s.do(t, http.MethodGet, "/api/v1/users/alice/collections", "alice", nil)
		assert.Len(t, decode[[]*models.CollectionResponse](t, rec), 4)
	})

	t.Run("bad cursor", func(t *testing.T) {
		s := setupServer(t)
		rec := s.do(t, http.MethodGet, "/api/v1/users/alice/collections?cursor=!!!not-a-cursor", "alice", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestItemRoutes(t *testing.T) {
	t.Run("create returns pending item with location", func(t *testing.T) {
		s := setupServer(t)
		c := s.createCollection(t, "alice", "links", models.VisibilityPublic)

		rec := s.do(t, http.MethodPost, "/api/v1/collections/"+c.ID+"/items", "alice",
			models.CreateItemRequest{LinkURL: "https://example.com/article", Description: "worth reading"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		item := decode[*models.ItemResponse](t, rec)
		assert.Equal(t, c.ID, item.CollectionID)
		assert.True(t, item.ImagePending)
		assert.Nil(t, item.ImageURL)
		assert.Equal(t, 1, item.PostCount)
		assert.Equal(t, testBaseURL+"/api/v1/collections/items/"+item.ID, item.URL)
		assert.Equal(t, item.URL, rec.Header().Get("Location"))
		assert.Len(t, s.queue.jobs, 1)

		raw := map[string]interface{}{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
		assert.Contains(t, raw, "image_url")
		assert.Nil(t, raw["image_url"])
	})

	t.Run("create by a stranger is unauthorized", func(t *testing.T) {
		s := setupServer(t)
		c := s.createCollection(t, "alice", "links", models.VisibilityPublic)

		rec := s.do(t, http.MethodPost, "/api/v1/collections/"+c.ID+"/items", "bob",
			models.CreateItemRequest{LinkURL: "https://example.com"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid link", func(t *testing.T) {
		s := setupServer(t)
		c := s.createCollection(t, "alice", "links", models.VisibilityPublic)

		rec := s.do(t, http.MethodPost, "/api/v1/collections/"+c.ID+"/items", "alice",
			models.CreateItemRequest{LinkURL: "https://example.com", ImageURL: strPtr("ftp://example.com/a.png")})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "image_url", decode[models.ErrorResponse](t, rec).Field)
	})

	t.Run("get update delete", func(t *testing.T) {
		s := setupServer(t)
		c := s.createCollection(t, "alice", "links", models.VisibilityPublic)
		item := s.createItem(t, "alice", c.ID, "https://example.com/a")

		rec := s.do(t, http.MethodGet, "/api/v1/collections/items/"+item.ID, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, item.ID, decode[*models.ItemResponse](t, rec).ID)

		desc := "updated"
		rec = s.do(t, http.MethodPut, "/api/v1/collections/items/"+item.ID, "alice", models.UpdateItemRequest{Description: &desc})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "updated", decode[*models.ItemResponse](t, rec).Description)

		assert.Equal(t, http.StatusUnauthorized,
			s.do(t, http.MethodPut, "/api/v1/collections/items/"+item.ID, "bob", models.UpdateItemRequest{Description: &desc}).Code)

		assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/v1/collections/items/"+item.ID, "alice", nil).Code)
		assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/collections/items/"+item.ID, "alice", nil).Code)
	})

	t.Run("list items", func(t *testing.T) {
		s := setupServer(t)
		c := s.createCollection(t, "alice", "links", models.VisibilityPublic)
		s.createItem(t, "alice", c.ID, "https://example.com/1")
		s.createItem(t, "alice", c.ID, "https://example.com/2")

		rec := s.do(t, http.MethodGet, "/api/v1/collections/"+c.ID+"/items?per_page=1", "bob", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[[]*models.ItemResponse](t, rec), 1)
		assert.Contains(t, rec.Header().Get("Link"), `rel="next"`)
	})

	t.Run("upvote is idempotent", func(t *testing.T) {
		s := setupServer(t)
		c := s.createCollection(t, "alice", "links", models.VisibilityPublic)
		item := s.createItem(t, "alice", c.ID, "https://example.com/up")
		path := "/api/v1/collections/items/" + item.ID + "/upvote"

		for i := 0; i < 2; i++ {
			rec := s.do(t, http.MethodPut, path, "bob", nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		}

		rec := s.do(t, http.MethodGet, "/api/v1/collections/items/"+item.ID, "bob", nil)
		got := decode[*models.ItemResponse](t, rec)
		assert.Equal(t, 1, got.UpvoteCount)
		assert.True(t, got.UpvotedByUser)

		assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPut, path, "", nil).Code)

		assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, path, "bob", nil).Code)
		assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, path, "bob", nil).Code)

		rec = s.do(t, http.MethodGet, "/api/v1/collections/items/"+item.ID, "bob", nil)
		assert.Equal(t, 0, decode[*models.ItemResponse](t, rec).UpvoteCount)
	})
}

func TestInvalidToken(t *testing.T) {
	s := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestThumbnailNotFound(t *testing.T) {
	s := setupServer(t)
	rec := s.do(t, http.MethodGet, "/images/thumbnails/missing/also-missing?size=640x%3E", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCompression(t *testing.T) {
	s := setupServer(t)
	s.createCollection(t, "alice", "links", models.VisibilityPublic)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/alice/collections", nil)
	req.Header.Set("Accept-Encoding", "br")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "br", rec.Header().Get("Content-Encoding"))
}

func strPtr(s string) *string { return &s }

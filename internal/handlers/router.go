package handlers

import (
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/linkshelf/server/internal/middleware"
	"github.com/linkshelf/server/internal/observability"
	"github.com/linkshelf/server/internal/services"
)

// RouterDeps carries everything the HTTP layer serves from
type RouterDeps struct {
	CollectionService *services.CollectionService
	Attachments       *services.AttachmentService
	Hub               *services.WebSocketHub
	DB                Pinger
	HTTPMetrics       *observability.HTTPMetrics
	JWTSecret         []byte
	BaseURL           string
}

// NewRouter builds the chi router for the public API
func NewRouter(deps RouterDeps) http.Handler {
	collectionHandler := NewCollectionHandler(deps.CollectionService, deps.BaseURL)
	itemHandler := NewItemHandler(deps.CollectionService, deps.BaseURL)
	thumbnailHandler := NewThumbnailHandler(deps.Attachments)
	healthHandler := NewHealthHandler(deps.DB)

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(observability.TracingMiddleware())
	if deps.HTTPMetrics != nil {
		r.Use(observability.MetricsMiddleware(deps.HTTPMetrics))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Location"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.BearerAuth(deps.JWTSecret))

	r.Get("/health", healthHandler.HealthCheck)

	if deps.Hub != nil {
		wsHandler := NewWebSocketHandler(deps.Hub, deps.CollectionService)
		r.Get("/ws", wsHandler.HandleConnection)
	}

	r.Get("/images/thumbnails/{attachmentID}/{uuid}", thumbnailHandler.GetThumbnail)

	r.Group(func(r chi.Router) {
		r.Use(newCompressor().Handler)

		r.Route("/api/v1/users/{userID}/collections", func(r chi.Router) {
			r.Get("/", collectionHandler.ListCollections)
			r.Post("/", collectionHandler.CreateCollection)
			r.Get("/{collectionID}", collectionHandler.GetCollection)
			r.Put("/{collectionID}", collectionHandler.UpdateCollection)
			r.Delete("/{collectionID}", collectionHandler.DeleteCollection)
		})

		r.Route("/api/v1/collections", func(r chi.Router) {
			r.Route("/items/{itemID}", func(r chi.Router) {
				r.Get("/", itemHandler.GetItem)
				r.Put("/", itemHandler.UpdateItem)
				r.Delete("/", itemHandler.DeleteItem)
				r.Put("/upvote", itemHandler.Upvote)
				r.Delete("/upvote", itemHandler.RemoveUpvote)
			})

			r.Route("/{collectionID}", func(r chi.Router) {
				r.Get("/", collectionHandler.GetCollection)
				r.Put("/", collectionHandler.UpdateCollection)
				r.Delete("/", collectionHandler.DeleteCollection)
				r.Get("/items", itemHandler.ListItems)
				r.Post("/items", itemHandler.CreateItem)
			})
		})
	})

	return r
}

// newCompressor negotiates br ahead of gzip and deflate for JSON responses
func newCompressor() *chimw.Compressor {
	c := chimw.NewCompressor(5, "application/json")
	c.SetEncoder("br", func(w io.Writer, level int) io.Writer {
		return brotli.NewWriterLevel(w, level)
	})
	return c
}

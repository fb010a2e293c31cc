package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/linkshelf/server/internal/middleware"
	"github.com/linkshelf/server/internal/observability"
	"github.com/linkshelf/server/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// subscribePayload names the item whose enrichment the client wants to follow
type subscribePayload struct {
	ItemID string `json:"item_id"`
}

// WebSocketHandler streams enrichment notifications to clients
type WebSocketHandler struct {
	hub               *services.WebSocketHub
	collectionService *services.CollectionService
	log               *observability.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(hub *services.WebSocketHub, collectionService *services.CollectionService) *WebSocketHandler {
	return &WebSocketHandler{
		hub:               hub,
		collectionService: collectionService,
		log:               observability.GetLogger().Component("websocket"),
	}
}

// HandleConnection upgrades HTTP to WebSocket and manages the connection
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := h.hub.NewClient(uuid.New().String(), middleware.GetUserIDFromContext(r.Context()), conn)
	h.hub.Register(client)

	go client.WritePump()

	// Blocks until the connection closes
	client.ReadPump(h.handleMessage)
}

// handleMessage processes incoming WebSocket messages. Subscriptions go
// through the item read check so clients only follow items they can see.
func (h *WebSocketHandler) handleMessage(client *services.WSClient, messageType int, data []byte) {
	if messageType != websocket.TextMessage {
		return
	}

	var msg struct {
		Type    string           `json:"type"`
		Payload subscribePayload `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		client.SendMessage(services.WSMessage{Type: services.WSTypeError, Payload: "invalid message"})
		return
	}

	switch msg.Type {
	case services.WSTypeSubscribe, services.WSTypeUnsubscribe:
		view, err := h.collectionService.GetItem(context.Background(), client.UserID, msg.Payload.ItemID)
		if err != nil {
			client.SendMessage(services.WSMessage{Type: services.WSTypeError, Payload: "item not found"})
			return
		}

		topic := services.ItemDataTopic(view.Data.ID)
		if msg.Type == services.WSTypeUnsubscribe {
			h.hub.Unsubscribe(client, topic)
			return
		}
		h.hub.Subscribe(client, topic)
		client.SendMessage(services.WSMessage{
			Type:    services.WSTypeSubscribed,
			Topic:   topic,
			Payload: map[string]interface{}{"item_id": view.Item.ID, "image_pending": view.Data.ImagePending},
		})

	case services.WSTypePing:
		client.SendMessage(services.WSMessage{Type: services.WSTypePong})

	default:
		h.log.WithField("type", msg.Type).Debug("Unknown WebSocket message type")
	}
}

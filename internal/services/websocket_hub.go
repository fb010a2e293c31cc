package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorilla/websocket"
	"github.com/linkshelf/server/internal/models"
	"github.com/linkshelf/server/internal/observability"
)

// WSMessage is the envelope of every frame in both directions
type WSMessage struct {
	Type    string      `json:"type"`
	Topic   string      `json:"topic,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// WSClient is one connection. Topics is guarded by the hub's lock.
type WSClient struct {
	ID         string
	UserID     string
	Topics     mapset.Set[string]
	Conn       *websocket.Conn
	Send       chan []byte
	hub        *WebSocketHub
	mu         sync.Mutex
	closedOnce sync.Once
}

// WebSocketHub fans enrichment notifications out to the clients subscribed
// to each ItemData topic. It never blocks publishers.
type WebSocketHub struct {
	mu          sync.RWMutex
	clients     mapset.Set[*WSClient]
	subscribers map[string]mapset.Set[*WSClient]
	register    chan *WSClient
	unregister  chan *WSClient
	outbox      chan topicFrame
	done        chan struct{}
	log         *observability.Logger
}

type topicFrame struct {
	topic string
	frame []byte
}

// NewWebSocketHub creates a hub; call Run to start delivering
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:     mapset.NewThreadUnsafeSet[*WSClient](),
		subscribers: make(map[string]mapset.Set[*WSClient]),
		register:    make(chan *WSClient),
		unregister:  make(chan *WSClient),
		outbox:      make(chan topicFrame, 256),
		done:        make(chan struct{}),
		log:         observability.GetLogger().Component("websocket"),
	}
}

// Run delivers frames until ctx is done, then closes every client
func (h *WebSocketHub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			h.clients.Each(func(c *WSClient) bool {
				close(c.Send)
				return false
			})
			h.clients.Clear()
			h.subscribers = make(map[string]mapset.Set[*WSClient])
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients.Add(c)
			h.mu.Unlock()
			h.log.WithField("client_id", c.ID).WithField("user_id", c.UserID).Debug("WebSocket client connected")

		case c := <-h.unregister:
			h.drop(c)

		case f := <-h.outbox:
			h.deliver(f)
		}
	}
}

func (h *WebSocketHub) drop(c *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients.Contains(c) {
		return
	}
	h.clients.Remove(c)
	c.Topics.Each(func(topic string) bool {
		h.removeSubscriber(topic, c)
		return false
	})
	close(c.Send)
	h.log.WithField("client_id", c.ID).Debug("WebSocket client disconnected")
}

// deliver hands a frame to each subscriber. Clients that cannot keep up are
// disconnected rather than allowed to stall the hub.
func (h *WebSocketHub) deliver(f topicFrame) {
	h.mu.RLock()
	subs, ok := h.subscribers[f.topic]
	if !ok {
		h.mu.RUnlock()
		return
	}
	var slow []*WSClient
	subs.Each(func(c *WSClient) bool {
		select {
		case c.Send <- f.frame:
		default:
			slow = append(slow, c)
		}
		return false
	})
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.WithField("client_id", c.ID).Warn("WebSocket client too slow, disconnecting")
		h.drop(c)
	}
}

// caller holds h.mu
func (h *WebSocketHub) removeSubscriber(topic string, c *WSClient) {
	if subs, ok := h.subscribers[topic]; ok {
		subs.Remove(c)
		if subs.Cardinality() == 0 {
			delete(h.subscribers, topic)
		}
	}
}

// Register adds a client. It is a no-op once the hub has stopped.
func (h *WebSocketHub) Register(c *WSClient) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister removes a client and closes its Send channel
func (h *WebSocketHub) Unregister(c *WSClient) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Subscribe adds a client to a topic
func (h *WebSocketHub) Subscribe(c *WSClient, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.Topics.Add(topic)
	subs, ok := h.subscribers[topic]
	if !ok {
		subs = mapset.NewThreadUnsafeSet[*WSClient]()
		h.subscribers[topic] = subs
	}
	subs.Add(c)
}

// Unsubscribe removes a client from a topic
func (h *WebSocketHub) Unsubscribe(c *WSClient, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.Topics.Remove(topic)
	h.removeSubscriber(topic, c)
}

// BroadcastToTopic queues msg for the topic's subscribers. The message is
// dropped when the outbox is full.
func (h *WebSocketHub) BroadcastToTopic(topic string, msg WSMessage) {
	msg.Topic = topic
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.WithError(err).Error("Failed to encode WebSocket message")
		return
	}

	select {
	case h.outbox <- topicFrame{topic: topic, frame: data}:
	default:
		h.log.WithField("topic", topic).Warn("WebSocket outbox full, dropping message")
	}
}

// NotifyItemDataEnriched publishes the end of enrichment for one ItemData
func (h *WebSocketHub) NotifyItemDataEnriched(payload *models.WSItemDataEnriched) {
	h.BroadcastToTopic(ItemDataTopic(payload.ItemDataID), WSMessage{
		Type:    WSTypeItemDataEnriched,
		Payload: payload,
	})
}

// GetClientCount returns the number of connected clients
func (h *WebSocketHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients.Cardinality()
}

// GetTopicSubscriberCount returns the number of subscribers for a topic
func (h *WebSocketHub) GetTopicSubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if subs, ok := h.subscribers[topic]; ok {
		return subs.Cardinality()
	}
	return 0
}

// NewClient creates a client bound to this hub
func (h *WebSocketHub) NewClient(id, userID string, conn *websocket.Conn) *WSClient {
	return &WSClient{
		ID:     id,
		UserID: userID,
		Topics: mapset.NewThreadUnsafeSet[string](),
		Conn:   conn,
		Send:   make(chan []byte, 64),
		hub:    h,
	}
}

// Close closes the client connection
func (c *WSClient) Close() {
	c.closedOnce.Do(func() {
		c.hub.Unregister(c)
		c.Conn.Close()
	})
}

// SendMessage queues a message for this client only
func (c *WSClient) SendMessage(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	defer func() {
		// Send is closed once the hub drops the client
		recover()
	}()
	select {
	case c.Send <- data:
	default:
	}
}

// WritePump pumps messages from the hub to the websocket connection
func (c *WSClient) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			c.mu.Lock()
			err := c.Conn.WriteMessage(websocket.TextMessage, message)
			c.mu.Unlock()

			if err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump pumps messages from the websocket connection to onMessage
func (c *WSClient) ReadPump(onMessage func(client *WSClient, messageType int, data []byte)) {
	defer c.Close()

	c.Conn.SetReadLimit(64 * 1024)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).WithField("client_id", c.ID).Warn("WebSocket read error")
			}
			break
		}

		if onMessage != nil {
			onMessage(c, messageType, message)
		}
	}
}

// Message types
const (
	WSTypeItemDataEnriched = "item_data_enriched"
	WSTypeSubscribed       = "subscribed"
	WSTypeError            = "error"
	WSTypeSubscribe        = "subscribe"
	WSTypeUnsubscribe      = "unsubscribe"
	WSTypePing             = "ping"
	WSTypePong             = "pong"
)

// TopicItemData is the topic prefix for enrichment notifications:
// item_data:{itemDataID}
const TopicItemData = "item_data"

// ItemDataTopic returns the notification topic of one ItemData
func ItemDataTopic(itemDataID string) string {
	return TopicItemData + ":" + itemDataID
}

package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// MessageType определяет типы сообщений
type MessageType string

const (
	// Системные типы
	TypePing  MessageType = "ping"
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"

	// Подписки клиента
	TypeSubscribe    MessageType = "subscribe"
	TypeUnsubscribe  MessageType = "unsubscribe"
	TypeSubscribed   MessageType = "subscribed"
	TypeUnsubscribed MessageType = "unsubscribed"

	// Изменения события
	TypeRegistrationCount MessageType = "registration_count"
	TypeEventUpdated      MessageType = "event_updated"
	TypeEventDeleted      MessageType = "event_deleted"
)

type Message struct {
	Type      MessageType     `json:"type"`
	EventID   *uuid.UUID      `json:"event_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type Client struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Conn   *websocket.Conn
	Send   chan []byte
	Events map[uuid.UUID]bool
	Hub    *Hub
	mu     sync.RWMutex

	// Send закрывается только через closeSend
	closed bool
}

type Hub struct {
	clients map[uuid.UUID]*Client

	// Подписчики по событиям
	subscriptions map[uuid.UUID]map[uuid.UUID]*Client

	broadcast chan *BroadcastMessage

	mu sync.RWMutex

	// Контекст для graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type BroadcastMessage struct {
	EventID uuid.UUID
	Message []byte
	// Последнее сообщение по событию: подписки снимаются после отправки
	Final bool
}

// NewHub создает новый Hub
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:       make(map[uuid.UUID]*Client),
		subscriptions: make(map[uuid.UUID]map[uuid.UUID]*Client),
		broadcast:     make(chan *BroadcastMessage, 256),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Run запускает hub
func (h *Hub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-ticker.C:
			h.ping()
		}
	}
}

// Stop останавливает hub и закрывает все соединения
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		client.closeSend()
		if client.Conn != nil {
			client.Conn.Close()
		}
		delete(h.clients, id)
	}
	h.subscriptions = make(map[uuid.UUID]map[uuid.UUID]*Client)
}

// Register регистрирует нового клиента. После Stop клиент сразу отключается.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ctx.Err() != nil {
		client.closeSend()
		return
	}
	h.clients[client.ID] = client
	slog.Debug("ws client registered", "client_id", client.ID, "user_id", client.UserID)
}

// Unregister снимает все подписки клиента и закрывает его очередь
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}

	for eventID := range client.Events {
		h.unsubscribeUnsafe(client, eventID)
	}
	delete(h.clients, client.ID)
	client.closeSend()

	slog.Debug("ws client unregistered", "client_id", client.ID, "user_id", client.UserID)
}

// NotifyEvent рассылает изменение события всем подписчикам.
// Не блокирует: при переполненной очереди сообщение теряется.
func (h *Hub) NotifyEvent(eventID uuid.UUID, kind string, payload any) {
	msg := Message{
		Type:      MessageType(kind),
		EventID:   &eventID,
		Timestamp: time.Now().UTC(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			slog.Error("ws payload marshal failed", "event_id", eventID, "type", kind, "error", err)
			return
		}
		msg.Data = data
	}

	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("ws message marshal failed", "event_id", eventID, "error", err)
		return
	}

	bm := &BroadcastMessage{EventID: eventID, Message: data, Final: msg.Type == TypeEventDeleted}
	select {
	case h.broadcast <- bm:
	default:
		slog.Warn("ws broadcast queue full, dropping", "event_id", eventID, "type", kind)
	}
}

// Subscribe подписывает клиента на изменения события
func (h *Hub) Subscribe(client *Client, eventID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	if _, ok := h.subscriptions[eventID]; !ok {
		h.subscriptions[eventID] = make(map[uuid.UUID]*Client)
	}
	h.subscriptions[eventID][client.ID] = client

	client.mu.Lock()
	client.Events[eventID] = true
	client.mu.Unlock()
}

// Unsubscribe снимает подписку клиента
func (h *Hub) Unsubscribe(client *Client, eventID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unsubscribeUnsafe(client, eventID)
}

func (h *Hub) unsubscribeUnsafe(client *Client, eventID uuid.UUID) {
	subs, ok := h.subscriptions[eventID]
	if !ok {
		return
	}
	delete(subs, client.ID)
	if len(subs) == 0 {
		delete(h.subscriptions, eventID)
	}

	client.mu.Lock()
	delete(client.Events, eventID)
	client.mu.Unlock()
}

func (h *Hub) broadcastMessage(bm *BroadcastMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.subscriptions[bm.EventID] {
		if err := client.deliver(bm.Message); err != nil {
			slog.Warn("ws message dropped", "client_id", client.ID, "error", err)
		}
	}

	if bm.Final {
		for _, client := range h.subscriptions[bm.EventID] {
			h.unsubscribeUnsafe(client, bm.EventID)
		}
	}
}

func (h *Hub) ping() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	msg := Message{
		Type:      TypePing,
		Timestamp: time.Now().UTC(),
	}

	if data, err := json.Marshal(msg); err == nil {
		for _, client := range h.clients {
			_ = client.deliver(data)
		}
	}
}

// Subscribers возвращает число подписчиков события
func (h *Hub) Subscribers(eventID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subscriptions[eventID])
}

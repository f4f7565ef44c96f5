package websocket

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Время ожидания записи
	writeWait = 10 * time.Second

	// Время ожидания pong от клиента
	pongWait = 60 * time.Second

	// Интервал отправки ping
	pingPeriod = (pongWait * 9) / 10

	// Клиент шлёт только подписки, большие сообщения не нужны
	maxMessageSize = 4 * 1024
)

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{
		ID:     uuid.New(),
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		Events: make(map[uuid.UUID]bool),
		Hub:    hub,
	}
}

// Serve регистрирует соединение в hub и запускает обе помпы
func (h *Hub) Serve(conn *websocket.Conn, userID uuid.UUID) *Client {
	client := NewClient(h, conn, userID)
	h.Register(client)

	go client.WritePump()
	go client.ReadPump()
	return client
}

// ReadPump читает команды подписки от клиента
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read failed", "client_id", c.ID, "error", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.SendError(ErrInvalidMessage.Error())
			continue
		}

		switch msg.Type {
		case TypePong, TypePing:
			continue

		case TypeSubscribe:
			if msg.EventID == nil {
				c.SendError("event_id is required")
				continue
			}
			c.Hub.Subscribe(c, *msg.EventID)
			c.reply(TypeSubscribed, *msg.EventID)

		case TypeUnsubscribe:
			if msg.EventID == nil {
				c.SendError("event_id is required")
				continue
			}
			c.Hub.Unsubscribe(c, *msg.EventID)
			c.reply(TypeUnsubscribed, *msg.EventID)

		default:
			c.SendError("unknown message type")
		}
	}
}

// WritePump отправляет сообщения клиенту
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub закрыл канал
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Отправляем все накопившиеся сообщения
			n := len(c.Send)
			for i := 0; i < n; i++ {
				if err := c.Conn.WriteMessage(websocket.TextMessage, <-c.Send); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) SendMessage(msgType MessageType, eventID *uuid.UUID, data any) error {
	msg := Message{
		Type:      msgType,
		EventID:   eventID,
		Timestamp: time.Now().UTC(),
	}

	if data != nil {
		jsonData, err := json.Marshal(data)
		if err != nil {
			return err
		}
		msg.Data = jsonData
	}

	msgData, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return c.deliver(msgData)
}

// deliver кладёт сообщение в очередь без блокировки. Закрытую очередь не трогает.
func (c *Client) deliver(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return ErrClientQueueFull
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

func (c *Client) SendError(errorMsg string) {
	c.SendMessage(TypeError, nil, map[string]string{
		"error": errorMsg,
	})
}

func (c *Client) reply(t MessageType, eventID uuid.UUID) {
	if err := c.SendMessage(t, &eventID, nil); err != nil {
		slog.Warn("websocket reply dropped", "client_id", c.ID, "error", err)
	}
}

func (c *Client) IsSubscribed(eventID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Events[eventID]
}

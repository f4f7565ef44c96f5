package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(h *Hub) *Client {
	c := NewClient(h, nil, uuid.New())
	h.Register(c)
	return c
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.Send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func TestHub_NotifyReachesOnlySubscribers(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	eventID := uuid.New()
	sub := newTestClient(h)
	other := newTestClient(h)
	h.Subscribe(sub, eventID)
	h.Subscribe(other, uuid.New())

	h.NotifyEvent(eventID, string(TypeRegistrationCount), map[string]any{"registrationCount": 3})

	msg := receive(t, sub)
	assert.Equal(t, TypeRegistrationCount, msg.Type)
	require.NotNil(t, msg.EventID)
	assert.Equal(t, eventID, *msg.EventID)
	assert.JSONEq(t, `{"registrationCount":3}`, string(msg.Data))

	select {
	case <-other.Send:
		t.Fatal("unsubscribed client got a message")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_DeleteDropsSubscriptions(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	eventID := uuid.New()
	c := newTestClient(h)
	h.Subscribe(c, eventID)
	require.Equal(t, 1, h.Subscribers(eventID))

	h.NotifyEvent(eventID, string(TypeEventDeleted), nil)

	msg := receive(t, c)
	assert.Equal(t, TypeEventDeleted, msg.Type)
	assert.Equal(t, 0, h.Subscribers(eventID))
	assert.False(t, c.IsSubscribed(eventID))
}

func TestHub_UnregisterCleansUp(t *testing.T) {
	h := NewHub()
	defer h.Stop()

	eventID := uuid.New()
	c := newTestClient(h)
	h.Subscribe(c, eventID)

	h.Unregister(c)
	assert.Equal(t, 0, h.Subscribers(eventID))

	_, open := <-c.Send
	assert.False(t, open)

	// повторный вызов безопасен
	h.Unregister(c)
}

func TestHub_RegisterAfterStop(t *testing.T) {
	h := NewHub()
	h.Stop()

	c := newTestClient(h)
	_, open := <-c.Send
	assert.False(t, open)

	eventID := uuid.New()
	assert.ErrorIs(t, c.SendMessage(TypeSubscribed, &eventID, nil), ErrClientClosed)
	assert.NotPanics(t, func() { c.SendError("late") })
}

func TestHub_SendDuringStop(t *testing.T) {
	h := NewHub()
	go h.Run()
	c := newTestClient(h)

	done := make(chan struct{})
	go func() {
		defer close(done)
		eventID := uuid.New()
		for i := 0; i < 1000; i++ {
			// очередь быстро заполняется, дальше ждём закрытия
			err := c.SendMessage(TypeSubscribed, &eventID, nil)
			if errors.Is(err, ErrClientClosed) {
				return
			}
		}
	}()

	h.Stop()
	<-done

	eventID := uuid.New()
	assert.ErrorIs(t, c.SendMessage(TypeUnsubscribed, &eventID, nil), ErrClientClosed)
	assert.NotPanics(t, func() { h.Unregister(c) })
}

func TestHub_ServeOverWebSocket(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Stop()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.Serve(conn, uuid.New())
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	eventID := uuid.New()
	require.NoError(t, conn.WriteJSON(Message{Type: TypeSubscribe, EventID: &eventID}))

	var ack Message
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, TypeSubscribed, ack.Type)

	h.NotifyEvent(eventID, string(TypeEventUpdated), map[string]string{"name": "Renamed"})

	var update Message
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, TypeEventUpdated, update.Type)
	assert.JSONEq(t, `{"name":"Renamed"}`, string(update.Data))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	var bad Message
	require.NoError(t, conn.ReadJSON(&bad))
	assert.Equal(t, TypeError, bad.Type)
}

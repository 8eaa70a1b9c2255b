package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/mkrupp/joynest/internal/infra/logging"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4096
	sendBufSize    = 256
)

// Client is a single websocket connection. userID is uuid.Nil for anonymous
// connections, which may only follow public channels.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID uuid.UUID
	log    logging.Logger

	mu       sync.RWMutex
	channels map[string]struct{}

	// send is never closed; done signals that the hub dropped the client.
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a client for an accepted connection.
func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID) *Client {
	conn.SetReadLimit(maxMessageSize)

	return &Client{
		hub:      hub,
		conn:     conn,
		userID:   userID,
		log:      hub.log,
		channels: make(map[string]struct{}),
		send:     make(chan []byte, sendBufSize),
		done:     make(chan struct{}),
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// IsSubscribed reports whether the client follows channel.
func (c *Client) IsSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.channels[channel]

	return ok
}

// Subscribe adds channel if the client may follow it.
func (c *Client) Subscribe(channel string) bool {
	if !mayJoin(channel, c.userID) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.channels[channel] = struct{}{}

	return true
}

// Unsubscribe removes channel.
func (c *Client) Unsubscribe(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.channels, channel)
}

// Serve registers the client and runs its pumps until the connection closes
// or ctx is done.
func (c *Client) Serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	select {
	case c.hub.register <- c:
	case <-ctx.Done():
		c.conn.Close(websocket.StatusGoingAway, "")

		return
	}

	go c.writePump(ctx, cancel)
	c.readPump(ctx)

	select {
	case c.hub.unregister <- c:
	case <-time.After(writeWait):
	}

	c.conn.Close(websocket.StatusNormalClosure, "")
}

func (c *Client) readPump(ctx context.Context) {
	for {
		var event Event

		if err := wsjson.Read(ctx, c.conn, &event); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				c.log.DebugContext(ctx, "read failed", "user", c.userID, "error", err)
			}

			return
		}

		c.handleEvent(ctx, &event)
	}
}

func (c *Client) writePump(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cancel()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.send:
			writeCtx, writeCancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)

			writeCancel()

			if err != nil {
				c.log.DebugContext(ctx, "write failed", "user", c.userID, "error", err)

				return
			}

		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)

			pingCancel()

			if err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) handleEvent(ctx context.Context, event *Event) {
	switch event.Type {
	case EventTypeSubscribe:
		if !c.Subscribe(event.Channel) {
			c.reply(EventTypeError, event.Channel, ErrorPayload{Code: "forbidden", Message: "cannot subscribe to " + event.Channel})

			return
		}

		c.reply(EventTypeSubscribed, event.Channel, nil)

	case EventTypeUnsubscribe:
		c.Unsubscribe(event.Channel)
		c.reply(EventTypeUnsubscribed, event.Channel, nil)

	case EventTypePing:
		c.reply(EventTypePong, "", nil)

	default:
		c.log.DebugContext(ctx, "unknown event", "user", c.userID, "type", event.Type)
		c.reply(EventTypeError, "", ErrorPayload{Code: "unknown_event", Message: "unknown event type: " + event.Type})
	}
}

// reply queues a direct answer; it is dropped if the send buffer is full.
func (c *Client) reply(eventType, channel string, payload any) {
	event, err := NewEvent(eventType, channel, payload)
	if err != nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	select {
	case <-c.done:
	case c.send <- data:
	default:
	}
}

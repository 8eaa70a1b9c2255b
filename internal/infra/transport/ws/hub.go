package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mkrupp/joynest/internal/infra/logging"
)

type broadcastMsg struct {
	channel string
	data    []byte
}

// Hub tracks connected clients and fans published events out to the
// subscribers of a channel. All client bookkeeping happens on the Run loop.
type Hub struct {
	log logging.Logger

	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMsg
	count      chan chan int
}

// NewHub creates a Hub. Call Run before publishing.
func NewHub() *Hub {
	return &Hub{
		log:        logging.GetLogger("infra.transport.ws.hub"),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMsg, sendBufSize),
		count:      make(chan chan int),
	}
}

// Run processes registrations and broadcasts until ctx is done, then
// disconnects all clients.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		for client := range h.clients {
			h.drop(client)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.log.DebugContext(ctx, "client connected", "user", client.userID, "clients", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.log.DebugContext(ctx, "client disconnected", "user", client.userID, "clients", len(h.clients))
			}

		case msg := <-h.broadcast:
			for client := range h.clients {
				if !client.IsSubscribed(msg.channel) {
					continue
				}

				select {
				case client.send <- msg.data:
				default:
					h.log.WarnContext(ctx, "client too slow, disconnecting", "user", client.userID)
					h.drop(client)
				}
			}

		case reply := <-h.count:
			reply <- len(h.clients)
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	client.close()
}

// Publish sends event to every subscriber of event.Channel. It does not block
// on slow clients.
func (h *Hub) Publish(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	select {
	case h.broadcast <- broadcastMsg{channel: event.Channel, data: data}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish: %w", ctx.Err())
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients(ctx context.Context) int {
	reply := make(chan int, 1)

	select {
	case h.count <- reply:
		return <-reply
	case <-ctx.Done():
		return 0
	}
}

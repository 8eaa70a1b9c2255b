// Package ws pushes change events to browsers over websockets. Clients
// subscribe to named channels; publishers address channels, never clients.
package ws

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event types sent by clients.
const (
	EventTypeSubscribe   = "subscribe"
	EventTypeUnsubscribe = "unsubscribe"
	EventTypePing        = "ping"
)

// Event types sent by the server, next to the change types published by services.
const (
	EventTypeSubscribed   = "subscribed"
	EventTypeUnsubscribed = "unsubscribed"
	EventTypePong         = "pong"
	EventTypeError        = "error"
)

// Channel names.
const (
	ChannelCatalog    = "catalog"
	channelItemPrefix = "item:"
	channelUserPrefix = "user:"
)

// ItemChannel is the channel carrying changes of a single item and its offers.
func ItemChannel(id uuid.UUID) string {
	return channelItemPrefix + id.String()
}

// UserChannel is the private channel of a user.
func UserChannel(id uuid.UUID) string {
	return channelUserPrefix + id.String()
}

// Event is the envelope of every websocket message.
type Event struct {
	Type      string          `json:"type"`
	Channel   string          `json:"channel,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"ts,omitempty"`
}

// ErrorPayload describes a rejected client message.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEvent creates a server event with the current timestamp.
func NewEvent(eventType, channel string, payload any) (*Event, error) {
	var data json.RawMessage

	if payload != nil {
		var err error

		data, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
	}

	return &Event{
		Type:      eventType,
		Channel:   channel,
		Payload:   data,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// mayJoin reports whether a client of userID may subscribe to channel.
// Anonymous clients have userID uuid.Nil.
func mayJoin(channel string, userID uuid.UUID) bool {
	switch {
	case channel == ChannelCatalog:
		return true
	case strings.HasPrefix(channel, channelItemPrefix):
		_, err := uuid.Parse(strings.TrimPrefix(channel, channelItemPrefix))

		return err == nil
	case strings.HasPrefix(channel, channelUserPrefix):
		return userID != uuid.Nil && channel == UserChannel(userID)
	default:
		return false
	}
}

package marketsvc_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/joynest/internal/domain"
	"github.com/mkrupp/joynest/internal/infra/transport/ws"
	"github.com/mkrupp/joynest/internal/svc/marketsvc"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*ws.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event *ws.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return p.err
}

func TestChangeChannels(t *testing.T) {
	t.Parallel()

	owner, bidder := uuid.New(), uuid.New()
	item := &domain.Item{ID: uuid.New(), OwnerID: owner}
	offer := &domain.Offer{ID: uuid.New(), ItemID: item.ID, BidderID: bidder}

	itemChannel := ws.ItemChannel(item.ID)

	tests := []struct {
		change domain.Change
		want   []string
	}{
		{change: domain.Change{Type: domain.ItemCreated, Item: item}, want: []string{itemChannel, ws.ChannelCatalog}},
		{change: domain.Change{Type: domain.ItemUpdated, Item: item}, want: []string{itemChannel, ws.ChannelCatalog}},
		{change: domain.Change{Type: domain.ItemDeleted, Item: item}, want: []string{itemChannel, ws.ChannelCatalog}},
		{
			change: domain.Change{Type: domain.ItemSold, Item: item},
			want:   []string{itemChannel, ws.ChannelCatalog, ws.UserChannel(owner)},
		},
		{
			change: domain.Change{Type: domain.OfferCreated, Item: item, Offer: offer},
			want:   []string{itemChannel, ws.UserChannel(owner)},
		},
		{
			change: domain.Change{Type: domain.OfferResolved, Item: item, Offer: offer},
			want:   []string{itemChannel, ws.UserChannel(bidder)},
		},
		{change: domain.Change{Type: domain.ItemCreated}, want: nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.change.Type), func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, marketsvc.ChangeChannels(tt.change))
		})
	}
}

func TestHubNotifier_Notify(t *testing.T) {
	t.Parallel()

	publisher := &recordingPublisher{}
	notifier := marketsvc.NewHubNotifier(publisher, marketsvc.NotifierConfig{PublishTimeout: time.Second})

	item := &domain.Item{ID: uuid.New(), OwnerID: uuid.New(), Title: "lamp"}
	notifier.Notify(context.Background(), domain.Change{Type: domain.ItemCreated, Item: item, Actor: item.OwnerID})

	require.Len(t, publisher.events, 2)

	for _, event := range publisher.events {
		assert.Equal(t, string(domain.ItemCreated), event.Type)

		var change domain.Change
		require.NoError(t, json.Unmarshal(event.Payload, &change))
		assert.Equal(t, "lamp", change.Item.Title)
	}

	assert.Equal(t, ws.ItemChannel(item.ID), publisher.events[0].Channel)
	assert.Equal(t, ws.ChannelCatalog, publisher.events[1].Channel)
}

func TestHubNotifier_PublishFailureKeepsGoing(t *testing.T) {
	t.Parallel()

	publisher := &recordingPublisher{err: errors.New("hub gone")}
	notifier := marketsvc.NewHubNotifier(publisher, marketsvc.NotifierConfig{PublishTimeout: time.Second})

	item := &domain.Item{ID: uuid.New(), OwnerID: uuid.New()}
	notifier.Notify(context.Background(), domain.Change{Type: domain.ItemSold, Item: item})

	assert.Len(t, publisher.events, 3)
}

func TestHubNotifier_WithHub(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := ws.NewHub()
	go hub.Run(ctx)

	notifier := marketsvc.NewHubNotifier(hub, marketsvc.NotifierConfig{PublishTimeout: time.Second})

	item := &domain.Item{ID: uuid.New(), OwnerID: uuid.New()}

	assert.NotPanics(t, func() {
		notifier.Notify(ctx, domain.Change{Type: domain.ItemUpdated, Item: item})
	})
	assert.Equal(t, 0, hub.Clients(ctx))
}

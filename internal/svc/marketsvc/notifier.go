package marketsvc

import (
	"context"
	"time"

	"github.com/mkrupp/joynest/internal/domain"
	"github.com/mkrupp/joynest/internal/infra/logging"
	"github.com/mkrupp/joynest/internal/infra/transport/ws"
)

// Notifier is told about every committed change.
type Notifier interface {
	Notify(ctx context.Context, change domain.Change)
}

// Publisher delivers events to websocket channels. *ws.Hub implements it.
type Publisher interface {
	Publish(ctx context.Context, event *ws.Event) error
}

// NotifierConfig contains configuration parameters for change notification.
type NotifierConfig struct {
	// PublishTimeout bounds how long a change may wait for the hub
	PublishTimeout time.Duration `env:"PUBLISH_TIMEOUT" default:"2s"`
}

// HubNotifier publishes changes as websocket events. Item changes go to the
// item's channel and, unless they concern offers, to the catalog. Offers are
// also announced privately: new ones to the item owner, decisions to the
// bidder. Sales are announced to the seller.
type HubNotifier struct {
	hub Publisher
	cfg NotifierConfig
	log logging.Logger
}

var _ Notifier = (*HubNotifier)(nil)

// NewHubNotifier creates a HubNotifier publishing through hub.
func NewHubNotifier(hub Publisher, cfg NotifierConfig) *HubNotifier {
	return &HubNotifier{
		hub: hub,
		cfg: cfg,
		log: logging.GetLogger("svc.marketsvc.notifier"),
	}
}

// Notify implements Notifier. Failures are logged, never returned: the
// change is committed whether or not anybody hears about it.
func (n *HubNotifier) Notify(ctx context.Context, change domain.Change) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.cfg.PublishTimeout)
	defer cancel()

	for _, channel := range ChangeChannels(change) {
		event, err := ws.NewEvent(string(change.Type), channel, change)
		if err != nil {
			n.log.ErrorContext(ctx, "new event failed", "type", change.Type, "error", err)

			return
		}

		if err := n.hub.Publish(ctx, event); err != nil {
			n.log.WarnContext(ctx, "publish failed", "type", change.Type, "channel", channel, "error", err)
		}
	}
}

// ChangeChannels returns the websocket channels a change is published on.
func ChangeChannels(change domain.Change) []string {
	if change.Item == nil {
		return nil
	}

	channels := []string{ws.ItemChannel(change.Item.ID)}

	switch change.Type {
	case domain.ItemCreated, domain.ItemUpdated, domain.ItemDeleted:
		channels = append(channels, ws.ChannelCatalog)
	case domain.ItemSold:
		channels = append(channels, ws.ChannelCatalog, ws.UserChannel(change.Item.OwnerID))
	case domain.OfferCreated:
		channels = append(channels, ws.UserChannel(change.Item.OwnerID))
	case domain.OfferResolved:
		if change.Offer != nil {
			channels = append(channels, ws.UserChannel(change.Offer.BidderID))
		}
	}

	return channels
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, domain.Change) {}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChangeType names a change to marketplace records.
type ChangeType string

const (
	ItemCreated   ChangeType = "item.created"
	ItemUpdated   ChangeType = "item.updated"
	ItemDeleted   ChangeType = "item.deleted"
	ItemSold      ChangeType = "item.sold"
	OfferCreated  ChangeType = "offer.created"
	OfferResolved ChangeType = "offer.resolved"
)

// Change describes a committed change. Item is always set, Offer only for
// offer changes.
type Change struct {
	Type  ChangeType `json:"type"`
	Item  *Item      `json:"item,omitempty"`
	Offer *Offer     `json:"offer,omitempty"`
	Actor uuid.UUID  `json:"actor"`
	At    time.Time  `json:"at"`
}

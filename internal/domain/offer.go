package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrOfferNotFound is returned when looking up a non-existent offer.
	ErrOfferNotFound = NewError(KindNotFound, "offer not found")
	// ErrOfferNotPending is returned when resolving an offer that was already accepted or rejected.
	ErrOfferNotPending = NewError(KindConflict, "offer is not pending")
	// ErrInvalidOfferAmount is returned for offers of zero or less.
	ErrInvalidOfferAmount = NewError(KindValidation, "offer amount must be greater than zero")
	// ErrInvalidOfferDecision is returned when resolving an offer to anything but accepted or rejected.
	ErrInvalidOfferDecision = NewError(KindValidation, "offer decision must be accepted or rejected")
	// ErrSelfOffer is returned when an owner bids on their own item.
	ErrSelfOffer = NewError(KindForbidden, "cannot offer on own item")
)

// OfferStatus is the lifecycle state of an offer.
type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferRejected OfferStatus = "rejected"
)

// Terminal reports whether no further transition is allowed from s.
func (s OfferStatus) Terminal() bool {
	return s == OfferAccepted || s == OfferRejected
}

// CanTransitionTo reports whether an offer in state s may move to next.
// The only transitions are pending to accepted and pending to rejected.
func (s OfferStatus) CanTransitionTo(next OfferStatus) bool {
	return s == OfferPending && next.Terminal()
}

// Offer is a bid on an item by a prospective buyer.
type Offer struct {
	ID        uuid.UUID       `db:"id"         json:"id"`
	ItemID    uuid.UUID       `db:"item_id"    json:"itemId"`
	BidderID  uuid.UUID       `db:"bidder_id"  json:"bidderId"`
	Amount    decimal.Decimal `db:"amount"     json:"amount"`
	Status    OfferStatus     `db:"status"     json:"status"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}

// OfferCount is the number of offers on an item.
type OfferCount struct {
	ItemID uuid.UUID `db:"item_id" json:"itemId"`
	Count  int       `db:"count"   json:"count"`
}

package market

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mkrupp/joynest/internal/domain"
)

// ItemRepository defines the interface for item persistence.
type ItemRepository interface {
	// CreateItem stores a new item.
	CreateItem(ctx context.Context, item *domain.Item) error

	// GetItem retrieves an item by its ID.
	// Returns ErrItemNotFound if there is no such item.
	GetItem(ctx context.Context, id uuid.UUID) (*domain.Item, error)

	// UpdateItem stores the owner editable fields of an unsold item.
	// Returns ErrItemNotFound if there is no such item and ErrItemAlreadySold
	// if it was sold in the meantime.
	UpdateItem(ctx context.Context, item *domain.Item) error

	// DeleteItem removes an item together with its offers.
	// Returns ErrItemNotFound if there is no such item.
	DeleteItem(ctx context.Context, id uuid.UUID) error

	// ListUnsoldItems returns all unsold items, newest first.
	ListUnsoldItems(ctx context.Context) ([]*domain.Item, error)

	// ListItemsByOwner returns the items of an owner, sold or not, newest first.
	ListItemsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Item, error)

	// MarkSold sets the sold flag and buyer of an item if, and only if, it is
	// still unsold. Of any number of concurrent calls for the same item exactly
	// one succeeds; the others get ErrItemAlreadySold.
	// Returns ErrItemNotFound if there is no such item.
	MarkSold(ctx context.Context, id uuid.UUID, buyerID uuid.UUID, at time.Time) error
}

// OfferRepository defines the interface for offer persistence.
type OfferRepository interface {
	// CreateOffer stores a new offer.
	CreateOffer(ctx context.Context, offer *domain.Offer) error

	// GetOffer retrieves an offer by its ID.
	// Returns ErrOfferNotFound if there is no such offer.
	GetOffer(ctx context.Context, id uuid.UUID) (*domain.Offer, error)

	// ListOffersByItem returns the offers on an item, newest first.
	ListOffersByItem(ctx context.Context, itemID uuid.UUID) ([]*domain.Offer, error)

	// ListOffersByBidder returns the offers a user made, newest first.
	ListOffersByBidder(ctx context.Context, bidderID uuid.UUID) ([]*domain.Offer, error)

	// CountOffers returns the number of offers per item for the given items.
	// Items without offers are reported with a count of zero.
	CountOffers(ctx context.Context, itemIDs []uuid.UUID) ([]domain.OfferCount, error)

	// ResolveOffer moves a pending offer to status. Only one of any number of
	// concurrent calls for the same offer succeeds; the others get
	// ErrOfferNotPending.
	// Returns ErrOfferNotFound if there is no such offer.
	ResolveOffer(ctx context.Context, id uuid.UUID, status domain.OfferStatus, at time.Time) error
}

// Repository combines item and offer persistence on one store.
type Repository interface {
	ItemRepository
	OfferRepository

	// Close releases any resources held by the repository.
	// Returns an error if cleanup fails.
	Close() error
}

// RepositoryFactory is a function that creates a new Repository instance.
// Returns an error if initialization fails.
type RepositoryFactory func(ctx context.Context) (Repository, error)

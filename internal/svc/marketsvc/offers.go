package marketsvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mkrupp/joynest/internal/domain"
	"github.com/mkrupp/joynest/internal/infra/logging"
)

// SubmitOffer records a pending offer of amount by bidderID on an unsold item
// of somebody else. The amount is checked before anything is read or written.
func (s *MarketService) SubmitOffer(
	ctx context.Context,
	itemID uuid.UUID,
	bidderID uuid.UUID,
	amount decimal.Decimal,
) (offer *domain.Offer, err error) {
	log := s.Log.With(logging.Group("offer", "item", itemID, "bidder", bidderID, "amount", amount))

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "submit offer failed", "error", err)
		} else {
			log.InfoContext(ctx, "offer submitted", "id", offer.ID)
		}
	}()

	if bidderID == uuid.Nil {
		return nil, domain.ErrUnauthorized
	}

	amount = amount.Round(2)
	if !amount.IsPositive() {
		return nil, errors.Join(domain.ErrInvalidOfferAmount, domain.ValidationErrors{"amount": "must be greater than 0"})
	}

	if amount.GreaterThan(domain.MaxPrice) {
		return nil, errors.Join(domain.ErrInvalidOfferAmount, domain.ValidationErrors{"amount": "must be at most " + domain.MaxPrice.String()})
	}

	item, err := s.Repo.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}

	if item.OwnedBy(bidderID) {
		return nil, domain.ErrSelfOffer
	}

	if item.IsSold {
		return nil, domain.ErrItemAlreadySold
	}

	offerID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("new offer id: %w", err)
	}

	now := s.now()

	offer = &domain.Offer{
		ID:        offerID,
		ItemID:    itemID,
		BidderID:  bidderID,
		Amount:    amount,
		Status:    domain.OfferPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.Repo.CreateOffer(ctx, offer); err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}

	s.metrics.offerSubmitted()
	s.notify(ctx, domain.OfferCreated, bidderID, item, offer)

	return offer, nil
}

// ResolveOffer accepts or rejects a pending offer on an item of callerID.
// Accepting an offer leaves competing offers pending and the item unsold.
func (s *MarketService) ResolveOffer(
	ctx context.Context,
	offerID uuid.UUID,
	callerID uuid.UUID,
	decision domain.OfferStatus,
) (offer *domain.Offer, err error) {
	log := s.Log.With(logging.Group("offer", "id", offerID, "caller", callerID, "decision", decision))

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "resolve offer failed", "error", err)
		} else {
			log.InfoContext(ctx, "offer resolved")
		}
	}()

	if callerID == uuid.Nil {
		return nil, domain.ErrUnauthorized
	}

	if !decision.Terminal() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidOfferDecision, decision)
	}

	offer, err = s.Repo.GetOffer(ctx, offerID)
	if err != nil {
		return nil, fmt.Errorf("get offer: %w", err)
	}

	item, err := s.ownedItem(ctx, offer.ItemID, callerID)
	if err != nil {
		return nil, err
	}

	if !offer.Status.CanTransitionTo(decision) {
		return nil, fmt.Errorf("%w: offer is %s", domain.ErrOfferNotPending, offer.Status)
	}

	now := s.now()

	if err := s.Repo.ResolveOffer(ctx, offerID, decision, now); err != nil {
		return nil, fmt.Errorf("resolve offer: %w", err)
	}

	offer.Status = decision
	offer.UpdatedAt = now

	s.metrics.offerResolved(decision)
	s.notify(ctx, domain.OfferResolved, callerID, item, offer)

	return offer, nil
}

// ListOffers returns the offers on an item, newest first.
func (s *MarketService) ListOffers(ctx context.Context, itemID uuid.UUID) ([]*domain.Offer, error) {
	if _, err := s.Repo.GetItem(ctx, itemID); err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}

	offers, err := s.Repo.ListOffersByItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}

	return offers, nil
}

// ListOffersByBidder returns the offers a user made, newest first.
func (s *MarketService) ListOffersByBidder(ctx context.Context, bidderID uuid.UUID) ([]*domain.Offer, error) {
	if bidderID == uuid.Nil {
		return nil, domain.ErrUnauthorized
	}

	offers, err := s.Repo.ListOffersByBidder(ctx, bidderID)
	if err != nil {
		return nil, fmt.Errorf("list offers by bidder: %w", err)
	}

	return offers, nil
}

// CountOffers returns the number of offers of any status per item, in the
// order of itemIDs. Unknown items count zero.
func (s *MarketService) CountOffers(ctx context.Context, itemIDs []uuid.UUID) ([]domain.OfferCount, error) {
	if len(itemIDs) > domain.MaxPageSize {
		return nil, domain.ValidationErrors{"itemId": fmt.Sprintf("must not list more than %d items", domain.MaxPageSize)}
	}

	counts, err := s.Repo.CountOffers(ctx, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("count offers: %w", err)
	}

	return counts, nil
}

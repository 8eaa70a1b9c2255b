// Package marketsvc implements the marketplace: the item catalog, offers and
// their lifecycle, and purchases.
package marketsvc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mkrupp/joynest/internal/domain"
	context_ "github.com/mkrupp/joynest/internal/infra/context"
	"github.com/mkrupp/joynest/internal/infra/logging"
	"github.com/mkrupp/joynest/internal/infra/metrics"
	"github.com/mkrupp/joynest/internal/infra/validation"
	"github.com/mkrupp/joynest/internal/repo/market"
	"github.com/mkrupp/joynest/internal/svc/imagesvc"
)

// ImageDeleter removes uploaded images. imagesvc.ImageService implements it.
type ImageDeleter interface {
	Delete(ctx context.Context, reference string) error
}

// MarketService provides the marketplace operations. Ownership is checked
// here: only owners edit, delete and decide on offers for their items, and
// nobody bids on or buys their own item.
type MarketService struct {
	Repo     market.Repository
	Images   ImageDeleter
	Notifier Notifier
	Log      logging.Logger
	Now      func() time.Time

	metrics *marketMetrics
}

// NewMarketService creates a new MarketService. images, notifier and
// registry may be nil.
func NewMarketService(
	ctx context.Context,
	repoFactory market.RepositoryFactory,
	images ImageDeleter,
	notifier Notifier,
	registry *metrics.Registry,
) (*MarketService, error) {
	repo, err := repoFactory(ctx)
	if err != nil {
		return nil, fmt.Errorf("new market repo: %w", err)
	}

	if notifier == nil {
		notifier = nopNotifier{}
	}

	return &MarketService{
		Repo:     repo,
		Images:   images,
		Notifier: notifier,
		Log:      logging.GetLogger("svc.marketsvc.market_service"),
		Now:      time.Now,
		metrics:  newMarketMetrics(registry),
	}, nil
}

// Close releases the repository.
func (s *MarketService) Close() error {
	return s.Repo.Close()
}

func (s *MarketService) now() time.Time {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}

	return now().UTC().Truncate(time.Microsecond)
}

func (s *MarketService) notify(ctx context.Context, changeType domain.ChangeType, actor uuid.UUID, item *domain.Item, offer *domain.Offer) {
	if s.Notifier == nil {
		return
	}

	s.Notifier.Notify(ctx, domain.Change{Type: changeType, Item: item, Offer: offer, Actor: actor, At: s.now()})
}

// ListItems returns a page of unsold items matching filter, newest first.
// No match is an empty page, not an error.
func (s *MarketService) ListItems(ctx context.Context, filter domain.CatalogFilter) (CatalogPage, error) {
	items, err := s.Repo.ListUnsoldItems(ctx)
	if err != nil {
		s.Log.ErrorContext(ctx, "list items failed", "error", err)

		return CatalogPage{}, fmt.Errorf("list unsold items: %w", err)
	}

	return FilterItems(items, filter), nil
}

// GetItem returns an item, sold or not.
func (s *MarketService) GetItem(ctx context.Context, itemID uuid.UUID) (*domain.Item, error) {
	item, err := s.Repo.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}

	return item, nil
}

// ListItemsByOwner returns all items of an owner, including sold ones, newest first.
func (s *MarketService) ListItemsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Item, error) {
	items, err := s.Repo.ListItemsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list items by owner: %w", err)
	}

	return items, nil
}

// CreateItem lists a new item owned by ownerID.
func (s *MarketService) CreateItem(
	ctx context.Context,
	ownerID uuid.UUID,
	draft domain.ItemDraft,
) (item *domain.Item, err error) {
	log := s.Log.With(logging.Group("item", "owner", ownerID, "title", draft.Title))

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "create item failed", "error", err)
		} else {
			log.InfoContext(ctx, "item created", "id", item.ID)
		}
	}()

	if ownerID == uuid.Nil {
		return nil, domain.ErrUnauthorized
	}

	draft.Title = strings.TrimSpace(draft.Title)
	draft.Description = strings.TrimSpace(draft.Description)
	draft.ImageURL = strings.TrimSpace(draft.ImageURL)
	draft.Price = draft.Price.Round(2)

	if err := validation.Merge(validation.Struct(draft), checkItemValues(draft.Price, draft.Condition, draft.Category)); err != nil {
		return nil, err
	}

	itemID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("new item id: %w", err)
	}

	now := s.now()

	item = &domain.Item{
		ID:          itemID,
		Title:       draft.Title,
		Description: draft.Description,
		Price:       draft.Price,
		Condition:   draft.Condition,
		Category:    draft.Category,
		ImageURL:    draft.ImageURL,
		OwnerID:     ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.Repo.CreateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}

	s.metrics.itemCreated()
	s.notify(ctx, domain.ItemCreated, ownerID, item, nil)

	return item, nil
}

// UpdateItem applies patch to an unsold item of callerID. A replaced local
// image is deleted.
func (s *MarketService) UpdateItem(
	ctx context.Context,
	itemID uuid.UUID,
	callerID uuid.UUID,
	patch domain.ItemPatch,
) (item *domain.Item, err error) {
	log := s.Log.With(logging.Group("item", "id", itemID, "caller", callerID))

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "update item failed", "error", err)
		} else {
			log.DebugContext(ctx, "item updated")
		}
	}()

	if err := validation.Struct(patch); err != nil {
		return nil, err
	}

	item, err = s.ownedItem(ctx, itemID, callerID)
	if err != nil {
		return nil, err
	}

	if item.IsSold {
		return nil, domain.ErrItemAlreadySold
	}

	oldImage := item.ImageURL

	patch.Apply(item)
	item.ImageURL = strings.TrimSpace(item.ImageURL)

	verrs := validation.Merge(checkItemValues(item.Price, item.Condition, item.Category), checkRequired(item))
	if verrs != nil {
		return nil, verrs
	}

	item.UpdatedAt = s.now()

	if err := s.Repo.UpdateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}

	if oldImage != item.ImageURL {
		s.dropImage(ctx, callerID, oldImage)
	}

	s.notify(ctx, domain.ItemUpdated, callerID, item, nil)

	return item, nil
}

// DeleteItem removes an item of callerID together with its offers and its
// image, if that was uploaded here.
func (s *MarketService) DeleteItem(ctx context.Context, itemID uuid.UUID, callerID uuid.UUID) (err error) {
	log := s.Log.With(logging.Group("item", "id", itemID, "caller", callerID))

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "delete item failed", "error", err)
		} else {
			log.InfoContext(ctx, "item deleted")
		}
	}()

	item, err := s.ownedItem(ctx, itemID, callerID)
	if err != nil {
		return err
	}

	if err := s.Repo.DeleteItem(ctx, itemID); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}

	s.dropImage(ctx, callerID, item.ImageURL)
	s.notify(ctx, domain.ItemDeleted, callerID, item, nil)

	return nil
}

// PurchaseItem marks an item sold to buyerID. Of concurrent purchases of the
// same item exactly one succeeds; the others get ErrItemAlreadySold.
func (s *MarketService) PurchaseItem(ctx context.Context, itemID uuid.UUID, buyerID uuid.UUID) (item *domain.Item, err error) {
	log := s.Log.With(logging.Group("item", "id", itemID, "buyer", buyerID))

	defer func() {
		s.metrics.purchase(err)

		if err != nil {
			log.WarnContext(ctx, "purchase failed", "error", err)
		} else {
			log.InfoContext(ctx, "item purchased")
		}
	}()

	if buyerID == uuid.Nil {
		return nil, domain.ErrUnauthorized
	}

	item, err = s.Repo.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}

	if item.OwnedBy(buyerID) {
		return nil, domain.ErrSelfPurchase
	}

	if item.IsSold {
		return nil, domain.ErrItemAlreadySold
	}

	now := s.now()

	if err := s.Repo.MarkSold(ctx, itemID, buyerID, now); err != nil {
		return nil, fmt.Errorf("mark sold: %w", err)
	}

	item.IsSold = true
	item.BuyerID = &buyerID
	item.UpdatedAt = now

	s.notify(ctx, domain.ItemSold, buyerID, item, nil)

	return item, nil
}

// ownedItem loads an item and checks that callerID owns it.
func (s *MarketService) ownedItem(ctx context.Context, itemID uuid.UUID, callerID uuid.UUID) (*domain.Item, error) {
	if callerID == uuid.Nil {
		return nil, domain.ErrUnauthorized
	}

	item, err := s.Repo.GetItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}

	if !item.OwnedBy(callerID) {
		return nil, fmt.Errorf("%w: item %s belongs to another user", domain.ErrForbidden, itemID)
	}

	return item, nil
}

// dropImage deletes an uploaded image that is no longer used. External URLs
// are left alone, failures only logged.
func (s *MarketService) dropImage(ctx context.Context, ownerID uuid.UUID, reference string) {
	if s.Images == nil || reference == "" || !imagesvc.IsLocalReference(reference) {
		return
	}

	if _, ok := context_.PrincipalFromContext(ctx); !ok {
		ctx = context_.WithPrincipal(ctx, context_.Principal{UserID: ownerID})
	}

	err := s.Images.Delete(ctx, reference)
	if err != nil && !errors.Is(err, domain.ErrMediaNotFound) {
		s.Log.WarnContext(ctx, "delete image failed", "reference", reference, "error", err)
	}
}

func checkItemValues(price decimal.Decimal, condition domain.Condition, category domain.Category) error {
	errs := domain.ValidationErrors{}

	if !domain.ValidPrice(price) {
		errs["price"] = "must be greater than 0 and at most " + domain.MaxPrice.String()
	}

	if !condition.Valid() {
		errs["condition"] = "is not a known condition"
	}

	if !category.Valid() {
		errs["category"] = "is not a known category"
	}

	if len(errs) == 0 {
		return nil
	}

	return errs
}

func checkRequired(item *domain.Item) error {
	errs := domain.ValidationErrors{}

	if item.Title == "" {
		errs["title"] = "is required"
	}

	if item.Description == "" {
		errs["description"] = "is required"
	}

	if len(errs) == 0 {
		return nil
	}

	return errs
}

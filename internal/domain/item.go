package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrItemNotFound is returned when looking up a non-existent item.
	ErrItemNotFound = NewError(KindNotFound, "item not found")
	// ErrItemAlreadySold is returned when a purchase loses the race for an item,
	// or when a sold item is edited.
	ErrItemAlreadySold = NewError(KindConflict, "item already sold")
	// ErrSelfPurchase is returned when an owner tries to buy their own item.
	ErrSelfPurchase = NewError(KindForbidden, "cannot buy own item")
	// ErrInvalidPrice is returned for prices outside (0, MaxPrice].
	ErrInvalidPrice = NewError(KindValidation, "invalid price")
)

// MaxPrice is the largest accepted item price.
//
//nolint:gochecknoglobals
var MaxPrice = decimal.NewFromInt(999999)

// Condition describes the wear of an item.
type Condition string

const (
	ConditionNew      Condition = "new"
	ConditionLikeNew  Condition = "like new"
	ConditionGood     Condition = "good"
	ConditionFair     Condition = "fair"
	ConditionPoor     Condition = "poor"
	ConditionNotGiven Condition = ""
)

// Conditions lists the valid conditions, best first.
//
//nolint:gochecknoglobals
var Conditions = []Condition{ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair, ConditionPoor}

// Valid reports whether c is a known condition or not given.
func (c Condition) Valid() bool {
	return c == ConditionNotGiven || slices.Contains(Conditions, c)
}

// Category groups items in the catalog.
type Category string

const (
	CategoryElectronics  Category = "electronics"
	CategoryClothing     Category = "clothing"
	CategoryBooks        Category = "books"
	CategoryFurniture    Category = "furniture"
	CategorySports       Category = "sports"
	CategoryToys         Category = "toys"
	CategoryJewelry      Category = "jewelry"
	CategoryArt          Category = "art"
	CategoryCollectibles Category = "collectibles"
	CategoryAutomotive   Category = "automotive"
	CategoryHomeGarden   Category = "home & garden"
	CategoryMusic        Category = "music"
	CategoryOther        Category = "other"
	CategoryNotGiven     Category = ""
)

// Categories lists the valid categories.
//
//nolint:gochecknoglobals
var Categories = []Category{
	CategoryElectronics, CategoryClothing, CategoryBooks, CategoryFurniture,
	CategorySports, CategoryToys, CategoryJewelry, CategoryArt, CategoryCollectibles,
	CategoryAutomotive, CategoryHomeGarden, CategoryMusic, CategoryOther,
}

// Valid reports whether c is a known category or not given.
func (c Category) Valid() bool {
	return c == CategoryNotGiven || slices.Contains(Categories, c)
}

// Item is a marketplace listing. Once IsSold is set it is never cleared.
type Item struct {
	ID          uuid.UUID       `db:"id"          json:"id"`
	Title       string          `db:"title"       json:"title"`
	Description string          `db:"description" json:"description"`
	Price       decimal.Decimal `db:"price"       json:"price"`
	Condition   Condition       `db:"condition"   json:"condition,omitempty"`
	Category    Category        `db:"category"    json:"category,omitempty"`
	ImageURL    string          `db:"image_url"   json:"imageUrl,omitempty"`
	OwnerID     uuid.UUID       `db:"owner_id"    json:"ownerId"`
	IsSold      bool            `db:"is_sold"     json:"isSold"`
	BuyerID     *uuid.UUID      `db:"buyer_id"    json:"buyerId,omitempty"`
	CreatedAt   time.Time       `db:"created_at"  json:"createdAt"`
	UpdatedAt   time.Time       `db:"updated_at"  json:"updatedAt"`
}

// OwnedBy reports whether userID created the item.
func (i *Item) OwnedBy(userID uuid.UUID) bool {
	return userID != uuid.Nil && i.OwnerID == userID
}

// Contains reports whether the lower-cased term occurs in the item's title,
// description, category or condition.
func (i *Item) Contains(term string) bool {
	if term == "" {
		return true
	}

	for _, field := range []string{i.Title, i.Description, string(i.Category), string(i.Condition)} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}

	return false
}

// ValidPrice reports whether p is an acceptable item price.
func ValidPrice(p decimal.Decimal) bool {
	return p.IsPositive() && p.LessThanOrEqual(MaxPrice)
}

// ItemDraft holds the user supplied fields of a new or edited item.
type ItemDraft struct {
	Title       string          `json:"title"       validate:"required,max=120"`
	Description string          `json:"description" validate:"required,max=4000"`
	Price       decimal.Decimal `json:"price"`
	Condition   Condition       `json:"condition"`
	Category    Category        `json:"category"`
	ImageURL    string          `json:"imageUrl"    validate:"omitempty,max=512"`
}

// ItemPatch holds the fields of an item an owner may change. Nil fields are
// left untouched.
type ItemPatch struct {
	Title       *string          `json:"title"       validate:"omitempty,min=1,max=120"`
	Description *string          `json:"description" validate:"omitempty,min=1,max=4000"`
	Price       *decimal.Decimal `json:"price"`
	Condition   *Condition       `json:"condition"`
	Category    *Category        `json:"category"`
	ImageURL    *string          `json:"imageUrl"    validate:"omitempty,max=512"`
}

// Apply copies the set fields of the patch onto item.
func (patch ItemPatch) Apply(item *Item) {
	if patch.Title != nil {
		item.Title = strings.TrimSpace(*patch.Title)
	}

	if patch.Description != nil {
		item.Description = strings.TrimSpace(*patch.Description)
	}

	if patch.Price != nil {
		item.Price = patch.Price.Round(2)
	}

	if patch.Condition != nil {
		item.Condition = *patch.Condition
	}

	if patch.Category != nil {
		item.Category = *patch.Category
	}

	if patch.ImageURL != nil {
		item.ImageURL = *patch.ImageURL
	}
}

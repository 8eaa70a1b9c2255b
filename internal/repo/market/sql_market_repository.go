package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mkrupp/joynest/internal/domain"
	"github.com/mkrupp/joynest/internal/infra/logging"
	"github.com/mkrupp/joynest/internal/repo/sqldb"
)

// SQLMarketRepositoryConfig holds configuration for the SQL market repository.
type SQLMarketRepositoryConfig struct {
	DB sqldb.Config `envPrefix:"DB_"`
}

// SQLMarketRepository implements Repository on top of SQLite or PostgreSQL.
type SQLMarketRepository struct {
	db  *sqldb.DB
	log logging.Logger
}

var _ Repository = (*SQLMarketRepository)(nil)

const (
	itemColumns  = "id, title, description, price, condition, category, image_url, owner_id, is_sold, buyer_id, created_at, updated_at"
	offerColumns = "id, item_id, bidder_id, amount, status, created_at, updated_at"
)

//nolint:gochecknoglobals
var schema = sqldb.Schema{
	sqldb.DialectSQLite: {
		`CREATE TABLE IF NOT EXISTS items (
			id          TEXT      PRIMARY KEY,
			title       TEXT      NOT NULL,
			description TEXT      NOT NULL,
			price       TEXT      NOT NULL,
			condition   TEXT      NOT NULL DEFAULT '',
			category    TEXT      NOT NULL DEFAULT '',
			image_url   TEXT      NOT NULL DEFAULT '',
			owner_id    TEXT      NOT NULL,
			is_sold     BOOLEAN   NOT NULL DEFAULT FALSE,
			buyer_id    TEXT,
			created_at  TIMESTAMP NOT NULL,
			updated_at  TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS items_owner_id ON items (owner_id)`,
		`CREATE INDEX IF NOT EXISTS items_is_sold_created_at ON items (is_sold, created_at)`,
		`CREATE TABLE IF NOT EXISTS offers (
			id         TEXT      PRIMARY KEY,
			item_id    TEXT      NOT NULL REFERENCES items (id) ON DELETE CASCADE,
			bidder_id  TEXT      NOT NULL,
			amount     TEXT      NOT NULL,
			status     TEXT      NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS offers_item_id ON offers (item_id)`,
		`CREATE INDEX IF NOT EXISTS offers_bidder_id ON offers (bidder_id)`,
	},
	sqldb.DialectPostgres: {
		`CREATE TABLE IF NOT EXISTS items (
			id          UUID          PRIMARY KEY,
			title       TEXT          NOT NULL,
			description TEXT          NOT NULL,
			price       NUMERIC(8, 2) NOT NULL CHECK (price > 0),
			condition   TEXT          NOT NULL DEFAULT '',
			category    TEXT          NOT NULL DEFAULT '',
			image_url   TEXT          NOT NULL DEFAULT '',
			owner_id    UUID          NOT NULL,
			is_sold     BOOLEAN       NOT NULL DEFAULT FALSE,
			buyer_id    UUID,
			created_at  TIMESTAMPTZ   NOT NULL,
			updated_at  TIMESTAMPTZ   NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS items_owner_id ON items (owner_id)`,
		`CREATE INDEX IF NOT EXISTS items_is_sold_created_at ON items (is_sold, created_at)`,
		`CREATE TABLE IF NOT EXISTS offers (
			id         UUID           PRIMARY KEY,
			item_id    UUID           NOT NULL REFERENCES items (id) ON DELETE CASCADE,
			bidder_id  UUID           NOT NULL,
			amount     NUMERIC(12, 2) NOT NULL CHECK (amount > 0),
			status     TEXT           NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ    NOT NULL,
			updated_at TIMESTAMPTZ    NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS offers_item_id ON offers (item_id)`,
		`CREATE INDEX IF NOT EXISTS offers_bidder_id ON offers (bidder_id)`,
	},
}

// SQLMarketRepositoryFactory creates a factory function that returns a new SQLMarketRepository.
// The factory function implements the RepositoryFactory type.
func SQLMarketRepositoryFactory(cfg SQLMarketRepositoryConfig) RepositoryFactory {
	return func(ctx context.Context) (Repository, error) {
		db, err := sqldb.Open(ctx, cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}

		repo, err := NewSQLMarketRepository(ctx, db)
		if err != nil {
			_ = db.Close()

			return nil, err
		}

		return repo, nil
	}
}

// NewSQLMarketRepository creates a new SQLMarketRepository on an open
// database and creates the schema if needed.
func NewSQLMarketRepository(ctx context.Context, db *sqldb.DB) (*SQLMarketRepository, error) {
	log := logging.GetLogger("repo.market.sql_market_repository").With(
		logging.Group("db", "driver", db.Dialect()),
	)

	if err := db.Migrate(ctx, schema); err != nil {
		return nil, fmt.Errorf("initialize db: %w", err)
	}

	return &SQLMarketRepository{
		db:  db,
		log: log,
	}, nil
}

// CreateItem implements ItemRepository.CreateItem.
func (r *SQLMarketRepository) CreateItem(ctx context.Context, item *domain.Item) error {
	return r.db.Write(func() error {
		if _, err := r.db.NamedExecContext(ctx, `
			INSERT INTO items (`+itemColumns+`)
			VALUES (:id, :title, :description, :price, :condition, :category, :image_url,
			        :owner_id, :is_sold, :buyer_id, :created_at, :updated_at)
		`, item); err != nil {
			return fmt.Errorf("insert item: %w", err)
		}

		return nil
	})
}

// GetItem implements ItemRepository.GetItem.
func (r *SQLMarketRepository) GetItem(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	var item domain.Item

	err := r.db.GetContext(ctx, &item, r.db.Rebind("SELECT "+itemColumns+" FROM items WHERE id = ?"), id)
	if err != nil {
		if sqldb.IsNoRows(err) {
			err = errors.Join(domain.ErrItemNotFound, err)
		}

		return nil, fmt.Errorf("query item: %w", err)
	}

	return &item, nil
}

// UpdateItem implements ItemRepository.UpdateItem.
func (r *SQLMarketRepository) UpdateItem(ctx context.Context, item *domain.Item) error {
	return r.db.Write(func() error {
		res, err := r.db.NamedExecContext(ctx, `
			UPDATE items
			SET title = :title, description = :description, price = :price, condition = :condition,
			    category = :category, image_url = :image_url, updated_at = :updated_at
			WHERE id = :id AND is_sold = FALSE
		`, item)
		if err != nil {
			return fmt.Errorf("update item: %w", err)
		}

		return r.expectUnsold(ctx, res, item.ID)
	})
}

// DeleteItem implements ItemRepository.DeleteItem.
func (r *SQLMarketRepository) DeleteItem(ctx context.Context, id uuid.UUID) error {
	return r.db.WriteTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM offers WHERE item_id = ?"), id); err != nil {
			return fmt.Errorf("delete offers: %w", err)
		}

		res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM items WHERE id = ?"), id)
		if err != nil {
			return fmt.Errorf("delete item: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}

		if n == 0 {
			return domain.ErrItemNotFound
		}

		return nil
	})
}

// ListUnsoldItems implements ItemRepository.ListUnsoldItems.
func (r *SQLMarketRepository) ListUnsoldItems(ctx context.Context) ([]*domain.Item, error) {
	items := []*domain.Item{}

	if err := r.db.SelectContext(ctx, &items,
		"SELECT "+itemColumns+" FROM items WHERE is_sold = FALSE ORDER BY created_at DESC, id DESC",
	); err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}

	return items, nil
}

// ListItemsByOwner implements ItemRepository.ListItemsByOwner.
func (r *SQLMarketRepository) ListItemsByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Item, error) {
	items := []*domain.Item{}

	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(
		"SELECT "+itemColumns+" FROM items WHERE owner_id = ? ORDER BY created_at DESC, id DESC",
	), ownerID); err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}

	return items, nil
}

// MarkSold implements ItemRepository.MarkSold as a single conditional update.
func (r *SQLMarketRepository) MarkSold(ctx context.Context, id uuid.UUID, buyerID uuid.UUID, at time.Time) error {
	return r.db.Write(func() error {
		res, err := r.db.ExecContext(ctx, r.db.Rebind(
			"UPDATE items SET is_sold = TRUE, buyer_id = ?, updated_at = ? WHERE id = ? AND is_sold = FALSE",
		), buyerID, at, id)
		if err != nil {
			return fmt.Errorf("mark item sold: %w", err)
		}

		return r.expectUnsold(ctx, res, id)
	})
}

// expectUnsold turns a conditional item update that matched no row into
// ErrItemNotFound or ErrItemAlreadySold.
func (r *SQLMarketRepository) expectUnsold(ctx context.Context, res rowsAffecter, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if n > 0 {
		return nil
	}

	var exists int
	if err := r.db.GetContext(ctx, &exists, r.db.Rebind("SELECT COUNT(*) FROM items WHERE id = ?"), id); err != nil {
		return fmt.Errorf("query item: %w", err)
	}

	if exists == 0 {
		return domain.ErrItemNotFound
	}

	return domain.ErrItemAlreadySold
}

// CreateOffer implements OfferRepository.CreateOffer.
func (r *SQLMarketRepository) CreateOffer(ctx context.Context, offer *domain.Offer) error {
	return r.db.Write(func() error {
		if _, err := r.db.NamedExecContext(ctx, `
			INSERT INTO offers (`+offerColumns+`)
			VALUES (:id, :item_id, :bidder_id, :amount, :status, :created_at, :updated_at)
		`, offer); err != nil {
			return fmt.Errorf("insert offer: %w", err)
		}

		return nil
	})
}

// GetOffer implements OfferRepository.GetOffer.
func (r *SQLMarketRepository) GetOffer(ctx context.Context, id uuid.UUID) (*domain.Offer, error) {
	var offer domain.Offer

	err := r.db.GetContext(ctx, &offer, r.db.Rebind("SELECT "+offerColumns+" FROM offers WHERE id = ?"), id)
	if err != nil {
		if sqldb.IsNoRows(err) {
			err = errors.Join(domain.ErrOfferNotFound, err)
		}

		return nil, fmt.Errorf("query offer: %w", err)
	}

	return &offer, nil
}

// ListOffersByItem implements OfferRepository.ListOffersByItem.
func (r *SQLMarketRepository) ListOffersByItem(ctx context.Context, itemID uuid.UUID) ([]*domain.Offer, error) {
	return r.listOffers(ctx, "item_id", itemID)
}

// ListOffersByBidder implements OfferRepository.ListOffersByBidder.
func (r *SQLMarketRepository) ListOffersByBidder(ctx context.Context, bidderID uuid.UUID) ([]*domain.Offer, error) {
	return r.listOffers(ctx, "bidder_id", bidderID)
}

func (r *SQLMarketRepository) listOffers(ctx context.Context, column string, id uuid.UUID) ([]*domain.Offer, error) {
	offers := []*domain.Offer{}

	//nolint:gosec // column is one of two constants
	if err := r.db.SelectContext(ctx, &offers, r.db.Rebind(
		"SELECT "+offerColumns+" FROM offers WHERE "+column+" = ? ORDER BY created_at DESC, id DESC",
	), id); err != nil {
		return nil, fmt.Errorf("query offers: %w", err)
	}

	return offers, nil
}

// CountOffers implements OfferRepository.CountOffers.
func (r *SQLMarketRepository) CountOffers(ctx context.Context, itemIDs []uuid.UUID) ([]domain.OfferCount, error) {
	if len(itemIDs) == 0 {
		return []domain.OfferCount{}, nil
	}

	query, args, err := sqlx.In(
		"SELECT item_id, COUNT(*) AS count FROM offers WHERE item_id IN (?) GROUP BY item_id",
		itemIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []domain.OfferCount
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("query offer counts: %w", err)
	}

	counts := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		counts[row.ItemID] = row.Count
	}

	result := make([]domain.OfferCount, 0, len(itemIDs))
	for _, id := range itemIDs {
		result = append(result, domain.OfferCount{ItemID: id, Count: counts[id]})
	}

	return result, nil
}

// ResolveOffer implements OfferRepository.ResolveOffer as a single conditional update.
func (r *SQLMarketRepository) ResolveOffer(
	ctx context.Context,
	id uuid.UUID,
	status domain.OfferStatus,
	at time.Time,
) error {
	if !domain.OfferPending.CanTransitionTo(status) {
		return domain.ErrInvalidOfferDecision
	}

	return r.db.Write(func() error {
		res, err := r.db.ExecContext(ctx, r.db.Rebind(
			"UPDATE offers SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		), status, at, id, domain.OfferPending)
		if err != nil {
			return fmt.Errorf("resolve offer: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}

		if n > 0 {
			return nil
		}

		var exists int
		if err := r.db.GetContext(ctx, &exists, r.db.Rebind("SELECT COUNT(*) FROM offers WHERE id = ?"), id); err != nil {
			return fmt.Errorf("query offer: %w", err)
		}

		if exists == 0 {
			return domain.ErrOfferNotFound
		}

		return domain.ErrOfferNotPending
	})
}

// Close implements Repository.Close by closing the database connection.
func (r *SQLMarketRepository) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	return nil
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

package marketsvc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mkrupp/joynest/internal/domain"
	context_ "github.com/mkrupp/joynest/internal/infra/context"
	"github.com/mkrupp/joynest/internal/infra/logging"
	"github.com/mkrupp/joynest/internal/infra/metrics"
	http_ "github.com/mkrupp/joynest/internal/infra/transport/http"
	"github.com/mkrupp/joynest/internal/infra/transport/ws"
	"github.com/mkrupp/joynest/internal/svc/authsvc/authclient"
)

// HTTPTransportConfig contains configuration parameters for the HTTP transport layer.
type HTTPTransportConfig struct {
	http_.HTTPTransportConfig

	RateLimit http_.RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	Metrics   metrics.MetricsConfig `envPrefix:"METRICS_"`
	WS        ws.HandlerConfig      `envPrefix:"WS_"`
}

// OfferRequest is the body of POST /items/{id}/offers.
type OfferRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// HTTPTransport handles HTTP requests for the marketplace.
type HTTPTransport struct {
	marketSvc *MarketService
	limiter   *http_.RateLimiter
	metrics   *metrics.Registry
	log       logging.Logger
	cfg       HTTPTransportConfig
	mux       *http.ServeMux
}

var _ http_.HTTPTransport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a new HTTPTransport. Callers are authenticated
// through authClient. images serves the image routes, hub the websocket
// route; registry, images and hub may be nil.
func NewHTTPTransport(
	marketSvc *MarketService,
	authClient authclient.AuthClient,
	images http.Handler,
	hub *ws.Hub,
	registry *metrics.Registry,
	cfg HTTPTransportConfig,
) *HTTPTransport {
	ht := &HTTPTransport{
		marketSvc: marketSvc,
		limiter:   http_.NewRateLimiter(cfg.RateLimit),
		metrics:   registry,
		log:       logging.GetLogger("svc.marketsvc.http_transport"),
		cfg:       cfg,
		mux:       http.NewServeMux(),
	}

	authorized := func(h http.HandlerFunc) http.Handler { return http_.AuthorizingMiddleware(h, authClient, ht.log) }
	limited := func(h http.HandlerFunc) http.Handler { return ht.limiter.Middleware(authorized(h)) }

	ht.mux.HandleFunc("GET /items", ht.HandleListItems)
	ht.mux.Handle("POST /items", limited(ht.HandleCreateItem))
	ht.mux.HandleFunc("GET /items/{id}", ht.HandleGetItem)
	ht.mux.Handle("PATCH /items/{id}", authorized(ht.HandleUpdateItem))
	ht.mux.Handle("DELETE /items/{id}", authorized(ht.HandleDeleteItem))
	ht.mux.HandleFunc("GET /users/{id}/items", ht.HandleListUserItems)
	ht.mux.Handle("POST /items/{id}/purchase", limited(ht.HandlePurchase))
	ht.mux.HandleFunc("GET /items/{id}/offers", ht.HandleListOffers)
	ht.mux.Handle("POST /items/{id}/offers", limited(ht.HandleSubmitOffer))
	ht.mux.HandleFunc("GET /offers/counts", ht.HandleCountOffers)
	ht.mux.Handle("GET /me/offers", authorized(ht.HandleListMyOffers))
	ht.mux.Handle("POST /offers/{id}/accept", authorized(ht.resolveHandler(domain.OfferAccepted)))
	ht.mux.Handle("POST /offers/{id}/reject", authorized(ht.resolveHandler(domain.OfferRejected)))
	ht.mux.HandleFunc("GET /healthz", ht.HandleHealth)

	if images != nil {
		ht.mux.Handle("/images", images)
		ht.mux.Handle("/media/", images)
	}

	if hub != nil {
		ht.mux.Handle("GET /ws", http_.IdentifyingMiddleware(ws.Handler(hub, cfg.WS), authClient, ht.log))
	}

	if registry != nil && cfg.Metrics.Enabled {
		ht.mux.Handle("GET "+cfg.Metrics.Path, registry.Handler())
	}

	return ht
}

// Run runs the background work of the transport until ctx is done.
func (ht *HTTPTransport) Run(ctx context.Context) {
	ht.limiter.Run(ctx)
}

// ServeHTTP implements http.Handler and routes the marketplace endpoints:
// - GET /items: the catalog, filtered by q, condition, category, limit, offset
// - POST /items: list an item
// - GET, PATCH, DELETE /items/{id}: read, edit or delete an item
// - GET /users/{id}/items: the items of a user, including sold ones
// - POST /items/{id}/purchase: buy an item
// - GET, POST /items/{id}/offers: list or submit offers on an item
// - GET /offers/counts?itemId=...: offer counts per item
// - GET /me/offers: the caller's own offers
// - POST /offers/{id}/accept, POST /offers/{id}/reject: decide on an offer
// - /images, /media/: image upload and download
// - GET /ws: live change events.
func (ht *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if ht.metrics != nil {
		ht.metrics.InstrumentingMiddleware(ht.mux).ServeHTTP(w, r)

		return
	}

	ht.mux.ServeHTTP(w, r)
}

// HandleListItems serves a page of the catalog.
func (ht *HTTPTransport) HandleListItems(w http.ResponseWriter, r *http.Request) {
	filter, err := ParseCatalogFilter(r.URL.Query())
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	page, err := ht.marketSvc.ListItems(r.Context(), filter)
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	http_.WriteJSON(w, http.StatusOK, page)
}

// HandleCreateItem lists a JSON domain.ItemDraft and responds 201 with the item.
func (ht *HTTPTransport) HandleCreateItem(w http.ResponseWriter, r *http.Request) {
	var draft domain.ItemDraft

	if err := http_.DecodeJSON(r, &draft); err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	item, err := ht.marketSvc.CreateItem(r.Context(), callerID(r), draft)
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	http_.WriteJSON(w, http.StatusCreated, item)
}

// HandleGetItem returns a single item.
func (ht *HTTPTransport) HandleGetItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, domain.ErrItemNotFound)
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	item, err := ht.marketSvc.GetItem(r.Context(), itemID)
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	http_.WriteJSON(w, http.StatusOK, item)
}

// HandleUpdateItem applies a JSON domain.ItemPatch to an item of the caller.
func (ht *HTTPTransport) HandleUpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, domain.ErrItemNotFound)
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	var patch domain.ItemPatch

	if err := http_.DecodeJSON(r, &patch); err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	item, err := ht.marketSvc.UpdateItem(r.Context(), itemID, callerID(r), patch)
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	http_.WriteJSON(w, http.StatusOK, item)
}

// HandleDeleteItem deletes an item of the caller and responds 204.
func (ht *HTTPTransport) HandleDeleteItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, domain.ErrItemNotFound)
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	if err := ht.marketSvc.DeleteItem(r.Context(), itemID, callerID(r)); err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleListUserItems returns the items of the user in the path.
func (ht *HTTPTransport) HandleListUserItems(w http.ResponseWriter, r *http.Request) {
	ownerID, err := pathID(r, domain.ErrUserNotFound)
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	items, err := ht.marketSvc.ListItemsByOwner(r.Context(), ownerID)
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	http_.WriteJSON(w, http.StatusOK, items)
}

// HandlePurchase buys an item for the caller and responds with the sold item.
// A lost race responds 409.
func (ht *HTTPTransport) HandlePurchase(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, domain.ErrItemNotFound)
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	item, err := ht.marketSvc.PurchaseItem(r.Context(), itemID, callerID(r))
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	http_.WriteJSON(w, http.StatusOK, item)
}

// HandleListOffers returns the offers on an item.
func (ht *HTTPTransport) HandleListOffers(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, domain.ErrItemNotFound)
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	offers, err := ht.marketSvc.ListOffers(r.Context(), itemID)
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	http_.WriteJSON(w, http.StatusOK, offers)
}

// HandleSubmitOffer submits a JSON OfferRequest and responds 201 with the offer.
func (ht *HTTPTransport) HandleSubmitOffer(w http.ResponseWriter, r *http.Request) {
	itemID, err := pathID(r, domain.ErrItemNotFound)
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	var req OfferRequest

	if err := http_.DecodeJSON(r, &req); err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	offer, err := ht.marketSvc.SubmitOffer(r.Context(), itemID, callerID(r), req.Amount)
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	http_.WriteJSON(w, http.StatusCreated, offer)
}

// HandleCountOffers returns the offer counts of the items given as itemId
// query parameters, repeated or comma separated.
func (ht *HTTPTransport) HandleCountOffers(w http.ResponseWriter, r *http.Request) {
	var itemIDs []uuid.UUID

	for _, raw := range queryList(r.URL.Query(), "itemId") {
		id, err := uuid.Parse(raw)
		if err != nil {
			http_.WriteError(w, r, ht.log, domain.ValidationErrors{"itemId": "must be a valid id"})

			return
		}

		itemIDs = append(itemIDs, id)
	}

	counts, err := ht.marketSvc.CountOffers(r.Context(), itemIDs)
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	http_.WriteJSON(w, http.StatusOK, counts)
}

// HandleListMyOffers returns the offers the caller made.
func (ht *HTTPTransport) HandleListMyOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := ht.marketSvc.ListOffersByBidder(r.Context(), callerID(r))
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return
	}

	http_.WriteJSON(w, http.StatusOK, offers)
}

func (ht *HTTPTransport) resolveHandler(decision domain.OfferStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = ht.handleResolve(w, r, decision)
	}
}

func (ht *HTTPTransport) handleResolve(w http.ResponseWriter, r *http.Request, decision domain.OfferStatus) (err error) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.Path))

	defer func(ctx context.Context) {
		if err != nil {
			log.DebugContext(ctx, "offer resolution rejected", "error", err)
		}
	}(r.Context())

	offerID, err := pathID(r, domain.ErrOfferNotFound)
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return err
	}

	offer, err := ht.marketSvc.ResolveOffer(r.Context(), offerID, callerID(r), decision)
	if err != nil {
		http_.WriteError(w, r, ht.log, err)

		return fmt.Errorf("resolve offer: %w", err)
	}

	http_.WriteJSON(w, http.StatusOK, offer)

	return nil
}

// HandleHealth reports that the service is up.
func (ht *HTTPTransport) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	http_.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ParseCatalogFilter reads a catalog filter from query parameters: q, the
// repeatable or comma separated condition and category, limit and offset.
func ParseCatalogFilter(query url.Values) (domain.CatalogFilter, error) {
	filter := domain.CatalogFilter{Search: query.Get("q")}
	errs := domain.ValidationErrors{}

	for _, raw := range queryList(query, "condition") {
		condition := domain.Condition(strings.ToLower(raw))
		if condition == domain.ConditionNotGiven || !condition.Valid() {
			errs["condition"] = "is not a known condition"

			continue
		}

		filter.Conditions = append(filter.Conditions, condition)
	}

	for _, raw := range queryList(query, "category") {
		category := domain.Category(strings.ToLower(raw))
		if category == domain.CategoryNotGiven || !category.Valid() {
			errs["category"] = "is not a known category"

			continue
		}

		filter.Categories = append(filter.Categories, category)
	}

	var err error

	if filter.Limit, err = queryInt(query, "limit"); err != nil {
		errs["limit"] = "must be a number"
	}

	if filter.Offset, err = queryInt(query, "offset"); err != nil {
		errs["offset"] = "must be a number"
	}

	if len(errs) > 0 {
		return domain.CatalogFilter{}, errs
	}

	return filter, nil
}

func queryList(query url.Values, key string) []string {
	var values []string

	for _, raw := range query[key] {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				values = append(values, v)
			}
		}
	}

	return values
}

func queryInt(query url.Values, key string) (int, error) {
	raw := query.Get(key)
	if raw == "" {
		return 0, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}

	return v, nil
}

// pathID parses the id path value. Malformed ids cannot name a record, so
// they yield notFound.
func pathID(r *http.Request, notFound error) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, notFound
	}

	return id, nil
}

func callerID(r *http.Request) uuid.UUID {
	userID, _ := context_.UserIDFromContext(r.Context())

	return userID
}

package marketsvc

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mkrupp/joynest/internal/domain"
	"github.com/mkrupp/joynest/internal/infra/metrics"
)

// marketMetrics counts marketplace operations. A nil *marketMetrics records nothing.
type marketMetrics struct {
	itemsCreated    *prometheus.CounterVec
	offersSubmitted *prometheus.CounterVec
	offersResolved  *prometheus.CounterVec
	purchases       *prometheus.CounterVec
}

func newMarketMetrics(registry *metrics.Registry) *marketMetrics {
	if registry == nil {
		return nil
	}

	return &marketMetrics{
		itemsCreated:    registry.NewCounterVec("items_created_total", "Items listed."),
		offersSubmitted: registry.NewCounterVec("offers_submitted_total", "Offers submitted."),
		offersResolved:  registry.NewCounterVec("offers_resolved_total", "Offers accepted or rejected.", "decision"),
		purchases:       registry.NewCounterVec("purchases_total", "Purchase attempts by outcome.", "outcome"),
	}
}

func (m *marketMetrics) itemCreated() {
	if m != nil {
		m.itemsCreated.WithLabelValues().Inc()
	}
}

func (m *marketMetrics) offerSubmitted() {
	if m != nil {
		m.offersSubmitted.WithLabelValues().Inc()
	}
}

func (m *marketMetrics) offerResolved(decision domain.OfferStatus) {
	if m != nil {
		m.offersResolved.WithLabelValues(string(decision)).Inc()
	}
}

func (m *marketMetrics) purchase(err error) {
	if m != nil {
		m.purchases.WithLabelValues(metrics.Outcome(err)).Inc()
	}
}

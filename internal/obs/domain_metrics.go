package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CalculationsTotal counts totals calculations by operation and outcome.
	CalculationsTotal *prometheus.CounterVec
	// CalculationDuration records calculation latency in milliseconds.
	CalculationDuration *prometheus.HistogramVec
	// DiscountsAppliedTotal counts discounts chosen by the resolver, by discount type.
	DiscountsAppliedTotal *prometheus.CounterVec
	// ShippingUnavailableTotal counts quotes where no shipping rate could be offered.
	ShippingUnavailableTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CalculationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "totals_calculations_total",
			Help:      "Count of totals calculations by operation and outcome.",
		}, []string{"operation", "result"})
		CalculationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "totals_calculation_duration_ms",
			Help:      "Latency of totals calculations in milliseconds.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		}, []string{"operation"})
		DiscountsAppliedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "totals_discounts_applied_total",
			Help:      "Count of discounts applied by discount type.",
		}, []string{"type"})
		ShippingUnavailableTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "totals_shipping_unavailable_total",
			Help:      "Number of calculations where shipping was required but no rate was available.",
		})

		CalculationsTotal = registerOrReuse(reg, CalculationsTotal)
		CalculationDuration = registerOrReuse(reg, CalculationDuration)
		DiscountsAppliedTotal = registerOrReuse(reg, DiscountsAppliedTotal)
		ShippingUnavailableTotal = registerOrReuse(reg, ShippingUnavailableTotal)
	})
}

// ObserveCalculation records one calculation outcome. It is a no-op until the
// domain metrics are registered.
func ObserveCalculation(operation string, err error, durationMs float64) {
	if CalculationsTotal == nil || CalculationDuration == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	CalculationsTotal.WithLabelValues(operation, result).Inc()
	CalculationDuration.WithLabelValues(operation).Observe(durationMs)
}

// ObserveDiscountApplied increments the applied discount counter.
func ObserveDiscountApplied(discountType string) {
	if DiscountsAppliedTotal == nil {
		return
	}
	DiscountsAppliedTotal.WithLabelValues(discountType).Inc()
}

// ObserveShippingUnavailable increments the shipping unavailable counter.
func ObserveShippingUnavailable() {
	if ShippingUnavailableTotal == nil {
		return
	}
	ShippingUnavailableTotal.Inc()
}

package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "checkout"

var (
	metricsOnce sync.Once

	// SettlementOutcomes counts finished split runs by how they ended.
	SettlementOutcomes *prometheus.CounterVec
	// ChargeAttempts counts provider charge calls by method and result.
	ChargeAttempts *prometheus.CounterVec
	// RefundAttempts counts compensating refunds issued by void-all.
	RefundAttempts *prometheus.CounterVec
	// QuotesTotal counts priced quotes served.
	QuotesTotal prometheus.Counter
	// RateRefreshes counts rate refresh runs by result.
	RateRefreshes *prometheus.CounterVec
)

// MustRegisterMetrics initialises the domain collectors once and registers them.
func MustRegisterMetrics(reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SettlementOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_outcomes_total",
			Help:      "Count of split settlement runs by outcome.",
		}, []string{"outcome"})
		ChargeAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_charge_attempts_total",
			Help:      "Count of payment provider charge attempts.",
		}, []string{"method", "result"})
		RefundAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_refund_attempts_total",
			Help:      "Count of compensating refunds issued.",
		}, []string{"result"})
		QuotesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pricing_quotes_total",
			Help:      "Number of priced quotes computed.",
		})
		RateRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_refreshes_total",
			Help:      "Count of currency rate refresh runs.",
		}, []string{"result"})

		for _, c := range []prometheus.Collector{SettlementOutcomes, ChargeAttempts, RefundAttempts, QuotesTotal, RateRefreshes} {
			if err := reg.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
					continue
				}
				panic(fmt.Errorf("register collector: %w", err))
			}
		}
	})
}

// ObserveSettlement is safe to call before registration.
func ObserveSettlement(outcome string) {
	if SettlementOutcomes != nil {
		SettlementOutcomes.WithLabelValues(outcome).Inc()
	}
}

func ObserveCharge(method, result string) {
	if ChargeAttempts != nil {
		ChargeAttempts.WithLabelValues(method, result).Inc()
	}
}

func ObserveRefund(result string) {
	if RefundAttempts != nil {
		RefundAttempts.WithLabelValues(result).Inc()
	}
}

func ObserveQuote() {
	if QuotesTotal != nil {
		QuotesTotal.Inc()
	}
}

func ObserveRateRefresh(result string) {
	if RateRefreshes != nil {
		RateRefreshes.WithLabelValues(result).Inc()
	}
}

package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "omc_"

	resultSuccess = "success"
	resultError   = "error"
	resultInvalid = "invalid"

	cacheHit   = "hit"
	cacheMiss  = "miss"
	cacheError = "error"
)

var (
	registerOnce sync.Once

	priceCalculationTotal   *prometheus.CounterVec
	priceCalculationLatency *prometheus.HistogramVec
	bulkPricingPairsTotal   *prometheus.CounterVec
	bulkPricingLatency      *prometheus.HistogramVec
	priceValidationTotal    *prometheus.CounterVec

	rateCacheTotal *prometheus.CounterVec

	settlementCalculationTotal   *prometheus.CounterVec
	settlementCalculationLatency *prometheus.HistogramVec
	settlementTransitionTotal    *prometheus.CounterVec

	claimValidationTotal *prometheus.CounterVec
	submissionTotal      *prometheus.CounterVec
	submissionLatency    *prometheus.HistogramVec
)

// Init registers collectors and DB-backed gauges.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		priceCalculationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "price_calculation_total",
				Help: "Total ex-pump price calculations by result",
			},
			[]string{"result"},
		)
		priceCalculationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "price_calculation_latency_seconds",
				Help:    "Ex-pump price calculation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		bulkPricingPairsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "bulk_pricing_pairs_total",
				Help: "Station/product pairs processed by bulk pricing by result",
			},
			[]string{"result"},
		)
		bulkPricingLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "bulk_pricing_latency_seconds",
				Help:    "Bulk pricing run latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"result"},
		)
		priceValidationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "price_validation_total",
				Help: "Price validations by result",
			},
			[]string{"result"},
		)

		rateCacheTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rate_cache_total",
				Help: "Component rate cache lookups by result",
			},
			[]string{"result"},
		)

		settlementCalculationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_calculation_total",
				Help: "Dealer settlement calculations by result",
			},
			[]string{"result"},
		)
		settlementCalculationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "settlement_calculation_latency_seconds",
				Help:    "Dealer settlement calculation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		settlementTransitionTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "settlement_transition_total",
				Help: "Dealer settlement state transitions by target state and result",
			},
			[]string{"to", "result"},
		)

		claimValidationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "uppf_claim_validation_total",
				Help: "UPPF claim validations by result",
			},
			[]string{"result"},
		)
		submissionTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "npa_submission_total",
				Help: "NPA submission batch attempts by result",
			},
			[]string{"result"},
		)
		submissionLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "npa_submission_latency_seconds",
				Help:    "NPA submission batch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			priceCalculationTotal,
			priceCalculationLatency,
			bulkPricingPairsTotal,
			bulkPricingLatency,
			priceValidationTotal,
			rateCacheTotal,
			settlementCalculationTotal,
			settlementCalculationLatency,
			settlementTransitionTotal,
			claimValidationTotal,
			submissionTotal,
			submissionLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObservePriceCalculation records a single ex-pump price calculation.
func ObservePriceCalculation(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if priceCalculationTotal != nil {
		priceCalculationTotal.WithLabelValues(result).Inc()
	}
	if priceCalculationLatency != nil {
		priceCalculationLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveBulkPricing records a bulk run and its pair outcomes.
func ObserveBulkPricing(result string, succeeded, invalid, failed int, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if bulkPricingLatency != nil {
		bulkPricingLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
	if bulkPricingPairsTotal != nil {
		bulkPricingPairsTotal.WithLabelValues(resultSuccess).Add(float64(succeeded))
		bulkPricingPairsTotal.WithLabelValues(resultInvalid).Add(float64(invalid))
		bulkPricingPairsTotal.WithLabelValues(resultError).Add(float64(failed))
	}
}

// IncPriceValidation counts a price validation outcome.
func IncPriceValidation(result string) {
	if result == "" {
		result = resultSuccess
	}
	if priceValidationTotal != nil {
		priceValidationTotal.WithLabelValues(result).Inc()
	}
}

// IncRateCache counts a rate cache lookup outcome.
func IncRateCache(result string) {
	if result == "" {
		result = cacheMiss
	}
	if rateCacheTotal != nil {
		rateCacheTotal.WithLabelValues(result).Inc()
	}
}

// ObserveSettlementCalculation records a dealer settlement calculation.
func ObserveSettlementCalculation(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if settlementCalculationTotal != nil {
		settlementCalculationTotal.WithLabelValues(result).Inc()
	}
	if settlementCalculationLatency != nil {
		settlementCalculationLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncSettlementTransition counts a settlement state transition attempt.
func IncSettlementTransition(to, result string) {
	if to == "" {
		to = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if settlementTransitionTotal != nil {
		settlementTransitionTotal.WithLabelValues(to, result).Inc()
	}
}

// IncClaimValidation counts a UPPF claim validation outcome.
func IncClaimValidation(result string) {
	if result == "" {
		result = resultSuccess
	}
	if claimValidationTotal != nil {
		claimValidationTotal.WithLabelValues(result).Inc()
	}
}

// ObserveSubmission records an NPA submission batch attempt.
func ObserveSubmission(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if submissionTotal != nil {
		submissionTotal.WithLabelValues(result).Inc()
	}
	if submissionLatency != nil {
		submissionLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	ResultInvalid = resultInvalid

	CacheHit   = cacheHit
	CacheMiss  = cacheMiss
	CacheError = cacheError
)

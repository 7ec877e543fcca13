package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess      = "success"
	OutcomeInsufficient = "insufficient_stock"
	OutcomeNotFound     = "not_found"
	OutcomeInvalid      = "invalid"
	OutcomeError        = "error"
)

// StockMetrics records the outcome of stock engine operations.
type StockMetrics struct {
	duration   *prometheus.HistogramVec
	operations *prometheus.CounterVec
	units      *prometheus.CounterVec
	lowStock   prometheus.Gauge
}

// NewStockMetrics registers the stock metrics on the provided registerer. A nil
// registerer yields a no-op recorder.
func NewStockMetrics(reg prometheus.Registerer) *StockMetrics {
	if reg == nil {
		return &StockMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockroom_stock_operation_duration_seconds",
		Help:    "Duration of stock operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockroom_stock_operations_total",
		Help: "Stock operations by outcome.",
	}, []string{"operation", "outcome"})
	units := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockroom_stock_units_total",
		Help: "Units moved by successful stock operations.",
	}, []string{"operation"})
	lowStock := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stockroom_low_stock_products",
		Help: "Products at or below the low stock threshold at the last dashboard read.",
	})
	reg.MustRegister(duration, operations, units, lowStock)
	return &StockMetrics{
		duration:   duration,
		operations: operations,
		units:      units,
		lowStock:   lowStock,
	}
}

// Observe records one finished operation.
func (s *StockMetrics) Observe(operation, outcome string, elapsed time.Duration) {
	if s == nil || s.operations == nil {
		return
	}
	operation = normalizeLabel(operation)
	s.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
	s.operations.WithLabelValues(operation, normalizeLabel(outcome)).Inc()
}

// AddUnits counts the quantity moved by a successful operation.
func (s *StockMetrics) AddUnits(operation string, quantity int) {
	if s == nil || s.units == nil || quantity <= 0 {
		return
	}
	s.units.WithLabelValues(normalizeLabel(operation)).Add(float64(quantity))
}

// SetLowStockProducts publishes the latest low stock count.
func (s *StockMetrics) SetLowStockProducts(count int) {
	if s == nil || s.lowStock == nil {
		return
	}
	s.lowStock.Set(float64(count))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

package repricing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "hoteld_repricing"

// Metrics holds the collectors updated by the scheduler.
type Metrics struct {
	HotelsProcessed   prometheus.Counter
	HotelsFailed      prometheus.Counter
	CellsRepriced     prometheus.Counter
	MinPricesUpserted prometheus.Counter
	RunsSkipped       prometheus.Counter
	RunDuration       prometheus.Histogram
}

// NewMetrics registers the scheduler collectors with registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		HotelsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "hotels_processed_total",
			Help:      "Hotels repriced successfully",
		}),
		HotelsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "hotels_failed_total",
			Help:      "Hotels whose repricing transaction failed",
		}),
		CellsRepriced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cells_repriced_total",
			Help:      "Inventory cells whose price changed",
		}),
		MinPricesUpserted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "min_prices_upserted_total",
			Help:      "Hotel minimum price rows written",
		}),
		RunsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_skipped_total",
			Help:      "Runs skipped because another instance held the lease",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a full repricing run",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
	}
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the refresh and housekeeping collectors.
type Metrics struct {
	CyclesTotal        prometheus.Counter
	CycleDuration      prometheus.Histogram
	LocationsRefreshed prometheus.Counter
	LocationsFailed    prometheus.Counter
	RefreshRetries     prometheus.Counter
	SlotUpdateMisses   prometheus.Counter
	TrackedLocations   prometheus.Gauge
	StoredSlots        prometheus.Gauge
}

// New registers the collectors on reg. Tests pass a fresh prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CyclesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "cityforecast_refresh_cycles_total",
			Help: "Total number of completed refresh cycles.",
		}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cityforecast_refresh_cycle_duration_seconds",
			Help:    "Duration of a full refresh cycle.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		LocationsRefreshed: f.NewCounter(prometheus.CounterOpts{
			Name: "cityforecast_locations_refreshed_total",
			Help: "Total number of location refreshes that stored new values.",
		}),
		LocationsFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "cityforecast_locations_failed_total",
			Help: "Total number of location refreshes skipped after an error.",
		}),
		RefreshRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "cityforecast_refresh_retries_total",
			Help: "Total number of upstream retries during refresh.",
		}),
		SlotUpdateMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "cityforecast_slot_update_misses_total",
			Help: "Fetched slots that matched no stored row during refresh.",
		}),
		TrackedLocations: f.NewGauge(prometheus.GaugeOpts{
			Name: "cityforecast_tracked_locations",
			Help: "Number of locations in the refresh universe.",
		}),
		StoredSlots: f.NewGauge(prometheus.GaugeOpts{
			Name: "cityforecast_stored_slots",
			Help: "Number of forecast slots held by the store.",
		}),
	}
}

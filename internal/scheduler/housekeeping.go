package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/city-forecast/internal/logger"
	"github.com/i474232898/city-forecast/internal/metrics"
	"github.com/i474232898/city-forecast/internal/store"
)

// StatsSource reports store sizes. Both store implementations satisfy it.
type StatsSource interface {
	Stats(ctx context.Context) (store.Stats, error)
}

// Housekeeper periodically publishes store gauges.
type Housekeeper struct {
	scheduler *gocron.Scheduler
	source    StatsSource
	interval  time.Duration
	metrics   *metrics.Metrics
	l         *logger.Logger
}

// NewHousekeeper creates a new Housekeeper.
func NewHousekeeper(source StatsSource, interval time.Duration, m *metrics.Metrics, l *logger.Logger) *Housekeeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Housekeeper{
		scheduler: gocron.NewScheduler(time.UTC),
		source:    source,
		interval:  interval,
		metrics:   m,
		l:         l,
	}
}

// Start schedules the stats job and starts the underlying scheduler. The first run is immediate.
func (h *Housekeeper) Start() error {
	_, err := h.scheduler.Every(h.interval).SingletonMode().Do(h.collect)
	if err != nil {
		return err
	}
	h.scheduler.StartAsync()
	return nil
}

// Stop ends the stats job. Gauges keep their last values.
func (h *Housekeeper) Stop() {
	h.scheduler.Stop()
}

func (h *Housekeeper) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := h.source.Stats(ctx)
	if err != nil {
		h.l.Error(err, map[string]any{"job": "store_stats"})
		return
	}

	h.metrics.TrackedLocations.Set(float64(st.Locations))
	h.metrics.StoredSlots.Set(float64(st.Slots))
	h.l.Debug("store stats collected", map[string]any{"locations": st.Locations, "slots": st.Slots})
}

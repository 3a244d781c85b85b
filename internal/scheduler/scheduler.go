package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/i474232898/city-forecast/internal/logger"
	"github.com/i474232898/city-forecast/internal/metrics"
	"github.com/i474232898/city-forecast/internal/weather"
)

// ErrAlreadyRunning is returned by Start while a previous run has not stopped.
var ErrAlreadyRunning = errors.New("scheduler is already running")

// Refresher is what a refresh cycle drives. *weather.Service implements it.
type Refresher interface {
	TrackedLocations(ctx context.Context) ([]weather.Location, error)
	RefreshLocation(ctx context.Context, loc weather.Location) (weather.RefreshResult, error)
}

// BackoffConfig controls retries of a location whose upstream is unavailable.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (b BackoffConfig) delay(attempt int) time.Duration {
	d := b.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
	if b.MaxInterval > 0 && d > b.MaxInterval {
		d = b.MaxInterval
	}
	return d
}

// State is the scheduler's position in its Idle -> Refreshing -> Idle loop.
type State int32

const (
	StateIdle State = iota
	StateRefreshing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Scheduler periodically refreshes the forecast slots of every tracked location.
// The next cycle starts one interval after the previous one ended.
type Scheduler struct {
	refresher Refresher
	interval  time.Duration
	backoff   BackoffConfig
	metrics   *metrics.Metrics
	l         *logger.Logger

	running atomic.Bool
	state   atomic.Int32
}

// New creates a new Scheduler.
func New(refresher Refresher, interval time.Duration, backoff BackoffConfig, m *metrics.Metrics, l *logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	s := &Scheduler{
		refresher: refresher,
		interval:  interval,
		backoff:   backoff,
		metrics:   m,
		l:         l,
	}
	s.state.Store(int32(StateStopped))
	return s
}

// State reports the current state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Handle controls one running refresh loop.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Stop cancels the loop and waits for it to exit, at most until ctx is done.
// Cancellation is the expected way to end the loop and is not reported as an error.
func (h *Handle) Stop(ctx context.Context) error {
	h.cancel()
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler did not stop in time: %w", ctx.Err())
	}
}

// Done is closed once the loop has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Start launches the refresh loop in its own goroutine. The first cycle begins immediately.
func (s *Scheduler) Start(ctx context.Context) (*Handle, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	s.state.Store(int32(StateIdle))

	go s.run(ctx, h.done)
	return h, nil
}

func (s *Scheduler) run(ctx context.Context, done chan<- struct{}) {
	defer func() {
		s.state.Store(int32(StateStopped))
		s.running.Store(false)
		close(done)
	}()

	s.l.Info("refresh scheduler started", map[string]any{"interval": s.interval.String()})

	for {
		s.runCycle(ctx)
		if ctx.Err() != nil {
			break
		}

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
		if ctx.Err() != nil {
			break
		}
	}

	s.l.Info("refresh scheduler stopped")
}

// runCycle refreshes every tracked location in listing order. A failing location is
// logged and skipped; it never aborts the rest of the cycle.
func (s *Scheduler) runCycle(ctx context.Context) {
	s.state.Store(int32(StateRefreshing))
	defer s.state.Store(int32(StateIdle))

	start := time.Now()

	locations, err := s.refresher.TrackedLocations(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.l.Error(fmt.Errorf("list tracked locations: %w", err))
		}
		return
	}

	s.l.Debug("refresh cycle started", map[string]any{"locations": len(locations)})

	var refreshed, failed int
	for _, loc := range locations {
		if ctx.Err() != nil {
			s.l.Info("refresh cycle interrupted", map[string]any{"refreshed": refreshed, "failed": failed})
			return
		}

		res, err := s.refreshWithRetry(ctx, loc)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failed++
			s.metrics.LocationsFailed.Inc()
			s.l.Error(err, map[string]any{"location_id": loc.ID, "name": loc.Name})
			continue
		}

		refreshed++
		s.metrics.LocationsRefreshed.Inc()
		if missed := res.Missed(); missed > 0 {
			s.metrics.SlotUpdateMisses.Add(float64(missed))
		}
	}

	elapsed := time.Since(start)
	s.metrics.CyclesTotal.Inc()
	s.metrics.CycleDuration.Observe(elapsed.Seconds())
	s.l.Info("refresh cycle completed", map[string]any{
		"refreshed": refreshed,
		"failed":    failed,
		"duration":  elapsed.String(),
	})
}

// refreshWithRetry retries only transient upstream failures, with exponential backoff
// that a cancellation interrupts.
func (s *Scheduler) refreshWithRetry(ctx context.Context, loc weather.Location) (weather.RefreshResult, error) {
	for attempt := 0; ; attempt++ {
		res, err := s.refresher.RefreshLocation(ctx, loc)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, weather.ErrUpstreamUnavailable) || attempt >= s.backoff.MaxRetries || ctx.Err() != nil {
			return res, err
		}

		delay := s.backoff.delay(attempt)
		s.l.Warning("upstream unavailable, retrying", map[string]any{
			"location_id": loc.ID,
			"attempt":     attempt + 1,
			"delay":       delay.String(),
			"err":         err.Error(),
		})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return res, ctx.Err()
		case <-timer.C:
		}
		s.metrics.RefreshRetries.Inc()
	}
}

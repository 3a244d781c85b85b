package weather

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/i474232898/city-forecast/internal/logger"
)

// RefreshChannel is the pub/sub channel announcing refreshed locations.
const RefreshChannel = "forecast:refreshed"

// Service orchestrates the upstream client, the slot resolver and the store.
type Service struct {
	store    Store
	client   ForecastClient
	cache    Cache
	cacheTTL time.Duration
	l        *logger.Logger
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithCache enables read-through caching of live weather and refresh event publishing.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// NewService creates a new Service.
func NewService(store Store, client ForecastClient, l *logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		client: client,
		l:      l,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CurrentWeather returns live conditions for an arbitrary coordinate.
func (s *Service) CurrentWeather(ctx context.Context, lat, lon float64) (Current, error) {
	if err := ValidateCoordinates(lat, lon); err != nil {
		return Current{}, err
	}

	key := fmt.Sprintf("weather:current:%.4f:%.4f", lat, lon)
	if s.cache != nil {
		var cached Current
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.l.Warning("current weather cache read failed", map[string]any{"key": key, "err": err.Error()})
		} else if hit {
			return cached, nil
		}
	}

	current, err := s.client.FetchCurrent(ctx, lat, lon)
	if err != nil {
		return Current{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, current, s.cacheTTL); err != nil {
			s.l.Warning("current weather cache write failed", map[string]any{"key": key, "err": err.Error()})
		}
	}
	return current, nil
}

// RegisterLocation creates a location and synchronously stores its first day of slots,
// so a query right after registration finds data. Upstream and insert errors propagate
// and leave no location behind.
func (s *Service) RegisterLocation(ctx context.Context, in NewLocation) (Location, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return Location{}, ErrNameRequired
	}
	if err := ValidateCoordinates(in.Latitude, in.Longitude); err != nil {
		return Location{}, err
	}

	day, err := s.client.FetchDay(ctx, in.Latitude, in.Longitude)
	if err != nil {
		return Location{}, err
	}
	slots, err := day.Slots()
	if err != nil {
		return Location{}, err
	}

	loc, err := s.store.CreateLocation(ctx, in)
	if err != nil {
		return Location{}, err
	}

	if err := s.store.BulkInsert(ctx, loc.ID, slots); err != nil {
		s.l.Error(err, map[string]any{"location_id": loc.ID, "slots": len(slots)})
		// Refresh only overwrites existing rows, so a location without its initial
		// slots would never become queryable.
		if delErr := s.store.DeleteLocation(context.WithoutCancel(ctx), loc.ID); delErr != nil {
			s.l.Error(delErr, map[string]any{"location_id": loc.ID})
		}
		return Location{}, fmt.Errorf("initial forecast insert for %s: %w", loc.ID, err)
	}

	s.l.Info("location registered", map[string]any{
		"location_id": loc.ID,
		"name":        loc.Name,
		"slots":       len(slots),
	})
	return loc, nil
}

// ListLocations returns the locations linked to userID, or all of them when userID is empty.
func (s *Service) ListLocations(ctx context.Context, userID string) ([]Location, error) {
	return s.store.ListLocations(ctx, userID)
}

// TrackedLocations is the refresh universe of the scheduler.
func (s *Service) TrackedLocations(ctx context.Context) ([]Location, error) {
	return s.store.ListLocations(ctx, "")
}

// RefreshResult summarizes one location refresh.
type RefreshResult struct {
	Fetched int
	Updated int
}

// Missed is the number of fetched slots that matched no stored row.
func (r RefreshResult) Missed() int {
	return r.Fetched - r.Updated
}

// RefreshLocation re-fetches a location's day and overwrites its stored slots.
func (s *Service) RefreshLocation(ctx context.Context, loc Location) (RefreshResult, error) {
	day, err := s.client.FetchDay(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		return RefreshResult{}, err
	}
	slots, err := day.Slots()
	if err != nil {
		return RefreshResult{}, err
	}

	updated, err := s.store.BulkUpdate(ctx, loc.ID, slots)
	if err != nil {
		return RefreshResult{}, err
	}
	res := RefreshResult{Fetched: len(slots), Updated: updated}

	// Slot keys that roll past the inserted day, or a location whose initial insert
	// has not landed yet, both end up here.
	if res.Missed() > 0 {
		s.l.Warning("forecast update matched no stored slot", map[string]any{
			"location_id": loc.ID,
			"missed":      res.Missed(),
			"fetched":     res.Fetched,
		})
	}

	s.l.Debug("location forecast updated", map[string]any{"location_id": loc.ID, "updated": updated})

	if s.cache != nil {
		event := RefreshEvent{LocationID: loc.ID, Slots: updated, RefreshedAt: s.now().UTC()}
		if err := s.cache.Publish(ctx, RefreshChannel, event); err != nil {
			s.l.Warning("refresh event publish failed", map[string]any{"location_id": loc.ID, "err": err.Error()})
		}
	}
	return res, nil
}

// QueryForecast answers a forecast query for a location id.
func (s *Service) QueryForecast(ctx context.Context, locationID, requested string, fieldNames []string) (SlotValues, error) {
	key, err := ResolveSlot(requested)
	if err != nil {
		return nil, err
	}
	fields, err := ParseFields(fieldNames)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetLocation(ctx, locationID); err != nil {
		return nil, err
	}
	return s.store.GetSlot(ctx, locationID, key, fields)
}

// QueryForecastByName resolves the location by name, optionally restricted to a user's locations.
func (s *Service) QueryForecastByName(ctx context.Context, name, userID, requested string, fieldNames []string) (SlotValues, error) {
	key, err := ResolveSlot(requested)
	if err != nil {
		return nil, err
	}
	fields, err := ParseFields(fieldNames)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}

	loc, err := s.store.FindLocation(ctx, name, userID)
	if err != nil {
		return nil, err
	}
	return s.store.GetSlot(ctx, loc.ID, key, fields)
}

// CreateUser registers a user that locations can be linked to.
func (s *Service) CreateUser(ctx context.Context, name string) (User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return User{}, ErrNameRequired
	}
	return s.store.CreateUser(ctx, name)
}

package weather

import (
	"context"
	"time"
)

// ForecastClient abstracts the upstream weather provider (Open-Meteo).
// Implementations do not retry; retry policy belongs to the refresh scheduler.
type ForecastClient interface {
	FetchDay(ctx context.Context, lat, lon float64) (DayForecast, error)
	FetchCurrent(ctx context.Context, lat, lon float64) (Current, error)
}

// Store is the contract both the postgres and the in-memory store satisfy.
// Every call is atomic: a bulk operation fully commits or has no visible effect.
type Store interface {
	CreateUser(ctx context.Context, name string) (User, error)
	CreateLocation(ctx context.Context, loc NewLocation) (Location, error)
	FindLocation(ctx context.Context, name, userID string) (Location, error)
	GetLocation(ctx context.Context, id string) (Location, error)
	// DeleteLocation removes a location together with its slots and user links.
	DeleteLocation(ctx context.Context, id string) error
	// ListLocations returns every tracked location when userID is empty.
	ListLocations(ctx context.Context, userID string) ([]Location, error)

	BulkInsert(ctx context.Context, locationID string, slots []Slot) error
	// BulkUpdate returns how many of the slots matched an existing row.
	BulkUpdate(ctx context.Context, locationID string, slots []Slot) (int, error)
	GetSlot(ctx context.Context, locationID, slotKey string, fields []Field) (SlotValues, error)
}

// Cache is an optional read-through cache and event publisher. The service works with a nil Cache.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Publish(ctx context.Context, channel string, message any) error
}

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/city-forecast/internal/weather"
)

// contractStore is what the shared tests drive.
type contractStore interface {
	weather.Store
	Stats(ctx context.Context) (Stats, error)
	Teardown(ctx context.Context) error
}

func f(v float64) *float64 { return &v }

func daySlots(base float64, keys ...string) []weather.Slot {
	slots := make([]weather.Slot, 0, len(keys))
	for i, k := range keys {
		slots = append(slots, weather.Slot{
			Time:          k,
			Temperature:   f(base + float64(i)),
			WindSpeed:     f(3),
			Precipitation: nil,
			Humidity:      f(70),
		})
	}
	return slots
}

func runStoreContract(t *testing.T, newStore func(t *testing.T) contractStore) {
	ctx := context.Background()

	t.Run("insert and read slot", func(t *testing.T) {
		s := newStore(t)
		loc, err := s.CreateLocation(ctx, weather.NewLocation{Name: "Berlin", Latitude: 52.52, Longitude: 13.41})
		require.NoError(t, err)

		require.NoError(t, s.BulkInsert(ctx, loc.ID, daySlots(10, "2024-05-01T00:00", "2024-05-01T00:15")))

		values, err := s.GetSlot(ctx, loc.ID, "2024-05-01T00:15", []weather.Field{weather.FieldTemperature, weather.FieldPrecipitation})
		require.NoError(t, err)
		assert.Equal(t, 11.0, *values[weather.FieldTemperature])
		assert.Nil(t, values[weather.FieldPrecipitation])
		assert.Len(t, values, 2)

		_, err = s.GetSlot(ctx, loc.ID, "2024-05-01T00:30", []weather.Field{weather.FieldTemperature})
		assert.ErrorIs(t, err, weather.ErrSlotNotFound)

		_, err = s.GetSlot(ctx, loc.ID, "2024-05-01T00:15", nil)
		assert.ErrorIs(t, err, weather.ErrInvalidFields)

		_, err = s.GetSlot(ctx, loc.ID, "2024-05-01T00:15", []weather.Field{weather.FieldTemperature, "pressure"})
		assert.ErrorIs(t, err, weather.ErrInvalidFields)
	})

	t.Run("delete location removes its slots and links", func(t *testing.T) {
		s := newStore(t)
		u, err := s.CreateUser(ctx, "bob")
		require.NoError(t, err)
		gone, err := s.CreateLocation(ctx, weather.NewLocation{Name: "Bern", Latitude: 46.9, Longitude: 7.4, UserID: u.ID})
		require.NoError(t, err)
		kept, err := s.CreateLocation(ctx, weather.NewLocation{Name: "Basel", Latitude: 47.5, Longitude: 7.6, UserID: u.ID})
		require.NoError(t, err)
		require.NoError(t, s.BulkInsert(ctx, gone.ID, daySlots(0, "2024-05-01T00:00")))
		require.NoError(t, s.BulkInsert(ctx, kept.ID, daySlots(0, "2024-05-01T00:00")))

		require.NoError(t, s.DeleteLocation(ctx, gone.ID))

		_, err = s.GetLocation(ctx, gone.ID)
		assert.ErrorIs(t, err, weather.ErrLocationNotFound)

		mine, err := s.ListLocations(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, []weather.Location{kept}, mine)

		st, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, Stats{Locations: 1, Slots: 1}, st)

		assert.ErrorIs(t, s.DeleteLocation(ctx, gone.ID), weather.ErrLocationNotFound)
	})

	t.Run("duplicate insert is rejected atomically", func(t *testing.T) {
		s := newStore(t)
		loc, err := s.CreateLocation(ctx, weather.NewLocation{Name: "Rome", Latitude: 41.9, Longitude: 12.5})
		require.NoError(t, err)
		require.NoError(t, s.BulkInsert(ctx, loc.ID, daySlots(1, "2024-05-01T00:00")))

		err = s.BulkInsert(ctx, loc.ID, daySlots(1, "2024-05-01T00:15", "2024-05-01T00:00"))
		assert.ErrorIs(t, err, weather.ErrDuplicateSlot)

		// Nothing of the failed batch is visible.
		_, err = s.GetSlot(ctx, loc.ID, "2024-05-01T00:15", []weather.Field{weather.FieldTemperature})
		assert.ErrorIs(t, err, weather.ErrSlotNotFound)

		st, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, Stats{Locations: 1, Slots: 1}, st)
	})

	t.Run("update overwrites matching rows only", func(t *testing.T) {
		s := newStore(t)
		a, err := s.CreateLocation(ctx, weather.NewLocation{Name: "A", Latitude: 1, Longitude: 1})
		require.NoError(t, err)
		b, err := s.CreateLocation(ctx, weather.NewLocation{Name: "B", Latitude: 2, Longitude: 2})
		require.NoError(t, err)
		require.NoError(t, s.BulkInsert(ctx, a.ID, daySlots(0, "2024-05-01T00:00", "2024-05-01T00:15")))
		require.NoError(t, s.BulkInsert(ctx, b.ID, daySlots(0, "2024-05-01T00:00", "2024-05-01T00:15")))

		updated, err := s.BulkUpdate(ctx, a.ID, daySlots(50, "2024-05-01T00:15", "2024-05-01T00:30"))
		require.NoError(t, err)
		assert.Equal(t, 1, updated)

		values, err := s.GetSlot(ctx, a.ID, "2024-05-01T00:15", []weather.Field{weather.FieldTemperature})
		require.NoError(t, err)
		assert.Equal(t, 50.0, *values[weather.FieldTemperature])

		values, err = s.GetSlot(ctx, b.ID, "2024-05-01T00:15", []weather.Field{weather.FieldTemperature})
		require.NoError(t, err)
		assert.Equal(t, 1.0, *values[weather.FieldTemperature])

		_, err = s.GetSlot(ctx, a.ID, "2024-05-01T00:30", []weather.Field{weather.FieldTemperature})
		assert.ErrorIs(t, err, weather.ErrSlotNotFound)
	})

	t.Run("locations and users", func(t *testing.T) {
		s := newStore(t)
		u, err := s.CreateUser(ctx, "alice")
		require.NoError(t, err)

		first, err := s.CreateLocation(ctx, weather.NewLocation{Name: "Paris", Latitude: 48.8, Longitude: 2.3})
		require.NoError(t, err)
		second, err := s.CreateLocation(ctx, weather.NewLocation{Name: "Paris", Latitude: 33.6, Longitude: -95.5, UserID: u.ID})
		require.NoError(t, err)

		found, err := s.FindLocation(ctx, "Paris", "")
		require.NoError(t, err)
		assert.Equal(t, first.ID, found.ID)

		found, err = s.FindLocation(ctx, "Paris", u.ID)
		require.NoError(t, err)
		assert.Equal(t, second.ID, found.ID)

		_, err = s.FindLocation(ctx, "Lyon", "")
		assert.ErrorIs(t, err, weather.ErrLocationNotFound)

		got, err := s.GetLocation(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, second, got)

		_, err = s.GetLocation(ctx, "missing")
		assert.ErrorIs(t, err, weather.ErrLocationNotFound)

		all, err := s.ListLocations(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 2)

		mine, err := s.ListLocations(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, []weather.Location{second}, mine)

		_, err = s.CreateLocation(ctx, weather.NewLocation{Name: "Nice", Latitude: 43.7, Longitude: 7.2, UserID: "ghost"})
		assert.ErrorIs(t, err, weather.ErrUserNotFound)

		all, err = s.ListLocations(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 2, "a failed link must not leave the location behind")
	})

	t.Run("teardown", func(t *testing.T) {
		s := newStore(t)
		loc, err := s.CreateLocation(ctx, weather.NewLocation{Name: "Oslo", Latitude: 59.9, Longitude: 10.7})
		require.NoError(t, err)
		require.NoError(t, s.BulkInsert(ctx, loc.ID, daySlots(0, "2024-05-01T00:00")))

		require.NoError(t, s.Teardown(ctx))

		st, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, Stats{}, st)
	})
}

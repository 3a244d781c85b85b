package weather_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/city-forecast/internal/logger"
	"github.com/i474232898/city-forecast/internal/store"
	"github.com/i474232898/city-forecast/internal/weather"
)

const testDay = "2024-05-01"

// fakeClient serves a full day of slots whose temperature is base + slot index.
type fakeClient struct {
	mu       sync.Mutex
	base     float64
	err      error
	current  weather.Current
	dayCalls int
	curCalls int
}

func (f *fakeClient) setBase(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.base = v
}

func (f *fakeClient) FetchDay(_ context.Context, _, _ float64) (weather.DayForecast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dayCalls++
	if f.err != nil {
		return weather.DayForecast{}, f.err
	}
	return dayFixture(testDay, f.base), nil
}

func (f *fakeClient) FetchCurrent(_ context.Context, _, _ float64) (weather.Current, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.curCalls++
	if f.err != nil {
		return weather.Current{}, f.err
	}
	return f.current, nil
}

func dayFixture(date string, base float64) weather.DayForecast {
	start, _ := time.Parse("2006-01-02", date)
	day := weather.DayForecast{}
	for i := 0; i < weather.SlotsPerDay; i++ {
		temp := base + float64(i)
		hum := 50.0
		precip := 0.0
		wind := 2.5
		day.Times = append(day.Times, start.Add(time.Duration(i)*15*time.Minute).Format(weather.SlotLayout))
		day.Temperature = append(day.Temperature, &temp)
		day.Humidity = append(day.Humidity, &hum)
		day.Precipitation = append(day.Precipitation, &precip)
		day.WindSpeed = append(day.WindSpeed, &wind)
	}
	return day
}

// memoryCache records what the service stores and publishes.
type memoryCache struct {
	mu        sync.Mutex
	values    map[string]any
	published []any
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: make(map[string]any)}
}

func (c *memoryCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return false, nil
	}
	*(dest.(*weather.Current)) = v.(weather.Current)
	return true, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *memoryCache) Publish(_ context.Context, _ string, message any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, message)
	return nil
}

func newTestService(t *testing.T, client *fakeClient, opts ...weather.Option) (*weather.Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	return weather.NewService(st, client, logger.Nop(), opts...), st
}

func TestRegisterThenQueryEverySlot(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{base: 10}
	svc, _ := newTestService(t, client)

	loc, err := svc.RegisterLocation(ctx, weather.NewLocation{Name: "Berlin", Latitude: 52.52, Longitude: 13.41})
	require.NoError(t, err)
	assert.NotEmpty(t, loc.ID)

	start, _ := time.Parse("2006-01-02", testDay)
	for i := 0; i < weather.SlotsPerDay; i++ {
		// Any minute inside the slot resolves to it.
		at := start.Add(time.Duration(i)*15*time.Minute + 7*time.Minute).Format(weather.SlotLayout)

		values, err := svc.QueryForecastByName(ctx, "Berlin", "", at, []string{"temperature", "humidity"})
		require.NoError(t, err, at)
		assert.Equal(t, 10+float64(i), *values[weather.FieldTemperature], at)
		assert.Equal(t, 50.0, *values[weather.FieldHumidity], at)
		assert.NotContains(t, values, weather.FieldWindSpeed)
	}
}

func TestRegisterLocationUpstreamFailureLeavesNoLocation(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{err: fmt.Errorf("%w: connection refused", weather.ErrUpstreamUnavailable)}
	svc, st := newTestService(t, client)

	_, err := svc.RegisterLocation(ctx, weather.NewLocation{Name: "Oslo", Latitude: 59.9, Longitude: 10.7})
	assert.ErrorIs(t, err, weather.ErrUpstreamUnavailable)

	locations, err := st.ListLocations(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, locations)
}

// insertFailingStore accepts locations but rejects every slot insert.
type insertFailingStore struct {
	*store.MemoryStore
}

func (s insertFailingStore) BulkInsert(_ context.Context, _ string, _ []weather.Slot) error {
	return fmt.Errorf("%w: forced", weather.ErrDuplicateSlot)
}

func TestRegisterLocationInsertFailureLeavesNoLocation(t *testing.T) {
	ctx := context.Background()
	st := insertFailingStore{MemoryStore: store.NewMemoryStore()}
	svc := weather.NewService(st, &fakeClient{base: 1}, logger.Nop())

	_, err := svc.RegisterLocation(ctx, weather.NewLocation{Name: "Zurich", Latitude: 47.4, Longitude: 8.5})
	assert.ErrorIs(t, err, weather.ErrDuplicateSlot)

	locations, err := svc.ListLocations(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, locations)
}

func TestRegisterLocationValidation(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{}
	svc, _ := newTestService(t, client)

	_, err := svc.RegisterLocation(ctx, weather.NewLocation{Name: "  ", Latitude: 1, Longitude: 1})
	assert.ErrorIs(t, err, weather.ErrNameRequired)

	_, err = svc.RegisterLocation(ctx, weather.NewLocation{Name: "Nowhere", Latitude: 91, Longitude: 1})
	assert.ErrorIs(t, err, weather.ErrInvalidCoordinates)

	_, err = svc.RegisterLocation(ctx, weather.NewLocation{Name: "Paris", Latitude: 48.8, Longitude: 2.3, UserID: "missing"})
	assert.ErrorIs(t, err, weather.ErrUserNotFound)

	assert.Equal(t, 1, client.dayCalls, "invalid input must not reach the upstream")
}

func TestRefreshLocationOverwritesOnlyThatLocation(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{base: 10}
	cache := newMemoryCache()
	svc, _ := newTestService(t, client, weather.WithCache(cache, time.Minute))

	berlin, err := svc.RegisterLocation(ctx, weather.NewLocation{Name: "Berlin", Latitude: 52.52, Longitude: 13.41})
	require.NoError(t, err)
	_, err = svc.RegisterLocation(ctx, weather.NewLocation{Name: "Rome", Latitude: 41.9, Longitude: 12.5})
	require.NoError(t, err)

	client.setBase(100)
	res, err := svc.RefreshLocation(ctx, berlin)
	require.NoError(t, err)
	assert.Equal(t, weather.SlotsPerDay, res.Fetched)
	assert.Equal(t, weather.SlotsPerDay, res.Updated)
	assert.Zero(t, res.Missed())

	at := testDay + "T00:20"
	values, err := svc.QueryForecast(ctx, berlin.ID, at, []string{"temperature"})
	require.NoError(t, err)
	assert.Equal(t, 101.0, *values[weather.FieldTemperature])

	values, err = svc.QueryForecastByName(ctx, "Rome", "", at, []string{"temperature"})
	require.NoError(t, err)
	assert.Equal(t, 11.0, *values[weather.FieldTemperature])

	require.Len(t, cache.published, 1)
	event := cache.published[0].(weather.RefreshEvent)
	assert.Equal(t, berlin.ID, event.LocationID)
	assert.Equal(t, weather.SlotsPerDay, event.Slots)
}

// rollingClient returns the next day's labels, as the upstream does after midnight.
type rollingClient struct{ fakeClient }

func (r *rollingClient) FetchDay(_ context.Context, _, _ float64) (weather.DayForecast, error) {
	return dayFixture("2024-05-02", 0), nil
}

func TestRefreshLocationCountsMisses(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()

	svc := weather.NewService(st, &fakeClient{base: 1}, logger.Nop())
	loc, err := svc.RegisterLocation(ctx, weather.NewLocation{Name: "Lisbon", Latitude: 38.7, Longitude: -9.1})
	require.NoError(t, err)

	rolled := weather.NewService(st, &rollingClient{}, logger.Nop())
	res, err := rolled.RefreshLocation(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, weather.SlotsPerDay, res.Missed())

	// Stored values are untouched.
	values, err := svc.QueryForecast(ctx, loc.ID, testDay+"T00:00", []string{"temperature"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, *values[weather.FieldTemperature])
}

func TestRefreshLocationPropagatesUpstreamErrors(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{base: 1}
	svc, _ := newTestService(t, client)

	loc, err := svc.RegisterLocation(ctx, weather.NewLocation{Name: "Madrid", Latitude: 40.4, Longitude: -3.7})
	require.NoError(t, err)

	client.err = fmt.Errorf("%w: sequences differ", weather.ErrUpstreamFormat)
	_, err = svc.RefreshLocation(ctx, loc)
	assert.ErrorIs(t, err, weather.ErrUpstreamFormat)
}

func TestQueryForecastErrors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &fakeClient{})

	loc, err := svc.RegisterLocation(ctx, weather.NewLocation{Name: "Vienna", Latitude: 48.2, Longitude: 16.4})
	require.NoError(t, err)

	tests := []struct {
		name    string
		run     func() error
		wantErr error
	}{
		{"invalid time", func() error {
			_, err := svc.QueryForecast(ctx, loc.ID, testDay+"T25:10", []string{"temperature"})
			return err
		}, weather.ErrInvalidTime},
		{"no valid fields", func() error {
			_, err := svc.QueryForecast(ctx, loc.ID, testDay+"T10:10", []string{"pressure"})
			return err
		}, weather.ErrInvalidFields},
		{"unknown location id", func() error {
			_, err := svc.QueryForecast(ctx, "missing", testDay+"T10:10", []string{"temperature"})
			return err
		}, weather.ErrLocationNotFound},
		{"unknown location name", func() error {
			_, err := svc.QueryForecastByName(ctx, "Atlantis", "", testDay+"T10:10", []string{"temperature"})
			return err
		}, weather.ErrLocationNotFound},
		{"blank name", func() error {
			_, err := svc.QueryForecastByName(ctx, " ", "", testDay+"T10:10", []string{"temperature"})
			return err
		}, weather.ErrNameRequired},
		{"slot outside stored day", func() error {
			_, err := svc.QueryForecast(ctx, loc.ID, "2024-05-02T10:10", []string{"temperature"})
			return err
		}, weather.ErrSlotNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(), tt.wantErr)
		})
	}
}

func TestQueryForecastByNameUserFilter(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &fakeClient{base: 5})

	alice, err := svc.CreateUser(ctx, "alice")
	require.NoError(t, err)
	bob, err := svc.CreateUser(ctx, "bob")
	require.NoError(t, err)

	_, err = svc.RegisterLocation(ctx, weather.NewLocation{Name: "Prague", Latitude: 50.1, Longitude: 14.4, UserID: alice.ID})
	require.NoError(t, err)

	_, err = svc.QueryForecastByName(ctx, "Prague", alice.ID, testDay+"T00:00", []string{"temperature"})
	assert.NoError(t, err)

	_, err = svc.QueryForecastByName(ctx, "Prague", bob.ID, testDay+"T00:00", []string{"temperature"})
	assert.ErrorIs(t, err, weather.ErrLocationNotFound)

	mine, err := svc.ListLocations(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	theirs, err := svc.ListLocations(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, theirs)

	_, err = svc.CreateUser(ctx, "")
	assert.ErrorIs(t, err, weather.ErrNameRequired)
}

func TestCurrentWeatherIsCached(t *testing.T) {
	ctx := context.Background()
	temp := 21.5
	client := &fakeClient{current: weather.Current{Temperature: &temp}}
	svc, _ := newTestService(t, client, weather.WithCache(newMemoryCache(), time.Minute))

	for i := 0; i < 3; i++ {
		current, err := svc.CurrentWeather(ctx, 52.52, 13.41)
		require.NoError(t, err)
		assert.Equal(t, 21.5, *current.Temperature)
	}
	assert.Equal(t, 1, client.curCalls)

	_, err := svc.CurrentWeather(ctx, 100, 0)
	assert.ErrorIs(t, err, weather.ErrInvalidCoordinates)
}

func TestCurrentWeatherWithoutCache(t *testing.T) {
	client := &fakeClient{err: errors.Join(weather.ErrUpstreamUnavailable, errors.New("timeout"))}
	svc, _ := newTestService(t, client)

	_, err := svc.CurrentWeather(context.Background(), 1, 1)
	assert.ErrorIs(t, err, weather.ErrUpstreamUnavailable)
}

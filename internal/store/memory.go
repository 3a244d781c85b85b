package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/i474232898/city-forecast/internal/weather"
)

// Stats is a snapshot of how much the store tracks.
type Stats struct {
	Locations int
	Slots     int
}

// MemoryStore is a concurrency-safe in-memory implementation of weather.Store.
// Each call holds the lock for its whole duration, so bulk writes are atomic to readers.
type MemoryStore struct {
	mu sync.RWMutex

	users     map[string]weather.User
	locations []weather.Location
	// key: user id, value: linked location ids
	links map[string]map[string]bool
	// key: location id, value: slots by slot key
	slots map[string]map[string]weather.Slot
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]weather.User),
		links: make(map[string]map[string]bool),
		slots: make(map[string]map[string]weather.Slot),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, name string) (weather.User, error) {
	u := weather.User{ID: uuid.NewString(), Name: name}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[u.ID] = u
	return u, nil
}

func (s *MemoryStore) CreateLocation(_ context.Context, in weather.NewLocation) (weather.Location, error) {
	loc := weather.Location{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if in.UserID != "" {
		if _, ok := s.users[in.UserID]; !ok {
			return weather.Location{}, fmt.Errorf("%w: %s", weather.ErrUserNotFound, in.UserID)
		}
	}

	s.locations = append(s.locations, loc)
	if in.UserID != "" {
		if s.links[in.UserID] == nil {
			s.links[in.UserID] = make(map[string]bool)
		}
		s.links[in.UserID][loc.ID] = true
	}
	return loc, nil
}

// FindLocation returns the earliest registered location with the given name.
func (s *MemoryStore) FindLocation(_ context.Context, name, userID string) (weather.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, loc := range s.locations {
		if loc.Name != name {
			continue
		}
		if userID != "" && !s.links[userID][loc.ID] {
			continue
		}
		return loc, nil
	}
	return weather.Location{}, fmt.Errorf("%w: %s", weather.ErrLocationNotFound, name)
}

func (s *MemoryStore) GetLocation(_ context.Context, id string) (weather.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, loc := range s.locations {
		if loc.ID == id {
			return loc, nil
		}
	}
	return weather.Location{}, fmt.Errorf("%w: %s", weather.ErrLocationNotFound, id)
}

// DeleteLocation removes a location with its slots and user links.
func (s *MemoryStore) DeleteLocation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, loc := range s.locations {
		if loc.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", weather.ErrLocationNotFound, id)
	}

	s.locations = append(s.locations[:idx], s.locations[idx+1:]...)
	delete(s.slots, id)
	for _, linked := range s.links {
		delete(linked, id)
	}
	return nil
}

func (s *MemoryStore) ListLocations(_ context.Context, userID string) ([]weather.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]weather.Location, 0, len(s.locations))
	for _, loc := range s.locations {
		if userID != "" && !s.links[userID][loc.ID] {
			continue
		}
		result = append(result, loc)
	}
	return result, nil
}

// BulkInsert validates every key before writing any of them.
func (s *MemoryStore) BulkInsert(_ context.Context, locationID string, slots []weather.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.slots[locationID]
	batch := make(map[string]bool, len(slots))
	for _, slot := range slots {
		if _, ok := existing[slot.Time]; ok || batch[slot.Time] {
			return fmt.Errorf("%w: location %s slot %s", weather.ErrDuplicateSlot, locationID, slot.Time)
		}
		batch[slot.Time] = true
	}

	if existing == nil {
		existing = make(map[string]weather.Slot, len(slots))
		s.slots[locationID] = existing
	}
	for _, slot := range slots {
		existing[slot.Time] = slot
	}
	return nil
}

// BulkUpdate overwrites the matching rows; keys without a row are skipped.
func (s *MemoryStore) BulkUpdate(_ context.Context, locationID string, slots []weather.Slot) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.slots[locationID]
	updated := 0
	for _, slot := range slots {
		if _, ok := existing[slot.Time]; !ok {
			continue
		}
		existing[slot.Time] = slot
		updated++
	}
	return updated, nil
}

func (s *MemoryStore) GetSlot(_ context.Context, locationID, slotKey string, fields []weather.Field) (weather.SlotValues, error) {
	if len(fields) == 0 {
		return nil, weather.ErrInvalidFields
	}
	for _, f := range fields {
		if !f.Valid() {
			return nil, fmt.Errorf("%w: %s", weather.ErrInvalidFields, f)
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	slot, ok := s.slots[locationID][slotKey]
	if !ok {
		return nil, fmt.Errorf("%w: location %s slot %s", weather.ErrSlotNotFound, locationID, slotKey)
	}

	values := make(weather.SlotValues, len(fields))
	for _, f := range fields {
		values[f] = slot.Value(f)
	}
	return values, nil
}

// Stats counts tracked locations and stored slots.
func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Locations: len(s.locations)}
	for _, bySlot := range s.slots {
		st.Slots += len(bySlot)
	}
	return st, nil
}

// Teardown drops every user, location and slot.
func (s *MemoryStore) Teardown(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = make(map[string]weather.User)
	s.locations = nil
	s.links = make(map[string]map[string]bool)
	s.slots = make(map[string]map[string]weather.Slot)
	return nil
}

// Close is a no-op; it lets MemoryStore stand in wherever PostgresStore is closed.
func (s *MemoryStore) Close() {}

package weather

import (
	"fmt"
	"time"
)

// SlotsPerDay is the forecast horizon of one refresh: a calendar day of 15-minute slots.
const SlotsPerDay = 96

// Location is a tracked place. It is immutable once registered.
type Location struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NewLocation is the registration input.
type NewLocation struct {
	Name      string
	Latitude  float64
	Longitude float64
	// UserID optionally links the location to an existing user.
	UserID string
}

// ValidateCoordinates checks latitude/longitude ranges.
func ValidateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude must be between -90 and 90", ErrInvalidCoordinates)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude must be between -180 and 180", ErrInvalidCoordinates)
	}
	return nil
}

// User owns a set of locations.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Field names a forecast attribute stored per slot.
type Field string

const (
	FieldTemperature   Field = "temperature"
	FieldWindSpeed     Field = "wind_speed"
	FieldPrecipitation Field = "precipitation"
	FieldHumidity      Field = "humidity"
)

// AllFields lists every stored attribute in column order.
var AllFields = []Field{FieldTemperature, FieldWindSpeed, FieldPrecipitation, FieldHumidity}

// Valid reports whether f is a stored attribute.
func (f Field) Valid() bool {
	switch f {
	case FieldTemperature, FieldWindSpeed, FieldPrecipitation, FieldHumidity:
		return true
	}
	return false
}

// ParseFields keeps the known attribute names, in request order and without repeats.
// It fails with ErrInvalidFields when nothing usable remains.
func ParseFields(names []string) ([]Field, error) {
	seen := make(map[Field]bool, len(names))
	fields := make([]Field, 0, len(names))
	for _, n := range names {
		f := Field(n)
		if !f.Valid() || seen[f] {
			continue
		}
		seen[f] = true
		fields = append(fields, f)
	}
	if len(fields) == 0 {
		return nil, ErrInvalidFields
	}
	return fields, nil
}

// Slot is one 15-minute forecast row. Attributes are independently nullable.
type Slot struct {
	Time          string   `json:"time"`
	Temperature   *float64 `json:"temperature"`
	WindSpeed     *float64 `json:"wind_speed"`
	Precipitation *float64 `json:"precipitation"`
	Humidity      *float64 `json:"humidity"`
}

// Value returns the attribute named by f.
func (s Slot) Value(f Field) *float64 {
	switch f {
	case FieldTemperature:
		return s.Temperature
	case FieldWindSpeed:
		return s.WindSpeed
	case FieldPrecipitation:
		return s.Precipitation
	case FieldHumidity:
		return s.Humidity
	}
	return nil
}

// SlotValues is the answer to a forecast query: requested attribute -> value (nil when unknown upstream).
type SlotValues map[Field]*float64

// DayForecast holds the index-aligned sequences returned by the upstream provider.
type DayForecast struct {
	Times         []string
	Temperature   []*float64
	Humidity      []*float64
	Precipitation []*float64
	WindSpeed     []*float64
}

// Slots converts the sequences into slots keyed by the resolver, so the write path
// uses exactly the key space the read path looks up.
func (d DayForecast) Slots() ([]Slot, error) {
	n := len(d.Times)
	if len(d.Temperature) != n || len(d.Humidity) != n || len(d.Precipitation) != n || len(d.WindSpeed) != n {
		return nil, fmt.Errorf("%w: sequences are not index-aligned", ErrUpstreamFormat)
	}

	slots := make([]Slot, 0, n)
	for i, label := range d.Times {
		key, err := ResolveSlot(label)
		if err != nil {
			return nil, fmt.Errorf("%w: time label %q: %v", ErrUpstreamFormat, label, err)
		}
		slots = append(slots, Slot{
			Time:          key,
			Temperature:   d.Temperature[i],
			WindSpeed:     d.WindSpeed[i],
			Precipitation: d.Precipitation[i],
			Humidity:      d.Humidity[i],
		})
	}
	return slots, nil
}

// Current is the live weather at a coordinate.
type Current struct {
	Temperature *float64 `json:"temperature"`
	WindSpeed   *float64 `json:"wind_speed"`
	Pressure    *float64 `json:"pressure"`
}

// RefreshEvent is published after a location's slots were overwritten.
type RefreshEvent struct {
	LocationID  string    `json:"location_id"`
	Slots       int       `json:"slots"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

package weather

import "errors"

var (
	// ErrInvalidTime is returned when a requested timestamp cannot be mapped to a slot.
	ErrInvalidTime = errors.New("invalid time")
	// ErrInvalidFields is returned when none of the requested attributes is known.
	ErrInvalidFields = errors.New("invalid forecast fields")
	// ErrNameRequired is returned when a location or user name is blank.
	ErrNameRequired = errors.New("name is required")
	// ErrInvalidCoordinates is returned for latitude/longitude outside their ranges.
	ErrInvalidCoordinates = errors.New("invalid coordinates")

	// ErrUpstreamUnavailable covers transport failures, non-2xx responses and an open circuit.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrUpstreamFormat is returned when the provider response is missing fields or misaligned.
	ErrUpstreamFormat = errors.New("upstream response malformed")

	// ErrDuplicateSlot means an insert hit an existing (location, slot) key.
	ErrDuplicateSlot = errors.New("duplicate forecast slot")
	// ErrSlotNotFound means no forecast is stored for the requested slot.
	ErrSlotNotFound = errors.New("no forecast for requested time")
	// ErrLocationNotFound means no tracked location matches the lookup.
	ErrLocationNotFound = errors.New("location not found")
	// ErrUserNotFound means a referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
)

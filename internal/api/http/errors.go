package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/city-forecast/internal/weather"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   bool   `json:"error" example:"true"`
	Message string `json:"message" example:"invalid time"`
}

// toHTTPError maps service errors onto status codes. Server side failures are logged
// and reported with a generic message.
func (r *routes) toHTTPError(err error, fields map[string]any) error {
	switch {
	case errors.Is(err, weather.ErrInvalidTime),
		errors.Is(err, weather.ErrInvalidFields),
		errors.Is(err, weather.ErrNameRequired),
		errors.Is(err, weather.ErrInvalidCoordinates):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, weather.ErrLocationNotFound),
		errors.Is(err, weather.ErrSlotNotFound),
		errors.Is(err, weather.ErrUserNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, weather.ErrUpstreamUnavailable),
		errors.Is(err, weather.ErrUpstreamFormat):
		r.l.Error(err, fields)
		return fiber.NewError(fiber.StatusBadGateway, "weather provider unavailable")
	}

	r.l.Error(err, fields)
	return fiber.NewError(fiber.StatusInternalServerError, "internal server error")
}

package httpapi

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/city-forecast/internal/common"
	"github.com/i474232898/city-forecast/internal/weather"
)

// coordinatesQuery holds query parameters for the live weather endpoint.
type coordinatesQuery struct {
	Latitude  string `validate:"required"`
	Longitude string `validate:"required"`
}

func (q coordinatesQuery) parse() (lat, lon float64, err error) {
	lat, err = strconv.ParseFloat(q.Latitude, 64)
	if err != nil {
		return 0, 0, errors.New("invalid latitude format")
	}
	lon, err = strconv.ParseFloat(q.Longitude, 64)
	if err != nil {
		return 0, 0, errors.New("invalid longitude format")
	}
	return lat, lon, nil
}

// currentWeather godoc
// @Summary Current weather
// @Description Live temperature, wind speed and pressure for a coordinate
// @Tags Weather
// @Produce json
// @Param latitude query number true "Latitude (-90 to 90)"
// @Param longitude query number true "Longitude (-180 to 180)"
// @Success 200 {object} weather.Current
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/v1/weather [get]
func (r *routes) currentWeather(c *fiber.Ctx) error {
	q := coordinatesQuery{
		Latitude:  c.Query("latitude"),
		Longitude: c.Query("longitude"),
	}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	lat, lon, err := q.parse()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	current, err := r.service.CurrentWeather(c.UserContext(), lat, lon)
	if err != nil {
		return r.toHTTPError(err, map[string]any{"latitude": lat, "longitude": lon})
	}
	return c.JSON(current)
}

type createUserRequest struct {
	Name string `json:"name" validate:"required"`
}

// createUser godoc
// @Summary Create user
// @Tags Users
// @Accept json
// @Produce json
// @Param body body createUserRequest true "User"
// @Success 201 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/users [post]
func (r *routes) createUser(c *fiber.Ctx) error {
	var req createUserRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	user, err := r.service.CreateUser(c.UserContext(), req.Name)
	if err != nil {
		return r.toHTTPError(err, map[string]any{"name": req.Name})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user_id": user.ID})
}

// registerLocationRequest uses pointers so that a zero coordinate is distinguishable from a missing one.
type registerLocationRequest struct {
	Name      string   `json:"name" validate:"required"`
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	UserID    string   `json:"user_id"`
}

// registerLocation godoc
// @Summary Register location
// @Description Starts tracking a location and stores its forecast for the current day
// @Tags Locations
// @Accept json
// @Produce json
// @Param body body registerLocationRequest true "Location"
// @Success 201 {object} map[string]string
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /api/v1/locations [post]
func (r *routes) registerLocation(c *fiber.Ctx) error {
	var req registerLocationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	loc, err := r.service.RegisterLocation(c.UserContext(), weather.NewLocation{
		Name:      req.Name,
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		UserID:    req.UserID,
	})
	if err != nil {
		return r.toHTTPError(err, map[string]any{"name": req.Name})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Location added successfully",
		"id":      loc.ID,
	})
}

// listLocations godoc
// @Summary List locations
// @Tags Locations
// @Produce json
// @Param user_id query string false "Only locations linked to this user"
// @Success 200 {array} weather.Location
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/locations [get]
func (r *routes) listLocations(c *fiber.Ctx) error {
	userID := c.Query("user_id")

	locations, err := r.service.ListLocations(c.UserContext(), userID)
	if err != nil {
		return r.toHTTPError(err, map[string]any{"user_id": userID})
	}
	if len(locations) == 0 {
		return fiber.NewError(fiber.StatusNotFound, "No locations found")
	}
	return c.JSON(locations)
}

// forecastQuery holds query parameters of the forecast endpoints.
type forecastQuery struct {
	Time   string `validate:"required"`
	Params []string
}

func parseForecastQuery(c *fiber.Ctx) (forecastQuery, error) {
	q := forecastQuery{
		Time:   c.Query("time"),
		Params: common.SplitCSV(c.Query("params")),
	}
	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}

// forecastByName godoc
// @Summary Forecast by location name
// @Description Stored forecast attributes of the 15-minute slot containing the requested time (UTC)
// @Tags Forecast
// @Produce json
// @Param name query string true "Location name"
// @Param time query string true "Time as 2006-01-02T15:04"
// @Param params query string true "Comma separated: temperature,wind_speed,precipitation,humidity"
// @Param user_id query string false "Restrict the lookup to this user's locations"
// @Success 200 {object} map[string]number
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/locations/forecast [get]
func (r *routes) forecastByName(c *fiber.Ctx) error {
	q, err := parseForecastQuery(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	name := c.Query("name")
	userID := c.Query("user_id")

	values, err := r.service.QueryForecastByName(c.UserContext(), name, userID, q.Time, q.Params)
	if err != nil {
		return r.toHTTPError(err, map[string]any{"name": name, "time": q.Time})
	}
	return c.JSON(values)
}

// forecastByID godoc
// @Summary Forecast by location id
// @Tags Forecast
// @Produce json
// @Param id path string true "Location id"
// @Param time query string true "Time as 2006-01-02T15:04"
// @Param params query string true "Comma separated: temperature,wind_speed,precipitation,humidity"
// @Success 200 {object} map[string]number
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/locations/{id}/forecast [get]
func (r *routes) forecastByID(c *fiber.Ctx) error {
	q, err := parseForecastQuery(c)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	id := c.Params("id")

	values, err := r.service.QueryForecast(c.UserContext(), id, q.Time, q.Params)
	if err != nil {
		return r.toHTTPError(err, map[string]any{"location_id": id, "time": q.Time})
	}
	return c.JSON(values)
}

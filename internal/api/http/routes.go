package httpapi

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"

	"github.com/i474232898/city-forecast/internal/logger"
	"github.com/i474232898/city-forecast/internal/weather"
)

var validate = validator.New()

// SwaggerFile is served at /swagger/doc.json.
const SwaggerFile = "docs/swagger.json"

type routes struct {
	service *weather.Service
	l       *logger.Logger
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *weather.Service, l *logger.Logger) {
	r := &routes{service: service, l: l}

	app.Get("/swagger/doc.json", func(c *fiber.Ctx) error {
		data, err := os.ReadFile(SwaggerFile)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read swagger documentation")
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(data)
	})
	app.Get("/swagger/*", swagger.New(swagger.Config{
		URL:         "/swagger/doc.json",
		DeepLinking: true,
	}))

	v1 := app.Group("/api/v1")

	v1.Get("/weather", r.currentWeather)

	v1.Post("/users", r.createUser)

	v1.Post("/locations", r.registerLocation)
	v1.Get("/locations", r.listLocations)
	v1.Get("/locations/forecast", r.forecastByName)
	v1.Get("/locations/:id/forecast", r.forecastByID)
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

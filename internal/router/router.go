package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/geomark-lab/geomark-api/internal/config"
	"github.com/geomark-lab/geomark-api/internal/handler"
	"github.com/geomark-lab/geomark-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	BatchHandler *handler.BatchHandler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	if deps.BatchHandler != nil {
		batches := api.Group("/batches")
		deps.BatchHandler.Register(batches)
	}
}

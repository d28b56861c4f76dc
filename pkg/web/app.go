package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/static"
)

// NewApp wires the full HTTP surface: the run API, the SSE stream and the
// dashboard static files.
func NewApp(handlers *APIHandlers, staticDir string) *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	api := app.Group("/api")
	api.Get("/stream", handlers.StreamWorkflow)
	api.Get("/workflows", handlers.GetWorkflows)
	api.Get("/workflow/:id", handlers.GetWorkflow)
	api.Post("/workflow", handlers.CreateWorkflow)
	api.Post("/workflow/:id/continue", handlers.ContinueWorkflow)
	api.Post("/workflow/:id/retry", handlers.RetryWorkflow)

	app.Get("/health", handlers.HealthCheck)

	if staticDir != "" {
		app.Get("/*", static.New(staticDir))
	}

	return app
}

// Package main provides the Rescind API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/rescindhq/rescind/pkg/dispatcher"
	"github.com/rescindhq/rescind/pkg/eventbus"
	"github.com/rescindhq/rescind/pkg/flows"
	"github.com/rescindhq/rescind/pkg/persistence"
	"github.com/rescindhq/rescind/pkg/registry"
	"github.com/rescindhq/rescind/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	library     *flows.Library
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
	library *flows.Library,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		eventBus:    eventBus,
		library:     library,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	dispatchService := dispatcher.NewDispatcher(a.persistence, a.library, a.eventBus, a.validate, a.logger)

	handlers := web.NewAPIHandlers(dispatchService, a.persistence, a.registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Rescind API")
	})

	app.Post("/dispatch", handlers.Dispatch)

	items := app.Group("/items")
	items.Get("/:id", handlers.GetWorkItem)
	items.Get("/:id/attempts", handlers.GetWorkItemAttempts)

	app.Get("/executions/:id", handlers.GetExecution)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}

// Package web provides the HTTP handlers for dispatching actions and
// inspecting work items and executions.
package web

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/rescindhq/rescind/pkg/dispatcher"
	"github.com/rescindhq/rescind/pkg/models"
	"github.com/rescindhq/rescind/pkg/persistence"
	"github.com/rescindhq/rescind/pkg/registry"
)

type APIHandlers struct {
	dispatcher  *dispatcher.Dispatcher
	persistence persistence.Persistence
	registry    *registry.Registry
}

func NewAPIHandlers(
	dispatcher *dispatcher.Dispatcher,
	persistence persistence.Persistence,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		dispatcher:  dispatcher,
		persistence: persistence,
		registry:    registry,
	}
}

// Dispatch accepts one action request and returns the execution handle, or a
// synchronous result for keep actions.
func (h *APIHandlers) Dispatch(c fiber.Ctx) error {
	var req dispatcher.Request
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	result, err := h.dispatcher.Dispatch(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	status := fiber.StatusAccepted
	if result.Status != string(models.ExecutionStatusStarted) || result.Message != "" {
		// Synchronous settlements and already-running executions are not
		// accepted-for-processing responses.
		status = fiber.StatusOK
	}

	return c.Status(status).JSON(result)
}

func (h *APIHandlers) GetWorkItem(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Work item ID is required")
	}

	item, err := h.persistence.WorkItems().GetByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(item)
}

// GetWorkItemAttempts returns the ordered channel attempt audit trail.
func (h *APIHandlers) GetWorkItemAttempts(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Work item ID is required")
	}

	if _, err := h.persistence.WorkItems().GetByID(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	attempts, err := h.persistence.WorkItems().Attempts(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"work_item_id": id,
		"attempts":     attempts,
		"total_count":  len(attempts),
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.persistence.Executions().GetByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryErr := h.persistence.HealthCheck(c.Context())

	status := "healthy"
	message := "Rescind API is healthy"
	httpStatus := http.StatusOK
	repositoryCheck := "ok"

	if repositoryErr != nil {
		status = "unhealthy"
		message = "Rescind API is unhealthy"
		httpStatus = http.StatusInternalServerError
		repositoryCheck = repositoryErr.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
			"executors":  h.registry.ExecutorTypes(),
		},
		"timestamp": time.Now().UTC(),
	})
}

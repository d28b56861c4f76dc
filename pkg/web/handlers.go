package web

import (
	"net/http"
	"time"

	"github.com/flowboard/flowboard/pkg/liveview"
	"github.com/flowboard/flowboard/pkg/registry"
	"github.com/flowboard/flowboard/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	workflowService *services.Workflow
	subscribers     *liveview.Registry
	dispatcher      *liveview.Dispatcher
	validator       *validator.Validate
	registry        *registry.Registry
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	subscribers *liveview.Registry,
	dispatcher *liveview.Dispatcher,
	validator *validator.Validate,
	registry *registry.Registry,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		subscribers:     subscribers,
		dispatcher:      dispatcher,
		validator:       validator,
		registry:        registry,
	}
}

// GetWorkflows returns all runs with their full step lists, newest first.
func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	runs, err := h.workflowService.ListRuns(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": runs})
}

// GetWorkflow returns one run or 404.
func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	run, err := h.workflowService.GetRun(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(run)
}

// CreateWorkflow starts a new run and returns its initial view.
func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, "Validation failed: "+err.Error())
	}

	run, err := h.workflowService.StartRun(c.Context(), req.Params())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(run)
}

// ContinueWorkflow delivers an approval to a run blocked on its gate.
func (h *APIHandlers) ContinueWorkflow(c fiber.Ctx) error {
	var req ContinueWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	err := h.workflowService.Continue(c.Context(), c.Params("id"), req.Payload)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"status": "continued"})
}

// RetryWorkflow starts a fresh sibling run and returns its initial view.
// The original run is left untouched.
func (h *APIHandlers) RetryWorkflow(c fiber.Ctx) error {
	sibling, err := h.workflowService.Retry(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(sibling)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	storeCheck, storeOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Flowboard API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && storeOk {
		status = "healthy"
		message = "Flowboard API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry": registryCheck,
			"store":    storeCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

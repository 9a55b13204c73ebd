package web

import (
	"errors"

	"github.com/dukex/bizflow/pkg/persistence"
	"github.com/dukex/bizflow/pkg/protocol"
	"github.com/dukex/bizflow/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// writeProblem answers with an RFC 7807 body.
func writeProblem(c fiber.Ctx, status int, problemType, detail string) error {
	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(status).JSON(problem)
}

func badRequest(c fiber.Ctx, detail string) error {
	return writeProblem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func notFound(c fiber.Ctx, problemType, detail string) error {
	return writeProblem(c, fiber.StatusNotFound, problemType, detail)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps service and persistence errors onto HTTP problems.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err), errors.Is(err, protocol.ErrValidation), errors.Is(err, persistence.ErrInvalidID):
		return badRequest(c, err.Error())
	case services.IsConflictError(err):
		return writeProblem(c, fiber.StatusConflict, "conflict", err.Error())
	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow_not_found", "workflow not found")
	case persistence.IsTriggerNotFound(err):
		return notFound(c, "trigger_not_found", "trigger not found")
	case persistence.IsExecutionNotFound(err):
		return notFound(c, "execution_not_found", "execution not found")
	default:
		return internalError(c, err)
	}
}

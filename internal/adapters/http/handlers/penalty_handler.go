package handlers

import (
	"errors"
	"strconv"

	"openshelf/internal/core/services"
	"openshelf/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// PenaltyHandler handles late-return penalty endpoints
type PenaltyHandler struct {
	penaltyService *services.PenaltyService
}

// NewPenaltyHandler creates a new penalty handler
func NewPenaltyHandler(penaltyService *services.PenaltyService) *PenaltyHandler {
	return &PenaltyHandler{penaltyService: penaltyService}
}

// GetQuote handles penalty calculation
// @Summary Calculate penalty
// @Description Compute the current penalty for a loan without applying it (Librarian/Admin)
// @Tags Penalties
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /loans/{id}/penalty [get]
func (h *PenaltyHandler) GetQuote(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	quote, err := h.penaltyService.Calculate(c.Context(), uint(id))
	if err != nil {
		if errors.Is(err, services.ErrLoanNotFound) {
			return response.NotFound(c, "Loan not found")
		}
		return response.InternalServerError(c, "Failed to calculate penalty")
	}

	return response.Success(c, "Penalty calculated", quote)
}

// ApplyPenalty handles penalty assessment
// @Summary Apply penalty
// @Description Record a penalty against a loan; omit the amount to use the computed quote (Librarian/Admin)
// @Tags Penalties
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Param request body services.ApplyPenaltyInput false "Override amount, reason or waive"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /loans/{id}/penalty [post]
func (h *PenaltyHandler) ApplyPenalty(c *fiber.Ctx) error {
	staffID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	var input services.ApplyPenaltyInput
	_ = c.BodyParser(&input)

	penalty, err := h.penaltyService.Apply(c.Context(), uint(id), staffID, &input)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrLoanNotFound):
			return response.NotFound(c, "Loan not found")
		case errors.Is(err, services.ErrPenaltyInvalidAmount):
			return response.BadRequest(c, "Penalty amount cannot be negative")
		default:
			return response.InternalServerError(c, "Failed to apply penalty")
		}
	}

	return response.Created(c, "Penalty recorded", fiber.Map{
		"penalty": penalty,
	})
}

// ListByLoan handles penalty listing for a loan
// @Summary List penalties for a loan
// @Description List all penalties recorded against a loan (Librarian/Admin)
// @Tags Penalties
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Success 200 {object} response.Response
// @Router /loans/{id}/penalties [get]
func (h *PenaltyHandler) ListByLoan(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	penalties, err := h.penaltyService.ListByLoan(c.Context(), uint(id))
	if err != nil {
		return response.InternalServerError(c, "Failed to list penalties")
	}

	return response.Success(c, "Penalties retrieved successfully", fiber.Map{
		"penalties": penalties,
	})
}

// MyPenalties handles a user's own penalty listing
// @Summary List my penalties
// @Description List the current user's penalties and outstanding total
// @Tags Penalties
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Router /penalties/my [get]
func (h *PenaltyHandler) MyPenalties(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	penalties, total, err := h.penaltyService.ListByUser(c.Context(), userID)
	if err != nil {
		return response.InternalServerError(c, "Failed to list penalties")
	}

	return response.Success(c, "Penalties retrieved successfully", fiber.Map{
		"penalties":         penalties,
		"outstanding_total": total,
	})
}

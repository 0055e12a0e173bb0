package handlers

import (
	"errors"
	"strconv"

	"openshelf/internal/core/domain"
	"openshelf/internal/core/services"
	"openshelf/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// ReviewHandler handles book review endpoints
type ReviewHandler struct {
	reviewService *services.ReviewService
}

// NewReviewHandler creates a new review handler
func NewReviewHandler(reviewService *services.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService}
}

// CreateReview handles review creation
// @Summary Create a review
// @Description Review a book you have borrowed, once per book
// @Tags Reviews
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreateReviewInput true "Review data"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /reviews [post]
func (h *ReviewHandler) CreateReview(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	var input services.CreateReviewInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	review, err := h.reviewService.Create(c.Context(), &input, userID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidRating):
			return response.BadRequest(c, "Rating must be between 1 and 5")
		case errors.Is(err, services.ErrBookNotFound):
			return response.NotFound(c, "Book not found")
		case errors.Is(err, services.ErrReviewNotLoaned):
			return response.Forbidden(c, "You can only review books you have borrowed")
		case errors.Is(err, services.ErrReviewExists):
			return response.Conflict(c, "You already reviewed this book")
		default:
			return response.InternalServerError(c, "Failed to create review")
		}
	}

	return response.Created(c, "Review created successfully", fiber.Map{
		"review": review,
	})
}

// ListBookReviews handles review listing for a book
// @Summary List reviews for a book
// @Description List reviews for a book with its average rating
// @Tags Reviews
// @Accept json
// @Produce json
// @Param id path int true "Book ID"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Response
// @Router /books/{id}/reviews [get]
func (h *ReviewHandler) ListBookReviews(c *fiber.Ctx) error {
	bookID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid book ID")
	}

	result, err := h.reviewService.ListByBook(c.Context(), uint(bookID), c.QueryInt("page", 1), c.QueryInt("limit", 20))
	if err != nil {
		return response.InternalServerError(c, "Failed to list reviews")
	}

	return response.Success(c, "Reviews retrieved successfully", result)
}

// DeleteReview handles review deletion
// @Summary Delete a review
// @Description Delete a review; authors and staff only
// @Tags Reviews
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Review ID"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /reviews/{id} [delete]
func (h *ReviewHandler) DeleteReview(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	role, _ := c.Locals("role").(string)

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid review ID")
	}

	if err := h.reviewService.Delete(c.Context(), uint(id), userID, domain.Role(role)); err != nil {
		switch {
		case errors.Is(err, services.ErrReviewNotFound):
			return response.NotFound(c, "Review not found")
		case errors.Is(err, domain.ErrForbidden):
			return response.Forbidden(c, "You can only delete your own reviews")
		default:
			return response.InternalServerError(c, "Failed to delete review")
		}
	}

	return response.Success(c, "Review deleted successfully", nil)
}

package handlers

import (
	"errors"
	"strconv"

	"openshelf/internal/core/domain"
	"openshelf/internal/core/services"
	"openshelf/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// LoanHandler handles loan lifecycle endpoints
type LoanHandler struct {
	loanService *services.LoanService
}

// NewLoanHandler creates a new loan handler
func NewLoanHandler(loanService *services.LoanService) *LoanHandler {
	return &LoanHandler{loanService: loanService}
}

// RefuseRequest represents refuse request body
type RefuseRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RenewRequest represents renew request body
type RenewRequest struct {
	ExtensionDays int `json:"extension_days,omitempty"`
}

// CreateLoan handles borrow requests
// @Summary Request a loan
// @Description Submit a borrow request; it stays pending until a librarian validates it
// @Tags Loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreateLoanInput true "Loan request"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /loans [post]
func (h *LoanHandler) CreateLoan(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	var input services.CreateLoanInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if input.BookID == 0 {
		return response.BadRequest(c, "Book ID is required")
	}

	loan, err := h.loanService.Create(c.Context(), &input, userID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrBookNotFound):
			return response.NotFound(c, "Book not found")
		case errors.Is(err, services.ErrBookUnavailable):
			return response.Conflict(c, "No copy of this book is available")
		case errors.Is(err, services.ErrLoanLimitExceeded):
			return response.Conflict(c, "Loan limit reached, return a book first")
		case errors.Is(err, services.ErrDuplicateLoan):
			return response.Conflict(c, "You already have an open loan for this book")
		case errors.Is(err, services.ErrBorrowerInactive):
			return response.Forbidden(c, "Your account is inactive")
		case errors.Is(err, services.ErrUserNotFound):
			return response.NotFound(c, "User not found")
		default:
			return response.InternalServerError(c, "Failed to create loan request")
		}
	}

	return response.Created(c, "Loan request submitted", fiber.Map{
		"loan": loan.ToResponse(),
	})
}

// GetLoan handles fetching a single loan
// @Summary Get a loan
// @Description Get a loan by ID; students may only view their own loans
// @Tags Loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /loans/{id} [get]
func (h *LoanHandler) GetLoan(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	loan, err := h.loanService.GetByID(c.Context(), uint(id))
	if err != nil {
		if errors.Is(err, services.ErrLoanNotFound) {
			return response.NotFound(c, "Loan not found")
		}
		return response.InternalServerError(c, "Failed to get loan")
	}

	// Students can only see their own loans
	userID, _ := c.Locals("userID").(uint)
	role, _ := c.Locals("role").(string)
	if !domain.Role(role).IsStaff() && loan.UserID != userID {
		return response.Forbidden(c, "You can only view your own loans")
	}

	return response.Success(c, "Loan retrieved successfully", fiber.Map{
		"loan": loan.ToResponse(),
	})
}

// ListLoans handles loan listing
// @Summary List loans
// @Description List loans; students see only their own, staff may filter by user, book and status
// @Tags Loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Param status query string false "Status filter"
// @Param user_id query int false "User filter (staff only)"
// @Param book_id query int false "Book filter (staff only)"
// @Success 200 {object} response.Response
// @Router /loans [get]
func (h *LoanHandler) ListLoans(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	role, _ := c.Locals("role").(string)

	input := &services.ListLoansInput{
		Page:   c.QueryInt("page", 1),
		Limit:  c.QueryInt("limit", 20),
		Status: c.Query("status"),
	}

	if domain.Role(role).IsStaff() {
		if v := c.QueryInt("user_id", 0); v > 0 {
			id := uint(v)
			input.UserID = &id
		}
		if v := c.QueryInt("book_id", 0); v > 0 {
			id := uint(v)
			input.BookID = &id
		}
	} else {
		// Students are always scoped to their own loans
		input.UserID = &userID
	}

	result, err := h.loanService.List(c.Context(), input)
	if err != nil {
		return response.InternalServerError(c, "Failed to list loans")
	}

	return response.Success(c, "Loans retrieved successfully", result)
}

// ValidateLoan handles loan validation
// @Summary Validate a loan
// @Description Approve a pending loan and take one copy of the book (Librarian/Admin)
// @Tags Loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /loans/{id}/validate [post]
func (h *LoanHandler) ValidateLoan(c *fiber.Ctx) error {
	adminID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	loan, err := h.loanService.Validate(c.Context(), uint(id), adminID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrLoanNotFound):
			return response.NotFound(c, "Loan not found")
		case errors.Is(err, services.ErrNoCopyAvailable):
			return response.Conflict(c, "No copy available anymore, refuse the request or wait for a return")
		case errors.Is(err, domain.ErrInvalidTransition):
			return response.Conflict(c, err.Error())
		default:
			return response.InternalServerError(c, "Failed to validate loan")
		}
	}

	return response.Success(c, "Loan validated successfully", fiber.Map{
		"loan": loan.ToResponse(),
	})
}

// RefuseLoan handles loan refusal
// @Summary Refuse a loan
// @Description Refuse a pending loan request (Librarian/Admin)
// @Tags Loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Param request body RefuseRequest false "Refusal reason"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /loans/{id}/refuse [post]
func (h *LoanHandler) RefuseLoan(c *fiber.Ctx) error {
	adminID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	var req RefuseRequest
	_ = c.BodyParser(&req)

	loan, err := h.loanService.Refuse(c.Context(), uint(id), adminID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrLoanNotFound):
			return response.NotFound(c, "Loan not found")
		case errors.Is(err, domain.ErrInvalidTransition):
			return response.Conflict(c, err.Error())
		default:
			return response.InternalServerError(c, "Failed to refuse loan")
		}
	}

	return response.Success(c, "Loan refused", fiber.Map{
		"loan": loan.ToResponse(),
	})
}

// CancelLoan handles request cancellation
// @Summary Cancel a loan request
// @Description Cancel a pending request; owners and staff only
// @Tags Loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /loans/{id}/cancel [post]
func (h *LoanHandler) CancelLoan(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	role, _ := c.Locals("role").(string)

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	loan, err := h.loanService.Cancel(c.Context(), uint(id), userID, domain.Role(role))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrLoanNotFound):
			return response.NotFound(c, "Loan not found")
		case errors.Is(err, services.ErrNotLoanOwner):
			return response.Forbidden(c, "You can only cancel your own requests")
		case errors.Is(err, domain.ErrInvalidTransition):
			return response.Conflict(c, err.Error())
		default:
			return response.InternalServerError(c, "Failed to cancel loan")
		}
	}

	return response.Success(c, "Loan cancelled", fiber.Map{
		"loan": loan.ToResponse(),
	})
}

// ReturnLoan handles book returns
// @Summary Return a loan
// @Description Close an active or overdue loan and release its copy (loan owner or Librarian/Admin)
// @Tags Loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Param request body services.ReturnInput false "Return details"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /loans/{id}/return [post]
func (h *LoanHandler) ReturnLoan(c *fiber.Ctx) error {
	actorID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	role, _ := c.Locals("role").(string)

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	var input services.ReturnInput
	_ = c.BodyParser(&input)

	result, err := h.loanService.Return(c.Context(), uint(id), actorID, domain.Role(role), &input)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrLoanNotFound):
			return response.NotFound(c, "Loan not found")
		case errors.Is(err, services.ErrNotLoanOwner):
			return response.Forbidden(c, "You can only return your own loans")
		case errors.Is(err, domain.ErrInvalidTransition):
			return response.Conflict(c, err.Error())
		default:
			return response.InternalServerError(c, "Failed to return loan")
		}
	}

	message := "Loan returned successfully"
	if result.IsLate {
		message = "Loan returned late"
	}

	return response.Success(c, message, fiber.Map{
		"loan":      result.Loan.ToResponse(),
		"is_late":   result.IsLate,
		"late_days": result.LateDays,
	})
}

// RenewLoan handles loan renewal
// @Summary Renew a loan
// @Description Extend the due date of an active or overdue loan (Librarian/Admin)
// @Tags Loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Loan ID"
// @Param request body RenewRequest false "Extension override"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /loans/{id}/renew [post]
func (h *LoanHandler) RenewLoan(c *fiber.Ctx) error {
	actorID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}
	role, _ := c.Locals("role").(string)

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid loan ID")
	}

	var req RenewRequest
	_ = c.BodyParser(&req)

	loan, err := h.loanService.Renew(c.Context(), uint(id), actorID, req.ExtensionDays, domain.Role(role).IsStaff())
	if err != nil {
		switch {
		case errors.Is(err, services.ErrLoanNotFound):
			return response.NotFound(c, "Loan not found")
		case errors.Is(err, domain.ErrForbidden):
			return response.Forbidden(c, "Only staff may renew loans")
		case errors.Is(err, services.ErrRenewalLimit):
			return response.Conflict(c, "Renewal limit reached for this loan")
		case errors.Is(err, services.ErrLoanNotActive):
			return response.Conflict(c, "Only active or overdue loans can be renewed")
		default:
			return response.InternalServerError(c, "Failed to renew loan")
		}
	}

	return response.Success(c, "Loan renewed successfully", fiber.Map{
		"loan": loan.ToResponse(),
	})
}

// CheckEligibility handles borrow eligibility lookup
// @Summary Check borrow eligibility
// @Description Run the borrow policy checks for the current user and a book without submitting a request
// @Tags Loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param book_id path int true "Book ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /loans/eligibility/{book_id} [get]
func (h *LoanHandler) CheckEligibility(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	bookID, err := strconv.ParseUint(c.Params("book_id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid book ID")
	}

	result, err := h.loanService.CheckEligibility(c.Context(), userID, uint(bookID))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrBookNotFound):
			return response.NotFound(c, "Book not found")
		case errors.Is(err, services.ErrUserNotFound):
			return response.NotFound(c, "User not found")
		default:
			return response.InternalServerError(c, "Failed to check eligibility")
		}
	}

	return response.Success(c, "Eligibility checked", result)
}

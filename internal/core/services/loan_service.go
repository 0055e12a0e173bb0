package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"openshelf/internal/adapters/persistence/models"
	"openshelf/internal/adapters/persistence/repositories"
	"openshelf/internal/core/domain"
)

// Loan service errors
var (
	ErrLoanNotFound      = errors.New("loan not found")
	ErrBookNotFound      = errors.New("book not found")
	ErrBookUnavailable   = errors.New("no copy of this book is available")
	ErrLoanLimitExceeded = errors.New("loan limit exceeded")
	ErrDuplicateLoan     = errors.New("user already has an open loan for this book")
	ErrNoCopyAvailable   = errors.New("no copy available at validation time")
	ErrRenewalLimit      = errors.New("renewal limit reached")
	ErrLoanNotActive     = errors.New("loan is not active or overdue")
	ErrNotLoanOwner      = errors.New("only the loan owner or staff may do this")
	ErrBorrowerInactive  = errors.New("borrower account is inactive")
)

// LoanService drives the loan lifecycle. Every transition runs its
// precondition checks and its inventory mutation inside one transaction with
// the relevant rows locked; notifications are collected during the
// transaction and dispatched only after commit.
type LoanService struct {
	db            *gorm.DB
	loanRepo      *repositories.LoanRepository
	bookRepo      *repositories.BookRepository
	userRepo      repositories.UserRepository
	notifyService *NotificationService

	loanDays      int
	extensionDays int
}

// NewLoanService creates a new loan service
func NewLoanService(
	db *gorm.DB,
	loanRepo *repositories.LoanRepository,
	bookRepo *repositories.BookRepository,
	userRepo repositories.UserRepository,
	notifyService *NotificationService,
	loanDays int,
	extensionDays int,
) *LoanService {
	if loanDays <= 0 {
		loanDays = domain.DefaultLoanDays
	}
	if extensionDays <= 0 {
		extensionDays = domain.DefaultExtensionDays
	}
	return &LoanService{
		db:            db,
		loanRepo:      loanRepo,
		bookRepo:      bookRepo,
		userRepo:      userRepo,
		notifyService: notifyService,
		loanDays:      loanDays,
		extensionDays: extensionDays,
	}
}

// CreateLoanInput represents a borrow request
type CreateLoanInput struct {
	BookID       uint   `json:"book_id" validate:"required"`
	Notes        string `json:"notes,omitempty"`
	DurationDays int    `json:"duration_days,omitempty"`
}

// Create registers a borrow request in pending status. No copy is reserved
// yet; copies are only taken at validation time.
func (s *LoanService) Create(ctx context.Context, input *CreateLoanInput, userID uint) (*models.Loan, error) {
	duration := input.DurationDays
	if duration <= 0 {
		duration = s.loanDays
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrBorrowerInactive
	}

	var loan *models.Loan
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		book, err := s.bookRepo.GetByIDForUpdate(ctx, tx, input.BookID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}
		if book.IsDeleted() {
			return ErrBookNotFound
		}
		if book.AvailableCopies < 1 {
			return ErrBookUnavailable
		}

		outstanding, err := s.loanRepo.CountOutstandingByUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if outstanding >= domain.MaxLoansPerUser {
			return ErrLoanLimitExceeded
		}

		dup, err := s.loanRepo.ExistsOpenLoan(ctx, tx, userID, input.BookID)
		if err != nil {
			return err
		}
		if dup {
			return ErrDuplicateLoan
		}

		now := time.Now()
		loan = &models.Loan{
			UserID:   userID,
			BookID:   input.BookID,
			Status:   string(domain.LoanPending),
			LoanDate: now,
			DueDate:  now.AddDate(0, 0, duration),
			Notes:    input.Notes,
		}
		return s.loanRepo.Create(ctx, tx, loan)
	})
	if err != nil {
		return nil, err
	}

	s.notifyService.NotifyStaff(ctx, models.NotifLoanRequested,
		"New loan request",
		user.Username+" requested a loan, awaiting validation",
		"loan", loan.ID)

	return s.loanRepo.GetByID(ctx, loan.ID)
}

// Validate approves a pending loan and takes one copy of the book.
// Availability is re-checked here under the book row lock, since it may have
// changed since the request was created.
func (s *LoanService) Validate(ctx context.Context, loanID, adminID uint) (*models.Loan, error) {
	var intents []*models.Notification

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loan, err := s.loanRepo.GetByIDForUpdate(ctx, tx, loanID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLoanNotFound
			}
			return err
		}

		if _, err := domain.NextStatus(domain.LoanStatus(loan.Status), domain.EventValidate); err != nil {
			return err
		}

		book, err := s.bookRepo.GetByIDForUpdate(ctx, tx, loan.BookID)
		if err != nil {
			return err
		}
		if book.IsDeleted() {
			return ErrBookNotFound
		}

		ok, err := s.bookRepo.ReserveCopy(ctx, tx, book, 1)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNoCopyAvailable
		}

		now := time.Now()
		loan.Status = string(domain.LoanActive)
		loan.LoanDate = now
		loan.DueDate = now.AddDate(0, 0, s.loanDays)
		loan.ValidatedBy = &adminID
		if err := s.loanRepo.Update(ctx, tx, loan); err != nil {
			return err
		}

		intents = append(intents, &models.Notification{
			UserID:            loan.UserID,
			Type:              models.NotifLoanValidated,
			Title:             "Loan approved",
			Message:           "Your loan request for \"" + book.Title + "\" was approved, due " + loan.DueDate.Format("2006-01-02"),
			RelatedEntityType: "loan",
			RelatedEntityID:   loan.ID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyService.Dispatch(ctx, intents)
	s.notifyService.NotifyStaff(ctx, models.NotifLoanValidated,
		"Loan validated", "A pending loan was validated", "loan", loanID)

	return s.loanRepo.GetByID(ctx, loanID)
}

// Refuse rejects a pending loan. No copy was ever taken, so there is no
// inventory change to undo.
func (s *LoanService) Refuse(ctx context.Context, loanID, adminID uint, reason string) (*models.Loan, error) {
	var intents []*models.Notification

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loan, err := s.loanRepo.GetByIDForUpdate(ctx, tx, loanID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLoanNotFound
			}
			return err
		}

		next, err := domain.NextStatus(domain.LoanStatus(loan.Status), domain.EventRefuse)
		if err != nil {
			return err
		}

		loan.Status = string(next)
		loan.ValidatedBy = &adminID
		if reason != "" {
			loan.Notes = reason
		}
		if err := s.loanRepo.Update(ctx, tx, loan); err != nil {
			return err
		}

		msg := "Your loan request was refused"
		if reason != "" {
			msg += ": " + reason
		}
		intents = append(intents, &models.Notification{
			UserID:            loan.UserID,
			Type:              models.NotifLoanRefused,
			Title:             "Loan refused",
			Message:           msg,
			RelatedEntityType: "loan",
			RelatedEntityID:   loan.ID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyService.Dispatch(ctx, intents)

	return s.loanRepo.GetByID(ctx, loanID)
}

// Cancel withdraws a pending request. Allowed for the loan's owner or staff.
func (s *LoanService) Cancel(ctx context.Context, loanID, actorID uint, actorRole domain.Role) (*models.Loan, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loan, err := s.loanRepo.GetByIDForUpdate(ctx, tx, loanID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLoanNotFound
			}
			return err
		}

		if loan.UserID != actorID && !actorRole.IsStaff() {
			return ErrNotLoanOwner
		}

		next, err := domain.NextStatus(domain.LoanStatus(loan.Status), domain.EventCancel)
		if err != nil {
			return err
		}

		loan.Status = string(next)
		return s.loanRepo.Update(ctx, tx, loan)
	})
	if err != nil {
		return nil, err
	}

	return s.loanRepo.GetByID(ctx, loanID)
}

// ReturnInput represents a return
type ReturnInput struct {
	Condition string `json:"condition,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// ReturnResult reports the outcome of a return
type ReturnResult struct {
	Loan     *models.Loan `json:"loan"`
	IsLate   bool         `json:"is_late"`
	LateDays int          `json:"late_days"`
}

// Return closes an active or overdue loan and releases its copy, reversing
// the validation-time decrement exactly once. Allowed for the loan's owner
// or staff.
func (s *LoanService) Return(ctx context.Context, loanID, actorID uint, actorRole domain.Role, input *ReturnInput) (*ReturnResult, error) {
	var result ReturnResult
	var intents []*models.Notification

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loan, err := s.loanRepo.GetByIDForUpdate(ctx, tx, loanID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLoanNotFound
			}
			return err
		}

		if loan.UserID != actorID && !actorRole.IsStaff() {
			return ErrNotLoanOwner
		}

		next, err := domain.NextStatus(domain.LoanStatus(loan.Status), domain.EventReturn)
		if err != nil {
			return err
		}

		book, err := s.bookRepo.GetByIDForUpdate(ctx, tx, loan.BookID)
		if err != nil {
			return err
		}
		if err := s.bookRepo.ReleaseCopy(ctx, tx, book, 1); err != nil {
			return err
		}

		now := time.Now()
		loan.Status = string(next)
		loan.ReturnDate = &now
		loan.ReturnCondition = input.Condition
		if input.Notes != "" {
			loan.Notes = input.Notes
		}
		loan.ReturnedBy = &actorID
		if err := s.loanRepo.Update(ctx, tx, loan); err != nil {
			return err
		}

		result.LateDays = loan.LateDays(now)
		result.IsLate = result.LateDays > 0

		intents = append(intents, &models.Notification{
			UserID:            loan.UserID,
			Type:              models.NotifLoanReturned,
			Title:             "Book returned",
			Message:           "Return of \"" + book.Title + "\" has been recorded",
			RelatedEntityType: "loan",
			RelatedEntityID:   loan.ID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyService.Dispatch(ctx, intents)

	loan, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	result.Loan = loan
	return &result, nil
}

// Renew extends an active or overdue loan's due date. Staff only; renewing
// an overdue loan resets it to active.
func (s *LoanService) Renew(ctx context.Context, loanID, actorID uint, extensionDays int, isStaff bool) (*models.Loan, error) {
	if !isStaff {
		return nil, domain.ErrForbidden
	}
	if extensionDays <= 0 {
		extensionDays = s.extensionDays
	}

	var intents []*models.Notification

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loan, err := s.loanRepo.GetByIDForUpdate(ctx, tx, loanID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLoanNotFound
			}
			return err
		}

		next, err := domain.NextStatus(domain.LoanStatus(loan.Status), domain.EventRenew)
		if err != nil {
			return ErrLoanNotActive
		}

		if loan.RenewalCount >= domain.MaxRenewals {
			return ErrRenewalLimit
		}

		loan.DueDate = loan.DueDate.AddDate(0, 0, extensionDays)
		loan.RenewalCount++
		loan.Status = string(next)
		if err := s.loanRepo.Update(ctx, tx, loan); err != nil {
			return err
		}

		intents = append(intents, &models.Notification{
			UserID:            loan.UserID,
			Type:              models.NotifLoanRenewed,
			Title:             "Loan renewed",
			Message:           "Your loan was extended to " + loan.DueDate.Format("2006-01-02"),
			RelatedEntityType: "loan",
			RelatedEntityID:   loan.ID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyService.Dispatch(ctx, intents)

	return s.loanRepo.GetByID(ctx, loanID)
}

// MarkOverdue relabels active loans past their due date. Idempotent; safe to
// run concurrently with returns and renewals.
func (s *LoanService) MarkOverdue(ctx context.Context) (int64, error) {
	return s.loanRepo.MarkOverdue(ctx, time.Now())
}

// GetByID gets a loan by ID
func (s *LoanService) GetByID(ctx context.Context, id uint) (*models.Loan, error) {
	loan, err := s.loanRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoanNotFound
		}
		return nil, err
	}
	return loan, nil
}

// ListLoansInput represents list filters
type ListLoansInput struct {
	Page   int
	Limit  int
	UserID *uint
	BookID *uint
	Status string
}

// ListLoansOutput represents a page of loans
type ListLoansOutput struct {
	Loans      []*models.Loan `json:"loans"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"total_pages"`
}

// List lists loans
func (s *LoanService) List(ctx context.Context, input *ListLoansInput) (*ListLoansOutput, error) {
	if input.Page < 1 {
		input.Page = 1
	}
	if input.Limit < 1 {
		input.Limit = 10
	}
	if input.Limit > 100 {
		input.Limit = 100
	}

	offset := (input.Page - 1) * input.Limit
	filter := &repositories.ListFilter{
		UserID: input.UserID,
		BookID: input.BookID,
		Status: input.Status,
	}

	loans, total, err := s.loanRepo.List(ctx, filter, offset, input.Limit)
	if err != nil {
		return nil, err
	}

	totalPages := int(total) / input.Limit
	if int(total)%input.Limit > 0 {
		totalPages++
	}

	return &ListLoansOutput{
		Loans:      loans,
		Total:      total,
		Page:       input.Page,
		Limit:      input.Limit,
		TotalPages: totalPages,
	}, nil
}

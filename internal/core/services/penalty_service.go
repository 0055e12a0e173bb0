package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"openshelf/internal/adapters/persistence/models"
	"openshelf/internal/adapters/persistence/repositories"
)

// Penalty errors
var (
	ErrPenaltyInvalidAmount = errors.New("penalty amount cannot be negative")
)

// PenaltyService derives and records late-return penalties. Calculation is a
// pure function of the loan and the configured rate; nothing is persisted
// until Apply is called, and applying never changes loan status.
type PenaltyService struct {
	loanRepo      *repositories.LoanRepository
	penaltyRepo   *repositories.PenaltyRepository
	notifyService *NotificationService
	ratePerDay    float64
}

// NewPenaltyService creates a new penalty service
func NewPenaltyService(
	loanRepo *repositories.LoanRepository,
	penaltyRepo *repositories.PenaltyRepository,
	notifyService *NotificationService,
	ratePerDay float64,
) *PenaltyService {
	return &PenaltyService{
		loanRepo:      loanRepo,
		penaltyRepo:   penaltyRepo,
		notifyService: notifyService,
		ratePerDay:    ratePerDay,
	}
}

// PenaltyQuote represents a computed, not yet applied, penalty
type PenaltyQuote struct {
	LoanID      uint    `json:"loan_id"`
	DaysOverdue int     `json:"days_overdue"`
	RatePerDay  float64 `json:"rate_per_day"`
	Amount      float64 `json:"amount"`
}

// Calculate derives the current penalty for a loan
func (s *PenaltyService) Calculate(ctx context.Context, loanID uint) (*PenaltyQuote, error) {
	loan, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoanNotFound
		}
		return nil, err
	}

	days := loan.LateDays(time.Now())
	return &PenaltyQuote{
		LoanID:      loanID,
		DaysOverdue: days,
		RatePerDay:  s.ratePerDay,
		Amount:      float64(days) * s.ratePerDay,
	}, nil
}

// ApplyPenaltyInput represents an apply request
type ApplyPenaltyInput struct {
	Amount *float64 `json:"amount,omitempty"`
	Reason string   `json:"reason,omitempty"`
	Waive  bool     `json:"waive,omitempty"`
}

// Apply persists a penalty record against a loan. When Amount is omitted the
// computed quote is used; waive records a zero amount with the reason kept.
func (s *PenaltyService) Apply(ctx context.Context, loanID, assessedBy uint, input *ApplyPenaltyInput) (*models.Penalty, error) {
	loan, err := s.loanRepo.GetByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoanNotFound
		}
		return nil, err
	}

	days := loan.LateDays(time.Now())
	amount := float64(days) * s.ratePerDay
	if input.Amount != nil {
		amount = *input.Amount
	}
	if amount < 0 {
		return nil, ErrPenaltyInvalidAmount
	}
	if input.Waive {
		amount = 0
	}

	penalty := &models.Penalty{
		LoanID:      loanID,
		UserID:      loan.UserID,
		Amount:      amount,
		DaysOverdue: days,
		Reason:      input.Reason,
		Waived:      input.Waive,
		AssessedBy:  assessedBy,
	}
	if err := s.penaltyRepo.Create(ctx, penalty); err != nil {
		return nil, err
	}

	if !input.Waive {
		s.notifyService.Dispatch(ctx, []*models.Notification{{
			UserID:            loan.UserID,
			Type:              models.NotifPenalty,
			Title:             "Late return penalty",
			Message:           fmt.Sprintf("A penalty of %.2f was applied to your loan (%d days overdue)", amount, days),
			RelatedEntityType: "loan",
			RelatedEntityID:   loanID,
		}})
	}

	return penalty, nil
}

// ListByLoan lists penalties recorded against a loan
func (s *PenaltyService) ListByLoan(ctx context.Context, loanID uint) ([]*models.Penalty, error) {
	if _, err := s.loanRepo.GetByID(ctx, loanID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLoanNotFound
		}
		return nil, err
	}
	return s.penaltyRepo.ListByLoan(ctx, loanID)
}

// ListByUser lists penalties assessed against a user, with the outstanding total
func (s *PenaltyService) ListByUser(ctx context.Context, userID uint) ([]*models.Penalty, float64, error) {
	penalties, err := s.penaltyRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.penaltyRepo.OutstandingTotal(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return penalties, total, nil
}

package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"openshelf/internal/core/domain"
)

// EligibilityResult is a structured answer instead of an error, so callers
// can render a friendly message before a request is ever submitted.
type EligibilityResult struct {
	CanBorrow bool   `json:"can_borrow"`
	Reason    string `json:"reason,omitempty"`
}

// CheckEligibility runs the borrow policy checks for a user and book without
// mutating anything. The same rules are re-checked transactionally inside
// Create; this read-only variant exists for the UI.
func (s *LoanService) CheckEligibility(ctx context.Context, userID, bookID uint) (*EligibilityResult, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &EligibilityResult{Reason: "user not found"}, nil
		}
		return nil, err
	}
	if !user.IsActive {
		return &EligibilityResult{Reason: "account is inactive"}, nil
	}

	book, err := s.bookRepo.GetByID(ctx, bookID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &EligibilityResult{Reason: "book not found"}, nil
		}
		return nil, err
	}
	if book.IsDeleted() {
		return &EligibilityResult{Reason: "book not found"}, nil
	}
	if book.AvailableCopies < 1 {
		return &EligibilityResult{Reason: "no copy of this book is available"}, nil
	}

	outstanding, err := s.loanRepo.CountOutstandingByUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if outstanding >= domain.MaxLoansPerUser {
		return &EligibilityResult{Reason: "loan limit reached"}, nil
	}

	dup, err := s.loanRepo.ExistsOpenLoan(ctx, s.db, userID, bookID)
	if err != nil {
		return nil, err
	}
	if dup {
		return &EligibilityResult{Reason: "you already have an open loan for this book"}, nil
	}

	return &EligibilityResult{CanBorrow: true}, nil
}

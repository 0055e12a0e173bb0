package repositories

import (
	"context"

	"gorm.io/gorm"

	"openshelf/internal/adapters/persistence/models"
)

// PenaltyRepository handles penalty data access
type PenaltyRepository struct {
	db *gorm.DB
}

// NewPenaltyRepository creates a new penalty repository
func NewPenaltyRepository(db *gorm.DB) *PenaltyRepository {
	return &PenaltyRepository{db: db}
}

// Create creates a new penalty record
func (r *PenaltyRepository) Create(ctx context.Context, penalty *models.Penalty) error {
	return r.db.WithContext(ctx).Create(penalty).Error
}

// ListByLoan lists penalties recorded against a loan
func (r *PenaltyRepository) ListByLoan(ctx context.Context, loanID uint) ([]*models.Penalty, error) {
	var penalties []*models.Penalty
	err := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("created_at DESC").
		Find(&penalties).Error
	return penalties, err
}

// ListByUser lists penalties assessed against a user
func (r *PenaltyRepository) ListByUser(ctx context.Context, userID uint) ([]*models.Penalty, error) {
	var penalties []*models.Penalty
	err := r.db.WithContext(ctx).
		Preload("Loan").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&penalties).Error
	return penalties, err
}

// OutstandingTotal sums non-waived penalty amounts for a user
func (r *PenaltyRepository) OutstandingTotal(ctx context.Context, userID uint) (float64, error) {
	var total *float64
	err := r.db.WithContext(ctx).
		Model(&models.Penalty{}).
		Where("user_id = ? AND waived = ?", userID, false).
		Select("SUM(amount)").
		Scan(&total).Error
	if err != nil || total == nil {
		return 0, err
	}
	return *total, nil
}

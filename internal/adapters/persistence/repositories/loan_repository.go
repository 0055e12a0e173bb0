package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"openshelf/internal/adapters/persistence/models"
	"openshelf/internal/core/domain"
)

// LoanRepository handles loan data access
type LoanRepository struct {
	db *gorm.DB
}

// NewLoanRepository creates a new loan repository
func NewLoanRepository(db *gorm.DB) *LoanRepository {
	return &LoanRepository{db: db}
}

// Create creates a new loan
func (r *LoanRepository) Create(ctx context.Context, tx *gorm.DB, loan *models.Loan) error {
	return tx.WithContext(ctx).Create(loan).Error
}

// GetByID gets a loan by ID with relations
func (r *LoanRepository) GetByID(ctx context.Context, id uint) (*models.Loan, error) {
	var loan models.Loan
	err := r.db.WithContext(ctx).
		Preload("User").
		Preload("Book").
		First(&loan, id).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// GetByIDForUpdate gets a loan by ID holding a row lock for the span of tx.
// Guards status preconditions against concurrent transitions on the same loan.
func (r *LoanRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.Loan, error) {
	var loan models.Loan
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&loan, id).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// Update updates a loan within a transaction
func (r *LoanRepository) Update(ctx context.Context, tx *gorm.DB, loan *models.Loan) error {
	return tx.WithContext(ctx).Save(loan).Error
}

// ListFilter narrows the loan listing
type ListFilter struct {
	UserID *uint
	BookID *uint
	Status string
}

// List lists loans with filters and pagination, newest first
func (r *LoanRepository) List(ctx context.Context, filter *ListFilter, offset, limit int) ([]*models.Loan, int64, error) {
	var loans []*models.Loan
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Loan{})
	if filter != nil {
		if filter.UserID != nil {
			query = query.Where("user_id = ?", *filter.UserID)
		}
		if filter.BookID != nil {
			query = query.Where("book_id = ?", *filter.BookID)
		}
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Preload("User").
		Preload("Book").
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&loans).Error

	return loans, total, err
}

// CountOutstandingByUser counts a user's loans currently holding a copy
func (r *LoanRepository) CountOutstandingByUser(ctx context.Context, tx *gorm.DB, userID uint) (int64, error) {
	var count int64
	err := tx.WithContext(ctx).
		Model(&models.Loan{}).
		Where("user_id = ?", userID).
		Where("status IN ?", []string{string(domain.LoanActive), string(domain.LoanOverdue)}).
		Count(&count).Error
	return count, err
}

// ExistsOpenLoan reports whether the user already has a pending, active or
// overdue loan for the book. A second pending request for the same title is
// treated as a duplicate.
func (r *LoanRepository) ExistsOpenLoan(ctx context.Context, tx *gorm.DB, userID, bookID uint) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).
		Model(&models.Loan{}).
		Where("user_id = ? AND book_id = ?", userID, bookID).
		Where("status IN ?", []string{
			string(domain.LoanPending),
			string(domain.LoanActive),
			string(domain.LoanOverdue),
		}).
		Count(&count).Error
	return count > 0, err
}

// MarkOverdue relabels every active loan past its due date as overdue.
// The WHERE clause makes the sweep idempotent and safe against concurrent
// returns, which move status away from active in their own transaction.
func (r *LoanRepository) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("status = ?", string(domain.LoanActive)).
		Where("due_date < ?", now).
		Update("status", string(domain.LoanOverdue))
	return res.RowsAffected, res.Error
}

// ListDueSoon lists active loans whose due date falls within the window,
// with relations loaded for reminder messages.
func (r *LoanRepository) ListDueSoon(ctx context.Context, from, to time.Time) ([]*models.Loan, error) {
	var loans []*models.Loan
	err := r.db.WithContext(ctx).
		Preload("User").
		Preload("Book").
		Where("status = ?", string(domain.LoanActive)).
		Where("due_date >= ? AND due_date < ?", from, to).
		Find(&loans).Error
	return loans, err
}

// CountByStatus returns loan counts grouped by status
func (r *LoanRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// HasCompletedLoan reports whether the user has ever held the book.
// Gates review creation.
func (r *LoanRepository) HasCompletedLoan(ctx context.Context, userID, bookID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("user_id = ? AND book_id = ?", userID, bookID).
		Where("status IN ?", []string{
			string(domain.LoanActive),
			string(domain.LoanOverdue),
			string(domain.LoanReturned),
		}).
		Count(&count).Error
	return count > 0, err
}

package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"openshelf/internal/adapters/persistence/repositories"
	"openshelf/internal/core/domain"
)

// ReportService aggregates library statistics for the admin dashboard
type ReportService struct {
	db       *gorm.DB
	userRepo repositories.UserRepository
}

// NewReportService creates a new report service
func NewReportService(db *gorm.DB, userRepo repositories.UserRepository) *ReportService {
	return &ReportService{db: db, userRepo: userRepo}
}

// DashboardData represents admin dashboard data
type DashboardData struct {
	// User statistics
	TotalUsers  int64 `json:"total_users"`
	ActiveUsers int64 `json:"active_users"`

	// Catalog statistics
	TotalBooks  int64 `json:"total_books"`
	TotalCopies int64 `json:"total_copies"`
	CopiesOut   int64 `json:"copies_out"`

	// Loan statistics
	LoansByStatus map[string]int64 `json:"loans_by_status"`
	OverdueLoans  int64            `json:"overdue_loans"`
	LoansThisMonth int64           `json:"loans_this_month"`

	// Penalty statistics
	PenaltyTotal float64 `json:"penalty_total"`

	// Popular titles
	TopBooks []BookStats `json:"top_books"`
}

// BookStats represents per-title loan statistics
type BookStats struct {
	BookID    uint   `json:"book_id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	LoanCount int64  `json:"loan_count"`
}

// GetDashboard returns admin dashboard data
func (s *ReportService) GetDashboard(ctx context.Context) (*DashboardData, error) {
	data := &DashboardData{LoansByStatus: make(map[string]int64)}

	s.db.WithContext(ctx).Table("users").Where("deleted_at IS NULL").Count(&data.TotalUsers)

	activeUsers, err := s.userRepo.CountActive(ctx)
	if err != nil {
		return nil, err
	}
	data.ActiveUsers = activeUsers

	s.db.WithContext(ctx).Table("books").
		Where("status <> ? AND deleted_at IS NULL", string(domain.BookDeleted)).
		Count(&data.TotalBooks)

	s.db.WithContext(ctx).Table("books").
		Where("status <> ? AND deleted_at IS NULL", string(domain.BookDeleted)).
		Select("COALESCE(SUM(total_copies), 0)").
		Scan(&data.TotalCopies)

	s.db.WithContext(ctx).Table("books").
		Where("status <> ? AND deleted_at IS NULL", string(domain.BookDeleted)).
		Select("COALESCE(SUM(total_copies - available_copies), 0)").
		Scan(&data.CopiesOut)

	type statusRow struct {
		Status string
		Count  int64
	}
	var rows []statusRow
	if err := s.db.WithContext(ctx).Table("loans").
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		data.LoansByStatus[r.Status] = r.Count
	}
	data.OverdueLoans = data.LoansByStatus[string(domain.LoanOverdue)]

	monthStart := time.Now().AddDate(0, 0, -30)
	s.db.WithContext(ctx).Table("loans").
		Where("created_at >= ?", monthStart).
		Count(&data.LoansThisMonth)

	s.db.WithContext(ctx).Table("penalties").
		Where("waived = ?", false).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&data.PenaltyTotal)

	if err := s.db.WithContext(ctx).Table("loans").
		Select("loans.book_id, books.title, books.author, COUNT(*) as loan_count").
		Joins("JOIN books ON books.id = loans.book_id").
		Where("loans.status IN ?", []string{
			string(domain.LoanActive),
			string(domain.LoanOverdue),
			string(domain.LoanReturned),
		}).
		Group("loans.book_id, books.title, books.author").
		Order("loan_count DESC").
		Limit(10).
		Scan(&data.TopBooks).Error; err != nil {
		return nil, err
	}

	return data, nil
}

package models

import (
	"time"

	"gorm.io/gorm"

	"openshelf/internal/core/domain"
)

// ============================================================
// Auth & User Tables
// ============================================================

// User represents users table
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"uniqueIndex;size:50;not null" json:"username"`
	Email     string         `gorm:"uniqueIndex;size:100;not null" json:"email"`
	Password  string         `gorm:"size:255;not null" json:"-"`
	FullName  string         `gorm:"size:100" json:"full_name"`
	Role      string         `gorm:"size:20;default:'STUDENT'" json:"role"`
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// UserResponse DTO
type UserResponse struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

// RefreshToken represents refresh_tokens table
type RefreshToken struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"index;not null" json:"user_id"`
	TokenHash string     `gorm:"size:255;not null;index" json:"-"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	RevokedAt *time.Time `gorm:"index" json:"revoked_at"`
	User      User       `gorm:"foreignKey:UserID" json:"-"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

func (rt *RefreshToken) IsRevoked() bool {
	return rt.RevokedAt != nil
}

func (rt *RefreshToken) IsExpired() bool {
	return time.Now().After(rt.ExpiresAt)
}

// ============================================================
// Catalog Tables
// ============================================================

// Book represents books table. AvailableCopies is mutated only by the
// loan lifecycle through BookRepository.ReserveCopy / ReleaseCopy.
type Book struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Title           string         `gorm:"size:200;not null;index" json:"title"`
	Author          string         `gorm:"size:100;not null;index" json:"author"`
	ISBN            *string        `gorm:"size:20;uniqueIndex" json:"isbn"`
	Category        string         `gorm:"size:50;index" json:"category"`
	Description     string         `gorm:"type:text" json:"description"`
	TotalCopies     int            `gorm:"not null;default:1" json:"total_copies"`
	AvailableCopies int            `gorm:"not null;default:1" json:"available_copies"`
	Status          string         `gorm:"size:20;not null;default:'available'" json:"status"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Book) TableName() string {
	return "books"
}

// IsDeleted reports whether the book has been removed from the catalog
func (b *Book) IsDeleted() bool {
	return b.Status == string(domain.BookDeleted)
}

// BookResponse DTO
type BookResponse struct {
	ID              uint      `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	ISBN            *string   `json:"isbn"`
	Category        string    `json:"category"`
	Description     string    `json:"description"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	Status          string    `json:"status"`
	AverageRating   float64   `json:"average_rating,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func (b *Book) ToResponse() *BookResponse {
	return &BookResponse{
		ID:              b.ID,
		Title:           b.Title,
		Author:          b.Author,
		ISBN:            b.ISBN,
		Category:        b.Category,
		Description:     b.Description,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		Status:          b.Status,
		CreatedAt:       b.CreatedAt,
	}
}

// ============================================================
// Loan Tables
// ============================================================

// Loan represents loans table
type Loan struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UserID          uint       `gorm:"not null;index" json:"user_id"`
	BookID          uint       `gorm:"not null;index" json:"book_id"`
	Status          string     `gorm:"size:20;not null;default:'pending';index" json:"status"`
	LoanDate        time.Time  `gorm:"type:date;not null" json:"loan_date"`
	DueDate         time.Time  `gorm:"type:date;not null;index" json:"due_date"`
	ReturnDate      *time.Time `gorm:"type:date" json:"return_date"`
	RenewalCount    int        `gorm:"not null;default:0" json:"renewal_count"`
	ReturnCondition string     `gorm:"size:20" json:"return_condition"`
	Notes           string     `gorm:"type:text" json:"notes"`
	ValidatedBy     *uint      `json:"validated_by"`
	ReturnedBy      *uint      `json:"returned_by"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Book *Book `gorm:"foreignKey:BookID" json:"book,omitempty"`
}

func (Loan) TableName() string {
	return "loans"
}

// LoanResponse DTO
type LoanResponse struct {
	ID           uint       `json:"id"`
	UserID       uint       `json:"user_id"`
	Username     string     `json:"username,omitempty"`
	BookID       uint       `json:"book_id"`
	BookTitle    string     `json:"book_title,omitempty"`
	BookAuthor   string     `json:"book_author,omitempty"`
	Status       string     `json:"status"`
	LoanDate     time.Time  `json:"loan_date"`
	DueDate      time.Time  `json:"due_date"`
	ReturnDate   *time.Time `json:"return_date"`
	RenewalCount int        `json:"renewal_count"`
	Notes        string     `json:"notes"`
	IsLate       bool       `json:"is_late"`
	LateDays     int        `json:"late_days"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (l *Loan) ToResponse() *LoanResponse {
	resp := &LoanResponse{
		ID:           l.ID,
		UserID:       l.UserID,
		BookID:       l.BookID,
		Status:       l.Status,
		LoanDate:     l.LoanDate,
		DueDate:      l.DueDate,
		ReturnDate:   l.ReturnDate,
		RenewalCount: l.RenewalCount,
		Notes:        l.Notes,
		CreatedAt:    l.CreatedAt,
	}

	if l.User != nil {
		resp.Username = l.User.Username
	}
	if l.Book != nil {
		resp.BookTitle = l.Book.Title
		resp.BookAuthor = l.Book.Author
	}

	resp.LateDays = l.LateDays(time.Now())
	resp.IsLate = resp.LateDays > 0

	return resp
}

// LateDays returns how many calendar days past due the loan is, as of now for
// an outstanding loan or as of the return date for a returned one. Both sides
// are truncated to dates so a time-bearing due_date counts the same as a
// date column. Never negative.
func (l *Loan) LateDays(now time.Time) int {
	ref := now
	if l.ReturnDate != nil {
		ref = *l.ReturnDate
	} else if !domain.LoanStatus(l.Status).IsOutstanding() {
		return 0
	}

	days := int(dateOf(ref).Sub(dateOf(l.DueDate)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ============================================================
// Review & Notification Tables
// ============================================================

// Review represents reviews table
type Review struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"not null;index:idx_reviews_user_book,unique" json:"user_id"`
	BookID    uint           `gorm:"not null;index:idx_reviews_user_book,unique" json:"book_id"`
	Rating    int            `gorm:"not null" json:"rating"`
	Comment   string         `gorm:"type:text" json:"comment"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Book *Book `gorm:"foreignKey:BookID" json:"book,omitempty"`
}

func (Review) TableName() string {
	return "reviews"
}

// Notification represents notifications table. Rows are written best-effort
// after the lifecycle transaction commits, never inside it.
type Notification struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	UserID            uint      `gorm:"not null;index" json:"user_id"`
	Type              string    `gorm:"size:50;not null" json:"type"`
	Title             string    `gorm:"size:200;not null" json:"title"`
	Message           string    `gorm:"type:text" json:"message"`
	RelatedEntityType string    `gorm:"size:50" json:"related_entity_type"`
	RelatedEntityID   uint      `json:"related_entity_id"`
	IsRead            bool      `gorm:"default:false;index" json:"is_read"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (Notification) TableName() string {
	return "notifications"
}

// Notification types
const (
	NotifLoanValidated = "LOAN_VALIDATED"
	NotifLoanRefused   = "LOAN_REFUSED"
	NotifLoanRequested = "LOAN_REQUESTED"
	NotifLoanReturned  = "LOAN_RETURNED"
	NotifLoanRenewed   = "LOAN_RENEWED"
	NotifLoanDueSoon   = "LOAN_DUE_SOON"
	NotifLoanOverdue   = "LOAN_OVERDUE"
	NotifNewReview     = "NEW_REVIEW"
	NotifPenalty       = "PENALTY_APPLIED"
)

// ============================================================
// Penalty Table
// ============================================================

// Penalty represents penalties table
type Penalty struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	LoanID      uint      `gorm:"not null;index" json:"loan_id"`
	UserID      uint      `gorm:"not null;index" json:"user_id"`
	Amount      float64   `gorm:"type:decimal(10,2);not null" json:"amount"`
	DaysOverdue int       `gorm:"not null" json:"days_overdue"`
	Reason      string    `gorm:"type:text" json:"reason"`
	Waived      bool      `gorm:"default:false" json:"waived"`
	AssessedBy  uint      `gorm:"not null" json:"assessed_by"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Loan *Loan `gorm:"foreignKey:LoanID" json:"loan,omitempty"`
	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (Penalty) TableName() string {
	return "penalties"
}

// ============================================================
// Auto Migration
// ============================================================

// AutoMigrate runs auto migration for all tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&RefreshToken{},
		&Book{},
		&Loan{},
		&Review{},
		&Notification{},
		&Penalty{},
	)
}

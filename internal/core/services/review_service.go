package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"openshelf/internal/adapters/persistence/models"
	"openshelf/internal/adapters/persistence/repositories"
	"openshelf/internal/core/domain"
)

// Review errors
var (
	ErrReviewNotFound  = errors.New("review not found")
	ErrReviewExists    = errors.New("you already reviewed this book")
	ErrReviewNotLoaned = errors.New("you can only review books you have borrowed")
	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
)

// ReviewService handles book reviews
type ReviewService struct {
	reviewRepo    *repositories.ReviewRepository
	bookRepo      *repositories.BookRepository
	loanRepo      *repositories.LoanRepository
	notifyService *NotificationService
}

// NewReviewService creates a new review service
func NewReviewService(
	reviewRepo *repositories.ReviewRepository,
	bookRepo *repositories.BookRepository,
	loanRepo *repositories.LoanRepository,
	notifyService *NotificationService,
) *ReviewService {
	return &ReviewService{
		reviewRepo:    reviewRepo,
		bookRepo:      bookRepo,
		loanRepo:      loanRepo,
		notifyService: notifyService,
	}
}

// CreateReviewInput represents create review input
type CreateReviewInput struct {
	BookID  uint   `json:"book_id" validate:"required"`
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment,omitempty"`
}

// Create adds a review. Only users who have actually borrowed the book may
// review it, once.
func (s *ReviewService) Create(ctx context.Context, input *CreateReviewInput, userID uint) (*models.Review, error) {
	if input.Rating < 1 || input.Rating > 5 {
		return nil, ErrInvalidRating
	}

	book, err := s.bookRepo.GetByID(ctx, input.BookID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	if book.IsDeleted() {
		return nil, ErrBookNotFound
	}

	loaned, err := s.loanRepo.HasCompletedLoan(ctx, userID, input.BookID)
	if err != nil {
		return nil, err
	}
	if !loaned {
		return nil, ErrReviewNotLoaned
	}

	exists, err := s.reviewRepo.ExistsByUserAndBook(ctx, userID, input.BookID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrReviewExists
	}

	review := &models.Review{
		UserID:  userID,
		BookID:  input.BookID,
		Rating:  input.Rating,
		Comment: input.Comment,
	}
	if err := s.reviewRepo.Create(ctx, review); err != nil {
		return nil, err
	}

	s.notifyService.NotifyStaff(ctx, models.NotifNewReview,
		"New review",
		fmt.Sprintf("A %d-star review was posted for \"%s\"", input.Rating, book.Title),
		"review", review.ID)

	return review, nil
}

// ListByBookOutput represents a page of reviews with the book's average rating
type ListByBookOutput struct {
	Reviews       []*models.Review `json:"reviews"`
	Total         int64            `json:"total"`
	AverageRating float64          `json:"average_rating"`
	Page          int              `json:"page"`
	Limit         int              `json:"limit"`
}

// ListByBook lists a book's reviews
func (s *ReviewService) ListByBook(ctx context.Context, bookID uint, page, limit int) (*ListByBookOutput, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	reviews, total, err := s.reviewRepo.ListByBook(ctx, bookID, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}

	avg, err := s.reviewRepo.AverageRating(ctx, bookID)
	if err != nil {
		return nil, err
	}

	return &ListByBookOutput{
		Reviews:       reviews,
		Total:         total,
		AverageRating: avg,
		Page:          page,
		Limit:         limit,
	}, nil
}

// Delete removes a review. Allowed for its author or staff.
func (s *ReviewService) Delete(ctx context.Context, id, actorID uint, actorRole domain.Role) error {
	review, err := s.reviewRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrReviewNotFound
		}
		return err
	}

	if review.UserID != actorID && !actorRole.IsStaff() {
		return domain.ErrForbidden
	}

	return s.reviewRepo.Delete(ctx, id)
}

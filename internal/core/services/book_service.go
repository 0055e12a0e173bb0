package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"openshelf/internal/adapters/persistence/models"
	"openshelf/internal/adapters/persistence/repositories"
	"openshelf/internal/core/domain"
)

// Book service errors
var (
	ErrInvalidCopyCount = errors.New("total copies must be at least 0")
	ErrISBNTaken        = errors.New("a book with this ISBN already exists")
)

// BookService handles catalog management. It never touches available_copies
// for lending purposes; that belongs to the loan lifecycle.
type BookService struct {
	db         *gorm.DB
	bookRepo   *repositories.BookRepository
	reviewRepo *repositories.ReviewRepository
}

// NewBookService creates a new book service
func NewBookService(db *gorm.DB, bookRepo *repositories.BookRepository, reviewRepo *repositories.ReviewRepository) *BookService {
	return &BookService{db: db, bookRepo: bookRepo, reviewRepo: reviewRepo}
}

// CreateBookInput represents create book input
type CreateBookInput struct {
	Title       string  `json:"title" validate:"required"`
	Author      string  `json:"author" validate:"required"`
	ISBN        *string `json:"isbn,omitempty"`
	Category    string  `json:"category,omitempty"`
	Description string  `json:"description,omitempty"`
	TotalCopies int     `json:"total_copies"`
}

// Create adds a book to the catalog. New books start with every copy available.
func (s *BookService) Create(ctx context.Context, input *CreateBookInput) (*models.Book, error) {
	if input.Title == "" || input.Author == "" {
		return nil, domain.ErrInvalidInput
	}
	if input.TotalCopies < 0 {
		return nil, ErrInvalidCopyCount
	}
	if input.TotalCopies == 0 {
		input.TotalCopies = 1
	}

	book := &models.Book{
		Title:           input.Title,
		Author:          input.Author,
		ISBN:            input.ISBN,
		Category:        input.Category,
		Description:     input.Description,
		TotalCopies:     input.TotalCopies,
		AvailableCopies: input.TotalCopies,
		Status:          string(domain.BookAvailable),
	}

	if err := s.bookRepo.Create(ctx, book); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrISBNTaken
		}
		return nil, err
	}
	return book, nil
}

// GetByID gets a book with its average rating
func (s *BookService) GetByID(ctx context.Context, id uint) (*models.BookResponse, error) {
	book, err := s.bookRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}
	if book.IsDeleted() {
		return nil, ErrBookNotFound
	}

	resp := book.ToResponse()
	if avg, err := s.reviewRepo.AverageRating(ctx, id); err == nil {
		resp.AverageRating = avg
	}
	return resp, nil
}

// ListBooksInput represents list filters
type ListBooksInput struct {
	Page     int
	Limit    int
	Search   string
	Category string
}

// ListBooksOutput represents a page of books
type ListBooksOutput struct {
	Books      []*models.Book `json:"books"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"total_pages"`
}

// List lists catalog books
func (s *BookService) List(ctx context.Context, input *ListBooksInput) (*ListBooksOutput, error) {
	if input.Page < 1 {
		input.Page = 1
	}
	if input.Limit < 1 {
		input.Limit = 20
	}
	if input.Limit > 100 {
		input.Limit = 100
	}

	offset := (input.Page - 1) * input.Limit
	books, total, err := s.bookRepo.List(ctx, input.Search, input.Category, offset, input.Limit)
	if err != nil {
		return nil, err
	}

	totalPages := int(total) / input.Limit
	if int(total)%input.Limit > 0 {
		totalPages++
	}

	return &ListBooksOutput{
		Books:      books,
		Total:      total,
		Page:       input.Page,
		Limit:      input.Limit,
		TotalPages: totalPages,
	}, nil
}

// UpdateBookInput represents update book input
type UpdateBookInput struct {
	Title       *string `json:"title,omitempty"`
	Author      *string `json:"author,omitempty"`
	ISBN        *string `json:"isbn,omitempty"`
	Category    *string `json:"category,omitempty"`
	Description *string `json:"description,omitempty"`
	TotalCopies *int    `json:"total_copies,omitempty"`
	Status      *string `json:"status,omitempty"`
}

// Update edits catalog fields. Changing total_copies shifts available_copies
// by the same delta, clamped so 0 <= available <= total always holds. The
// whole edit runs with the book row locked so a concurrent validation or
// return cannot have its copy adjustment overwritten.
func (s *BookService) Update(ctx context.Context, id uint, input *UpdateBookInput) (*models.Book, error) {
	if input.TotalCopies != nil && *input.TotalCopies < 0 {
		return nil, ErrInvalidCopyCount
	}

	var book *models.Book
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		book, err = s.bookRepo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}
		if book.IsDeleted() {
			return ErrBookNotFound
		}

		if input.Title != nil {
			book.Title = *input.Title
		}
		if input.Author != nil {
			book.Author = *input.Author
		}
		if input.ISBN != nil {
			book.ISBN = input.ISBN
		}
		if input.Category != nil {
			book.Category = *input.Category
		}
		if input.Description != nil {
			book.Description = *input.Description
		}
		if input.Status != nil {
			book.Status = *input.Status
		}
		if input.TotalCopies != nil {
			delta := *input.TotalCopies - book.TotalCopies
			book.TotalCopies = *input.TotalCopies
			book.AvailableCopies += delta
			if book.AvailableCopies < 0 {
				book.AvailableCopies = 0
			}
			if book.AvailableCopies > book.TotalCopies {
				book.AvailableCopies = book.TotalCopies
			}
		}

		return s.bookRepo.Update(ctx, tx, book)
	})
	if err != nil {
		return nil, err
	}
	return book, nil
}

// Delete removes a book from the catalog. Books referenced by any loan are
// only flagged deleted so loan history keeps resolving.
func (s *BookService) Delete(ctx context.Context, id uint) error {
	book, err := s.bookRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBookNotFound
		}
		return err
	}
	if book.IsDeleted() {
		return ErrBookNotFound
	}

	referenced, err := s.bookRepo.CountLoansReferencing(ctx, id)
	if err != nil {
		return err
	}
	if referenced > 0 {
		return s.bookRepo.MarkDeleted(ctx, id)
	}
	return s.bookRepo.Delete(ctx, id)
}

// Availability returns a read-only snapshot of a book's copy counts
func (s *BookService) Availability(ctx context.Context, id uint) (available, total int, err error) {
	available, total, err = s.bookRepo.Availability(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, 0, ErrBookNotFound
	}
	return available, total, err
}

package repositories

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"openshelf/internal/adapters/persistence/models"
	"openshelf/internal/core/domain"
)

// BookRepository handles book data access. It is the only component allowed
// to write available_copies; callers mutate it exclusively through
// ReserveCopy and ReleaseCopy inside the transaction that changes loan state.
type BookRepository struct {
	db *gorm.DB
}

// NewBookRepository creates a new book repository
func NewBookRepository(db *gorm.DB) *BookRepository {
	return &BookRepository{db: db}
}

// Create creates a new book
func (r *BookRepository) Create(ctx context.Context, book *models.Book) error {
	return r.db.WithContext(ctx).Create(book).Error
}

// GetByID gets a book by ID
func (r *BookRepository) GetByID(ctx context.Context, id uint) (*models.Book, error) {
	var book models.Book
	err := r.db.WithContext(ctx).First(&book, id).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// GetByIDForUpdate gets a book by ID holding a row lock for the span of tx.
// Serializes concurrent validations and returns against the same title.
func (r *BookRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.Book, error) {
	var book models.Book
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&book, id).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// ReserveCopy atomically takes qty copies of a book. The book row must be
// locked first via GetByIDForUpdate within the same tx. Returns false when
// fewer than qty copies are available, without mutating anything.
func (r *BookRepository) ReserveCopy(ctx context.Context, tx *gorm.DB, book *models.Book, qty int) (bool, error) {
	if book.AvailableCopies < qty {
		return false, nil
	}

	book.AvailableCopies -= qty
	if book.AvailableCopies == 0 && book.Status == string(domain.BookAvailable) {
		book.Status = string(domain.BookBorrowed)
	}

	if err := tx.WithContext(ctx).Save(book).Error; err != nil {
		return false, err
	}
	return true, nil
}

// ReleaseCopy returns qty copies to the pool, capped at total_copies.
// Must run under the same row lock discipline as ReserveCopy.
func (r *BookRepository) ReleaseCopy(ctx context.Context, tx *gorm.DB, book *models.Book, qty int) error {
	book.AvailableCopies += qty
	if book.AvailableCopies > book.TotalCopies {
		book.AvailableCopies = book.TotalCopies
	}
	if book.AvailableCopies > 0 && book.Status == string(domain.BookBorrowed) {
		book.Status = string(domain.BookAvailable)
	}

	return tx.WithContext(ctx).Save(book).Error
}

// Availability returns a read-only snapshot of a book's copy counts
func (r *BookRepository) Availability(ctx context.Context, id uint) (available int, total int, err error) {
	var book models.Book
	err = r.db.WithContext(ctx).Select("available_copies", "total_copies").First(&book, id).Error
	if err != nil {
		return 0, 0, err
	}
	return book.AvailableCopies, book.TotalCopies, nil
}

// List lists books with optional search and category filter
func (r *BookRepository) List(ctx context.Context, search, category string, offset, limit int) ([]*models.Book, int64, error) {
	var books []*models.Book
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Book{}).
		Where("status <> ?", string(domain.BookDeleted))

	if search != "" {
		like := "%" + search + "%"
		query = query.Where("title LIKE ? OR author LIKE ? OR isbn LIKE ?", like, like, like)
	}
	if category != "" {
		query = query.Where("category = ?", category)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("title ASC").
		Offset(offset).
		Limit(limit).
		Find(&books).Error

	return books, total, err
}

// Update saves a book inside the caller's transaction. tx must come from the
// same transaction that loaded the row with GetByIDForUpdate.
func (r *BookRepository) Update(ctx context.Context, tx *gorm.DB, book *models.Book) error {
	return tx.WithContext(ctx).Save(book).Error
}

// Delete soft deletes a book
func (r *BookRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Book{}, id).Error
}

// MarkDeleted flags a book as removed from the catalog without dropping the
// row, so existing loans keep a valid reference.
func (r *BookRepository) MarkDeleted(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Model(&models.Book{}).
		Where("id = ?", id).
		Update("status", string(domain.BookDeleted)).Error
}

// CountLoansReferencing counts loans that reference a book in any status
func (r *BookRepository) CountLoansReferencing(ctx context.Context, bookID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("book_id = ?", bookID).
		Count(&count).Error
	return count, err
}

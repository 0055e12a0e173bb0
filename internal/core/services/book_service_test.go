package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"openshelf/internal/adapters/persistence/models"
	"openshelf/internal/adapters/persistence/repositories"
	"openshelf/internal/core/domain"
)

func setupBookTest(t *testing.T) (*BookService, *gorm.DB, func()) {
	dbPath := "./test_books_" + t.Name() + ".db"

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	require.NoError(t, models.AutoMigrate(db))

	svc := NewBookService(db, repositories.NewBookRepository(db), repositories.NewReviewRepository(db))

	cleanup := func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
		os.Remove(dbPath)
	}

	return svc, db, cleanup
}

func TestBookService_CreateDefaultsToOneCopy(t *testing.T) {
	svc, _, cleanup := setupBookTest(t)
	defer cleanup()
	ctx := context.Background()

	book, err := svc.Create(ctx, &CreateBookInput{Title: "Clean Code", Author: "Robert Martin"})
	require.NoError(t, err)
	assert.Equal(t, 1, book.TotalCopies)
	assert.Equal(t, 1, book.AvailableCopies)
	assert.Equal(t, string(domain.BookAvailable), book.Status)
}

func TestBookService_CreateRequiresTitleAndAuthor(t *testing.T) {
	svc, _, cleanup := setupBookTest(t)
	defer cleanup()

	_, err := svc.Create(context.Background(), &CreateBookInput{Title: "No Author"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestBookService_CreateRejectsDuplicateISBN(t *testing.T) {
	svc, _, cleanup := setupBookTest(t)
	defer cleanup()
	ctx := context.Background()

	isbn := "978-0134190440"
	_, err := svc.Create(ctx, &CreateBookInput{Title: "First", Author: "A", ISBN: &isbn})
	require.NoError(t, err)

	_, err = svc.Create(ctx, &CreateBookInput{Title: "Second", Author: "B", ISBN: &isbn})
	assert.ErrorIs(t, err, ErrISBNTaken)
}

func TestBookService_UpdateShiftsAvailableByDelta(t *testing.T) {
	svc, db, cleanup := setupBookTest(t)
	defer cleanup()
	ctx := context.Background()

	book := createTestBook(t, db, "Growing Library", 3)

	// Two copies are out on loan
	require.NoError(t, db.Model(&models.Book{}).Where("id = ?", book.ID).
		Update("available_copies", 1).Error)

	// Growing the stock grows availability by the same delta
	five := 5
	updated, err := svc.Update(ctx, book.ID, &UpdateBookInput{TotalCopies: &five})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.TotalCopies)
	assert.Equal(t, 3, updated.AvailableCopies)

	// Shrinking below the outstanding count clamps availability at zero
	two := 2
	updated, err = svc.Update(ctx, book.ID, &UpdateBookInput{TotalCopies: &two})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.TotalCopies)
	assert.Equal(t, 0, updated.AvailableCopies)

	negative := -1
	_, err = svc.Update(ctx, book.ID, &UpdateBookInput{TotalCopies: &negative})
	assert.ErrorIs(t, err, ErrInvalidCopyCount)
}

func TestBookService_UpdatePreservesReservedCopies(t *testing.T) {
	svc, db, cleanup := setupBookTest(t)
	defer cleanup()
	ctx := context.Background()

	bookRepo := repositories.NewBookRepository(db)
	book := createTestBook(t, db, "Contended Stock", 2)

	// A validation reserves a copy after the book was last read
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		locked, err := bookRepo.GetByIDForUpdate(ctx, tx, book.ID)
		require.NoError(t, err)
		ok, err := bookRepo.ReserveCopy(ctx, tx, locked, 1)
		require.NoError(t, err)
		require.True(t, ok)
		return nil
	}))

	// A field-only edit must not touch the reservation
	title := "Contended Stock, 2nd ed."
	updated, err := svc.Update(ctx, book.ID, &UpdateBookInput{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.AvailableCopies)
	assert.Equal(t, 2, updated.TotalCopies)

	// A stock change applies its delta on top of the reservation
	three := 3
	updated, err = svc.Update(ctx, book.ID, &UpdateBookInput{TotalCopies: &three})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.TotalCopies)
	assert.Equal(t, 2, updated.AvailableCopies)

	// Releasing the copy restores the invariant: every copy accounted for
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		locked, err := bookRepo.GetByIDForUpdate(ctx, tx, book.ID)
		require.NoError(t, err)
		return bookRepo.ReleaseCopy(ctx, tx, locked, 1)
	}))
	assert.Equal(t, 3, bookAvailable(t, db, book.ID))
}

func TestBookService_DeleteKeepsBooksWithLoanHistory(t *testing.T) {
	svc, db, cleanup := setupBookTest(t)
	defer cleanup()
	ctx := context.Background()

	user := createTestUser(t, db, "historyreader", "STUDENT", true)
	withHistory := createTestBook(t, db, "Loaned Once", 1)
	pristine := createTestBook(t, db, "Never Loaned", 1)

	loan := &models.Loan{
		UserID:   user.ID,
		BookID:   withHistory.ID,
		Status:   string(domain.LoanReturned),
		LoanDate: time.Now().AddDate(0, 0, -20),
		DueDate:  time.Now().AddDate(0, 0, -6),
	}
	require.NoError(t, db.Create(loan).Error)

	// Referenced book is flagged deleted, the row stays for loan history
	require.NoError(t, svc.Delete(ctx, withHistory.ID))
	var kept models.Book
	require.NoError(t, db.First(&kept, withHistory.ID).Error)
	assert.Equal(t, string(domain.BookDeleted), kept.Status)

	// A deleted book no longer resolves through the service
	_, err := svc.GetByID(ctx, withHistory.ID)
	assert.ErrorIs(t, err, ErrBookNotFound)

	// Unreferenced book is removed outright
	require.NoError(t, svc.Delete(ctx, pristine.ID))
	err = db.First(&models.Book{}, pristine.ID).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestBookService_Availability(t *testing.T) {
	svc, db, cleanup := setupBookTest(t)
	defer cleanup()
	ctx := context.Background()

	book := createTestBook(t, db, "Counted Book", 4)

	available, total, err := svc.Availability(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, available)
	assert.Equal(t, 4, total)

	_, _, err = svc.Availability(ctx, 9999)
	assert.ErrorIs(t, err, ErrBookNotFound)
}

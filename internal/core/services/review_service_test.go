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

func setupReviewTest(t *testing.T) (*ReviewService, *gorm.DB, func()) {
	dbPath := "./test_reviews_" + t.Name() + ".db"

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, models.AutoMigrate(db))

	userRepo := repositories.NewUserRepository(db)
	bookRepo := repositories.NewBookRepository(db)
	loanRepo := repositories.NewLoanRepository(db)
	reviewRepo := repositories.NewReviewRepository(db)
	notificationRepo := repositories.NewNotificationRepository(db)
	notifyService := NewNotificationService(notificationRepo, userRepo)

	svc := NewReviewService(reviewRepo, bookRepo, loanRepo, notifyService)

	cleanup := func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
		os.Remove(dbPath)
	}

	return svc, db, cleanup
}

func createReturnedLoan(t *testing.T, db *gorm.DB, userID, bookID uint) {
	now := time.Now()
	returned := now.AddDate(0, 0, -1)
	loan := &models.Loan{
		UserID:     userID,
		BookID:     bookID,
		Status:     string(domain.LoanReturned),
		LoanDate:   now.AddDate(0, 0, -15),
		DueDate:    now.AddDate(0, 0, -1),
		ReturnDate: &returned,
	}
	require.NoError(t, db.Create(loan).Error)
}

func TestReviewService_CreateRequiresBorrowHistory(t *testing.T) {
	svc, db, cleanup := setupReviewTest(t)
	defer cleanup()
	ctx := context.Background()

	reader := createTestUser(t, db, "reader", "STUDENT", true)
	book := createTestBook(t, db, "Reviewed Book", 1)

	// No borrow history yet
	_, err := svc.Create(ctx, &CreateReviewInput{BookID: book.ID, Rating: 5}, reader.ID)
	assert.ErrorIs(t, err, ErrReviewNotLoaned)

	createReturnedLoan(t, db, reader.ID, book.ID)

	review, err := svc.Create(ctx, &CreateReviewInput{BookID: book.ID, Rating: 4, Comment: "solid"}, reader.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, review.Rating)

	// One review per user per book
	_, err = svc.Create(ctx, &CreateReviewInput{BookID: book.ID, Rating: 2}, reader.ID)
	assert.ErrorIs(t, err, ErrReviewExists)
}

func TestReviewService_CreateValidatesRating(t *testing.T) {
	svc, db, cleanup := setupReviewTest(t)
	defer cleanup()
	ctx := context.Background()

	reader := createTestUser(t, db, "reader", "STUDENT", true)
	book := createTestBook(t, db, "Any Book", 1)
	createReturnedLoan(t, db, reader.ID, book.ID)

	_, err := svc.Create(ctx, &CreateReviewInput{BookID: book.ID, Rating: 0}, reader.ID)
	assert.ErrorIs(t, err, ErrInvalidRating)

	_, err = svc.Create(ctx, &CreateReviewInput{BookID: book.ID, Rating: 6}, reader.ID)
	assert.ErrorIs(t, err, ErrInvalidRating)
}

func TestReviewService_ListByBookComputesAverage(t *testing.T) {
	svc, db, cleanup := setupReviewTest(t)
	defer cleanup()
	ctx := context.Background()

	book := createTestBook(t, db, "Rated Book", 2)
	alice := createTestUser(t, db, "alice", "STUDENT", true)
	bob := createTestUser(t, db, "bob", "STUDENT", true)
	createReturnedLoan(t, db, alice.ID, book.ID)
	createReturnedLoan(t, db, bob.ID, book.ID)

	_, err := svc.Create(ctx, &CreateReviewInput{BookID: book.ID, Rating: 5}, alice.ID)
	require.NoError(t, err)
	_, err = svc.Create(ctx, &CreateReviewInput{BookID: book.ID, Rating: 2}, bob.ID)
	require.NoError(t, err)

	result, err := svc.ListByBook(ctx, book.ID, 1, 20)
	require.NoError(t, err)
	assert.Len(t, result.Reviews, 2)
	assert.InDelta(t, 3.5, result.AverageRating, 0.001)
}

func TestReviewService_DeleteAuthorOrStaffOnly(t *testing.T) {
	svc, db, cleanup := setupReviewTest(t)
	defer cleanup()
	ctx := context.Background()

	book := createTestBook(t, db, "Moderated Book", 1)
	author := createTestUser(t, db, "author", "STUDENT", true)
	stranger := createTestUser(t, db, "stranger", "STUDENT", true)
	librarian := createTestUser(t, db, "mod", "LIBRARIAN", true)
	createReturnedLoan(t, db, author.ID, book.ID)

	review, err := svc.Create(ctx, &CreateReviewInput{BookID: book.ID, Rating: 3}, author.ID)
	require.NoError(t, err)

	// A different student may not delete it
	err = svc.Delete(ctx, review.ID, stranger.ID, domain.RoleStudent)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	// Staff may
	err = svc.Delete(ctx, review.ID, librarian.ID, domain.RoleLibrarian)
	require.NoError(t, err)

	err = svc.Delete(ctx, review.ID, librarian.ID, domain.RoleLibrarian)
	assert.ErrorIs(t, err, ErrReviewNotFound)
}

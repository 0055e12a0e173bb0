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

func setupLoanTest(t *testing.T) (*LoanService, *gorm.DB, func()) {
	dbPath := "./test_loans_" + t.Name() + ".db"

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, models.AutoMigrate(db))

	userRepo := repositories.NewUserRepository(db)
	bookRepo := repositories.NewBookRepository(db)
	loanRepo := repositories.NewLoanRepository(db)
	notificationRepo := repositories.NewNotificationRepository(db)
	notifyService := NewNotificationService(notificationRepo, userRepo)

	svc := NewLoanService(db, loanRepo, bookRepo, userRepo, notifyService, 14, 7)

	cleanup := func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
		os.Remove(dbPath)
	}

	return svc, db, cleanup
}

func createTestUser(t *testing.T, db *gorm.DB, username, role string, active bool) *models.User {
	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: "hashed",
		Role:     role,
		IsActive: active,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestBook(t *testing.T, db *gorm.DB, title string, copies int) *models.Book {
	book := &models.Book{
		Title:           title,
		Author:          "Test Author",
		TotalCopies:     copies,
		AvailableCopies: copies,
		Status:          string(domain.BookAvailable),
	}
	require.NoError(t, db.Create(book).Error)
	return book
}

func bookAvailable(t *testing.T, db *gorm.DB, bookID uint) int {
	var book models.Book
	require.NoError(t, db.First(&book, bookID).Error)
	return book.AvailableCopies
}

func TestLoanService_FullLifecycle(t *testing.T) {
	svc, db, cleanup := setupLoanTest(t)
	defer cleanup()
	ctx := context.Background()

	student := createTestUser(t, db, "student1", "STUDENT", true)
	librarian := createTestUser(t, db, "librarian1", "LIBRARIAN", true)
	book := createTestBook(t, db, "The Go Programming Language", 1)

	// Request: pending, no copy taken
	loan, err := svc.Create(ctx, &CreateLoanInput{BookID: book.ID}, student.ID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.LoanPending), loan.Status)
	assert.Equal(t, 1, bookAvailable(t, db, book.ID))

	// Validate: active, copy taken, due date set
	loan, err = svc.Validate(ctx, loan.ID, librarian.ID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.LoanActive), loan.Status)
	assert.Equal(t, 0, bookAvailable(t, db, book.ID))
	require.NotNil(t, loan.ValidatedBy)
	assert.Equal(t, librarian.ID, *loan.ValidatedBy)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 14), loan.DueDate, time.Minute)

	// Return: returned, copy released
	result, err := svc.Return(ctx, loan.ID, librarian.ID, domain.RoleLibrarian, &ReturnInput{Condition: "good"})
	require.NoError(t, err)
	assert.Equal(t, string(domain.LoanReturned), result.Loan.Status)
	assert.False(t, result.IsLate)
	assert.Equal(t, 1, bookAvailable(t, db, book.ID))
	require.NotNil(t, result.Loan.ReturnedBy)
	assert.Equal(t, librarian.ID, *result.Loan.ReturnedBy)
}

func TestLoanService_ValidateFailsWhenLastCopyGone(t *testing.T) {
	svc, db, cleanup := setupLoanTest(t)
	defer cleanup()
	ctx := context.Background()

	alice := createTestUser(t, db, "alice", "STUDENT", true)
	bob := createTestUser(t, db, "bob", "STUDENT", true)
	librarian := createTestUser(t, db, "lib", "LIBRARIAN", true)
	book := createTestBook(t, db, "Single Copy", 1)

	loanA, err := svc.Create(ctx, &CreateLoanInput{BookID: book.ID}, alice.ID)
	require.NoError(t, err)
	loanB, err := svc.Create(ctx, &CreateLoanInput{BookID: book.ID}, bob.ID)
	require.NoError(t, err)

	// First validation takes the only copy
	_, err = svc.Validate(ctx, loanA.ID, librarian.ID)
	require.NoError(t, err)

	// Second validation finds no copy left
	_, err = svc.Validate(ctx, loanB.ID, librarian.ID)
	assert.ErrorIs(t, err, ErrNoCopyAvailable)
	assert.Equal(t, 0, bookAvailable(t, db, book.ID))

	// The second request is still pending and can be validated after a return
	loanB, err = svc.GetByID(ctx, loanB.ID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.LoanPending), loanB.Status)

	_, err = svc.Return(ctx, loanA.ID, librarian.ID, domain.RoleLibrarian, &ReturnInput{})
	require.NoError(t, err)

	loanB, err = svc.Validate(ctx, loanB.ID, librarian.ID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.LoanActive), loanB.Status)
}

func TestLoanService_CreateRejectsUnavailableBook(t *testing.T) {
	svc, db, cleanup := setupLoanTest(t)
	defer cleanup()
	ctx := context.Background()

	alice := createTestUser(t, db, "alice", "STUDENT", true)
	bob := createTestUser(t, db, "bob", "STUDENT", true)
	librarian := createTestUser(t, db, "lib", "LIBRARIAN", true)
	book := createTestBook(t, db, "Single Copy", 1)

	loanA, err := svc.Create(ctx, &CreateLoanInput{BookID: book.ID}, alice.ID)
	require.NoError(t, err)
	_, err = svc.Validate(ctx, loanA.ID, librarian.ID)
	require.NoError(t, err)

	// No copy available, new requests are rejected up front
	_, err = svc.Create(ctx, &CreateLoanInput{BookID: book.ID}, bob.ID)
	assert.ErrorIs(t, err, ErrBookUnavailable)
}

func TestLoanService_DuplicateRequestRejected(t *testing.T) {
	svc, db, cleanup := setupLoanTest(t)
	defer cleanup()
	ctx := context.Background()

	student := createTestUser(t, db, "student1", "STUDENT", true)
	book := createTestBook(t, db, "Popular Book", 3)

	_, err := svc.Create(ctx, &CreateLoanInput{BookID: book.ID}, student.ID)
	require.NoError(t, err)

	// A second request for the same book while the first is open is a duplicate
	_, err = svc.Create(ctx, &CreateLoanInput{BookID: book.ID}, student.ID)
	assert.ErrorIs(t, err, ErrDuplicateLoan)
}

func TestLoanService_LoanLimit(t *testing.T) {
	svc, db, cleanup := setupLoanTest(t)
	defer cleanup()
	ctx := context.Background()

	student := createTestUser(t, db, "reader", "STUDENT", true)
	librarian := createTestUser(t, db, "lib", "LIBRARIAN", true)

	// Five outstanding loans is the cap
	for i := 0; i < domain.MaxLoansPerUser; i++ {
		book := createTestBook(t, db, "Book "+string(rune('A'+i)), 1)
		loan, err := svc.Create(ctx, &CreateLoanInput{BookID: book.ID}, student.ID)
		require.NoError(t, err)
		_, err = svc.Validate(ctx, loan.ID, librarian.ID)
		require.NoError(t, err)
	}

	extra := createTestBook(t, db, "One Too Many", 1)
	_, err := svc.Create(ctx, &CreateLoanInput{BookID: extra.ID}, student.ID)
	assert.ErrorIs(t, err, ErrLoanLimitExceeded)
}

func TestLoanService_InactiveBorrowerRejected(t *testing.T) {
	svc, db, cleanup := setupLoanTest(t)
	defer cleanup()
	ctx := context.Background()

	student := createTestUser(t, db, "suspended", "STUDENT", false)
	book := createTestBook(t, db, "Any Book", 1)

	_, err := svc.Create(ctx, &CreateLoanInput{BookID: book.ID}, student.ID)
	assert.ErrorIs(t, err, ErrBorrowerInactive)
}

func TestLoanService_RefuseAndCancel(t *testing.T) {
	svc, db, cleanup := setupLoanTest(t)
	defer cleanup()
	ctx := context.Background()

	alice := createTestUser(t, db, "alice", "STUDENT", true)
	bob := createTestUser(t, db, "bob", "STUDENT", true)
	librarian := createTestUser(t, db, "lib", "LIBRARIAN", true)
	book := createTestBook(t, db, "Contested Book", 2)

	// Refuse leaves inventory untouched
	loanA, err := svc.Create(ctx, &CreateLoanInput{BookID: book.ID}, alice.ID)
	require.NoError(t, err)
	loanA, err = svc.Refuse(ctx, loanA.ID, librarian.ID, "copy damaged")
	require.NoError(t, err)
	assert.Equal(t, string(domain.LoanRefused), loanA.Status)
	assert.Equal(t, 2, bookAvailable(t, db, book.ID))

	// A refused loan cannot be validated afterwards
	_, err = svc.Validate(ctx, loanA.ID, librarian.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	// Owner can cancel their own pending request
	loanB, err := svc.Create(ctx, &CreateLoanInput{BookID: book.ID}, bob.ID)
	require.NoError(t, err)

	// But another student cannot
	_, err = svc.Cancel(ctx, loanB.ID, alice.ID, domain.RoleStudent)
	assert.ErrorIs(t, err, ErrNotLoanOwner)

	loanB, err = svc.Cancel(ctx, loanB.ID, bob.ID, domain.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, string(domain.LoanCancelled), loanB.Status)
}

func TestLoanService_ReturnTwiceRejected(t *testing.T) {
	svc, db, cleanup := setupLoanTest(t)
	defer cleanup()
	ctx := context.Background()

	student := createTestUser(t, db, "student1", "STUDENT", true)
	librarian := createTestUser(t, db, "lib", "LIBRARIAN", true)
	book := createTestBook(t, db, "Returnable", 1)

	loan, err := svc.Create(ctx, &CreateLoanInput{BookID: book.ID}, student.ID)
	require.NoError(t, err)
	_, err = svc.Validate(ctx, loan.ID, librarian.ID)
	require.NoError(t, err)
	_, err = svc.Return(ctx, loan.ID, librarian.ID, domain.RoleLibrarian, &ReturnInput{})
	require.NoError(t, err)

	// Second return must not release another copy
	_, err = svc.Return(ctx, loan.ID, librarian.ID, domain.RoleLibrarian, &ReturnInput{})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, 1, bookAvailable(t, db, book.ID))
}

func TestLoanService_OwnerCanReturnOwnLoan(t *testing.T) {
	svc, db, cleanup := setupLoanTest(t)
	defer cleanup()
	ctx := context.Background()

	student := createTestUser(t, db, "student1", "STUDENT", true)
	other := createTestUser(t, db, "student2", "STUDENT", true)
	librarian := createTestUser(t, db, "lib", "LIBRARIAN", true)
	book := createTestBook(t, db, "Self Service", 1)

	loan, err := svc.Create(ctx, &CreateLoanInput{BookID: book.ID}, student.ID)
	require.NoError(t, err)
	_, err = svc.Validate(ctx, loan.ID, librarian.ID)
	require.NoError(t, err)

	// Another student may not close it
	_, err = svc.Return(ctx, loan.ID, other.ID, domain.RoleStudent, &ReturnInput{})
	assert.ErrorIs(t, err, ErrNotLoanOwner)
	assert.Equal(t, 0, bookAvailable(t, db, book.ID))

	// The borrower can close their own loan
	result, err := svc.Return(ctx, loan.ID, student.ID, domain.RoleStudent, &ReturnInput{Condition: "good"})
	require.NoError(t, err)
	assert.Equal(t, string(domain.LoanReturned), result.Loan.Status)
	assert.Equal(t, 1, bookAvailable(t, db, book.ID))
	require.NotNil(t, result.Loan.ReturnedBy)
	assert.Equal(t, student.ID, *result.Loan.ReturnedBy)
}

func TestLoanService_LateReturnReportsDays(t *testing.T) {
	svc, db, cleanup := setupLoanTest(t)
	defer cleanup()
	ctx := context.Background()

	student := createTestUser(t, db, "student1", "STUDENT", true)
	librarian := createTestUser(t, db, "lib", "LIBRARIAN", true)
	book := createTestBook(t, db, "Late Book", 1)

	loan, err := svc.Create(ctx, &CreateLoanInput{BookID: book.ID}, student.ID)
	require.NoError(t, err)
	loan, err = svc.Validate(ctx, loan.ID, librarian.ID)
	require.NoError(t, err)

	// Backdate the due date three days
	pastDue := time.Now().AddDate(0, 0, -3)
	require.NoError(t, db.Model(&models.Loan{}).Where("id = ?", loan.ID).Update("due_date", pastDue).Error)

	result, err := svc.Return(ctx, loan.ID, librarian.ID, domain.RoleLibrarian, &ReturnInput{})
	require.NoError(t, err)
	assert.True(t, result.IsLate)
	assert.Equal(t, 3, result.LateDays)
}

func TestLoanService_RenewalLimitAndOverdueRenewal(t *testing.T) {
	svc, db, cleanup := setupLoanTest(t)
	defer cleanup()
	ctx := context.Background()

	student := createTestUser(t, db, "student1", "STUDENT", true)
	librarian := createTestUser(t, db, "lib", "LIBRARIAN", true)
	book := createTestBook(t, db, "Renewable", 1)

	loan, err := svc.Create(ctx, &CreateLoanInput{BookID: book.ID}, student.ID)
	require.NoError(t, err)
	loan, err = svc.Validate(ctx, loan.ID, librarian.ID)
	require.NoError(t, err)
	dueBefore := loan.DueDate

	// Students may not renew
	_, err = svc.Renew(ctx, loan.ID, student.ID, 0, false)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	// First renewal extends the due date
	loan, err = svc.Renew(ctx, loan.ID, librarian.ID, 0, true)
	require.NoError(t, err)
	assert.Equal(t, 1, loan.RenewalCount)
	assert.True(t, loan.DueDate.After(dueBefore))

	// Renewing an overdue loan brings it back to active
	require.NoError(t, db.Model(&models.Loan{}).Where("id = ?", loan.ID).
		Updates(map[string]interface{}{"status": string(domain.LoanOverdue), "due_date": time.Now().AddDate(0, 0, -1)}).Error)
	loan, err = svc.Renew(ctx, loan.ID, librarian.ID, 0, true)
	require.NoError(t, err)
	assert.Equal(t, string(domain.LoanActive), loan.Status)
	assert.Equal(t, 2, loan.RenewalCount)

	// Cap reached
	_, err = svc.Renew(ctx, loan.ID, librarian.ID, 0, true)
	assert.ErrorIs(t, err, ErrRenewalLimit)

	// Pending loans cannot be renewed at all
	book2 := createTestBook(t, db, "Still Pending", 1)
	pending, err := svc.Create(ctx, &CreateLoanInput{BookID: book2.ID}, student.ID)
	require.NoError(t, err)
	_, err = svc.Renew(ctx, pending.ID, librarian.ID, 0, true)
	assert.ErrorIs(t, err, ErrLoanNotActive)
}

func TestLoanService_OverdueSweepIsIdempotent(t *testing.T) {
	svc, db, cleanup := setupLoanTest(t)
	defer cleanup()
	ctx := context.Background()

	student := createTestUser(t, db, "student1", "STUDENT", true)
	librarian := createTestUser(t, db, "lib", "LIBRARIAN", true)
	book := createTestBook(t, db, "Overdue Book", 1)

	loan, err := svc.Create(ctx, &CreateLoanInput{BookID: book.ID}, student.ID)
	require.NoError(t, err)
	loan, err = svc.Validate(ctx, loan.ID, librarian.ID)
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Loan{}).Where("id = ?", loan.ID).
		Update("due_date", time.Now().AddDate(0, 0, -2)).Error)

	count, err := svc.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	loan, err = svc.GetByID(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, string(domain.LoanOverdue), loan.Status)

	// Running the sweep again finds nothing to relabel
	count, err = svc.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// An overdue loan still counts against the borrower's limit
	outstanding, err := repositories.NewLoanRepository(db).CountOutstandingByUser(ctx, db, student.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), outstanding)
}

func TestLoanService_CheckEligibility(t *testing.T) {
	svc, db, cleanup := setupLoanTest(t)
	defer cleanup()
	ctx := context.Background()

	student := createTestUser(t, db, "student1", "STUDENT", true)
	librarian := createTestUser(t, db, "lib", "LIBRARIAN", true)
	book := createTestBook(t, db, "Eligible Book", 1)

	result, err := svc.CheckEligibility(ctx, student.ID, book.ID)
	require.NoError(t, err)
	assert.True(t, result.CanBorrow)
	assert.Empty(t, result.Reason)

	// Take the only copy; a new check reports the book as unavailable
	loan, err := svc.Create(ctx, &CreateLoanInput{BookID: book.ID}, student.ID)
	require.NoError(t, err)
	_, err = svc.Validate(ctx, loan.ID, librarian.ID)
	require.NoError(t, err)

	other := createTestUser(t, db, "other", "STUDENT", true)
	result, err = svc.CheckEligibility(ctx, other.ID, book.ID)
	require.NoError(t, err)
	assert.False(t, result.CanBorrow)
	assert.NotEmpty(t, result.Reason)
}

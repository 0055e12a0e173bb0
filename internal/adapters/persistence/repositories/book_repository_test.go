package repositories

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"openshelf/internal/adapters/persistence/models"
	"openshelf/internal/core/domain"
)

func setupBookRepoTest(t *testing.T) (*BookRepository, *gorm.DB, func()) {
	dbPath := "./test_bookrepo_" + t.Name() + ".db"

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, models.AutoMigrate(db))

	repo := NewBookRepository(db)

	cleanup := func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
		os.Remove(dbPath)
	}

	return repo, db, cleanup
}

func seedBook(t *testing.T, db *gorm.DB, copies int) *models.Book {
	book := &models.Book{
		Title:           "Inventory Subject",
		Author:          "Author",
		TotalCopies:     copies,
		AvailableCopies: copies,
		Status:          string(domain.BookAvailable),
	}
	require.NoError(t, db.Create(book).Error)
	return book
}

func TestBookRepository_ReserveCopy(t *testing.T) {
	repo, db, cleanup := setupBookRepoTest(t)
	defer cleanup()
	ctx := context.Background()

	book := seedBook(t, db, 2)

	ok, err := repo.ReserveCopy(ctx, db, book, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, book.AvailableCopies)
	assert.Equal(t, string(domain.BookAvailable), book.Status)

	// Taking the last copy flips the title to borrowed
	ok, err = repo.ReserveCopy(ctx, db, book, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, book.AvailableCopies)
	assert.Equal(t, string(domain.BookBorrowed), book.Status)

	// Nothing left: refused without mutating
	ok, err = repo.ReserveCopy(ctx, db, book, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, book.AvailableCopies)
}

func TestBookRepository_ReleaseCopyCapsAtTotal(t *testing.T) {
	repo, db, cleanup := setupBookRepoTest(t)
	defer cleanup()
	ctx := context.Background()

	book := seedBook(t, db, 1)

	ok, err := repo.ReserveCopy(ctx, db, book, 1)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, repo.ReleaseCopy(ctx, db, book, 1))
	assert.Equal(t, 1, book.AvailableCopies)
	assert.Equal(t, string(domain.BookAvailable), book.Status)

	// Releasing beyond the stock never exceeds total_copies
	require.NoError(t, repo.ReleaseCopy(ctx, db, book, 1))
	assert.Equal(t, 1, book.AvailableCopies)
}

func TestBookRepository_ListExcludesDeleted(t *testing.T) {
	repo, db, cleanup := setupBookRepoTest(t)
	defer cleanup()
	ctx := context.Background()

	visible := seedBook(t, db, 1)
	hidden := &models.Book{
		Title:           "Hidden",
		Author:          "Author",
		TotalCopies:     1,
		AvailableCopies: 1,
		Status:          string(domain.BookDeleted),
	}
	require.NoError(t, db.Create(hidden).Error)

	books, total, err := repo.List(ctx, "", "", 0, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, books, 1)
	assert.Equal(t, visible.ID, books[0].ID)
}

func TestBookRepository_ListSearch(t *testing.T) {
	repo, db, cleanup := setupBookRepoTest(t)
	defer cleanup()
	ctx := context.Background()

	seedBook(t, db, 1)
	other := &models.Book{
		Title:           "Distributed Systems",
		Author:          "Tanenbaum",
		Category:        "cs",
		TotalCopies:     1,
		AvailableCopies: 1,
		Status:          string(domain.BookAvailable),
	}
	require.NoError(t, db.Create(other).Error)

	books, total, err := repo.List(ctx, "Tanen", "", 0, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, books, 1)
	assert.Equal(t, "Distributed Systems", books[0].Title)

	_, total, err = repo.List(ctx, "", "cs", 0, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

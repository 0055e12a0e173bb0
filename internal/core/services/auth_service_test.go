package services

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
	"openshelf/internal/adapters/persistence/repositories"
	"openshelf/internal/config"
	"openshelf/internal/core/domain"
	"openshelf/internal/pkg/jwt"
)

func setupAuthTest(t *testing.T) (*AuthService, *gorm.DB, func()) {
	dbPath := "./test_auth_" + t.Name() + ".db"

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, models.AutoMigrate(db))

	cfg := &config.Config{
		JWT: config.JWTConfig{
			Secret:           "test-secret",
			RefreshSecret:    "test-refresh-secret",
			AccessTokenMins:  15,
			RefreshTokenDays: 7,
		},
	}

	svc := NewAuthService(repositories.NewUserRepository(db), repositories.NewRefreshTokenRepository(db), cfg)

	cleanup := func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
		os.Remove(dbPath)
	}

	return svc, db, cleanup
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	svc, _, cleanup := setupAuthTest(t)
	defer cleanup()
	ctx := context.Background()

	result, err := svc.Register(ctx, &RegisterInput{
		Username: "newreader",
		Email:    "newreader@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	assert.Equal(t, string(domain.RoleStudent), result.User.Role)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)

	// Access token carries identity claims
	claims, err := jwt.ValidateAccessToken(result.AccessToken, "test-secret")
	require.NoError(t, err)
	assert.Equal(t, "newreader", claims.Username)
	assert.Equal(t, string(domain.RoleStudent), claims.Role)

	// Login with the right password
	login, err := svc.Login(ctx, &LoginInput{Username: "newreader", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, login.User.ID)

	// And not with the wrong one
	_, err = svc.Login(ctx, &LoginInput{Username: "newreader", Password: "wrongpass1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_RegisterRejectsDuplicatesAndWeakPasswords(t *testing.T) {
	svc, _, cleanup := setupAuthTest(t)
	defer cleanup()
	ctx := context.Background()

	_, err := svc.Register(ctx, &RegisterInput{Username: "taken", Email: "taken@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, &RegisterInput{Username: "taken", Email: "other@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	_, err = svc.Register(ctx, &RegisterInput{Username: "other", Email: "taken@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	_, err = svc.Register(ctx, &RegisterInput{Username: "weak", Email: "weak@example.com", Password: "short"})
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestAuthService_LoginRejectsInactiveUser(t *testing.T) {
	svc, db, cleanup := setupAuthTest(t)
	defer cleanup()
	ctx := context.Background()

	_, err := svc.Register(ctx, &RegisterInput{Username: "suspended", Email: "s@example.com", Password: "password123"})
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.User{}).Where("username = ?", "suspended").Update("is_active", false).Error)

	_, err = svc.Login(ctx, &LoginInput{Username: "suspended", Password: "password123"})
	assert.ErrorIs(t, err, ErrUserInactive)
}

func TestAuthService_RefreshRotatesToken(t *testing.T) {
	svc, _, cleanup := setupAuthTest(t)
	defer cleanup()
	ctx := context.Background()

	registered, err := svc.Register(ctx, &RegisterInput{Username: "rotator", Email: "r@example.com", Password: "password123"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(ctx, registered.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, registered.RefreshToken, refreshed.RefreshToken)

	// The old token was revoked by the rotation
	_, err = svc.RefreshToken(ctx, registered.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	// The new one still works
	_, err = svc.RefreshToken(ctx, refreshed.RefreshToken)
	require.NoError(t, err)
}

func TestAuthService_LogoutRevokesToken(t *testing.T) {
	svc, _, cleanup := setupAuthTest(t)
	defer cleanup()
	ctx := context.Background()

	registered, err := svc.Register(ctx, &RegisterInput{Username: "leaver", Email: "l@example.com", Password: "password123"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, registered.RefreshToken))

	_, err = svc.RefreshToken(ctx, registered.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	// Garbage tokens are invalid, not revoked
	_, err = svc.RefreshToken(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

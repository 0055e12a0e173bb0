package routes

import (
	"openshelf/internal/adapters/http/handlers"
	"openshelf/internal/adapters/http/middleware"
	"openshelf/internal/adapters/persistence/repositories"
	"openshelf/internal/config"
	"openshelf/internal/core/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"gorm.io/gorm"
)

// Setup configures all routes for the application
func Setup(app *fiber.App, db *gorm.DB, cfg *config.Config) {
	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	refreshTokenRepo := repositories.NewRefreshTokenRepository(db)
	bookRepo := repositories.NewBookRepository(db)
	loanRepo := repositories.NewLoanRepository(db)
	reviewRepo := repositories.NewReviewRepository(db)
	notificationRepo := repositories.NewNotificationRepository(db)
	penaltyRepo := repositories.NewPenaltyRepository(db)

	// Initialize services
	authService := services.NewAuthService(userRepo, refreshTokenRepo, cfg)
	userService := services.NewUserService(userRepo)
	notifyService := services.NewNotificationService(notificationRepo, userRepo)
	bookService := services.NewBookService(db, bookRepo, reviewRepo)
	loanService := services.NewLoanService(
		db,
		loanRepo,
		bookRepo,
		userRepo,
		notifyService,
		cfg.Lending.LoanDays,
		cfg.Lending.ExtensionDays,
	)
	reviewService := services.NewReviewService(reviewRepo, bookRepo, loanRepo, notifyService)
	penaltyService := services.NewPenaltyService(loanRepo, penaltyRepo, notifyService, cfg.Lending.PenaltyRate)
	reportService := services.NewReportService(db, userRepo)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler()
	authHandler := handlers.NewAuthHandler(authService, cfg)
	userHandler := handlers.NewUserHandler(userService)
	bookHandler := handlers.NewBookHandler(bookService)
	loanHandler := handlers.NewLoanHandler(loanService)
	reviewHandler := handlers.NewReviewHandler(reviewService)
	penaltyHandler := handlers.NewPenaltyHandler(penaltyService)
	notificationHandler := handlers.NewNotificationHandler(notifyService)
	reportHandler := handlers.NewReportHandler(reportService)

	// Health check & root routes
	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.HealthCheck)

	// Swagger documentation
	app.Get("/swagger/*", swagger.HandlerDefault)

	// API v1 group
	apiV1 := app.Group("/api/v1")
	apiV1.Get("/", healthHandler.APIInfo)

	// Auth routes (public)
	authRoutes := apiV1.Group("/auth")
	setupAuthRoutes(authRoutes, authHandler, cfg)

	// Catalog routes (public reads, staff writes)
	bookRoutes := apiV1.Group("/books")
	setupBookRoutes(bookRoutes, bookHandler, reviewHandler, cfg)

	// Loan routes (authenticated)
	loanRoutes := apiV1.Group("/loans")
	loanRoutes.Use(middleware.AuthMiddleware(cfg))
	setupLoanRoutes(loanRoutes, loanHandler, penaltyHandler)

	// Review routes (authenticated)
	reviewRoutes := apiV1.Group("/reviews")
	reviewRoutes.Use(middleware.AuthMiddleware(cfg))
	setupReviewRoutes(reviewRoutes, reviewHandler)

	// Notification routes (authenticated)
	notificationRoutes := apiV1.Group("/notifications")
	notificationRoutes.Use(middleware.AuthMiddleware(cfg))
	setupNotificationRoutes(notificationRoutes, notificationHandler)

	// Penalty routes (authenticated)
	penaltyRoutes := apiV1.Group("/penalties")
	penaltyRoutes.Use(middleware.AuthMiddleware(cfg))
	penaltyRoutes.Get("/my", penaltyHandler.MyPenalties)

	// User management routes (Admin only)
	userRoutes := apiV1.Group("/users")
	userRoutes.Use(middleware.AuthMiddleware(cfg))
	userRoutes.Use(middleware.AdminOnly())
	setupUserRoutes(userRoutes, userHandler)

	// Profile routes (authenticated users)
	profileRoutes := apiV1.Group("/profile")
	profileRoutes.Use(middleware.AuthMiddleware(cfg))
	profileRoutes.Use(middleware.NoCacheHeaders())
	setupProfileRoutes(profileRoutes, userHandler)

	// Report routes (Librarian/Admin)
	reportRoutes := apiV1.Group("/reports")
	reportRoutes.Use(middleware.AuthMiddleware(cfg))
	reportRoutes.Use(middleware.LibrarianOrAdmin())
	reportRoutes.Get("/dashboard", reportHandler.GetDashboard)
}

// setupAuthRoutes configures authentication routes
func setupAuthRoutes(router fiber.Router, handler *handlers.AuthHandler, cfg *config.Config) {
	// Public routes, rate limited against brute force
	router.Post("/register", middleware.AuthRateLimiter(), handler.Register)
	router.Post("/login", middleware.AuthRateLimiter(), handler.Login)
	router.Post("/refresh", middleware.AuthRateLimiter(), handler.RefreshToken)
	router.Post("/logout", handler.Logout)

	// Protected routes
	router.Get("/me", middleware.AuthMiddleware(cfg), handler.Me)
	router.Post("/logout-all", middleware.AuthMiddleware(cfg), handler.LogoutAll)
}

// setupBookRoutes configures catalog routes
func setupBookRoutes(router fiber.Router, handler *handlers.BookHandler, reviewHandler *handlers.ReviewHandler, cfg *config.Config) {
	// Public reads
	router.Get("/", middleware.CatalogCache(), handler.ListBooks)
	router.Get("/:id", middleware.CatalogCache(), handler.GetBook)
	router.Get("/:id/availability", handler.GetAvailability)
	router.Get("/:id/reviews", reviewHandler.ListBookReviews)

	// Staff writes
	router.Post("/", middleware.AuthMiddleware(cfg), middleware.LibrarianOrAdmin(), handler.CreateBook)
	router.Put("/:id", middleware.AuthMiddleware(cfg), middleware.LibrarianOrAdmin(), handler.UpdateBook)
	router.Delete("/:id", middleware.AuthMiddleware(cfg), middleware.LibrarianOrAdmin(), handler.DeleteBook)
}

// setupLoanRoutes configures loan lifecycle routes
func setupLoanRoutes(router fiber.Router, handler *handlers.LoanHandler, penaltyHandler *handlers.PenaltyHandler) {
	// Borrower routes
	router.Post("/", handler.CreateLoan)
	router.Get("/", handler.ListLoans)
	router.Get("/eligibility/:book_id", handler.CheckEligibility)
	router.Get("/:id", handler.GetLoan)
	router.Post("/:id/cancel", handler.CancelLoan)
	router.Post("/:id/return", handler.ReturnLoan)

	// Staff routes
	router.Post("/:id/validate", middleware.LibrarianOrAdmin(), handler.ValidateLoan)
	router.Post("/:id/refuse", middleware.LibrarianOrAdmin(), handler.RefuseLoan)
	router.Post("/:id/renew", middleware.LibrarianOrAdmin(), handler.RenewLoan)
	router.Get("/:id/penalty", middleware.LibrarianOrAdmin(), penaltyHandler.GetQuote)
	router.Post("/:id/penalty", middleware.LibrarianOrAdmin(), penaltyHandler.ApplyPenalty)
	router.Get("/:id/penalties", middleware.LibrarianOrAdmin(), penaltyHandler.ListByLoan)
}

// setupReviewRoutes configures review routes
func setupReviewRoutes(router fiber.Router, handler *handlers.ReviewHandler) {
	router.Post("/", handler.CreateReview)
	router.Delete("/:id", handler.DeleteReview)
}

// setupNotificationRoutes configures notification routes
func setupNotificationRoutes(router fiber.Router, handler *handlers.NotificationHandler) {
	router.Get("/", handler.ListNotifications)
	router.Post("/read-all", handler.MarkAllRead)
	router.Post("/:id/read", handler.MarkRead)
}

// setupUserRoutes configures user management routes (Admin only)
func setupUserRoutes(router fiber.Router, handler *handlers.UserHandler) {
	router.Get("/", handler.ListUsers)
	router.Get("/:id", handler.GetUser)
	router.Put("/:id/active", handler.SetUserActive)
	router.Put("/:id/role", handler.SetUserRole)
}

// setupProfileRoutes configures profile routes (authenticated)
func setupProfileRoutes(router fiber.Router, handler *handlers.UserHandler) {
	router.Get("/", handler.GetProfile)
	router.Put("/", handler.UpdateProfile)
	router.Put("/password", handler.ChangePassword)
}

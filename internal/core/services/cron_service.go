package services

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"openshelf/internal/adapters/persistence/models"
	"openshelf/internal/adapters/persistence/repositories"
)

// CronService runs the periodic maintenance jobs: the overdue sweep, due-soon
// reminders and refresh token cleanup. Every job is idempotent so overlapping
// or repeated runs are harmless.
type CronService struct {
	cron          *cron.Cron
	loanService   *LoanService
	loanRepo      *repositories.LoanRepository
	tokenRepo     repositories.RefreshTokenRepository
	notifyService *NotificationService
}

// NewCronService creates a new cron service
func NewCronService(
	loanService *LoanService,
	loanRepo *repositories.LoanRepository,
	tokenRepo repositories.RefreshTokenRepository,
	notifyService *NotificationService,
) *CronService {
	return &CronService{
		cron:          cron.New(),
		loanService:   loanService,
		loanRepo:      loanRepo,
		tokenRepo:     tokenRepo,
		notifyService: notifyService,
	}
}

// Start schedules all maintenance jobs and starts the scheduler
func (s *CronService) Start() {
	// Overdue sweep + due-soon reminders every morning at 08:30
	s.cron.AddFunc("30 8 * * *", s.RunDailySweep)

	// Expired refresh token cleanup nightly at 03:00
	s.cron.AddFunc("0 3 * * *", s.RunTokenCleanup)

	s.cron.Start()
	log.Println("✅ Cron service started (overdue sweep 08:30, token cleanup 03:00)")
}

// Stop stops the scheduler, waiting for running jobs
func (s *CronService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("🛑 Cron service stopped")
}

// RunDailySweep relabels overdue loans and sends due-soon reminders.
// Exposed so an admin endpoint can trigger it on demand.
func (s *CronService) RunDailySweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	count, err := s.loanService.MarkOverdue(ctx)
	if err != nil {
		log.Printf("⚠️ Overdue sweep failed: %v", err)
	} else if count > 0 {
		log.Printf("✅ Overdue sweep: %d loan(s) marked overdue", count)
	}

	s.sendDueSoonReminders(ctx)
}

// RunTokenCleanup removes expired refresh tokens
func (s *CronService) RunTokenCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	count, err := s.tokenRepo.DeleteExpired(ctx)
	if err != nil {
		log.Printf("⚠️ Token cleanup failed: %v", err)
	} else if count > 0 {
		log.Printf("✅ Token cleanup: %d expired token(s) removed", count)
	}
}

// sendDueSoonReminders notifies borrowers whose loans fall due within two days
func (s *CronService) sendDueSoonReminders(ctx context.Context) {
	now := time.Now()
	loans, err := s.loanRepo.ListDueSoon(ctx, now, now.AddDate(0, 0, 2))
	if err != nil {
		log.Printf("⚠️ Due-soon reminder query failed: %v", err)
		return
	}

	intents := make([]*models.Notification, 0, len(loans))
	for _, loan := range loans {
		title := "your loan"
		if loan.Book != nil {
			title = "\"" + loan.Book.Title + "\""
		}
		intents = append(intents, &models.Notification{
			UserID:            loan.UserID,
			Type:              models.NotifLoanDueSoon,
			Title:             "Loan due soon",
			Message:           "Reminder: " + title + " is due on " + loan.DueDate.Format("2006-01-02"),
			RelatedEntityType: "loan",
			RelatedEntityID:   loan.ID,
		})
	}
	s.notifyService.Dispatch(ctx, intents)
}

package services

import (
	"context"
	"errors"
	"log"

	"gorm.io/gorm"

	"openshelf/internal/adapters/persistence/models"
	"openshelf/internal/adapters/persistence/repositories"
	"openshelf/internal/core/domain"
)

// Notification errors
var (
	ErrNotificationNotFound = errors.New("notification not found")
)

// NotificationService persists and delivers notifications. Delivery is best
// effort: a failure here is logged and swallowed, never surfaced to the
// lifecycle operation that triggered it.
type NotificationService struct {
	repo     *repositories.NotificationRepository
	userRepo repositories.UserRepository
}

// NewNotificationService creates a new notification service
func NewNotificationService(repo *repositories.NotificationRepository, userRepo repositories.UserRepository) *NotificationService {
	return &NotificationService{repo: repo, userRepo: userRepo}
}

// Dispatch stores a batch of notification intents collected during a
// committed transaction. Each failure is logged individually.
func (s *NotificationService) Dispatch(ctx context.Context, intents []*models.Notification) {
	for _, n := range intents {
		if err := s.repo.Create(ctx, n); err != nil {
			log.Printf("⚠️ Failed to deliver notification (user=%d type=%s): %v", n.UserID, n.Type, err)
		}
	}
}

// NotifyStaff fans a notification out to every librarian and admin
func (s *NotificationService) NotifyStaff(ctx context.Context, notifType, title, message, entityType string, entityID uint) {
	ids, err := s.userRepo.ListIDsByRoles(ctx, string(domain.RoleLibrarian), string(domain.RoleAdmin))
	if err != nil {
		log.Printf("⚠️ Failed to resolve staff recipients: %v", err)
		return
	}

	intents := make([]*models.Notification, 0, len(ids))
	for _, id := range ids {
		intents = append(intents, &models.Notification{
			UserID:            id,
			Type:              notifType,
			Title:             title,
			Message:           message,
			RelatedEntityType: entityType,
			RelatedEntityID:   entityID,
		})
	}
	s.Dispatch(ctx, intents)
}

// ListOutput represents a page of notifications
type NotificationListOutput struct {
	Notifications []*models.Notification `json:"notifications"`
	Total         int64                  `json:"total"`
	UnreadCount   int64                  `json:"unread_count"`
	Page          int                    `json:"page"`
	Limit         int                    `json:"limit"`
}

// ListForUser lists a user's notifications with the unread counter
func (s *NotificationService) ListForUser(ctx context.Context, userID uint, page, limit int) (*NotificationListOutput, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	notifications, total, err := s.repo.ListByUser(ctx, userID, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}

	unread, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &NotificationListOutput{
		Notifications: notifications,
		Total:         total,
		UnreadCount:   unread,
		Page:          page,
		Limit:         limit,
	}, nil
}

// MarkRead marks one of the user's notifications read
func (s *NotificationService) MarkRead(ctx context.Context, id, userID uint) error {
	err := s.repo.MarkRead(ctx, id, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotificationNotFound
	}
	return err
}

// MarkAllRead marks all of the user's notifications read
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) error {
	return s.repo.MarkAllRead(ctx, userID)
}

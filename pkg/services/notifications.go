package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atrium-crm/atrium-engine/pkg/models"
	"github.com/atrium-crm/atrium-engine/pkg/repositories"
)

// NotificationService records tenant notifications and forwards them over
// email on a best-effort basis.
type NotificationService interface {
	Notify(ctx context.Context, notification *models.Notification, emailTo string) error
	List(ctx context.Context, tenantID uuid.UUID, unreadOnly bool) ([]*models.Notification, error)
	MarkRead(ctx context.Context, tenantID, notificationID uuid.UUID) error
}

type notificationService struct {
	notifications repositories.NotificationRepository
	mailer        Mailer
	logger        *zap.Logger
}

// NewNotificationService creates the service. mailer may be a log-only
// implementation; it must not be nil.
func NewNotificationService(notifications repositories.NotificationRepository, mailer Mailer, logger *zap.Logger) NotificationService {
	return &notificationService{
		notifications: notifications,
		mailer:        mailer,
		logger:        logger.Named("notifications"),
	}
}

var _ NotificationService = (*notificationService)(nil)

// Notify persists the notification and, when emailTo is set, forwards it
// over email. Delivery failure is logged, never returned: the stored row
// is the source of truth.
func (s *notificationService) Notify(ctx context.Context, notification *models.Notification, emailTo string) error {
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	if notification.Kind == "" {
		notification.Kind = models.NotificationSystem
	}
	notification.CreatedAt = time.Now()

	if err := s.notifications.Create(ctx, notification); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	if emailTo != "" {
		if err := s.mailer.Send(ctx, emailTo, notification.Subject, notification.Body); err != nil {
			s.logger.Warn("email delivery failed",
				zap.String("tenant_id", notification.TenantID.String()),
				zap.String("notification_id", notification.ID.String()),
				zap.Error(err))
		}
	}
	return nil
}

func (s *notificationService) List(ctx context.Context, tenantID uuid.UUID, unreadOnly bool) ([]*models.Notification, error) {
	notifications, err := s.notifications.List(ctx, tenantID, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

func (s *notificationService) MarkRead(ctx context.Context, tenantID, notificationID uuid.UUID) error {
	if err := s.notifications.MarkRead(ctx, tenantID, notificationID, time.Now()); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

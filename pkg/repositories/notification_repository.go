package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atrium-crm/atrium-engine/pkg/apperrors"
	"github.com/atrium-crm/atrium-engine/pkg/database"
	"github.com/atrium-crm/atrium-engine/pkg/models"
)

// NotificationRepository defines the interface for notification data access.
type NotificationRepository interface {
	// Create inserts a new notification.
	Create(ctx context.Context, notification *models.Notification) error

	// List returns notifications for a tenant, newest first. With unreadOnly
	// set, read notifications are filtered out.
	List(ctx context.Context, tenantID uuid.UUID, unreadOnly bool) ([]*models.Notification, error)

	// MarkRead stamps a notification as read.
	MarkRead(ctx context.Context, tenantID, notificationID uuid.UUID, readAt time.Time) error
}

// notificationRepository implements NotificationRepository using PostgreSQL.
type notificationRepository struct{}

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository() NotificationRepository {
	return &notificationRepository{}
}

// Create inserts a new notification.
func (r *notificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `
		INSERT INTO notifications (id, tenant_id, kind, subject, body, read_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := scope.Conn.Exec(ctx, query,
		notification.ID,
		notification.TenantID,
		notification.Kind,
		notification.Subject,
		nullable(notification.Body),
		notification.ReadAt,
		notification.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

// List returns notifications for a tenant, newest first.
func (r *notificationRepository) List(ctx context.Context, tenantID uuid.UUID, unreadOnly bool) ([]*models.Notification, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no tenant scope in context")
	}

	query := `
		SELECT id, tenant_id, kind, subject, body, read_at, created_at
		FROM notifications
		WHERE tenant_id = $1`
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := scope.Conn.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		notification, err := r.scanNotificationRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, notification)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}

	return notifications, nil
}

// MarkRead stamps a notification as read.
func (r *notificationRepository) MarkRead(ctx context.Context, tenantID, notificationID uuid.UUID, readAt time.Time) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return fmt.Errorf("no tenant scope in context")
	}

	query := `
		UPDATE notifications
		SET read_at = $3
		WHERE tenant_id = $1 AND id = $2 AND read_at IS NULL`

	result, err := scope.Conn.Exec(ctx, query, tenantID, notificationID, readAt)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// scanNotificationRow scans a single row into a Notification.
func (r *notificationRepository) scanNotificationRow(row pgx.Row) (*models.Notification, error) {
	var notification models.Notification
	var body *string

	err := row.Scan(
		&notification.ID,
		&notification.TenantID,
		&notification.Kind,
		&notification.Subject,
		&body,
		&notification.ReadAt,
		&notification.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	notification.Body = deref(body)

	return &notification, nil
}

// Ensure notificationRepository implements NotificationRepository at compile time.
var _ NotificationRepository = (*notificationRepository)(nil)

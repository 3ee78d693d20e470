// internal/repository/notification_repo.go
package repository

import (
	"context"

	"wallet-engine/internal/domain"
)

// NotificationRepository defines the interface for notification records.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, q DBExecutor, n *domain.Notification) error
	// UpdateNotificationStatus persists Status, Attempts, LastError and SentAt.
	UpdateNotificationStatus(ctx context.Context, q DBExecutor, n *domain.Notification) error
}

// internal/repository/postgres/notification_pg.go
package postgres

import (
	"context"
	"fmt"

	"wallet-engine/internal/domain"
	"wallet-engine/internal/repository"

	"github.com/jmoiron/sqlx"
)

// NotificationRepository implements repository.NotificationRepository for PostgreSQL.
type NotificationRepository struct{}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db *sqlx.DB) repository.NotificationRepository {
	return &NotificationRepository{}
}

// CreateNotification inserts a PENDING notification record.
func (r *NotificationRepository) CreateNotification(ctx context.Context, q repository.DBExecutor, n *domain.Notification) error {
	query := `INSERT INTO notifications (recipient_id, transaction_id, channel, target, title, message, status, attempts, created_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	err := q.QueryRowContext(ctx, query,
		n.RecipientID, n.TransactionID, n.Channel, n.Target, n.Title, n.Message, n.Status, n.Attempts, n.CreatedAt,
	).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", mapError(err))
	}
	return nil
}

// UpdateNotificationStatus records the outcome of a delivery attempt.
func (r *NotificationRepository) UpdateNotificationStatus(ctx context.Context, q repository.DBExecutor, n *domain.Notification) error {
	query := `UPDATE notifications SET status = $1, attempts = $2, last_error = $3, sent_at = $4 WHERE id = $5`
	if _, err := q.ExecContext(ctx, query, n.Status, n.Attempts, n.LastError, n.SentAt, n.ID); err != nil {
		return fmt.Errorf("failed to update notification %d: %w", n.ID, mapError(err))
	}
	return nil
}

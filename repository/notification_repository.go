package repository

import (
	"context"
	"fmt"

	"betmates/database"
	"betmates/models"
	"betmates/service"
)

// NotificationRepository implements notification persistence
type NotificationRepository struct {
	q queryable
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *database.DB) *NotificationRepository {
	return &NotificationRepository{q: db.Pool}
}

// newNotificationRepositoryWithTx creates a new notification repository with a transaction
func newNotificationRepositoryWithTx(tx queryable) *NotificationRepository {
	return &NotificationRepository{q: tx}
}

// Create persists a new notification
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	query := `
		INSERT INTO notifications (user_id, type, bet_id, title, body)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, read, created_at
	`

	err := r.q.QueryRow(ctx, query,
		notification.UserID,
		notification.Type,
		notification.BetID,
		notification.Title,
		notification.Body,
	).Scan(&notification.ID, &notification.Read, &notification.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create notification for user %d: %w", notification.UserID, err)
	}

	return nil
}

// GetByUser returns a user's notifications, newest first
func (r *NotificationRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, user_id, type, bet_id, title, body, read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications for user %d: %w", userID, err)
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		var n models.Notification
		err := rows.Scan(
			&n.ID,
			&n.UserID,
			&n.Type,
			&n.BetID,
			&n.Title,
			&n.Body,
			&n.Read,
			&n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, &n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}

	return notifications, nil
}

// MarkRead flags a notification as read
func (r *NotificationRepository) MarkRead(ctx context.Context, notificationID int64) error {
	query := `UPDATE notifications SET read = TRUE WHERE id = $1`

	tag, err := r.q.Exec(ctx, query, notificationID)
	if err != nil {
		return fmt.Errorf("failed to mark notification %d read: %w", notificationID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: notification %d", service.ErrNotFound, notificationID)
	}

	return nil
}

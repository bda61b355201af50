package models

import (
	"time"
)

// NotificationType identifies the kind of notification delivered to a user
type NotificationType string

const (
	NotificationBetCreated             NotificationType = "bet_created"
	NotificationBetConfirmationRequest NotificationType = "bet_confirmation_request"
	NotificationBetConfirmed           NotificationType = "bet_confirmed"
	NotificationBetDeclined            NotificationType = "bet_declined"
	NotificationDoubleProposed         NotificationType = "double_proposed"
	NotificationDoubleApproved         NotificationType = "double_approved"
	NotificationDoubleDeclined         NotificationType = "double_declined"
	NotificationBetResolveReminder     NotificationType = "bet_resolve_reminder"
	NotificationBetResolved            NotificationType = "bet_resolved"
)

// Notification represents a message queued for delivery to a single user
type Notification struct {
	ID        int64            `db:"id"`
	UserID    int64            `db:"user_id"`
	Type      NotificationType `db:"type"`
	BetID     *int64           `db:"bet_id"`
	Title     string           `db:"title"`
	Body      string           `db:"body"`
	Read      bool             `db:"read"`
	CreatedAt time.Time        `db:"created_at"`
}

package service

import (
	"context"
	"fmt"

	"betmates/models"
)

type notificationService struct {
	uowFactory UnitOfWorkFactory
}

// NewNotificationService creates a new notification inbox service
func NewNotificationService(uowFactory UnitOfWorkFactory) NotificationService {
	return &notificationService{
		uowFactory: uowFactory,
	}
}

func (s *notificationService) GetUserNotifications(ctx context.Context, userID int64, limit int) ([]*models.Notification, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	notifications, err := uow.NotificationRepository().GetByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return notifications, nil
}

func (s *notificationService) MarkRead(ctx context.Context, notificationID int64) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.NotificationRepository().MarkRead(ctx, notificationID); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

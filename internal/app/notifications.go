package app

import (
	"context"
	"errors"
	"fmt"

	"teamdesk/api/internal/store"
)

const notificationListLimit = 100

func (s *Service) ListNotifications(ctx context.Context, userID store.Ref) ([]store.Notification, error) {
	if userID.IsZero() {
		return nil, invalid("for_user is required")
	}
	return s.store.ListNotifications(ctx, userID, notificationListLimit)
}

func (s *Service) UnreadCount(ctx context.Context, userID store.Ref) (int64, error) {
	if userID.IsZero() {
		return 0, invalid("for_user is required")
	}
	return s.store.CountUnread(ctx, userID)
}

// MarkAllRead marks the user's notifications read and pushes the new unread
// count to the user's room.
func (s *Service) MarkAllRead(ctx context.Context, userID store.Ref) (int64, error) {
	if userID.IsZero() {
		return 0, invalid("for_user is required")
	}
	updated, err := s.store.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	if err := s.notifier.PushUnreadCount(ctx, userID); err != nil {
		s.log.Warn().Str("user_id", userID.Hex()).Err(err).Msg("unread count push failed")
	}
	return updated, nil
}

func (s *Service) MarkRead(ctx context.Context, id store.Ref) error {
	n, err := s.store.GetNotification(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Notification")
	}
	if err != nil {
		return err
	}
	if err := s.store.MarkRead(ctx, id); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if err := s.notifier.PushUnreadCount(ctx, n.ForUser); err != nil {
		s.log.Warn().Str("user_id", n.ForUser.Hex()).Err(err).Msg("unread count push failed")
	}
	return nil
}

func (s *Service) DeleteNotification(ctx context.Context, id store.Ref) error {
	err := s.store.DeleteNotification(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Notification")
	}
	return err
}

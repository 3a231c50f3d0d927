package store

import (
	"context"
	"strconv"
	"time"

	"food-order-service/internal/apperr"
	"food-order-service/internal/models"
)

const notificationColumns = `id, type, priority, audience, title, message, is_read, user_id, order_id,
	chat_id, review_id, metadata, expires_at, created_at`

// recipientClause scopes a query to one recipient, starting at placeholder $n.
func recipientClause(r models.Recipient, n int) (string, []any) {
	if r.Audience == models.AudienceAdmin {
		return "audience = 'admin'", nil
	}
	return "audience = 'user' AND user_id = $" + strconv.Itoa(n), []any{r.UserID}
}

// CreateNotification inserts the durable notification record.
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (id, type, priority, audience, title, message, is_read, user_id,
			order_id, chat_id, review_id, metadata, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at`

	row := s.db.QueryRowxContext(ctx, query,
		n.ID, n.Type, n.Priority, n.Audience, n.Title, n.Message, n.IsRead, n.UserID,
		n.OrderID, n.ChatID, n.ReviewID, n.Metadata, n.ExpiresAt)
	if err := row.Scan(&n.CreatedAt); err != nil {
		return apperr.Internal(err, "notification.create", "failed to save notification")
	}
	return nil
}

// ListNotifications returns unexpired notifications for a recipient, newest first.
func (s *Store) ListNotifications(ctx context.Context, r models.Recipient, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	where, args := recipientClause(r, 1)
	if unreadOnly {
		where += " AND is_read = FALSE"
	}
	args = append(args, limit, offset)
	query := "SELECT " + notificationColumns + " FROM notifications WHERE " + where +
		" AND expires_at > NOW() ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))

	notifications := []models.Notification{}
	if err := s.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, apperr.Internal(err, "notification.list", "failed to list notifications")
	}
	return notifications, nil
}

// MarkNotificationRead flips the read flag on one of the recipient's notifications.
func (s *Store) MarkNotificationRead(ctx context.Context, r models.Recipient, id string) error {
	where, args := recipientClause(r, 2)
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = TRUE WHERE id = $1 AND "+where, append([]any{id}, args...)...)
	if err != nil {
		return apperr.Internal(err, "notification.mark_read", "failed to update notification")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Internal(err, "notification.mark_read", "failed to update notification")
	}
	if n == 0 {
		return apperr.NotFound("notification.mark_read", "notification", id)
	}
	return nil
}

// MarkAllNotificationsRead marks every unread notification of the recipient read.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, r models.Recipient) (int64, error) {
	where, args := recipientClause(r, 1)
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET is_read = TRUE WHERE is_read = FALSE AND "+where, args...)
	if err != nil {
		return 0, apperr.Internal(err, "notification.mark_all_read", "failed to update notifications")
	}
	return res.RowsAffected()
}

func (s *Store) CountUnreadNotifications(ctx context.Context, r models.Recipient) (int, error) {
	where, args := recipientClause(r, 1)
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM notifications WHERE is_read = FALSE AND expires_at > NOW() AND "+where, args...)
	if err != nil {
		return 0, apperr.Internal(err, "notification.unread_count", "failed to count notifications")
	}
	return count, nil
}

// DeleteExpiredNotifications purges notifications whose expiry is before now.
func (s *Store) DeleteExpiredNotifications(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM notifications WHERE expires_at <= $1", now)
	if err != nil {
		return 0, apperr.Internal(err, "notification.purge", "failed to purge notifications")
	}
	return res.RowsAffected()
}

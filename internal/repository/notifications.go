package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sudior04/iot-backend/internal/db"
)

const notificationColumns = `
	id, device_id, reading_id, category, message, severity, is_read, created_at
`

func scanNotification(row pgx.Row) (*db.Notification, error) {
	var n db.Notification
	err := row.Scan(
		&n.ID,
		&n.DeviceID,
		&n.ReadingID,
		&n.Category,
		&n.Message,
		&n.Severity,
		&n.IsRead,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// InsertNotification persists a policy-approved notification and returns
// it with the assigned id.
func (r *Repository) InsertNotification(ctx context.Context, n *db.Notification) (*db.Notification, error) {
	query := `
		INSERT INTO notifications (device_id, reading_id, category, message, severity)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + notificationColumns

	stored, err := scanNotification(r.pool.QueryRow(ctx, query,
		n.DeviceID, n.ReadingID, n.Category, n.Message, n.Severity))
	if err != nil {
		return nil, fmt.Errorf("failed to insert notification: %w", err)
	}
	return stored, nil
}

// CountNotificationsSince counts notifications created for a device at or
// after the given time. The policy engine calls this with now-60m, so the
// rate cap is a sliding window recomputed per evaluation, not a fixed
// bucket.
func (r *Repository) CountNotificationsSince(ctx context.Context, deviceID uuid.UUID, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM notifications
		WHERE device_id = $1 AND created_at >= $2
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, deviceID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count recent notifications: %w", err)
	}
	return count, nil
}

// NotificationFilter narrows ListNotifications. Nil fields are not applied.
type NotificationFilter struct {
	Severity *string
	Category *string
	IsRead   *bool
	Start    *time.Time
	End      *time.Time
}

// ListNotifications returns up to limit notifications, newest first
func (r *Repository) ListNotifications(ctx context.Context, deviceID uuid.UUID, limit int, filter NotificationFilter) ([]*db.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE device_id = $1`
	args := []interface{}{deviceID}

	if filter.Severity != nil {
		args = append(args, *filter.Severity)
		query += fmt.Sprintf(" AND severity = $%d", len(args))
	}
	if filter.Category != nil {
		args = append(args, *filter.Category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if filter.IsRead != nil {
		args = append(args, *filter.IsRead)
		query += fmt.Sprintf(" AND is_read = $%d", len(args))
	}
	if filter.Start != nil && filter.End != nil {
		args = append(args, *filter.Start)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
		args = append(args, *filter.End)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*db.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return notifications, nil
}

// UnreadCount returns the number of unread notifications for a device
func (r *Repository) UnreadCount(ctx context.Context, deviceID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE device_id = $1 AND is_read = false`

	var count int
	if err := r.pool.QueryRow(ctx, query, deviceID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkNotificationRead marks one notification as read. Returns
// pgx.ErrNoRows when the id is unknown.
func (r *Repository) MarkNotificationRead(ctx context.Context, id uuid.UUID) (*db.Notification, error) {
	query := `
		UPDATE notifications
		SET is_read = true
		WHERE id = $1
		RETURNING ` + notificationColumns

	return scanNotification(r.pool.QueryRow(ctx, query, id))
}

// MarkAllNotificationsRead marks every unread notification of a device as
// read and returns how many changed.
func (r *Repository) MarkAllNotificationsRead(ctx context.Context, deviceID uuid.UUID) (int64, error) {
	query := `UPDATE notifications SET is_read = true WHERE device_id = $1 AND is_read = false`

	tag, err := r.pool.Exec(ctx, query, deviceID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteNotification removes one notification
func (r *Repository) DeleteNotification(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeleteOldNotifications removes notifications older than the cutoff and
// returns how many were deleted. Retention is an administrative call, not
// part of the ingestion path.
func (r *Repository) DeleteOldNotifications(ctx context.Context, deviceID uuid.UUID, olderThan time.Time) (int64, error) {
	query := `DELETE FROM notifications WHERE device_id = $1 AND created_at < $2`

	tag, err := r.pool.Exec(ctx, query, deviceID, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CategoryStat is the notification count for one category
type CategoryStat struct {
	Category    string
	Count       int64
	UnreadCount int64
}

// NotificationStats returns per-category counts since the given time,
// most frequent first.
func (r *Repository) NotificationStats(ctx context.Context, deviceID uuid.UUID, since time.Time) ([]*CategoryStat, error) {
	query := `
		SELECT category,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE is_read = false)
		FROM notifications
		WHERE device_id = $1 AND created_at >= $2
		GROUP BY category
		ORDER BY COUNT(*) DESC
	`

	rows, err := r.pool.Query(ctx, query, deviceID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification stats: %w", err)
	}
	defer rows.Close()

	var stats []*CategoryStat
	for rows.Next() {
		var s CategoryStat
		if err := rows.Scan(&s.Category, &s.Count, &s.UnreadCount); err != nil {
			return nil, fmt.Errorf("failed to scan category stat: %w", err)
		}
		stats = append(stats, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return stats, nil
}

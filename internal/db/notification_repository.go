package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/evalboard/internal/models"
	"github.com/wuwenbin0122/evalboard/internal/realtime"
	"github.com/wuwenbin0122/evalboard/internal/store"
)

const notificationColumns = `id, project_id, type, message, read, created_at, read_at`

type NotificationRepository struct {
	pool    *pgxpool.Pool
	changes changePublisher
}

var _ store.NotificationRemote = (*NotificationRepository)(nil)

func NewNotificationRepository(pool *pgxpool.Pool, publisher realtime.Publisher, logger *zap.SugaredLogger) *NotificationRepository {
	return &NotificationRepository{pool: pool, changes: newChangePublisher(publisher, logger)}
}

func scanNotification(row pgx.Row) (models.Notification, error) {
	var n models.Notification
	if err := row.Scan(&n.ID, &n.ProjectID, &n.Type, &n.Message, &n.Read, &n.CreatedAt, &n.ReadAt); err != nil {
		return models.Notification{}, err
	}
	return n, nil
}

func (r *NotificationRepository) ListNotifications(ctx context.Context, projectID string) ([]models.Notification, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE project_id = $1 ORDER BY created_at DESC, id`, projectID)
	if err != nil {
		return nil, translate("list notifications", err)
	}
	defer rows.Close()

	notifications := make([]models.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, translate("list notifications", err)
	}
	return notifications, nil
}

// CreateNotification records a new unread notification for a project.
func (r *NotificationRepository) CreateNotification(ctx context.Context, projectID, kind, message string) (models.Notification, error) {
	if strings.TrimSpace(projectID) == "" || strings.TrimSpace(message) == "" {
		return models.Notification{}, fmt.Errorf("create notification: %w", models.ErrInvalidRecord)
	}

	const stmt = `INSERT INTO notifications (id, project_id, type, message, read, created_at)
VALUES ($1, $2, $3, $4, FALSE, $5)
RETURNING ` + notificationColumns

	created, err := scanNotification(r.pool.QueryRow(ctx, stmt, uuid.NewString(), projectID, kind, message, time.Now().UTC()))
	if err != nil {
		return models.Notification{}, translate("create notification", err)
	}

	r.changes.publish(ctx, realtime.KindNotification, realtime.OpInsert, created.ProjectID, created.ID, created)
	return created, nil
}

func (r *NotificationRepository) MarkNotificationRead(ctx context.Context, id string) (models.Notification, error) {
	const stmt = `UPDATE notifications SET read = TRUE, read_at = COALESCE(read_at, NOW()) WHERE id = $1 RETURNING ` + notificationColumns

	updated, err := scanNotification(r.pool.QueryRow(ctx, stmt, id))
	if err != nil {
		return models.Notification{}, translate("mark notification read", err)
	}

	r.changes.publish(ctx, realtime.KindNotification, realtime.OpUpdate, updated.ProjectID, updated.ID, updated)
	return updated, nil
}

func (r *NotificationRepository) MarkAllNotificationsRead(ctx context.Context, projectID string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET read = TRUE, read_at = NOW() WHERE project_id = $1 AND NOT read`, projectID)
	if err != nil {
		return translate("mark all notifications read", err)
	}

	if tag.RowsAffected() > 0 {
		r.changes.publish(ctx, realtime.KindNotification, realtime.OpUpdate, projectID, "", nil)
	}
	return nil
}

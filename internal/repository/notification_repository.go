package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/ksuid"

	"anysnap/internal/models"
)

type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

func (r *NotificationRepository) Create(ctx context.Context, n models.Notification) (models.Notification, error) {
	if n.ID == "" {
		n.ID = ksuid.New().String()
	}

	const query = `
		INSERT INTO notifications (id, image_id, user_id, payload, is_sent, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`
	_, err := r.pool.Exec(ctx, query, n.ID, n.ImageID, n.UserID, n.Payload, n.IsSent)
	return n, err
}

func (r *NotificationRepository) MarkSent(ctx context.Context, id string) error {
	const query = `UPDATE notifications SET is_sent = TRUE WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

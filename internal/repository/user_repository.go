package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"anysnap/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	const query = `
		SELECT id, notification_player_id, created_at, updated_at
		FROM users WHERE id = $1
	`

	row := r.pool.QueryRow(ctx, query, id)
	var user models.User
	if err := row.Scan(&user.ID, &user.NotificationPlayerID, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

// Ensure creates the user row if it does not exist yet and returns it.
func (r *UserRepository) Ensure(ctx context.Context, id string) (models.User, error) {
	const query = `
		INSERT INTO users (id, created_at, updated_at)
		VALUES ($1, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return models.User{}, err
	}
	return r.GetByID(ctx, id)
}

func (r *UserRepository) SetNotificationPlayerID(ctx context.Context, id, playerID string) error {
	const query = `
		UPDATE users SET notification_player_id = $2, updated_at = NOW() WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, playerID)
	return err
}

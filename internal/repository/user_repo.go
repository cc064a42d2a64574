package repository

import (
	"context"
	"errors"
	"fmt"

	"imgforge/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UpdateTier(ctx context.Context, id string, tier model.Tier) (*model.User, error)
}

type userRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepo{pool: pool}
}

const userColumns = `user_id, name, email, avatar_url, tier, is_active, created_at, updated_at`

func (r *userRepo) CreateUser(ctx context.Context, u *model.User) error {
	if u.Tier == "" {
		u.Tier = model.TierFree
	}
	query := `INSERT INTO user_profiles (user_id, name, email, avatar_url, tier)
              VALUES ($1, $2, $3, $4, $5) RETURNING ` + userColumns
	row := r.pool.QueryRow(ctx, query, u.UserID, u.Name, u.Email, u.AvatarURL, string(u.Tier))
	if err := scanUser(row, u); err != nil {
		return fmt.Errorf("creating user %s: %w", u.UserID, err)
	}
	return nil
}

// GetUserByID returns nil without error when the user does not exist.
func (r *userRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	query := `SELECT ` + userColumns + ` FROM user_profiles WHERE user_id=$1`
	if err := scanUser(r.pool.QueryRow(ctx, query, id), &u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch user %s: %w", id, err)
	}
	return &u, nil
}

func (r *userRepo) UpdateTier(ctx context.Context, id string, tier model.Tier) (*model.User, error) {
	var u model.User
	query := `UPDATE user_profiles SET tier=$2, updated_at=NOW() WHERE user_id=$1 RETURNING ` + userColumns
	if err := scanUser(r.pool.QueryRow(ctx, query, id, string(tier)), &u); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update tier for user %s: %w", id, err)
	}
	return &u, nil
}

func scanUser(row pgx.Row, u *model.User) error {
	var tier string
	if err := row.Scan(&u.UserID, &u.Name, &u.Email, &u.AvatarURL, &tier, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return err
	}
	u.Tier = model.Tier(tier)
	return nil
}

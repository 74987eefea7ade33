package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/user"
)

// UserRepository implements user.Repository.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Upsert(ctx context.Context, u *user.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, username, allow_challenges)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET username=EXCLUDED.username, updated_at=NOW()
	`, u.ID, u.Username, u.AllowChallenges)
	return err
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, username, total_challenges, total_fights, wins, losses, draws, allow_challenges, created_at, updated_at
		FROM users WHERE id=$1
	`, id)
	var u user.User
	if err := row.Scan(&u.ID, &u.Username, &u.TotalChallenges, &u.TotalFights, &u.Wins, &u.Losses, &u.Draws,
		&u.AllowChallenges, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) IncrementStats(ctx context.Context, id int64, delta user.StatDelta) error {
	// Single statement so concurrent increments never lose updates.
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, total_challenges, total_fights, wins, losses, draws)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			total_challenges = users.total_challenges + EXCLUDED.total_challenges,
			total_fights = users.total_fights + EXCLUDED.total_fights,
			wins = users.wins + EXCLUDED.wins,
			losses = users.losses + EXCLUDED.losses,
			draws = users.draws + EXCLUDED.draws,
			updated_at = NOW()
	`, id, delta.TotalChallenges, delta.TotalFights, delta.Wins, delta.Losses, delta.Draws)
	return err
}

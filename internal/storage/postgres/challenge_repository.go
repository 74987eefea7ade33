package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/challenge"
	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/fight"
)

// ChallengeRepository implements challenge.Repository.
type ChallengeRepository struct {
	pool *pgxpool.Pool
}

func NewChallengeRepository(pool *pgxpool.Pool) *ChallengeRepository {
	return &ChallengeRepository{pool: pool}
}

func (r *ChallengeRepository) Create(ctx context.Context, c *challenge.Challenge) error {
	var fightType *string
	if c.Type != nil {
		t := string(*c.Type)
		fightType = &t
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO challenges
		(id, challenger_id, opponent_id, channel_id, fight_type, status, expires_at, fight_starts_at, fight_ends_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, c.ID, c.ChallengerID, c.OpponentID, c.ChannelID, fightType, c.Status, c.ExpiresAt, c.FightStartsAt, c.FightEndsAt, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *ChallengeRepository) GetByID(ctx context.Context, id uuid.UUID) (*challenge.Challenge, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, challenger_id, opponent_id, channel_id, fight_type, status, expires_at, fight_starts_at, fight_ends_at, created_at, updated_at
		FROM challenges WHERE id=$1
	`, id)
	return scanChallenge(row)
}

func (r *ChallengeRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status challenge.Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE challenges SET status=$1, updated_at=NOW() WHERE id=$2
	`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return challenge.ErrNotFound
	}
	return nil
}

func (r *ChallengeRepository) SetType(ctx context.Context, id uuid.UUID, t fight.Type) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE challenges SET fight_type=$1, updated_at=NOW() WHERE id=$2
	`, string(t), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return challenge.ErrNotFound
	}
	return nil
}

func (r *ChallengeRepository) SetFightWindow(ctx context.Context, id uuid.UUID, startsAt, endsAt *time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE challenges
		SET fight_starts_at=COALESCE($1, fight_starts_at),
		    fight_ends_at=COALESCE($2, fight_ends_at),
		    updated_at=NOW()
		WHERE id=$3
	`, startsAt, endsAt, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return challenge.ErrNotFound
	}
	return nil
}

func (r *ChallengeRepository) ListPending(ctx context.Context, opponentID int64, now time.Time) ([]*challenge.Challenge, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, challenger_id, opponent_id, channel_id, fight_type, status, expires_at, fight_starts_at, fight_ends_at, created_at, updated_at
		FROM challenges
		WHERE opponent_id=$1 AND status='pending' AND expires_at > $2
		ORDER BY created_at
	`, opponentID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []*challenge.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		pending = append(pending, c)
	}
	return pending, rows.Err()
}

func (r *ChallengeRepository) ExpireOlderThan(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE challenges SET status='expired', updated_at=NOW()
		WHERE status='pending' AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanChallenge(row pgx.Row) (*challenge.Challenge, error) {
	var c challenge.Challenge
	var fightType *string
	if err := row.Scan(&c.ID, &c.ChallengerID, &c.OpponentID, &c.ChannelID, &fightType, &c.Status,
		&c.ExpiresAt, &c.FightStartsAt, &c.FightEndsAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, challenge.ErrNotFound
		}
		return nil, err
	}
	if fightType != nil {
		t := fight.Type(*fightType)
		c.Type = &t
	}
	return &c, nil
}

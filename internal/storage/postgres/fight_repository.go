package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/fight"
)

// FightRepository implements fight.Repository.
type FightRepository struct {
	pool *pgxpool.Pool
}

func NewFightRepository(pool *pgxpool.Pool) *FightRepository {
	return &FightRepository{pool: pool}
}

func (r *FightRepository) Create(ctx context.Context, f *fight.Fight) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO fights
		(id, challenge_id, participant1_id, participant2_id, fight_type, duration_ms,
		 winner_id, participant1_result, participant2_result,
		 p1_presence_seconds, p1_active_seconds, p1_average_amplitude,
		 p2_presence_seconds, p2_active_seconds, p2_average_amplitude,
		 channel_id, started_at, ended_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`, f.ID, f.ChallengeID, f.Participant1, f.Participant2, string(f.Type), f.Duration.Milliseconds(),
		f.WinnerID, string(f.Result1), string(f.Result2),
		f.Metrics1.PresenceSeconds, f.Metrics1.ActiveSeconds, f.Metrics1.AverageAmplitude,
		f.Metrics2.PresenceSeconds, f.Metrics2.ActiveSeconds, f.Metrics2.AverageAmplitude,
		f.ChannelID, f.StartedAt, f.EndedAt, f.CreatedAt)
	return err
}

func (r *FightRepository) GetByID(ctx context.Context, id uuid.UUID) (*fight.Fight, error) {
	row := r.pool.QueryRow(ctx, fightSelect+` WHERE id=$1`, id)
	return scanFight(row)
}

func (r *FightRepository) UpdateMetrics(ctx context.Context, id uuid.UUID, participantID int64, m fight.Metrics) error {
	// Two statements keyed on which participant column matches; a miss on
	// both means the participant does not belong to the fight.
	tag, err := r.pool.Exec(ctx, `
		UPDATE fights
		SET p1_presence_seconds=$1, p1_active_seconds=$2, p1_average_amplitude=$3
		WHERE id=$4 AND participant1_id=$5
	`, m.PresenceSeconds, m.ActiveSeconds, m.AverageAmplitude, id, participantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	tag, err = r.pool.Exec(ctx, `
		UPDATE fights
		SET p2_presence_seconds=$1, p2_active_seconds=$2, p2_average_amplitude=$3
		WHERE id=$4 AND participant2_id=$5
	`, m.PresenceSeconds, m.ActiveSeconds, m.AverageAmplitude, id, participantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fight.ErrNotFound
	}
	return nil
}

func (r *FightRepository) Finish(ctx context.Context, id uuid.UUID, winnerID *int64, result1, result2 fight.Result, duration time.Duration, endedAt time.Time) (bool, error) {
	// The ended_at guard makes finalization first-writer-wins: a second
	// call matches no rows and reports false.
	tag, err := r.pool.Exec(ctx, `
		UPDATE fights
		SET winner_id=$1, participant1_result=$2, participant2_result=$3, duration_ms=$4, ended_at=$5
		WHERE id=$6 AND ended_at IS NULL
	`, winnerID, string(result1), string(result2), duration.Milliseconds(), endedAt, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *FightRepository) ListByParticipant(ctx context.Context, participantID int64, limit int) ([]*fight.Fight, error) {
	rows, err := r.pool.Query(ctx, fightSelect+`
		WHERE participant1_id=$1 OR participant2_id=$1
		ORDER BY started_at DESC LIMIT $2
	`, participantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fights []*fight.Fight
	for rows.Next() {
		f, err := scanFight(rows)
		if err != nil {
			return nil, err
		}
		fights = append(fights, f)
	}
	return fights, rows.Err()
}

const fightSelect = `
	SELECT id, challenge_id, participant1_id, participant2_id, fight_type, duration_ms,
	       winner_id, participant1_result, participant2_result,
	       p1_presence_seconds, p1_active_seconds, p1_average_amplitude,
	       p2_presence_seconds, p2_active_seconds, p2_average_amplitude,
	       channel_id, started_at, ended_at, created_at
	FROM fights`

func scanFight(row pgx.Row) (*fight.Fight, error) {
	var f fight.Fight
	var fightType, result1, result2 string
	var durationMs int64
	if err := row.Scan(&f.ID, &f.ChallengeID, &f.Participant1, &f.Participant2, &fightType, &durationMs,
		&f.WinnerID, &result1, &result2,
		&f.Metrics1.PresenceSeconds, &f.Metrics1.ActiveSeconds, &f.Metrics1.AverageAmplitude,
		&f.Metrics2.PresenceSeconds, &f.Metrics2.ActiveSeconds, &f.Metrics2.AverageAmplitude,
		&f.ChannelID, &f.StartedAt, &f.EndedAt, &f.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fight.ErrNotFound
		}
		return nil, err
	}
	f.Type = fight.Type(fightType)
	f.Result1 = fight.Result(result1)
	f.Result2 = fight.Result(result2)
	f.Duration = time.Duration(durationMs) * time.Millisecond
	return &f, nil
}

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/recording"
)

// RecordingRepository implements recording.Repository.
type RecordingRepository struct {
	pool *pgxpool.Pool
}

func NewRecordingRepository(pool *pgxpool.Pool) *RecordingRepository {
	return &RecordingRepository{pool: pool}
}

func (r *RecordingRepository) Create(ctx context.Context, rec *recording.Recording) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO recordings (id, fight_id, is_video, duration_ms, processed, started_at, stopped_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, rec.ID, rec.FightID, rec.IsVideo, rec.Duration.Milliseconds(), rec.Processed, rec.StartedAt, rec.StoppedAt, rec.CreatedAt)
	return err
}

func (r *RecordingRepository) GetByID(ctx context.Context, id uuid.UUID) (*recording.Recording, error) {
	row := r.pool.QueryRow(ctx, recordingSelect+` WHERE id=$1`, id)
	return scanRecording(row)
}

func (r *RecordingRepository) GetByFight(ctx context.Context, fightID uuid.UUID) (*recording.Recording, error) {
	row := r.pool.QueryRow(ctx, recordingSelect+` WHERE fight_id=$1 ORDER BY created_at DESC LIMIT 1`, fightID)
	return scanRecording(row)
}

func (r *RecordingRepository) MarkStopped(ctx context.Context, id uuid.UUID, duration time.Duration, stoppedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE recordings SET duration_ms=$1, stopped_at=$2 WHERE id=$3
	`, duration.Milliseconds(), stoppedAt, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return recording.ErrNotFound
	}
	return nil
}

const recordingSelect = `
	SELECT id, fight_id, is_video, duration_ms, processed, started_at, stopped_at, created_at
	FROM recordings`

func scanRecording(row pgx.Row) (*recording.Recording, error) {
	var rec recording.Recording
	var durationMs int64
	if err := row.Scan(&rec.ID, &rec.FightID, &rec.IsVideo, &durationMs, &rec.Processed,
		&rec.StartedAt, &rec.StoppedAt, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, recording.ErrNotFound
		}
		return nil, err
	}
	rec.Duration = time.Duration(durationMs) * time.Millisecond
	return &rec, nil
}

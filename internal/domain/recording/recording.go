package recording

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for lookups of unknown recordings.
var ErrNotFound = errors.New("recording not found")

// Recording is the metadata record for a fight's session capture. The
// media itself is produced elsewhere; this tracks identity, timing and
// processing state.
type Recording struct {
	ID      uuid.UUID `json:"id"`
	FightID uuid.UUID `json:"fight_id"`

	IsVideo  bool          `json:"is_video"`
	Duration time.Duration `json:"duration"`

	Processed bool `json:"processed"`

	StartedAt time.Time  `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Repository defines recording-metadata persistence.
type Repository interface {
	Create(ctx context.Context, r *Recording) error
	GetByID(ctx context.Context, id uuid.UUID) (*Recording, error)
	GetByFight(ctx context.Context, fightID uuid.UUID) (*Recording, error)

	// MarkStopped finalizes a recording's duration and stop time.
	MarkStopped(ctx context.Context, id uuid.UUID, duration time.Duration, stoppedAt time.Time) error
}

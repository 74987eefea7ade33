package fight

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines fight persistence.
type Repository interface {
	Create(ctx context.Context, f *Fight) error
	GetByID(ctx context.Context, id uuid.UUID) (*Fight, error)

	// UpdateMetrics stores the latest sampled metrics snapshot for one
	// participant of an in-progress fight.
	UpdateMetrics(ctx context.Context, id uuid.UUID, participantID int64, m Metrics) error

	// Finish finalizes a fight exactly once. It reports false when the
	// fight was already finished, in which case nothing is written.
	Finish(ctx context.Context, id uuid.UUID, winnerID *int64, result1, result2 Result, duration time.Duration, endedAt time.Time) (bool, error)

	// ListByParticipant returns the most recent fights a user took part
	// in, newest first.
	ListByParticipant(ctx context.Context, participantID int64, limit int) ([]*Fight, error)
}

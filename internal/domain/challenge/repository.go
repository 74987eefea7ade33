package challenge

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/fight"
)

// Repository defines challenge persistence.
type Repository interface {
	Create(ctx context.Context, c *Challenge) error
	GetByID(ctx context.Context, id uuid.UUID) (*Challenge, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	SetType(ctx context.Context, id uuid.UUID, t fight.Type) error
	SetFightWindow(ctx context.Context, id uuid.UUID, startsAt, endsAt *time.Time) error

	// ListPending returns unexpired pending challenges addressed to a
	// user, used for duplicate detection and front-end display.
	ListPending(ctx context.Context, opponentID int64, now time.Time) ([]*Challenge, error)

	// ExpireOlderThan marks every pending challenge whose expiry deadline
	// passed as expired and returns the number of rows changed.
	ExpireOlderThan(ctx context.Context, now time.Time) (int, error)
}

package challenge

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/fight"
)

// Status is the durable challenge status. It is persisted separately from
// the in-memory state machine, which only exists while the challenge is
// being driven by the arbiter.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusDeclined   Status = "declined"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusExpired    Status = "expired"
)

var (
	// ErrDuplicate is returned when an active challenge already exists
	// between the same ordered (challenger, opponent) pair.
	ErrDuplicate = errors.New("active challenge already exists between users")
	// ErrNotFound is returned for lookups of unknown challenges.
	ErrNotFound = errors.New("challenge not found")
)

// Challenge is a proposed contest between two users awaiting acceptance.
type Challenge struct {
	ID uuid.UUID `json:"id"`

	ChallengerID int64 `json:"challenger_id"`
	OpponentID   int64 `json:"opponent_id"`

	// ChannelID references the session channel the challenge was issued
	// in and where the fight takes place.
	ChannelID int64 `json:"channel_id"`

	// Type is unset until the challenger picks a contest type.
	Type   *fight.Type `json:"fight_type,omitempty"`
	Status Status      `json:"status"`

	ExpiresAt     time.Time  `json:"expires_at"`
	FightStartsAt *time.Time `json:"fight_starts_at,omitempty"`
	FightEndsAt   *time.Time `json:"fight_ends_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

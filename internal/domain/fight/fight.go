package fight

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for lookups of unknown fights.
var ErrNotFound = errors.New("fight not found")

// Type identifies how a fight's winner is measured.
type Type string

const (
	// TypeTiming awards the fight to the participant that stayed in the
	// session longest.
	TypeTiming Type = "timing"
	// TypeActivity awards the fight to the participant with the highest
	// weighted engagement score.
	TypeActivity Type = "activity"
)

// Valid reports whether t is a known fight type.
func (t Type) Valid() bool {
	return t == TypeTiming || t == TypeActivity
}

// Result is a per-participant fight outcome.
type Result string

const (
	ResultWin       Result = "win"
	ResultLoss      Result = "loss"
	ResultDraw      Result = "draw"
	ResultNoShow    Result = "no_show"
	ResultCancelled Result = "cancelled"
)

// Metrics is an immutable snapshot of one participant's sampled session
// activity. Zero values stand in for anything the session agent could not
// measure.
type Metrics struct {
	PresenceSeconds  float64 `json:"presence_seconds"`
	ActiveSeconds    float64 `json:"active_seconds"`
	AverageAmplitude float64 `json:"average_amplitude"`
}

// Fight is a contest instance spawned from an accepted challenge.
type Fight struct {
	ID          uuid.UUID `json:"id"`
	ChallengeID uuid.UUID `json:"challenge_id"`

	Participant1 int64 `json:"participant1_id"`
	Participant2 int64 `json:"participant2_id"`

	Type     Type          `json:"fight_type"`
	Duration time.Duration `json:"duration"`

	WinnerID *int64 `json:"winner_id,omitempty"`
	Result1  Result `json:"participant1_result"`
	Result2  Result `json:"participant2_result"`

	Metrics1 Metrics `json:"participant1_metrics"`
	Metrics2 Metrics `json:"participant2_metrics"`

	ChannelID int64 `json:"channel_id"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Finished reports whether the fight has been finalized.
func (f *Fight) Finished() bool {
	return f.EndedAt != nil
}

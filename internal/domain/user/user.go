package user

import (
	"errors"
	"time"
)

// ErrNotFound is returned for lookups of unknown users.
var ErrNotFound = errors.New("user not found")

// User holds a participant's identity and raw aggregate counters. Counters
// only ever increase, exactly once per finished fight.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`

	TotalChallenges int `json:"total_challenges"`
	TotalFights     int `json:"total_fights"`
	Wins            int `json:"wins"`
	Losses          int `json:"losses"`
	Draws           int `json:"draws"`

	AllowChallenges bool `json:"allow_challenges"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatDelta is a set of counter increments applied atomically.
type StatDelta struct {
	TotalChallenges int
	TotalFights     int
	Wins            int
	Losses          int
	Draws           int
}

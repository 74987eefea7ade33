// Package memory provides map-backed implementations of the domain
// repositories. It serves development mode (no database configured) and
// the test suites.
package memory

import (
	"github.com/coder/quartz"
)

// Store bundles the in-memory repositories over a shared clock.
type Store struct {
	Challenges *ChallengeRepository
	Fights     *FightRepository
	Users      *UserRepository
	Recordings *RecordingRepository
}

// NewStore builds an empty store. The clock stamps record update times.
func NewStore(clock quartz.Clock) *Store {
	return &Store{
		Challenges: NewChallengeRepository(clock),
		Fights:     NewFightRepository(clock),
		Users:      NewUserRepository(clock),
		Recordings: NewRecordingRepository(),
	}
}

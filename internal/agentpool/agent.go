// Package agentpool manages the session agents that join live channels on
// the arbiter's behalf and report participant presence and activity.
package agentpool

import (
	"context"
	"errors"

	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/fight"
)

// ErrNoAgentAvailable is returned by Acquire when every agent is leased.
var ErrNoAgentAvailable = errors.New("no session agent available")

// Agent is a worker capable of joining one live session channel and
// reporting presence/activity metrics for the two fight participants. All
// calls may suspend; implementations honor the context.
type Agent interface {
	// Join enters the channel and starts tracking the given participants.
	Join(ctx context.Context, channelID int64, participants [2]int64) (bool, error)
	// Leave exits the channel and stops tracking.
	Leave(ctx context.Context, channelID int64) (bool, error)

	// SampleMetrics returns the current per-participant metric snapshots
	// keyed by participant ID.
	SampleMetrics(ctx context.Context) (map[int64]fight.Metrics, error)
	// BothJoined reports whether both tracked participants are present.
	BothJoined(ctx context.Context) (bool, error)
	// BothStillActive reports whether the tracked participants remain in
	// the session; the monitor ends a fight early once this turns false.
	BothStillActive(ctx context.Context) (bool, error)

	// Mute and Unmute toggle a participant's audio in the channel.
	Mute(ctx context.Context, channelID, userID int64) error
	Unmute(ctx context.Context, channelID, userID int64) error
}

// Package recording tracks fight recordings: metadata records plus the
// start/stop bookkeeping the arbiter drives. Media capture itself happens
// in the session layer; this package only arbitrates identity and timing.
package recording

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/recording"
)

type activeRecording struct {
	recordingID uuid.UUID
	startedAt   time.Time
}

// Manager starts and stops recordings keyed by fight identity.
type Manager struct {
	logger zerolog.Logger
	clock  quartz.Clock
	repo   recording.Repository

	mu     sync.Mutex
	active map[uuid.UUID]activeRecording
}

// NewManager builds a recording manager over the given metadata store.
func NewManager(logger zerolog.Logger, clock quartz.Clock, repo recording.Repository) *Manager {
	return &Manager{
		logger: logger.With().Str("component", "recording").Logger(),
		clock:  clock,
		repo:   repo,
		active: make(map[uuid.UUID]activeRecording),
	}
}

// Start begins recording a fight. It reports false when a recording is
// already running for the fight or the metadata record cannot be created.
func (m *Manager) Start(ctx context.Context, fightID uuid.UUID, wantsVideo bool) bool {
	m.mu.Lock()
	if _, running := m.active[fightID]; running {
		m.mu.Unlock()
		m.logger.Warn().Stringer("fight_id", fightID).Msg("Recording already active for fight")
		return false
	}
	m.mu.Unlock()

	now := m.clock.Now()
	rec := &recording.Recording{
		ID:        uuid.New(),
		FightID:   fightID,
		IsVideo:   wantsVideo,
		StartedAt: now,
		CreatedAt: now,
	}
	if err := m.repo.Create(ctx, rec); err != nil {
		m.logger.Error().Err(err).Stringer("fight_id", fightID).Msg("Failed to create recording record")
		return false
	}

	m.mu.Lock()
	m.active[fightID] = activeRecording{recordingID: rec.ID, startedAt: now}
	m.mu.Unlock()

	m.logger.Info().
		Stringer("fight_id", fightID).
		Stringer("recording_id", rec.ID).
		Bool("video", wantsVideo).
		Msg("Recording started")
	return true
}

// Stop ends the fight's recording and returns the recording ID. It reports
// false when no recording is active for the fight.
func (m *Manager) Stop(ctx context.Context, fightID uuid.UUID) (uuid.UUID, bool) {
	m.mu.Lock()
	rec, running := m.active[fightID]
	if running {
		delete(m.active, fightID)
	}
	m.mu.Unlock()

	if !running {
		m.logger.Debug().Stringer("fight_id", fightID).Msg("No active recording for fight")
		return uuid.Nil, false
	}

	stoppedAt := m.clock.Now()
	duration := stoppedAt.Sub(rec.startedAt)
	if err := m.repo.MarkStopped(ctx, rec.recordingID, duration, stoppedAt); err != nil {
		m.logger.Error().Err(err).Stringer("recording_id", rec.recordingID).Msg("Failed to finalize recording record")
	}

	m.logger.Info().
		Stringer("fight_id", fightID).
		Stringer("recording_id", rec.recordingID).
		Dur("duration", duration).
		Msg("Recording stopped")
	return rec.recordingID, true
}

// IsActive reports whether a recording is running for the fight.
func (m *Manager) IsActive(fightID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, running := m.active[fightID]
	return running
}

// ActiveCount returns the number of running recordings.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

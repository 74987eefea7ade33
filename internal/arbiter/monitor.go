package arbiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ChiranjibKoch/ArchFairFight/internal/agentpool"
	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/challenge"
	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/fight"
	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/user"
	"github.com/ChiranjibKoch/ArchFairFight/internal/verdict"
)

// cleanupTimeout bounds the IO done while unwinding a cancelled or failed
// fight, whose own context is already dead.
const cleanupTimeout = 10 * time.Second

// fightMonitor is the per-fight routine state. Exactly one monitor runs
// per challenge; it owns the leased agent and the recording for the
// fight's lifetime.
type fightMonitor struct {
	a           *Arbiter
	logger      zerolog.Logger
	challengeID uuid.UUID
	f           *fight.Fight

	agent    agentpool.Agent
	released bool
}

// monitorFight supervises a single fight from participant join through
// winner determination. Any error routes through the error-finish path so
// the agent, recording and durable state are always settled.
func (a *Arbiter) monitorFight(ctx context.Context, challengeID uuid.UUID, f *fight.Fight) {
	defer a.wg.Done()

	m := &fightMonitor{
		a: a,
		logger: a.logger.With().
			Stringer("challenge_id", challengeID).
			Stringer("fight_id", f.ID).
			Logger(),
		challengeID: challengeID,
		f:           f,
	}
	defer m.releaseAgent()

	if err := m.run(ctx); err != nil {
		m.finishError(err)
	}
}

func (m *fightMonitor) run(ctx context.Context) error {
	agent, err := m.a.agents.Acquire()
	if err != nil {
		return err
	}
	m.agent = agent
	m.a.registerSessionAgent(m.challengeID, agent, m.f.ChannelID)

	joined, err := m.agent.Join(ctx, m.f.ChannelID, [2]int64{m.f.Participant1, m.f.Participant2})
	if err != nil {
		return fmt.Errorf("joining session: %w", err)
	}
	if !joined {
		return errors.New("session agent refused to join channel")
	}

	present, err := m.waitForParticipants(ctx)
	if err != nil {
		return err
	}
	if !present {
		m.finishNoShow()
		return nil
	}

	if !m.a.transitionEntry(m.challengeID, challenge.StateFightActive) {
		return ErrInvalidTransition
	}
	m.logger.Info().Msg("Both participants joined, fight active")

	// Activity contests get a video recording; timing contests audio only.
	m.a.recorder.Start(ctx, m.f.ID, m.f.Type == fight.TypeActivity)

	m1, m2, elapsed, err := m.sampleLoop(ctx)
	if err != nil {
		return err
	}

	m.finishWithResults(ctx, m1, m2, elapsed)
	return nil
}

// waitForParticipants polls the session until both participants are
// present or the acceptance deadline passes. A final check runs at the
// deadline itself so a last-moment join still counts.
func (m *fightMonitor) waitForParticipants(ctx context.Context) (bool, error) {
	deadline := m.a.clock.NewTimer(m.a.cfg.AcceptanceTimeout)
	defer deadline.Stop()
	ticker := m.a.clock.NewTicker(m.a.cfg.MonitoringInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			joined, err := m.agent.BothJoined(ctx)
			if err != nil {
				return false, fmt.Errorf("checking participant presence: %w", err)
			}
			return joined, nil
		case <-ticker.C:
			joined, err := m.agent.BothJoined(ctx)
			if err != nil {
				return false, fmt.Errorf("checking participant presence: %w", err)
			}
			if joined {
				return true, nil
			}
		}
	}
}

// sampleLoop samples participant metrics every monitoring interval until
// the fight duration ceiling is reached or a participant leaves. It
// returns the last observed metrics snapshot for each participant and the
// elapsed fight time.
func (m *fightMonitor) sampleLoop(ctx context.Context) (fight.Metrics, fight.Metrics, time.Duration, error) {
	var m1, m2 fight.Metrics
	var elapsed time.Duration

	ticker := m.a.clock.NewTicker(m.a.cfg.MonitoringInterval)
	defer ticker.Stop()

	for elapsed < m.a.cfg.MaxFightDuration {
		select {
		case <-ctx.Done():
			return m1, m2, elapsed, ctx.Err()
		case <-ticker.C:
			elapsed += m.a.cfg.MonitoringInterval

			samples, err := m.agent.SampleMetrics(ctx)
			if err != nil {
				return m1, m2, elapsed, fmt.Errorf("sampling metrics: %w", err)
			}
			if s, ok := samples[m.f.Participant1]; ok {
				m1 = s
			}
			if s, ok := samples[m.f.Participant2]; ok {
				m2 = s
			}
			m.persistMetrics(ctx, m1, m2)

			active, err := m.agent.BothStillActive(ctx)
			if err != nil {
				return m1, m2, elapsed, fmt.Errorf("checking participant activity: %w", err)
			}
			if !active {
				m.logger.Info().Dur("elapsed", elapsed).Msg("Participant left, ending fight early")
				return m1, m2, elapsed, nil
			}
		}
	}

	m.logger.Info().Dur("elapsed", elapsed).Msg("Fight reached maximum duration")
	return m1, m2, elapsed, nil
}

// persistMetrics writes the latest snapshots. A failed write is logged
// and does not end the fight; the next tick retries with fresher data.
func (m *fightMonitor) persistMetrics(ctx context.Context, m1, m2 fight.Metrics) {
	if err := m.a.fights.UpdateMetrics(ctx, m.f.ID, m.f.Participant1, m1); err != nil {
		m.logger.Error().Err(err).Int64("participant_id", m.f.Participant1).Msg("Failed to persist metrics")
	}
	if err := m.a.fights.UpdateMetrics(ctx, m.f.ID, m.f.Participant2, m2); err != nil {
		m.logger.Error().Err(err).Int64("participant_id", m.f.Participant2).Msg("Failed to persist metrics")
	}
}

// finishWithResults settles a completed fight: winner determination,
// durable finalization, user statistics and state machine teardown.
func (m *fightMonitor) finishWithResults(ctx context.Context, m1, m2 fight.Metrics, elapsed time.Duration) {
	m.stopRecording(ctx)

	outcome := m.a.judge.Determine(m.f.Type, m1, m2)

	var winnerID *int64
	switch outcome.Winner {
	case verdict.ParticipantA:
		winnerID = &m.f.Participant1
	case verdict.ParticipantB:
		winnerID = &m.f.Participant2
	}

	endedAt := m.a.clock.Now()
	changed, err := m.a.fights.Finish(ctx, m.f.ID, winnerID, outcome.ResultA, outcome.ResultB, elapsed, endedAt)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to finalize fight record")
	}
	if changed {
		m.recordStats(ctx, outcome)
	}

	if err := m.a.challenges.UpdateStatus(ctx, m.challengeID, challenge.StatusCompleted); err != nil {
		m.logger.Error().Err(err).Msg("Failed to mark challenge completed")
	}
	if err := m.a.challenges.SetFightWindow(ctx, m.challengeID, nil, &endedAt); err != nil {
		m.logger.Error().Err(err).Msg("Failed to record fight end time")
	}

	m.a.transitionEntry(m.challengeID, challenge.StateFightFinished)
	m.a.discardEntry(m.challengeID)

	m.logger.Info().
		Str("result_p1", string(outcome.ResultA)).
		Str("result_p2", string(outcome.ResultB)).
		Dur("duration", elapsed).
		Msg("Fight finished")
}

// recordStats increments the participants' win/loss/draw counters. Called
// only when the fight record actually transitioned to finished, so the
// counters move exactly once per fight.
func (m *fightMonitor) recordStats(ctx context.Context, outcome verdict.Outcome) {
	d1 := user.StatDelta{TotalFights: 1}
	d2 := user.StatDelta{TotalFights: 1}
	switch outcome.Winner {
	case verdict.ParticipantA:
		d1.Wins, d2.Losses = 1, 1
	case verdict.ParticipantB:
		d1.Losses, d2.Wins = 1, 1
	default:
		d1.Draws, d2.Draws = 1, 1
	}

	if err := m.a.users.IncrementStats(ctx, m.f.Participant1, d1); err != nil {
		m.logger.Error().Err(err).Int64("participant_id", m.f.Participant1).Msg("Failed to update user stats")
	}
	if err := m.a.users.IncrementStats(ctx, m.f.Participant2, d2); err != nil {
		m.logger.Error().Err(err).Int64("participant_id", m.f.Participant2).Msg("Failed to update user stats")
	}
}

// finishNoShow settles a fight where the participants never both joined.
// Both sides are recorded as no-shows and the fight duration is the full
// acceptance deadline.
func (m *fightMonitor) finishNoShow() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	m.stopRecording(ctx)

	endedAt := m.a.clock.Now()
	if _, err := m.a.fights.Finish(ctx, m.f.ID, nil, fight.ResultNoShow, fight.ResultNoShow, m.a.cfg.AcceptanceTimeout, endedAt); err != nil {
		m.logger.Error().Err(err).Msg("Failed to finalize no-show fight")
	}
	if err := m.a.challenges.UpdateStatus(ctx, m.challengeID, challenge.StatusCompleted); err != nil {
		m.logger.Error().Err(err).Msg("Failed to mark challenge completed")
	}

	// The join states have no edge to finished; the rejection is logged
	// and the entry discarded regardless.
	m.a.transitionEntry(m.challengeID, challenge.StateFightFinished)
	m.a.discardEntry(m.challengeID)

	m.logger.Warn().Msg("Fight ended without both participants joining")
}

// finishError settles a fight whose monitoring failed or was cancelled.
// Durable records move to cancelled and the entry is discarded. Cleanup
// runs on a fresh context since the fight's own is typically dead.
func (m *fightMonitor) finishError(cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	m.stopRecording(ctx)

	if _, err := m.a.fights.Finish(ctx, m.f.ID, nil, fight.ResultCancelled, fight.ResultCancelled, 0, m.a.clock.Now()); err != nil {
		m.logger.Error().Err(err).Msg("Failed to finalize cancelled fight")
	}
	if err := m.a.challenges.UpdateStatus(ctx, m.challengeID, challenge.StatusCancelled); err != nil {
		m.logger.Error().Err(err).Msg("Failed to mark challenge cancelled")
	}

	m.a.transitionEntry(m.challengeID, challenge.StateCancelled)
	m.a.discardEntry(m.challengeID)

	if errors.Is(cause, context.Canceled) {
		m.logger.Info().Msg("Fight monitoring cancelled")
	} else {
		m.logger.Error().Err(cause).Msg("Fight monitoring failed")
	}
}

// stopRecording stops the fight's recording if one is active. The
// recording manager ignores fights it is not tracking, so every finish
// path can call this unconditionally.
func (m *fightMonitor) stopRecording(ctx context.Context) {
	if _, stopped := m.a.recorder.Stop(ctx, m.f.ID); stopped {
		m.logger.Debug().Msg("Recording stopped")
	}
}

// releaseAgent leaves the session and returns the agent to the pool
// exactly once, including on panic and cancellation paths.
func (m *fightMonitor) releaseAgent() {
	if m.agent == nil || m.released {
		return
	}
	m.released = true

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if _, err := m.agent.Leave(ctx, m.f.ChannelID); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to leave session channel")
	}
	m.a.agents.Release(m.agent)
}

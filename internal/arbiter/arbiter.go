// Package arbiter coordinates the challenge/fight lifecycle: it drives
// challenge state machines, schedules one monitoring routine per active
// fight, invokes winner determination and settles durable state and user
// statistics.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ChiranjibKoch/ArchFairFight/internal/agentpool"
	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/challenge"
	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/fight"
	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/user"
	"github.com/ChiranjibKoch/ArchFairFight/internal/recording"
	"github.com/ChiranjibKoch/ArchFairFight/internal/verdict"
)

var (
	// ErrUnknownChallenge is returned when an operation references a
	// challenge that is not in the active table.
	ErrUnknownChallenge = errors.New("challenge is not active")
	// ErrInvalidTransition is returned when the challenge's state machine
	// rejects the requested transition.
	ErrInvalidTransition = errors.New("invalid challenge state transition")
	// ErrFightInProgress is returned when a monitoring routine is already
	// scheduled for the challenge.
	ErrFightInProgress = errors.New("fight already scheduled for challenge")
	// ErrTypeNotSelected is returned when a fight is started before a
	// contest type was chosen.
	ErrTypeNotSelected = errors.New("fight type not selected")
)

// Config holds the orchestration timings.
type Config struct {
	// AcceptanceTimeout bounds how long participants have to join the
	// session once a fight starts. Challenge expiry is derived from it:
	// the durable deadline is twice this, the in-memory dwell limit three
	// times.
	AcceptanceTimeout time.Duration
	// MaxFightDuration is the hard ceiling on a fight's sampling loop.
	MaxFightDuration time.Duration
	// MonitoringInterval is the metric sampling period.
	MonitoringInterval time.Duration
	// SweepInterval is the period of the expiry sweep.
	SweepInterval time.Duration
}

// entry is one active challenge: its state machine plus the cancel handle
// of the monitoring routine once one is scheduled. The monitor registers
// its leased agent and channel here so moderation commands can reach the
// live session. Entries are owned exclusively by the arbiter and accessed
// only under its mutex.
type entry struct {
	machine   *challenge.StateMachine
	cancel    context.CancelFunc
	agent     agentpool.Agent
	channelID int64
}

// Arbiter is the challenge/fight orchestrator.
type Arbiter struct {
	cfg    Config
	logger zerolog.Logger
	clock  quartz.Clock

	challenges challenge.Repository
	fights     fight.Repository
	users      user.Repository

	agents   *agentpool.Pool
	recorder *recording.Manager
	judge    *verdict.Judge

	mu     sync.Mutex
	active map[uuid.UUID]*entry

	wg sync.WaitGroup
}

// New constructs an arbiter.
func New(cfg Config, logger zerolog.Logger, clock quartz.Clock,
	challenges challenge.Repository, fights fight.Repository, users user.Repository,
	agents *agentpool.Pool, recorder *recording.Manager, judge *verdict.Judge) *Arbiter {
	return &Arbiter{
		cfg:        cfg,
		logger:     logger.With().Str("component", "arbiter").Logger(),
		clock:      clock,
		challenges: challenges,
		fights:     fights,
		users:      users,
		agents:     agents,
		recorder:   recorder,
		judge:      judge,
		active:     make(map[uuid.UUID]*entry),
	}
}

// CreateChallenge opens a challenge from challenger to opponent. It is
// rejected when an active challenge between the same ordered pair already
// exists.
func (a *Arbiter) CreateChallenge(ctx context.Context, challengerID, opponentID, channelID int64) (uuid.UUID, error) {
	now := a.clock.Now()

	pending, err := a.challenges.ListPending(ctx, opponentID, now)
	if err != nil {
		return uuid.Nil, fmt.Errorf("listing pending challenges: %w", err)
	}
	for _, existing := range pending {
		if existing.ChallengerID == challengerID {
			a.logger.Warn().
				Int64("challenger_id", challengerID).
				Int64("opponent_id", opponentID).
				Msg("Challenge already exists between users")
			return uuid.Nil, challenge.ErrDuplicate
		}
	}

	ch := &challenge.Challenge{
		ID:           uuid.New(),
		ChallengerID: challengerID,
		OpponentID:   opponentID,
		ChannelID:    channelID,
		Status:       challenge.StatusPending,
		// Double the join timeout: the opponent gets longer to accept
		// than participants get to show up.
		ExpiresAt: now.Add(2 * a.cfg.AcceptanceTimeout),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.challenges.Create(ctx, ch); err != nil {
		return uuid.Nil, fmt.Errorf("creating challenge: %w", err)
	}

	if err := a.users.IncrementStats(ctx, challengerID, user.StatDelta{TotalChallenges: 1}); err != nil {
		a.logger.Error().Err(err).Int64("challenger_id", challengerID).Msg("Failed to count challenge for user")
	}

	machine := challenge.NewStateMachine(a.clock, a.logger)
	machine.Transition(challenge.StateSent)

	a.mu.Lock()
	a.active[ch.ID] = &entry{machine: machine}
	a.mu.Unlock()

	a.logger.Info().
		Stringer("challenge_id", ch.ID).
		Int64("challenger_id", challengerID).
		Int64("opponent_id", opponentID).
		Msg("Challenge created")
	return ch.ID, nil
}

// RespondToChallenge records the opponent's accept or decline.
func (a *Arbiter) RespondToChallenge(ctx context.Context, id uuid.UUID, accept bool) error {
	target := challenge.StateAccepted
	status := challenge.StatusAccepted
	if !accept {
		target = challenge.StateDeclined
		status = challenge.StatusDeclined
	}

	a.mu.Lock()
	e, ok := a.active[id]
	if !ok {
		a.mu.Unlock()
		return ErrUnknownChallenge
	}
	if !e.machine.Transition(target) {
		a.mu.Unlock()
		return ErrInvalidTransition
	}
	if !accept {
		// Declined is terminal; the machine is discarded immediately.
		delete(a.active, id)
	}
	a.mu.Unlock()

	if err := a.challenges.UpdateStatus(ctx, id, status); err != nil {
		return fmt.Errorf("updating challenge status: %w", err)
	}

	a.logger.Info().Stringer("challenge_id", id).Bool("accepted", accept).Msg("Challenge response recorded")
	return nil
}

// SelectFightType records the chosen contest type for an accepted
// challenge.
func (a *Arbiter) SelectFightType(ctx context.Context, id uuid.UUID, t fight.Type) error {
	if !t.Valid() {
		return fmt.Errorf("unknown fight type %q", t)
	}

	a.mu.Lock()
	e, ok := a.active[id]
	if !ok {
		a.mu.Unlock()
		return ErrUnknownChallenge
	}
	if !e.machine.Transition(challenge.StateFightTypeSelected) {
		a.mu.Unlock()
		return ErrInvalidTransition
	}
	a.mu.Unlock()

	if err := a.challenges.SetType(ctx, id, t); err != nil {
		return fmt.Errorf("setting fight type: %w", err)
	}

	a.logger.Info().Stringer("challenge_id", id).Str("fight_type", string(t)).Msg("Fight type selected")
	return nil
}

// StartFight creates the fight record for a challenge and schedules its
// monitoring routine. At most one routine is ever scheduled per challenge.
func (a *Arbiter) StartFight(ctx context.Context, id uuid.UUID) error {
	ch, err := a.challenges.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("loading challenge: %w", err)
	}
	if ch.Type == nil {
		return ErrTypeNotSelected
	}

	a.mu.Lock()
	e, ok := a.active[id]
	if !ok {
		a.mu.Unlock()
		return ErrUnknownChallenge
	}
	if e.cancel != nil {
		a.mu.Unlock()
		return ErrFightInProgress
	}
	if !e.machine.CanTransition(challenge.StateParticipantsJoining) {
		a.mu.Unlock()
		return ErrInvalidTransition
	}
	a.mu.Unlock()

	now := a.clock.Now()
	f := &fight.Fight{
		ID:           uuid.New(),
		ChallengeID:  ch.ID,
		Participant1: ch.ChallengerID,
		Participant2: ch.OpponentID,
		Type:         *ch.Type,
		ChannelID:    ch.ChannelID,
		// Placeholder results until the monitor finalizes the fight.
		Result1:   fight.ResultDraw,
		Result2:   fight.ResultDraw,
		StartedAt: now,
		CreatedAt: now,
	}
	if err := a.fights.Create(ctx, f); err != nil {
		return fmt.Errorf("creating fight: %w", err)
	}

	// Claim the entry before launching the routine so a racing StartFight
	// cannot schedule a second monitor for the same challenge.
	a.mu.Lock()
	e, ok = a.active[id]
	if !ok {
		a.mu.Unlock()
		return ErrUnknownChallenge
	}
	if e.cancel != nil {
		a.mu.Unlock()
		return ErrFightInProgress
	}
	if !e.machine.Transition(challenge.StateParticipantsJoining) {
		a.mu.Unlock()
		return ErrInvalidTransition
	}
	fightCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	a.mu.Unlock()

	if err := a.challenges.UpdateStatus(ctx, id, challenge.StatusInProgress); err != nil {
		a.logger.Error().Err(err).Stringer("challenge_id", id).Msg("Failed to mark challenge in progress")
	}
	if err := a.challenges.SetFightWindow(ctx, id, &now, nil); err != nil {
		a.logger.Error().Err(err).Stringer("challenge_id", id).Msg("Failed to record fight start time")
	}

	a.wg.Add(1)
	go a.monitorFight(fightCtx, id, f)

	a.logger.Info().
		Stringer("challenge_id", id).
		Stringer("fight_id", f.ID).
		Str("fight_type", string(f.Type)).
		Msg("Fight started")
	return nil
}

// CancelChallenge cancels an active challenge, interrupting its monitoring
// routine if one is running. The routine's cleanup path releases the
// session agent and stops any recording.
func (a *Arbiter) CancelChallenge(ctx context.Context, id uuid.UUID) error {
	a.mu.Lock()
	e, ok := a.active[id]
	if !ok {
		a.mu.Unlock()
		return ErrUnknownChallenge
	}
	cancel := e.cancel
	e.machine.Transition(challenge.StateCancelled)
	delete(a.active, id)
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if err := a.challenges.UpdateStatus(ctx, id, challenge.StatusCancelled); err != nil {
		return fmt.Errorf("updating challenge status: %w", err)
	}

	a.logger.Info().Stringer("challenge_id", id).Msg("Challenge cancelled")
	return nil
}

// ExpireOldChallenges sweeps the durable pending set past its deadline and
// discards idle in-memory machines that dwelled too long in one state. It
// returns the number of durable records expired.
func (a *Arbiter) ExpireOldChallenges(ctx context.Context) (int, error) {
	expired, err := a.challenges.ExpireOlderThan(ctx, a.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("expiring challenges: %w", err)
	}

	dwellLimit := 3 * a.cfg.AcceptanceTimeout

	a.mu.Lock()
	var stale []uuid.UUID
	for id, e := range a.active {
		// Entries with a running monitor enforce their own deadlines.
		if e.cancel != nil {
			continue
		}
		if e.machine.TimeInState() > dwellLimit {
			e.machine.Transition(challenge.StateExpired)
			delete(a.active, id)
			stale = append(stale, id)
		}
	}
	a.mu.Unlock()

	for _, id := range stale {
		a.logger.Info().Stringer("challenge_id", id).Msg("Discarded stale challenge state machine")
	}
	return expired, nil
}

// RunSweeper runs ExpireOldChallenges on SweepInterval until the context
// is cancelled.
func (a *Arbiter) RunSweeper(ctx context.Context) error {
	ticker := a.clock.NewTicker(a.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			count, err := a.ExpireOldChallenges(ctx)
			if err != nil {
				a.logger.Error().Err(err).Msg("Expiry sweep failed")
				continue
			}
			if count > 0 {
				a.logger.Info().Int("expired", count).Msg("Expired old challenges")
			}
		}
	}
}

// SetParticipantMuted toggles a participant's audio in the fight's live
// session. It requires a running monitoring routine that has already
// leased an agent.
func (a *Arbiter) SetParticipantMuted(ctx context.Context, id uuid.UUID, userID int64, muted bool) error {
	a.mu.Lock()
	e, ok := a.active[id]
	if !ok {
		a.mu.Unlock()
		return ErrUnknownChallenge
	}
	agent := e.agent
	channelID := e.channelID
	a.mu.Unlock()

	if agent == nil {
		return errors.New("no live session for challenge")
	}

	if muted {
		return agent.Mute(ctx, channelID, userID)
	}
	return agent.Unmute(ctx, channelID, userID)
}

// registerSessionAgent records a monitor's leased agent on its entry so
// moderation commands can reach the session.
func (a *Arbiter) registerSessionAgent(id uuid.UUID, agent agentpool.Agent, channelID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.active[id]; ok {
		e.agent = agent
		e.channelID = channelID
	}
}

// Now exposes the arbiter's clock, so collaborators share a single notion
// of time (mockable in tests).
func (a *Arbiter) Now() time.Time {
	return a.clock.Now()
}

// ActiveChallengeCount returns the number of active in-memory challenges.
func (a *Arbiter) ActiveChallengeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.active)
}

// IsChallengeActive reports whether a challenge is in the active table.
func (a *Arbiter) IsChallengeActive(id uuid.UUID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.active[id]
	return ok
}

// ChallengeState returns the in-memory state of an active challenge.
func (a *Arbiter) ChallengeState(id uuid.UUID) (challenge.State, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.active[id]
	if !ok {
		return "", false
	}
	return e.machine.Current(), true
}

// Wait blocks until every monitoring routine has finished. Used during
// shutdown and in tests.
func (a *Arbiter) Wait() {
	a.wg.Wait()
}

// transitionEntry applies a state transition to an active challenge under
// the table lock. Missing entries report false.
func (a *Arbiter) transitionEntry(id uuid.UUID, target challenge.State) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.active[id]
	if !ok {
		return false
	}
	return e.machine.Transition(target)
}

// discardEntry removes a challenge from the active table.
func (a *Arbiter) discardEntry(id uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.active, id)
}

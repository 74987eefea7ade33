package arbiter

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChiranjibKoch/ArchFairFight/internal/agentpool"
	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/challenge"
	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/fight"
	recmanager "github.com/ChiranjibKoch/ArchFairFight/internal/recording"
	"github.com/ChiranjibKoch/ArchFairFight/internal/storage/memory"
	"github.com/ChiranjibKoch/ArchFairFight/internal/verdict"
)

// testLogger creates a logger that discards output for tests
func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard).Level(zerolog.Disabled)
}

// fakeAgent is a controllable session agent for monitor tests.
type fakeAgent struct {
	mu         sync.Mutex
	joined     bool
	active     bool
	samples    map[int64]fight.Metrics
	joinCalls  int
	leaveCalls int
}

func newFakeAgent() *fakeAgent {
	return &fakeAgent{joined: true, active: true, samples: map[int64]fight.Metrics{}}
}

func (f *fakeAgent) Join(_ context.Context, _ int64, _ [2]int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joinCalls++
	return true, nil
}

func (f *fakeAgent) Leave(_ context.Context, _ int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaveCalls++
	return true, nil
}

func (f *fakeAgent) SampleMetrics(_ context.Context) (map[int64]fight.Metrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int64]fight.Metrics, len(f.samples))
	for id, m := range f.samples {
		out[id] = m
	}
	return out, nil
}

func (f *fakeAgent) BothJoined(_ context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joined, nil
}

func (f *fakeAgent) BothStillActive(_ context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, nil
}

func (f *fakeAgent) Mute(context.Context, int64, int64) error   { return nil }
func (f *fakeAgent) Unmute(context.Context, int64, int64) error { return nil }

func (f *fakeAgent) setJoined(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = v
}

func (f *fakeAgent) setActive(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = v
}

func (f *fakeAgent) setSamples(samples map[int64]fight.Metrics) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = samples
}

func (f *fakeAgent) leaves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leaveCalls
}

// testFixture wires an arbiter over the in-memory store with
// millisecond-scale timings so monitors run to completion quickly.
type testFixture struct {
	arb   *Arbiter
	store *memory.Store
	pool  *agentpool.Pool
	agent *fakeAgent
	cfg   Config
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()
	return newFixtureWithConfig(t, Config{
		AcceptanceTimeout:  40 * time.Millisecond,
		MaxFightDuration:   60 * time.Millisecond,
		MonitoringInterval: 5 * time.Millisecond,
		SweepInterval:      10 * time.Millisecond,
	})
}

func newFixtureWithConfig(t *testing.T, cfg Config) *testFixture {
	t.Helper()
	clock := quartz.NewReal()
	store := memory.NewStore(clock)
	agent := newFakeAgent()
	pool := agentpool.NewPool(testLogger(), []agentpool.Agent{agent})
	recorder := recmanager.NewManager(testLogger(), clock, store.Recordings)
	judge := verdict.NewJudge(verdict.DefaultConfig(), testLogger())

	arb := New(cfg, testLogger(), clock, store.Challenges, store.Fights, store.Users, pool, recorder, judge)
	return &testFixture{arb: arb, store: store, pool: pool, agent: agent, cfg: cfg}
}

// createAccepted drives a challenge to the fight-type-selected state.
func (fx *testFixture) createAccepted(t *testing.T, typ fight.Type) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id, err := fx.arb.CreateChallenge(ctx, 1, 2, 100)
	require.NoError(t, err)
	require.NoError(t, fx.arb.RespondToChallenge(ctx, id, true))
	require.NoError(t, fx.arb.SelectFightType(ctx, id, typ))
	return id
}

// waitForCondition waits for a condition to be true with timeout
func waitForCondition(t *testing.T, condition func() bool, timeout time.Duration, errMsg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(errMsg)
}

func TestCreateChallengeRejectsDuplicate(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.arb.CreateChallenge(ctx, 1, 2, 100)
	require.NoError(t, err)

	_, err = fx.arb.CreateChallenge(ctx, 1, 2, 100)
	assert.ErrorIs(t, err, challenge.ErrDuplicate)

	// The reverse direction is a different ordered pair.
	_, err = fx.arb.CreateChallenge(ctx, 2, 1, 100)
	assert.NoError(t, err)
}

func TestCreateChallengeCountsForChallenger(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.arb.CreateChallenge(ctx, 1, 2, 100)
	require.NoError(t, err)

	u, err := fx.store.Users.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, u.TotalChallenges)
	assert.Equal(t, 0, u.TotalFights)
}

func TestRespondDecline(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()

	id, err := fx.arb.CreateChallenge(ctx, 1, 2, 100)
	require.NoError(t, err)

	require.NoError(t, fx.arb.RespondToChallenge(ctx, id, false))
	assert.False(t, fx.arb.IsChallengeActive(id), "declined is terminal, entry discarded")

	ch, err := fx.store.Challenges.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusDeclined, ch.Status)

	assert.ErrorIs(t, fx.arb.RespondToChallenge(ctx, id, true), ErrUnknownChallenge)
}

func TestSelectFightTypeBeforeAcceptRejected(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()

	id, err := fx.arb.CreateChallenge(ctx, 1, 2, 100)
	require.NoError(t, err)

	err = fx.arb.SelectFightType(ctx, id, fight.TypeTiming)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	state, ok := fx.arb.ChallengeState(id)
	require.True(t, ok)
	assert.Equal(t, challenge.StateSent, state, "rejected transition must not change state")
}

func TestStartFightRequiresType(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()

	id, err := fx.arb.CreateChallenge(ctx, 1, 2, 100)
	require.NoError(t, err)
	require.NoError(t, fx.arb.RespondToChallenge(ctx, id, true))

	assert.ErrorIs(t, fx.arb.StartFight(ctx, id), ErrTypeNotSelected)
}

func TestFightFlowActivityWinner(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()

	fx.agent.setSamples(map[int64]fight.Metrics{
		1: {PresenceSeconds: 60, ActiveSeconds: 30, AverageAmplitude: 5000},
		2: {PresenceSeconds: 60, ActiveSeconds: 10, AverageAmplitude: 1000},
	})

	id := fx.createAccepted(t, fight.TypeActivity)
	require.NoError(t, fx.arb.StartFight(ctx, id))

	fx.arb.Wait()

	ch, err := fx.store.Challenges.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusCompleted, ch.Status)
	assert.NotNil(t, ch.FightStartsAt)
	assert.NotNil(t, ch.FightEndsAt)

	fights, err := fx.store.Fights.ListByParticipant(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, fights, 1)
	f := fights[0]
	require.NotNil(t, f.WinnerID)
	assert.Equal(t, int64(1), *f.WinnerID)
	assert.Equal(t, fight.ResultWin, f.Result1)
	assert.Equal(t, fight.ResultLoss, f.Result2)
	assert.True(t, f.Finished())

	winner, err := fx.store.Users.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, winner.Wins)
	assert.Equal(t, 1, winner.TotalFights)

	loser, err := fx.store.Users.GetByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, loser.Losses)
	assert.Equal(t, 1, loser.TotalFights)

	assert.False(t, fx.arb.IsChallengeActive(id), "finished entry must be discarded")
	assert.Equal(t, 1, fx.pool.Available(), "agent must be released")
	assert.Equal(t, 1, fx.agent.leaves(), "agent must leave the channel exactly once")
}

func TestFightEndsEarlyWhenParticipantLeaves(t *testing.T) {
	t.Parallel()
	fx := newFixtureWithConfig(t, Config{
		AcceptanceTimeout:  20 * time.Millisecond,
		MaxFightDuration:   10 * time.Second,
		MonitoringInterval: 5 * time.Millisecond,
		SweepInterval:      time.Second,
	})
	ctx := context.Background()

	id := fx.createAccepted(t, fight.TypeTiming)
	require.NoError(t, fx.arb.StartFight(ctx, id))

	waitForCondition(t, func() bool {
		state, ok := fx.arb.ChallengeState(id)
		return ok && state == challenge.StateFightActive
	}, time.Second, "fight should become active")

	fx.agent.setActive(false)
	fx.arb.Wait()

	ch, err := fx.store.Challenges.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusCompleted, ch.Status)

	fights, err := fx.store.Fights.ListByParticipant(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, fights, 1)
	assert.Less(t, fights[0].Duration, 10*time.Second, "fight must end before the ceiling")
}

func TestNoShowPath(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()

	fx.agent.setJoined(false)

	id := fx.createAccepted(t, fight.TypeTiming)
	require.NoError(t, fx.arb.StartFight(ctx, id))
	fx.arb.Wait()

	fights, err := fx.store.Fights.ListByParticipant(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, fights, 1)
	f := fights[0]

	assert.Equal(t, fight.ResultNoShow, f.Result1)
	assert.Equal(t, fight.ResultNoShow, f.Result2)
	assert.Nil(t, f.WinnerID)
	assert.Equal(t, fx.cfg.AcceptanceTimeout, f.Duration, "no-show duration equals the join deadline")

	ch, err := fx.store.Challenges.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusCompleted, ch.Status)

	// No winner determination ran, so the counters never moved.
	u, err := fx.store.Users.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, u.TotalFights)

	assert.False(t, fx.arb.IsChallengeActive(id))
	assert.Equal(t, 1, fx.pool.Available())
}

func TestStartFightTwiceRejected(t *testing.T) {
	t.Parallel()
	fx := newFixtureWithConfig(t, Config{
		AcceptanceTimeout:  time.Second,
		MaxFightDuration:   10 * time.Second,
		MonitoringInterval: 5 * time.Millisecond,
		SweepInterval:      time.Second,
	})
	ctx := context.Background()

	id := fx.createAccepted(t, fight.TypeTiming)
	require.NoError(t, fx.arb.StartFight(ctx, id))

	assert.ErrorIs(t, fx.arb.StartFight(ctx, id), ErrFightInProgress)

	require.NoError(t, fx.arb.CancelChallenge(ctx, id))
	fx.arb.Wait()
}

func TestCancelDuringSamplingLoop(t *testing.T) {
	t.Parallel()
	fx := newFixtureWithConfig(t, Config{
		AcceptanceTimeout:  20 * time.Millisecond,
		MaxFightDuration:   time.Hour,
		MonitoringInterval: 5 * time.Millisecond,
		SweepInterval:      time.Hour,
	})
	ctx := context.Background()

	id := fx.createAccepted(t, fight.TypeActivity)
	require.NoError(t, fx.arb.StartFight(ctx, id))

	waitForCondition(t, func() bool {
		state, ok := fx.arb.ChallengeState(id)
		return ok && state == challenge.StateFightActive
	}, time.Second, "fight should become active")

	require.NoError(t, fx.arb.CancelChallenge(ctx, id))
	fx.arb.Wait()

	assert.False(t, fx.arb.IsChallengeActive(id), "cancelled entry must be discarded")
	assert.Equal(t, 1, fx.agent.leaves(), "exactly one leave regardless of cancellation timing")
	assert.Equal(t, 1, fx.pool.Available(), "exactly one release regardless of cancellation timing")

	ch, err := fx.store.Challenges.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusCancelled, ch.Status)

	fights, err := fx.store.Fights.ListByParticipant(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, fights, 1)
	assert.Equal(t, fight.ResultCancelled, fights[0].Result1)
	assert.Equal(t, fight.ResultCancelled, fights[0].Result2)

	// Error-finish never touches the counters.
	u, err := fx.store.Users.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, u.TotalFights)
}

func TestCancelBeforeFight(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()

	id, err := fx.arb.CreateChallenge(ctx, 1, 2, 100)
	require.NoError(t, err)

	require.NoError(t, fx.arb.CancelChallenge(ctx, id))
	assert.False(t, fx.arb.IsChallengeActive(id))

	ch, err := fx.store.Challenges.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusCancelled, ch.Status)

	assert.ErrorIs(t, fx.arb.CancelChallenge(ctx, id), ErrUnknownChallenge)
}

func TestFightFailsWhenPoolExhausted(t *testing.T) {
	t.Parallel()
	clock := quartz.NewReal()
	store := memory.NewStore(clock)
	pool := agentpool.NewPool(testLogger(), nil)
	recorder := recmanager.NewManager(testLogger(), clock, store.Recordings)
	judge := verdict.NewJudge(verdict.DefaultConfig(), testLogger())
	arb := New(Config{
		AcceptanceTimeout:  20 * time.Millisecond,
		MaxFightDuration:   40 * time.Millisecond,
		MonitoringInterval: 5 * time.Millisecond,
		SweepInterval:      time.Second,
	}, testLogger(), clock, store.Challenges, store.Fights, store.Users, pool, recorder, judge)

	ctx := context.Background()
	id, err := arb.CreateChallenge(ctx, 1, 2, 100)
	require.NoError(t, err)
	require.NoError(t, arb.RespondToChallenge(ctx, id, true))
	require.NoError(t, arb.SelectFightType(ctx, id, fight.TypeTiming))
	require.NoError(t, arb.StartFight(ctx, id))

	arb.Wait()

	// Monitoring failed on acquire, so the error-finish path ran.
	ch, err := store.Challenges.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusCancelled, ch.Status)
	assert.False(t, arb.IsChallengeActive(id))
}

func TestExpireOldChallenges(t *testing.T) {
	t.Parallel()
	fx := newFixtureWithConfig(t, Config{
		AcceptanceTimeout:  10 * time.Millisecond,
		MaxFightDuration:   time.Second,
		MonitoringInterval: 5 * time.Millisecond,
		SweepInterval:      time.Second,
	})
	ctx := context.Background()

	id, err := fx.arb.CreateChallenge(ctx, 1, 2, 100)
	require.NoError(t, err)

	// Durable expiry is 2x the acceptance timeout, in-memory dwell 3x.
	time.Sleep(40 * time.Millisecond)

	count, err := fx.arb.ExpireOldChallenges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.False(t, fx.arb.IsChallengeActive(id), "stale machine must be discarded")

	ch, err := fx.store.Challenges.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusExpired, ch.Status)

	// A second sweep finds nothing left.
	count, err = fx.arb.ExpireOldChallenges(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestExpirySweepSkipsRunningFights(t *testing.T) {
	t.Parallel()
	fx := newFixtureWithConfig(t, Config{
		AcceptanceTimeout:  10 * time.Millisecond,
		MaxFightDuration:   time.Hour,
		MonitoringInterval: 5 * time.Millisecond,
		SweepInterval:      time.Hour,
	})
	ctx := context.Background()

	id := fx.createAccepted(t, fight.TypeTiming)
	require.NoError(t, fx.arb.StartFight(ctx, id))

	waitForCondition(t, func() bool {
		state, ok := fx.arb.ChallengeState(id)
		return ok && state == challenge.StateFightActive
	}, time.Second, "fight should become active")

	time.Sleep(40 * time.Millisecond)
	_, err := fx.arb.ExpireOldChallenges(ctx)
	require.NoError(t, err)
	assert.True(t, fx.arb.IsChallengeActive(id), "entries with running monitors enforce their own deadlines")

	require.NoError(t, fx.arb.CancelChallenge(ctx, id))
	fx.arb.Wait()
}

func TestFinalizeIsIdempotent(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	ctx := context.Background()

	f := &fight.Fight{
		ID:           uuid.New(),
		ChallengeID:  uuid.New(),
		Participant1: 1,
		Participant2: 2,
		Type:         fight.TypeTiming,
		Result1:      fight.ResultDraw,
		Result2:      fight.ResultDraw,
		StartedAt:    time.Now(),
		CreatedAt:    time.Now(),
	}
	require.NoError(t, fx.store.Fights.Create(ctx, f))

	winner := int64(1)
	changed, err := fx.store.Fights.Finish(ctx, f.ID, &winner, fight.ResultWin, fight.ResultLoss, time.Minute, time.Now())
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = fx.store.Fights.Finish(ctx, f.ID, &winner, fight.ResultWin, fight.ResultLoss, time.Minute, time.Now())
	require.NoError(t, err)
	assert.False(t, changed, "second finalize must be a no-op")
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	t.Parallel()
	fx := newFixtureWithConfig(t, Config{
		AcceptanceTimeout:  10 * time.Millisecond,
		MaxFightDuration:   time.Second,
		MonitoringInterval: 5 * time.Millisecond,
		SweepInterval:      5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fx.arb.RunSweeper(ctx) }()

	_, err := fx.arb.CreateChallenge(context.Background(), 1, 2, 100)
	require.NoError(t, err)

	// Entries expire from the in-memory table after 3x the timeout.
	waitForCondition(t, func() bool {
		return fx.arb.ActiveChallengeCount() == 0
	}, time.Second, "sweeper should expire the stale challenge")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on cancel")
	}
}

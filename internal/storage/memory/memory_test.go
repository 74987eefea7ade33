package memory

import (
	"context"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/challenge"
	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/fight"
	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/user"
)

func newChallenge(opponentID int64, expiresAt time.Time) *challenge.Challenge {
	return &challenge.Challenge{
		ID:           uuid.New(),
		ChallengerID: 1,
		OpponentID:   opponentID,
		ChannelID:    100,
		Status:       challenge.StatusPending,
		ExpiresAt:    expiresAt,
	}
}

func TestChallengeRepositoryLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mock := quartz.NewMock(t)
	repo := NewChallengeRepository(mock)

	c := newChallenge(2, mock.Now().Add(time.Minute))
	require.NoError(t, repo.Create(ctx, c))

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, challenge.ErrNotFound)

	require.NoError(t, repo.UpdateStatus(ctx, c.ID, challenge.StatusAccepted))
	require.NoError(t, repo.SetType(ctx, c.ID, fight.TypeActivity))

	startsAt := mock.Now()
	require.NoError(t, repo.SetFightWindow(ctx, c.ID, &startsAt, nil))

	got, err = repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusAccepted, got.Status)
	require.NotNil(t, got.Type)
	assert.Equal(t, fight.TypeActivity, *got.Type)
	require.NotNil(t, got.FightStartsAt)
	assert.Nil(t, got.FightEndsAt, "nil window bounds leave the stored value unchanged")
}

func TestChallengeRepositoryGetReturnsCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewChallengeRepository(quartz.NewReal())

	c := newChallenge(2, time.Now().Add(time.Minute))
	require.NoError(t, repo.Create(ctx, c))

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	got.Status = challenge.StatusCancelled

	again, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusPending, again.Status, "mutating a returned record must not leak into the store")
}

func TestChallengeRepositoryListPending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mock := quartz.NewMock(t)
	repo := NewChallengeRepository(mock)

	now := mock.Now()
	live := newChallenge(2, now.Add(time.Minute))
	expired := newChallenge(2, now.Add(-time.Minute))
	otherOpponent := newChallenge(3, now.Add(time.Minute))
	accepted := newChallenge(2, now.Add(time.Minute))
	accepted.Status = challenge.StatusAccepted

	for _, c := range []*challenge.Challenge{live, expired, otherOpponent, accepted} {
		require.NoError(t, repo.Create(ctx, c))
	}

	pending, err := repo.ListPending(ctx, 2, now)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, live.ID, pending[0].ID)
}

func TestChallengeRepositoryExpireOlderThan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mock := quartz.NewMock(t)
	repo := NewChallengeRepository(mock)

	now := mock.Now()
	stale := newChallenge(2, now.Add(-time.Minute))
	fresh := newChallenge(3, now.Add(time.Minute))
	require.NoError(t, repo.Create(ctx, stale))
	require.NoError(t, repo.Create(ctx, fresh))

	count, err := repo.ExpireOlderThan(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := repo.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusExpired, got.Status)

	got, err = repo.GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusPending, got.Status)

	count, err = repo.ExpireOlderThan(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, count, "expiry only touches pending records")
}

func TestFightRepositoryMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewFightRepository(quartz.NewReal())

	f := &fight.Fight{
		ID:           uuid.New(),
		ChallengeID:  uuid.New(),
		Participant1: 1,
		Participant2: 2,
		Type:         fight.TypeActivity,
		StartedAt:    time.Now(),
	}
	require.NoError(t, repo.Create(ctx, f))

	m := fight.Metrics{PresenceSeconds: 30, ActiveSeconds: 15, AverageAmplitude: 4000}
	require.NoError(t, repo.UpdateMetrics(ctx, f.ID, 1, m))
	assert.ErrorIs(t, repo.UpdateMetrics(ctx, f.ID, 99, m), fight.ErrNotFound)

	got, err := repo.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, m, got.Metrics1)
	assert.Zero(t, got.Metrics2)
}

func TestFightRepositoryListByParticipant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewFightRepository(quartz.NewReal())

	base := time.Now()
	for i := 0; i < 3; i++ {
		f := &fight.Fight{
			ID:           uuid.New(),
			ChallengeID:  uuid.New(),
			Participant1: 1,
			Participant2: 2,
			Type:         fight.TypeTiming,
			StartedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repo.Create(ctx, f))
	}

	fights, err := repo.ListByParticipant(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, fights, 2)
	assert.True(t, fights[0].StartedAt.After(fights[1].StartedAt), "newest first")

	fights, err = repo.ListByParticipant(ctx, 99, 10)
	require.NoError(t, err)
	assert.Empty(t, fights)
}

func TestUserRepositoryIncrementCreatesRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewUserRepository(quartz.NewReal())

	require.NoError(t, repo.IncrementStats(ctx, 7, user.StatDelta{TotalFights: 1, Wins: 1}))
	require.NoError(t, repo.IncrementStats(ctx, 7, user.StatDelta{TotalFights: 1, Draws: 1}))

	u, err := repo.GetByID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, u.TotalFights)
	assert.Equal(t, 1, u.Wins)
	assert.Equal(t, 1, u.Draws)
	assert.True(t, u.AllowChallenges)
}

func TestUserRepositoryUpsert(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewUserRepository(quartz.NewReal())

	require.NoError(t, repo.Upsert(ctx, &user.User{ID: 1, Username: "alice", AllowChallenges: true}))
	require.NoError(t, repo.IncrementStats(ctx, 1, user.StatDelta{Wins: 1}))
	require.NoError(t, repo.Upsert(ctx, &user.User{ID: 1, Username: "alice2"}))

	u, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "alice2", u.Username)
	assert.Equal(t, 1, u.Wins, "upsert must not reset counters")

	_, err = repo.GetByID(ctx, 2)
	assert.ErrorIs(t, err, user.ErrNotFound)
}

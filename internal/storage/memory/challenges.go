package memory

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/challenge"
	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/fight"
)

// ChallengeRepository is a map-backed challenge.Repository.
type ChallengeRepository struct {
	clock quartz.Clock

	mu         sync.RWMutex
	challenges map[uuid.UUID]*challenge.Challenge
}

func NewChallengeRepository(clock quartz.Clock) *ChallengeRepository {
	return &ChallengeRepository{
		clock:      clock,
		challenges: make(map[uuid.UUID]*challenge.Challenge),
	}
}

func (r *ChallengeRepository) Create(_ context.Context, c *challenge.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *c
	r.challenges[c.ID] = &stored
	return nil
}

func (r *ChallengeRepository) GetByID(_ context.Context, id uuid.UUID) (*challenge.Challenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.challenges[id]
	if !ok {
		return nil, challenge.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *ChallengeRepository) UpdateStatus(_ context.Context, id uuid.UUID, status challenge.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.challenges[id]
	if !ok {
		return challenge.ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = r.clock.Now()
	return nil
}

func (r *ChallengeRepository) SetType(_ context.Context, id uuid.UUID, t fight.Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.challenges[id]
	if !ok {
		return challenge.ErrNotFound
	}
	c.Type = &t
	c.UpdatedAt = r.clock.Now()
	return nil
}

func (r *ChallengeRepository) SetFightWindow(_ context.Context, id uuid.UUID, startsAt, endsAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.challenges[id]
	if !ok {
		return challenge.ErrNotFound
	}
	if startsAt != nil {
		t := *startsAt
		c.FightStartsAt = &t
	}
	if endsAt != nil {
		t := *endsAt
		c.FightEndsAt = &t
	}
	c.UpdatedAt = r.clock.Now()
	return nil
}

func (r *ChallengeRepository) ListPending(_ context.Context, opponentID int64, now time.Time) ([]*challenge.Challenge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var pending []*challenge.Challenge
	for _, c := range r.challenges {
		if c.OpponentID != opponentID || c.Status != challenge.StatusPending {
			continue
		}
		if !c.ExpiresAt.After(now) {
			continue
		}
		copied := *c
		pending = append(pending, &copied)
	}
	return pending, nil
}

func (r *ChallengeRepository) ExpireOlderThan(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, c := range r.challenges {
		if c.Status != challenge.StatusPending || c.ExpiresAt.After(now) {
			continue
		}
		c.Status = challenge.StatusExpired
		c.UpdatedAt = r.clock.Now()
		count++
	}
	return count, nil
}

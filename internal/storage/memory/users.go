package memory

import (
	"context"
	"sync"

	"github.com/coder/quartz"

	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/user"
)

// UserRepository is a map-backed user.Repository.
type UserRepository struct {
	clock quartz.Clock

	mu    sync.RWMutex
	users map[int64]*user.User
}

func NewUserRepository(clock quartz.Clock) *UserRepository {
	return &UserRepository{
		clock: clock,
		users: make(map[int64]*user.User),
	}
}

func (r *UserRepository) Upsert(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()
	existing, ok := r.users[u.ID]
	if !ok {
		stored := *u
		stored.CreatedAt = now
		stored.UpdatedAt = now
		r.users[u.ID] = &stored
		return nil
	}
	existing.Username = u.Username
	existing.UpdatedAt = now
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id int64) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *UserRepository) IncrementStats(_ context.Context, id int64, delta user.StatDelta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock.Now()
	u, ok := r.users[id]
	if !ok {
		u = &user.User{ID: id, AllowChallenges: true, CreatedAt: now}
		r.users[id] = u
	}
	u.TotalChallenges += delta.TotalChallenges
	u.TotalFights += delta.TotalFights
	u.Wins += delta.Wins
	u.Losses += delta.Losses
	u.Draws += delta.Draws
	u.UpdatedAt = now
	return nil
}

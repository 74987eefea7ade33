package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/fight"
)

// FightRepository is a map-backed fight.Repository.
type FightRepository struct {
	clock quartz.Clock

	mu     sync.RWMutex
	fights map[uuid.UUID]*fight.Fight
}

func NewFightRepository(clock quartz.Clock) *FightRepository {
	return &FightRepository{
		clock:  clock,
		fights: make(map[uuid.UUID]*fight.Fight),
	}
}

func (r *FightRepository) Create(_ context.Context, f *fight.Fight) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *f
	r.fights[f.ID] = &stored
	return nil
}

func (r *FightRepository) GetByID(_ context.Context, id uuid.UUID) (*fight.Fight, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fights[id]
	if !ok {
		return nil, fight.ErrNotFound
	}
	copied := *f
	return &copied, nil
}

func (r *FightRepository) UpdateMetrics(_ context.Context, id uuid.UUID, participantID int64, m fight.Metrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.fights[id]
	if !ok {
		return fight.ErrNotFound
	}
	switch participantID {
	case f.Participant1:
		f.Metrics1 = m
	case f.Participant2:
		f.Metrics2 = m
	default:
		return fight.ErrNotFound
	}
	return nil
}

func (r *FightRepository) Finish(_ context.Context, id uuid.UUID, winnerID *int64, result1, result2 fight.Result, duration time.Duration, endedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.fights[id]
	if !ok {
		return false, fight.ErrNotFound
	}
	if f.EndedAt != nil {
		return false, nil
	}
	if winnerID != nil {
		w := *winnerID
		f.WinnerID = &w
	}
	f.Result1 = result1
	f.Result2 = result2
	f.Duration = duration
	ended := endedAt
	f.EndedAt = &ended
	return true, nil
}

func (r *FightRepository) ListByParticipant(_ context.Context, participantID int64, limit int) ([]*fight.Fight, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var fights []*fight.Fight
	for _, f := range r.fights {
		if f.Participant1 != participantID && f.Participant2 != participantID {
			continue
		}
		copied := *f
		fights = append(fights, &copied)
	}
	sort.Slice(fights, func(i, j int) bool {
		return fights[i].StartedAt.After(fights[j].StartedAt)
	})
	if limit > 0 && len(fights) > limit {
		fights = fights[:limit]
	}
	return fights, nil
}

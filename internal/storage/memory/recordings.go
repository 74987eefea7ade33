package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/recording"
)

// RecordingRepository is a map-backed recording.Repository.
type RecordingRepository struct {
	mu         sync.RWMutex
	recordings map[uuid.UUID]*recording.Recording
	byFight    map[uuid.UUID]uuid.UUID
}

func NewRecordingRepository() *RecordingRepository {
	return &RecordingRepository{
		recordings: make(map[uuid.UUID]*recording.Recording),
		byFight:    make(map[uuid.UUID]uuid.UUID),
	}
}

func (r *RecordingRepository) Create(_ context.Context, rec *recording.Recording) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *rec
	r.recordings[rec.ID] = &stored
	r.byFight[rec.FightID] = rec.ID
	return nil
}

func (r *RecordingRepository) GetByID(_ context.Context, id uuid.UUID) (*recording.Recording, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.recordings[id]
	if !ok {
		return nil, recording.ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

func (r *RecordingRepository) GetByFight(_ context.Context, fightID uuid.UUID) (*recording.Recording, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byFight[fightID]
	if !ok {
		return nil, recording.ErrNotFound
	}
	copied := *r.recordings[id]
	return &copied, nil
}

func (r *RecordingRepository) MarkStopped(_ context.Context, id uuid.UUID, duration time.Duration, stoppedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recordings[id]
	if !ok {
		return recording.ErrNotFound
	}
	rec.Duration = duration
	stopped := stoppedAt
	rec.StoppedAt = &stopped
	return nil
}

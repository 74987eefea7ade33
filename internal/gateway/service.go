package gateway

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ChiranjibKoch/ArchFairFight/internal/arbiter"
	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/challenge"
	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/fight"
	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/user"
	"github.com/ChiranjibKoch/ArchFairFight/internal/verdict"
)

// Service adapts the arbiter and repositories to gateway requests. It owns
// no state of its own; every operation delegates to the arbiter or reads
// from persistence.
type Service struct {
	arb        *arbiter.Arbiter
	challenges challenge.Repository
	fights     fight.Repository
	users      user.Repository
	judge      *verdict.Judge
}

// NewService wires a gateway service.
func NewService(arb *arbiter.Arbiter, challenges challenge.Repository, fights fight.Repository, users user.Repository, judge *verdict.Judge) *Service {
	return &Service{
		arb:        arb,
		challenges: challenges,
		fights:     fights,
		users:      users,
		judge:      judge,
	}
}

// RegisterUser upserts the user's identity record.
func (s *Service) RegisterUser(ctx context.Context, userID int64, username string) error {
	return s.users.Upsert(ctx, &user.User{
		ID:              userID,
		Username:        username,
		AllowChallenges: true,
	})
}

// CreateChallenge opens a challenge and returns its durable record.
func (s *Service) CreateChallenge(ctx context.Context, challengerID, opponentID, channelID int64) (*challenge.Challenge, error) {
	if challengerID == opponentID {
		return nil, fmt.Errorf("cannot challenge yourself")
	}

	opponent, err := s.users.GetByID(ctx, opponentID)
	if err == nil && !opponent.AllowChallenges {
		return nil, fmt.Errorf("user does not accept challenges")
	}

	id, err := s.arb.CreateChallenge(ctx, challengerID, opponentID, channelID)
	if err != nil {
		return nil, err
	}
	return s.challenges.GetByID(ctx, id)
}

// Respond records the opponent's accept or decline.
func (s *Service) Respond(ctx context.Context, id uuid.UUID, accept bool) error {
	return s.arb.RespondToChallenge(ctx, id, accept)
}

// SelectFightType parses and records the contest type.
func (s *Service) SelectFightType(ctx context.Context, id uuid.UUID, rawType string) error {
	t := fight.Type(rawType)
	if !t.Valid() {
		return fmt.Errorf("unknown fight type %q", rawType)
	}
	return s.arb.SelectFightType(ctx, id, t)
}

// StartFight schedules the fight's monitoring routine.
func (s *Service) StartFight(ctx context.Context, id uuid.UUID) error {
	return s.arb.StartFight(ctx, id)
}

// Cancel cancels an active challenge.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	return s.arb.CancelChallenge(ctx, id)
}

// SetMuted mutes or unmutes a participant in the challenge's live session.
func (s *Service) SetMuted(ctx context.Context, id uuid.UUID, userID int64, muted bool) error {
	return s.arb.SetParticipantMuted(ctx, id, userID, muted)
}

// ListPending returns unexpired challenges awaiting the user's response.
func (s *Service) ListPending(ctx context.Context, opponentID int64) ([]*challenge.Challenge, error) {
	return s.challenges.ListPending(ctx, opponentID, s.arb.Now())
}

// UserStats returns a user's aggregate counters.
func (s *Service) UserStats(ctx context.Context, userID int64) (*user.User, error) {
	return s.users.GetByID(ctx, userID)
}

// FightReport builds the post-fight report with confidence and quality
// assessment.
func (s *Service) FightReport(ctx context.Context, fightID uuid.UUID) (FightReportData, error) {
	f, err := s.fights.GetByID(ctx, fightID)
	if err != nil {
		return FightReportData{}, err
	}
	return FightReportFromDomain(f, s.judge), nil
}

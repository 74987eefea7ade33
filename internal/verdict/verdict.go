// Package verdict decides fight outcomes from sampled participant metrics.
// The decision functions are pure: they operate on immutable metric
// snapshots, know participants only as A and B, and never fail — malformed
// or missing signals count as zero.
package verdict

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/fight"
)

// Participant tags one side of a fight without reference to identity.
type Participant int

const (
	// ParticipantNone marks a draw or an undecidable fight.
	ParticipantNone Participant = 0
	ParticipantA    Participant = 1
	ParticipantB    Participant = 2
)

const (
	// Weighting of the activity score components.
	activeRatioWeight = 0.7
	amplitudeWeight   = 0.3
)

// Config holds the decision thresholds.
type Config struct {
	// TimingDrawSeconds is the presence-duration gap below which a timing
	// fight is a draw.
	TimingDrawSeconds float64
	// ActivityDrawThreshold is the score gap below which an activity
	// fight is a draw.
	ActivityDrawThreshold float64
	// AmplitudeScale normalizes average amplitude into roughly [0,1].
	AmplitudeScale float64
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		TimingDrawSeconds:     5,
		ActivityDrawThreshold: 0.1,
		AmplitudeScale:        10000,
	}
}

// Outcome pairs a winner tag with per-participant results. The pairing is
// always consistent: WIN/LOSS, LOSS/WIN or DRAW/DRAW.
type Outcome struct {
	Winner  Participant
	ResultA fight.Result
	ResultB fight.Result
}

// Judge evaluates fights of every contest type.
type Judge struct {
	cfg    Config
	logger zerolog.Logger
}

// NewJudge returns a judge with the given thresholds. Zero thresholds fall
// back to defaults.
func NewJudge(cfg Config, logger zerolog.Logger) *Judge {
	def := DefaultConfig()
	if cfg.TimingDrawSeconds <= 0 {
		cfg.TimingDrawSeconds = def.TimingDrawSeconds
	}
	if cfg.ActivityDrawThreshold <= 0 {
		cfg.ActivityDrawThreshold = def.ActivityDrawThreshold
	}
	if cfg.AmplitudeScale <= 0 {
		cfg.AmplitudeScale = def.AmplitudeScale
	}
	return &Judge{
		cfg:    cfg,
		logger: logger.With().Str("component", "verdict").Logger(),
	}
}

// Determine maps two metric snapshots and a contest type to an outcome.
// Unknown contest types yield a draw and log an error.
func (j *Judge) Determine(t fight.Type, a, b fight.Metrics) Outcome {
	switch t {
	case fight.TypeTiming:
		return j.determineTiming(a, b)
	case fight.TypeActivity:
		return j.determineActivity(a, b)
	default:
		j.logger.Error().Str("fight_type", string(t)).Msg("Unknown fight type, declaring draw")
		return draw()
	}
}

func (j *Judge) determineTiming(a, b fight.Metrics) Outcome {
	gap := math.Abs(a.PresenceSeconds - b.PresenceSeconds)
	if gap < j.cfg.TimingDrawSeconds {
		return draw()
	}
	if a.PresenceSeconds > b.PresenceSeconds {
		return winA()
	}
	return winB()
}

func (j *Judge) determineActivity(a, b fight.Metrics) Outcome {
	scoreA := j.ActivityScore(a)
	scoreB := j.ActivityScore(b)

	if math.Abs(scoreA-scoreB) < j.cfg.ActivityDrawThreshold {
		return draw()
	}
	if scoreA > scoreB {
		return winA()
	}
	return winB()
}

// ActivityScore computes the weighted engagement score for one metrics
// snapshot. Zero presence scores zero.
func (j *Judge) ActivityScore(m fight.Metrics) float64 {
	if m.PresenceSeconds <= 0 {
		return 0
	}
	activeRatio := m.ActiveSeconds / m.PresenceSeconds
	normalizedAmplitude := m.AverageAmplitude / j.cfg.AmplitudeScale
	return activeRatio*activeRatioWeight + normalizedAmplitude*amplitudeWeight
}

// Confidence maps the normalized score gap of an outcome into [0,1]. Draws
// report 0.5.
func (j *Judge) Confidence(o Outcome, a, b fight.Metrics) float64 {
	if o.Winner == ParticipantNone {
		return 0.5
	}
	scoreA := j.ActivityScore(a)
	scoreB := j.ActivityScore(b)
	total := scoreA + scoreB
	if total == 0 {
		return 0.5
	}
	return math.Min(math.Abs(scoreA-scoreB)/total*2, 1)
}

// Engagement classifications for QualityReport.
const (
	EngagementExcellent = "excellent"
	EngagementGood      = "good"
	EngagementFair      = "fair"
)

// QualityReport summarizes how engaging and evenly matched a fight was.
// It is informational only and never feeds back into the result.
type QualityReport struct {
	Engagement string  `json:"engagement"`
	Balance    float64 `json:"balance"`
}

// AssessQuality classifies total engagement and computes the balance ratio
// (min score over max score).
func (j *Judge) AssessQuality(a, b fight.Metrics) QualityReport {
	scoreA := j.ActivityScore(a)
	scoreB := j.ActivityScore(b)

	report := QualityReport{Engagement: EngagementFair}
	switch total := scoreA + scoreB; {
	case total > 1.5:
		report.Engagement = EngagementExcellent
	case total > 1.0:
		report.Engagement = EngagementGood
	}

	if scoreA+scoreB > 0 {
		report.Balance = math.Min(scoreA, scoreB) / math.Max(scoreA, scoreB)
	}
	return report
}

func draw() Outcome {
	return Outcome{Winner: ParticipantNone, ResultA: fight.ResultDraw, ResultB: fight.ResultDraw}
}

func winA() Outcome {
	return Outcome{Winner: ParticipantA, ResultA: fight.ResultWin, ResultB: fight.ResultLoss}
}

func winB() Outcome {
	return Outcome{Winner: ParticipantB, ResultA: fight.ResultLoss, ResultB: fight.ResultWin}
}

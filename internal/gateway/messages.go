package gateway

import (
	"encoding/json"
	"time"

	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/challenge"
	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/fight"
	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/user"
	"github.com/ChiranjibKoch/ArchFairFight/internal/verdict"
)

// MessageType identifies a WebSocket message.
type MessageType string

const (
	// Client to server messages
	MessageTypeAuth            MessageType = "auth"
	MessageTypeChallenge       MessageType = "challenge"
	MessageTypeRespond         MessageType = "respond"
	MessageTypeSelectFightType MessageType = "select_fight_type"
	MessageTypeStartFight      MessageType = "start_fight"
	MessageTypeCancel          MessageType = "cancel"
	MessageTypeMute            MessageType = "mute"
	MessageTypeUnmute          MessageType = "unmute"
	MessageTypeListPending     MessageType = "list_pending"
	MessageTypeStats           MessageType = "stats"
	MessageTypeFightResult     MessageType = "fight_result"

	// Server to client messages
	MessageTypeError            MessageType = "error"
	MessageTypeAuthResponse     MessageType = "auth_response"
	MessageTypeChallengeCreated MessageType = "challenge_created"
	MessageTypeResponded        MessageType = "responded"
	MessageTypeFightTypeSet     MessageType = "fight_type_set"
	MessageTypeFightStarted     MessageType = "fight_started"
	MessageTypeCancelled        MessageType = "cancelled"
	MessageTypeMuted            MessageType = "muted"
	MessageTypePendingList      MessageType = "pending_list"
	MessageTypeStatsResponse    MessageType = "stats_response"
	MessageTypeFightReport      MessageType = "fight_report"
)

func (mt MessageType) String() string {
	return string(mt)
}

// Message is the base WebSocket message structure.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a message with the current timestamp.
func NewMessage(messageType MessageType, data interface{}) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// Client → Server Messages

type AuthData struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username,omitempty"`
}

type ChallengeData struct {
	OpponentID int64 `json:"opponentId"`
	ChannelID  int64 `json:"channelId"`
}

type RespondData struct {
	ChallengeID string `json:"challengeId"`
	Accept      bool   `json:"accept"`
}

type SelectFightTypeData struct {
	ChallengeID string `json:"challengeId"`
	FightType   string `json:"fightType"`
}

type StartFightData struct {
	ChallengeID string `json:"challengeId"`
}

type CancelData struct {
	ChallengeID string `json:"challengeId"`
}

type MuteData struct {
	ChallengeID string `json:"challengeId"`
	UserID      int64  `json:"userId"`
}

type StatsData struct {
	UserID int64 `json:"userId,omitempty"`
}

type FightResultData struct {
	FightID string `json:"fightId"`
}

// Server → Client Messages

type AuthResponseData struct {
	Success bool  `json:"success"`
	UserID  int64 `json:"userId,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ChallengeCreatedData struct {
	ChallengeID string    `json:"challengeId"`
	OpponentID  int64     `json:"opponentId"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type RespondedData struct {
	ChallengeID string `json:"challengeId"`
	Accepted    bool   `json:"accepted"`
}

type FightTypeSetData struct {
	ChallengeID string `json:"challengeId"`
	FightType   string `json:"fightType"`
}

type FightStartedData struct {
	ChallengeID string `json:"challengeId"`
}

type CancelledData struct {
	ChallengeID string `json:"challengeId"`
}

type MutedData struct {
	ChallengeID string `json:"challengeId"`
	UserID      int64  `json:"userId"`
	Muted       bool   `json:"muted"`
}

type PendingChallengeInfo struct {
	ChallengeID  string    `json:"challengeId"`
	ChallengerID int64     `json:"challengerId"`
	ChannelID    int64     `json:"channelId"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type PendingListData struct {
	Challenges []PendingChallengeInfo `json:"challenges"`
}

type StatsResponseData struct {
	UserID          int64  `json:"userId"`
	Username        string `json:"username,omitempty"`
	TotalChallenges int    `json:"totalChallenges"`
	TotalFights     int    `json:"totalFights"`
	Wins            int    `json:"wins"`
	Losses          int    `json:"losses"`
	Draws           int    `json:"draws"`
}

type FightReportData struct {
	FightID      string     `json:"fightId"`
	FightType    string     `json:"fightType"`
	WinnerID     *int64     `json:"winnerId,omitempty"`
	Result1      string     `json:"participant1Result"`
	Result2      string     `json:"participant2Result"`
	DurationSecs float64    `json:"durationSeconds"`
	Confidence   float64    `json:"confidence"`
	Engagement   string     `json:"engagement"`
	Balance      float64    `json:"balance"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`
}

// Helper functions to convert internal types to message types

func PendingChallengeInfoFromDomain(c *challenge.Challenge) PendingChallengeInfo {
	return PendingChallengeInfo{
		ChallengeID:  c.ID.String(),
		ChallengerID: c.ChallengerID,
		ChannelID:    c.ChannelID,
		ExpiresAt:    c.ExpiresAt,
	}
}

func StatsResponseFromDomain(u *user.User) StatsResponseData {
	return StatsResponseData{
		UserID:          u.ID,
		Username:        u.Username,
		TotalChallenges: u.TotalChallenges,
		TotalFights:     u.TotalFights,
		Wins:            u.Wins,
		Losses:          u.Losses,
		Draws:           u.Draws,
	}
}

func FightReportFromDomain(f *fight.Fight, judge *verdict.Judge) FightReportData {
	outcome := verdict.Outcome{Winner: verdict.ParticipantNone}
	if f.WinnerID != nil {
		outcome.Winner = verdict.ParticipantB
		if *f.WinnerID == f.Participant1 {
			outcome.Winner = verdict.ParticipantA
		}
	}
	quality := judge.AssessQuality(f.Metrics1, f.Metrics2)
	return FightReportData{
		FightID:      f.ID.String(),
		FightType:    string(f.Type),
		WinnerID:     f.WinnerID,
		Result1:      string(f.Result1),
		Result2:      string(f.Result2),
		DurationSecs: f.Duration.Seconds(),
		Confidence:   judge.Confidence(outcome, f.Metrics1, f.Metrics2),
		Engagement:   quality.Engagement,
		Balance:      quality.Balance,
		EndedAt:      f.EndedAt,
	}
}

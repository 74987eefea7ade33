package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

var ErrConnectionClosed = websocket.ErrCloseSent

// Connection represents a WebSocket connection to a client.
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	userID    int64
	logger    *log.Logger
	service   *Service
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	closeOnce sync.Once
}

// NewConnection creates a new connection wrapper.
func NewConnection(conn *websocket.Conn, logger *log.Logger, service *Service) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:    conn,
		send:    make(chan *Message, 256),
		logger:  logger.WithPrefix("conn"),
		service: service,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins handling the connection.
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the connection.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// SendMessage queues a message for the client.
func (c *Connection) SendMessage(msg *Message) error {
	defer func() {
		if r := recover(); r != nil {
			// Channel was closed, expected during shutdown.
			c.logger.Debug("Attempted to send message on closed connection", "error", r)
		}
	}()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn("Connection send buffer full, closing connection")
		_ = c.Close()
		return ErrConnectionClosed
	}
}

// SetUser associates this connection with a user.
func (c *Connection) SetUser(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
}

// GetUser returns the associated user ID, zero when unauthenticated.
func (c *Connection) GetUser() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// readPump handles incoming messages from the client.
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			break
		}

		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// handleMessage dispatches incoming messages from the client.
func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type, "user", c.GetUser())

	switch msg.Type {
	case MessageTypeAuth:
		var data AuthData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse auth data")
			return
		}
		c.handleAuth(data)

	case MessageTypeChallenge:
		var data ChallengeData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse challenge data")
			return
		}
		c.handleChallenge(data)

	case MessageTypeRespond:
		var data RespondData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse respond data")
			return
		}
		c.handleRespond(data)

	case MessageTypeSelectFightType:
		var data SelectFightTypeData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse fight type data")
			return
		}
		c.handleSelectFightType(data)

	case MessageTypeStartFight:
		var data StartFightData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse start fight data")
			return
		}
		c.handleStartFight(data)

	case MessageTypeCancel:
		var data CancelData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse cancel data")
			return
		}
		c.handleCancel(data)

	case MessageTypeMute, MessageTypeUnmute:
		var data MuteData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse mute data")
			return
		}
		c.handleMute(data, msg.Type == MessageTypeMute)

	case MessageTypeListPending:
		c.handleListPending()

	case MessageTypeStats:
		var data StatsData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse stats data")
			return
		}
		c.handleStats(data)

	case MessageTypeFightResult:
		var data FightResultData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse fight result data")
			return
		}
		c.handleFightResult(data)

	default:
		c.sendError("unknown_message_type", "Unknown message type: "+msg.Type.String())
	}
}

// sendError sends an error message to the client.
func (c *Connection) sendError(code, message string) {
	errorMsg, err := NewMessage(MessageTypeError, ErrorData{
		Code:    code,
		Message: message,
	})
	if err != nil {
		c.logger.Error("Failed to create error message", "error", err)
		return
	}

	_ = c.SendMessage(errorMsg)
}

// authedUser returns the connection's user ID, sending an error and
// reporting false when the connection has not authenticated.
func (c *Connection) authedUser() (int64, bool) {
	userID := c.GetUser()
	if userID == 0 {
		c.sendError("not_authenticated", "Must authenticate first")
		return 0, false
	}
	return userID, true
}

func parseChallengeID(raw string) (uuid.UUID, error) {
	return uuid.Parse(raw)
}

func (c *Connection) handleAuth(data AuthData) {
	c.logger.Info("Auth request", "userId", data.UserID)

	if data.UserID == 0 {
		c.sendError("invalid_auth", "User ID required")
		return
	}

	if err := c.service.RegisterUser(c.ctx, data.UserID, data.Username); err != nil {
		c.sendError("auth_failed", err.Error())
		return
	}
	c.SetUser(data.UserID)

	response, _ := NewMessage(MessageTypeAuthResponse, AuthResponseData{
		Success: true,
		UserID:  data.UserID,
	})
	_ = c.SendMessage(response)
}

func (c *Connection) handleChallenge(data ChallengeData) {
	userID, ok := c.authedUser()
	if !ok {
		return
	}
	c.logger.Info("Challenge request", "challenger", userID, "opponent", data.OpponentID)

	ch, err := c.service.CreateChallenge(c.ctx, userID, data.OpponentID, data.ChannelID)
	if err != nil {
		c.sendError("challenge_failed", err.Error())
		return
	}

	response, _ := NewMessage(MessageTypeChallengeCreated, ChallengeCreatedData{
		ChallengeID: ch.ID.String(),
		OpponentID:  ch.OpponentID,
		ExpiresAt:   ch.ExpiresAt,
	})
	_ = c.SendMessage(response)
}

func (c *Connection) handleRespond(data RespondData) {
	if _, ok := c.authedUser(); !ok {
		return
	}
	id, err := parseChallengeID(data.ChallengeID)
	if err != nil {
		c.sendError("invalid_challenge_id", "Challenge ID must be a UUID")
		return
	}

	if err := c.service.Respond(c.ctx, id, data.Accept); err != nil {
		c.sendError("respond_failed", err.Error())
		return
	}

	response, _ := NewMessage(MessageTypeResponded, RespondedData{
		ChallengeID: data.ChallengeID,
		Accepted:    data.Accept,
	})
	_ = c.SendMessage(response)
}

func (c *Connection) handleSelectFightType(data SelectFightTypeData) {
	if _, ok := c.authedUser(); !ok {
		return
	}
	id, err := parseChallengeID(data.ChallengeID)
	if err != nil {
		c.sendError("invalid_challenge_id", "Challenge ID must be a UUID")
		return
	}

	if err := c.service.SelectFightType(c.ctx, id, data.FightType); err != nil {
		c.sendError("fight_type_failed", err.Error())
		return
	}

	response, _ := NewMessage(MessageTypeFightTypeSet, FightTypeSetData{
		ChallengeID: data.ChallengeID,
		FightType:   data.FightType,
	})
	_ = c.SendMessage(response)
}

func (c *Connection) handleStartFight(data StartFightData) {
	if _, ok := c.authedUser(); !ok {
		return
	}
	id, err := parseChallengeID(data.ChallengeID)
	if err != nil {
		c.sendError("invalid_challenge_id", "Challenge ID must be a UUID")
		return
	}

	if err := c.service.StartFight(c.ctx, id); err != nil {
		c.sendError("start_failed", err.Error())
		return
	}

	response, _ := NewMessage(MessageTypeFightStarted, FightStartedData{
		ChallengeID: data.ChallengeID,
	})
	_ = c.SendMessage(response)
}

func (c *Connection) handleCancel(data CancelData) {
	if _, ok := c.authedUser(); !ok {
		return
	}
	id, err := parseChallengeID(data.ChallengeID)
	if err != nil {
		c.sendError("invalid_challenge_id", "Challenge ID must be a UUID")
		return
	}

	if err := c.service.Cancel(c.ctx, id); err != nil {
		c.sendError("cancel_failed", err.Error())
		return
	}

	response, _ := NewMessage(MessageTypeCancelled, CancelledData{
		ChallengeID: data.ChallengeID,
	})
	_ = c.SendMessage(response)
}

func (c *Connection) handleMute(data MuteData, muted bool) {
	if _, ok := c.authedUser(); !ok {
		return
	}
	id, err := parseChallengeID(data.ChallengeID)
	if err != nil {
		c.sendError("invalid_challenge_id", "Challenge ID must be a UUID")
		return
	}

	if err := c.service.SetMuted(c.ctx, id, data.UserID, muted); err != nil {
		c.sendError("mute_failed", err.Error())
		return
	}

	response, _ := NewMessage(MessageTypeMuted, MutedData{
		ChallengeID: data.ChallengeID,
		UserID:      data.UserID,
		Muted:       muted,
	})
	_ = c.SendMessage(response)
}

func (c *Connection) handleListPending() {
	userID, ok := c.authedUser()
	if !ok {
		return
	}

	pending, err := c.service.ListPending(c.ctx, userID)
	if err != nil {
		c.sendError("list_failed", err.Error())
		return
	}

	infos := make([]PendingChallengeInfo, 0, len(pending))
	for _, ch := range pending {
		infos = append(infos, PendingChallengeInfoFromDomain(ch))
	}

	response, _ := NewMessage(MessageTypePendingList, PendingListData{Challenges: infos})
	_ = c.SendMessage(response)
}

func (c *Connection) handleStats(data StatsData) {
	userID, ok := c.authedUser()
	if !ok {
		return
	}
	// Default to the caller's own stats.
	if data.UserID != 0 {
		userID = data.UserID
	}

	u, err := c.service.UserStats(c.ctx, userID)
	if err != nil {
		c.sendError("stats_failed", err.Error())
		return
	}

	response, _ := NewMessage(MessageTypeStatsResponse, StatsResponseFromDomain(u))
	_ = c.SendMessage(response)
}

func (c *Connection) handleFightResult(data FightResultData) {
	if _, ok := c.authedUser(); !ok {
		return
	}
	id, err := uuid.Parse(data.FightID)
	if err != nil {
		c.sendError("invalid_fight_id", "Fight ID must be a UUID")
		return
	}

	report, err := c.service.FightReport(c.ctx, id)
	if err != nil {
		c.sendError("fight_result_failed", err.Error())
		return
	}

	response, _ := NewMessage(MessageTypeFightReport, report)
	_ = c.SendMessage(response)
}

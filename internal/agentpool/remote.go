package agentpool

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ChiranjibKoch/ArchFairFight/internal/domain/fight"
)

// Remote agent protocol operations.
const (
	opJoin       = "join"
	opLeave      = "leave"
	opSample     = "sample_metrics"
	opJoined     = "both_joined"
	opActive     = "both_active"
	opMute       = "mute"
	opUnmute     = "unmute"
	opShutdown   = "shutdown"
	callDeadline = 10 * time.Second
)

// agentRequest is one JSON request to a session-agent daemon.
type agentRequest struct {
	ID           uint64   `json:"id"`
	Op           string   `json:"op"`
	ChannelID    int64    `json:"channel_id,omitempty"`
	Participants [2]int64 `json:"participants,omitempty"`
	UserID       int64    `json:"user_id,omitempty"`
}

// agentResponse is the daemon's reply.
type agentResponse struct {
	ID      uint64                  `json:"id"`
	OK      bool                    `json:"ok"`
	Metrics map[int64]fight.Metrics `json:"metrics,omitempty"`
	Error   string                  `json:"error,omitempty"`
}

// RemoteAgent speaks the agent protocol over a WebSocket connection to a
// session-agent daemon. Calls are serialized: the arbiter drives at most
// one fight per agent, so request pipelining buys nothing.
type RemoteAgent struct {
	url    string
	logger zerolog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	seq  uint64
}

// DialRemoteAgent connects to a session-agent daemon.
func DialRemoteAgent(ctx context.Context, rawURL string, logger zerolog.Logger) (*RemoteAgent, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid agent URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		u.Scheme = "ws"
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to agent: %w", err)
	}

	return &RemoteAgent{
		url:    u.String(),
		logger: logger.With().Str("component", "remote_agent").Str("url", u.String()).Logger(),
		conn:   conn,
	}, nil
}

func (a *RemoteAgent) call(ctx context.Context, req agentRequest) (*agentResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.seq++
	req.ID = a.seq

	deadline := time.Now().Add(callDeadline)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := a.conn.SetWriteDeadline(deadline); err != nil {
		return nil, err
	}
	if err := a.conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("agent write failed: %w", err)
	}

	if err := a.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	for {
		var resp agentResponse
		if err := a.conn.ReadJSON(&resp); err != nil {
			return nil, fmt.Errorf("agent read failed: %w", err)
		}
		if resp.ID != req.ID {
			// Stale reply from an abandoned call; skip it.
			a.logger.Debug().Uint64("got", resp.ID).Uint64("want", req.ID).Msg("Discarding stale agent reply")
			continue
		}
		if resp.Error != "" {
			return &resp, fmt.Errorf("agent error: %s", resp.Error)
		}
		return &resp, nil
	}
}

// Join implements Agent.
func (a *RemoteAgent) Join(ctx context.Context, channelID int64, participants [2]int64) (bool, error) {
	resp, err := a.call(ctx, agentRequest{Op: opJoin, ChannelID: channelID, Participants: participants})
	if err != nil {
		return false, err
	}
	return resp.OK, nil
}

// Leave implements Agent.
func (a *RemoteAgent) Leave(ctx context.Context, channelID int64) (bool, error) {
	resp, err := a.call(ctx, agentRequest{Op: opLeave, ChannelID: channelID})
	if err != nil {
		return false, err
	}
	return resp.OK, nil
}

// SampleMetrics implements Agent.
func (a *RemoteAgent) SampleMetrics(ctx context.Context) (map[int64]fight.Metrics, error) {
	resp, err := a.call(ctx, agentRequest{Op: opSample})
	if err != nil {
		return nil, err
	}
	return resp.Metrics, nil
}

// BothJoined implements Agent.
func (a *RemoteAgent) BothJoined(ctx context.Context) (bool, error) {
	resp, err := a.call(ctx, agentRequest{Op: opJoined})
	if err != nil {
		return false, err
	}
	return resp.OK, nil
}

// BothStillActive implements Agent.
func (a *RemoteAgent) BothStillActive(ctx context.Context) (bool, error) {
	resp, err := a.call(ctx, agentRequest{Op: opActive})
	if err != nil {
		return false, err
	}
	return resp.OK, nil
}

// Mute implements Agent.
func (a *RemoteAgent) Mute(ctx context.Context, channelID, userID int64) error {
	_, err := a.call(ctx, agentRequest{Op: opMute, ChannelID: channelID, UserID: userID})
	return err
}

// Unmute implements Agent.
func (a *RemoteAgent) Unmute(ctx context.Context, channelID, userID int64) error {
	_, err := a.call(ctx, agentRequest{Op: opUnmute, ChannelID: channelID, UserID: userID})
	return err
}

// Close tells the daemon to shut down the link and closes the connection.
func (a *RemoteAgent) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, _ = a.call(ctx, agentRequest{Op: opShutdown})

	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return a.conn.Close()
}

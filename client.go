package main

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufSize    = 256
	maxNameLen     = 32
)

// Client represents a WebSocket connection. A connection may join at most
// one player but can issue read-only requests without joining.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	remoteAddr string
	limiter    *rate.Limiter
	log        *zap.Logger

	playerID string // set by join on this connection
	watching atomic.Bool
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		done:       make(chan struct{}),
		remoteAddr: remoteAddr,
		limiter:    rate.NewLimiter(hub.commandRate, hub.commandBurst),
		log:        hub.log.With(zap.String("remote", remoteAddr)),
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("ws read error", zap.Error(err))
			}
			break
		}
		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			// flush what was queued before shutdown, then say goodbye
		drain:
			for {
				select {
				case message := <-c.send:
					if c.write(message) != nil {
						return
					}
				default:
					break drain
				}
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			if err := c.write(message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(message []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	// 0xFF prefix marks binary frames from SendBinary
	if len(message) > 0 && message[0] == 0xFF {
		return c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
	}
	return c.conn.WriteMessage(websocket.TextMessage, message)
}

// close stops the writer. The send queue itself is never closed.
func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("marshal error", zap.Error(err))
		return
	}
	c.SendRaw(data)
}

// SendRaw sends pre-marshaled bytes as a text message to the client
func (c *Client) SendRaw(data []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message
func (c *Client) SendBinary(data []byte) {
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF
	copy(msg[1:], data)
	c.SendRaw(msg)
}

func (c *Client) reply(in InEnvelope, t string, data any) {
	c.SendJSON(Envelope{T: t, ID: in.ID, Data: data})
}

func (c *Client) replyErr(in InEnvelope, err error) {
	c.SendJSON(Envelope{T: MsgError, ID: in.ID, Data: toStatus(err)})
}

// handleMessage routes incoming messages (single-pass decode via InEnvelope)
func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.replyErr(env, statusErrorf(CodeInvalidArgument, "malformed message"))
		return
	}
	if !c.limiter.Allow() {
		c.replyErr(env, statusErrorf(CodeResourceExhausted, "rate limit exceeded"))
		return
	}

	switch env.T {
	case MsgJoin:
		c.handleJoin(env)
	case MsgProps:
		c.reply(env, MsgProps, PropsMsg{Entries: c.hub.game.Properties()})
	case MsgEntities:
		c.handleEntities(env)
	case MsgPlayers:
		c.handlePlayers(env)
	case MsgCommand:
		c.handleCommand(env)
	case MsgCommands:
		c.handleCommands(env)
	case MsgWatch:
		c.handleWatch(env)
	default:
		c.replyErr(env, statusErrorf(CodeInvalidArgument, "unknown message type %q", env.T))
	}
}

func (c *Client) handleJoin(env InEnvelope) {
	var msg JoinMsg
	if err := json.Unmarshal(env.D, &msg); err != nil {
		c.replyErr(env, statusErrorf(CodeInvalidArgument, "malformed join"))
		return
	}
	if c.playerID != "" {
		c.replyErr(env, statusErrorf(CodeAlreadyExists, "connection already joined as %q", c.playerID))
		return
	}
	if len(msg.Name) > maxNameLen {
		c.replyErr(env, statusErrorf(CodeInvalidArgument, "name longer than %d bytes", maxNameLen))
		return
	}

	game := c.hub.game
	player, err := game.JoinSession(msg.Name, msg.Password)
	if err != nil {
		c.log.Info("Join rejected", zap.String("name", msg.Name), zap.Error(err))
		c.replyErr(env, err)
		return
	}
	token, err := c.hub.auth.IssueToken(player.ID, player.Name, game.MatchID())
	if err != nil {
		c.log.Error("Token signing failed", zap.Error(err))
		c.replyErr(env, err)
		return
	}
	c.playerID = player.ID
	c.reply(env, MsgJoined, JoinedMsg{PlayerID: player.ID, MatchID: game.MatchID(), Token: token})
}

func (c *Client) handleEntities(env InEnvelope) {
	st, err := c.hub.game.EntityStatus()
	if err != nil {
		c.replyErr(env, err)
		return
	}
	c.reply(env, MsgEntities, st)
}

func (c *Client) handlePlayers(env InEnvelope) {
	st, err := c.hub.game.PlayerStatus()
	if err != nil {
		c.replyErr(env, err)
		return
	}
	c.reply(env, MsgPlayers, st)
}

// authorize resolves a command token to a player of the running match
func (c *Client) authorize(token string) (string, error) {
	pid, mid, err := c.hub.auth.ValidateToken(token)
	if err != nil {
		return "", statusErrorf(CodeUnauthenticated, "invalid token")
	}
	if mid != c.hub.game.MatchID() {
		return "", statusErrorf(CodeUnauthenticated, "token belongs to another match")
	}
	return pid, nil
}

func (c *Client) handleCommand(env InEnvelope) {
	var msg CommandMsg
	if err := json.Unmarshal(env.D, &msg); err != nil {
		c.replyErr(env, statusErrorf(CodeInvalidArgument, "malformed command"))
		return
	}
	c.submit(env, msg.Token, []CommandUnit{{SeekerID: msg.SeekerID, Target: msg.Target, Magnet: msg.Magnet}})
}

func (c *Client) handleCommands(env InEnvelope) {
	var msg CommandsMsg
	if err := json.Unmarshal(env.D, &msg); err != nil {
		c.replyErr(env, statusErrorf(CodeInvalidArgument, "malformed commands"))
		return
	}
	c.submit(env, msg.Token, msg.Units)
}

func (c *Client) submit(env InEnvelope, token string, units []CommandUnit) {
	pid, err := c.authorize(token)
	if err != nil {
		c.replyErr(env, err)
		return
	}
	if err := c.hub.game.Command(pid, units); err != nil {
		c.replyErr(env, err)
		return
	}
	c.reply(env, MsgAck, AckMsg{Applied: len(units)})
}

func (c *Client) handleWatch(env InEnvelope) {
	c.watching.Store(true)
	c.reply(env, MsgWatching, nil)
	if snap := c.hub.game.Snapshot(); snap != nil {
		if data, err := c.hub.encodeState(snap); err == nil {
			c.SendBinary(data)
		}
	}
}

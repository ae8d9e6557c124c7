package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const defaultPollInterval = 10 * time.Millisecond

// RemoteClient plays a match over the websocket protocol with a local
// DecideFunc. It is not safe for concurrent use.
type RemoteClient struct {
	conn *websocket.Conn
	log  *zap.Logger

	nextID   int64
	playerID string
	matchID  string
	token    string
	world    World
	lastTick int
	over     *MatchResult

	PollInterval time.Duration
}

// DialRemote connects to a host's websocket endpoint
func DialRemote(ctx context.Context, addr string, log *zap.Logger) (*RemoteClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &RemoteClient{
		conn:         conn,
		log:          log.Named("remote"),
		lastTick:     -1,
		PollInterval: defaultPollInterval,
	}, nil
}

// Close closes the connection
func (c *RemoteClient) Close() error {
	return c.conn.Close()
}

func (c *RemoteClient) PlayerID() string { return c.playerID }

// Result returns the final ranking once the game-over message was seen
func (c *RemoteClient) Result() *MatchResult { return c.over }

// call sends one request and waits for the reply carrying the same id.
// Broadcasts received in between are consumed.
func (c *RemoteClient) call(ctx context.Context, t string, req, out any) error {
	if c.over != nil {
		return ErrMatchOver
	}
	c.nextID++
	id := c.nextID
	if dl, ok := ctx.Deadline(); ok {
		c.conn.SetReadDeadline(dl)
		c.conn.SetWriteDeadline(dl)
	}
	if err := c.conn.WriteJSON(Envelope{T: t, ID: id, Data: req}); err != nil {
		return err
	}

	for {
		mt, raw, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if mt != websocket.TextMessage {
			continue
		}
		var env InEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("malformed reply: %w", err)
		}
		if env.T == MsgGameOver {
			var res MatchResult
			if err := json.Unmarshal(env.D, &res); err == nil {
				c.over = &res
			}
			return ErrMatchOver
		}
		if env.ID != id {
			continue
		}
		if env.T == MsgError {
			var se StatusError
			if err := json.Unmarshal(env.D, &se); err != nil {
				return fmt.Errorf("malformed error reply: %w", err)
			}
			return &se
		}
		if out == nil || len(env.D) == 0 {
			return nil
		}
		return json.Unmarshal(env.D, out)
	}
}

// Join takes a seat in the lobby and keeps the command token
func (c *RemoteClient) Join(ctx context.Context, name, password string) error {
	var joined JoinedMsg
	if err := c.call(ctx, MsgJoin, JoinMsg{Name: name, Password: password}, &joined); err != nil {
		return err
	}
	c.playerID = joined.PlayerID
	c.matchID = joined.MatchID
	c.token = joined.Token
	c.log.Info("Joined", zap.String("player_id", c.playerID), zap.String("match_id", c.matchID))
	return nil
}

// Properties fetches the engine configuration and remembers the world size
func (c *RemoteClient) Properties(ctx context.Context) (map[string]string, error) {
	var props PropsMsg
	if err := c.call(ctx, MsgProps, nil, &props); err != nil {
		return nil, err
	}
	w, errW := strconv.ParseFloat(props.Entries["map.width"], 64)
	h, errH := strconv.ParseFloat(props.Entries["map.height"], 64)
	if errW != nil || errH != nil {
		return nil, fmt.Errorf("invalid response: essential properties missing")
	}
	c.world = NewWorld(w, h)
	return props.Entries, nil
}

func (c *RemoteClient) Entities(ctx context.Context) (EntityStatus, error) {
	var st EntityStatus
	err := c.call(ctx, MsgEntities, nil, &st)
	return st, err
}

func (c *RemoteClient) Players(ctx context.Context) (PlayerStatus, error) {
	var st PlayerStatus
	err := c.call(ctx, MsgPlayers, nil, &st)
	return st, err
}

// SendCommands submits all units as one batch
func (c *RemoteClient) SendCommands(ctx context.Context, units []CommandUnit) error {
	return c.call(ctx, MsgCommands, CommandsMsg{Token: c.token, Units: units}, nil)
}

// awaitTick polls the entity status until elapsed_ticks changes
func (c *RemoteClient) awaitTick(ctx context.Context) (EntityStatus, error) {
	for {
		st, err := c.Entities(ctx)
		switch {
		case errors.Is(err, &StatusError{Code: CodeUnavailable}):
			// lobby still filling up
		case err != nil:
			return EntityStatus{}, err
		case st.ElapsedTicks != c.lastTick:
			if c.lastTick >= 0 && st.ElapsedTicks-c.lastTick > 1 {
				c.log.Debug("Missed ticks", zap.Int("missed", st.ElapsedTicks-c.lastTick-1))
			}
			c.lastTick = st.ElapsedTicks
			return st, nil
		}
		select {
		case <-ctx.Done():
			return EntityStatus{}, ctx.Err()
		case <-time.After(c.PollInterval):
		}
	}
}

// buildInput reassembles the agent view from the two status replies
func (c *RemoteClient) buildInput(ent EntityStatus, pl PlayerStatus) (*AgentInput, error) {
	me, ok := pl.Players[c.playerID]
	if !ok {
		return nil, fmt.Errorf("invalid response: own player %q missing", c.playerID)
	}
	in := &AgentInput{
		Tick:   ent.ElapsedTicks,
		World:  c.world,
		Me:     me,
		MyCamp: pl.Camps[me.CampID],
	}

	for _, id := range me.SeekerIDs {
		s, ok := ent.Seekers[id]
		if !ok {
			return nil, fmt.Errorf("invalid response: seeker %q missing", id)
		}
		in.MySeekers = append(in.MySeekers, s)
	}

	playerIDs := make([]string, 0, len(pl.Players))
	for id := range pl.Players {
		playerIDs = append(playerIDs, id)
	}
	sort.Strings(playerIDs)
	for _, id := range playerIDs {
		p := pl.Players[id]
		for _, sid := range p.SeekerIDs {
			s, ok := ent.Seekers[sid]
			if !ok {
				return nil, fmt.Errorf("invalid response: seeker %q missing", sid)
			}
			in.AllSeekers = append(in.AllSeekers, s)
			if id != c.playerID {
				in.OtherSeekers = append(in.OtherSeekers, s)
			}
		}
		if id != c.playerID {
			in.OtherPlayers = append(in.OtherPlayers, p)
		}
	}

	for _, g := range ent.Goals {
		in.Goals = append(in.Goals, g)
	}
	sort.Slice(in.Goals, func(i, j int) bool { return in.Goals[i].ID < in.Goals[j].ID })
	for _, cp := range pl.Camps {
		in.Camps = append(in.Camps, cp)
	}
	sort.Slice(in.Camps, func(i, j int) bool { return in.Camps[i].ID < in.Camps[j].ID })
	return in, nil
}

// Play runs decide once per observed tick until the match ends or ctx is
// cancelled. A game-over ends Play without error.
func (c *RemoteClient) Play(ctx context.Context, decide DecideFunc) error {
	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	if _, err := c.Properties(ctx); err != nil {
		return err
	}
	for {
		err := c.step(ctx, decide)
		if errors.Is(err, ErrMatchOver) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (c *RemoteClient) step(ctx context.Context, decide DecideFunc) error {
	ent, err := c.awaitTick(ctx)
	if err != nil {
		return err
	}
	pl, err := c.Players(ctx)
	if err != nil {
		return err
	}
	in, err := c.buildInput(ent, pl)
	if err != nil {
		return err
	}
	intents, err := decide(in)
	if err != nil {
		c.log.Warn("Decide failed", zap.Int("tick", in.Tick), zap.Error(err))
		return nil
	}
	if err := validateIntents(intents, len(in.MySeekers)); err != nil {
		c.log.Warn("Decide returned invalid intents", zap.Int("tick", in.Tick), zap.Error(err))
		return nil
	}
	units := make([]CommandUnit, len(intents))
	for i, it := range intents {
		units[i] = CommandUnit{SeekerID: in.MySeekers[i].ID, Target: it.Target, Magnet: it.Magnet}
	}
	err = c.SendCommands(ctx, units)
	if errors.Is(err, &StatusError{Code: CodeUnavailable}) {
		return ErrMatchOver
	}
	return err
}

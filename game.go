package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Broadcaster fans game events out to spectators
type Broadcaster interface {
	BroadcastState(snap *StatusSnapshot)
	BroadcastGameOver(res *MatchResult)
}

// ResultStore persists finished matches
type ResultStore interface {
	RecordMatch(ctx context.Context, res *MatchResult) error
}

// GameDeps are the optional collaborators of a Game. Nil fields are skipped.
type GameDeps struct {
	Logger      *zap.Logger
	Broadcaster Broadcaster
	Analytics   *Analytics
	Recorder    *Recorder
	Results     ResultStore
}

// CommandUnit is one remote control update for one seeker
type CommandUnit struct {
	SeekerID string  `json:"seeker_id"`
	Target   Vector  `json:"target"`
	Magnet   float64 `json:"magnet"`
}

// Game is one match: a lobby that fills up, then the tick loop. All entity
// state belongs to the goroutine running Run.
type Game struct {
	cfg   *Config
	deps  GameDeps
	log   *zap.Logger
	props map[string]string

	matchID string

	mu      sync.Mutex
	phase   MatchPhase
	players []*Player
	byName  map[string]*Player
	remotes map[string]*RemoteAgent
	locals  []*LocalAgent
	// seeker id -> player id, written once before PhasePlaying
	owners map[string]string

	startOnce sync.Once
	startCh   chan struct{}

	state  *State
	status atomic.Pointer[StatusSnapshot]
}

// NewGame creates a game in the lobby phase
func NewGame(cfg *Config, deps GameDeps) *Game {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &Game{
		cfg:     cfg,
		deps:    deps,
		log:     deps.Logger.Named("game").With(zap.String("match_id", id)),
		props:   cfg.Game.Properties(),
		matchID: id,
		byName:  make(map[string]*Player),
		remotes: make(map[string]*RemoteAgent),
		startCh: make(chan struct{}),
	}
}

func (g *Game) MatchID() string { return g.matchID }

// Phase returns the current lifecycle phase
func (g *Game) Phase() MatchPhase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

// PlayerCount returns the number of joined players
func (g *Game) PlayerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.players)
}

// JoinSession admits a remote player to the lobby
func (g *Game) JoinSession(name, password string) (*Player, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, statusErrorf(CodeInvalidArgument, "name must not be empty or only consist of whitespace")
	}
	if hash := g.cfg.Server.JoinPasswordHash; hash != "" && !CheckPassword(hash, password) {
		return nil, statusErrorf(CodeUnauthenticated, "wrong join password")
	}
	agent := NewRemoteAgent(g.cfg.Agent.RemoteTimeout, g.cfg.Game.Global.WaitForPlayers)
	p := NewPlayer(uuid.NewString(), name, KindRemote, agent)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.admitLocked(p); err != nil {
		return nil, err
	}
	g.remotes[p.ID] = agent
	return p, nil
}

// AddLocalPlayer admits an in-process player driven by decide
func (g *Game) AddLocalPlayer(name string, decide DecideFunc) (*Player, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, statusErrorf(CodeInvalidArgument, "name must not be empty or only consist of whitespace")
	}
	agent := NewLocalAgent(decide, g.cfg.Agent.LocalTimeout)
	p := NewPlayer(uuid.NewString(), name, KindLocal, agent)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.admitLocked(p); err != nil {
		return nil, err
	}
	g.locals = append(g.locals, agent)
	return p, nil
}

func (g *Game) admitLocked(p *Player) error {
	if g.phase != PhaseLobby {
		return statusWrap(CodeResourceExhausted, ErrAlreadyStarted)
	}
	if _, taken := g.byName[p.Name]; taken {
		return statusErrorf(CodeAlreadyExists, "name %q already taken", p.Name)
	}
	if len(g.players) >= g.cfg.Game.Global.Players {
		return statusErrorf(CodeResourceExhausted, "game is full")
	}
	g.players = append(g.players, p)
	g.byName[p.Name] = p

	g.log.Info("Player joined",
		zap.String("player_id", p.ID),
		zap.String("name", p.Name),
		zap.String("kind", string(p.Kind)),
		zap.Int("players", len(g.players)),
		zap.Int("capacity", g.cfg.Game.Global.Players))
	g.deps.Analytics.Track(EvtPlayerJoin, p.ID, g.matchID, map[string]any{"name": p.Name, "kind": p.Kind})

	if len(g.players) == g.cfg.Game.Global.Players {
		g.Start()
	}
	return nil
}

// Start lets Run leave the lobby with whoever has joined
func (g *Game) Start() {
	g.startOnce.Do(func() { close(g.startCh) })
}

// Properties returns the flattened game configuration
func (g *Game) Properties() map[string]string {
	return g.props
}

// EntityStatus returns seekers, goals and the elapsed tick count of the last tick
func (g *Game) EntityStatus() (EntityStatus, error) {
	snap := g.status.Load()
	if snap == nil {
		return EntityStatus{}, statusWrap(CodeUnavailable, ErrNotStarted)
	}
	return snap.Entities, nil
}

// PlayerStatus returns players and camps as of the last tick
func (g *Game) PlayerStatus() (PlayerStatus, error) {
	snap := g.status.Load()
	if snap == nil {
		return PlayerStatus{}, statusWrap(CodeUnavailable, ErrNotStarted)
	}
	return snap.Players, nil
}

// Snapshot returns the last published snapshot, nil before the start
func (g *Game) Snapshot() *StatusSnapshot {
	return g.status.Load()
}

// Command validates a batch of control updates from a remote player and
// hands it to that player's agent. The batch is applied all or nothing.
func (g *Game) Command(playerID string, units []CommandUnit) error {
	g.mu.Lock()
	phase := g.phase
	agent := g.remotes[playerID]
	g.mu.Unlock()

	switch {
	case phase == PhaseLobby:
		return statusWrap(CodeUnavailable, ErrNotStarted)
	case phase == PhaseFinished:
		return statusErrorf(CodeUnavailable, "game is over")
	case agent == nil:
		return statusErrorf(CodeUnauthenticated, "player %q is not a remote player of this game", playerID)
	}

	batch := make(map[string]SeekerIntent, len(units))
	for _, u := range units {
		owner, ok := g.owners[u.SeekerID]
		if !ok {
			return statusErrorf(CodeNotFound, "seeker %q not found in the game", u.SeekerID)
		}
		if owner != playerID {
			return statusErrorf(CodeUnauthenticated, "seeker %q is not owned by player %q", u.SeekerID, playerID)
		}
		if !u.Target.IsFinite() {
			return statusErrorf(CodeInvalidArgument, "target of seeker %q is not finite", u.SeekerID)
		}
		if !ValidMagnetStrength(u.Magnet) {
			return statusErrorf(CodeInvalidArgument, "magnet strength %v outside [%v, %v]", u.Magnet, MagnetMin, MagnetMax)
		}
		batch[u.SeekerID] = SeekerIntent{Target: u.Target, Magnet: u.Magnet}
	}
	agent.Submit(batch)
	return nil
}

// Run waits in the lobby until the game is full or Start is called, then
// drives the tick loop until the playtime is reached or ctx ends
func (g *Game) Run(ctx context.Context) (*MatchResult, error) {
	g.log.Info("Waiting for players", zap.Int("capacity", g.cfg.Game.Global.Players))
	select {
	case <-g.startCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	startedAt := time.Now().UTC()
	if err := g.begin(); err != nil {
		return nil, err
	}

	glob := g.cfg.Game.Global
	var frames <-chan time.Time
	if glob.FPS > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(glob.FPS))
		defer ticker.Stop()
		frames = ticker.C
	}

loop:
	for !g.timeUp() {
		if frames != nil {
			select {
			case <-ctx.Done():
				break loop
			case <-frames:
			}
		} else if ctx.Err() != nil {
			break loop
		}
		for range glob.Speed {
			if g.timeUp() {
				break
			}
			g.tick(ctx)
		}
		if g.deps.Broadcaster != nil {
			g.deps.Broadcaster.BroadcastState(g.status.Load())
		}
	}

	return g.finish(startedAt), nil
}

// begin spawns the world and leaves the lobby
func (g *Game) begin() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	state, err := NewState(g.cfg.Game, g.players)
	if err != nil {
		g.phase = PhaseFinished
		return err
	}
	g.state = state
	g.owners = make(map[string]string)
	for _, p := range g.players {
		for _, s := range p.Seekers {
			g.owners[s.ID] = p.ID
		}
	}
	g.status.Store(state.snapshot())
	g.phase = PhasePlaying

	g.log.Info("Match started",
		zap.Int("players", len(g.players)),
		zap.Int("goals", len(state.Goals)),
		zap.Int64("seed", g.cfg.Game.Global.Seed))
	g.deps.Analytics.Track(EvtMatchStart, "", g.matchID, map[string]any{"players": len(g.players)})
	g.deps.Recorder.RecordStart(g.matchID, g.cfg.Game)
	return nil
}

func (g *Game) timeUp() bool {
	pt := g.cfg.Game.Global.Playtime
	return pt > 0 && g.state.Tick >= pt
}

// tick gathers intents from every player, then advances the simulation
func (g *Game) tick(ctx context.Context) {
	s := g.state
	inputs := make([]*AgentInput, len(s.Players))
	for i, p := range s.Players {
		inputs[i] = s.agentInput(p)
	}
	results := collectIntents(ctx, s.Players, inputs, g.cfg.Agent.Concurrent)
	accepted, failures := acceptIntents(s.Players, results)
	for _, f := range failures {
		g.agentFailed(f)
	}

	events := s.Step(accepted)
	for _, ev := range events {
		g.log.Info("Goal scored",
			zap.Int("tick", ev.Tick),
			zap.String("player_id", ev.PlayerID),
			zap.String("goal_id", ev.GoalID),
			zap.String("new_goal_id", ev.NewGoalID))
		g.deps.Analytics.Track(EvtGoalScored, ev.PlayerID, g.matchID, map[string]any{
			"tick": ev.Tick, "goal_id": ev.GoalID, "camp_id": ev.CampID,
		})
	}

	snap := s.snapshot()
	g.status.Store(snap)
	if every := g.cfg.Replay.Every; every > 0 && s.Tick%every == 0 {
		g.deps.Recorder.RecordTick(snap)
	}
}

func (g *Game) agentFailed(f agentFailure) {
	if errors.Is(f.err, context.Canceled) || errors.Is(f.err, context.DeadlineExceeded) {
		return
	}
	evt := EvtAgentRejected
	if errors.Is(f.err, ErrAgentTimeout) || errors.Is(f.err, ErrAgentBusy) {
		evt = EvtAgentTimeout
	}
	g.log.Warn("Dropping agent intents for this tick",
		zap.Int("tick", g.state.Tick),
		zap.String("player_id", f.player.ID),
		zap.String("name", f.player.Name),
		zap.Error(f.err))
	g.deps.Analytics.Track(evt, f.player.ID, g.matchID, map[string]any{"tick": g.state.Tick, "error": f.err.Error()})
}

// finish ranks the players and hands the result to every collaborator
func (g *Game) finish(startedAt time.Time) *MatchResult {
	g.mu.Lock()
	g.phase = PhaseFinished
	locals := g.locals
	g.mu.Unlock()

	res := &MatchResult{
		MatchID:   g.matchID,
		Seed:      g.cfg.Game.Global.Seed,
		StartedAt: startedAt,
		EndedAt:   time.Now().UTC(),
		Ticks:     g.state.Tick,
		Scores:    g.state.Ranking(),
	}

	fields := []zap.Field{zap.Int("ticks", res.Ticks)}
	for _, s := range res.Scores {
		fields = append(fields, zap.Int(s.Name, s.Score))
	}
	g.log.Info("Match finished", fields...)

	if g.deps.Broadcaster != nil {
		g.deps.Broadcaster.BroadcastGameOver(res)
	}
	g.deps.Analytics.Track(EvtMatchEnd, "", g.matchID, map[string]any{"ticks": res.Ticks})
	g.deps.Recorder.RecordResult(res)

	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.Agent.LocalTimeout)
	defer cancel()
	if g.deps.Results != nil {
		if err := g.deps.Results.RecordMatch(ctx, res); err != nil {
			g.log.Error("Failed to record match result", zap.Error(err))
		}
	}
	for _, a := range locals {
		if err := a.Wait(ctx); err != nil {
			g.log.Warn("Local agent still running after match end", zap.Error(err))
			break
		}
	}
	return res
}

package main

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/crypto/bcrypt"
)

type recordingBroadcaster struct {
	mu       sync.Mutex
	states   []*StatusSnapshot
	gameOver []*MatchResult
}

func (b *recordingBroadcaster) BroadcastState(snap *StatusSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states = append(b.states, snap)
}

func (b *recordingBroadcaster) BroadcastGameOver(res *MatchResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gameOver = append(b.gameOver, res)
}

type memoryResults struct {
	mu      sync.Mutex
	results []*MatchResult
}

func (m *memoryResults) RecordMatch(_ context.Context, res *MatchResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, res)
	return nil
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Game.Global.FPS = 0
	cfg.Game.Global.Playtime = 50
	cfg.Agent.LocalTimeout = time.Second
	cfg.Agent.RemoteTimeout = time.Second
	return cfg
}

func requireCode(t *testing.T, err error, code Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, StatusCode(err), "error: %v", err)
	assert.True(t, errors.Is(err, &StatusError{Code: code}))
}

func TestJoinSessionErrors(t *testing.T) {
	g := NewGame(testConfig(), GameDeps{})

	_, err := g.JoinSession("   ", "")
	requireCode(t, err, CodeInvalidArgument)

	alice, err := g.JoinSession(" alice ", "")
	require.NoError(t, err)
	assert.Equal(t, "alice", alice.Name)
	assert.Equal(t, KindRemote, alice.Kind)

	_, err = g.JoinSession("alice", "")
	requireCode(t, err, CodeAlreadyExists)

	_, err = g.AddLocalPlayer("bot", decideNearestGoal)
	require.NoError(t, err)
	assert.Equal(t, 2, g.PlayerCount())

	_, err = g.JoinSession("carol", "")
	requireCode(t, err, CodeResourceExhausted)
}

func TestJoinSessionPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("letmein"), bcrypt.MinCost)
	require.NoError(t, err)
	cfg := testConfig()
	cfg.Server.JoinPasswordHash = string(hash)
	g := NewGame(cfg, GameDeps{})

	_, err = g.JoinSession("alice", "wrong")
	requireCode(t, err, CodeUnauthenticated)

	_, err = g.JoinSession("alice", "letmein")
	require.NoError(t, err)
}

func TestLobbyStartsWhenFull(t *testing.T) {
	g := NewGame(testConfig(), GameDeps{})
	_, err := g.JoinSession("alice", "")
	require.NoError(t, err)

	select {
	case <-g.startCh:
		t.Fatal("game started before the lobby was full")
	default:
	}

	_, err = g.AddLocalPlayer("bot", decideNearestGoal)
	require.NoError(t, err)
	select {
	case <-g.startCh:
	default:
		t.Fatal("full lobby should start the game")
	}
	// a second Start must not panic on the closed channel
	g.Start()
}

func TestStatusUnavailableBeforeStart(t *testing.T) {
	g := NewGame(testConfig(), GameDeps{})

	_, err := g.EntityStatus()
	requireCode(t, err, CodeUnavailable)
	assert.ErrorIs(t, err, ErrNotStarted)
	_, err = g.PlayerStatus()
	requireCode(t, err, CodeUnavailable)
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.Equal(t, ErrNotStarted.Error(), toStatus(err).Msg)
	assert.Nil(t, g.Snapshot())
	assert.Equal(t, PhaseLobby, g.Phase())
	assert.Equal(t, "768", g.Properties()["map.width"])
}

func TestCommandValidation(t *testing.T) {
	cfg := testConfig()
	cfg.Game.Global.WaitForPlayers = false
	g := NewGame(cfg, GameDeps{})
	alice, err := g.JoinSession("alice", "")
	require.NoError(t, err)
	bot, err := g.AddLocalPlayer("bot", decideNearestGoal)
	require.NoError(t, err)

	err = g.Command(alice.ID, nil)
	requireCode(t, err, CodeUnavailable)
	assert.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, g.begin())
	assert.Equal(t, PhasePlaying, g.Phase())

	mine := alice.Seekers[0].ID
	tests := []struct {
		name   string
		player string
		units  []CommandUnit
		code   Code
	}{
		{"unknown seeker", alice.ID, []CommandUnit{{SeekerID: "seeker-999"}}, CodeNotFound},
		{"foreign seeker", alice.ID, []CommandUnit{{SeekerID: bot.Seekers[0].ID}}, CodeUnauthenticated},
		{"local player", bot.ID, []CommandUnit{{SeekerID: bot.Seekers[0].ID}}, CodeUnauthenticated},
		{"unknown player", "ghost", []CommandUnit{{SeekerID: mine}}, CodeUnauthenticated},
		{"nan target", alice.ID, []CommandUnit{{SeekerID: mine, Target: Vector{math.NaN(), 1}}}, CodeInvalidArgument},
		{"magnet out of range", alice.ID, []CommandUnit{{SeekerID: mine, Magnet: 3}}, CodeInvalidArgument},
		{"partly invalid batch", alice.ID, []CommandUnit{
			{SeekerID: mine, Target: Vector{5, 5}},
			{SeekerID: "seeker-999"},
		}, CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireCode(t, g.Command(tt.player, tt.units), tt.code)
		})
	}

	agent := g.remotes[alice.ID]
	in := g.state.agentInput(alice)
	got, err := agent.NextIntents(context.Background(), in)
	require.NoError(t, err)
	assert.Nil(t, got, "rejected batches must not reach the agent")

	require.NoError(t, g.Command(alice.ID, []CommandUnit{{SeekerID: mine, Target: Vector{5, 5}, Magnet: -2}}))
	got, err = agent.NextIntents(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, got, len(alice.Seekers))
	assert.Equal(t, SeekerIntent{Target: Vector{5, 5}, Magnet: -2}, got[0])

	status, err := g.EntityStatus()
	require.NoError(t, err)
	assert.Equal(t, 0, status.ElapsedTicks)
	assert.Len(t, status.Seekers, 2*cfg.Game.Global.Seekers)
	players, err := g.PlayerStatus()
	require.NoError(t, err)
	assert.Len(t, players.Players, 2)
	assert.Len(t, players.Camps, 2)

	_, err = g.JoinSession("late", "")
	requireCode(t, err, CodeResourceExhausted)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestGameRunsToPlaytime(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := testConfig()
	bc := &recordingBroadcaster{}
	store := &memoryResults{}
	g := NewGame(cfg, GameDeps{Broadcaster: bc, Results: store})
	_, err := g.AddLocalPlayer("nearest", decideNearestGoal)
	require.NoError(t, err)
	_, err = g.AddLocalPlayer("carrier", decideMagnetCarrier)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := g.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, cfg.Game.Global.Playtime, res.Ticks)
	assert.Equal(t, g.MatchID(), res.MatchID)
	require.Len(t, res.Scores, 2)
	assert.Equal(t, 1, res.Scores[0].Rank)
	assert.Equal(t, 2, res.Scores[1].Rank)
	assert.GreaterOrEqual(t, res.Scores[0].Score, res.Scores[1].Score)
	assert.Equal(t, PhaseFinished, g.Phase())

	assert.Len(t, bc.states, cfg.Game.Global.Playtime)
	require.Len(t, bc.gameOver, 1)
	assert.Same(t, res, bc.gameOver[0])
	require.Len(t, store.results, 1)
	assert.Same(t, res, store.results[0])

	status, err := g.EntityStatus()
	require.NoError(t, err)
	assert.Equal(t, cfg.Game.Global.Playtime, status.ElapsedTicks)

	err = g.Command("anyone", nil)
	requireCode(t, err, CodeUnavailable)
	assert.NotErrorIs(t, err, ErrNotStarted)
}

func TestGameSpeedRunsSeveralTicksPerFrame(t *testing.T) {
	cfg := testConfig()
	cfg.Game.Global.Playtime = 10
	cfg.Game.Global.Speed = 4
	bc := &recordingBroadcaster{}
	g := NewGame(cfg, GameDeps{Broadcaster: bc})
	_, err := g.AddLocalPlayer("a", decideSpread)
	require.NoError(t, err)
	_, err = g.AddLocalPlayer("b", decideSpread)
	require.NoError(t, err)

	res, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, res.Ticks)
	assert.Len(t, bc.states, 3)
}

func TestGameStartWithPartialLobby(t *testing.T) {
	cfg := testConfig()
	cfg.Game.Global.Players = 3
	cfg.Game.Global.Playtime = 5
	g := NewGame(cfg, GameDeps{})
	_, err := g.AddLocalPlayer("solo", decideNearestGoal)
	require.NoError(t, err)
	g.Start()

	res, err := g.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Scores, 1)
	assert.Equal(t, "solo", res.Scores[0].Name)
}

func TestGameWithoutPlayersFails(t *testing.T) {
	g := NewGame(testConfig(), GameDeps{})
	g.Start()
	_, err := g.Run(context.Background())
	require.ErrorIs(t, err, ErrNoPlayers)
	assert.Equal(t, PhaseFinished, g.Phase())
}

func TestGameCancelledInLobby(t *testing.T) {
	g := NewGame(testConfig(), GameDeps{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := g.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

func TestSilentRemotePlayerDoesNotStallTheGame(t *testing.T) {
	cfg := testConfig()
	cfg.Game.Global.Playtime = 5
	cfg.Agent.RemoteTimeout = 10 * time.Millisecond
	g := NewGame(cfg, GameDeps{})
	_, err := g.JoinSession("silent", "")
	require.NoError(t, err)
	_, err = g.AddLocalPlayer("bot", decideNearestGoal)
	require.NoError(t, err)

	start := time.Now()
	res, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Ticks)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestBrokenLocalAgentOnlyLosesItsTick(t *testing.T) {
	cfg := testConfig()
	cfg.Game.Global.Playtime = 20
	g := NewGame(cfg, GameDeps{})
	broken, err := g.AddLocalPlayer("broken", func(*AgentInput) ([]SeekerIntent, error) {
		panic("bad bot")
	})
	require.NoError(t, err)
	_, err = g.AddLocalPlayer("short", func(in *AgentInput) ([]SeekerIntent, error) {
		return in.CurrentIntents()[:1], nil
	})
	require.NoError(t, err)

	res, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, res.Ticks)

	// same seed and player order spawn the same seekers
	fresh := newTestState(t, cfg.Game, "x", "y")
	for i, s := range broken.Seekers {
		assert.Equal(t, fresh.Players[0].Seekers[i].Position, s.Target, "broken agent must not steer")
	}
}

func TestMatchResultTable(t *testing.T) {
	res := &MatchResult{Scores: []ScoreLine{
		{Name: "alice", Score: 3, Rank: 1},
		{Name: "bob", Score: 1, Rank: 2},
	}}
	assert.Equal(t, "1. 3 P.\talice\n2. 1 P.\tbob\n", res.Table())

	w, ok := res.Winner()
	require.True(t, ok)
	assert.Equal(t, "alice", w.Name)

	_, ok = (&MatchResult{}).Winner()
	assert.False(t, ok)
	assert.Equal(t, "playing", PhasePlaying.String())
}

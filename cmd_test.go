package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func runRoot(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "seekers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestHashPasswordCommand(t *testing.T) {
	out, err := runRoot(t, context.Background(), "hash-password", "hunter22")
	require.NoError(t, err)
	hash := strings.TrimSpace(out)
	assert.True(t, CheckPassword(hash, "hunter22"))

	_, err = runRoot(t, context.Background(), "hash-password", "abc")
	assert.Error(t, err)
}

func TestConfigCommand(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "game:\n  global:\n    fps: 0\n    seed: 5\n")
	out, err := runRoot(t, context.Background(), "config", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "fps: 0")
	assert.Contains(t, out, "seed: 5")
	assert.Contains(t, out, "scoring_time: 150")
}

func TestServeCommandRecordsMatch(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "seekers.db")
	replayDir := filepath.Join(dir, "replays")
	path := writeConfig(t, dir, `
game:
  global:
    fps: 0
database:
  path: `+dbPath+`
replay:
  dir: `+replayDir+`
`)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	out, err := runRoot(t, ctx, "serve", "--config", path,
		"--addr", "127.0.0.1:0",
		"--bot", "nearest-goal", "--bot", "magnet-carrier",
		"--playtime", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "nearest-goal-1")
	assert.Contains(t, out, "magnet-carrier-2")

	db, err := OpenDB(dbPath)
	require.NoError(t, err)
	defer db.Close()
	board, err := db.GetLeaderboard(ctx, "matches", 10)
	require.NoError(t, err)
	assert.Len(t, board, 2)

	files, err := filepath.Glob(filepath.Join(replayDir, "match-*.jsonl.zst"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	out, err = runRoot(t, ctx, "replay", files[0])
	require.NoError(t, err)
	assert.Contains(t, out, "10 ticks recorded")
	assert.Contains(t, out, "1. ")
}

func TestServeCancelledInLobby(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Addr = "127.0.0.1:0"
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	res, err := runServe(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestServeRejectsUnknownBot(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Agent.Bots = []string{"nope"}
	_, err := runServe(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "unknown bot")
}

func TestDialWithRetryGivesUp(t *testing.T) {
	start := time.Now()
	_, err := dialWithRetry(context.Background(), "ws://127.0.0.1:1/ws", 2, zap.NewNop())
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

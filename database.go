package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// MatchRow represents a finished match
type MatchRow struct {
	ID        string    `json:"id"`
	Seed      int64     `json:"seed"`
	Ticks     int       `json:"ticks"`
	Winner    string    `json:"winner"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// MatchPlayerRow represents a player's result in a match
type MatchPlayerRow struct {
	MatchID  string `json:"match_id"`
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Rank     int    `json:"rank"`
	Score    int    `json:"score"`
}

// LeaderboardEntry represents one row in the leaderboard. Players are
// identified by display name across matches.
type LeaderboardEntry struct {
	Rank    int    `json:"rank"`
	Name    string `json:"name"`
	Matches int    `json:"matches"`
	Wins    int    `json:"wins"`
	Goals   int    `json:"goals"`
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; the analytics writer and match recording share it
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS matches (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL DEFAULT 0,
		ticks INTEGER NOT NULL DEFAULT 0,
		winner TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL,
		ended_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS match_players (
		match_id TEXT NOT NULL REFERENCES matches(id),
		player_id TEXT NOT NULL,
		name TEXT NOT NULL,
		rank INTEGER NOT NULL,
		score INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (match_id, player_id)
	);

	CREATE TABLE IF NOT EXISTS player_stats (
		name TEXT PRIMARY KEY,
		matches INTEGER NOT NULL DEFAULT 0,
		wins INTEGER NOT NULL DEFAULT 0,
		goals INTEGER NOT NULL DEFAULT 0,
		last_seen DATETIME
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS analytics_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		player_id TEXT,
		match_id TEXT,
		data TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_match_players_name ON match_players(name);
	CREATE INDEX IF NOT EXISTS idx_analytics_type ON analytics_events(event_type, created_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// winnerOf returns the sole top scorer's name, "" on a tie or an empty match
func winnerOf(res *MatchResult) string {
	s := res.Scores
	switch {
	case len(s) == 0:
		return ""
	case len(s) == 1 || s[0].Score > s[1].Score:
		return s[0].Name
	}
	return ""
}

// RecordMatch stores a finished match with its ranked players and folds it
// into the leaderboard, all in one transaction
func (db *DB) RecordMatch(ctx context.Context, res *MatchResult) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	winner := winnerOf(res)
	_, err = tx.ExecContext(ctx,
		"INSERT INTO matches (id, seed, ticks, winner, started_at, ended_at) VALUES (?, ?, ?, ?, ?, ?)",
		res.MatchID, res.Seed, res.Ticks, winner,
		res.StartedAt.Format(time.RFC3339Nano), res.EndedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}

	for _, s := range res.Scores {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO match_players (match_id, player_id, name, rank, score) VALUES (?, ?, ?, ?, ?)",
			res.MatchID, s.PlayerID, s.Name, s.Rank, s.Score,
		)
		if err != nil {
			return fmt.Errorf("insert match player: %w", err)
		}
		won := 0
		if s.Name == winner {
			won = 1
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO player_stats (name, matches, wins, goals, last_seen) VALUES (?, 1, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				matches = matches + 1,
				wins = wins + excluded.wins,
				goals = goals + excluded.goals,
				last_seen = excluded.last_seen`,
			s.Name, won, s.Score, res.EndedAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("update player stats: %w", err)
		}
	}
	return tx.Commit()
}

// GetMatch returns a match and its players ordered by rank, nil if unknown
func (db *DB) GetMatch(ctx context.Context, id string) (*MatchRow, []MatchPlayerRow, error) {
	m := &MatchRow{}
	var started, ended string
	err := db.conn.QueryRowContext(ctx,
		"SELECT id, seed, ticks, winner, started_at, ended_at FROM matches WHERE id = ?", id,
	).Scan(&m.ID, &m.Seed, &m.Ticks, &m.Winner, &started, &ended)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	m.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	m.EndedAt, _ = time.Parse(time.RFC3339Nano, ended)

	rows, err := db.conn.QueryContext(ctx,
		"SELECT match_id, player_id, name, rank, score FROM match_players WHERE match_id = ? ORDER BY rank", id)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var players []MatchPlayerRow
	for rows.Next() {
		var r MatchPlayerRow
		if err := rows.Scan(&r.MatchID, &r.PlayerID, &r.Name, &r.Rank, &r.Score); err != nil {
			return nil, nil, err
		}
		players = append(players, r)
	}
	return m, players, rows.Err()
}

// GetLeaderboard returns top players sorted by the given field
func (db *DB) GetLeaderboard(ctx context.Context, orderBy string, limit int) ([]LeaderboardEntry, error) {
	validCols := map[string]string{
		"wins": "wins DESC, goals DESC", "goals": "goals DESC, wins DESC", "matches": "matches DESC, wins DESC",
	}
	col, ok := validCols[orderBy]
	if !ok {
		col = validCols["wins"]
	}

	query := `SELECT name, matches, wins, goals FROM player_stats ORDER BY ` + col + `, name LIMIT ?`
	rows, err := db.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []LeaderboardEntry
	rank := 1
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.Name, &e.Matches, &e.Wins, &e.Goals); err != nil {
			return nil, err
		}
		e.Rank = rank
		rank++
		result = append(result, e)
	}
	return result, rows.Err()
}

// GetSetting returns a stored setting, "" if absent or on error
func (db *DB) GetSetting(key string) string {
	var v string
	if err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&v); err != nil {
		return ""
	}
	return v
}

// SetSetting stores or replaces a setting
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

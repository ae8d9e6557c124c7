package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Event types for analytics tracking
const (
	EvtMatchStart    = "match_start"
	EvtMatchEnd      = "match_end"
	EvtPlayerJoin    = "player_join"
	EvtGoalScored    = "goal_scored"
	EvtAgentTimeout  = "agent_timeout"
	EvtAgentRejected = "agent_rejected"
)

const (
	analyticsBuffer     = 1024
	analyticsBatchSize  = 50
	analyticsFlushEvery = 5 * time.Second
)

// AnalyticsEvent represents a single trackable event
type AnalyticsEvent struct {
	Type      string
	PlayerID  string
	MatchID   string
	Data      string // JSON metadata (optional)
	Timestamp time.Time
}

// Analytics handles event tracking with batched background writes. A nil
// *Analytics accepts and discards events.
type Analytics struct {
	db     *DB
	log    *zap.Logger
	events chan AnalyticsEvent
	stop   chan struct{}
	wg     sync.WaitGroup

	dropped atomic.Int64
}

// NewAnalytics creates and starts the analytics background writer
func NewAnalytics(db *DB, log *zap.Logger) *Analytics {
	a := &Analytics{
		db:     db,
		log:    log.Named("analytics"),
		events: make(chan AnalyticsEvent, analyticsBuffer),
		stop:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.writer()
	return a
}

// Track enqueues an event for async persistence (non-blocking)
func (a *Analytics) Track(evtType, playerID, matchID string, data any) {
	if a == nil {
		return
	}
	var payload string
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = string(b)
		}
	}
	select {
	case a.events <- AnalyticsEvent{
		Type:      evtType,
		PlayerID:  playerID,
		MatchID:   matchID,
		Data:      payload,
		Timestamp: time.Now().UTC(),
	}:
	default:
		// never block the tick loop
		a.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the buffer was full
func (a *Analytics) Dropped() int64 {
	if a == nil {
		return 0
	}
	return a.dropped.Load()
}

// Stop flushes pending events and shuts the writer down
func (a *Analytics) Stop() {
	if a == nil {
		return
	}
	close(a.stop)
	a.wg.Wait()
}

// writer is the background goroutine that batches and writes events to DB
func (a *Analytics) writer() {
	defer a.wg.Done()

	batch := make([]AnalyticsEvent, 0, 64)
	ticker := time.NewTicker(analyticsFlushEvery)
	defer ticker.Stop()

	for {
		select {
		case evt := <-a.events:
			batch = append(batch, evt)
			if len(batch) >= analyticsBatchSize {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-a.stop:
			for {
				select {
				case evt := <-a.events:
					batch = append(batch, evt)
				default:
					a.flush(batch)
					return
				}
			}
		}
	}
}

// flush writes a batch of events to the database
func (a *Analytics) flush(events []AnalyticsEvent) {
	if a.db == nil || len(events) == 0 {
		return
	}
	tx, err := a.db.conn.Begin()
	if err != nil {
		a.log.Error("Begin tx failed", zap.Error(err))
		return
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO analytics_events (event_type, player_id, match_id, data, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		a.log.Error("Prepare failed", zap.Error(err))
		return
	}
	defer stmt.Close()

	for _, evt := range events {
		pid := sql.NullString{String: evt.PlayerID, Valid: evt.PlayerID != ""}
		mid := sql.NullString{String: evt.MatchID, Valid: evt.MatchID != ""}
		data := sql.NullString{String: evt.Data, Valid: evt.Data != ""}
		if _, err := stmt.Exec(evt.Type, pid, mid, data, evt.Timestamp.Format(time.RFC3339Nano)); err != nil {
			a.log.Error("Insert failed", zap.String("event", evt.Type), zap.Error(err))
		}
	}
	if err := tx.Commit(); err != nil {
		a.log.Error("Commit failed", zap.Error(err))
	}
}

// EventCounts returns counts of each event type recorded for a match
func (a *Analytics) EventCounts(ctx context.Context, matchID string) (map[string]int, error) {
	if a == nil || a.db == nil {
		return nil, nil
	}
	rows, err := a.db.conn.QueryContext(ctx, `
		SELECT event_type, COUNT(*) FROM analytics_events
		WHERE match_id = ?
		GROUP BY event_type ORDER BY COUNT(*) DESC
	`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var evtType string
		var count int
		if err := rows.Scan(&evtType, &count); err != nil {
			return nil, err
		}
		result[evtType] = count
	}
	return result, rows.Err()
}

// AgentFailures returns, per player, how many ticks were lost to timeouts
// or rejected intents in a match
func (a *Analytics) AgentFailures(ctx context.Context, matchID string) (map[string]int, error) {
	if a == nil || a.db == nil {
		return nil, nil
	}
	rows, err := a.db.conn.QueryContext(ctx, `
		SELECT player_id, COUNT(*) FROM analytics_events
		WHERE match_id = ? AND event_type IN (?, ?) AND player_id IS NOT NULL
		GROUP BY player_id
	`, matchID, EvtAgentTimeout, EvtAgentRejected)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var pid string
		var count int
		if err := rows.Scan(&pid, &count); err != nil {
			return nil, err
		}
		result[pid] = count
	}
	return result, rows.Err()
}

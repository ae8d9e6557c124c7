package main

import (
	"fmt"
	"strings"
	"time"
)

// MatchPhase represents the lifecycle of a match
type MatchPhase int

const (
	PhaseLobby    MatchPhase = 0
	PhasePlaying  MatchPhase = 1
	PhaseFinished MatchPhase = 2
)

func (p MatchPhase) String() string {
	switch p {
	case PhaseLobby:
		return "lobby"
	case PhasePlaying:
		return "playing"
	case PhaseFinished:
		return "finished"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// MatchResult is what is left of a match once it is over
type MatchResult struct {
	MatchID   string      `json:"match_id"`
	Seed      int64       `json:"seed"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   time.Time   `json:"ended_at"`
	Ticks     int         `json:"ticks"`
	Scores    []ScoreLine `json:"scores"`
}

// Winner returns the top ranked line, or false when nobody played
func (r *MatchResult) Winner() (ScoreLine, bool) {
	if r == nil || len(r.Scores) == 0 {
		return ScoreLine{}, false
	}
	return r.Scores[0], true
}

// Table renders the ranked scores one player per line
func (r *MatchResult) Table() string {
	var b strings.Builder
	for _, s := range r.Scores {
		fmt.Fprintf(&b, "%d. %d P.\t%s\n", s.Rank, s.Score, s.Name)
	}
	return b.String()
}

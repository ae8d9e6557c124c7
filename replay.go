package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// ReplayEntry is one line of a replay file
type ReplayEntry struct {
	Kind    string           `json:"kind"` // start, tick or result
	MatchID string           `json:"match_id,omitempty"`
	Config  *GameConfig      `json:"config,omitempty"`
	Tick    int              `json:"tick,omitempty"`
	Seekers []SeekerView     `json:"seekers,omitempty"`
	Goals   []GoalView       `json:"goals,omitempty"`
	Scores  map[string]int   `json:"scores,omitempty"`
	Result  *MatchResult     `json:"result,omitempty"`
	Anims   []ScoreAnimation `json:"animations,omitempty"`
}

// Recorder writes a match as zstd compressed JSON lines, one file per match.
// A nil *Recorder records nothing.
type Recorder struct {
	dir string
	log *zap.Logger

	mu   sync.Mutex
	path string
	f    *os.File
	enc  *zstd.Encoder
	w    *bufio.Writer
}

func NewRecorder(dir string, log *zap.Logger) *Recorder {
	return &Recorder{dir: dir, log: log.Named("replay")}
}

// Path returns the file of the current match, "" before RecordStart
func (r *Recorder) Path() string {
	if r == nil {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// RecordStart opens the match file and writes the configuration header
func (r *Recorder) RecordStart(matchID string, cfg GameConfig) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.openLocked(matchID); err != nil {
		r.log.Error("Cannot open replay file", zap.Error(err))
		return
	}
	r.writeLocked(ReplayEntry{Kind: "start", MatchID: matchID, Config: &cfg})
}

// RecordTick appends the entity state of one tick
func (r *Recorder) RecordTick(snap *StatusSnapshot) {
	if r == nil || snap == nil {
		return
	}
	e := ReplayEntry{
		Kind:    "tick",
		Tick:    snap.Entities.ElapsedTicks,
		Seekers: make([]SeekerView, 0, len(snap.Entities.Seekers)),
		Goals:   make([]GoalView, 0, len(snap.Entities.Goals)),
		Scores:  make(map[string]int, len(snap.Players.Players)),
		Anims:   snap.Animations,
	}
	for _, s := range snap.Entities.Seekers {
		e.Seekers = append(e.Seekers, s)
	}
	for _, g := range snap.Entities.Goals {
		e.Goals = append(e.Goals, g)
	}
	sort.Slice(e.Seekers, func(i, j int) bool { return e.Seekers[i].ID < e.Seekers[j].ID })
	sort.Slice(e.Goals, func(i, j int) bool { return e.Goals[i].ID < e.Goals[j].ID })
	for id, p := range snap.Players.Players {
		e.Scores[id] = p.Score
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeLocked(e)
}

// RecordResult appends the final ranking and flushes
func (r *Recorder) RecordResult(res *MatchResult) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeLocked(ReplayEntry{Kind: "result", MatchID: res.MatchID, Result: res})
	if r.w != nil {
		if err := r.w.Flush(); err != nil {
			r.log.Error("Replay flush failed", zap.Error(err))
		}
	}
}

// Close flushes and closes the current file
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

func (r *Recorder) openLocked(matchID string) error {
	if err := r.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(r.dir, fmt.Sprintf("match-%s.jsonl.zst", matchID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	r.path = path
	r.f = f
	r.enc = enc
	r.w = bufio.NewWriterSize(enc, 128*1024)
	return nil
}

func (r *Recorder) writeLocked(e ReplayEntry) {
	if r.w == nil {
		return
	}
	b, err := json.Marshal(e)
	if err != nil {
		r.log.Error("Replay encode failed", zap.Error(err))
		return
	}
	b = append(b, '\n')
	if _, err := r.w.Write(b); err != nil {
		r.log.Error("Replay write failed", zap.Error(err))
	}
}

func (r *Recorder) closeLocked() error {
	var err error
	if r.w != nil {
		err = r.w.Flush()
	}
	if r.enc != nil {
		if cerr := r.enc.Close(); err == nil {
			err = cerr
		}
		r.enc = nil
	}
	if r.f != nil {
		if cerr := r.f.Close(); err == nil {
			err = cerr
		}
		r.f = nil
	}
	r.w = nil
	return err
}

// ReadReplay decodes a replay file, calling fn for every entry in order
func ReadReplay(path string, fn func(ReplayEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	jd := json.NewDecoder(dec)
	for {
		var e ReplayEntry
		if err := jd.Decode(&e); err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("decode replay entry: %w", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

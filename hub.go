package main

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Hub tracks connected clients, enforces connection limits and fans game
// broadcasts out to them. It implements Broadcaster.
type Hub struct {
	game  *Game
	auth  *Auth
	world World
	log   *zap.Logger

	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{} // closed when Run returns

	// Connection limiting (mutex-protected, accessed from HTTP handlers)
	connMu        sync.Mutex
	ipConns       map[string]int
	totalConns    int
	maxConnsPerIP int
	maxTotalConns int

	commandRate  rate.Limit
	commandBurst int
}

// NewHub creates a hub serving game
func NewHub(game *Game, auth *Auth, cfg *Config, log *zap.Logger) *Hub {
	return &Hub{
		game:          game,
		auth:          auth,
		world:         NewWorld(cfg.Game.Map.Width, cfg.Game.Map.Height),
		log:           log.Named("hub"),
		clients:       make(map[*Client]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client, 64),
		done:          make(chan struct{}),
		ipConns:       make(map[string]int),
		maxConnsPerIP: cfg.Server.MaxConnsPerIP,
		maxTotalConns: cfg.Server.MaxTotalConns,
		commandRate:   rate.Limit(cfg.Server.CommandRate),
		commandBurst:  cfg.Server.CommandBurst,
	}
}

// SetGame attaches the game. It must be called before the hub serves
// connections, since the game and the hub reference each other.
func (h *Hub) SetGame(g *Game) {
	h.game = g
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= h.maxTotalConns {
		return false
	}
	if h.ipConns[ip] >= h.maxConnsPerIP {
		return false
	}
	return true
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// Register adds a client. After shutdown the client is closed instead.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.close()
	}
}

// Unregister removes a client. It never blocks once the hub has stopped.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Done is closed once Run has returned
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Run processes register/unregister events until ctx ends, then closes
// every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, client)
			h.mu.Unlock()
			client.close()

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.close()
			}
			h.mu.Unlock()
			return
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}

// encodeState turns a snapshot into the msgpack spectator frame. Entities
// are sorted by id so equal states encode identically.
func (h *Hub) encodeState(snap *StatusSnapshot) ([]byte, error) {
	f := StateFrame{
		T:          MsgState,
		Tick:       snap.Entities.ElapsedTicks,
		World:      h.world,
		Seekers:    make([]SeekerView, 0, len(snap.Entities.Seekers)),
		Goals:      make([]GoalView, 0, len(snap.Entities.Goals)),
		Players:    make([]PlayerView, 0, len(snap.Players.Players)),
		Camps:      make([]CampView, 0, len(snap.Players.Camps)),
		Animations: snap.Animations,
	}
	for _, s := range snap.Entities.Seekers {
		f.Seekers = append(f.Seekers, s)
	}
	for _, g := range snap.Entities.Goals {
		f.Goals = append(f.Goals, g)
	}
	for _, p := range snap.Players.Players {
		f.Players = append(f.Players, p)
	}
	for _, c := range snap.Players.Camps {
		f.Camps = append(f.Camps, c)
	}
	sort.Slice(f.Seekers, func(i, j int) bool { return f.Seekers[i].ID < f.Seekers[j].ID })
	sort.Slice(f.Goals, func(i, j int) bool { return f.Goals[i].ID < f.Goals[j].ID })
	sort.Slice(f.Players, func(i, j int) bool { return f.Players[i].ID < f.Players[j].ID })
	sort.Slice(f.Camps, func(i, j int) bool { return f.Camps[i].ID < f.Camps[j].ID })
	return msgpack.Marshal(&f)
}

// BroadcastState sends the snapshot to every watching client
func (h *Hub) BroadcastState(snap *StatusSnapshot) {
	if snap == nil {
		return
	}
	data, err := h.encodeState(snap)
	if err != nil {
		h.log.Error("Encode state failed", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.watching.Load() {
			c.SendBinary(data)
		}
	}
}

// BroadcastGameOver sends the final ranking to every connected client
func (h *Hub) BroadcastGameOver(res *MatchResult) {
	data, err := json.Marshal(Envelope{T: MsgGameOver, Data: res})
	if err != nil {
		h.log.Error("Encode game over failed", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.SendRaw(data)
	}
}

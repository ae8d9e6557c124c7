package main

// PlayerKind tells how a player's intents are produced
type PlayerKind string

const (
	KindLocal  PlayerKind = "local"
	KindRemote PlayerKind = "remote"
)

// Player owns seekers and a camp and accumulates score
type Player struct {
	ID    string
	Name  string
	Color string
	Kind  PlayerKind
	Score int

	// Seekers keeps spawn order; agents receive and return intents in this order.
	Seekers     []*Seeker
	seekersByID map[string]*Seeker
	Camp        *Camp

	agent IntentSource
}

// NewPlayer creates a player without seekers or camp
func NewPlayer(id, name string, kind PlayerKind, agent IntentSource) *Player {
	return &Player{
		ID:          id,
		Name:        name,
		Color:       NameColor(name),
		Kind:        kind,
		seekersByID: make(map[string]*Seeker),
		agent:       agent,
	}
}

// AddSeeker appends a seeker to the player's owned collection
func (p *Player) AddSeeker(s *Seeker) {
	p.Seekers = append(p.Seekers, s)
	p.seekersByID[s.ID] = s
}

// Seeker looks up an owned seeker by id
func (p *Player) Seeker(id string) (*Seeker, bool) {
	s, ok := p.seekersByID[id]
	return s, ok
}

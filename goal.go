package main

// Goal is a neutral entity that scores for a player when held in their camp
type Goal struct {
	Physical
	// Owner is the id of the camp that currently holds the goal, "" if none
	Owner    string
	OwnedFor int
}

// NewGoal creates a goal at rest
func NewGoal(id string, pos Vector, cfg GoalConfig) *Goal {
	return &Goal{
		Physical: Physical{
			ID:         id,
			Position:   pos,
			Mass:       cfg.Mass,
			Radius:     cfg.Radius,
			Friction:   cfg.Friction,
			BaseThrust: cfg.MaxSpeed * cfg.Friction,
		},
	}
}

// Move advances the goal one tick under the given net magnetic force
func (g *Goal) Move(w World, force Vector) {
	g.integrate(w, force, g.BaseThrust)
}

// CampTick updates ownership against the first camp in camps containing the
// goal and returns that camp once the goal has been held for scoringTime
// ticks. A goal outside every camp loses its owner and counter.
func (g *Goal) CampTick(camps []*Camp, scoringTime int) *Camp {
	for _, c := range camps {
		if !c.Contains(g.Position) {
			continue
		}
		if g.Owner == c.ID {
			g.OwnedFor++
		} else {
			g.Owner = c.ID
			g.OwnedFor = 0
		}
		if g.OwnedFor >= scoringTime {
			return c
		}
		return nil
	}
	g.Owner = ""
	g.OwnedFor = 0
	return nil
}

// Respawn moves the goal to pos under a fresh id, at rest and unowned
func (g *Goal) Respawn(id string, pos Vector) {
	g.ID = id
	g.Position = pos
	g.Velocity = Vector{}
	g.Acceleration = Vector{}
	g.Owner = ""
	g.OwnedFor = 0
}

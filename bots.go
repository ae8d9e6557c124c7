package main

import (
	"fmt"
	"slices"
	"sort"
)

// bots are the built-in decision functions, by name
var bots = map[string]DecideFunc{
	"nearest-goal":   decideNearestGoal,
	"spread":         decideSpread,
	"magnet-carrier": decideMagnetCarrier,
}

// BotNames lists the registered bots in a stable order
func BotNames() []string {
	names := make([]string, 0, len(bots))
	for n := range bots {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// LookupBot returns the decision function registered under name
func LookupBot(name string) (DecideFunc, error) {
	d, ok := bots[name]
	if !ok {
		return nil, fmt.Errorf("unknown bot %q (have %v)", name, BotNames())
	}
	return d, nil
}

func goalPositions(goals []GoalView) []Vector {
	out := make([]Vector, len(goals))
	for i, g := range goals {
		out[i] = g.Position
	}
	return out
}

// decideNearestGoal sends every seeker to the goal closest to it
func decideNearestGoal(in *AgentInput) ([]SeekerIntent, error) {
	out := in.CurrentIntents()
	if len(in.Goals) == 0 {
		return out, nil
	}
	positions := goalPositions(in.Goals)
	for i, s := range in.MySeekers {
		j := in.World.IndexOfNearest(s.Position, positions)
		out[i] = SeekerIntent{Target: positions[j]}
	}
	return out, nil
}

// decideSpread assigns goals round robin and pulls them with the magnet
func decideSpread(in *AgentInput) ([]SeekerIntent, error) {
	out := in.CurrentIntents()
	if len(in.Goals) == 0 {
		return out, nil
	}
	for i := range in.MySeekers {
		out[i] = SeekerIntent{Target: in.Goals[i%len(in.Goals)].Position, Magnet: MagnetMax}
	}
	return out, nil
}

// carryDistance is how close a seeker has to be before it starts dragging its goal home
const carryDistance = 40

// decideMagnetCarrier chases a goal with the magnet off and, once close,
// switches the magnet on and heads for the own camp
func decideMagnetCarrier(in *AgentInput) ([]SeekerIntent, error) {
	out := in.CurrentIntents()
	if len(in.Goals) == 0 {
		return out, nil
	}
	// goals already in our camp are left alone
	free := slices.DeleteFunc(slices.Clone(in.Goals), func(g GoalView) bool {
		return g.Owner != "" && g.Owner == in.MyCamp.ID
	})
	if len(free) == 0 {
		free = in.Goals
	}
	for i, s := range in.MySeekers {
		g := free[i%len(free)]
		if in.World.TorusDistance(g.Position, s.Position) < carryDistance {
			out[i] = SeekerIntent{Target: in.MyCamp.Position, Magnet: MagnetMax}
		} else {
			out[i] = SeekerIntent{Target: g.Position}
		}
	}
	return out, nil
}

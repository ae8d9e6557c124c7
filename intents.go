package main

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

type agentResult struct {
	intents []SeekerIntent
	err     error
}

// collectIntents asks every player's intent source for its next intents and
// returns once all of them have answered or failed. results[i] belongs to
// players[i]. Per-agent failures never fail the group.
func collectIntents(ctx context.Context, players []*Player, inputs []*AgentInput, concurrent bool) []agentResult {
	results := make([]agentResult, len(players))
	fetch := func(i int) {
		if players[i].agent == nil {
			return
		}
		intents, err := players[i].agent.NextIntents(ctx, inputs[i])
		results[i] = agentResult{intents: intents, err: err}
	}

	if !concurrent {
		for i := range players {
			fetch(i)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(max(1, len(players)))
	for i := range players {
		g.Go(func() error {
			fetch(i)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// validateIntents checks a whole intent set against the player's seeker
// count. Any bad element rejects the set.
func validateIntents(intents []SeekerIntent, seekers int) error {
	if len(intents) != seekers {
		return fmt.Errorf("%w: got %d intents for %d seekers", ErrInvalidIntents, len(intents), seekers)
	}
	for i, it := range intents {
		if !it.Target.IsFinite() {
			return fmt.Errorf("%w: seeker %d: target %v is not finite", ErrInvalidIntents, i, it.Target)
		}
		if !ValidMagnetStrength(it.Magnet) {
			return fmt.Errorf("%w: seeker %d: magnet strength %v outside [%v, %v]",
				ErrInvalidIntents, i, it.Magnet, MagnetMin, MagnetMax)
		}
	}
	return nil
}

// applyIntents copies target and magnet onto the player's seekers. Nothing
// else is agent writable.
func applyIntents(w World, p *Player, intents []SeekerIntent) {
	for i, s := range p.Seekers {
		s.Target = w.Normalize(intents[i].Target)
		s.Magnet = Magnet{Strength: intents[i].Magnet}
	}
}

// agentFailure records why a player's intents were dropped for a tick
type agentFailure struct {
	player *Player
	err    error
}

// acceptIntents validates collected results. Failed or invalid entries come
// back as nil intents, which keep the previous control state.
func acceptIntents(players []*Player, results []agentResult) ([][]SeekerIntent, []agentFailure) {
	accepted := make([][]SeekerIntent, len(players))
	var failures []agentFailure
	for i, p := range players {
		r := results[i]
		if r.err != nil {
			failures = append(failures, agentFailure{player: p, err: r.err})
			continue
		}
		if r.intents == nil {
			continue
		}
		if err := validateIntents(r.intents, len(p.Seekers)); err != nil {
			failures = append(failures, agentFailure{player: p, err: err})
			continue
		}
		accepted[i] = r.intents
	}
	return accepted, failures
}

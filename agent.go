package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// IntentSource produces one player's intents for a tick. It is called from
// the tick loop with a private AgentInput and must respect ctx.
type IntentSource interface {
	NextIntents(ctx context.Context, in *AgentInput) ([]SeekerIntent, error)
}

// DecideFunc is the decision contract for in-process agents. It must return
// one intent per own seeker, in the order of in.MySeekers.
type DecideFunc func(in *AgentInput) ([]SeekerIntent, error)

// LocalAgent runs a DecideFunc in its own goroutine so a slow or broken
// function can only cost its own player the tick
type LocalAgent struct {
	decide  DecideFunc
	timeout time.Duration

	busy atomic.Bool
	wg   sync.WaitGroup
}

func NewLocalAgent(decide DecideFunc, timeout time.Duration) *LocalAgent {
	return &LocalAgent{decide: decide, timeout: timeout}
}

type decideResult struct {
	intents []SeekerIntent
	err     error
}

// NextIntents calls the decision function, giving up after the configured
// timeout. An abandoned call keeps running; until it returns every further
// call fails fast with ErrAgentBusy.
func (a *LocalAgent) NextIntents(ctx context.Context, in *AgentInput) ([]SeekerIntent, error) {
	if !a.busy.CompareAndSwap(false, true) {
		return nil, ErrAgentBusy
	}
	done := make(chan decideResult, 1)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		r := a.run(in)
		a.busy.Store(false)
		done <- r
	}()

	timer := time.NewTimer(a.timeout)
	defer timer.Stop()
	select {
	case r := <-done:
		return r.intents, r.err
	case <-timer.C:
		return nil, fmt.Errorf("%w after %s", ErrAgentTimeout, a.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *LocalAgent) run(in *AgentInput) (r decideResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r = decideResult{err: fmt.Errorf("%w: %v", ErrAgentPanic, rec)}
		}
	}()
	intents, err := a.decide(in)
	return decideResult{intents: intents, err: err}
}

// Wait blocks until abandoned calls have returned or ctx ends
func (a *LocalAgent) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RemoteAgent is fed by network commands. Commands land in a pending buffer
// and raise a one-slot signal that the tick loop waits on.
type RemoteAgent struct {
	timeout time.Duration
	wait    bool

	mu      sync.Mutex
	pending map[string]SeekerIntent
	signal  chan struct{}
}

// NewRemoteAgent creates a remote agent. With wait set, NextIntents blocks
// until a command arrives or timeout passes.
func NewRemoteAgent(timeout time.Duration, wait bool) *RemoteAgent {
	return &RemoteAgent{
		timeout: timeout,
		wait:    wait,
		pending: make(map[string]SeekerIntent),
		signal:  make(chan struct{}, 1),
	}
}

// Submit stores intents keyed by seeker id and signals the tick loop once.
// Ownership must be checked by the caller.
func (a *RemoteAgent) Submit(intents map[string]SeekerIntent) {
	a.mu.Lock()
	for id, it := range intents {
		a.pending[id] = it
	}
	a.mu.Unlock()
	select {
	case a.signal <- struct{}{}:
	default:
	}
}

// NextIntents returns the current intents overlaid with everything submitted
// since the previous call, or nil when nothing was submitted
func (a *RemoteAgent) NextIntents(ctx context.Context, in *AgentInput) ([]SeekerIntent, error) {
	if a.wait {
		timer := time.NewTimer(a.timeout)
		defer timer.Stop()
		select {
		case <-a.signal:
		case <-timer.C:
			return nil, fmt.Errorf("%w after %s", ErrAgentTimeout, a.timeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else {
		select {
		case <-a.signal:
		default:
		}
	}

	a.mu.Lock()
	pending := a.pending
	a.pending = make(map[string]SeekerIntent, len(pending))
	a.mu.Unlock()
	if len(pending) == 0 {
		return nil, nil
	}

	out := in.CurrentIntents()
	for i, s := range in.MySeekers {
		if it, ok := pending[s.ID]; ok {
			out[i] = it
		}
	}
	return out, nil
}

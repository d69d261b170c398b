package dispatch

import "sync"

// PauseGate is the broadcast stopTheWorld signal: a channel every agent's
// tick loop checks with a non-blocking select. Trip closes it once; there
// is no automatic Reset in the core (re-planning after a world-stop is a
// Non-goal), but Reset exists for an external operator to resume.
type PauseGate struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewPauseGate returns a gate in the not-stopped state.
func NewPauseGate() *PauseGate {
	return &PauseGate{ch: make(chan struct{})}
}

// Stopped reports whether the world is currently paused.
func (g *PauseGate) Stopped() bool {
	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// Trip closes the gate, pausing every agent watching it. Idempotent.
func (g *PauseGate) Trip() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.ch:
		return // already tripped
	default:
		close(g.ch)
	}
}

// Reset replaces the gate with a fresh, not-stopped channel.
func (g *PauseGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ch = make(chan struct{})
}

package executor

import (
	"sync"
	"time"
)

// stopGuard arms a two-stage timer identical in shape to a plain Stop
// event, but cancellable up until it fires: Reserve uses one to bring a
// moving train to rest before it overruns an unconfirmed element.
type stopGuard struct {
	mu        sync.Mutex
	triggered bool
	timer     *time.Timer
	completed chan struct{}
	err       error
}

func (e *Executor) armStopGuard(trigger, stop float64) *stopGuard {
	g := &stopGuard{completed: make(chan struct{})}
	g.timer = time.AfterFunc(durationOf(trigger), func() {
		g.mu.Lock()
		if g.triggered {
			g.mu.Unlock()
			return
		}
		g.triggered = true
		g.mu.Unlock()

		e.State.BeginStop()
		time.AfterFunc(durationOf(stop), func() {
			g.err = e.finishStopSequence()
			close(g.completed)
		})
	})
	return g
}

// cancel stops the guard before it fires, reporting whether it succeeded.
// A false return means the guard's timer already started (or is about to)
// running its stop sequence; the caller must wait on completed instead.
func (g *stopGuard) cancel() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.triggered {
		return false
	}
	if !g.timer.Stop() {
		// The timer body has already fired or is about to; it will set
		// triggered and close completed itself. Don't race it here.
		return false
	}
	g.triggered = true
	close(g.completed)
	return true
}

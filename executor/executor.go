// Package executor runs a compiled navevent.Program against a train's
// kinematics and position state, one event at a time, scheduling the timed
// stops and reservation guards that couple real-time motion to the
// program's logical steps.
package executor

import (
	"math"
	"time"

	"github.com/raildispatch/railcore/errs"
	"github.com/raildispatch/railcore/kinematics"
	"github.com/raildispatch/railcore/navevent"
	"github.com/raildispatch/railcore/position"
	"github.com/raildispatch/railcore/track"
)

// Reserver issues a reservation request for a graph element (a
// track.NodeID or track.EdgeID) to whatever owns exclusive-use bookkeeping,
// returning a channel that receives exactly once on confirmation. agent.Agent
// implements this for live agents, forwarding each request to Central
// Dispatch; tests supply a fake.
type Reserver interface {
	Reserve(element any) <-chan struct{}
}

// Executor drives a single train's State and Position through a Program.
// It does not itself advance position over time — a ticking loop elsewhere
// (the agent) calls State.Update and Position.Advance every tick; Executor
// applies each event's effect as it reaches it and arms the timers that
// begin and complete each Stop.
type Executor struct {
	Track    *track.Track
	State    *kinematics.State
	Position *position.Position
	Reserver Reserver

	// Path is the full node sequence the current program was compiled
	// from, used to size Reserve guards' lead distance.
	Path []track.NodeID
}

// Execute runs every event in prog in order, returning the first error
// encountered (a sequencing violation, a physics divergence or a topology
// error). A Reserve waits for the Reserver's confirmation with no timeout;
// deadlock between agents is detected by Central Dispatch, not here.
func (e *Executor) Execute(prog navevent.Program) error {
	for _, ev := range prog.Events {
		if err := e.executeOne(ev); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) executeOne(ev navevent.Event) error {
	switch v := ev.(type) {
	case navevent.SetDirection:
		return e.execSetDirection(v)
	case navevent.SetSwitch:
		return e.execSetSwitch(v)
	case navevent.Start:
		return e.execStart(v)
	case navevent.Stop:
		return e.execStop(v)
	case navevent.Reserve:
		return e.execReserve(v)
	default:
		return errs.Wrap(errs.Protocol, "unknown navigation event %T", ev)
	}
}

func (e *Executor) execSetDirection(ev navevent.SetDirection) error {
	if !e.State.Stopped() {
		return errs.Wrap(errs.Sequencing, "SetDirection(%v) while moving", ev.To)
	}
	e.State.BeginDirectionChange()
	if e.State.Direction != ev.To {
		return errs.Wrap(errs.Sequencing, "direction after flip is %v, requested %v", e.State.Direction, ev.To)
	}
	e.Position.Direction = e.State.Direction
	e.Position.Retarget()
	return nil
}

func (e *Executor) execSetSwitch(ev navevent.SetSwitch) error {
	if err := e.Track.SetSwitch(ev.Node, ev.Branch); err != nil {
		return err
	}
	e.Position.SwitchChanged(ev.Node)
	return nil
}

func (e *Executor) execStart(navevent.Start) error {
	if !e.State.Stopped() {
		return errs.Wrap(errs.Sequencing, "Start while moving")
	}
	e.State.ClearStopping()
	return nil
}

func (e *Executor) execStop(ev navevent.Stop) error {
	if ev.Distance <= 0 {
		return e.finishStopSequence()
	}
	trigger, stop := e.stopTiming(float64(ev.Distance))
	done := make(chan error, 1)
	time.AfterFunc(durationOf(trigger), func() {
		e.State.BeginStop()
		time.AfterFunc(durationOf(stop), func() {
			done <- e.finishStopSequence()
		})
	})
	return <-done
}

// finishStopSequence is what both a plain Stop and an expired Reserve
// guard converge on: snap to the nearest node, then hard-zero any
// remaining speed residue.
func (e *Executor) finishStopSequence() error {
	if err := e.Position.NormalizeToClosestNode(); err != nil {
		return err
	}
	return e.State.ForceStop()
}

// execReserve requests element, and — if the train is currently moving —
// races that request against a cancellable stop guard sized to bring the
// train to rest exactly at element. If the guard fires before
// confirmation arrives, the stop sequence always runs to completion before
// the train accelerates again, even though the program did not itself
// call for a Stop here (§4.5).
func (e *Executor) execReserve(ev navevent.Reserve) error {
	confirmed := e.Reserver.Reserve(ev.Element)

	var guard *stopGuard
	if !e.State.Stopped() {
		if dist, err := e.distanceToElement(ev.Element); err == nil && dist > 0 {
			trigger, stop := e.stopTiming(dist)
			guard = e.armStopGuard(trigger, stop)
		}
	}

	<-confirmed

	if guard == nil {
		return nil
	}
	if guard.cancel() {
		return nil
	}
	<-guard.completed
	if guard.err != nil {
		return guard.err
	}
	e.State.ClearStopping()
	return nil
}

// distanceToElement resolves a Reserve target to the node that guards it:
// for a NodeID, itself; for an EdgeID, the edge's source (the train must
// be guarded into stopping no later than the edge's entry, not its exit).
func (e *Executor) distanceToElement(element any) (float64, error) {
	switch v := element.(type) {
	case track.NodeID:
		return e.Position.DistanceAlongPath(e.Path, v)
	case track.EdgeID:
		return e.Position.DistanceAlongPath(e.Path, e.Track.Edge(v).Source)
	default:
		return 0, errs.Wrap(errs.Protocol, "reserve element has unexpected type %T", element)
	}
}

// stopTiming computes (timeToTriggerStop, timeToStop) for a controlled
// stop over distance, per the two-regime formula: either the train never
// reaches max speed before it must start braking, or it does and cruises
// first.
func (e *Executor) stopTiming(distance float64) (trigger, stop float64) {
	p := e.State.Physics
	maxStop := p.MaxStoppingDistance()
	if maxStop > distance/2 {
		t := math.Sqrt(distance / p.AccelerationRate)
		return t, t
	}
	trigger = p.TimeToMaxSpeed() + (distance-maxStop-p.DistanceAcceleratingFromStop())/p.MaxSpeed
	stop = p.MaxSpeed / -p.DecelerationRate
	return trigger, stop
}

func durationOf(seconds float64) time.Duration {
	if seconds < 0 {
		seconds = 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// Package navevent defines the closed set of events a compiled navigation
// program is made of.
package navevent

import (
	"fmt"

	"github.com/raildispatch/railcore/track"
)

// Event is one step of a compiled navigation program. The set of
// implementations is closed to this package: isEvent is unexported, so an
// exhaustive type switch here is safe against silently missing a case
// elsewhere.
type Event interface {
	isEvent()
	fmt.Stringer
}

// SetDirection requires the train be stopped, then flips it to face To.
type SetDirection struct {
	To track.Direction
}

func (SetDirection) isEvent() {}
func (e SetDirection) String() string {
	return fmt.Sprintf("SetDirection(%v)", e.To)
}

// SetSwitch assigns a node's switch state. A no-op when the node isn't a
// real branch and Branch is Straight; an error when it is Curve.
type SetSwitch struct {
	Node   track.NodeID
	Branch track.Branch
}

func (SetSwitch) isEvent() {}
func (e SetSwitch) String() string {
	return fmt.Sprintf("SetSwitch(%d, %v)", e.Node, e.Branch)
}

// Start requires the train be stopped, then releases it to accelerate.
type Start struct{}

func (Start) isEvent() {}
func (Start) String() string { return "Start" }

// Stop schedules a controlled deceleration timed to bring the train to
// rest exactly Distance after Origin, i.e. at Dest.
type Stop struct {
	Origin, Dest track.NodeID
	Distance     int
}

func (Stop) isEvent() {}
func (e Stop) String() string {
	return fmt.Sprintf("Stop(%d -> %d, %d)", e.Origin, e.Dest, e.Distance)
}

// Reserve asks Central Dispatch for exclusive use of a graph element
// (either a NodeID or an EdgeID) and blocks the program until confirmed.
type Reserve struct {
	Element any // track.NodeID or track.EdgeID
}

func (Reserve) isEvent() {}
func (e Reserve) String() string {
	return fmt.Sprintf("Reserve(%v)", e.Element)
}

// Program is an ordered, compiled navigation event list plus the edges it
// reserves, in the order they are requested — the order releases must
// follow.
type Program struct {
	Events        []Event
	ReservedEdges []track.EdgeID
}

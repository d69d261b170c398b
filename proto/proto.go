// Package proto defines the closed message sets a Train Agent exchanges
// with Central Dispatch: Inbound flows dispatch-to-agent, Outbound flows
// agent-to-dispatch.
package proto

import (
	"fmt"

	"github.com/raildispatch/railcore/track"
)

// Inbound is a message a Train Agent receives from Central Dispatch.
type Inbound interface {
	isInbound()
	fmt.Stringer
}

// NavigateTo asks the agent to route itself to Dest and drive there.
type NavigateTo struct {
	Dest track.NodeID
}

func (NavigateTo) isInbound() {}
func (m NavigateTo) String() string { return fmt.Sprintf("NavigateTo(%d)", m.Dest) }

// ReservationConfirmed completes the agent's pending reservation future for
// Element (a track.NodeID or track.EdgeID).
type ReservationConfirmed struct {
	Element any
}

func (ReservationConfirmed) isInbound() {}
func (m ReservationConfirmed) String() string { return fmt.Sprintf("ReservationConfirmed(%v)", m.Element) }

// Outbound is a message a Train Agent sends to Central Dispatch.
type Outbound interface {
	isOutbound()
	fmt.Stringer
}

// ReservationRequest asks the arbiter for exclusive use of Element.
type ReservationRequest struct {
	Agent   string
	Element any
}

func (ReservationRequest) isOutbound() {}
func (m ReservationRequest) String() string {
	return fmt.Sprintf("ReservationRequest(%s, %v)", m.Agent, m.Element)
}

// ReservationRelease gives up a previously confirmed reservation.
type ReservationRelease struct {
	Agent   string
	Element any
}

func (ReservationRelease) isOutbound() {}
func (m ReservationRelease) String() string {
	return fmt.Sprintf("ReservationRelease(%s, %v)", m.Agent, m.Element)
}

// PositionUpdate reports a train's current location and motion at the
// telemetry cadence.
type PositionUpdate struct {
	Name      string
	Direction track.Direction
	Node      track.NodeID
	Edge      track.EdgeID
	Offset    float64
	Velocity  float64
}

func (PositionUpdate) isOutbound() {}
func (m PositionUpdate) String() string {
	return fmt.Sprintf("PositionUpdate(%s @ node %d, edge %d, offset %.2f, v %.2f)",
		m.Name, m.Node, m.Edge, m.Offset, m.Velocity)
}

// NavigationComplete reports that a compiled program ran to its end.
type NavigationComplete struct {
	Agent string
}

func (NavigationComplete) isOutbound() {}
func (m NavigationComplete) String() string { return fmt.Sprintf("NavigationComplete(%s)", m.Agent) }

// PathCompiled announces the full set of edges the agent's most recently
// compiled navigation program may reserve, replacing any set it announced
// earlier. A later ReservationRequest for an edge outside this set is a
// Protocol error (§7).
type PathCompiled struct {
	Agent         string
	ReservedEdges []track.EdgeID
}

func (PathCompiled) isOutbound() {}
func (m PathCompiled) String() string {
	return fmt.Sprintf("PathCompiled(%s, %v)", m.Agent, m.ReservedEdges)
}

// Exception reports a fatal error a Train Agent could not recover from.
type Exception struct {
	Agent string
	Err   error
}

func (Exception) isOutbound() {}
func (m Exception) String() string { return fmt.Sprintf("Exception(%s, %v)", m.Agent, m.Err) }

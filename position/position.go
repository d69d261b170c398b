// Package position projects a scalar kinematic offset onto the track graph:
// it owns a train's (node, edge, offset) triple and rolls it over edge
// boundaries, re-evaluating the next-edge rule whenever a switch changes
// under the train's feet.
package position

import (
	"github.com/raildispatch/railcore/errs"
	"github.com/raildispatch/railcore/track"
)

// Position is a train's location on the graph: the node it last departed,
// the directed edge it is currently traversing (NoEdge if it sits at a
// dead-end with no onward edge in its direction), and its offset into that
// edge.
type Position struct {
	trk *track.Track

	Node      track.NodeID
	Edge      track.EdgeID
	Offset    float64
	Direction track.Direction
}

// New places a train at node n, facing dir, with no committed edge yet.
// Call Retarget once the agent knows which edge it is about to take.
func New(trk *track.Track, n track.NodeID, dir track.Direction) *Position {
	return &Position{trk: trk, Node: n, Edge: track.NoEdge, Direction: dir, Offset: 0}
}

// Retarget recomputes Edge from Node and Direction via the next-edge rule,
// leaving Offset untouched. Called on construction, after every rollover,
// and whenever a switch changes ahead of the train (§4.3).
func (p *Position) Retarget() {
	id, ok := p.trk.NextEdge(p.Node, p.Direction)
	if !ok {
		p.Edge = track.NoEdge
		return
	}
	p.Edge = id
}

// Advance applies an unsigned distance magnitude to the train's offset,
// rolling over edge boundaries as needed. Offset always advances from the
// edge's Source toward its Destination in the edge's own orientation
// regardless of Direction — kinematics.State.Update returns a signed delta
// (negative while Direction is Backward) precisely so that sign can be
// stripped here; Direction carries the sense of travel via Retarget's
// choice of edge, not via the sign of delta. A negative delta is a caller
// bug, not a legal no-op.
func (p *Position) Advance(delta float64) error {
	if delta < 0 {
		return errs.Wrap(errs.PhysicsDivergence, "Advance called with a negative delta %.4f; strip the sign before calling", delta)
	}
	remaining := delta
	for remaining > 0 {
		if p.Edge == track.NoEdge {
			return errs.Wrap(errs.Topology, "train at node %d has no edge to advance along", p.Node)
		}
		edge := p.trk.Edge(p.Edge)
		length := float64(edge.Length)
		if p.Offset+remaining < length {
			p.Offset += remaining
			return nil
		}
		remaining -= length - p.Offset
		p.Offset = 0
		p.Node = edge.Destination
		p.Retarget()
	}
	return nil
}

// SwitchChanged re-evaluates the current edge after a switch assignment
// at node n. No-op while the train is still approaching n (the new setting
// is picked up when Advance rolls over n); if the train is at n, its
// current edge is recomputed.
func (p *Position) SwitchChanged(n track.NodeID) {
	if p.Edge == track.NoEdge {
		return
	}
	if p.trk.Edge(p.Edge).Destination == n {
		// Still travelling toward n on the current edge; the switch only
		// affects what comes after n, which Retarget recomputes on rollover.
		return
	}
	if p.Node == n {
		p.Retarget()
	}
}

// NormalizeToClosestNode is called the instant a scheduled stop completes.
// If the train has no current edge it is already at a node and Offset
// snaps to zero. Otherwise it must be within 1 unit of either endpoint of
// the current edge; if it overshot toward the destination it advances
// onto it, otherwise it snaps back to the source. Anything outside that
// band means the physics that ran diverged from the schedule that
// produced the Stop.
func (p *Position) NormalizeToClosestNode() error {
	if p.Edge == track.NoEdge {
		p.Offset = 0
		return nil
	}
	edge := p.trk.Edge(p.Edge)
	length := float64(edge.Length)
	switch {
	case p.Offset < 1:
		p.Offset = 0
		return nil
	case length-p.Offset < 1:
		p.Node = edge.Destination
		p.Offset = 0
		p.Retarget()
		return nil
	default:
		return errs.Wrap(errs.PhysicsDivergence, "stop completed mid-edge at offset %.4f/%d", p.Offset, edge.Length)
	}
}

// DistanceAlongPath returns the travel distance from the train's current
// (node, edge, offset) to the given node along path, a node sequence that
// must start at a node reachable from the train's present position (either
// p.Node itself, or via the edge currently being traversed). It is used by
// the executor to size a Reserve guard's lead distance.
func (p *Position) DistanceAlongPath(path []track.NodeID, target track.NodeID) (float64, error) {
	idx := -1
	for i, n := range path {
		if n == p.Node {
			idx = i
			break
		}
	}
	if idx == -1 {
		return 0, errs.Wrap(errs.Topology, "node %d not found on path", p.Node)
	}
	if p.Node == target {
		return -p.Offset, nil
	}

	total := -p.Offset
	for i := idx; i < len(path)-1; i++ {
		id, ok := p.trk.EdgeBetween(path[i], path[i+1])
		if !ok {
			return 0, errs.Wrap(errs.Topology, "no edge from node %d to %d on path", path[i], path[i+1])
		}
		total += float64(p.trk.Edge(id).Length)
		if path[i+1] == target {
			return total, nil
		}
	}
	return 0, errs.Wrap(errs.Topology, "target node %d not found on path", target)
}

package track

import "fmt"

// EdgeData is the JSON shape of one declared forward edge.
type EdgeData struct {
	Dest   string `json:"dest"`
	Length int    `json:"length"`
}

// NodeData is the JSON shape of one node and its (optional) forward edges.
// A node with neither Straight nor Curve set is a terminal in the forward
// direction (it may still gain reverse edges from other nodes).
type NodeData struct {
	Name     string    `json:"name"`
	Straight *EdgeData `json:"straight,omitempty"`
	Curve    *EdgeData `json:"curve,omitempty"`
}

// GraphData is the serialisable input representation of a Track, handed to
// the core by an external topology supplier (§6) instead of driving
// AddNode/AddEdge/AddBranch calls directly.
type GraphData struct {
	Nodes []NodeData `json:"nodes"`
}

// NewTrackFromData builds a Track from GraphData in two passes: first every
// named node (so forward-declared destinations resolve regardless of
// ordering), then every edge. Mirrors the two-pass node-then-edge
// construction used by graph builders elsewhere in the ecosystem.
func NewTrackFromData(data GraphData) (*Track, error) {
	t := NewTrack()
	for _, n := range data.Nodes {
		if _, err := t.AddNode(n.Name); err != nil {
			return nil, fmt.Errorf("building track: %w", err)
		}
	}
	for _, n := range data.Nodes {
		switch {
		case n.Straight != nil && n.Curve != nil:
			if _, _, err := t.AddBranch(n.Name, n.Straight.Dest, n.Straight.Length, n.Curve.Dest, n.Curve.Length); err != nil {
				return nil, fmt.Errorf("building track: node %q: %w", n.Name, err)
			}
		case n.Straight != nil:
			if _, err := t.AddEdge(n.Name, n.Straight.Dest, n.Straight.Length); err != nil {
				return nil, fmt.Errorf("building track: node %q: %w", n.Name, err)
			}
		case n.Curve != nil:
			return nil, fmt.Errorf("building track: node %q: curve edge without a straight edge", n.Name)
		}
	}
	return t, nil
}

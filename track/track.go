// Package track implements the rail graph: nodes with switchable branches,
// paired directed edges, and Dijkstra shortest-path routing.
//
// Nodes and edges are kept in flat slices and referenced by integer handle
// (NodeID, EdgeID) rather than pointer, so the graph is a small arena: no
// node or edge owns another, and there are no reference cycles to manage
// even though every edge points at its reverse.
package track

import (
	"fmt"
	"sync"

	"github.com/raildispatch/railcore/errs"
)

// Branch selects which of a node's two same-direction edges is active.
type Branch int

const (
	Straight Branch = iota
	Curve
)

func (b Branch) String() string {
	if b == Curve {
		return "curve"
	}
	return "straight"
}

// Direction is the sense in which a train is moving relative to how edges
// were declared at construction time.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// Coefficient returns the signed multiplier for this direction: +1 forward,
// -1 backward.
func (d Direction) Coefficient() float64 {
	if d == Backward {
		return -1
	}
	return 1
}

// Inverted returns the opposite direction.
func (d Direction) Inverted() Direction {
	if d == Forward {
		return Backward
	}
	return Forward
}

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// NodeID and EdgeID are arena handles; NoEdge/NoNode mark an absent slot.
type NodeID int
type EdgeID int

const NoEdge EdgeID = -1
const NoNode NodeID = -1

// Node is a junction or terminal with up to two forward and two reverse
// outgoing edges. Only switchState mutates after construction.
type Node struct {
	ID   NodeID
	Name string

	forwardStraight EdgeID
	forwardCurve    EdgeID
	reverseStraight EdgeID
	reverseCurve    EdgeID

	switchMu    sync.Mutex
	switchState Branch
}

// EdgeCount returns the number of outgoing edges this node has in total
// (forward plus reverse).
func (n *Node) EdgeCount() int {
	c := 0
	for _, e := range [4]EdgeID{n.forwardStraight, n.forwardCurve, n.reverseStraight, n.reverseCurve} {
		if e != NoEdge {
			c++
		}
	}
	return c
}

// SwitchState returns the node's current branch selection.
func (n *Node) SwitchState() Branch {
	n.switchMu.Lock()
	defer n.switchMu.Unlock()
	return n.switchState
}

// setSwitchState assigns the branch selection. Called only by the
// navigation executor (SetSwitch), never directly by a train's kinematics.
func (n *Node) setSwitchState(b Branch) {
	n.switchMu.Lock()
	defer n.switchMu.Unlock()
	n.switchState = b
}

// edgeSlot returns the edge id stored for direction dir and branch without
// deciding anything; NextEdge applies switchState.
func (n *Node) edgeSlot(dir Direction, branch Branch) EdgeID {
	switch {
	case dir == Forward && branch == Straight:
		return n.forwardStraight
	case dir == Forward && branch == Curve:
		return n.forwardCurve
	case dir == Backward && branch == Straight:
		return n.reverseStraight
	default:
		return n.reverseCurve
	}
}

// Edge is a directed, length-weighted connection owned by the Track. Reverse
// names the paired edge running the opposite way over the same physical
// section; ForwardAtSource records whether this edge belongs to its
// source's forward set (true) or reverse set (false).
type Edge struct {
	ID              EdgeID
	Source          NodeID
	Destination     NodeID
	Length          int
	Branch          Branch
	ForwardAtSource bool
	Reverse         EdgeID
}

// Track is the immutable-after-construction rail graph: a set of nodes, the
// derived set of all edges, and a name index. Only each node's switchState
// mutates once built.
type Track struct {
	nodes   []Node
	edges   []Edge
	byName  map[string]NodeID
	pathsMu sync.Mutex
	paths   map[[2]NodeID]cachedPath
}

type cachedPath struct {
	route  []NodeID
	length int
}

// NewTrack creates an empty Track. Use AddNode/AddEdge/AddBranch (or
// NewTrackFromData for the JSON topology shape) to build it up; the graph is
// considered constructed once the external topology supplier stops calling
// these.
func NewTrack() *Track {
	return &Track{byName: map[string]NodeID{}, paths: map[[2]NodeID]cachedPath{}}
}

// AddNode registers a node by name. Fails if the name is already taken.
func (t *Track) AddNode(name string) (NodeID, error) {
	if _, exists := t.byName[name]; exists {
		return NoNode, errs.Wrap(errs.Topology, "node %q already exists", name)
	}
	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, Node{
		ID:              id,
		Name:            name,
		forwardStraight: NoEdge,
		forwardCurve:    NoEdge,
		reverseStraight: NoEdge,
		reverseCurve:    NoEdge,
	})
	t.byName[name] = id
	return id, nil
}

// NodeByName resolves a node by its unique name.
func (t *Track) NodeByName(name string) (NodeID, error) {
	id, ok := t.byName[name]
	if !ok {
		return NoNode, errs.Wrap(errs.Topology, "node %q not found", name)
	}
	return id, nil
}

// Node returns the node data for id. Panics on an out-of-range id, which
// would indicate a bug in this package, not a topology error.
func (t *Track) Node(id NodeID) *Node {
	return &t.nodes[id]
}

// Edge returns the edge data for id.
func (t *Track) Edge(id EdgeID) *Edge {
	return &t.edges[id]
}

// Edges returns every edge in the graph, forward and reverse alike.
func (t *Track) Edges() []Edge {
	return t.edges
}

// AddEdge declares source's single forward edge (branch Straight) to dest,
// with the given length, and appends the matching reverse edge dest→source
// to dest's reverse set. Fails if source already has a forward edge, or if
// dest would accumulate more than two reverse edges.
func (t *Track) AddEdge(sourceName, destName string, length int) (EdgeID, error) {
	ids, err := t.connect(sourceName, []branchSpec{{Straight, destName, length}})
	if err != nil {
		return NoEdge, err
	}
	return ids[0], nil
}

// AddBranch declares source's branching pair of forward edges — straight to
// straightDest, curve to curveDest — in one call. Fails under the same
// conditions as AddEdge, checked for each edge in turn; the pair is not
// added atomically: if the curve edge fails, the straight edge already
// added stays in the graph.
func (t *Track) AddBranch(sourceName string, straightDest string, straightLen int, curveDest string, curveLen int) (straightID, curveID EdgeID, err error) {
	ids, err := t.connect(sourceName, []branchSpec{
		{Straight, straightDest, straightLen},
		{Curve, curveDest, curveLen},
	})
	if err != nil {
		return NoEdge, NoEdge, err
	}
	return ids[0], ids[1], nil
}

type branchSpec struct {
	branch Branch
	dest   string
	length int
}

func (t *Track) connect(sourceName string, specs []branchSpec) ([]EdgeID, error) {
	sourceID, err := t.NodeByName(sourceName)
	if err != nil {
		return nil, err
	}
	source := t.Node(sourceID)
	if source.forwardStraight != NoEdge || source.forwardCurve != NoEdge {
		return nil, errs.Wrap(errs.Topology, "node %q already has a forward edge", sourceName)
	}
	if len(specs) <= 0 || len(specs) > 2 {
		panic("connect: specs must have 1 or 2 entries")
	}

	ids := make([]EdgeID, len(specs))
	for i, spec := range specs {
		if spec.length <= 0 {
			return nil, errs.Wrap(errs.Topology, "edge %s -> %s: length must be > 0", sourceName, spec.dest)
		}
		destID, err := t.NodeByName(spec.dest)
		if err != nil {
			return nil, err
		}
		dest := t.Node(destID)
		if dest.reverseStraight != NoEdge && dest.reverseCurve != NoEdge {
			return nil, errs.Wrap(errs.Topology, "node %q would accumulate more than two reverse edges", spec.dest)
		}

		fwdID := EdgeID(len(t.edges))
		t.edges = append(t.edges, Edge{
			ID: fwdID, Source: sourceID, Destination: destID,
			Length: spec.length, Branch: spec.branch, ForwardAtSource: true,
		})
		revID := EdgeID(len(t.edges))
		t.edges = append(t.edges, Edge{
			ID: revID, Source: destID, Destination: sourceID,
			Length: spec.length, Branch: spec.branch, ForwardAtSource: false,
		})
		t.edges[fwdID].Reverse = revID
		t.edges[revID].Reverse = fwdID

		switch spec.branch {
		case Straight:
			source.forwardStraight = fwdID
		case Curve:
			source.forwardCurve = fwdID
		}
		if dest.reverseStraight == NoEdge {
			dest.reverseStraight = revID
		} else {
			dest.reverseCurve = revID
		}
		ids[i] = fwdID
	}
	t.pathsMu.Lock()
	t.paths = map[[2]NodeID]cachedPath{}
	t.pathsMu.Unlock()
	return ids, nil
}

// NextEdge applies the next-edge rule (§4.3): among the candidates in
// direction dir at node n, returns the single candidate if only one exists,
// otherwise the one selected by n's switchState.
func (t *Track) NextEdge(n NodeID, dir Direction) (EdgeID, bool) {
	node := t.Node(n)
	straight := node.edgeSlot(dir, Straight)
	curve := node.edgeSlot(dir, Curve)
	switch {
	case straight == NoEdge && curve == NoEdge:
		return NoEdge, false
	case straight == NoEdge:
		return curve, true
	case curve == NoEdge:
		return straight, true
	default:
		if node.SwitchState() == Curve {
			return curve, true
		}
		return straight, true
	}
}

// SetSwitch assigns n's switch state. Returns an error per §4.5 if b is
// Curve on a non-branching node (EdgeCount != 3); Straight is always a
// legal no-op there.
func (t *Track) SetSwitch(n NodeID, b Branch) error {
	node := t.Node(n)
	if node.EdgeCount() != 3 {
		if b == Straight {
			return nil
		}
		return errs.Wrap(errs.Sequencing, "SetSwitch(curve) on non-branching node %q", node.Name)
	}
	node.setSwitchState(b)
	return nil
}

// EdgeBetween returns the edge id of whichever of a's four outgoing slots
// leads to b, regardless of switchState. Used by callers (e.g. the
// position package's DistanceAlongPath) that need the edge a planned path
// actually traverses rather than the one switchState currently selects.
func (t *Track) EdgeBetween(a, b NodeID) (EdgeID, bool) {
	node := t.Node(a)
	for _, id := range [4]EdgeID{node.forwardStraight, node.forwardCurve, node.reverseStraight, node.reverseCurve} {
		if id != NoEdge && t.edges[id].Destination == b {
			return id, true
		}
	}
	return NoEdge, false
}

func (t *Track) String() string {
	return fmt.Sprintf("Track(%d nodes, %d edges)", len(t.nodes), len(t.edges))
}

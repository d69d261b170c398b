package track

import (
	"container/heap"

	"github.com/raildispatch/railcore/errs"
)

// ErrUnreachable is returned by FindPath when no route connects start and
// finish given the allowBackwardMovement setting. FindPath never
// dereferences a missing predecessor to produce this — see §9.
var ErrUnreachable = errs.Wrap(errs.Topology, "unreachable")

// FindPath computes a minimum-length node sequence from start to finish
// using Dijkstra over non-negative integer edge lengths. Neighbours of a
// node are, in order, its forward-straight, forward-curve edges and, when
// allowBackwardMovement is set, its reverse-straight, reverse-curve edges —
// that insertion order is also the tie-break order when two routes have
// equal length.
func (t *Track) FindPath(start, finish NodeID, allowBackwardMovement bool) ([]NodeID, error) {
	if start == finish {
		return []NodeID{start}, nil
	}

	key := [2]NodeID{start, finish}
	if allowBackwardMovement {
		t.pathsMu.Lock()
		if cp, ok := t.paths[key]; ok {
			t.pathsMu.Unlock()
			return append([]NodeID(nil), cp.route...), nil
		}
		t.pathsMu.Unlock()
	}

	dist := make([]int, len(t.nodes))
	visited := make([]bool, len(t.nodes))
	prevNode := make([]NodeID, len(t.nodes))
	prevEdge := make([]EdgeID, len(t.nodes))
	const unset = -1
	for i := range dist {
		dist[i] = -1
		prevNode[i] = NoNode
		prevEdge[i] = NoEdge
	}
	dist[start] = 0

	pq := &priorityQueue{}
	heap.Init(pq)
	heap.Push(pq, pqItem{node: start, dist: 0, seq: 0})
	seq := 1

	for pq.Len() > 0 {
		item := heap.Pop(pq).(pqItem)
		u := item.node
		if visited[u] {
			continue
		}
		visited[u] = true
		if u == finish {
			break
		}

		for _, e := range t.neighbours(u, allowBackwardMovement) {
			v := e.Destination
			nd := dist[u] + e.Length
			if dist[v] == unset || nd < dist[v] {
				dist[v] = nd
				prevNode[v] = u
				prevEdge[v] = e.ID
				heap.Push(pq, pqItem{node: v, dist: nd, seq: seq})
				seq++
			}
		}
	}

	if dist[finish] == -1 {
		return nil, ErrUnreachable
	}

	route := []NodeID{finish}
	for cur := finish; cur != start; {
		p := prevNode[cur]
		if p == NoNode {
			// A missing predecessor for a node we believe is reachable is a
			// bug in this function, not an unreachable-destination case
			// (that was already handled above) — surface it loudly.
			panic("findPath: reachable node has no predecessor")
		}
		route = append(route, p)
		cur = p
	}
	for i, j := 0, len(route)-1; i < j; i, j = i+1, j-1 {
		route[i], route[j] = route[j], route[i]
	}

	if allowBackwardMovement {
		t.pathsMu.Lock()
		t.paths[key] = cachedPath{route: append([]NodeID(nil), route...), length: dist[finish]}
		t.pathsMu.Unlock()
	}
	return route, nil
}

// neighbours returns u's outgoing edges in insertion order: forward straight,
// forward curve, then (if allowed) reverse straight, reverse curve.
func (t *Track) neighbours(u NodeID, allowBackwardMovement bool) []Edge {
	node := t.Node(u)
	ids := []EdgeID{node.forwardStraight, node.forwardCurve}
	if allowBackwardMovement {
		ids = append(ids, node.reverseStraight, node.reverseCurve)
	}
	out := make([]Edge, 0, len(ids))
	for _, id := range ids {
		if id != NoEdge {
			out = append(out, t.edges[id])
		}
	}
	return out
}

type pqItem struct {
	node NodeID
	dist int
	seq  int // insertion sequence, used to break distance ties deterministically
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].dist != pq[j].dist {
		return pq[i].dist < pq[j].dist
	}
	return pq[i].seq < pq[j].seq
}
func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x any)   { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

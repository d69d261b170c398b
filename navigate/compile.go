// Package navigate compiles a node path into an ordered navevent.Program:
// the direction changes, reservations, switch assignments and timed stops
// needed to actually drive a train along it.
package navigate

import (
	"github.com/raildispatch/railcore/errs"
	"github.com/raildispatch/railcore/navevent"
	"github.com/raildispatch/railcore/track"
)

// hop describes the single edge connecting two adjacent path nodes.
type hop struct {
	edge      track.EdgeID
	branch    track.Branch
	direction track.Direction
}

func resolveHop(trk *track.Track, from, to track.NodeID) (hop, error) {
	id, ok := trk.EdgeBetween(from, to)
	if !ok {
		return hop{}, errs.Wrap(errs.Topology, "no edge from node %d to %d", from, to)
	}
	edge := trk.Edge(id)
	dir := track.Backward
	if edge.ForwardAtSource {
		dir = track.Forward
	}
	return hop{edge: id, branch: edge.Branch, direction: dir}, nil
}

// Compile turns a node path (length >= 2) into a Program, starting the
// train facing initialDirection. A path of length <= 1 yields an empty
// program with no reservations.
func Compile(trk *track.Track, path []track.NodeID, initialDirection track.Direction) (navevent.Program, error) {
	if len(path) <= 1 {
		return navevent.Program{}, nil
	}

	first, err := resolveHop(trk, path[0], path[1])
	if err != nil {
		return navevent.Program{}, err
	}

	var prog navevent.Program
	reserve := func(elem any) {
		prog.Events = append(prog.Events, navevent.Reserve{Element: elem})
		if id, ok := elem.(track.EdgeID); ok {
			prog.ReservedEdges = append(prog.ReservedEdges, id)
		}
	}

	dCur := initialDirection
	if first.direction != dCur {
		prog.Events = append(prog.Events, navevent.SetDirection{To: first.direction})
		dCur = first.direction
	}

	reserve(path[0])
	reserve(first.edge)
	reserve(path[1])
	prog.Events = append(prog.Events, navevent.Start{})

	origin := path[0]
	segmentLen := 0

	for i := 0; i < len(path)-1; i++ {
		h, err := resolveHop(trk, path[i], path[i+1])
		if err != nil {
			return navevent.Program{}, err
		}
		switch {
		case h.direction != dCur:
			prog.Events = append(prog.Events,
				navevent.Stop{Origin: origin, Dest: path[i], Distance: segmentLen},
				navevent.SetDirection{To: h.direction},
			)
			reserve(h.edge)
			reserve(path[i+1])
			prog.Events = append(prog.Events,
				navevent.SetSwitch{Node: path[i], Branch: h.branch},
				navevent.Start{},
			)
			origin = path[i]
			segmentLen = 0
			dCur = h.direction
		case i == 0:
			prog.Events = append(prog.Events, navevent.SetSwitch{Node: path[i], Branch: h.branch})
		default:
			reserve(h.edge)
			reserve(path[i+1])
			prog.Events = append(prog.Events, navevent.SetSwitch{Node: path[i], Branch: h.branch})
		}
		segmentLen += trk.Edge(h.edge).Length
	}

	prog.Events = append(prog.Events, navevent.Stop{Origin: origin, Dest: path[len(path)-1], Distance: segmentLen})
	return prog, nil
}

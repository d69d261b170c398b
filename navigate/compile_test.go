package navigate

import (
	"testing"

	"github.com/raildispatch/railcore/navevent"
	"github.com/raildispatch/railcore/track"
)

func straightLine(t *testing.T) (*track.Track, []track.NodeID) {
	t.Helper()
	trk := track.NewTrack()
	names := []string{"a", "b", "c"}
	ids := make([]track.NodeID, len(names))
	for i, n := range names {
		id, err := trk.AddNode(n)
		if err != nil {
			t.Fatal(err)
		}
		ids[i] = id
	}
	if _, err := trk.AddEdge("a", "b", 10); err != nil {
		t.Fatal(err)
	}
	if _, err := trk.AddEdge("b", "c", 5); err != nil {
		t.Fatal(err)
	}
	return trk, ids
}

func TestCompileEmptyPath(t *testing.T) {
	trk, ids := straightLine(t)
	prog, err := Compile(trk, ids[:1], track.Forward)
	if err != nil {
		t.Fatal(err)
	}
	if len(prog.Events) != 0 {
		t.Errorf("events = %v, want none", prog.Events)
	}
}

func TestCompileStraightPath(t *testing.T) {
	trk, ids := straightLine(t)
	prog, err := Compile(trk, ids, track.Forward)
	if err != nil {
		t.Fatal(err)
	}

	wantKinds := []navevent.Event{
		navevent.Reserve{}, navevent.Reserve{}, navevent.Reserve{}, navevent.Start{},
		navevent.SetSwitch{}, navevent.Reserve{}, navevent.Reserve{}, navevent.SetSwitch{},
		navevent.Stop{},
	}
	if len(prog.Events) != len(wantKinds) {
		t.Fatalf("got %d events, want %d: %v", len(prog.Events), len(wantKinds), prog.Events)
	}
	last, ok := prog.Events[len(prog.Events)-1].(navevent.Stop)
	if !ok {
		t.Fatalf("last event = %T, want Stop", prog.Events[len(prog.Events)-1])
	}
	if last.Distance != 15 {
		t.Errorf("final stop distance = %d, want 15", last.Distance)
	}
	if len(prog.ReservedEdges) != 2 {
		t.Errorf("reserved %d edges, want 2", len(prog.ReservedEdges))
	}
}

func TestCompileInitialDirectionMismatchFlipsFirst(t *testing.T) {
	trk, ids := straightLine(t)
	prog, err := Compile(trk, ids, track.Backward)
	if err != nil {
		t.Fatal(err)
	}
	first, ok := prog.Events[0].(navevent.SetDirection)
	if !ok {
		t.Fatalf("first event = %T, want SetDirection", prog.Events[0])
	}
	if first.To != track.Forward {
		t.Errorf("SetDirection.To = %v, want forward", first.To)
	}
}

func TestCompileDirectionReversalMidPath(t *testing.T) {
	trk := track.NewTrack()
	for _, n := range []string{"a", "b", "c"} {
		if _, err := trk.AddNode(n); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := trk.AddEdge("a", "b", 10); err != nil {
		t.Fatal(err)
	}
	if _, err := trk.AddEdge("c", "b", 5); err != nil { // b's 2nd reverse edge; path a->b->c travels backward over it
		t.Fatal(err)
	}
	a, _ := trk.NodeByName("a")
	b, _ := trk.NodeByName("b")
	c, _ := trk.NodeByName("c")

	prog, err := Compile(trk, []track.NodeID{a, b, c}, track.Forward)
	if err != nil {
		t.Fatal(err)
	}
	var sawStop, sawSecondSetDirection bool
	for _, e := range prog.Events {
		switch v := e.(type) {
		case navevent.Stop:
			sawStop = true
		case navevent.SetDirection:
			if sawStop {
				sawSecondSetDirection = true
				if v.To != track.Backward {
					t.Errorf("mid-path SetDirection.To = %v, want backward", v.To)
				}
			}
		}
	}
	if !sawStop || !sawSecondSetDirection {
		t.Errorf("expected a mid-path Stop followed by SetDirection, got %v", prog.Events)
	}
}

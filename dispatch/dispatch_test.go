package dispatch

import (
	"testing"
	"time"

	"github.com/raildispatch/railcore/config"
	"github.com/raildispatch/railcore/kinematics"
	"github.com/raildispatch/railcore/proto"
	"github.com/raildispatch/railcore/track"
)

// threeEdgeTrack gives one agent three edges to reserve in sequence, to
// exercise release-order enforcement.
func threeEdgeTrack(t *testing.T) (*track.Track, track.EdgeID, track.EdgeID, track.EdgeID) {
	t.Helper()
	trk := track.NewTrack()
	for _, n := range []string{"a", "b", "c", "d"} {
		if _, err := trk.AddNode(n); err != nil {
			t.Fatal(err)
		}
	}
	e1, err := trk.AddEdge("a", "b", 10)
	if err != nil {
		t.Fatal(err)
	}
	e2, err := trk.AddEdge("b", "c", 10)
	if err != nil {
		t.Fatal(err)
	}
	e3, err := trk.AddEdge("c", "d", 10)
	if err != nil {
		t.Fatal(err)
	}
	return trk, e1, e2, e3
}

func newTestDispatch(t *testing.T, trk *track.Track, cfg config.Config) *Dispatch {
	t.Helper()
	d, err := New(trk, cfg)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func recvConfirmed(t *testing.T, ch chan proto.Inbound) proto.ReservationConfirmed {
	t.Helper()
	select {
	case msg := <-ch:
		confirmed, ok := msg.(proto.ReservationConfirmed)
		if !ok {
			t.Fatalf("got %T, want ReservationConfirmed", msg)
		}
		return confirmed
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ReservationConfirmed")
		panic("unreachable")
	}
}

func TestMakeReservationGrantsFreeElement(t *testing.T) {
	trk, e1, _, _ := threeEdgeTrack(t)
	d := newTestDispatch(t, trk, config.Default())
	ch := make(chan proto.Inbound, 1)
	d.inputs["t1"] = ch
	d.recordCompiledPath("t1", []track.EdgeID{e1})

	d.makeReservation("t1", e1)
	confirmed := recvConfirmed(t, ch)
	if confirmed.Element != e1 {
		t.Errorf("confirmed element = %v, want %v", confirmed.Element, e1)
	}
}

func TestReservationQueuesFIFOAndReleases(t *testing.T) {
	trk, e1, _, _ := threeEdgeTrack(t)
	d := newTestDispatch(t, trk, config.Default())
	ch1 := make(chan proto.Inbound, 1)
	ch2 := make(chan proto.Inbound, 1)
	d.inputs["t1"] = ch1
	d.inputs["t2"] = ch2
	d.recordCompiledPath("t1", []track.EdgeID{e1})
	d.recordCompiledPath("t2", []track.EdgeID{e1})

	d.makeReservation("t1", e1)
	recvConfirmed(t, ch1)

	d.makeReservation("t2", e1)
	select {
	case <-ch2:
		t.Fatal("t2 should not be confirmed while t1 holds the element")
	case <-time.After(50 * time.Millisecond):
	}

	d.releaseReservation("t1", e1)
	confirmed := recvConfirmed(t, ch2)
	if confirmed.Element != e1 {
		t.Errorf("confirmed element = %v, want %v", confirmed.Element, e1)
	}
}

func TestReleaseByNonOwnerIsRejected(t *testing.T) {
	trk, e1, _, _ := threeEdgeTrack(t)
	d := newTestDispatch(t, trk, config.Default())
	ch1 := make(chan proto.Inbound, 1)
	d.inputs["t1"] = ch1
	d.recordCompiledPath("t1", []track.EdgeID{e1})
	d.makeReservation("t1", e1)
	recvConfirmed(t, ch1)

	d.releaseReservation("t2", e1)
	d.mu.Lock()
	owner := d.reservedBy[e1]
	d.mu.Unlock()
	if owner != "t1" {
		t.Errorf("owner = %q, want t1 (release by non-owner must be a no-op)", owner)
	}
	if !d.Pause.Stopped() {
		t.Error("a release by a non-owner is a Protocol error and must trip the world")
	}
}

func TestReleaseOutOfOrderIsRejected(t *testing.T) {
	trk, e1, e2, _ := threeEdgeTrack(t)
	d := newTestDispatch(t, trk, config.Default())
	ch1 := make(chan proto.Inbound, 2)
	d.inputs["t1"] = ch1
	d.recordCompiledPath("t1", []track.EdgeID{e1, e2})

	d.makeReservation("t1", e1)
	recvConfirmed(t, ch1)
	d.makeReservation("t1", e2)
	recvConfirmed(t, ch1)

	// e2 was granted after e1; releasing e2 first violates §4.7's FIFO
	// release-order rule and must be rejected.
	d.releaseReservation("t1", e2)
	d.mu.Lock()
	owner, held := d.reservedBy[e2]
	d.mu.Unlock()
	if !held || owner != "t1" {
		t.Errorf("e2 should still be held by t1 after a rejected out-of-order release, got held=%v owner=%q", held, owner)
	}
	if !d.Pause.Stopped() {
		t.Error("an out-of-order release is a Protocol error and must trip the world")
	}

	// Releasing e1 (the actual head) must still succeed afterward.
	d.releaseReservation("t1", e1)
	d.mu.Lock()
	_, held = d.reservedBy[e1]
	d.mu.Unlock()
	if held {
		t.Error("e1 should be released once requested in the correct order")
	}
}

func TestReleaseInOrderSucceeds(t *testing.T) {
	trk, e1, e2, e3 := threeEdgeTrack(t)
	d := newTestDispatch(t, trk, config.Default())
	ch1 := make(chan proto.Inbound, 3)
	d.inputs["t1"] = ch1
	d.recordCompiledPath("t1", []track.EdgeID{e1, e2, e3})

	d.makeReservation("t1", e1)
	recvConfirmed(t, ch1)
	d.makeReservation("t1", e2)
	recvConfirmed(t, ch1)
	d.makeReservation("t1", e3)
	recvConfirmed(t, ch1)

	for _, e := range []track.EdgeID{e1, e2, e3} {
		d.releaseReservation("t1", e)
		d.mu.Lock()
		_, held := d.reservedBy[e]
		d.mu.Unlock()
		if held {
			t.Errorf("edge %v should be released when released in FIFO order", e)
		}
	}
}

func TestNodeReservationIsANoOp(t *testing.T) {
	trk, e1, _, _ := threeEdgeTrack(t)
	b, err := trk.NodeByName("b")
	if err != nil {
		t.Fatal(err)
	}
	d := newTestDispatch(t, trk, config.Default())
	ch1 := make(chan proto.Inbound, 2)
	d.inputs["t1"] = ch1
	d.recordCompiledPath("t1", []track.EdgeID{e1})

	// Reserve an edge, then a node, mirroring the compiler's interleaved
	// Reserve(edge)/Reserve(node) sequence. A node reservation must confirm
	// immediately and never be tracked in reservedBy/holds (§9), so it can
	// neither block another agent nor interfere with edge release order.
	d.makeReservation("t1", e1)
	recvConfirmed(t, ch1)
	d.makeReservation("t1", b)
	recvConfirmed(t, ch1)

	d.mu.Lock()
	_, tracked := d.reservedBy[b]
	d.mu.Unlock()
	if tracked {
		t.Error("a node reservation must never be recorded in reservedBy")
	}

	// A second agent "reserving" the same node must also confirm
	// immediately rather than queue behind t1.
	ch2 := make(chan proto.Inbound, 1)
	d.inputs["t2"] = ch2
	d.makeReservation("t2", b)
	recvConfirmed(t, ch2)

	// Releasing the node is a no-op too, and must not disturb e1's hold.
	d.releaseReservation("t1", b)
	d.releaseReservation("t1", e1)
	d.mu.Lock()
	_, held := d.reservedBy[e1]
	d.mu.Unlock()
	if held {
		t.Error("e1 should still release normally afterward")
	}
}

func TestReservationOutsideCompiledPathIsRejected(t *testing.T) {
	trk, e1, e2, _ := threeEdgeTrack(t)
	d := newTestDispatch(t, trk, config.Default())
	ch1 := make(chan proto.Inbound, 1)
	d.inputs["t1"] = ch1
	d.recordCompiledPath("t1", []track.EdgeID{e1})

	// t1's last compiled path only authorizes e1; requesting e2 must be
	// rejected as a Protocol error and trip the world, the same as a
	// FIFO-order or non-owner release violation.
	d.makeReservation("t1", e2)
	select {
	case msg := <-ch1:
		t.Fatalf("got %v, want no confirmation for an edge outside the compiled path", msg)
	case <-time.After(50 * time.Millisecond):
	}
	d.mu.Lock()
	_, held := d.reservedBy[e2]
	d.mu.Unlock()
	if held {
		t.Error("e2 should not be granted when it is outside t1's compiled path")
	}
	if !d.Pause.Stopped() {
		t.Error("a reservation request outside the compiled path must trip the world")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	trk, _, _, _ := threeEdgeTrack(t)
	cfg := config.Default()
	cfg.Physics.DecelerationRate = -1 // no longer the mirror of AccelerationRate
	if _, err := New(trk, cfg); err == nil {
		t.Fatal("expected New to reject an asymmetric-physics Config")
	}
}

func TestSpawnTrainThreadsConfigAndProfile(t *testing.T) {
	trk, _, _, _ := threeEdgeTrack(t)
	a, err := trk.NodeByName("a")
	if err != nil {
		t.Fatal(err)
	}
	d, err := trk.NodeByName("d")
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.TickInterval = time.Millisecond
	cfg.TelemetryEveryNTicks = 1
	disp := newTestDispatch(t, trk, cfg)
	defer disp.Close()

	profile := kinematics.VehicleProfile{
		Name:   "fast",
		Length: 5,
		Physics: kinematics.Physics{
			AccelerationRate: 500, DecelerationRate: -500, MaxSpeed: 2000,
		},
	}
	handle := disp.SpawnTrain("t1", a, track.Forward, profile)

	sub := make(chan proto.NavigationComplete, 1)
	handle.NavigationCompleted.Subscribe("test", sub)
	handle.NavigateTo(d)

	select {
	case <-sub:
	case <-time.After(5 * time.Second):
		t.Fatal("navigation did not complete — Config/VehicleProfile may not be reaching the agent")
	}
}

func TestHeadOnDeadlockTripsWorld(t *testing.T) {
	trk, e1, e2, _ := threeEdgeTrack(t)
	d := newTestDispatch(t, trk, config.Default())
	ch1 := make(chan proto.Inbound, 1)
	ch2 := make(chan proto.Inbound, 1)
	d.inputs["t1"] = ch1
	d.inputs["t2"] = ch2
	d.recordCompiledPath("t1", []track.EdgeID{e1, e2})
	d.recordCompiledPath("t2", []track.EdgeID{e1, e2})

	d.makeReservation("t1", e1)
	recvConfirmed(t, ch1)
	d.makeReservation("t2", e2)
	recvConfirmed(t, ch2)

	// t1 now wants what t2 holds, and vice versa: classic head-on cycle.
	d.makeReservation("t1", e2)
	if d.Pause.Stopped() {
		t.Fatal("world should not be stopped after only one side of the cycle is waiting")
	}
	d.makeReservation("t2", e1)
	if !d.Pause.Stopped() {
		t.Error("expected stopTheWorld to trip once the wait cycle closes")
	}
}

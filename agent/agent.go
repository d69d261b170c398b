// Package agent implements the Train Agent: one goroutine per train, owning
// its kinematics, position, and navigation executor, exchanging proto
// messages with Central Dispatch over a pair of channels.
package agent

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/raildispatch/railcore/config"
	"github.com/raildispatch/railcore/errs"
	"github.com/raildispatch/railcore/executor"
	"github.com/raildispatch/railcore/kinematics"
	"github.com/raildispatch/railcore/navevent"
	"github.com/raildispatch/railcore/navigate"
	"github.com/raildispatch/railcore/notify"
	"github.com/raildispatch/railcore/position"
	"github.com/raildispatch/railcore/proto"
	"github.com/raildispatch/railcore/track"
)

// Agent is a single train's goroutine-owned state. Construct one with New,
// wire its InputCh/OutputCh to Central Dispatch, then run it with Run.
type Agent struct {
	Name string
	// InstanceID distinguishes two agents that briefly share a Name across
	// a terminate/respawn cycle. Log-only; never part of AgentHandle.
	InstanceID uuid.UUID

	Track   *track.Track
	Config  config.Config
	Profile kinematics.VehicleProfile

	State    *kinematics.State
	Position *position.Position

	InputCh  chan proto.Inbound
	OutputCh chan proto.Outbound

	// Pause is the stopTheWorld gate Central Dispatch trips on a fatal
	// Exception or detected reservation deadlock. Nil means never paused
	// (e.g. in tests that exercise an Agent without a Dispatch).
	Pause interface{ Stopped() bool }

	pendingMu sync.Mutex
	pending   map[any]chan struct{}

	reservationsMu sync.Mutex
	heldEdges      []track.EdgeID

	positionSender         *notify.MultiplexerSender[proto.PositionUpdate]
	PositionFeed           *notify.Multiplexer[proto.PositionUpdate]
	completeSender         *notify.MultiplexerSender[proto.NavigationComplete]
	NavigationCompleteFeed *notify.Multiplexer[proto.NavigationComplete]
	destinationSender      *notify.MultiplexerSender[track.NodeID]
	CurrentDestinationFeed *notify.Multiplexer[track.NodeID]
	reservationsSender     *notify.MultiplexerSender[[]track.EdgeID]
	ReservationsFeed       *notify.Multiplexer[[]track.EdgeID]
}

// New builds an Agent at node start, facing dir, running profile's physics
// under cfg's tick cadence and telemetry/multiplexer tuning (§4.9).
func New(name string, trk *track.Track, start track.NodeID, dir track.Direction, cfg config.Config, profile kinematics.VehicleProfile) *Agent {
	pos := position.New(trk, start, dir)
	pos.Retarget()

	posSender, posMux := notify.NewMultiplexerSender[proto.PositionUpdate](name+"-position", cfg.MultiplexerTimeout)
	completeSender, completeMux := notify.NewMultiplexerSender[proto.NavigationComplete](name+"-navigation-complete", cfg.MultiplexerTimeout)
	destSender, destMux := notify.NewMultiplexerSender[track.NodeID](name+"-destination", cfg.MultiplexerTimeout)
	resSender, resMux := notify.NewMultiplexerSender[[]track.EdgeID](name+"-reservations", cfg.MultiplexerTimeout)

	state := kinematics.NewState(profile.Physics, dir)
	state.Stopping = true // held at rest until the program's first Start

	return &Agent{
		Name:                   name,
		InstanceID:             uuid.New(),
		Track:                  trk,
		Config:                 cfg,
		Profile:                profile,
		State:                  state,
		Position:               pos,
		InputCh:                make(chan proto.Inbound, 16),
		OutputCh:               make(chan proto.Outbound, 16),
		pending:                make(map[any]chan struct{}),
		positionSender:         posSender,
		PositionFeed:           posMux,
		completeSender:         completeSender,
		NavigationCompleteFeed: completeMux,
		destinationSender:      destSender,
		CurrentDestinationFeed: destMux,
		reservationsSender:     resSender,
		ReservationsFeed:       resMux,
	}
}

// Reserve implements executor.Reserver: it registers a pending future for
// element, emits a ReservationRequest, and returns the future's channel.
// ReservationConfirmed, delivered via InputCh and handled on the agent's
// own goroutine, closes it.
func (a *Agent) Reserve(element any) <-chan struct{} {
	ch := make(chan struct{})
	a.pendingMu.Lock()
	a.pending[element] = ch
	a.pendingMu.Unlock()
	a.OutputCh <- proto.ReservationRequest{Agent: a.Name, Element: element}
	return ch
}

func (a *Agent) release(element any) {
	a.OutputCh <- proto.ReservationRelease{Agent: a.Name, Element: element}
	if edge, ok := element.(track.EdgeID); ok {
		a.removeHeldEdge(edge)
	}
}

func (a *Agent) addHeldEdge(edge track.EdgeID) {
	a.reservationsMu.Lock()
	a.heldEdges = append(a.heldEdges, edge)
	snapshot := append([]track.EdgeID(nil), a.heldEdges...)
	a.reservationsMu.Unlock()
	a.reservationsSender.Send(snapshot)
}

func (a *Agent) removeHeldEdge(edge track.EdgeID) {
	a.reservationsMu.Lock()
	if i := slices.Index(a.heldEdges, edge); i != -1 {
		a.heldEdges = slices.Delete(a.heldEdges, i, i+1)
	}
	snapshot := append([]track.EdgeID(nil), a.heldEdges...)
	a.reservationsMu.Unlock()
	a.reservationsSender.Send(snapshot)
}

// Run drives the agent's tick loop and inbound message handling until done
// is closed. It never returns on a normal navigation error — those are
// reported as an Outbound Exception and the agent keeps ticking, since a
// fatally-erred train is still a physical object Central Dispatch needs
// telemetry from.
func (a *Agent) Run(done <-chan struct{}) {
	ticker := time.NewTicker(a.Config.TickInterval)
	defer ticker.Stop()
	tick := 0
	dt := a.Config.TickInterval.Seconds()

	for {
		select {
		case <-done:
			return
		case msg := <-a.InputCh:
			a.handleInbound(msg)
		case <-ticker.C:
			if a.Pause != nil && a.Pause.Stopped() {
				continue
			}
			delta := a.State.Update(dt)
			if err := a.Position.Advance(math.Abs(delta)); err != nil {
				a.fail(err)
				continue
			}
			tick++
			if tick%a.Config.TelemetryEveryNTicks == 0 {
				a.emitPosition()
			}
		}
	}
}

func (a *Agent) handleInbound(msg proto.Inbound) {
	switch m := msg.(type) {
	case proto.NavigateTo:
		go a.navigateTo(m.Dest)
	case proto.ReservationConfirmed:
		a.pendingMu.Lock()
		ch, ok := a.pending[m.Element]
		if ok {
			delete(a.pending, m.Element)
		}
		a.pendingMu.Unlock()
		if !ok {
			a.fail(errs.Wrap(errs.Protocol, "ReservationConfirmed for unrequested element %v", m.Element))
			return
		}
		if edge, ok := m.Element.(track.EdgeID); ok {
			a.addHeldEdge(edge)
		}
		close(ch)
	default:
		a.fail(errs.Wrap(errs.Protocol, "unknown inbound message %T", msg))
	}
}

// navigateTo computes a path to dest, compiles it, and executes it. It
// runs on its own goroutine (spawned by handleInbound) so the tick loop
// keeps advancing physics while Execute blocks on timers and reservation
// confirmations.
func (a *Agent) navigateTo(dest track.NodeID) {
	a.destinationSender.Send(dest)
	defer a.destinationSender.Send(track.NoNode)

	path, err := a.Track.FindPath(a.Position.Node, dest, true)
	if err != nil {
		a.fail(err)
		return
	}
	prog, err := navigate.Compile(a.Track, path, a.State.Direction)
	if err != nil {
		a.fail(err)
		return
	}
	a.OutputCh <- proto.PathCompiled{Agent: a.Name, ReservedEdges: prog.ReservedEdges}

	ex := &executor.Executor{
		Track:    a.Track,
		State:    a.State,
		Position: a.Position,
		Reserver: a,
		Path:     path,
	}
	a.releaseAsReached(prog)
	if err := ex.Execute(prog); err != nil {
		a.fail(err)
		return
	}
	complete := proto.NavigationComplete{Agent: a.Name}
	a.OutputCh <- complete
	a.completeSender.Send(complete)
}

// releaseAsReached arranges for every reserved edge to be released once the
// train's position passes it, in the FIFO order it was reserved (§4.4's
// reservation ordering invariant). A lightweight poller is used rather than
// a callback from Position.Advance to keep the graph/position packages free
// of agent-specific hooks.
func (a *Agent) releaseAsReached(prog navevent.Program) {
	if len(prog.ReservedEdges) == 0 {
		return
	}
	go func() {
		remaining := append([]track.EdgeID(nil), prog.ReservedEdges...)
		ticker := time.NewTicker(a.Config.TickInterval)
		defer ticker.Stop()
		for len(remaining) > 0 {
			<-ticker.C
			head := remaining[0]
			edge := a.Track.Edge(head)
			if a.Position.Node != edge.Source {
				a.release(head)
				remaining = remaining[1:]
			}
		}
	}()
}

func (a *Agent) emitPosition() {
	update := proto.PositionUpdate{
		Name:      a.Name,
		Direction: a.State.Direction,
		Node:      a.Position.Node,
		Edge:      a.Position.Edge,
		Offset:    a.Position.Offset,
		Velocity:  a.State.Velocity(),
	}
	a.OutputCh <- update
	a.positionSender.Send(update)
}

func (a *Agent) fail(err error) {
	zap.S().Errorw("train agent fatal error", "agent", a.Name, "instance", a.InstanceID, "error", err)
	a.OutputCh <- proto.Exception{Agent: a.Name, Err: err}
}

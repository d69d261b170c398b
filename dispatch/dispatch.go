// Package dispatch implements Central Dispatch: the reservation arbiter
// that serializes track element access across train agents with FIFO
// wait queues and wait-cycle deadlock detection, plus the spawnTrain
// entry point external callers use to bring a train agent into being.
package dispatch

import (
	"sync"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/raildispatch/railcore/agent"
	"github.com/raildispatch/railcore/config"
	"github.com/raildispatch/railcore/errs"
	"github.com/raildispatch/railcore/kinematics"
	"github.com/raildispatch/railcore/notify"
	"github.com/raildispatch/railcore/proto"
	"github.com/raildispatch/railcore/track"
)

// ErrReservationDeadlock roots a detected hold-and-wait cycle between two or
// more agents.
var ErrReservationDeadlock = errs.Protocol

type waiter struct {
	agent string
}

// Dispatch owns the global reservation table and routes proto messages
// between agents and the outside world. One Dispatch serves one track.
type Dispatch struct {
	Track  *track.Track
	Pause  *PauseGate
	Config config.Config

	mu         sync.Mutex
	reservedBy map[any]string
	waitQueue  map[any][]waiter
	// holds records each agent's currently-held edges, in the order they
	// were granted, so releaseReservation can enforce §4.7's FIFO release
	// order. The reservation table itself is scoped to edges only
	// (Map<TrackEdge, ReservationRecord>); node reservations — the path
	// endpoints the compiler also emits Reserve events for — are a
	// deliberate no-op here and never appear in reservedBy, waitQueue, or
	// holds (§9).
	holds      map[string][]track.EdgeID
	waitsFor   map[string]track.EdgeID
	// compiledEdges records, per agent, the set of edges its most recently
	// compiled navigation program may reserve (announced via
	// proto.PathCompiled). A ReservationRequest for an edge outside this
	// set is a Protocol error (§7).
	compiledEdges map[string]map[track.EdgeID]bool
	inputs        map[string]chan proto.Inbound
	done          chan struct{}

	reservedByMuxMu sync.Mutex
	reservedByMux   map[any]*notify.MultiplexerSender[string]
	reservedByFeed  map[any]*notify.Multiplexer[string]
}

// New creates a Dispatch serving trk, tunable per cfg (§4.9): cfg governs
// every agent spawned through SpawnTrain and this Dispatch's own Observable
// multiplexers. cfg is validated here, at construction time (§9) — a
// Dispatch never comes into being with an asymmetric-physics or
// non-positive-cadence Config that would otherwise corrupt every train
// spawned from it.
func New(trk *track.Track, cfg config.Config) (*Dispatch, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Dispatch{
		Track:         trk,
		Pause:         NewPauseGate(),
		Config:        cfg,
		reservedBy:    map[any]string{},
		waitQueue:     map[any][]waiter{},
		holds:         map[string][]track.EdgeID{},
		waitsFor:      map[string]track.EdgeID{},
		compiledEdges: map[string]map[track.EdgeID]bool{},
		inputs:        map[string]chan proto.Inbound{},
		done:          make(chan struct{}),

		reservedByMux:  map[any]*notify.MultiplexerSender[string]{},
		reservedByFeed: map[any]*notify.Multiplexer[string]{},
	}, nil
}

// ReservedBy returns an Observable<string> (empty string meaning
// unreserved) tracking element's current holder, creating it on first
// request.
func (d *Dispatch) ReservedBy(element any) *notify.Multiplexer[string] {
	d.reservedByMuxMu.Lock()
	defer d.reservedByMuxMu.Unlock()
	if feed, ok := d.reservedByFeed[element]; ok {
		return feed
	}
	sender, feed := notify.NewMultiplexerSender[string]("reservedBy", d.Config.MultiplexerTimeout)
	d.reservedByMux[element] = sender
	d.reservedByFeed[element] = feed
	return feed
}

func (d *Dispatch) publishReservedBy(element any, agentName string) {
	d.reservedByMuxMu.Lock()
	sender, ok := d.reservedByMux[element]
	d.reservedByMuxMu.Unlock()
	if ok {
		sender.Send(agentName)
	}
}

// AgentHandle is the external-facing reference to a spawned train: a name,
// an inbound channel to drive it, and its observable feeds (§6).
type AgentHandle struct {
	Name string

	agent *agent.Agent

	TrainPosition       *notify.Multiplexer[proto.PositionUpdate]
	CurrentDestination  *notify.Multiplexer[track.NodeID]
	Reservations        *notify.Multiplexer[[]track.EdgeID]
	NavigationCompleted *notify.Multiplexer[proto.NavigationComplete]
}

// NavigateTo asks the train to route to dest and drive there.
func (h *AgentHandle) NavigateTo(dest track.NodeID) {
	h.agent.InputCh <- proto.NavigateTo{Dest: dest}
}

// SpawnTrain creates a Train Agent at start, facing dir, running the given
// VehicleProfile's physics (falling back to d.Config.DefaultVehicleProfile
// when none is supplied), wires it to this Dispatch, and starts its
// goroutine plus the forwarding goroutine that routes its OutputCh into the
// arbiter.
func (d *Dispatch) SpawnTrain(name string, start track.NodeID, dir track.Direction, profile ...kinematics.VehicleProfile) *AgentHandle {
	p := d.Config.DefaultVehicleProfile()
	if len(profile) > 0 {
		p = profile[0]
	}
	a := agent.New(name, d.Track, start, dir, d.Config, p)
	a.Pause = d.Pause

	d.mu.Lock()
	d.inputs[name] = a.InputCh
	d.holds[name] = nil
	d.mu.Unlock()

	go a.Run(d.done)
	go d.pump(a)

	zap.S().Infow("spawned train", "agent", name, "node", start, "direction", dir)

	return &AgentHandle{
		Name:                name,
		agent:               a,
		TrainPosition:       a.PositionFeed,
		CurrentDestination:  a.CurrentDestinationFeed,
		Reservations:        a.ReservationsFeed,
		NavigationCompleted: a.NavigationCompleteFeed,
	}
}

// Close stops every agent's tick loop. Central Dispatch itself does not
// otherwise own a goroutine to shut down.
func (d *Dispatch) Close() {
	close(d.done)
}

func (d *Dispatch) pump(a *agent.Agent) {
	for {
		select {
		case <-d.done:
			return
		case msg := <-a.OutputCh:
			d.handleOutbound(a.Name, msg)
		}
	}
}

func (d *Dispatch) handleOutbound(name string, msg proto.Outbound) {
	switch m := msg.(type) {
	case proto.PathCompiled:
		d.recordCompiledPath(name, m.ReservedEdges)
	case proto.ReservationRequest:
		d.makeReservation(name, m.Element)
	case proto.ReservationRelease:
		d.releaseReservation(name, m.Element)
	case proto.Exception:
		zap.S().Errorw("train agent exception, stopping the world", "agent", name, "error", m.Err)
		d.Pause.Trip()
	case proto.PositionUpdate, proto.NavigationComplete:
		// Nothing for the arbiter to do; agents' own per-kind Multiplexers
		// already serve these to external observers.
	}
}

// recordCompiledPath replaces agentName's set of edges its current
// compiled path may reserve, per a proto.PathCompiled announcement.
func (d *Dispatch) recordCompiledPath(agentName string, edges []track.EdgeID) {
	set := make(map[track.EdgeID]bool, len(edges))
	for _, e := range edges {
		set[e] = true
	}
	d.mu.Lock()
	d.compiledEdges[agentName] = set
	d.mu.Unlock()
}

// makeReservation resolves a ReservationRequest. Node elements are a
// deliberate no-op (§9): the compiler reserves path endpoints in addition
// to edges, but only edges carry exclusivity and FIFO ordering here, so a
// node reservation is confirmed immediately without touching reservedBy,
// waitQueue, or holds. An edge element outside the edge set the agent's
// last proto.PathCompiled announced is a Protocol error (§7) and trips
// d.Pause rather than granting or queueing it. Otherwise it grants
// immediately if free, enqueues a FIFO waiter otherwise, and runs the
// cycle detector over the resulting holds/waits-for graph.
func (d *Dispatch) makeReservation(agentName string, element any) {
	edge, ok := element.(track.EdgeID)
	if !ok {
		d.confirm(agentName, element)
		return
	}

	d.mu.Lock()
	if !d.compiledEdges[agentName][edge] {
		d.mu.Unlock()
		err := errs.Wrap(errs.Protocol, "agent %s requested edge %v outside its compiled path", agentName, edge)
		zap.S().Errorw("reservation requested outside compiled path, stopping the world", "agent", agentName, "element", element, "error", err)
		d.Pause.Trip()
		return
	}
	owner, held := d.reservedBy[edge]
	if !held || owner == agentName {
		ch := d.grant(agentName, edge)
		d.mu.Unlock()
		d.publishReservedBy(edge, agentName)
		if ch != nil {
			ch <- proto.ReservationConfirmed{Element: element}
		}
		return
	}

	if !slices.ContainsFunc(d.waitQueue[edge], func(w waiter) bool { return w.agent == agentName }) {
		d.waitQueue[edge] = append(d.waitQueue[edge], waiter{agent: agentName})
	}
	d.waitsFor[agentName] = edge
	cycle := d.hasCycle(agentName)
	d.mu.Unlock()

	if cycle {
		zap.S().Errorw("reservation deadlock detected, stopping the world",
			"agent", agentName, "element", element)
		d.Pause.Trip()
	}
}

// confirm immediately signals ReservationConfirmed for a node element,
// bypassing reservedBy/holds/waitQueue entirely.
func (d *Dispatch) confirm(agentName string, element any) {
	d.mu.Lock()
	ch := d.inputs[agentName]
	d.mu.Unlock()
	if ch != nil {
		ch <- proto.ReservationConfirmed{Element: element}
	}
}

// grant must be called with mu held; it returns the winning agent's input
// channel so the caller can deliver confirmation after unlocking.
func (d *Dispatch) grant(agentName string, edge track.EdgeID) chan proto.Inbound {
	d.reservedBy[edge] = agentName
	d.holds[agentName] = append(d.holds[agentName], edge)
	delete(d.waitsFor, agentName)
	return d.inputs[agentName]
}

// releaseReservation resolves a ReservationRelease. Node elements are a
// no-op for the same reason makeReservation treats them as one (§9) — the
// agent never actually sends one today, since releaseAsReached only
// releases edges, but a future caller doing so should not error. Edge
// elements must currently be held by agentName and be the head of its
// held-edges list (§4.7's release order rule — edges release in the order
// they were granted); releasing is granted on to the next FIFO waiter, if
// any. A release by a non-owner or out of FIFO order is a Protocol error
// (§7) and, like a detected deadlock, trips d.Pause the same way.
func (d *Dispatch) releaseReservation(agentName string, element any) {
	edge, ok := element.(track.EdgeID)
	if !ok {
		return
	}

	d.mu.Lock()
	owner, held := d.reservedBy[edge]
	if !held || owner != agentName {
		d.mu.Unlock()
		err := errs.Wrap(errs.Protocol, "agent %s released edge %v it does not own (owner %q)", agentName, edge, owner)
		zap.S().Errorw("reservation released by non-owner, stopping the world", "agent", agentName, "element", element, "owner", owner, "error", err)
		d.Pause.Trip()
		return
	}
	order := d.holds[agentName]
	if len(order) == 0 || order[0] != edge {
		d.mu.Unlock()
		err := errs.Wrap(errs.Protocol, "agent %s released edge %v out of order, head is %v", agentName, edge, headOf(order))
		zap.S().Errorw("reservation released out of order, stopping the world", "agent", agentName, "element", element, "error", err)
		d.Pause.Trip()
		return
	}
	d.holds[agentName] = order[1:]
	delete(d.reservedBy, edge)

	queue := d.waitQueue[edge]
	if len(queue) == 0 {
		d.mu.Unlock()
		d.publishReservedBy(edge, "")
		return
	}
	next := queue[0]
	d.waitQueue[edge] = queue[1:]
	ch := d.grant(next.agent, edge)
	d.mu.Unlock()
	d.publishReservedBy(edge, next.agent)
	if ch != nil {
		ch <- proto.ReservationConfirmed{Element: edge}
	}
}

// headOf returns order's first edge, or NoEdge if order is empty — used
// only to describe an out-of-order release in a log line.
func headOf(order []track.EdgeID) track.EdgeID {
	if len(order) == 0 {
		return track.NoEdge
	}
	return order[0]
}

// hasCycle walks the waits-for chain starting at agentName's newly recorded
// wait, returning true if it leads back to agentName. Must be called with
// mu held.
func (d *Dispatch) hasCycle(agentName string) bool {
	visited := map[string]bool{agentName: true}
	elem, ok := d.waitsFor[agentName]
	for ok {
		owner, held := d.reservedBy[elem]
		if !held {
			return false
		}
		if owner == agentName {
			return true
		}
		if visited[owner] {
			return false
		}
		visited[owner] = true
		elem, ok = d.waitsFor[owner]
	}
	return false
}

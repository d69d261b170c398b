package kinematics

import (
	"github.com/raildispatch/railcore/errs"
	"github.com/raildispatch/railcore/track"
)

// State is a single train's scalar motion state: a non-negative speed along
// Direction, plus the two flags the executor coordinates schedule changes
// through — Stopping (a deceleration is in progress, whether because a Stop
// event fired or a direction change needs the train at rest first) and
// ChangingDirection (once Stopping completes, flip Direction instead of
// staying put).
type State struct {
	Physics Physics

	Direction         track.Direction
	Speed             float64 // always >= 0; sign is carried by Direction
	Stopping          bool
	ChangingDirection bool
}

// NewState returns a train at rest, facing dir, under the given physics
// profile.
func NewState(phys Physics, dir track.Direction) *State {
	return &State{Physics: phys, Direction: dir}
}

// Velocity is the signed rate of position change: Speed in the forward
// sense, -Speed in the backward sense.
func (s *State) Velocity() float64 {
	return s.Speed * s.Direction.Coefficient()
}

// Stopped reports whether the train is fully at rest.
func (s *State) Stopped() bool {
	return s.Speed == 0
}

// Update advances the state by dt seconds and returns the signed delta to
// apply to the train's position. A direction flip that becomes due (the
// train reached rest while ChangingDirection was set) is applied before any
// motion for this step, so the returned delta is always in the post-flip
// direction.
func (s *State) Update(dt float64) float64 {
	if s.ChangingDirection && s.Stopped() {
		s.Direction = s.Direction.Inverted()
		s.ChangingDirection = false
		s.Stopping = false
	}

	var delta float64
	if s.Stopping {
		delta, s.Speed = s.Physics.decelerate(s.Speed, dt)
	} else {
		delta, s.Speed = s.Physics.accelerate(s.Speed, dt)
	}
	s.Speed = s.Physics.clamp(s.Speed)
	return delta * s.Direction.Coefficient()
}

// BeginStop marks the train as decelerating. Idempotent.
func (s *State) BeginStop() {
	s.Stopping = true
}

// BeginDirectionChange flips Direction immediately if the train is already
// stopped, otherwise begins a stop and arranges for the flip to happen once
// it completes. Called by the executor's SetDirection handler.
func (s *State) BeginDirectionChange() {
	if s.Stopped() {
		s.Direction = s.Direction.Inverted()
		return
	}
	s.Stopping = true
	s.ChangingDirection = true
}

// ClearStopping releases the Stopping flag, letting Update accelerate
// again. Called by the executor's Start handler, which first asserts the
// train is stopped.
func (s *State) ClearStopping() {
	s.Stopping = false
}

// ForceStop hard-zeros Speed when it is already below the negligible
// threshold (0.1), the case where a scheduled Stop's timing ran the speed
// down but floating-point integration left a residue. Anything larger
// indicates the schedule that produced this ForceStop call diverged from
// the physics that will actually execute it.
func (s *State) ForceStop() error {
	if s.Speed < 0.1 {
		s.Speed = 0
		return nil
	}
	return errs.Wrap(errs.PhysicsDivergence, "forceStop called at speed %.4f", s.Speed)
}

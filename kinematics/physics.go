// Package kinematics implements bounded-acceleration scalar motion: a train
// accelerates toward its physics profile's maximum speed, decelerates to a
// stop, and flips direction only once fully stopped. The integration
// formulas (including the mid-interval split when a speed bound is crossed
// during a single update) are the constant-acceleration model used
// throughout the rest of the ecosystem for exactly this kind of
// traction/braking physics.
package kinematics

import "math"

// Physics is a named bundle of motion constants. AccelerationRate must be
// positive, DecelerationRate negative; Config (see the config package)
// asserts |DecelerationRate| == AccelerationRate, which the executor's
// Stop-timing formula (§4.5) assumes.
type Physics struct {
	AccelerationRate float64 // units/s^2, > 0
	DecelerationRate float64 // units/s^2, < 0
	MaxSpeed         float64 // units/s, > 0
}

// Default returns the reference physics profile from the specification:
// acceleration 2.0, deceleration -2.0, max speed 10.0.
func Default() Physics {
	return Physics{AccelerationRate: 2.0, DecelerationRate: -2.0, MaxSpeed: 10.0}
}

// VehicleProfile names a rolling-stock's physical size and motion
// constants together, the way a real roster assigns one equipment type to
// many individual trains. A spawned train is assigned exactly one
// VehicleProfile for its lifetime; Length is carried for callers that need
// it (e.g. clearance/occupancy checks beyond this core) but the tick loop
// itself only consumes Physics.
type VehicleProfile struct {
	Name    string
	Length  float64
	Physics Physics
}

// DefaultVehicleProfile is the package-level fallback profile, carrying
// Default() physics. SpawnTrain itself falls back to config.Config's own
// DefaultVehicleProfile method instead, so a host's configured physics
// reaches trains spawned without a named profile; this variant remains for
// callers constructing an Agent directly without a config.Config in hand.
func DefaultVehicleProfile() VehicleProfile {
	return VehicleProfile{Name: "default", Length: 20, Physics: Default()}
}

// decelRate returns |DecelerationRate| as a positive magnitude.
func (p Physics) decelRate() float64 { return -p.DecelerationRate }

// MaxStoppingDistance is the distance needed to decelerate from MaxSpeed to
// a stop: MaxSpeed^2 / (2*|d|).
func (p Physics) MaxStoppingDistance() float64 {
	return (p.MaxSpeed * p.MaxSpeed) / (2 * p.decelRate())
}

// DistanceAcceleratingFromStop is the distance covered accelerating from 0
// to MaxSpeed: MaxSpeed^2 / (2*a).
func (p Physics) DistanceAcceleratingFromStop() float64 {
	return (p.MaxSpeed * p.MaxSpeed) / (2 * p.AccelerationRate)
}

// TimeToMaxSpeed is the time needed to accelerate from 0 to MaxSpeed.
func (p Physics) TimeToMaxSpeed() float64 {
	return p.MaxSpeed / p.AccelerationRate
}

// StoppingDistance returns the distance needed to decelerate to zero from
// speed v: v^2 / (2*|d|).
func (p Physics) StoppingDistance(v float64) float64 {
	return (v * v) / (2 * p.decelRate())
}

// StoppingTime returns the time needed to decelerate to zero from speed v.
func (p Physics) StoppingTime(v float64) float64 {
	return v / p.decelRate()
}

// accelerate advances speed v0 toward MaxSpeed over duration t, returning
// the distance travelled and the new speed. If v0+a*t would exceed
// MaxSpeed, the interval is split: accelerate up to MaxSpeed, then cruise
// for the remainder.
func (p Physics) accelerate(v0, t float64) (deltaPosition, newSpeed float64) {
	a := p.AccelerationRate
	if v0+a*t <= p.MaxSpeed {
		return v0*t + 0.5*a*t*t, v0 + a*t
	}
	t1 := (p.MaxSpeed - v0) / a
	d1 := v0*t1 + 0.5*a*t1*t1
	d2 := p.MaxSpeed * (t - t1)
	return d1 + d2, p.MaxSpeed
}

// decelerate brakes speed v0 toward zero over duration t, returning the
// distance travelled and the new speed. If v0+d*t would go negative (d<0),
// the interval is bounded: brake to zero, then stay there.
func (p Physics) decelerate(v0, t float64) (deltaPosition, newSpeed float64) {
	d := p.DecelerationRate
	if v0+d*t >= 0 {
		return v0*t + 0.5*d*t*t, v0 + d*t
	}
	t1 := v0 / p.decelRate()
	delta := v0*t1 + 0.5*d*t1*t1
	return delta, 0
}

// clamp keeps speed within [0, MaxSpeed], guarding against floating-point
// drift at the integration boundaries.
func (p Physics) clamp(speed float64) float64 {
	return math.Max(0, math.Min(speed, p.MaxSpeed))
}

package kinematics

import (
	"math"
	"testing"

	"github.com/raildispatch/railcore/errs"
	"github.com/raildispatch/railcore/track"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAccelerateWithinBound(t *testing.T) {
	p := Default()
	delta, v := p.accelerate(0, 1)
	if !almostEqual(v, 2) {
		t.Errorf("v = %v, want 2", v)
	}
	if !almostEqual(delta, 1) { // 0*1 + 0.5*2*1^2
		t.Errorf("delta = %v, want 1", delta)
	}
}

func TestAccelerateSplitAtMaxSpeed(t *testing.T) {
	p := Default() // a=2, vmax=10 -> reaches vmax after t1=5s
	delta, v := p.accelerate(0, 6)
	if !almostEqual(v, p.MaxSpeed) {
		t.Errorf("v = %v, want %v", v, p.MaxSpeed)
	}
	want := 0.5*2*5*5 + 10*1 // accelerate 5s then cruise 1s
	if !almostEqual(delta, want) {
		t.Errorf("delta = %v, want %v", delta, want)
	}
}

func TestDecelerateSplitAtZero(t *testing.T) {
	p := Default() // d=-2, from v=3 reaches 0 after t1=1.5s
	delta, v := p.decelerate(3, 2)
	if v != 0 {
		t.Errorf("v = %v, want 0", v)
	}
	want := 3*1.5 + 0.5*(-2)*1.5*1.5
	if !almostEqual(delta, want) {
		t.Errorf("delta = %v, want %v", delta, want)
	}
}

func TestDerivedQuantities(t *testing.T) {
	p := Default()
	if !almostEqual(p.MaxStoppingDistance(), 25) { // 10^2/(2*2)
		t.Errorf("MaxStoppingDistance = %v, want 25", p.MaxStoppingDistance())
	}
	if !almostEqual(p.DistanceAcceleratingFromStop(), 25) {
		t.Errorf("DistanceAcceleratingFromStop = %v, want 25", p.DistanceAcceleratingFromStop())
	}
	if !almostEqual(p.TimeToMaxSpeed(), 5) {
		t.Errorf("TimeToMaxSpeed = %v, want 5", p.TimeToMaxSpeed())
	}
}

func TestStateUpdateAccelerates(t *testing.T) {
	s := NewState(Default(), track.Forward)
	delta := s.Update(1)
	if !almostEqual(delta, 1) {
		t.Errorf("delta = %v, want 1", delta)
	}
	if !almostEqual(s.Speed, 2) {
		t.Errorf("speed = %v, want 2", s.Speed)
	}
}

func TestStateUpdateBackwardIsNegative(t *testing.T) {
	s := NewState(Default(), track.Backward)
	delta := s.Update(1)
	if delta >= 0 {
		t.Errorf("delta = %v, want negative", delta)
	}
}

func TestBeginDirectionChangeImmediateWhenStopped(t *testing.T) {
	s := NewState(Default(), track.Forward)
	s.BeginDirectionChange()
	if s.Direction != track.Backward {
		t.Errorf("direction = %v, want backward", s.Direction)
	}
	if s.Stopping || s.ChangingDirection {
		t.Errorf("stopping/changingDirection should not be set on an immediate flip")
	}
}

func TestBeginDirectionChangeWhileMovingDefersFlip(t *testing.T) {
	s := NewState(Default(), track.Forward)
	s.Update(1) // speed now 2
	s.BeginDirectionChange()
	if !s.Stopping || !s.ChangingDirection {
		t.Fatalf("expected stopping+changingDirection to be set")
	}
	for i := 0; i < 10 && !s.Stopped(); i++ {
		s.Update(0.5)
	}
	if !s.Stopped() {
		t.Fatalf("train never came to rest")
	}
	s.Update(0.001) // tiny step to let the deferred flip apply
	if s.Direction != track.Backward {
		t.Errorf("direction = %v, want backward after deferred flip", s.Direction)
	}
	if s.Stopping || s.ChangingDirection {
		t.Errorf("flags should clear once the flip applies")
	}
}

func TestForceStopZeroesNegligibleSpeed(t *testing.T) {
	s := NewState(Default(), track.Forward)
	s.Speed = 0.05
	if err := s.ForceStop(); err != nil {
		t.Fatalf("ForceStop: %v", err)
	}
	if s.Speed != 0 {
		t.Errorf("speed = %v, want 0", s.Speed)
	}
}

func TestForceStopRejectsRealSpeed(t *testing.T) {
	s := NewState(Default(), track.Forward)
	s.Speed = 4
	err := s.ForceStop()
	if !errs.Is(err, errs.PhysicsDivergence) {
		t.Errorf("err = %v, want PhysicsDivergence", err)
	}
}

func TestClearStoppingAllowsReacceleration(t *testing.T) {
	s := NewState(Default(), track.Forward)
	s.BeginStop()
	s.ClearStopping()
	delta := s.Update(1)
	if delta <= 0 {
		t.Errorf("delta = %v, want positive (accelerating again)", delta)
	}
}

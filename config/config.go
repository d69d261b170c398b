// Package config collects the constants a host process may want to
// override without touching source: train physics, tick cadence, and
// multiplexer timeouts. It never reads environment variables or files —
// that belongs to the process bootstrap, which is outside the core.
package config

import (
	"fmt"
	"time"

	"github.com/raildispatch/railcore/kinematics"
)

// Config bundles every tunable the core's packages were built assuming
// sane defaults for. Zero-value Config is not usable; call Default or
// fill every field.
type Config struct {
	// Physics is the reference physics profile SpawnTrain's
	// DefaultVehicleProfile falls back to when a caller spawns a train
	// without naming a kinematics.VehicleProfile of its own.
	Physics kinematics.Physics

	// TickInterval is the agent goroutine's kinematic update period.
	TickInterval time.Duration
	// TelemetryEveryNTicks is how many ticks elapse between PositionUpdate
	// emissions. TickInterval * TelemetryEveryNTicks is the visible
	// telemetry cadence (10ms * 100 = one update per second by default).
	TelemetryEveryNTicks int

	// MultiplexerTimeout bounds how long a slow Observable subscriber may
	// block a publisher before the send is abandoned and logged.
	MultiplexerTimeout time.Duration
}

// Default returns the reference configuration matching the literal
// constants used throughout the core.
func Default() Config {
	return Config{
		Physics:              kinematics.Default(),
		TickInterval:         10 * time.Millisecond,
		TelemetryEveryNTicks: 100,
		MultiplexerTimeout:   200 * time.Millisecond,
	}
}

// DefaultVehicleProfile returns the built-in vehicle profile SpawnTrain
// assigns a train when the caller doesn't name one, carrying c.Physics
// rather than the package-level kinematics.Default() so a host's
// configured physics actually reaches trains spawned without an explicit
// profile.
func (c Config) DefaultVehicleProfile() kinematics.VehicleProfile {
	return kinematics.VehicleProfile{Name: "default", Length: 20, Physics: c.Physics}
}

// Validate asserts the one invariant the executor's Stop-timing formula
// relies on: acceleration and deceleration have equal magnitude. This is a
// host misconfiguration, not one of the runtime error kinds in errs — it
// is caught before any agent or dispatch goroutine starts.
func (c Config) Validate() error {
	if c.Physics.AccelerationRate <= 0 {
		return fmt.Errorf("config: AccelerationRate must be > 0, got %v", c.Physics.AccelerationRate)
	}
	if c.Physics.DecelerationRate >= 0 {
		return fmt.Errorf("config: DecelerationRate must be < 0, got %v", c.Physics.DecelerationRate)
	}
	if c.Physics.AccelerationRate != -c.Physics.DecelerationRate {
		return fmt.Errorf("config: |DecelerationRate| (%v) must equal AccelerationRate (%v)",
			-c.Physics.DecelerationRate, c.Physics.AccelerationRate)
	}
	if c.Physics.MaxSpeed <= 0 {
		return fmt.Errorf("config: MaxSpeed must be > 0, got %v", c.Physics.MaxSpeed)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("config: TickInterval must be > 0")
	}
	if c.TelemetryEveryNTicks <= 0 {
		return fmt.Errorf("config: TelemetryEveryNTicks must be > 0")
	}
	return nil
}

// Package errs defines the four fatal error kinds a train agent can raise
// (topology, protocol, physics divergence, sequencing) and a small Kind
// helper so callers can classify a wrapped error with errors.Is instead of
// string matching.
package errs

import (
	"errors"
	"fmt"
)

// Kind roots every fatal error the core can produce. Each is a sentinel so
// errors.Is(err, errs.Protocol) works through any number of fmt.Errorf("%w")
// wraps.
type Kind error

var (
	// Topology covers malformed track construction and unreachable
	// pathfinding targets.
	Topology Kind = errors.New("topology error")
	// Protocol covers unknown inbound messages, out-of-order or
	// out-of-ownership reservation releases, a reservation requested for an
	// edge outside the agent's compiled path, and reservation deadlocks.
	Protocol Kind = errors.New("protocol error")
	// PhysicsDivergence covers forceStop/normalizeToClosestNode being
	// called outside the bounds the schedule guaranteed.
	PhysicsDivergence Kind = errors.New("physics divergence")
	// Sequencing covers events executed out of the legal order (Start
	// while moving, SetDirection while moving, SetSwitch(curve) on a
	// non-branching node).
	Sequencing Kind = errors.New("sequencing error")
)

// Wrap produces an error that is both a %w-wrapped detail message and
// classifiable via errors.Is(err, kind).
func Wrap(kind Kind, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Is reports whether err is rooted in kind.
func Is(err error, kind Kind) bool {
	return errors.Is(err, kind)
}

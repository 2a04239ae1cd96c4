// Package strategy implements the pluggable exploration strategies that
// decide, at each scheduler yield point, which enabled operation runs next
// and what values nondeterministic boolean/integer choices take.
//
// The kernel depends on this package, never the other way around: a
// Strategy only ever sees the enabled set and the current operation id it
// is handed, and returns a decision. It needs no synchronization of its
// own because the kernel only ever calls it while holding the kernel lock
// and only from the thread that currently holds the token.
package strategy

import (
	"fmt"
	"strings"
)

// OperationID mirrors kernel.OperationID without importing the kernel
// package, keeping the dependency direction one-way (kernel -> strategy).
type OperationID uint64

// Type is a closed enumeration of the strategies the kernel knows how to
// construct. Per the design notes, a sum type over a closed set of
// strategies is preferable here to an open plugin interface: the
// strategies are a fixed set, and exhaustive switches on Type catch
// missing cases at review time rather than at runtime.
type Type int

const (
	None Type = iota
	Random
	PCT
)

func (t Type) String() string {
	switch t {
	case None:
		return "None"
	case Random:
		return "Random"
	case PCT:
		return "PCT"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ParseType maps the exploration_strategy configuration string (§6) onto a
// Type, case-insensitively.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return None, nil
	case "random":
		return Random, nil
	case "pct":
		return PCT, nil
	default:
		return None, fmt.Errorf("unknown exploration strategy %q", s)
	}
}

// Config carries the configuration options of spec.md §6 that strategies
// read at construction time.
type Config struct {
	Type                     Type
	ExplorationStrategyBound uint
	RandomSeed               uint64
}

// Strategy is the pluggable decision procedure the kernel consults at every
// scheduling point. Implementations must be deterministic given a fixed
// seed and a fixed sequence of calls: the kernel relies on that for the
// reproducibility property (spec.md §8, S6).
type Strategy interface {
	// NextOperation picks one id from enabled and returns it. It must not
	// return an id that is not a member of enabled; the kernel treats a
	// violation as an internal error. enabled is never empty when this is
	// called — the kernel checks that beforehand.
	NextOperation(enabled []OperationID, current OperationID) (OperationID, error)

	// NextBoolean and NextInteger are the sole source of controlled
	// nondeterminism over data, as opposed to scheduling order.
	NextBoolean() bool
	NextInteger(max int) int

	// RandomSeed returns the seed driving the current iteration, so a
	// failing run can be reproduced by re-supplying it verbatim.
	RandomSeed() uint64

	// PrepareNextIteration is called once per new iteration, starting
	// from the second (attach's iteration counter starts at 1).
	PrepareNextIteration(iteration int)
}

// New constructs the Strategy named by cfg.Type. Callers that configured
// Type == None should never reach here: the kernel treats None as "no
// strategy at all" and short-circuits every entry point with
// SchedulerDisabled before it would need to consult one.
func New(cfg Config) (Strategy, error) {
	switch cfg.Type {
	case Random:
		return newRandomStrategy(cfg.RandomSeed), nil
	case PCT:
		return newPCTStrategy(cfg.RandomSeed, cfg.ExplorationStrategyBound), nil
	case None:
		return nil, fmt.Errorf("strategy.New called with Type none")
	default:
		return nil, fmt.Errorf("unknown strategy type %v", cfg.Type)
	}
}

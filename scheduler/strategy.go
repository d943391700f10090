// Package scheduler implements the scheduler core described in §4.3: the
// run-queue of enabled machines, the pluggable exploration strategy that
// picks which one advances, and the nondeterminism oracle that routes
// random choices through that same strategy. Grounded directly on the
// teacher's two-tier GlobalScheduler/RunScheduler split
// (scheduler.GlobalScheduler, scheduler.RunScheduler in the retrieval
// pack), generalized from "pick an event" to "pick an enabled machine,
// then run exactly one step".
package scheduler

import (
	"github.com/psharp-go/psharp/event"
)

// Strategy is the exploration-strategy interface every scheduling policy
// implements: Random, DFS, Replay, and Priority.
type Strategy interface {
	// NextOperation picks one machine id from enabled to advance next.
	NextOperation(enabled []event.MachineId) (event.MachineId, error)

	// NextBool and NextInt answer a nondeterministic choice made by
	// user code, routed here so that replay can reproduce it exactly.
	NextBool(max uint32) bool
	NextInt(max uint32) uint32

	// PrepareNextIteration resets internal state for a new run and
	// reports whether another run remains to be explored.
	PrepareNextIteration() bool

	// Seed returns the seed used to construct this strategy, recorded in
	// the schedule-trace header.
	Seed() uint64

	// Name identifies the strategy for the schedule-trace header and the
	// CLI's --strategy flag.
	Name() string
}

package machine

import (
	"github.com/psharp-go/psharp/event"
)

// Context is the machine-side API: the only way a handler, entry, or exit
// function may affect the world outside its own local variables. Per the
// design note on the global mutable runtime, every handler receives this
// explicit value instead of reaching into package-level state.
type Context interface {
	// Raise queues evt to be dispatched as the current event of the next
	// handler invocation, ahead of any inbox event, within the same step.
	// A second Raise within one handler invocation is a fatal
	// AssertionFailure.
	Raise(evt event.Event)

	// Goto pops the current state (running its exit handler) and pushes
	// target (running its entry handler), applied after the calling
	// handler returns.
	Goto(target StateName)

	// Push pushes target without popping the current state, applied after
	// the calling handler returns.
	Push(target StateName)

	// Pop pops the current state, running its exit handler. Popping the
	// last frame halts the machine.
	Pop()

	// Send enqueues evt into target's inbox, applied after the calling
	// handler returns. Options may be omitted.
	Send(target event.MachineId, evt event.Event, opts ...event.SendOptions)

	// CreateMachine allocates an id for a new instance of typeName and
	// schedules its instantiation, applied after the calling handler
	// returns. The returned id is valid immediately.
	CreateMachine(typeName string, initial *event.Event, friendlyName string) event.MachineId

	// Monitor synchronously invokes the named monitor type with evt,
	// running it to quiescence before returning.
	Monitor(monitorType string, evt event.Event)

	// Assert reports a fatal AssertionFailure if cond is false.
	Assert(cond bool, msgFormat string, args ...any)

	// RandomBool asks the exploration strategy for a boolean choice. max
	// is passed to the strategy: Random and Priority return true unless a
	// draw from [0, max) is 0 (max 0 counts as 2), and DFS always returns
	// false. Only the result is recorded in the traces.
	RandomBool(max uint32) bool

	// RandomInt asks the exploration strategy for an integer choice in
	// [0, max).
	RandomInt(max uint32) uint32

	// Receive suspends the current step until an event of one of the given
	// types arrives, then returns it as the new current event. Only valid
	// from within a handler, never from Entry/Exit.
	Receive(types ...event.EventType) event.Event

	// Self returns the id of the machine executing this handler.
	Self() event.MachineId

	// CurrentState returns the name of the state whose handler is running.
	CurrentState() StateName
}

type opKind int

const (
	opRaise opKind = iota
	opGoto
	opPush
	opPop
	opSend
	opCreate
)

// trappedOp records one buffered side-effecting operation, applied in
// occurrence order after the triggering handler returns to completion.
type trappedOp struct {
	kind opKind

	raiseEvt event.Event

	stateTarget StateName

	sendTarget event.MachineId
	sendEvt    event.Event
	sendOpts   event.SendOptions
	hasSendOpt bool

	createType      string
	createEvt       *event.Event
	createFriendly  string
	createID        event.MachineId
}

// Package event defines the immutable value types that flow through the
// bug-finding runtime: machine identities, typed events, and the envelope
// that ties an event to the step that produced it.
package event

import (
	"fmt"

	"github.com/google/uuid"
)

// EventType identifies the shape of an Event's payload. Two events with the
// same EventType are expected to be handled by the same action/goto/push
// entry of a machine's state metadata.
type EventType string

// Event is an immutable message exchanged between machines, or delivered to
// a machine by the runtime itself (e.g. a halt request). Payload equality is
// not required; events are compared by identity for deduplication purposes
// only where the runtime explicitly says so (receive filters, assert-at-most-N).
type Event struct {
	Type    EventType
	Payload any
}

// NewEvent creates an Event of the given type carrying payload.
func NewEvent(t EventType, payload any) Event {
	return Event{Type: t, Payload: payload}
}

func (e Event) String() string {
	return fmt.Sprintf("{%s %v}", e.Type, e.Payload)
}

// SendOptions are recognized options attached to a Send call. The zero value
// means "no priority, must_handle=false, no in-flight assertion".
type SendOptions struct {
	// OperationGroupID overrides the sender's current operation group for
	// this send. Zero value means "inherit from the sender".
	OperationGroupID uuid.UUID

	// MustHandle makes dropping this event on a halted target a fatal
	// AssertionFailure instead of a silently logged drop.
	MustHandle bool

	// AssertAtMostN, when non-nil, requires that after this send the
	// target's inbox contains at most N undequeued events of this Type.
	AssertAtMostN *uint32
}

// MachineId is the globally-unique, partition-tagged identity of a machine.
// Two ids are equal iff their runtime-scoped sequence numbers match; the
// other fields exist for human-readable diagnostics and cross-serialization
// stability (the UUID component survives a network hop where the sequence
// number, scoped to a single runtime instance, would not).
type MachineId struct {
	// Seq is a monotonically increasing counter scoped to the runtime that
	// created the machine. It is the sole equality key.
	Seq uint64

	// UID is a process-independent identifier, stable across serialization
	// and network-provider hops.
	UID uuid.UUID

	TypeName     string
	FriendlyName string
	Partition    string
}

// Equal reports whether two ids name the same machine.
func (id MachineId) Equal(other MachineId) bool {
	return id.Seq == other.Seq
}

func (id MachineId) String() string {
	if id.FriendlyName != "" {
		return fmt.Sprintf("%s(%d,%s)", id.FriendlyName, id.Seq, id.Partition)
	}
	return fmt.Sprintf("%s(%d,%s)", id.TypeName, id.Seq, id.Partition)
}

// IsZero reports whether id is the unset MachineId, used as a sentinel for
// "no sender" (e.g. the test entry point) and "no such machine".
func (id MachineId) IsZero() bool {
	return id.Seq == 0 && id.TypeName == "" && id.UID == uuid.Nil
}

// EventId is the identifier of a schedulable operation — a machine step, a
// nondeterministic choice, or a monitor invocation — used by the scheduler
// and the schedule trace. Two operations that would, given the same input
// state, produce the same output state share an EventId; this is what lets
// the DFS strategy recognize it has already explored a branch.
type EventId string

// EventEnvelope is an event together with the metadata needed to dispatch it
// correctly: who sent it, which operation it correlates with, and the
// sender-relative sequence number used to enforce per-sender FIFO.
type EventEnvelope struct {
	Event            Event
	Sender           MachineId
	OperationGroupID uuid.UUID
	SendSeq          uint64
}

func (e EventEnvelope) String() string {
	return fmt.Sprintf("{from=%s type=%s seq=%d}", e.Sender, e.Event.Type, e.SendSeq)
}

// NewOperationGroupID creates a fresh correlation id for a newly created
// machine or an unrelated send.
func NewOperationGroupID() uuid.UUID {
	return uuid.New()
}

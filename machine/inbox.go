package machine

import (
	"sync"

	"github.com/psharp-go/psharp/event"
)

// Inbox is a machine's event queue: a FIFO deque supporting enqueue,
// filtered dequeue (skipping ignored and deferred types in place), and the
// receive override, where only envelopes matching a waiting set may be
// consumed. Grounded on the per-sender-FIFO send semantics of the teacher's
// message-event dispatch, generalized to support deferral.
type Inbox struct {
	mu   sync.Mutex
	q    []event.EventEnvelope
	sent map[event.MachineId]uint64 // per-sender send sequence, for FIFO bookkeeping
}

// NewInbox creates an empty inbox.
func NewInbox() *Inbox {
	return &Inbox{sent: make(map[event.MachineId]uint64)}
}

// Enqueue appends an envelope to the tail of the queue. Call-site callers
// are expected to have already stamped SendSeq; Enqueue does not mutate the
// envelope.
func (ib *Inbox) Enqueue(env event.EventEnvelope) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	ib.q = append(ib.q, env)
}

// Len reports the number of envelopes currently queued.
func (ib *Inbox) Len() int {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	return len(ib.q)
}

// CountOfType reports how many queued envelopes carry the given event type,
// used to enforce assert_at_most_n.
func (ib *Inbox) CountOfType(t event.EventType) int {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	n := 0
	for _, e := range ib.q {
		if e.Event.Type == t {
			n++
		}
	}
	return n
}

// DequeueFiltered scans the queue head-to-tail, skipping (and permanently
// discarding) ignored types and skipping (but retaining in place) deferred
// types, returning the first envelope that is neither. ok is false if no
// such envelope exists.
func (ib *Inbox) DequeueFiltered(ignored, deferred map[event.EventType]bool) (event.EventEnvelope, bool) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	for i, e := range ib.q {
		if ignored[e.Event.Type] {
			ib.q = append(ib.q[:i], ib.q[i+1:]...)
			return ib.DequeueFilteredLocked(ignored, deferred)
		}
		if deferred[e.Event.Type] {
			continue
		}
		ib.q = append(ib.q[:i], ib.q[i+1:]...)
		return e, true
	}
	return event.EventEnvelope{}, false
}

// DequeueFilteredLocked re-enters the scan after a mutation made while
// already holding the lock (used internally when discarding an ignored
// event requires restarting the scan).
func (ib *Inbox) DequeueFilteredLocked(ignored, deferred map[event.EventType]bool) (event.EventEnvelope, bool) {
	for i, e := range ib.q {
		if ignored[e.Event.Type] {
			ib.q = append(ib.q[:i], ib.q[i+1:]...)
			return ib.DequeueFilteredLocked(ignored, deferred)
		}
		if deferred[e.Event.Type] {
			continue
		}
		ib.q = append(ib.q[:i], ib.q[i+1:]...)
		return e, true
	}
	return event.EventEnvelope{}, false
}

// HasDequeuable reports whether DequeueFiltered would currently succeed,
// without mutating the queue. Ignored events still count as "dequeuable"
// for enabledness purposes since dequeuing them makes progress (they are
// discarded, and the scan continues within the same step).
func (ib *Inbox) HasDequeuable(ignored, deferred map[event.EventType]bool) bool {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	for _, e := range ib.q {
		if ignored[e.Event.Type] || !deferred[e.Event.Type] {
			return true
		}
	}
	return false
}

// DequeueMatching consumes and returns the first envelope whose type is in
// waiting, leaving every other envelope (including otherwise-deferred or
// otherwise-ignored ones) in place, per the receive override rule.
func (ib *Inbox) DequeueMatching(waiting map[event.EventType]struct{}) (event.EventEnvelope, bool) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	for i, e := range ib.q {
		if _, ok := waiting[e.Event.Type]; ok {
			ib.q = append(ib.q[:i], ib.q[i+1:]...)
			return e, true
		}
	}
	return event.EventEnvelope{}, false
}

// HasMatching reports whether an envelope matching waiting is present.
func (ib *Inbox) HasMatching(waiting map[event.EventType]struct{}) bool {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	for _, e := range ib.q {
		if _, ok := waiting[e.Event.Type]; ok {
			return true
		}
	}
	return false
}

// NextSendSeq returns the next per-sender sequence number for sender,
// incrementing the internal counter. Used by the caller enqueuing into a
// *target*'s inbox so that two sends from the same sender to the same
// target preserve program order regardless of scheduling.
func (ib *Inbox) NextSendSeq(sender event.MachineId) uint64 {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	ib.sent[sender]++
	return ib.sent[sender]
}

// Drain empties the inbox and returns its contents, used when a machine
// halts and its inbox is discarded (invariant 1).
func (ib *Inbox) Drain() []event.EventEnvelope {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	out := ib.q
	ib.q = nil
	return out
}

// Snapshot returns a copy of the queue contents without mutating it, used
// for trace/diagnostic reporting (e.g. deadlock machine state dumps).
func (ib *Inbox) Snapshot() []event.EventEnvelope {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	out := make([]event.EventEnvelope, len(ib.q))
	copy(out, ib.q)
	return out
}

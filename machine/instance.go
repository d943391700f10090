package machine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/psharp-go/psharp/event"
	"github.com/psharp-go/psharp/pserrors"
	"github.com/psharp-go/psharp/trace"
)

// Environment is the explicit, passed-in runtime a machine instance calls
// out to for everything it cannot decide locally: identity allocation,
// nondeterministic choices, monitor invocation, and delivery of buffered
// sends/creates to the rest of the system. Per the design note on the
// global mutable runtime, there is no package-level state machines reach
// into; everything flows through this interface.
type Environment interface {
	NextRandomBool(max uint32) bool
	NextRandomInt(max uint32) uint32
	InvokeMonitor(monitorType string, evt event.Event, sender event.MachineId)
	AllocateMachineId(typeName, friendlyName string) event.MachineId
	DeliverSend(target event.MachineId, env event.EventEnvelope, opts event.SendOptions) error
	DeliverCreate(id event.MachineId, typeName string, initial *event.Event, creator event.MachineId, opGroup uuid.UUID)
	Trace() *trace.BugTrace
}

// stepOutcome is what a handler invocation (possibly spanning several
// Step calls via receive suspensions) reports back to runOnce.
type stepOutcome struct {
	err      error
	waitFor  map[event.EventType]struct{} // non-nil iff the handler suspended on Receive
	panicVal any                          // non-nil iff the handler panicked with ignorePanics set
}

// Instance is the mutable, per-actor state the scheduler drives one step at
// a time: the state stack, inbox, raised-event slot, pending-receive set,
// and halted flag described by the machine instance data model.
type Instance struct {
	mu sync.Mutex

	Id   event.MachineId
	Type *MachineType

	stack     []StateName
	inbox     *Inbox
	raised    *event.EventEnvelope
	waitingOn map[event.EventType]struct{}
	halted    bool
	opGroupID uuid.UUID

	everStepped bool
	pendingOps  []trappedOp

	// Goroutine-based coroutine state for a handler suspended in Receive.
	suspended bool
	resumeCh  chan event.EventEnvelope
	doneCh    chan stepOutcome
	curEvt    event.Event
	curState  StateName

	ignorePanics bool
}

// NewInstance creates a fresh, not-yet-stepped instance of typ identified
// by id, pushed onto the type's start state.
func NewInstance(id event.MachineId, typ *MachineType, opGroup uuid.UUID) *Instance {
	return &Instance{
		Id:        id,
		Type:      typ,
		stack:     []StateName{typ.start},
		inbox:     NewInbox(),
		opGroupID: opGroup,
	}
}

// Inbox exposes the instance's inbox so the scheduler/environment can
// enqueue sends into it.
func (in *Instance) Inbox() *Inbox { return in.inbox }

// SetIgnorePanics controls whether a panic raised by this instance's entry,
// exit, or action handlers is recovered and reported as an
// UnhandledException (the default) or left to propagate out of Step
// uncaught, per psoptions.IgnorePanics.
func (in *Instance) SetIgnorePanics(ignore bool) { in.ignorePanics = ignore }

// Halted reports whether the machine has halted.
func (in *Instance) Halted() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.halted
}

// Crash marks the instance halted without running any exit handler,
// modeling an external failure injected between steps rather than the
// machine's own pop-to-empty-stack halt. Grounded on GoMC's
// PerfectFailureManager, which removes a node from the live set outright
// rather than giving it a chance to react.
func (in *Instance) Crash() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.halted = true
}

// CurrentState returns the top of the state stack.
func (in *Instance) CurrentState() StateName {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.stack) == 0 {
		return ""
	}
	return in.stack[len(in.stack)-1]
}

// OperationGroupID returns the operation group this instance was created
// under.
func (in *Instance) OperationGroupID() uuid.UUID {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.opGroupID
}

// StackSnapshot returns a copy of the full state stack, bottom to top, for
// callers (the reliable overlay) that need to persist it durably.
func (in *Instance) StackSnapshot() []StateName {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]StateName, len(in.stack))
	copy(out, in.stack)
	return out
}

// WaitingOn returns the set of event types the instance is blocked on, or
// nil if it is not currently suspended in a receive.
func (in *Instance) WaitingOn() map[event.EventType]struct{} {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.waitingOn
}

// IsEnabled reports whether granting this instance the next step would
// make observable progress, per the scheduler's enabled-set definition.
func (in *Instance) IsEnabled() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.halted {
		return false
	}
	if in.raised != nil {
		return true
	}
	if !in.everStepped {
		return true
	}
	flat := in.Type.resolve(in.stack[len(in.stack)-1])
	if in.waitingOn != nil {
		return in.inbox.HasMatching(in.waitingOn)
	}
	return in.inbox.HasDequeuable(flat.ignored, flat.deferred)
}

// HasUnmatchedReceive reports whether the instance is blocked in a receive
// for which no matching event is currently queued, used by deadlock
// detection.
func (in *Instance) HasUnmatchedReceive() (bool, map[event.EventType]struct{}) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.halted || in.waitingOn == nil {
		return false, nil
	}
	if in.inbox.HasMatching(in.waitingOn) {
		return false, nil
	}
	return true, in.waitingOn
}

// Step runs exactly one scheduler-visible step of the machine: it resolves
// the current envelope (raised, matching-receive, or plain dequeue),
// dispatches it, and then drains any chain of raise-triggered follow-up
// dispatches the handler produced, all within this single call, per the
// unreachable-assert scenario's requirement that an entry-raise-goto-exit
// chain be observable as one step.
func (in *Instance) Step(env Environment) error {
	in.mu.Lock()
	if in.halted {
		in.mu.Unlock()
		return nil
	}
	in.mu.Unlock()

	for {
		envl, kind, ok := in.nextEnvelope()
		if !ok {
			return nil
		}
		halt, err := in.dispatch(env, envl, kind)
		if err != nil {
			return err
		}
		if halt {
			return nil
		}
		in.mu.Lock()
		raisedAgain := in.raised != nil
		in.mu.Unlock()
		if !raisedAgain {
			return nil
		}
	}
}

type envelopeKind int

const (
	envFromRaise envelopeKind = iota
	envFromReceive
	envFromInbox
	envFromEntry // synthetic: fresh machine's unfired entry handler
)

func (in *Instance) nextEnvelope() (event.EventEnvelope, envelopeKind, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if in.halted {
		return event.EventEnvelope{}, 0, false
	}
	if in.raised != nil {
		e := *in.raised
		in.raised = nil
		return e, envFromRaise, true
	}
	if !in.everStepped {
		in.everStepped = true
		return event.EventEnvelope{}, envFromEntry, true
	}
	if in.waitingOn != nil {
		e, ok := in.inbox.DequeueMatching(in.waitingOn)
		if !ok {
			return event.EventEnvelope{}, 0, false
		}
		in.waitingOn = nil
		return e, envFromReceive, true
	}
	flat := in.Type.resolve(in.stack[len(in.stack)-1])
	e, ok := in.inbox.DequeueFiltered(flat.ignored, flat.deferred)
	if !ok {
		return event.EventEnvelope{}, 0, false
	}
	return e, envFromInbox, true
}

// dispatch resolves and runs the handler for one envelope (or the
// synthetic entry), then applies the trapped operations it produced in
// occurrence order. Returns halt=true if the machine halted as a result.
func (in *Instance) dispatch(env Environment, envl event.EventEnvelope, kind envelopeKind) (bool, error) {
	in.mu.Lock()
	top := in.stack[len(in.stack)-1]
	in.mu.Unlock()

	var outcome stepOutcome
	switch kind {
	case envFromEntry:
		outcome = in.runEntry(env, top)
	default:
		env.Trace().DequeueEvent(in.Id.String(), string(top), string(envl.Event.Type))
		outcome = in.runHandler(env, top, envl)
	}

	if outcome.waitFor != nil {
		in.mu.Lock()
		in.waitingOn = outcome.waitFor
		in.mu.Unlock()
		types := make([]event.EventType, 0, len(outcome.waitFor))
		for t := range outcome.waitFor {
			types = append(types, t)
		}
		env.Trace().WaitToReceive(in.Id.String(), string(top), fmt.Sprintf("%v", types))
		return false, nil
	}
	if outcome.err != nil {
		return false, outcome.err
	}

	return in.applyPendingOps(env)
}

// runEntry invokes state's entry handler (if any) directly; entry/exit are
// not event handlers so they never suspend on Receive.
func (in *Instance) runEntry(env Environment, state StateName) stepOutcome {
	s := in.Type.state(state)
	ctx := newExecContext(in, env, state, event.Event{})
	if s != nil && s.Entry != nil {
		env.Trace().InvokeAction(in.Id.String(), string(state), "entry")
		if err := runProtected(in.ignorePanics, func() { s.Entry(ctx) }); err != nil {
			return stepOutcome{err: err}
		}
	}
	in.mu.Lock()
	in.pendingOps = append(in.pendingOps, ctx.ops...)
	in.mu.Unlock()
	return stepOutcome{}
}

// runHandler resolves and runs the action/goto/push handler for evt
// against state's inherited handler map. A Receive call inside the handler
// spawns (or resumes) a goroutine and this call blocks until the handler
// either suspends again or runs to completion.
func (in *Instance) runHandler(env Environment, state StateName, envl event.EventEnvelope) stepOutcome {
	flat := in.Type.resolve(state)
	et := envl.Event.Type

	if in.suspended {
		return in.resumeHandler(envl.Event)
	}

	if target, ok := flat.gotos[et]; ok {
		in.mu.Lock()
		in.pendingOps = append(in.pendingOps, trappedOp{kind: opGoto, stateTarget: target})
		in.mu.Unlock()
		return stepOutcome{}
	}
	if target, ok := flat.pushes[et]; ok {
		in.mu.Lock()
		in.pendingOps = append(in.pendingOps, trappedOp{kind: opPush, stateTarget: target})
		in.mu.Unlock()
		return stepOutcome{}
	}
	action, ok := flat.actions[et]
	if !ok {
		return stepOutcome{err: pserrors.New(pserrors.AssertionFailure, "unhandled event %q in state %q", et, state).At(in.Id, string(state))}
	}

	return in.runSuspendable(env, state, envl.Event, func(ctx *execContext) {
		env.Trace().InvokeAction(in.Id.String(), string(state), string(et))
		action(ctx, envl.Event)
	})
}

// runSuspendable executes fn (wrapping a handler body) in its own
// goroutine, communicating a possible Receive suspension back through
// resumeCh/doneCh so the controller goroutine (this one) can return to the
// scheduler without blocking on OS threads.
func (in *Instance) runSuspendable(env Environment, state StateName, evt event.Event, fn func(ctx *execContext)) stepOutcome {
	ctx := newExecContext(in, env, state, evt)
	in.resumeCh = make(chan event.EventEnvelope)
	in.doneCh = make(chan stepOutcome, 1)
	ctx.resumeCh = in.resumeCh
	ctx.doneCh = in.doneCh

	go func() {
		defer func() {
			if r := recover(); r != nil {
				in.doneCh <- stepOutcome{panicVal: r}
			}
		}()
		err := runProtected(in.ignorePanics, func() { fn(ctx) })
		in.mu.Lock()
		in.pendingOps = append(in.pendingOps, ctx.ops...)
		in.suspended = false
		in.mu.Unlock()
		in.doneCh <- stepOutcome{err: err}
	}()

	out := <-in.doneCh
	if out.panicVal != nil {
		panic(out.panicVal)
	}
	return out
}

// resumeHandler delivers evt to a handler goroutine parked in Receive and
// waits for it to either suspend again or finish. Pending ops accumulated
// during this resumption are appended to in.pendingOps by the goroutine
// itself before it signals doneCh.
func (in *Instance) resumeHandler(evt event.Event) stepOutcome {
	in.resumeCh <- event.EventEnvelope{Event: evt}
	out := <-in.doneCh
	if out.panicVal != nil {
		panic(out.panicVal)
	}
	return out
}

// applyPendingOps drains the buffered operation queue in occurrence order,
// running exit/entry handlers recursively (which may append further ops to
// the same queue) and delivering sends/creates through env. Returns
// halt=true if a pop emptied the stack.
func (in *Instance) applyPendingOps(env Environment) (bool, error) {
	for {
		in.mu.Lock()
		if len(in.pendingOps) == 0 {
			in.mu.Unlock()
			return false, nil
		}
		op := in.pendingOps[0]
		in.pendingOps = in.pendingOps[1:]
		in.mu.Unlock()

		switch op.kind {
		case opRaise:
			in.mu.Lock()
			if in.raised != nil {
				in.mu.Unlock()
				return false, pserrors.New(pserrors.AssertionFailure, "second raise within one handler invocation").At(in.Id, string(in.CurrentState()))
			}
			in.raised = &event.EventEnvelope{Event: op.raiseEvt, Sender: in.Id}
			in.mu.Unlock()
			env.Trace().RaiseEvent(in.Id.String(), string(in.CurrentState()), string(op.raiseEvt.Type))

		case opPop:
			halt, err := in.popOne(env, false)
			if err != nil {
				return false, err
			}
			if halt {
				return true, nil
			}

		case opPush:
			if err := in.pushOne(env, op.stateTarget); err != nil {
				return false, err
			}

		case opGoto:
			from := in.CurrentState()
			halt, err := in.popOne(env, true)
			if err != nil {
				return false, err
			}
			if halt {
				return true, nil
			}
			if err := in.pushOne(env, op.stateTarget); err != nil {
				return false, err
			}
			env.Trace().GotoState(in.Id.String(), string(from), string(op.stateTarget))

		case opSend:
			in.mu.Lock()
			seq := in.opGroupID
			in.mu.Unlock()
			opts := op.sendOpts
			if !op.hasSendOpt {
				opts = event.SendOptions{}
			}
			if opts.OperationGroupID == (uuid.UUID{}) {
				opts.OperationGroupID = seq
			}
			envl := event.EventEnvelope{Event: op.sendEvt, Sender: in.Id, OperationGroupID: opts.OperationGroupID}
			env.Trace().SendEvent(in.Id.String(), string(in.CurrentState()), op.sendTarget.String(), string(op.sendEvt.Type))
			if err := env.DeliverSend(op.sendTarget, envl, opts); err != nil {
				return false, err
			}

		case opCreate:
			env.Trace().CreateMachine(in.Id.String(), op.createID.String())
			in.mu.Lock()
			grp := in.opGroupID
			in.mu.Unlock()
			env.DeliverCreate(op.createID, op.createType, op.createEvt, in.Id, grp)
		}
	}
}

// popOne pops the top frame, running its exit handler first. Emptying the
// stack halts the machine unless forGoto is set, in which case the caller
// pushes the goto target next.
func (in *Instance) popOne(env Environment, forGoto bool) (bool, error) {
	in.mu.Lock()
	if len(in.stack) == 0 {
		in.mu.Unlock()
		return true, nil
	}
	top := in.stack[len(in.stack)-1]
	s := in.Type.state(top)
	in.mu.Unlock()

	if s != nil && s.Exit != nil {
		ctx := newExecContext(in, env, top, event.Event{})
		env.Trace().InvokeAction(in.Id.String(), string(top), "exit")
		if err := runProtected(in.ignorePanics, func() { s.Exit(ctx, event.Event{}) }); err != nil {
			return false, err
		}
		in.mu.Lock()
		// Exit-handler-raised ops are scoped to the state being entered
		// next, per the open-question decision to prepend them so they
		// are visible before the goto's own trailing ops but after this
		// pop: splice at the front of the remaining queue.
		in.pendingOps = append(ctx.ops, in.pendingOps...)
		in.mu.Unlock()
	}

	in.mu.Lock()
	in.stack = in.stack[:len(in.stack)-1]
	empty := len(in.stack) == 0 && !forGoto
	if empty {
		in.halted = true
		dropped := in.inbox.Drain()
		_ = dropped
	}
	in.mu.Unlock()

	if empty {
		env.Trace().Halt(in.Id.String(), string(top))
		return true, nil
	}
	return false, nil
}

func (in *Instance) pushOne(env Environment, target StateName) error {
	in.mu.Lock()
	in.stack = append(in.stack, target)
	in.mu.Unlock()

	s := in.Type.state(target)
	if s != nil && s.Entry != nil {
		ctx := newExecContext(in, env, target, event.Event{})
		env.Trace().InvokeAction(in.Id.String(), string(target), "entry")
		if err := runProtected(in.ignorePanics, func() { s.Entry(ctx) }); err != nil {
			return err
		}
		in.mu.Lock()
		in.pendingOps = append(in.pendingOps, ctx.ops...)
		in.mu.Unlock()
	}
	return nil
}

// runProtected recovers a panic raised by ctx.Assert (or any user-code
// panic) and converts it into the corresponding pserrors.Error, unless
// ignorePanics is set, in which case the panic is re-raised uncaught.
func runProtected(ignorePanics bool, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if ignorePanics {
				panic(r)
			}
			if pe, ok := r.(*pserrors.Error); ok {
				err = pe
				return
			}
			err = pserrors.New(pserrors.UnhandledException, "panic: %v", r)
		}
	}()
	fn()
	return nil
}

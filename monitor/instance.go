package monitor

import (
	"github.com/psharp-go/psharp/event"
	"github.com/psharp-go/psharp/pserrors"
	"github.com/psharp-go/psharp/trace"
)

// Instance is a running monitor: a state stack plus the raise slot needed
// to drain a raise-triggered chain to quiescence within one Invoke call.
type Instance struct {
	Type  *MonitorType
	stack []StateName
	raised *event.Event
}

// NewInstance creates a monitor instance pushed onto its type's start
// state, running the start state's entry handler immediately (a monitor
// has no "fresh machine" scheduling grant to defer this to).
func NewInstance(typ *MonitorType, bt *trace.BugTrace) (*Instance, error) {
	in := &Instance{Type: typ, stack: []StateName{typ.start}}
	bt.CreateMonitor(typ.Name)
	if err := in.runEntry(bt, typ.start); err != nil {
		return nil, err
	}
	return in, nil
}

// CurrentState returns the top of the monitor's state stack.
func (in *Instance) CurrentState() StateName {
	if len(in.stack) == 0 {
		return ""
	}
	return in.stack[len(in.stack)-1]
}

// IsHot reports whether the monitor's current state is hot, i.e. a
// liveness violation if the run ends here.
func (in *Instance) IsHot() bool {
	s := in.Type.state(in.CurrentState())
	return s != nil && s.Hot
}

// Invoke runs the monitor's handler for evt to quiescence: the handler and
// any chain of raise-triggered follow-up dispatches it produces, all
// within this one call, mirroring the machine package's one-step raise
// loop but without ever yielding to a scheduler.
func (in *Instance) Invoke(bt *trace.BugTrace, evt event.Event) error {
	cur := evt
	for {
		if err := in.dispatchOne(bt, cur); err != nil {
			return err
		}
		if in.raised == nil {
			return nil
		}
		cur = *in.raised
		in.raised = nil
	}
}

func (in *Instance) dispatchOne(bt *trace.BugTrace, evt event.Event) error {
	state := in.CurrentState()
	flat := in.Type.resolve(state)

	if flat.ignored[evt.Type] {
		return nil
	}
	if target, ok := flat.gotos[evt.Type]; ok {
		return in.applyOps(bt, []trappedOp{{kind: opGoto, stateTarget: target}})
	}
	if target, ok := flat.pushes[evt.Type]; ok {
		return in.applyOps(bt, []trappedOp{{kind: opPush, stateTarget: target}})
	}
	action, ok := flat.actions[evt.Type]
	if !ok {
		return pserrors.New(pserrors.AssertionFailure, "monitor %s: unhandled event %q in state %q", in.Type.Name, evt.Type, state)
	}

	ctx := &execContext{inst: in, state: state}
	bt.InvokeAction(in.Type.Name, string(state), string(evt.Type))
	if err := runProtected(func() { action(ctx, evt) }); err != nil {
		return err
	}
	return in.applyOps(bt, ctx.ops)
}

func (in *Instance) applyOps(bt *trace.BugTrace, ops []trappedOp) error {
	for _, op := range ops {
		switch op.kind {
		case opRaise:
			if in.raised != nil {
				return pserrors.New(pserrors.AssertionFailure, "second raise within one monitor handler invocation")
			}
			e := op.raiseEvt
			in.raised = &e
			bt.RaiseEvent(in.Type.Name, string(in.CurrentState()), string(op.raiseEvt.Type))

		case opPop:
			if err := in.popOne(bt); err != nil {
				return err
			}

		case opPush:
			if err := in.pushOne(bt, op.stateTarget); err != nil {
				return err
			}

		case opGoto:
			from := in.CurrentState()
			if err := in.popOne(bt); err != nil {
				return err
			}
			if err := in.pushOne(bt, op.stateTarget); err != nil {
				return err
			}
			bt.GotoState(in.Type.Name, string(from), string(op.stateTarget))
		}
	}
	return nil
}

func (in *Instance) popOne(bt *trace.BugTrace) error {
	if len(in.stack) == 0 {
		return pserrors.New(pserrors.AssertionFailure, "monitor %s: pop on empty stack", in.Type.Name)
	}
	top := in.stack[len(in.stack)-1]
	s := in.Type.state(top)
	if s != nil && s.Exit != nil {
		ctx := &execContext{inst: in, state: top}
		bt.InvokeAction(in.Type.Name, string(top), "exit")
		if err := runProtected(func() { s.Exit(ctx) }); err != nil {
			return err
		}
		in.stack = in.stack[:len(in.stack)-1]
		return in.applyOps(bt, ctx.ops)
	}
	in.stack = in.stack[:len(in.stack)-1]
	return nil
}

func (in *Instance) pushOne(bt *trace.BugTrace, target StateName) error {
	in.stack = append(in.stack, target)
	return in.runEntry(bt, target)
}

func (in *Instance) runEntry(bt *trace.BugTrace, state StateName) error {
	s := in.Type.state(state)
	if s == nil || s.Entry == nil {
		return nil
	}
	ctx := &execContext{inst: in, state: state}
	bt.InvokeAction(in.Type.Name, string(state), "entry")
	if err := runProtected(func() { s.Entry(ctx) }); err != nil {
		return err
	}
	return in.applyOps(bt, ctx.ops)
}

func runProtected(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
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

package monitor

import (
	"fmt"

	"github.com/psharp-go/psharp/event"
	"github.com/psharp-go/psharp/pserrors"
)

// Context is the monitor-side API. It is deliberately narrower than
// machine.Context: per §4.2, a monitor may raise and goto/push/pop but may
// not send, create, receive, or make random choices.
type Context interface {
	Raise(evt event.Event)
	Goto(target StateName)
	Push(target StateName)
	Pop()
	Assert(cond bool, msgFormat string, args ...any)
	Self() string
	CurrentState() StateName
}

type opKind int

const (
	opRaise opKind = iota
	opGoto
	opPush
	opPop
)

type trappedOp struct {
	kind        opKind
	raiseEvt    event.Event
	stateTarget StateName
}

type execContext struct {
	inst  *Instance
	state StateName
	ops   []trappedOp
}

func (ctx *execContext) Raise(evt event.Event) {
	for _, op := range ctx.ops {
		if op.kind == opRaise {
			panic(pserrors.New(pserrors.AssertionFailure, "second raise within one monitor handler invocation").At(event.MachineId{}, string(ctx.state)))
		}
	}
	ctx.ops = append(ctx.ops, trappedOp{kind: opRaise, raiseEvt: evt})
}

func (ctx *execContext) Goto(target StateName) {
	ctx.ops = append(ctx.ops, trappedOp{kind: opGoto, stateTarget: target})
}

func (ctx *execContext) Push(target StateName) {
	ctx.ops = append(ctx.ops, trappedOp{kind: opPush, stateTarget: target})
}

func (ctx *execContext) Pop() {
	ctx.ops = append(ctx.ops, trappedOp{kind: opPop})
}

func (ctx *execContext) Assert(cond bool, msgFormat string, args ...any) {
	if cond {
		return
	}
	msg := msgFormat
	if len(args) > 0 {
		msg = fmt.Sprintf(msgFormat, args...)
	}
	panic(pserrors.New(pserrors.AssertionFailure, "monitor %s: %s", ctx.inst.Type.Name, msg).At(event.MachineId{}, string(ctx.state)))
}

func (ctx *execContext) Self() string { return ctx.inst.Type.Name }

func (ctx *execContext) CurrentState() StateName { return ctx.state }

package machine

import (
	"fmt"
	"strconv"

	"github.com/psharp-go/psharp/event"
	"github.com/psharp-go/psharp/pserrors"
)

// execContext is the concrete Context implementation handed to entry,
// exit, and action handlers. A fresh execContext is created per handler
// invocation (runEntry/pushOne/popOne/runSuspendable); ops accumulates the
// buffered side effects, flushed into the owning Instance's pendingOps
// queue once the invocation completes (or, for a Receive suspension,
// immediately before blocking).
type execContext struct {
	instance *Instance
	env      Environment
	state    StateName
	evt      event.Event

	ops []trappedOp

	resumeCh chan event.EventEnvelope
	doneCh   chan stepOutcome
}

func newExecContext(in *Instance, env Environment, state StateName, evt event.Event) *execContext {
	return &execContext{instance: in, env: env, state: state, evt: evt}
}

func (ctx *execContext) Raise(evt event.Event) {
	for _, op := range ctx.ops {
		if op.kind == opRaise {
			panic(pserrors.New(pserrors.AssertionFailure, "second raise within one handler invocation").At(ctx.instance.Id, string(ctx.state)))
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

func (ctx *execContext) Send(target event.MachineId, evt event.Event, opts ...event.SendOptions) {
	op := trappedOp{kind: opSend, sendTarget: target, sendEvt: evt}
	if len(opts) > 0 {
		op.sendOpts = opts[0]
		op.hasSendOpt = true
	}
	ctx.ops = append(ctx.ops, op)
}

func (ctx *execContext) CreateMachine(typeName string, initial *event.Event, friendlyName string) event.MachineId {
	id := ctx.env.AllocateMachineId(typeName, friendlyName)
	ctx.ops = append(ctx.ops, trappedOp{
		kind:           opCreate,
		createType:     typeName,
		createEvt:      initial,
		createFriendly: friendlyName,
		createID:       id,
	})
	return id
}

func (ctx *execContext) Monitor(monitorType string, evt event.Event) {
	ctx.env.InvokeMonitor(monitorType, evt, ctx.instance.Id)
}

func (ctx *execContext) Assert(cond bool, msgFormat string, args ...any) {
	if cond {
		return
	}
	msg := msgFormat
	if len(args) > 0 {
		msg = fmt.Sprintf(msgFormat, args...)
	}
	ctx.env.Trace().AssertionFailure(ctx.instance.Id.String(), string(ctx.state), msg)
	panic(pserrors.New(pserrors.AssertionFailure, msg).At(ctx.instance.Id, string(ctx.state)))
}

func (ctx *execContext) RandomBool(max uint32) bool {
	v := ctx.env.NextRandomBool(max)
	ctx.env.Trace().RandomChoice(ctx.instance.Id.String(), string(ctx.state), boolChoiceString(v))
	return v
}

func (ctx *execContext) RandomInt(max uint32) uint32 {
	v := ctx.env.NextRandomInt(max)
	ctx.env.Trace().RandomChoice(ctx.instance.Id.String(), string(ctx.state), intChoiceString(v))
	return v
}

// Receive flushes accumulated ops, marks the instance suspended, and hands
// control back to the controller goroutine via doneCh, then blocks on
// resumeCh until the scheduler delivers a matching event.
func (ctx *execContext) Receive(types ...event.EventType) event.Event {
	if ctx.doneCh == nil {
		panic(pserrors.New(pserrors.ConfigurationError, "receive is not valid from an entry/exit handler").At(ctx.instance.Id, string(ctx.state)))
	}

	waitSet := make(map[event.EventType]struct{}, len(types))
	for _, t := range types {
		waitSet[t] = struct{}{}
	}

	ctx.instance.mu.Lock()
	ctx.instance.pendingOps = append(ctx.instance.pendingOps, ctx.ops...)
	ctx.ops = nil
	ctx.instance.suspended = true
	ctx.instance.mu.Unlock()

	ctx.doneCh <- stepOutcome{waitFor: waitSet}
	envl := <-ctx.resumeCh
	ctx.evt = envl.Event
	ctx.env.Trace().ReceiveEvent(ctx.instance.Id.String(), string(ctx.state), string(envl.Event.Type))
	return envl.Event
}

func (ctx *execContext) Self() event.MachineId { return ctx.instance.Id }

func (ctx *execContext) CurrentState() StateName { return ctx.state }

func boolChoiceString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func intChoiceString(n uint32) string {
	return strconv.FormatUint(uint64(n), 10)
}

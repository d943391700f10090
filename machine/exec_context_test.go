package machine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/psharp-go/psharp/event"
)

func TestExecContextSecondRaiseIsFatal(t *testing.T) {
	mt := NewMachineType("DoubleRaise")
	require.NoError(t, mt.AddState(State{
		Name:    "Init",
		IsStart: true,
		Actions: map[event.EventType]ActionFunc{
			"go": func(ctx Context, evt event.Event) {
				ctx.Raise(event.NewEvent("first", nil))
				ctx.Raise(event.NewEvent("second", nil))
			},
		},
	}))
	require.NoError(t, mt.Validate())

	env := newFakeEnv()
	in := NewInstance(event.MachineId{Seq: 1, TypeName: "DoubleRaise"}, mt, uuid.New())
	require.NoError(t, in.Step(env))

	in.Inbox().Enqueue(event.EventEnvelope{Event: event.NewEvent("go", nil)})
	err := in.Step(env)
	require.Error(t, err)
	require.Contains(t, err.Error(), "second raise")
}

func TestExecContextSendWithOptionsCarriesMustHandle(t *testing.T) {
	mt := NewMachineType("Sender")
	require.NoError(t, mt.AddState(State{
		Name:    "Init",
		IsStart: true,
		Actions: map[event.EventType]ActionFunc{
			"go": func(ctx Context, evt event.Event) {
				one := uint32(1)
				ctx.Send(event.MachineId{Seq: 99}, event.NewEvent("ping", nil), event.SendOptions{MustHandle: true, AssertAtMostN: &one})
			},
		},
	}))
	require.NoError(t, mt.Validate())

	env := newFakeEnv()
	in := NewInstance(event.MachineId{Seq: 1, TypeName: "Sender"}, mt, uuid.New())
	require.NoError(t, in.Step(env))

	in.Inbox().Enqueue(event.EventEnvelope{Event: event.NewEvent("go", nil)})
	require.NoError(t, in.Step(env))
	require.Len(t, env.sends, 1)
	require.Equal(t, event.EventType("ping"), env.sends[0].Event.Type)
}

func TestExecContextCreateMachineAllocatesIDImmediately(t *testing.T) {
	mt := NewMachineType("Creator")
	require.NoError(t, mt.AddState(State{
		Name:    "Init",
		IsStart: true,
		Actions: map[event.EventType]ActionFunc{
			"go": func(ctx Context, evt event.Event) {
				id := ctx.CreateMachine("Worker", nil, "w1")
				require.NotEqual(t, uint64(0), id.Seq)
			},
		},
	}))
	require.NoError(t, mt.Validate())

	env := newFakeEnv()
	in := NewInstance(event.MachineId{Seq: 1, TypeName: "Creator"}, mt, uuid.New())
	require.NoError(t, in.Step(env))

	in.Inbox().Enqueue(event.EventEnvelope{Event: event.NewEvent("go", nil)})
	require.NoError(t, in.Step(env))
	require.Len(t, env.creates, 1)
}

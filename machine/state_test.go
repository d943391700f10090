package machine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/psharp-go/psharp/event"
)

func TestAddStateRejectsEmptyName(t *testing.T) {
	mt := NewMachineType("M")
	err := mt.AddState(State{Name: ""})
	require.Error(t, err)
}

func TestAddStateRejectsDuplicate(t *testing.T) {
	mt := NewMachineType("M")
	require.NoError(t, mt.AddState(State{Name: "Init", IsStart: true}))
	err := mt.AddState(State{Name: "Init"})
	require.Error(t, err)
}

func TestValidateRequiresStartState(t *testing.T) {
	mt := NewMachineType("M")
	require.NoError(t, mt.AddState(State{Name: "Init"}))
	require.Error(t, mt.Validate())
}

func TestValidateRejectsUnknownParent(t *testing.T) {
	mt := NewMachineType("M")
	require.NoError(t, mt.AddState(State{Name: "Init", IsStart: true, Parent: "Ghost"}))
	require.Error(t, mt.Validate())
}

func TestValidateRejectsUnknownGotoTarget(t *testing.T) {
	mt := NewMachineType("M")
	require.NoError(t, mt.AddState(State{
		Name:    "Init",
		IsStart: true,
		Gotos:   map[event.EventType]StateName{"ping": "Missing"},
	}))
	require.Error(t, mt.Validate())
}

func TestValidateRejectsActionAndGotoOnSameEvent(t *testing.T) {
	mt := NewMachineType("M")
	require.NoError(t, mt.AddState(State{Name: "Done", IsStart: false}))
	require.NoError(t, mt.AddState(State{
		Name:    "Init",
		IsStart: true,
		Actions: map[event.EventType]ActionFunc{"ping": func(Context, event.Event) {}},
		Gotos:   map[event.EventType]StateName{"ping": "Done"},
	}))
	require.Error(t, mt.Validate())
}

func TestValidateRejectsCyclicParentChain(t *testing.T) {
	mt := NewMachineType("M")
	require.NoError(t, mt.AddState(State{Name: "A", IsStart: true, Parent: "B"}))
	require.NoError(t, mt.AddState(State{Name: "B", Parent: "A"}))
	require.Error(t, mt.Validate())
}

func TestResolveInheritsFromParentAndChildOverrides(t *testing.T) {
	mt := NewMachineType("M")
	require.NoError(t, mt.AddState(State{
		Name:     "Base",
		Deferred: map[event.EventType]bool{"tick": true},
		Ignored:  map[event.EventType]bool{"noise": true},
		Actions:  map[event.EventType]ActionFunc{"ping": func(Context, event.Event) {}},
	}))
	require.NoError(t, mt.AddState(State{
		Name:    "Child",
		Parent:  "Base",
		IsStart: true,
		Actions: map[event.EventType]ActionFunc{"ping": func(Context, event.Event) {}, "pong": func(Context, event.Event) {}},
	}))
	require.NoError(t, mt.Validate())

	flat := mt.resolve("Child")
	require.Contains(t, flat.actions, event.EventType("ping"))
	require.Contains(t, flat.actions, event.EventType("pong"))
	require.True(t, flat.deferred["tick"])
	require.True(t, flat.ignored["noise"])
}

func TestResolveIsMemoized(t *testing.T) {
	mt := NewMachineType("M")
	require.NoError(t, mt.AddState(State{Name: "Init", IsStart: true}))
	a := mt.resolve("Init")
	b := mt.resolve("Init")
	require.Same(t, a, b)
}

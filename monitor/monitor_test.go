package monitor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/psharp-go/psharp/event"
)

func TestMonitorAddStateRejectsHotAndCold(t *testing.T) {
	mt := NewMonitorType("M")
	err := mt.AddState(State{Name: "Bad", Hot: true, Cold: true})
	require.Error(t, err)
}

func TestMonitorValidateRequiresStartState(t *testing.T) {
	mt := NewMonitorType("M")
	require.NoError(t, mt.AddState(State{Name: "Init"}))
	require.Error(t, mt.Validate())
}

func TestMonitorValidateRejectsUnknownGotoTarget(t *testing.T) {
	mt := NewMonitorType("M")
	require.NoError(t, mt.AddState(State{
		Name:    "Init",
		IsStart: true,
		Gotos:   map[event.EventType]StateName{"e": "Ghost"},
	}))
	require.Error(t, mt.Validate())
}

func TestMonitorResolveInherits(t *testing.T) {
	mt := NewMonitorType("M")
	require.NoError(t, mt.AddState(State{
		Name:    "Base",
		Ignored: map[event.EventType]bool{"noise": true},
	}))
	require.NoError(t, mt.AddState(State{
		Name:    "Child",
		Parent:  "Base",
		IsStart: true,
	}))
	require.NoError(t, mt.Validate())

	flat := mt.resolve("Child")
	require.True(t, flat.ignored["noise"])
}

package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/psharp-go/psharp/event"
)

func TestPriorityPrefersHighestPriorityEnabledMachine(t *testing.T) {
	priorityOf := func(id event.MachineId) int {
		if id.Seq == 2 {
			return 10
		}
		return 0
	}
	p := NewPriority(1, priorityOf, 0, 0)
	for i := 0; i < 10; i++ {
		id, err := p.NextOperation(ids(1, 2, 3))
		require.NoError(t, err)
		require.Equal(t, uint64(2), id.Seq)
	}
}

func TestPriorityBreaksTiesWithinTheHighestGroup(t *testing.T) {
	p := NewPriority(1, nil, 0, 0)
	seen := map[uint64]bool{}
	for i := 0; i < 50; i++ {
		id, err := p.NextOperation(ids(1, 2, 3))
		require.NoError(t, err)
		seen[id.Seq] = true
	}
	require.True(t, seen[1])
	require.True(t, seen[2])
	require.True(t, seen[3])
}

func TestPriorityEnforcesStepBound(t *testing.T) {
	p := NewPriority(1, nil, 1, 0)
	_, err := p.NextOperation(ids(1))
	require.NoError(t, err)
	_, err = p.NextOperation(ids(1))
	require.Error(t, err)
}

func TestPriorityRejectsEmptyEnabledSet(t *testing.T) {
	p := NewPriority(1, nil, 0, 0)
	_, err := p.NextOperation(nil)
	require.Error(t, err)
}

func TestPriorityPrepareNextIterationHonorsMaxIterations(t *testing.T) {
	p := NewPriority(1, nil, 0, 2)
	require.True(t, p.PrepareNextIteration())
	require.False(t, p.PrepareNextIteration())
}

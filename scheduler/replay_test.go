package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/psharp-go/psharp/trace"
)

func recordedTrace() *trace.ScheduleTrace {
	st := trace.NewScheduleTrace("random", 42, 0)
	st.AppendStep(1)
	st.AppendBool(true)
	st.AppendStep(2)
	st.AppendInt(5)
	return st
}

func TestReplayReproducesRecordedSchedulingSteps(t *testing.T) {
	r := NewReplay(recordedTrace())
	id, err := r.NextOperation(ids(1, 2))
	require.NoError(t, err)
	require.Equal(t, uint64(1), id.Seq)

	require.True(t, r.NextBool(2))

	id, err = r.NextOperation(ids(1, 2))
	require.NoError(t, err)
	require.Equal(t, uint64(2), id.Seq)

	require.Equal(t, uint32(5), r.NextInt(10))
}

func TestReplayDetectsExhaustedTrace(t *testing.T) {
	st := trace.NewScheduleTrace("random", 1, 0)
	st.AppendStep(1)
	r := NewReplay(st)

	_, err := r.NextOperation(ids(1))
	require.NoError(t, err)

	_, err = r.NextOperation(ids(1))
	require.Error(t, err)
}

func TestReplayDetectsMachineNoLongerEnabled(t *testing.T) {
	st := trace.NewScheduleTrace("random", 1, 0)
	st.AppendStep(99)
	r := NewReplay(st)

	_, err := r.NextOperation(ids(1, 2))
	require.Error(t, err)
}

func TestReplayPanicsOnChoiceKindMismatch(t *testing.T) {
	st := trace.NewScheduleTrace("random", 1, 0)
	st.AppendStep(1)
	r := NewReplay(st)

	require.Panics(t, func() {
		r.NextBool(2)
	})
}

func TestReplayPrepareNextIterationOnlyOnce(t *testing.T) {
	r := NewReplay(recordedTrace())
	require.True(t, r.PrepareNextIteration())
	require.False(t, r.PrepareNextIteration())
}

package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/psharp-go/psharp/trace"
)

func TestOracleRecordsChoicesIntoTheScheduleTrace(t *testing.T) {
	r := NewRandom(1, 0, 0)
	st := trace.NewScheduleTrace(r.Name(), r.Seed(), 0)
	o := NewOracle(r, st)

	b := o.NextRandomBool(2)
	n := o.NextRandomInt(5)

	require.Len(t, st.Points, 2)
	require.Equal(t, trace.BoolChoice, st.Points[0].Kind)
	require.Equal(t, b, st.Points[0].Bool)
	require.Equal(t, trace.IntChoice, st.Points[1].Kind)
	require.Equal(t, n, st.Points[1].Int)
}

func TestOracleReplaysExactlyWhatWasRecorded(t *testing.T) {
	st := trace.NewScheduleTrace("random", 1, 0)
	st.AppendBool(true)
	st.AppendInt(3)

	replay := NewReplay(st)
	o := NewOracle(replay, trace.NewScheduleTrace("replay", 1, 0))

	require.True(t, o.NextRandomBool(2))
	require.Equal(t, uint32(3), o.NextRandomInt(10))
}

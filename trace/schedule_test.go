package trace

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScheduleTraceWriteReadRoundTrip(t *testing.T) {
	st := NewScheduleTrace("random", 42, 3)
	st.AppendStep(1)
	st.AppendBool(true)
	st.AppendStep(2)
	st.AppendInt(17)
	st.AppendBool(false)

	var buf bytes.Buffer
	_, err := st.WriteTo(&buf)
	require.NoError(t, err)

	parsed, err := ReadScheduleTrace(&buf)
	require.NoError(t, err)
	require.Equal(t, "random", parsed.Strategy)
	require.Equal(t, uint64(42), parsed.Seed)
	require.Equal(t, 3, parsed.Iteration)
	require.Equal(t, st.Points, parsed.Points)
}

func TestReadScheduleTraceRejectsMalformedLine(t *testing.T) {
	_, err := ReadScheduleTrace(bytes.NewReader([]byte("# psharp-schedule v1 strategy=dfs seed=1 iterations=0\nX 9\n")))
	require.Error(t, err)

	_, err = ReadScheduleTrace(bytes.NewReader([]byte("# psharp-schedule v1 strategy=dfs seed=1 iterations=0\nS not-a-number\n")))
	require.Error(t, err)
}

func TestReadScheduleTraceWithoutHeader(t *testing.T) {
	parsed, err := ReadScheduleTrace(bytes.NewReader([]byte("S 5\nB 1\n")))
	require.NoError(t, err)
	require.Equal(t, []ChoicePoint{
		{Kind: SchedulingStep, MachineSeq: 5},
		{Kind: BoolChoice, Bool: true},
	}, parsed.Points)
}

package psoptions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/psharp-go/psharp/event"
	"github.com/psharp-go/psharp/pslog"
	"github.com/psharp-go/psharp/reliable"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	require.Equal(t, "random", cfg.StrategyKind)
	require.Equal(t, int64(0), cfg.Seed)
	require.Equal(t, 1000, cfg.MaxIterations)
	require.Equal(t, 0, cfg.MaxSteps)
	require.False(t, cfg.IgnorePanics)
	require.Nil(t, cfg.Logger)
}

func TestPrepareWithNoOptionsMatchesDefault(t *testing.T) {
	require.Equal(t, Default(), Prepare())
}

func TestWithStrategyAndSeed(t *testing.T) {
	cfg := Prepare(WithStrategy("dfs"), WithSeed(42))
	require.Equal(t, "dfs", cfg.StrategyKind)
	require.Equal(t, int64(42), cfg.Seed)
}

func TestWithMaxIterationsAndMaxSteps(t *testing.T) {
	cfg := Prepare(WithMaxIterations(10), WithMaxSteps(5))
	require.Equal(t, 10, cfg.MaxIterations)
	require.Equal(t, 5, cfg.MaxSteps)
}

func TestWithTimeout(t *testing.T) {
	cfg := Prepare(WithTimeout(3 * time.Second))
	require.Equal(t, 3*time.Second, cfg.Timeout)
}

func TestIgnorePanics(t *testing.T) {
	cfg := Prepare(IgnorePanics())
	require.True(t, cfg.IgnorePanics)
}

func TestWithLogger(t *testing.T) {
	l := pslog.NewNop()
	cfg := Prepare(WithLogger(l))
	require.Same(t, l, cfg.Logger)
}

func TestWithPriority(t *testing.T) {
	f := func(id event.MachineId) int { return int(id.Seq) }
	cfg := Prepare(WithPriority(f))
	require.NotNil(t, cfg.PriorityOf)
	require.Equal(t, 7, cfg.PriorityOf(event.MachineId{Seq: 7}))
}

func TestWithReplayTrace(t *testing.T) {
	trace := []byte("recorded-trace")
	cfg := Prepare(WithReplayTrace(trace))
	require.Equal(t, trace, cfg.ReplayTrace)
}

func TestWithStateStore(t *testing.T) {
	s := reliable.NewInMemoryStore()
	cfg := Prepare(WithStateStore(s))
	require.Same(t, s, cfg.Store)
}

func TestWithFailureInjector(t *testing.T) {
	f := func(id event.MachineId) bool { return id.Seq == 1 }
	cfg := Prepare(WithFailureInjector(f))
	require.NotNil(t, cfg.FailureInject)
	require.True(t, cfg.FailureInject(event.MachineId{Seq: 1}))
	require.False(t, cfg.FailureInject(event.MachineId{Seq: 2}))
}

func TestOptionsComposeInAnyOrder(t *testing.T) {
	cfg := Prepare(WithSeed(9), WithStrategy("pct"), WithMaxIterations(3))
	require.Equal(t, "pct", cfg.StrategyKind)
	require.Equal(t, int64(9), cfg.Seed)
	require.Equal(t, 3, cfg.MaxIterations)
}

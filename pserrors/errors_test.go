package pserrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/psharp-go/psharp/event"
)

func TestNewFormatsMessage(t *testing.T) {
	err := New(ConfigurationError, "machine %s: duplicate state %q", "Server", "Init")
	require.Equal(t, ConfigurationError, err.Kind)
	require.Contains(t, err.Error(), "ConfigurationError")
	require.Contains(t, err.Error(), "duplicate state")
}

func TestAtAttachesOrigin(t *testing.T) {
	id := event.MachineId{Seq: 1, TypeName: "Server", Partition: "local"}
	err := New(Deadlock, "blocked on receive").At(id, "Waiting")
	require.Equal(t, id, err.Machine)
	require.Equal(t, "Waiting", err.State)
	require.Contains(t, err.Error(), "machine=")
	require.Contains(t, err.Error(), "state=Waiting")
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(TransientStorageFailure, cause, "reliable: begin tx")
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "connection reset")
}

func TestIsTransient(t *testing.T) {
	require.True(t, IsTransient(New(TransientStorageFailure, "retry me")))
	require.False(t, IsTransient(New(InternalError, "not a retry")))
	require.False(t, IsTransient(errors.New("plain error")))
	require.False(t, IsTransient(nil))
}

func TestIsBug(t *testing.T) {
	bugKinds := []Kind{AssertionFailure, LivenessViolation, UnhandledException, Deadlock, ReplayDivergence}
	for _, k := range bugKinds {
		require.True(t, IsBug(New(k, "x")), "expected %s to be a bug", k)
	}
	nonBugKinds := []Kind{TransientStorageFailure, ConfigurationError, InternalError}
	for _, k := range nonBugKinds {
		require.False(t, IsBug(New(k, "x")), "expected %s not to be a bug", k)
	}
	require.False(t, IsBug(errors.New("plain error")))
}

func TestKindString(t *testing.T) {
	require.Equal(t, "Deadlock", Deadlock.String())
	require.Equal(t, "UnknownError", Kind(999).String())
}

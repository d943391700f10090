package event

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewEventCarriesTypeAndPayload(t *testing.T) {
	e := NewEvent(EventType("ping"), 42)
	require.Equal(t, EventType("ping"), e.Type)
	require.Equal(t, 42, e.Payload)
	require.Contains(t, e.String(), "ping")
}

func TestMachineIdEqualIgnoresDecoration(t *testing.T) {
	a := MachineId{Seq: 1, UID: uuid.New(), TypeName: "Server", Partition: "local"}
	b := MachineId{Seq: 1, UID: uuid.New(), TypeName: "Server", FriendlyName: "srv-1", Partition: "remote"}
	c := MachineId{Seq: 2, UID: a.UID, TypeName: "Server", Partition: "local"}

	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}

func TestMachineIdIsZero(t *testing.T) {
	require.True(t, MachineId{}.IsZero())
	require.False(t, MachineId{Seq: 1}.IsZero())
}

func TestMachineIdStringPrefersFriendlyName(t *testing.T) {
	id := MachineId{Seq: 3, TypeName: "Server", FriendlyName: "srv-3", Partition: "local"}
	require.Contains(t, id.String(), "srv-3")

	anon := MachineId{Seq: 4, TypeName: "Server", Partition: "local"}
	require.Contains(t, anon.String(), "Server")
}

func TestNewOperationGroupIDIsUnique(t *testing.T) {
	a := NewOperationGroupID()
	b := NewOperationGroupID()
	require.NotEqual(t, uuid.Nil, a)
	require.NotEqual(t, a, b)
}

func TestEventEnvelopeString(t *testing.T) {
	envl := EventEnvelope{
		Event:   NewEvent(EventType("pong"), nil),
		Sender:  MachineId{Seq: 1, TypeName: "Client", Partition: "local"},
		SendSeq: 7,
	}
	s := envl.String()
	require.Contains(t, s, "pong")
	require.Contains(t, s, "7")
}

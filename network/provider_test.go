package network

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/psharp-go/psharp/event"
)

type fakeDispatcher struct {
	nextSeq uint64
	created []event.MachineId
	sends   []event.EventEnvelope
}

func (d *fakeDispatcher) AllocateMachineId(typeName, friendlyName string) event.MachineId {
	d.nextSeq++
	return event.MachineId{Seq: d.nextSeq, TypeName: typeName, FriendlyName: friendlyName}
}

func (d *fakeDispatcher) CreateMachine(id event.MachineId, typeName string, initial *event.Event, creator event.MachineId, opGroup uuid.UUID) error {
	d.created = append(d.created, id)
	return nil
}

func (d *fakeDispatcher) DeliverSend(target event.MachineId, envl event.EventEnvelope, opts event.SendOptions) error {
	d.sends = append(d.sends, envl)
	return nil
}

func TestLocalCreateRemoteTagsTheTargetPartition(t *testing.T) {
	d := &fakeDispatcher{}
	l := NewLocal("partitionA", d)

	id, err := l.CreateRemote("partitionB", "Server", event.NewEvent("init", nil), event.SendOptions{})
	require.NoError(t, err)
	require.Equal(t, "partitionB", id.Partition)
	require.Len(t, d.created, 1)
	require.Equal(t, "partitionA", l.LocalEndpoint())
}

func TestLocalSendRemoteForwardsToDispatcher(t *testing.T) {
	d := &fakeDispatcher{}
	l := NewLocal("partitionA", d)
	target := event.MachineId{Seq: 5, TypeName: "Server"}
	grp := uuid.New()

	err := l.SendRemote(target, event.NewEvent("ping", nil), event.SendOptions{OperationGroupID: grp})
	require.NoError(t, err)
	require.Len(t, d.sends, 1)
	require.Equal(t, event.EventType("ping"), d.sends[0].Event.Type)
	require.Equal(t, grp, d.sends[0].OperationGroupID)
}

package networkgrpc

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/psharp-go/psharp/event"
)

type fakeDispatcher struct {
	nextSeq uint64
	created []event.MachineId
	sends   []event.EventEnvelope
	sendErr error
}

func (d *fakeDispatcher) AllocateMachineId(typeName, friendlyName string) event.MachineId {
	d.nextSeq++
	return event.MachineId{Seq: d.nextSeq, TypeName: typeName}
}

func (d *fakeDispatcher) CreateMachine(id event.MachineId, typeName string, initial *event.Event, creator event.MachineId, opGroup uuid.UUID) error {
	d.created = append(d.created, id)
	return nil
}

func (d *fakeDispatcher) DeliverSend(target event.MachineId, envl event.EventEnvelope, opts event.SendOptions) error {
	if d.sendErr != nil {
		return d.sendErr
	}
	d.sends = append(d.sends, envl)
	return nil
}

func TestServerCreateRemoteTagsOwnPartitionAndAllocates(t *testing.T) {
	d := &fakeDispatcher{}
	s := NewServer(grpc.NewServer(), "partitionB", d)

	reply, err := s.CreateRemote(context.Background(), &CreateRemoteRequest{
		TypeName:  "Server",
		EventType: "init",
	})
	require.NoError(t, err)
	require.Equal(t, "partitionB", reply.Partition)
	require.Len(t, d.created, 1)
}

func TestServerSendRemoteDeliversToDispatcher(t *testing.T) {
	d := &fakeDispatcher{}
	s := NewServer(grpc.NewServer(), "partitionB", d)
	grp := uuid.New()

	_, err := s.SendRemote(context.Background(), &SendRemoteRequest{
		TargetSeq:      7,
		TargetTypeName: "Server",
		EventType:      "ping",
		OperationGroup: grp,
	})
	require.NoError(t, err)
	require.Len(t, d.sends, 1)
	require.Equal(t, event.EventType("ping"), d.sends[0].Event.Type)
	require.Equal(t, grp, d.sends[0].OperationGroupID)
}

func TestServerSendRemotePropagatesDispatcherError(t *testing.T) {
	d := &fakeDispatcher{sendErr: assertErr{}}
	s := NewServer(grpc.NewServer(), "partitionB", d)

	_, err := s.SendRemote(context.Background(), &SendRemoteRequest{TargetSeq: 1})
	require.Error(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "dispatch failed" }

package networkgrpc

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/psharp-go/psharp/event"
)

// Provider implements network.Provider over a single gRPC connection to one
// remote partition. A real multi-partition deployment keeps one Provider
// per peer behind whatever routing the host application needs; this
// package does not prescribe a partition-to-address directory, the same
// boundary spec.md §4.7 leaves to "production transports are plugins".
type Provider struct {
	cc        *grpc.ClientConn
	endpoint  string
	partition string
}

// NewProvider wraps an established connection to the named remote
// partition. localEndpoint is this process's own partition name, returned
// by LocalEndpoint.
func NewProvider(cc *grpc.ClientConn, localEndpoint, remotePartition string) *Provider {
	return &Provider{cc: cc, endpoint: localEndpoint, partition: remotePartition}
}

func (p *Provider) LocalEndpoint() string { return p.endpoint }

func (p *Provider) CreateRemote(targetPartition, typeName string, initial event.Event, opts event.SendOptions) (event.MachineId, error) {
	req := &CreateRemoteRequest{
		TargetPartition: targetPartition,
		TypeName:        typeName,
		EventType:       initial.Type,
		Payload:         initial.Payload,
		OperationGroup:  opts.OperationGroupID,
	}
	reply := new(CreateRemoteReply)
	if err := p.cc.Invoke(context.Background(), "/"+serviceName+"/CreateRemote", req, reply, grpc.CallContentSubtype(codecName)); err != nil {
		return event.MachineId{}, err
	}
	return event.MachineId{
		Seq:          reply.Seq,
		UID:          uuid.UUID(reply.UID),
		TypeName:     reply.TypeName,
		FriendlyName: reply.FriendlyName,
		Partition:    reply.Partition,
	}, nil
}

func (p *Provider) SendRemote(targetID event.MachineId, evt event.Event, opts event.SendOptions) error {
	req := &SendRemoteRequest{
		TargetSeq:          targetID.Seq,
		TargetUID:          targetID.UID,
		TargetTypeName:     targetID.TypeName,
		TargetFriendlyName: targetID.FriendlyName,
		TargetPartition:    targetID.Partition,
		EventType:          evt.Type,
		Payload:            evt.Payload,
		OperationGroup:     opts.OperationGroupID,
		MustHandle:         opts.MustHandle,
	}
	reply := new(SendRemoteReply)
	return p.cc.Invoke(context.Background(), "/"+serviceName+"/SendRemote", req, reply, grpc.CallContentSubtype(codecName))
}

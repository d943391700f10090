package networkgrpc

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/psharp-go/psharp/event"
	"github.com/psharp-go/psharp/network"
)

// Server exposes a local network.Dispatcher over gRPC so a remote partition
// can create machines and send events into this process.
type Server struct {
	grpc       *grpc.Server
	dispatcher network.Dispatcher
	partition  string
}

// NewServer wraps dispatcher for partition and registers the Network
// service on grpcServer; callers own grpcServer's lifecycle (Serve/Stop).
func NewServer(grpcServer *grpc.Server, partition string, dispatcher network.Dispatcher) *Server {
	s := &Server{grpc: grpcServer, dispatcher: dispatcher, partition: partition}
	grpcServer.RegisterService(&serviceDesc, s)
	return s
}

func (s *Server) CreateRemote(ctx context.Context, req *CreateRemoteRequest) (*CreateRemoteReply, error) {
	id := s.dispatcher.AllocateMachineId(req.TypeName, "")
	id.Partition = s.partition
	initial := event.NewEvent(req.EventType, req.Payload)
	if err := s.dispatcher.CreateMachine(id, req.TypeName, &initial, event.MachineId{}, uuid.UUID(req.OperationGroup)); err != nil {
		return nil, err
	}
	return &CreateRemoteReply{
		Seq:          id.Seq,
		UID:          id.UID,
		TypeName:     id.TypeName,
		FriendlyName: id.FriendlyName,
		Partition:    id.Partition,
	}, nil
}

func (s *Server) SendRemote(ctx context.Context, req *SendRemoteRequest) (*SendRemoteReply, error) {
	target := event.MachineId{
		Seq:          req.TargetSeq,
		UID:          uuid.UUID(req.TargetUID),
		TypeName:     req.TargetTypeName,
		FriendlyName: req.TargetFriendlyName,
		Partition:    req.TargetPartition,
	}
	envl := event.EventEnvelope{
		Event:            event.NewEvent(req.EventType, req.Payload),
		OperationGroupID: uuid.UUID(req.OperationGroup),
	}
	opts := event.SendOptions{MustHandle: req.MustHandle}
	if err := s.dispatcher.DeliverSend(target, envl, opts); err != nil {
		return nil, err
	}
	return &SendRemoteReply{}, nil
}

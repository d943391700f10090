package networkgrpc

import "github.com/psharp-go/psharp/event"

// Payload types sent across a real network connection must be registered
// with encoding/gob (via RegisterPayload) before the first call that
// carries them, the same requirement gob places on any interface-typed
// field.
func RegisterPayload(sample any) { registerGob(sample) }

// CreateRemoteRequest asks the remote endpoint to instantiate typeName and
// deliver the initial event to it.
type CreateRemoteRequest struct {
	TargetPartition string
	TypeName        string
	EventType       event.EventType
	Payload         any
	OperationGroup  [16]byte
}

// CreateRemoteReply carries the newly allocated machine id back.
type CreateRemoteReply struct {
	Seq          uint64
	UID          [16]byte
	TypeName     string
	FriendlyName string
	Partition    string
}

// SendRemoteRequest delivers one event to an already-existing remote
// machine.
type SendRemoteRequest struct {
	TargetSeq          uint64
	TargetUID          [16]byte
	TargetTypeName     string
	TargetFriendlyName string
	TargetPartition    string
	EventType          event.EventType
	Payload            any
	OperationGroup     [16]byte
	MustHandle         bool
}

// SendRemoteReply is empty on success; errors surface as the RPC status.
type SendRemoteReply struct{}

// Package network implements the boundary the core scheduler delegates
// cross-partition traffic through. GoMC's own eventManager package already
// draws exactly this line (local event bus vs. a pluggable remote
// transport), so the shape here is grounded directly on its
// EventManager/LocalEventManager split; the gRPC-backed remote
// implementation lives in the sibling networkgrpc package the way GoMC's
// gomcGrpc plugs into the same interface.
package network

import (
	"github.com/google/uuid"

	"github.com/psharp-go/psharp/event"
)

// Provider is the interface the core treats every partition that isn't its
// own as going through. Same-partition sends never reach a Provider; the
// scheduler enqueues those directly.
type Provider interface {
	// CreateRemote instantiates typeName in targetPartition and delivers
	// initial as its first inbox event, returning the newly allocated id.
	CreateRemote(targetPartition, typeName string, initial event.Event, opts event.SendOptions) (event.MachineId, error)
	// SendRemote delivers evt to targetID, wherever it lives.
	SendRemote(targetID event.MachineId, evt event.Event, opts event.SendOptions) error
	// LocalEndpoint names the partition this Provider instance answers for.
	LocalEndpoint() string
}

// Local is the in-process forwarder: every partition it knows about is
// really just another set of machines on the same Dispatcher, so
// create_remote/send_remote degrade to ordinary local delivery. This is the
// only Provider implementation the core requires; anything reaching a real
// network goes through a plugin such as networkgrpc.Provider.
type Local struct {
	endpoint   string
	dispatcher Dispatcher
}

// Dispatcher is the subset of the scheduler a Provider calls back into to
// actually create machines and deliver events once a remote call resolves
// to "really, this is local".
type Dispatcher interface {
	CreateMachine(id event.MachineId, typeName string, initial *event.Event, creator event.MachineId, opGroup uuid.UUID) error
	DeliverSend(target event.MachineId, envl event.EventEnvelope, opts event.SendOptions) error
	AllocateMachineId(typeName, friendlyName string) event.MachineId
}

// NewLocal creates a Provider that forwards everything to dispatcher and
// reports endpoint as its own partition name.
func NewLocal(endpoint string, dispatcher Dispatcher) *Local {
	return &Local{endpoint: endpoint, dispatcher: dispatcher}
}

func (l *Local) LocalEndpoint() string { return l.endpoint }

func (l *Local) CreateRemote(targetPartition, typeName string, initial event.Event, opts event.SendOptions) (event.MachineId, error) {
	id := l.dispatcher.AllocateMachineId(typeName, "")
	id.Partition = targetPartition
	if err := l.dispatcher.CreateMachine(id, typeName, &initial, event.MachineId{}, opts.OperationGroupID); err != nil {
		return event.MachineId{}, err
	}
	return id, nil
}

func (l *Local) SendRemote(targetID event.MachineId, evt event.Event, opts event.SendOptions) error {
	envl := event.EventEnvelope{Event: evt, OperationGroupID: opts.OperationGroupID}
	return l.dispatcher.DeliverSend(targetID, envl, opts)
}

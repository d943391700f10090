// Package networkgrpc is the production network.Provider plugin: it moves
// create_remote/send_remote calls across a real gRPC connection instead of
// the in-process network.Local forwarder. Grounded on GoMC's gomcGrpc
// package, the teacher's own "production transport is a grpc plugin behind
// the same event-manager interface" pattern; generalized from GoMC's
// simulation-time interceptor (which pauses a real call until the
// scheduler grants the corresponding event) to the plain unary-RPC forward
// this runtime's network boundary actually needs, since the bug-finding
// runtime's scheduler never runs two partitions in the same process clock.
//
// Messages are encoded with gob rather than hand-written protobuf stubs:
// this package has no .proto source to generate from, so it registers a
// gob-backed grpc/encoding.Codec under the name "gob", which every call
// selects as its content subtype, and drives grpc.Server/grpc.ClientConn directly against a hand-built
// grpc.ServiceDesc, the same low-level surface grpc-go's own reverse-proxy
// examples use when no generated code is available.
package networkgrpc

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"google.golang.org/grpc/encoding"
)

const codecName = "gob"

// gobCodec implements encoding.Codec by round-tripping through encoding/gob.
type gobCodec struct{}

func (gobCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("networkgrpc: gob marshal: %w", err)
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("networkgrpc: gob unmarshal: %w", err)
	}
	return nil
}

func (gobCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(gobCodec{})
}

package networkgrpc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type customPayload struct {
	Tag string
	N   int
}

func TestGobCodecRoundTripsAMessage(t *testing.T) {
	c := gobCodec{}
	req := &CreateRemoteRequest{
		TargetPartition: "partitionB",
		TypeName:        "Server",
		EventType:       "init",
		Payload:         42,
	}

	data, err := c.Marshal(req)
	require.NoError(t, err)

	out := new(CreateRemoteRequest)
	require.NoError(t, c.Unmarshal(data, out))
	require.Equal(t, req.TargetPartition, out.TargetPartition)
	require.Equal(t, req.TypeName, out.TypeName)
	require.Equal(t, req.EventType, out.EventType)
	require.Equal(t, req.Payload, out.Payload)
}

func TestGobCodecRoundTripsARegisteredPayloadType(t *testing.T) {
	RegisterPayload(customPayload{})
	c := gobCodec{}

	req := &SendRemoteRequest{
		EventType: "greet",
		Payload:   customPayload{Tag: "hello", N: 7},
	}
	data, err := c.Marshal(req)
	require.NoError(t, err)

	out := new(SendRemoteRequest)
	require.NoError(t, c.Unmarshal(data, out))
	require.Equal(t, customPayload{Tag: "hello", N: 7}, out.Payload)
}

func TestGobCodecNameMatchesRegisteredContentSubtype(t *testing.T) {
	require.Equal(t, "gob", gobCodec{}.Name())
}

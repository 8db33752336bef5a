package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcompute/schedulerbackend/pkg/wire"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []any{
		wire.RegisterExecutor{ExecutorID: "exec-1", HostPort: "10.0.0.1:7000", Cores: 4},
		wire.RegisteredExecutor{Properties: map[string]string{"spark.executor.memory": "1g"}},
		wire.RegisterExecutorFailed{Reason: "duplicate executor id"},
		wire.StatusUpdate{ExecutorID: "exec-1", TaskID: "task-1", State: wire.TaskRunning},
		wire.LaunchTask{Task: wire.TaskDescription{TaskID: "task-1", ExecutorID: "exec-1", Payload: []byte("x")}},
	}

	for _, msg := range tests {
		env, err := Encode(msg)
		require.NoError(t, err)

		got, err := Decode(env)
		require.NoError(t, err)
		assert.Equal(t, msg, got)
	}
}

func TestEncodeUnsupportedTypeErrors(t *testing.T) {
	_, err := Encode(wire.ReviveOffers{})
	assert.Error(t, err)
}

func TestDecodeUnknownKindErrors(t *testing.T) {
	_, err := Decode(&Envelope{Kind: "bogus"})
	assert.Error(t, err)
}

func TestDecodeMissingPayloadErrors(t *testing.T) {
	_, err := Decode(&Envelope{Kind: kindRegister})
	assert.Error(t, err)
}

func TestJSONCodecRoundTrip(t *testing.T) {
	codec := jsonCodec{}

	env := &Envelope{Kind: kindStatusUpdate, StatusUpdate: &wire.StatusUpdate{
		ExecutorID: "exec-1", TaskID: "task-1", State: wire.TaskFinished,
	}}

	data, err := codec.Marshal(env)
	require.NoError(t, err)

	var out Envelope
	require.NoError(t, codec.Unmarshal(data, &out))
	assert.Equal(t, *env.StatusUpdate, *out.StatusUpdate)
}

func TestJSONCodecRejectsNonEnvelope(t *testing.T) {
	codec := jsonCodec{}
	_, err := codec.Marshal("not an envelope")
	assert.Error(t, err)
}

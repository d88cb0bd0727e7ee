package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	t.Parallel()

	data, err := Encode(MessageTypeStage, StageEvent{
		RequestID:  "r1",
		UserID:     "u1",
		Stage:      "reasoning",
		DurationMs: 12.5,
		Fallback:   true,
	})
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeStage, env.Type)

	ev, err := DecodePayload[StageEvent](env)
	require.NoError(t, err)
	assert.Equal(t, "r1", ev.RequestID)
	assert.Equal(t, "reasoning", ev.Stage)
	assert.Equal(t, 12.5, ev.DurationMs)
	assert.True(t, ev.Fallback)
}

func TestDecodeRejectsMissingType(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{"payload":{}}`))
	assert.ErrorContains(t, err, "no type")
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{"type":"pipeline.finished","payload":{}}`))
	assert.ErrorContains(t, err, "unknown message type")
}

func TestEncodeNilPayload(t *testing.T) {
	t.Parallel()

	data, err := Encode(MessageTypeHello, nil)
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeHello, env.Type)
	assert.Empty(t, env.Payload)
}

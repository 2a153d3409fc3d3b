package pb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

// ============================================================================
// TRANSPORT CODEC
// ============================================================================

func TestCodecIsRegistered(t *testing.T) {
	c := encoding.GetCodec(CodecName)
	require.NotNil(t, c)
	assert.Equal(t, CodecName, c.Name())
}

func TestCodecRejectsForeignTypes(t *testing.T) {
	_, err := wireCodec{}.Marshal(struct{}{})
	assert.Error(t, err)

	var n int
	assert.Error(t, wireCodec{}.Unmarshal([]byte{0x01}, &n))
}

func TestCodecCapturesEnvelopeDecodeFailure(t *testing.T) {
	garbage := []byte{0x05, 0xFF, 0xFF}

	var env Envelope
	require.NoError(t, wireCodec{}.Unmarshal(garbage, &env), "envelope decode failures are business errors, not transport errors")
	assert.Error(t, env.DecodeError())
	assert.Equal(t, garbage, env.Raw())
	assert.Equal(t, len(garbage), env.WireSize())

	var uni UniversalEnvelope
	require.NoError(t, wireCodec{}.Unmarshal(garbage, &uni))
	assert.Error(t, uni.DecodeError())
	assert.Equal(t, len(garbage), uni.WireSize())
}

func TestCodecKeepsWireImageOnCleanDecode(t *testing.T) {
	wire, err := sampleUniversal().MarshalWire()
	require.NoError(t, err)

	var env UniversalEnvelope
	require.NoError(t, wireCodec{}.Unmarshal(wire, &env))
	require.NoError(t, env.DecodeError())
	assert.Equal(t, "hostagent", env.SourceIdentity)
	assert.Equal(t, wire, env.Raw())
	assert.Equal(t, len(wire), env.WireSize())

	// The captured image is a copy; the bus stores it after the RPC buffer
	// is recycled.
	saved := env.Raw()[0]
	wire[0] ^= 0xFF
	assert.Equal(t, saved, env.Raw()[0])
}

func TestCodecHardFailsNonEnvelopeGarbage(t *testing.T) {
	var ack PublishAck
	assert.Error(t, wireCodec{}.Unmarshal([]byte{0x05}, &ack))
}

func TestCodecMarshalsAnyWireMessage(t *testing.T) {
	out, err := wireCodec{}.Marshal(&PublishAck{Status: PublishAck_RETRY, BackoffHintMs: 250})
	require.NoError(t, err)

	var ack PublishAck
	require.NoError(t, ack.UnmarshalWire(out))
	assert.Equal(t, PublishAck_RETRY, ack.Status)
	assert.Equal(t, uint32(250), ack.BackoffHintMs)
}

package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

func TestLegacyStatusMapping(t *testing.T) {
	assert.Equal(t, AckOK, legacyStatus(pb.PublishAck_OK))
	assert.Equal(t, AckRetry, legacyStatus(pb.PublishAck_RETRY))
	assert.Equal(t, AckInvalid, legacyStatus(pb.PublishAck_INVALID))
	assert.Equal(t, AckUnauthorized, legacyStatus(pb.PublishAck_UNAUTHORIZED))
}

func TestUniversalStatusMapping(t *testing.T) {
	assert.Equal(t, AckOK, universalStatus(pb.UniversalAck_OK))
	assert.Equal(t, AckRetry, universalStatus(pb.UniversalAck_RETRY))
	assert.Equal(t, AckInvalid, universalStatus(pb.UniversalAck_INVALID))
	assert.Equal(t, AckUnauthorized, universalStatus(pb.UniversalAck_UNAUTHORIZED))
	assert.Equal(t, AckRetry, universalStatus(pb.UniversalAck_PROCESSING_ERROR),
		"a bus-side fault is retryable, the envelope is fine")
}

func TestAckStatusString(t *testing.T) {
	assert.Equal(t, "OK", AckOK.String())
	assert.Equal(t, "RETRY", AckRetry.String())
	assert.Equal(t, "INVALID", AckInvalid.String())
	assert.Equal(t, "UNAUTHORIZED", AckUnauthorized.String())
	assert.Equal(t, "UNKNOWN", AckStatus(99).String())
}

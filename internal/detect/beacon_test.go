package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tsSeries(startNs uint64, stepNs uint64, jitterNs []uint64) []uint64 {
	out := make([]uint64, 0, len(jitterNs)+1)
	ts := startNs
	out = append(out, ts)
	for _, j := range jitterNs {
		ts += stepNs + j
		out = append(out, ts)
	}
	return out
}

func TestDetectBeacon_RegularIntervals(t *testing.T) {
	// Ten contacts exactly 60s apart: CV is 0, confidence caps at 1.0 after
	// the canonical-interval bump.
	ts := tsSeries(1_000_000_000, 60_000_000_000, make([]uint64, 9))
	b := DetectBeacon("203.0.113.9:443", ts, 0)
	require.NotNil(t, b)
	assert.InDelta(t, 60.0, b.MeanInterval, 1e-9)
	assert.InDelta(t, 0.0, b.CV, 1e-9)
	assert.Equal(t, 1.0, b.Confidence)
	assert.Equal(t, 10, b.Samples)
}

func TestDetectBeacon_ConfidenceIsOneMinusCV(t *testing.T) {
	// Slight jitter around 1000s keeps CV under the strict threshold but
	// outside the 30-300s bump range, so confidence == 1 - CV exactly.
	ts := tsSeries(0, 1_000_000_000_000, []uint64{
		0, 20_000_000_000, 0, 20_000_000_000, 0, 20_000_000_000,
	})
	b := DetectBeacon("198.51.100.7:8443", ts, 0)
	require.NotNil(t, b)
	assert.Less(t, b.CV, BeaconCVStrict)
	assert.InDelta(t, 1.0-b.CV, b.Confidence, 1e-12)
}

func TestDetectBeacon_IrregularTrafficIgnored(t *testing.T) {
	// Wildly varying gaps: 1s, 600s, 5s, 3000s, 2s.
	ts := []uint64{0, 1e9, 601e9, 606e9, 3606e9, 3608e9}
	assert.Nil(t, DetectBeacon("192.0.2.1:80", ts, 0))
}

func TestDetectBeacon_RequiresFiveSamples(t *testing.T) {
	ts := tsSeries(0, 60_000_000_000, make([]uint64, 3)) // only 4 samples
	assert.Nil(t, DetectBeacon("203.0.113.9:443", ts, 0))
}

func TestDetectBeacon_RelaxedThreshold(t *testing.T) {
	// Moderate jitter: rejected by the strict threshold, accepted by the
	// relaxed fallback.
	ts := tsSeries(0, 60_000_000_000, []uint64{
		0, 25_000_000_000, 5_000_000_000, 30_000_000_000,
		0, 25_000_000_000, 5_000_000_000, 30_000_000_000,
	})
	strict := DetectBeacon("203.0.113.9:443", ts, BeaconCVStrict)
	relaxed := DetectBeacon("203.0.113.9:443", ts, BeaconCVRelaxed)
	assert.Nil(t, strict)
	require.NotNil(t, relaxed)
	assert.GreaterOrEqual(t, relaxed.CV, BeaconCVStrict)
	assert.Less(t, relaxed.CV, BeaconCVRelaxed)
}

func TestDetectBeacon_OrderIndependent(t *testing.T) {
	ordered := tsSeries(1_000_000_000, 45_000_000_000, make([]uint64, 7))
	shuffled := []uint64{ordered[3], ordered[0], ordered[7], ordered[1], ordered[5], ordered[2], ordered[6], ordered[4]}

	a := DetectBeacon("x", ordered, 0)
	b := DetectBeacon("x", shuffled, 0)
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, a.CV, b.CV)
	assert.Equal(t, a.Confidence, b.Confidence)
}

func TestBeaconIndicator(t *testing.T) {
	ts := tsSeries(0, 60_000_000_000, make([]uint64, 5))
	b := DetectBeacon("203.0.113.9:443", ts, 0)
	require.NotNil(t, b)

	ind := b.Indicator()
	assert.Equal(t, IndicatorBeacon, ind.IndicatorType)
	assert.Equal(t, "203.0.113.9:443", ind.Value)
	assert.Contains(t, ind.MitreTechniques, "T1071")
}

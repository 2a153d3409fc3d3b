package detect

import (
	"fmt"
	"math"
	"sort"

	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

const (
	// BeaconMinSamples is the fewest contacts to one destination that can be
	// judged for periodicity.
	BeaconMinSamples = 5

	// BeaconCVStrict declares beaconing only for tightly regular traffic.
	BeaconCVStrict = 0.15

	// BeaconCVRelaxed is the looser fallback some call sites use when the
	// sample count is low or the source is bursty.
	BeaconCVRelaxed = 0.5
)

// Beacon describes periodic contact with one destination.
type Beacon struct {
	Destination  string
	MeanInterval float64 // seconds
	CV           float64 // coefficient of variation of the intervals
	Confidence   float64
	Samples      int
}

// DetectBeacon decides whether the contact timestamps (nanoseconds, any
// order) to dst form a beacon. A beacon is declared when the coefficient of
// variation of the inter-arrival intervals is below maxCV; confidence is
// 1 - CV, bumped when the mean interval sits in the canonical 30 to 300 s
// range malware favors. maxCV <= 0 selects the strict default. Returns nil
// when no beacon is present.
func DetectBeacon(dst string, tsNs []uint64, maxCV float64) *Beacon {
	if len(tsNs) < BeaconMinSamples {
		return nil
	}
	if maxCV <= 0 {
		maxCV = BeaconCVStrict
	}

	sorted := make([]uint64, len(tsNs))
	copy(sorted, tsNs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	intervals := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		intervals = append(intervals, float64(sorted[i]-sorted[i-1])/1e9)
	}

	var sum float64
	for _, v := range intervals {
		sum += v
	}
	mean := sum / float64(len(intervals))
	if mean <= 0 {
		return nil
	}

	var variance float64
	for _, v := range intervals {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(intervals))

	cv := math.Sqrt(variance) / mean
	if cv >= maxCV {
		return nil
	}

	confidence := 1.0 - cv
	if mean >= 30 && mean <= 300 {
		confidence += 0.10
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	return &Beacon{
		Destination:  dst,
		MeanInterval: mean,
		CV:           cv,
		Confidence:   confidence,
		Samples:      len(tsNs),
	}
}

// Indicator renders the beacon as a threat indicator.
func (b *Beacon) Indicator() *pb.ThreatIndicator {
	return newIndicator(
		IndicatorBeacon,
		b.Destination,
		b.Confidence,
		PhaseCommandAndControl,
		[]string{"T1071"},
		fmt.Sprintf("periodic contact every %.1fs (cv %.3f over %d samples)", b.MeanInterval, b.CV, b.Samples),
	)
}

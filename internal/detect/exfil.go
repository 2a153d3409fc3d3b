package detect

import (
	"fmt"
	"sync"
	"time"

	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

var exfilStagingPatterns = compilePatterns(
	`(?i)(tar|zip|7z|rar|ditto)\s+.*(documents|desktop|\.ssh|keychains|\.aws|\.gnupg)`,
	`(?i)tar\s+-?c[vzj]*f?\s+/(tmp|var/tmp|private/tmp|dev/shm)/`,
	`(?i)zip\s+-r\s+/(tmp|var/tmp|private/tmp|dev/shm)/`,
)

var exfilTransferPatterns = compilePatterns(
	`(?i)curl\s+.*(-T\s|--upload-file|-F\s|--form|-d\s+@)`,
	`(?i)scp\s+\S+\s+\S+@\S+:`,
	`(?i)rsync\s+.*\s\S+@\S+:`,
	`(?i)(wget|curl)\s+.*--post-file`,
)

// Defaults for the volume tracker, from the exfiltration heuristics contract.
const (
	ExfilVolumeThresholdBytes = 100 << 20 // 100 MiB
	ExfilVolumeWindow         = 300 * time.Second
)

// ExfilCommandIndicators flags staging (archiving sensitive directories) and
// transfer (curl/scp/rsync to external hosts) command lines.
func ExfilCommandIndicators(cmdline string) []*pb.ThreatIndicator {
	if cmdline == "" {
		return nil
	}
	var out []*pb.ThreatIndicator
	for _, p := range exfilStagingPatterns {
		if p.MatchString(cmdline) {
			out = append(out, newIndicator(
				IndicatorExfiltration,
				cmdline,
				0.7,
				PhaseExfiltration,
				[]string{"T1560.001"},
				"archive of sensitive directories",
			))
			break
		}
	}
	for _, p := range exfilTransferPatterns {
		if p.MatchString(cmdline) {
			out = append(out, newIndicator(
				IndicatorExfiltration,
				cmdline,
				0.75,
				PhaseExfiltration,
				[]string{"T1048"},
				"upload tooling with external destination",
			))
			break
		}
	}
	return out
}

type volumeSample struct {
	tsNs  uint64
	bytes uint64
}

// ExfilVolumeTracker accumulates outbound bytes per destination over a
// rolling window and raises once the threshold is crossed. Safe for use from
// one collector goroutine plus tests; guarded by a mutex regardless.
type ExfilVolumeTracker struct {
	mu        sync.Mutex
	threshold uint64
	window    time.Duration
	perDst    map[string][]volumeSample
}

// NewExfilVolumeTracker builds a tracker. Zero arguments select the
// defaults (100 MiB over 300 s).
func NewExfilVolumeTracker(threshold uint64, window time.Duration) *ExfilVolumeTracker {
	if threshold == 0 {
		threshold = ExfilVolumeThresholdBytes
	}
	if window <= 0 {
		window = ExfilVolumeWindow
	}
	return &ExfilVolumeTracker{
		threshold: threshold,
		window:    window,
		perDst:    make(map[string][]volumeSample),
	}
}

// Observe records outbound bytes to dst at tsNs and returns an indicator when
// the windowed sum crosses the threshold. The destination's history resets
// after firing so one sustained transfer raises once.
func (t *ExfilVolumeTracker) Observe(dst string, bytes, tsNs uint64) *pb.ThreatIndicator {
	if bytes == 0 || dst == "" {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := uint64(0)
	if w := uint64(t.window.Nanoseconds()); tsNs > w {
		cutoff = tsNs - w
	}

	kept := t.perDst[dst][:0]
	var sum uint64
	for _, s := range t.perDst[dst] {
		if s.tsNs >= cutoff {
			kept = append(kept, s)
			sum += s.bytes
		}
	}
	kept = append(kept, volumeSample{tsNs: tsNs, bytes: bytes})
	sum += bytes
	t.perDst[dst] = kept

	if sum < t.threshold {
		return nil
	}
	delete(t.perDst, dst)
	return newIndicator(
		IndicatorExfiltration,
		dst,
		0.85,
		PhaseExfiltration,
		[]string{"T1041"},
		fmt.Sprintf("%d bytes outbound to one destination within %s", sum, t.window),
	)
}

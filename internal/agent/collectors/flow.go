package collectors

import (
	"context"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/Vardhan-225/Amoskys-sub000/internal/detect"
	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

// beaconRingMax is how many recent contact timestamps are kept per
// destination for the periodicity check.
const beaconRingMax = 32

// flowLine is one exported flow record, one JSON object per line.
type flowLine struct {
	SrcIP     string `json:"src_ip"`
	SrcPort   uint32 `json:"src_port"`
	DstIP     string `json:"dst_ip"`
	DstPort   uint32 `json:"dst_port"`
	Protocol  string `json:"protocol"`
	Direction string `json:"direction"`
	BytesIn   uint64 `json:"bytes_in"`
	BytesOut  uint64 `json:"bytes_out"`
	Packets   uint64 `json:"packets"`
	StartTsNs uint64 `json:"start_ts_ns"`
	EndTsNs   uint64 `json:"end_ts_ns"`
}

// FlowCollector tails a JSON-lines flow export and ships every flow, running
// the network primitives over it: C2 heuristics per flow, beaconing over the
// per-destination contact history, and the rolling exfiltration volume
// tracker.
type FlowCollector struct {
	tail *logTail
	log  *zap.SugaredLogger
	now  func() time.Time

	exfil   *detect.ExfilVolumeTracker
	beacons map[string][]uint64
}

// NewFlowCollector tails the flow export at path.
func NewFlowCollector(path string, log *zap.SugaredLogger) (*FlowCollector, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	tail, err := newLogTail(path, log)
	if err != nil {
		return nil, err
	}
	return &FlowCollector{
		tail:    tail,
		log:     log,
		now:     time.Now,
		exfil:   detect.NewExfilVolumeTracker(0, 0),
		beacons: make(map[string][]uint64),
	}, nil
}

func (c *FlowCollector) Name() string { return "flow" }

func (c *FlowCollector) Close() error { return c.tail.Close() }

func (c *FlowCollector) Collect(ctx context.Context) ([]*pb.TelemetryEvent, error) {
	var events []*pb.TelemetryEvent
	for _, line := range c.tail.Lines() {
		if err := ctx.Err(); err != nil {
			return events, err
		}
		var fl flowLine
		if err := json.Unmarshal([]byte(line), &fl); err != nil {
			c.log.Debugw("unparseable flow line skipped", "err", err)
			continue
		}
		if fl.DstIP == "" && fl.SrcIP == "" {
			continue
		}

		flow := &pb.FlowEvent{
			SrcIp:       fl.SrcIP,
			SrcPort:     fl.SrcPort,
			DstIp:       fl.DstIP,
			DstPort:     fl.DstPort,
			Protocol:    strings.ToLower(fl.Protocol),
			Direction:   parseDirection(fl.Direction),
			BytesIn:     fl.BytesIn,
			BytesOut:    fl.BytesOut,
			PacketCount: fl.Packets,
			StartTsNs:   fl.StartTsNs,
			EndTsNs:     fl.EndTsNs,
		}

		tsNs := flow.EndTsNs
		if tsNs == 0 {
			tsNs = flow.StartTsNs
		}
		if tsNs == 0 {
			tsNs = uint64(c.now().UnixNano())
		}

		events = append(events, flowEvent(tsNs, pb.TelemetryEvent_INFO, flow))

		inds := c.inspect(flow, tsNs)
		if len(inds) == 0 {
			continue
		}
		inds = stamp(tsNs, inds...)
		events = append(events, securityEvent(tsNs, indicatorSeverity(inds), &pb.SecurityEvent{
			Service:    "system",
			Action:     "indicator",
			SourceIp:   flow.SrcIp,
			Indicators: inds,
		}))
	}
	return events, nil
}

// inspect composes the network primitives for one flow.
func (c *FlowCollector) inspect(flow *pb.FlowEvent, tsNs uint64) []*pb.ThreatIndicator {
	inds := detect.C2Indicators(flow)

	if flow.Direction == pb.FlowEvent_OUTBOUND && flow.DstIp != "" {
		dst := flow.DstIp + ":" + strconv.FormatUint(uint64(flow.DstPort), 10)

		ring := append(c.beacons[dst], tsNs)
		if len(ring) > beaconRingMax {
			ring = ring[len(ring)-beaconRingMax:]
		}
		if b := detect.DetectBeacon(dst, ring, 0); b != nil {
			inds = append(inds, b.Indicator())
			// Start a fresh history so one beacon raises once, not on
			// every subsequent contact.
			delete(c.beacons, dst)
		} else {
			c.beacons[dst] = ring
		}

		if ind := c.exfil.Observe(flow.DstIp, flow.BytesOut, tsNs); ind != nil {
			inds = append(inds, ind)
		}
	}
	return inds
}

func parseDirection(s string) pb.FlowEvent_Direction {
	switch {
	case strings.EqualFold(s, "INBOUND"):
		return pb.FlowEvent_INBOUND
	case strings.EqualFold(s, "OUTBOUND"):
		return pb.FlowEvent_OUTBOUND
	default:
		return pb.FlowEvent_DIRECTION_UNSPECIFIED
	}
}

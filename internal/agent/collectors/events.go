// Package collectors holds the event sources the agents schedule: process
// (procfs diff), dns and audit and flow (log tails), peripheral (sysfs diff)
// and file integrity (baseline diff). Each collector owns its state and is
// driven from a single goroutine by the agent runtime.
package collectors

import (
	"github.com/google/uuid"

	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

func securityEvent(tsNs uint64, sev pb.TelemetryEvent_Severity, body *pb.SecurityEvent) *pb.TelemetryEvent {
	return &pb.TelemetryEvent{
		EventId:   uuid.NewString(),
		EventType: pb.TelemetryEvent_SECURITY,
		Severity:  sev,
		EventTsNs: tsNs,
		Body:      &pb.TelemetryEvent_Security{Security: body},
	}
}

func processEvent(tsNs uint64, sev pb.TelemetryEvent_Severity, body *pb.ProcessEvent) *pb.TelemetryEvent {
	return &pb.TelemetryEvent{
		EventId:   uuid.NewString(),
		EventType: pb.TelemetryEvent_PROCESS,
		Severity:  sev,
		EventTsNs: tsNs,
		Body:      &pb.TelemetryEvent_Process{Process: body},
	}
}

func auditEvent(tsNs uint64, sev pb.TelemetryEvent_Severity, body *pb.AuditEvent) *pb.TelemetryEvent {
	return &pb.TelemetryEvent{
		EventId:   uuid.NewString(),
		EventType: pb.TelemetryEvent_AUDIT,
		Severity:  sev,
		EventTsNs: tsNs,
		Body:      &pb.TelemetryEvent_Audit{Audit: body},
	}
}

func flowEvent(tsNs uint64, sev pb.TelemetryEvent_Severity, body *pb.FlowEvent) *pb.TelemetryEvent {
	return &pb.TelemetryEvent{
		EventId:   uuid.NewString(),
		EventType: pb.TelemetryEvent_FLOW,
		Severity:  sev,
		EventTsNs: tsNs,
		Body:      &pb.TelemetryEvent_Flow{Flow: body},
	}
}

// stamp sets the collection timestamp on indicators, dropping nils so call
// sites can append primitive results unconditionally.
func stamp(tsNs uint64, inds ...*pb.ThreatIndicator) []*pb.ThreatIndicator {
	out := inds[:0]
	for _, ind := range inds {
		if ind == nil {
			continue
		}
		ind.TsNs = tsNs
		out = append(out, ind)
	}
	return out
}

// indicatorSeverity maps the strongest indicator confidence onto the event
// severity ladder.
func indicatorSeverity(inds []*pb.ThreatIndicator) pb.TelemetryEvent_Severity {
	max := 0.0
	for _, ind := range inds {
		if ind.Confidence > max {
			max = ind.Confidence
		}
	}
	switch {
	case max >= 0.9:
		return pb.TelemetryEvent_CRITICAL
	case max >= 0.7:
		return pb.TelemetryEvent_ERROR
	case max >= 0.4:
		return pb.TelemetryEvent_WARN
	default:
		return pb.TelemetryEvent_INFO
	}
}

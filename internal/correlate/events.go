// Package correlate turns the stream of accepted telemetry into incidents.
// It keeps a sliding window of recent events per device and runs the shipped
// rule table over each window, off the ingest hot path.
package correlate

import (
	"fmt"

	"github.com/Vardhan-225/Amoskys-sub000/internal/wal"
	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

// Event is the normalized view rules evaluate. Exactly one body pointer is
// set and Type names which one.
type Event struct {
	EventID  string
	DeviceID string
	Type     pb.TelemetryEvent_EventType
	Severity pb.TelemetryEvent_Severity
	TsNs     int64

	Security *pb.SecurityEvent
	Flow     *pb.FlowEvent
	Process  *pb.ProcessEvent
	Audit    *pb.AuditEvent
}

// eventsFromRecord decodes one accepted envelope into window events. All
// events in a record belong to a single device.
func eventsFromRecord(rec wal.Record) (string, []Event, error) {
	switch rec.Kind {
	case wal.KindUniversal:
		env := &pb.UniversalEnvelope{}
		if err := env.UnmarshalWire(rec.Envelope); err != nil {
			return "", nil, fmt.Errorf("correlate: decode universal envelope %s: %w", rec.IdempotencyKey, err)
		}
		if env.Telemetry == nil {
			return "", nil, nil
		}
		device, events := normalizeBatch(rec, env.SourceIdentity, env.Telemetry)
		return device, events, nil
	default:
		env := &pb.Envelope{}
		if err := env.UnmarshalWire(rec.Envelope); err != nil {
			return "", nil, fmt.Errorf("correlate: decode envelope %s: %w", rec.IdempotencyKey, err)
		}
		device := env.SourceIdentity
		if device == "" {
			device = "unknown"
		}
		ts := int64(env.TsNs)
		if ts == 0 {
			ts = int64(rec.TsNs)
		}
		switch p := env.Payload.(type) {
		case *pb.Envelope_Flow:
			return device, []Event{{
				EventID:  rec.IdempotencyKey,
				DeviceID: device,
				Type:     pb.TelemetryEvent_FLOW,
				TsNs:     ts,
				Flow:     p.Flow,
			}}, nil
		case *pb.Envelope_Process:
			return device, []Event{{
				EventID:  rec.IdempotencyKey,
				DeviceID: device,
				Type:     pb.TelemetryEvent_PROCESS,
				TsNs:     ts,
				Process:  p.Process,
			}}, nil
		case *pb.Envelope_DeviceTelemetry:
			device, events := normalizeBatch(rec, env.SourceIdentity, p.DeviceTelemetry)
			return device, events, nil
		default:
			// Opaque legacy bytes carry nothing the rules can read.
			return device, nil, nil
		}
	}
}

func normalizeBatch(rec wal.Record, source string, dt *pb.DeviceTelemetry) (string, []Event) {
	device := dt.DeviceId
	if device == "" {
		device = source
	}
	if device == "" {
		device = "unknown"
	}
	out := make([]Event, 0, len(dt.Events))
	for i, ev := range dt.Events {
		if ev == nil {
			continue
		}
		id := ev.EventId
		if id == "" {
			id = fmt.Sprintf("%s/%d", rec.IdempotencyKey, i)
		}
		ts := int64(ev.EventTsNs)
		if ts == 0 {
			ts = int64(rec.TsNs)
		}
		ne := Event{
			EventID:  id,
			DeviceID: device,
			Severity: ev.Severity,
			TsNs:     ts,
		}
		switch b := ev.Body.(type) {
		case *pb.TelemetryEvent_Security:
			if b.Security == nil {
				continue
			}
			ne.Type, ne.Security = pb.TelemetryEvent_SECURITY, b.Security
		case *pb.TelemetryEvent_Flow:
			if b.Flow == nil {
				continue
			}
			ne.Type, ne.Flow = pb.TelemetryEvent_FLOW, b.Flow
		case *pb.TelemetryEvent_Process:
			if b.Process == nil {
				continue
			}
			ne.Type, ne.Process = pb.TelemetryEvent_PROCESS, b.Process
		case *pb.TelemetryEvent_Audit:
			if b.Audit == nil {
				continue
			}
			ne.Type, ne.Audit = pb.TelemetryEvent_AUDIT, b.Audit
		default:
			continue
		}
		out = append(out, ne)
	}
	return device, out
}

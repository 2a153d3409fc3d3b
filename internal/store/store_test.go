package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Vardhan-225/Amoskys-sub000/internal/config"
	"github.com/Vardhan-225/Amoskys-sub000/internal/wal"
	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

// ===== HELPERS =====

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(config.StoreConfig{
		Backend: "sqlite",
		DSN:     filepath.Join(t.TempDir(), "telemetry.db"),
	}, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func universalRecord(t *testing.T, key string, tsNs uint64, events ...*pb.TelemetryEvent) wal.Record {
	t.Helper()
	env := &pb.UniversalEnvelope{
		Version:        "v1",
		TsNs:           tsNs,
		IdempotencyKey: key,
		SourceIdentity: "agent-1",
		Telemetry: &pb.DeviceTelemetry{
			DeviceId:       "dev-9",
			DeviceType:     pb.DeviceTelemetry_ENDPOINT,
			CollectionTsNs: tsNs,
			Events:         events,
		},
	}
	raw, err := env.MarshalWire()
	require.NoError(t, err)
	return wal.Record{IdempotencyKey: key, TsNs: tsNs, Kind: wal.KindUniversal, Envelope: raw}
}

func legacyFlowRecord(t *testing.T, key string, tsNs uint64) wal.Record {
	t.Helper()
	env := &pb.Envelope{
		Version:        "v1",
		TsNs:           tsNs,
		IdempotencyKey: key,
		SourceIdentity: "flowagent-7",
		Payload: &pb.Envelope_Flow{Flow: &pb.FlowEvent{
			SrcIp:     "10.0.0.8",
			SrcPort:   51544,
			DstIp:     "192.0.2.10",
			DstPort:   443,
			Protocol:  "tcp",
			Direction: pb.FlowEvent_OUTBOUND,
			BytesOut:  2048,
		}},
	}
	raw, err := env.MarshalWire()
	require.NoError(t, err)
	return wal.Record{IdempotencyKey: key, TsNs: tsNs, Kind: wal.KindLegacy, Envelope: raw}
}

func secEvent(id, service, action string) *pb.TelemetryEvent {
	return &pb.TelemetryEvent{
		EventId:   id,
		EventType: pb.TelemetryEvent_SECURITY,
		Severity:  pb.TelemetryEvent_WARN,
		EventTsNs: 1700000000000000100,
		Body: &pb.TelemetryEvent_Security{Security: &pb.SecurityEvent{
			Service:  service,
			Action:   action,
			SourceIp: "203.0.113.9",
			Username: "root",
			Indicators: []*pb.ThreatIndicator{{
				IndicatorType: "brute_force",
				Value:         "203.0.113.9",
				Confidence:    0.9,
			}},
		}},
	}
}

// ===== INSERT DISPATCH =====

func TestInsertUniversalRecordLandsTypedRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := universalRecord(t, "batch-1", 1700000000000000000,
		secEvent("ev-sec", "ssh", "auth_failure"),
		&pb.TelemetryEvent{
			EventId:   "ev-flow",
			EventType: pb.TelemetryEvent_FLOW,
			Severity:  pb.TelemetryEvent_INFO,
			EventTsNs: 1700000000000000200,
			Body: &pb.TelemetryEvent_Flow{Flow: &pb.FlowEvent{
				SrcIp: "10.0.0.8", SrcPort: 40000, DstIp: "192.0.2.1", DstPort: 22,
				Protocol: "tcp", Direction: pb.FlowEvent_OUTBOUND, BytesOut: 512,
			}},
		},
		&pb.TelemetryEvent{
			EventId:   "ev-proc",
			EventType: pb.TelemetryEvent_PROCESS,
			Severity:  pb.TelemetryEvent_INFO,
			EventTsNs: 1700000000000000300,
			Body: &pb.TelemetryEvent_Process{Process: &pb.ProcessEvent{
				Pid: 4242, Ppid: 1, Executable: "/usr/bin/curl",
				CommandLine: "curl https://example.com", Username: "alice",
			}},
		},
		&pb.TelemetryEvent{
			EventId:   "ev-audit",
			EventType: pb.TelemetryEvent_AUDIT,
			Severity:  pb.TelemetryEvent_ERROR,
			EventTsNs: 1700000000000000400,
			Body: &pb.TelemetryEvent_Audit{Audit: &pb.AuditEvent{
				Operation: pb.AuditEvent_CREATED,
				Path:      "/Library/LaunchDaemons/com.evil.plist",
				Exe:       "/bin/bash",
				Auid:      501,
				Success:   true,
			}},
		},
	)
	require.NoError(t, s.InsertRecord(ctx, rec))

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.DeviceTelemetry)
	assert.Equal(t, int64(1), c.SecurityEvents)
	assert.Equal(t, int64(1), c.FlowEvents)
	assert.Equal(t, int64(1), c.ProcessEvents)
	assert.Equal(t, int64(1), c.AuditEvents)
	assert.Equal(t, int64(0), c.PeripheralEvents)

	// Replaying the same record must not duplicate anything.
	require.NoError(t, s.InsertRecord(ctx, rec))
	c2, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, c, c2)

	var indicators string
	require.NoError(t, s.db.GetContext(ctx, &indicators,
		s.rebind(`SELECT indicators FROM security_events WHERE event_id = ?`), "ev-sec"))
	assert.Contains(t, indicators, "brute_force")

	var severity string
	require.NoError(t, s.db.GetContext(ctx, &severity,
		s.rebind(`SELECT severity FROM audit_events WHERE event_id = ?`), "ev-audit"))
	assert.Equal(t, "ERROR", severity)
}

func TestInsertUniversalEventIDFallback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ev := secEvent("", "ssh", "auth_failure")
	require.NoError(t, s.InsertRecord(ctx, universalRecord(t, "batch-3", 42, ev)))

	var id string
	require.NoError(t, s.db.GetContext(ctx, &id,
		s.rebind(`SELECT event_id FROM security_events WHERE device_id = ?`), "dev-9"))
	assert.Equal(t, "batch-3/0", id)
}

func TestInsertPeripheralRouting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ev := &pb.TelemetryEvent{
		EventId:   "ev-usb",
		EventType: pb.TelemetryEvent_SECURITY,
		Severity:  pb.TelemetryEvent_WARN,
		EventTsNs: 77,
		Body: &pb.TelemetryEvent_Security{Security: &pb.SecurityEvent{
			Service: "peripheral",
			Action:  "attach",
			Command: "USB mass storage SanDisk Ultra",
		}},
	}
	require.NoError(t, s.InsertRecord(ctx, universalRecord(t, "batch-usb", 77, ev)))

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.PeripheralEvents)
	assert.Equal(t, int64(0), c.SecurityEvents)

	rows, err := s.EventsByType(ctx, "PERIPHERAL", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ev-usb", rows[0].EventID)
	assert.Equal(t, "attach USB mass storage SanDisk Ultra", rows[0].Summary)
}

func TestInsertLegacyFlowEnvelope(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertRecord(ctx, legacyFlowRecord(t, "flow-1", 9000)))

	rows, err := s.EventsByType(ctx, "FLOW", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "flow-1", rows[0].EventID)
	assert.Equal(t, "flowagent-7", rows[0].DeviceID)
	assert.Equal(t, "10.0.0.8:51544 -> 192.0.2.10:443", rows[0].Summary)
	assert.Equal(t, int64(9000), rows[0].TsNs)
}

func TestInsertLegacyOpaquePayloadSkipped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	env := &pb.Envelope{
		Version:        "v1",
		TsNs:           5,
		IdempotencyKey: "opaque-1",
		SourceIdentity: "agent-x",
		Payload:        &pb.Envelope_LegacyPayload{LegacyPayload: []byte{0xde, 0xad}},
	}
	raw, err := env.MarshalWire()
	require.NoError(t, err)

	rec := wal.Record{IdempotencyKey: "opaque-1", TsNs: 5, Kind: wal.KindLegacy, Envelope: raw}
	require.NoError(t, s.InsertRecord(ctx, rec))

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{}, c)
}

func TestInsertRecordBadBytes(t *testing.T) {
	s := newTestStore(t)
	rec := wal.Record{IdempotencyKey: "junk", TsNs: 1, Kind: wal.KindUniversal, Envelope: []byte{0xff, 0xff}}
	err := s.InsertRecord(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode universal envelope")
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(config.StoreConfig{Backend: "spanner", DSN: "x"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend")
}

// ===== QUERIES =====

func TestRecentEventsOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertRecord(ctx, legacyFlowRecord(t, "flow-old", 100)))
	require.NoError(t, s.InsertRecord(ctx, legacyFlowRecord(t, "flow-new", 300)))
	mid := secEvent("ev-mid", "sudo", "command")
	mid.EventTsNs = 200
	require.NoError(t, s.InsertRecord(ctx, universalRecord(t, "batch-mid", 200, mid)))

	rows, err := s.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "flow-new", rows[0].EventID)
	assert.Equal(t, "flow-old", rows[2].EventID)

	limited, err := s.RecentEvents(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestEventsByTypeUnknown(t *testing.T) {
	s := newTestStore(t)
	_, err := s.EventsByType(context.Background(), "COSMIC", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event type")
}

func TestDeviceEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertRecord(ctx, legacyFlowRecord(t, "flow-a", 10)))
	require.NoError(t, s.InsertRecord(ctx, universalRecord(t, "batch-b", 20,
		secEvent("ev-b", "ssh", "auth_success"))))

	rows, err := s.DeviceEvents(ctx, "dev-9", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ev-b", rows[0].EventID)

	rows, err = s.DeviceEvents(ctx, "flowagent-7", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "flow-a", rows[0].EventID)
}

// ===== INCIDENTS =====

func TestIncidentLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inc := Incident{
		IncidentID: "11111111-2222-3333-4444-555555555555",
		DeviceID:   "dev-9",
		Severity:   "HIGH",
		Tactics:    JSONList{"credential_access", "lateral_movement"},
		Techniques: JSONList{"T1110", "T1021.004"},
		Evidence:   JSONList{"fail1", "fail2", "fail3", "success"},
		Metadata:   JSONMap{"source_ip": "203.0.113.9"},
		RuleName:   "ssh_brute_force",
		Summary:    "SSH brute force from 203.0.113.9 followed by success",
		StartTsNs:  1000,
		EndTsNs:    2000,
	}
	inserted, err := s.InsertIncident(ctx, inc)
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same deterministic id is a no-op.
	inserted, err = s.InsertIncident(ctx, inc)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := s.Incidents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, IncidentStateNew, got[0].State)
	assert.Equal(t, JSONList{"T1110", "T1021.004"}, got[0].Techniques)
	assert.Equal(t, JSONMap{"source_ip": "203.0.113.9"}, got[0].Metadata)
	assert.Len(t, got[0].Evidence, 4)

	require.NoError(t, s.UpdateIncidentState(ctx, inc.IncidentID, IncidentStateResolved))
	got, err = s.DeviceIncidents(ctx, "dev-9", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, IncidentStateResolved, got[0].State)

	err = s.UpdateIncidentState(ctx, inc.IncidentID, "SHRUG")
	require.Error(t, err)
	err = s.UpdateIncidentState(ctx, "nope", IncidentStateResolved)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestIncidentsOrderedByStart(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, inc := range []Incident{
		{IncidentID: "a", DeviceID: "d1", Severity: "HIGH", RuleName: "r", Summary: "s", StartTsNs: 100, EndTsNs: 150},
		{IncidentID: "b", DeviceID: "d1", Severity: "HIGH", RuleName: "r", Summary: "s", StartTsNs: 300, EndTsNs: 350},
		{IncidentID: "c", DeviceID: "d2", Severity: "HIGH", RuleName: "r", Summary: "s", StartTsNs: 200, EndTsNs: 250},
	} {
		_, err := s.InsertIncident(ctx, inc)
		require.NoError(t, err)
	}

	got, err := s.Incidents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].IncidentID)
	assert.Equal(t, "c", got[1].IncidentID)
	assert.Equal(t, "a", got[2].IncidentID)

	d1, err := s.DeviceIncidents(ctx, "d1", 10)
	require.NoError(t, err)
	require.Len(t, d1, 2)
}

// ===== RETENTION =====

func TestPruneDeletesOldEventsKeepsIncidents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertRecord(ctx, legacyFlowRecord(t, "flow-old", 100)))
	require.NoError(t, s.InsertRecord(ctx, legacyFlowRecord(t, "flow-new", 200)))
	_, err := s.InsertIncident(ctx, Incident{
		IncidentID: "inc-old", DeviceID: "d", Severity: "HIGH",
		RuleName: "r", Summary: "s", StartTsNs: 50, EndTsNs: 60,
	})
	require.NoError(t, err)

	deleted, err := s.Prune(ctx, 150)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.FlowEvents)
	assert.Equal(t, int64(1), c.Incidents)

	rows, err := s.EventsByType(ctx, "FLOW", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "flow-new", rows[0].EventID)
}

// ===== WAL INTEGRATION =====

func TestBackfillReplaysWAL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	w, err := wal.Open(filepath.Join(t.TempDir(), "wal.db"), nil)
	require.NoError(t, err)
	defer w.Close()

	legacy := legacyFlowRecord(t, "flow-w", 10)
	_, err = w.Append(legacy.IdempotencyKey, legacy.TsNs, legacy.Kind, legacy.Envelope)
	require.NoError(t, err)

	uni := universalRecord(t, "batch-w", 20, secEvent("ev-w", "ssh", "auth_failure"))
	_, err = w.Append(uni.IdempotencyKey, uni.TsNs, uni.Kind, uni.Envelope)
	require.NoError(t, err)

	// A corrupt envelope is skipped with a warning, not fatal.
	_, err = w.Append("garbage", 30, wal.KindLegacy, []byte{0xff, 0xff, 0xff})
	require.NoError(t, err)

	replayed, err := s.Backfill(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, 2, replayed)

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.FlowEvents)
	assert.Equal(t, int64(1), c.SecurityEvents)
	assert.Equal(t, int64(1), c.DeviceTelemetry)
}

func TestRunConsumerDrainsChannel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ch := make(chan wal.Record, 2)
	done := make(chan struct{})
	go func() {
		s.RunConsumer(ctx, ch)
		close(done)
	}()

	ch <- legacyFlowRecord(t, "flow-live", 77)
	// Undecodable bytes are logged and skipped without stopping the consumer.
	ch <- wal.Record{IdempotencyKey: "junk", TsNs: 78, Kind: wal.KindLegacy, Envelope: []byte{0xff}}
	close(ch)
	<-done

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.FlowEvents)
}

func TestRunConsumerStopsOnCancel(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch := make(chan wal.Record)
	done := make(chan struct{})
	go func() {
		s.RunConsumer(ctx, ch)
		close(done)
	}()
	cancel()
	<-done
}

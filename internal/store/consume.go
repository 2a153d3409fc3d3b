package store

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"

	"github.com/Vardhan-225/Amoskys-sub000/internal/wal"
	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

// InsertRecord decodes one accepted envelope and lands its rows. Inserts
// are keyed on stable ids with conflict-ignore, so replaying the WAL is
// harmless.
func (s *Store) InsertRecord(ctx context.Context, rec wal.Record) error {
	switch rec.Kind {
	case wal.KindUniversal:
		env := &pb.UniversalEnvelope{}
		if err := env.UnmarshalWire(rec.Envelope); err != nil {
			return fmt.Errorf("store: decode universal envelope %s: %w", rec.IdempotencyKey, err)
		}
		return s.withTx(ctx, func(tx *sqlx.Tx) error {
			if env.Telemetry == nil {
				return nil
			}
			return s.insertTelemetryBatch(ctx, tx, rec.IdempotencyKey, int64(rec.TsNs), env.SourceIdentity, env.Telemetry)
		})
	default:
		env := &pb.Envelope{}
		if err := env.UnmarshalWire(rec.Envelope); err != nil {
			return fmt.Errorf("store: decode envelope %s: %w", rec.IdempotencyKey, err)
		}
		return s.withTx(ctx, func(tx *sqlx.Tx) error {
			return s.insertLegacy(ctx, tx, rec, env)
		})
	}
}

// RunConsumer drains the WAL fan-out channel until ctx is cancelled or the
// channel closes. Insert failures are logged and skipped; the row can be
// recovered later with Backfill.
func (s *Store) RunConsumer(ctx context.Context, ch <-chan wal.Record) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-ch:
			if !ok {
				return
			}
			if err := s.InsertRecord(ctx, rec); err != nil {
				s.log.Errorw("telemetry insert failed",
					"idempotency_key", rec.IdempotencyKey, "err", err)
			}
		}
	}
}

// Backfill replays the whole WAL into the store. Used at startup to close
// the gap between the log and the archive after a crash.
func (s *Store) Backfill(ctx context.Context, w *wal.WAL) (int, error) {
	replayed := 0
	err := w.Scan(func(rec wal.Record) error {
		if err := s.InsertRecord(ctx, rec); err != nil {
			s.log.Warnw("backfill insert failed",
				"idempotency_key", rec.IdempotencyKey, "err", err)
			return nil
		}
		replayed++
		return nil
	})
	return replayed, err
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) insertLegacy(ctx context.Context, tx *sqlx.Tx, rec wal.Record, env *pb.Envelope) error {
	deviceID := env.SourceIdentity
	if deviceID == "" {
		deviceID = "unknown"
	}
	ts := int64(env.TsNs)
	if ts == 0 {
		ts = int64(rec.TsNs)
	}
	sev := pb.TelemetryEvent_SEVERITY_UNSPECIFIED.String()

	switch p := env.Payload.(type) {
	case *pb.Envelope_Flow:
		return s.insertFlow(ctx, tx, rec.IdempotencyKey, deviceID, sev, p.Flow, ts)
	case *pb.Envelope_Process:
		return s.insertProcess(ctx, tx, rec.IdempotencyKey, deviceID, sev, p.Process, ts)
	case *pb.Envelope_DeviceTelemetry:
		return s.insertTelemetryBatch(ctx, tx, rec.IdempotencyKey, ts, env.SourceIdentity, p.DeviceTelemetry)
	case *pb.Envelope_LegacyPayload:
		// Opaque bytes are durable in the WAL but have no typed table.
		s.log.Debugw("opaque legacy payload not archived",
			"idempotency_key", rec.IdempotencyKey, "bytes", len(p.LegacyPayload))
		return nil
	default:
		return nil
	}
}

func (s *Store) insertTelemetryBatch(ctx context.Context, tx *sqlx.Tx, key string, recTsNs int64, source string, dt *pb.DeviceTelemetry) error {
	deviceID := dt.DeviceId
	if deviceID == "" {
		deviceID = source
	}
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO device_telemetry
			(idempotency_key, device_id, device_type, collection_ts_ns, event_count, ts_ns)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`),
		key, deviceID, dt.DeviceType.String(), int64(dt.CollectionTsNs), len(dt.Events), recTsNs)
	if err != nil {
		return fmt.Errorf("insert device_telemetry: %w", err)
	}

	for i, ev := range dt.Events {
		if ev == nil {
			continue
		}
		id := ev.EventId
		if id == "" {
			id = fmt.Sprintf("%s/%d", key, i)
		}
		ts := int64(ev.EventTsNs)
		if ts == 0 {
			ts = recTsNs
		}
		if err := s.insertEvent(ctx, tx, id, deviceID, ev.Severity.String(), ev, ts); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertEvent(ctx context.Context, tx *sqlx.Tx, id, deviceID, severity string, ev *pb.TelemetryEvent, ts int64) error {
	switch body := ev.Body.(type) {
	case *pb.TelemetryEvent_Security:
		if body.Security == nil {
			return nil
		}
		if body.Security.Service == "peripheral" {
			return s.insertPeripheral(ctx, tx, id, deviceID, severity, body.Security, ts)
		}
		return s.insertSecurity(ctx, tx, id, deviceID, severity, body.Security, ts)
	case *pb.TelemetryEvent_Flow:
		if body.Flow == nil {
			return nil
		}
		return s.insertFlow(ctx, tx, id, deviceID, severity, body.Flow, ts)
	case *pb.TelemetryEvent_Process:
		if body.Process == nil {
			return nil
		}
		return s.insertProcess(ctx, tx, id, deviceID, severity, body.Process, ts)
	case *pb.TelemetryEvent_Audit:
		if body.Audit == nil {
			return nil
		}
		return s.insertAudit(ctx, tx, id, deviceID, severity, body.Audit, ts)
	default:
		return nil
	}
}

func (s *Store) insertSecurity(ctx context.Context, tx *sqlx.Tx, id, deviceID, severity string, sec *pb.SecurityEvent, ts int64) error {
	indicators, err := json.Marshal(sec.Indicators)
	if err != nil {
		return fmt.Errorf("marshal indicators: %w", err)
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO security_events
			(event_id, device_id, severity, service, action, source_ip, username, command, domain, indicators, ts_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`),
		id, deviceID, severity, sec.Service, sec.Action, sec.SourceIp, sec.Username,
		sec.Command, sec.Domain, string(indicators), ts)
	if err != nil {
		return fmt.Errorf("insert security_events: %w", err)
	}
	return nil
}

func (s *Store) insertPeripheral(ctx context.Context, tx *sqlx.Tx, id, deviceID, severity string, sec *pb.SecurityEvent, ts int64) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO peripheral_events
			(event_id, device_id, severity, action, description, ts_ns)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`),
		id, deviceID, severity, sec.Action, sec.Command, ts)
	if err != nil {
		return fmt.Errorf("insert peripheral_events: %w", err)
	}
	return nil
}

func (s *Store) insertFlow(ctx context.Context, tx *sqlx.Tx, id, deviceID, severity string, f *pb.FlowEvent, ts int64) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO flow_events
			(event_id, device_id, severity, src_ip, src_port, dst_ip, dst_port, protocol, direction,
			 bytes_in, bytes_out, packet_count, start_ts_ns, end_ts_ns, ts_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`),
		id, deviceID, severity, f.SrcIp, f.SrcPort, f.DstIp, f.DstPort, f.Protocol,
		f.Direction.String(), int64(f.BytesIn), int64(f.BytesOut), int64(f.PacketCount),
		int64(f.StartTsNs), int64(f.EndTsNs), ts)
	if err != nil {
		return fmt.Errorf("insert flow_events: %w", err)
	}
	return nil
}

func (s *Store) insertProcess(ctx context.Context, tx *sqlx.Tx, id, deviceID, severity string, p *pb.ProcessEvent, ts int64) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO process_events
			(event_id, device_id, severity, pid, ppid, executable, command_line, username,
			 parent_executable, start_ts_ns, ts_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`),
		id, deviceID, severity, p.Pid, p.Ppid, p.Executable, p.CommandLine, p.Username,
		p.ParentExecutable, int64(p.StartTsNs), ts)
	if err != nil {
		return fmt.Errorf("insert process_events: %w", err)
	}
	return nil
}

func (s *Store) insertAudit(ctx context.Context, tx *sqlx.Tx, id, deviceID, severity string, a *pb.AuditEvent, ts int64) error {
	success := 0
	if a.Success {
		success = 1
	}
	_, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO audit_events
			(event_id, device_id, severity, operation, path, exe, auid, success, ts_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`),
		id, deviceID, severity, a.Operation.String(), a.Path, a.Exe, a.Auid, success, ts)
	if err != nil {
		return fmt.Errorf("insert audit_events: %w", err)
	}
	return nil
}

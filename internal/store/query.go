package store

import (
	"context"
	"fmt"
)

// EventSummary is the flattened row shape shared by the cross-table queries.
type EventSummary struct {
	EventID   string `db:"event_id"`
	DeviceID  string `db:"device_id"`
	EventType string `db:"event_type"`
	Severity  string `db:"severity"`
	Summary   string `db:"summary"`
	TsNs      int64  `db:"ts_ns"`
}

// Counts reports row totals per table.
type Counts struct {
	DeviceTelemetry  int64
	SecurityEvents   int64
	FlowEvents       int64
	ProcessEvents    int64
	AuditEvents      int64
	PeripheralEvents int64
	Incidents        int64
}

// Counts returns the row totals across all archive tables.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	for _, t := range []struct {
		table string
		dst   *int64
	}{
		{"device_telemetry", &c.DeviceTelemetry},
		{"security_events", &c.SecurityEvents},
		{"flow_events", &c.FlowEvents},
		{"process_events", &c.ProcessEvents},
		{"audit_events", &c.AuditEvents},
		{"peripheral_events", &c.PeripheralEvents},
		{"incidents", &c.Incidents},
	} {
		if err := s.db.GetContext(ctx, t.dst, "SELECT COUNT(*) FROM "+t.table); err != nil {
			return Counts{}, fmt.Errorf("count %s: %w", t.table, err)
		}
	}
	return c, nil
}

// Projections per table, shaped into EventSummary rows. CASTs keep the
// concatenations valid on both backends.
const (
	selectSecurity = `
		SELECT event_id, device_id, 'SECURITY' AS event_type, severity,
		       service || '/' || action AS summary, ts_ns
		FROM security_events`
	selectFlow = `
		SELECT event_id, device_id, 'FLOW' AS event_type, severity,
		       src_ip || ':' || CAST(src_port AS TEXT) || ' -> ' || dst_ip || ':' || CAST(dst_port AS TEXT) AS summary, ts_ns
		FROM flow_events`
	selectProcess = `
		SELECT event_id, device_id, 'PROCESS' AS event_type, severity,
		       executable AS summary, ts_ns
		FROM process_events`
	selectAudit = `
		SELECT event_id, device_id, 'AUDIT' AS event_type, severity,
		       operation || ' ' || path AS summary, ts_ns
		FROM audit_events`
	selectPeripheral = `
		SELECT event_id, device_id, 'PERIPHERAL' AS event_type, severity,
		       action || ' ' || description AS summary, ts_ns
		FROM peripheral_events`
)

// RecentEvents returns the newest events across every event table.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]EventSummary, error) {
	query := selectSecurity + `
		UNION ALL` + selectFlow + `
		UNION ALL` + selectProcess + `
		UNION ALL` + selectAudit + `
		UNION ALL` + selectPeripheral + `
		ORDER BY ts_ns DESC
		LIMIT ?`
	var out []EventSummary
	if err := s.db.SelectContext(ctx, &out, s.rebind(query), limit); err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	return out, nil
}

// EventsByType lists the newest events of one type. Type names follow the
// envelope event-type labels plus PERIPHERAL for attach/detach observations.
func (s *Store) EventsByType(ctx context.Context, eventType string, limit int) ([]EventSummary, error) {
	var base string
	switch eventType {
	case "SECURITY":
		base = selectSecurity
	case "FLOW":
		base = selectFlow
	case "PROCESS":
		base = selectProcess
	case "AUDIT":
		base = selectAudit
	case "PERIPHERAL":
		base = selectPeripheral
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
	var out []EventSummary
	err := s.db.SelectContext(ctx, &out, s.rebind(base+`
		ORDER BY ts_ns DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("events by type %s: %w", eventType, err)
	}
	return out, nil
}

// DeviceEvents lists the newest events for one device across all tables.
func (s *Store) DeviceEvents(ctx context.Context, deviceID string, limit int) ([]EventSummary, error) {
	query := `SELECT * FROM (` + selectSecurity + `
		UNION ALL` + selectFlow + `
		UNION ALL` + selectProcess + `
		UNION ALL` + selectAudit + `
		UNION ALL` + selectPeripheral + `
		) events
		WHERE device_id = ?
		ORDER BY ts_ns DESC
		LIMIT ?`
	var out []EventSummary
	if err := s.db.SelectContext(ctx, &out, s.rebind(query), deviceID, limit); err != nil {
		return nil, fmt.Errorf("device events for %s: %w", deviceID, err)
	}
	return out, nil
}

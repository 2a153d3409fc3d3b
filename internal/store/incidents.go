package store

import (
	"context"
	"database/sql/driver"
	"fmt"

	json "github.com/goccy/go-json"
)

// Incident lifecycle states.
const (
	IncidentStateNew           = "NEW"
	IncidentStateInvestigating = "INVESTIGATING"
	IncidentStateResolved      = "RESOLVED"
	IncidentStateFalsePositive = "FALSE_POSITIVE"
)

// JSONList stores a string slice as a JSON TEXT column so the schema stays
// identical across sqlite and postgres.
type JSONList []string

func (l JSONList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *JSONList) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("store: cannot scan %T into JSONList", src)
	}
}

// JSONMap stores free-form string pairs as a JSON TEXT column.
type JSONMap map[string]string

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *JSONMap) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("store: cannot scan %T into JSONMap", src)
	}
}

// Incident is one correlated finding over a device's event window.
type Incident struct {
	IncidentID string   `db:"incident_id"`
	DeviceID   string   `db:"device_id"`
	Severity   string   `db:"severity"`
	Tactics    JSONList `db:"tactics"`
	Techniques JSONList `db:"techniques"`
	Evidence   JSONList `db:"evidence"`
	Metadata   JSONMap  `db:"metadata"`
	RuleName   string   `db:"rule_name"`
	Summary    string   `db:"summary"`
	StartTsNs  int64    `db:"start_ts_ns"`
	EndTsNs    int64    `db:"end_ts_ns"`
	State      string   `db:"state"`
}

// InsertIncident persists one incident. The deterministic incident_id makes
// re-detection of the same window a no-op; the bool reports whether a new row
// landed.
func (s *Store) InsertIncident(ctx context.Context, inc Incident) (bool, error) {
	if inc.State == "" {
		inc.State = IncidentStateNew
	}
	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO incidents
			(incident_id, device_id, severity, tactics, techniques, evidence, metadata,
			 rule_name, summary, start_ts_ns, end_ts_ns, state)
		VALUES (:incident_id, :device_id, :severity, :tactics, :techniques, :evidence, :metadata,
			 :rule_name, :summary, :start_ts_ns, :end_ts_ns, :state)
		ON CONFLICT DO NOTHING`, inc)
	if err != nil {
		return false, fmt.Errorf("insert incident %s: %w", inc.IncidentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Incidents lists the most recent incidents, newest window first.
func (s *Store) Incidents(ctx context.Context, limit int) ([]Incident, error) {
	var out []Incident
	err := s.db.SelectContext(ctx, &out, s.rebind(`
		SELECT incident_id, device_id, severity, tactics, techniques, evidence, metadata,
		       rule_name, summary, start_ts_ns, end_ts_ns, state
		FROM incidents
		ORDER BY start_ts_ns DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return out, nil
}

// DeviceIncidents lists recent incidents for one device.
func (s *Store) DeviceIncidents(ctx context.Context, deviceID string, limit int) ([]Incident, error) {
	var out []Incident
	err := s.db.SelectContext(ctx, &out, s.rebind(`
		SELECT incident_id, device_id, severity, tactics, techniques, evidence, metadata,
		       rule_name, summary, start_ts_ns, end_ts_ns, state
		FROM incidents
		WHERE device_id = ?
		ORDER BY start_ts_ns DESC
		LIMIT ?`), deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list incidents for %s: %w", deviceID, err)
	}
	return out, nil
}

// UpdateIncidentState moves an incident through its triage lifecycle.
func (s *Store) UpdateIncidentState(ctx context.Context, incidentID, state string) error {
	switch state {
	case IncidentStateNew, IncidentStateInvestigating, IncidentStateResolved, IncidentStateFalsePositive:
	default:
		return fmt.Errorf("unknown incident state %q", state)
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE incidents SET state = ? WHERE incident_id = ?`), state, incidentID)
	if err != nil {
		return fmt.Errorf("update incident %s: %w", incidentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("incident %s not found", incidentID)
	}
	return nil
}

package collectors

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vardhan-225/Amoskys-sub000/internal/config"
	"github.com/Vardhan-225/Amoskys-sub000/internal/detect"
	"github.com/Vardhan-225/Amoskys-sub000/internal/fim"
	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

func newTestFIMCollector(t *testing.T, roots []string) *FIMCollector {
	t.Helper()
	c := NewFIMCollector(config.FIMConfig{
		Roots:        roots,
		BaselinePath: filepath.Join(t.TempDir(), "baseline.json"),
	}, nil)
	c.now = func() time.Time { return time.Unix(1700000500, 0) }
	return c
}

func TestFIMFirstCycleBaselines(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "existing.conf"), []byte("x"), 0o644))

	c := newTestFIMCollector(t, []string{root})
	events, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestFIMChangeShipsAudit(t *testing.T) {
	root := t.TempDir()
	c := newTestFIMCollector(t, []string{root})
	_, err := c.Collect(context.Background())
	require.NoError(t, err)

	path := filepath.Join(root, "dropped.bin")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))

	events, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1, "a WARN change carries no indicator event")

	ev := events[0]
	assert.Equal(t, pb.TelemetryEvent_AUDIT, ev.EventType)
	assert.Equal(t, pb.TelemetryEvent_WARN, ev.Severity)
	assert.Equal(t, uint64(time.Unix(1700000500, 0).UnixNano()), ev.EventTsNs)

	audit := ev.GetAudit()
	require.NotNil(t, audit)
	assert.Equal(t, pb.AuditEvent_CREATED, audit.Operation)
	assert.Equal(t, path, audit.Path)
	assert.True(t, audit.Success)
}

func TestFIMPersistenceTouchRaisesIndicator(t *testing.T) {
	root := t.TempDir()
	cronDir := filepath.Join(root, "etc", "cron.d")
	require.NoError(t, os.MkdirAll(cronDir, 0o755))

	c := newTestFIMCollector(t, []string{root})
	_, err := c.Collect(context.Background())
	require.NoError(t, err)

	path := filepath.Join(cronDir, "backdoor")
	require.NoError(t, os.WriteFile(path, []byte("* * * * * root /tmp/x"), 0o644))

	events, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2, "audit event plus the indicator event")

	assert.Equal(t, pb.TelemetryEvent_ERROR, events[0].Severity)
	assert.Equal(t, pb.AuditEvent_CREATED, events[0].GetAudit().Operation)

	sec := events[1].GetSecurity()
	require.NotNil(t, sec)
	assert.Equal(t, "system", sec.Service)
	assert.Equal(t, "indicator", sec.Action)
	assert.Equal(t, pb.TelemetryEvent_ERROR, events[1].Severity)

	require.Len(t, sec.Indicators, 1)
	ind := sec.Indicators[0]
	assert.Equal(t, "file_integrity", ind.IndicatorType)
	assert.Equal(t, path, ind.Value)
	assert.Equal(t, 0.75, ind.Confidence)
	assert.Equal(t, detect.PhasePersistence, ind.AttackPhase)
	assert.Contains(t, ind.MitreTechniques, "T1053.003")
	assert.Equal(t, "amoskys.fim", ind.Source)
	assert.NotEmpty(t, ind.Description)
	assert.NotZero(t, ind.TsNs)
}

func TestFIMBaselineOnly(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "seed.conf"), []byte("x"), 0o644))

	c := newTestFIMCollector(t, []string{root})
	require.NoError(t, c.Baseline(context.Background()))

	b, err := fim.LoadBaseline(c.baselinePath)
	require.NoError(t, err)
	assert.Len(t, b.Files, 1)

	// Nothing changed since the baseline run, so a collect is quiet.
	events, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestFIMModificationReported(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "watched.conf")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	c := newTestFIMCollector(t, []string{root})
	_, err := c.Collect(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("v2 with more bytes"), 0o644))
	events, err := c.Collect(context.Background())
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, pb.AuditEvent_MODIFIED, events[0].GetAudit().Operation)
}

func TestChangeOperationMapping(t *testing.T) {
	assert.Equal(t, pb.AuditEvent_CREATED, changeOperation(fim.ChangeCreated))
	assert.Equal(t, pb.AuditEvent_DELETED, changeOperation(fim.ChangeDeleted))
	assert.Equal(t, pb.AuditEvent_MODIFIED, changeOperation(fim.ChangeModified))
	assert.Equal(t, pb.AuditEvent_ATTR_CHANGED, changeOperation(fim.ChangePermission))
	assert.Equal(t, pb.AuditEvent_ATTR_CHANGED, changeOperation(fim.ChangeOwner))
	assert.Equal(t, pb.AuditEvent_OP_UNSPECIFIED, changeOperation(fim.ChangeType("bogus")))
}

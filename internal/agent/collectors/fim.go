package collectors

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Vardhan-225/Amoskys-sub000/internal/config"
	"github.com/Vardhan-225/Amoskys-sub000/internal/detect"
	"github.com/Vardhan-225/Amoskys-sub000/internal/fim"
	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

// FIMCollector runs one baseline diff cycle per collect. Every divergence
// ships as an AUDIT event carrying the classifier's severity; ERROR and
// CRITICAL changes additionally ship a SECURITY event so the indicator
// stream sees tampering without joining against raw audit rows.
type FIMCollector struct {
	scanner      *fim.Scanner
	baselinePath string
	log          *zap.SugaredLogger
	now          func() time.Time
}

// NewFIMCollector builds the collector from the agent's file-integrity
// config.
func NewFIMCollector(cfg config.FIMConfig, log *zap.SugaredLogger) *FIMCollector {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &FIMCollector{
		scanner:      fim.NewScanner(cfg.Roots, cfg.Excludes, log),
		baselinePath: cfg.BaselinePath,
		log:          log,
		now:          time.Now,
	}
}

func (c *FIMCollector) Name() string { return "fim" }

// Baseline establishes the baseline without reporting changes. Used by
// --baseline-only runs.
func (c *FIMCollector) Baseline(ctx context.Context) error {
	_, err := c.scanner.ScanOnce(ctx, c.baselinePath, c.now().UnixNano())
	return err
}

func (c *FIMCollector) Collect(ctx context.Context) ([]*pb.TelemetryEvent, error) {
	nowNs := c.now().UnixNano()
	changes, err := c.scanner.ScanOnce(ctx, c.baselinePath, nowNs)
	if err != nil {
		return nil, err
	}

	tsNs := uint64(nowNs)
	var events []*pb.TelemetryEvent
	for _, ch := range changes {
		events = append(events, auditEvent(tsNs, ch.Severity, &pb.AuditEvent{
			Operation: changeOperation(ch.Type),
			Path:      ch.Path,
			Success:   true,
		}))
		if ch.Severity < pb.TelemetryEvent_ERROR {
			continue
		}
		inds := stamp(tsNs, integrityIndicator(ch))
		events = append(events, securityEvent(tsNs, ch.Severity, &pb.SecurityEvent{
			Service:    "system",
			Action:     "indicator",
			Indicators: inds,
		}))
	}
	return events, nil
}

func changeOperation(t fim.ChangeType) pb.AuditEvent_Operation {
	switch t {
	case fim.ChangeCreated:
		return pb.AuditEvent_CREATED
	case fim.ChangeDeleted:
		return pb.AuditEvent_DELETED
	case fim.ChangeModified:
		return pb.AuditEvent_MODIFIED
	case fim.ChangePermission, fim.ChangeOwner:
		return pb.AuditEvent_ATTR_CHANGED
	default:
		return pb.AuditEvent_OP_UNSPECIFIED
	}
}

func integrityIndicator(ch fim.Change) *pb.ThreatIndicator {
	confidence := 0.75
	if ch.Severity == pb.TelemetryEvent_CRITICAL {
		confidence = 0.9
	}
	phase := detect.PhaseDefenseEvasion
	if _, ok := detect.ClassifyPersistencePath(ch.Path); ok {
		phase = detect.PhasePersistence
	}
	return &pb.ThreatIndicator{
		IndicatorType:   "file_integrity",
		Value:           ch.Path,
		Confidence:      confidence,
		AttackPhase:     phase,
		MitreTechniques: ch.MitreTechniques,
		Description:     ch.Detail,
		Source:          "amoskys.fim",
	}
}

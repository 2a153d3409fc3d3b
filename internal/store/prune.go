package store

import (
	"context"
	"fmt"
	"time"
)

// Prune deletes event rows whose ts_ns is older than cutoffNs and returns the
// number of rows removed. Incident rows are kept; they are the findings, not
// the raw feed.
func (s *Store) Prune(ctx context.Context, cutoffNs int64) (int64, error) {
	var total int64
	for _, table := range []string{
		"device_telemetry",
		"security_events",
		"flow_events",
		"process_events",
		"audit_events",
		"peripheral_events",
	} {
		res, err := s.db.ExecContext(ctx, s.rebind(
			"DELETE FROM "+table+" WHERE ts_ns < ?"), cutoffNs)
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// RunPruner deletes expired rows on a fixed interval until ctx is cancelled.
func (s *Store) RunPruner(ctx context.Context, retention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-retention).UnixNano()
			deleted, err := s.Prune(ctx, cutoff)
			if err != nil {
				s.log.Errorw("store prune failed", "err", err)
				continue
			}
			if deleted > 0 {
				s.log.Infow("store pruned", "rows", deleted, "retention", retention)
			}
		}
	}
}

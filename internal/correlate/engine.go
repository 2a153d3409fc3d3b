package correlate

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/Vardhan-225/Amoskys-sub000/internal/store"
	"github.com/Vardhan-225/Amoskys-sub000/internal/wal"
)

// IncidentWriter persists incidents. *store.Store satisfies it; tests use an
// in-memory sink.
type IncidentWriter interface {
	InsertIncident(ctx context.Context, inc store.Incident) (bool, error)
}

// Metrics counts engine activity.
type Metrics struct {
	EventsObserved prometheus.Counter
	IncidentsTotal prometheus.Counter
	RulePanics     prometheus.Counter
}

// NewMetrics creates and registers the engine metrics. A nil registerer
// targets the default registry; tests pass their own.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		EventsObserved: factory.NewCounter(prometheus.CounterOpts{
			Name: "correlate_events_total",
			Help: "Events admitted into device windows",
		}),
		IncidentsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "correlate_incidents_total",
			Help: "Incidents persisted to the store",
		}),
		RulePanics: factory.NewCounter(prometheus.CounterOpts{
			Name: "correlate_rule_panics_total",
			Help: "Rule evaluations recovered from a panic",
		}),
	}
}

// Engine owns the per-device windows and the rule table. Ingest never blocks
// the bus admission path; it runs on the WAL fan-out goroutine.
type Engine struct {
	log     *zap.SugaredLogger
	writer  IncidentWriter
	metrics *Metrics
	window  time.Duration
	rules   []Rule

	// now is a hook for tests that replay historical timestamps.
	now func() time.Time

	mu      sync.Mutex
	devices map[string]*window
}

// NewEngine builds an engine over the full shipped rule table.
func NewEngine(writer IncidentWriter, windowSpan time.Duration, metrics *Metrics, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	if windowSpan <= 0 {
		windowSpan = 30 * time.Minute
	}
	return &Engine{
		log:     log,
		writer:  writer,
		metrics: metrics,
		window:  windowSpan,
		rules:   ruleTable(),
		now:     time.Now,
		devices: make(map[string]*window),
	}
}

// Run consumes the WAL fan-out until ctx is cancelled or the channel closes.
func (e *Engine) Run(ctx context.Context, ch <-chan wal.Record) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-ch:
			if !ok {
				return
			}
			e.Ingest(ctx, rec)
		}
	}
}

// Ingest folds one accepted envelope into its device window and evaluates
// the rules when anything new landed.
func (e *Engine) Ingest(ctx context.Context, rec wal.Record) {
	device, events, err := eventsFromRecord(rec)
	if err != nil {
		e.log.Warnw("undecodable record skipped",
			"idempotency_key", rec.IdempotencyKey, "err", err)
		return
	}
	if len(events) == 0 {
		return
	}

	w := e.deviceWindow(device)
	cutoff := e.now().Add(-e.window).UnixNano()
	added := w.add(events, cutoff)
	if added == 0 {
		return
	}
	e.metrics.EventsObserved.Add(float64(added))
	e.evaluateDevice(ctx, w, cutoff)
}

// Replay feeds historical records through the ingest path, rebuilding the
// windows after a restart. Window dedupe and deterministic incident ids make
// overlap with live traffic harmless.
func (e *Engine) Replay(ctx context.Context, w *wal.WAL) error {
	return w.Scan(func(rec wal.Record) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		e.Ingest(ctx, rec)
		return nil
	})
}

// EvaluateAll re-runs the rule table over every device window, devices in
// parallel, one goroutine per device at a time.
func (e *Engine) EvaluateAll(ctx context.Context) {
	e.mu.Lock()
	windows := make([]*window, 0, len(e.devices))
	for _, w := range e.devices {
		windows = append(windows, w)
	}
	e.mu.Unlock()

	cutoff := e.now().Add(-e.window).UnixNano()
	p := pool.New().WithMaxGoroutines(runtime.GOMAXPROCS(0))
	for _, w := range windows {
		w := w
		p.Go(func() {
			e.evaluateDevice(ctx, w, cutoff)
		})
	}
	p.Wait()
}

// RunRescan re-evaluates all windows on a tumbling cadence. Disabled when
// interval is zero.
func (e *Engine) RunRescan(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.EvaluateAll(ctx)
		}
	}
}

func (e *Engine) evaluateDevice(ctx context.Context, w *window, cutoffNs int64) {
	w.evalMu.Lock()
	defer w.evalMu.Unlock()

	events := w.snapshot(cutoffNs)
	if len(events) == 0 {
		return
	}
	for _, rule := range e.rules {
		inc := e.runRule(rule, events, w.deviceID)
		if inc == nil {
			continue
		}
		inserted, err := e.writer.InsertIncident(ctx, *inc)
		if err != nil {
			e.log.Errorw("incident persist failed",
				"rule", rule.Name, "incident_id", inc.IncidentID, "err", err)
			continue
		}
		if inserted {
			e.metrics.IncidentsTotal.Inc()
			e.log.Warnw("incident",
				"rule", rule.Name,
				"device_id", inc.DeviceID,
				"severity", inc.Severity,
				"incident_id", inc.IncidentID,
				"summary", inc.Summary)
		}
	}
}

// runRule isolates rule panics so one bad rule cannot take the engine down;
// the remaining rules still run.
func (e *Engine) runRule(rule Rule, events []Event, deviceID string) (inc *store.Incident) {
	defer func() {
		if r := recover(); r != nil {
			e.metrics.RulePanics.Inc()
			e.log.Errorw("rule panicked", "rule", rule.Name, "device_id", deviceID, "panic", r)
			inc = nil
		}
	}()
	return rule.Evaluate(events, deviceID)
}

func (e *Engine) deviceWindow(device string) *window {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := e.devices[device]
	if !ok {
		w = newWindow(device)
		e.devices[device] = w
	}
	return w
}

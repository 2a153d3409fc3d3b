// Package bus implements the EventBus ingest path: admission pipeline,
// dedupe cache, WAL append, the gRPC services that front them, and the ops
// HTTP surface.
package bus

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/Vardhan-225/Amoskys-sub000/internal/config"
	"github.com/Vardhan-225/Amoskys-sub000/internal/wal"
)

// State carries everything a publish needs to be admitted. The overload flag
// and in-flight counter are the only cross-request signals; the dedupe cache
// and the WAL each serialize behind their own lock, and no lock spans both.
type State struct {
	log     *zap.SugaredLogger
	metrics *Metrics
	wal     *wal.WAL
	trust   *config.TrustMap

	dedupe *expirable.LRU[string, int64]

	overload atomic.Bool
	inflight atomic.Int64

	maxEnvBytes       int
	maxInflight       int64
	requireClientAuth bool
	verifySignatures  bool
}

// NewState wires the admission state from config. The overload tri-state is
// resolved once here; "auto" consults BUS_OVERLOAD.
func NewState(cfg *config.Config, w *wal.WAL, trust *config.TrustMap, m *Metrics, log *zap.SugaredLogger) *State {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if trust == nil {
		trust = &config.TrustMap{}
	}
	s := &State{
		log:     log,
		metrics: m,
		wal:     w,
		trust:   trust,
		dedupe: expirable.NewLRU[string, int64](
			cfg.Dedupe.MaxEntries, nil, cfg.Dedupe.TTL()),
		maxEnvBytes:       cfg.Server.MaxEnvBytes,
		maxInflight:       int64(cfg.Server.MaxInflight),
		requireClientAuth: cfg.TLS.RequireClientAuth,
		verifySignatures:  cfg.Trust.VerifySignatures,
	}
	s.overload.Store(cfg.Server.OverloadEnabled())
	return s
}

// SetOverload flips the overload flag. Exposed for runtime control and tests.
func (s *State) SetOverload(on bool) {
	s.overload.Store(on)
}

// Overloaded reports the current overload flag.
func (s *State) Overloaded() bool {
	return s.overload.Load()
}

// Inflight reports how many publishes are inside the pipeline right now.
func (s *State) Inflight() int64 {
	return s.inflight.Load()
}

// DedupeLen reports how many idempotency keys the cache currently holds.
func (s *State) DedupeLen() int {
	return s.dedupe.Len()
}

// seenRecently consults the dedupe cache without touching recency, so
// eviction stays strictly insertion-ordered.
func (s *State) seenRecently(key string) bool {
	_, ok := s.dedupe.Peek(key)
	return ok
}

// recordAdmitted inserts a key after its WAL append succeeded. Never called
// on a failed append, so a retry after transient storage trouble is not
// shadowed by the cache.
func (s *State) recordAdmitted(key string) {
	s.dedupe.Add(key, time.Now().UnixNano())
}

// enterInflight reserves an admission slot. The release closure must run at
// the handler's terminal point regardless of exit path.
func (s *State) enterInflight() (int64, func()) {
	cur := s.inflight.Add(1)
	s.metrics.InflightRequests.Set(float64(cur))
	released := false
	return cur, func() {
		if released {
			return
		}
		released = true
		s.metrics.InflightRequests.Set(float64(s.inflight.Add(-1)))
	}
}

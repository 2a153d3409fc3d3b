package agent

import (
	"context"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/Vardhan-225/Amoskys-sub000/internal/config"
	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

// Collector produces telemetry events for one concern. Collect is called
// from a single goroutine; a collector never shares state with another.
type Collector interface {
	Name() string
	Collect(ctx context.Context) ([]*pb.TelemetryEvent, error)
}

// envelopeBatchMax bounds events per envelope so a bursty cycle stays well
// under the bus size gate.
const envelopeBatchMax = 64

// Runtime schedules the collectors and turns their events into envelopes on
// the shared shipper. One runtime per agent process.
type Runtime struct {
	name        string
	deviceID    string
	deviceType  pb.DeviceTelemetry_DeviceType
	interval    time.Duration
	collectors  []Collector
	shipper     *Shipper
	signer      ed25519.PrivateKey
	legacyFlows bool
	metrics     *Metrics
	log         *zap.SugaredLogger
	now         func() time.Time

	mu     sync.Mutex
	runErr error
	stop   context.CancelFunc
}

// NewRuntime builds the runtime for one agent. The device id falls back to
// the hostname, then to the agent name; the signing key is optional.
func NewRuntime(cfg config.AgentConfig, deviceType pb.DeviceTelemetry_DeviceType, shipper *Shipper, collectors []Collector, metrics *Metrics, log *zap.SugaredLogger) (*Runtime, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	deviceID := cfg.DeviceID
	if deviceID == "" {
		if host, err := os.Hostname(); err == nil {
			deviceID = host
		} else {
			deviceID = cfg.Name
		}
	}

	var signer ed25519.PrivateKey
	if cfg.SigningKeyFile != "" {
		key, err := LoadSigningKey(cfg.SigningKeyFile)
		if err != nil {
			return nil, err
		}
		signer = key
	}

	return &Runtime{
		name:       cfg.Name,
		deviceID:   deviceID,
		deviceType: deviceType,
		interval:   cfg.Interval(),
		collectors: collectors,
		shipper:    shipper,
		signer:     signer,
		metrics:    metrics,
		log:        log,
		now:        time.Now,
	}, nil
}

// SetLegacyFlows switches the runtime onto the legacy Publish service: one
// envelope per flow, DeviceTelemetry envelopes for everything else. A process
// talks to exactly one bus service either way.
func (r *Runtime) SetLegacyFlows(on bool) {
	r.legacyFlows = on
}

// Run starts the queue drain and one loop per collector, then blocks until
// the context ends or shipping halts. The first fatal error wins.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.stop = cancel

	var wg conc.WaitGroup
	wg.Go(func() {
		if err := r.shipper.Run(ctx); err != nil {
			r.fail(err)
		}
	})
	for _, c := range r.collectors {
		c := c
		wg.Go(func() { r.collectLoop(ctx, c) })
	}
	wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runErr
}

// RunOnce executes a single cycle of every collector and ships the results.
// Used by --scan-once agents; queued envelopes still drain on a best-effort
// pass afterwards via the caller's shipper run.
func (r *Runtime) RunOnce(ctx context.Context) error {
	for _, c := range r.collectors {
		if err := r.cycle(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runtime) collectLoop(ctx context.Context, c Collector) {
	if err := r.cycle(ctx, c); err != nil {
		r.fail(err)
		return
	}
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := r.cycle(ctx, c); err != nil {
				r.fail(err)
				return
			}
		}
	}
}

// cycle runs one collect pass. Collector errors are counted and logged but
// only the unauthorized halt is fatal.
func (r *Runtime) cycle(ctx context.Context, c Collector) error {
	events, err := c.Collect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		r.metrics.CollectFailures.WithLabelValues(c.Name()).Inc()
		r.log.Errorw("collector cycle failed", "collector", c.Name(), "err", err)
		return nil
	}
	if len(events) == 0 {
		return nil
	}
	r.metrics.EventsCollected.WithLabelValues(c.Name()).Add(float64(len(events)))

	envelopes, err := r.seal(events)
	if err != nil {
		r.log.Errorw("envelope construction failed", "collector", c.Name(), "err", err)
		return nil
	}
	for _, raw := range envelopes {
		if err := r.shipper.Offer(ctx, raw); err != nil {
			if errors.Is(err, ErrUnauthorized) {
				return err
			}
			r.log.Errorw("envelope parked to queue failed", "collector", c.Name(), "err", err)
		}
	}
	return nil
}

// seal wraps events into wire envelopes: universal batches by default, one
// legacy envelope per flow plus legacy DeviceTelemetry batches when legacy
// mode is on.
func (r *Runtime) seal(events []*pb.TelemetryEvent) ([][]byte, error) {
	var out [][]byte
	rest := events

	if r.legacyFlows {
		rest = nil
		for _, ev := range events {
			flow := ev.GetFlow()
			if flow == nil {
				rest = append(rest, ev)
				continue
			}
			raw, err := r.sealLegacyFlow(flow)
			if err != nil {
				return nil, err
			}
			out = append(out, raw)
		}
	}

	for len(rest) > 0 {
		n := len(rest)
		if n > envelopeBatchMax {
			n = envelopeBatchMax
		}
		var raw []byte
		var err error
		if r.legacyFlows {
			raw, err = r.sealLegacyBatch(rest[:n])
		} else {
			raw, err = r.sealUniversal(rest[:n])
		}
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
		rest = rest[n:]
	}
	return out, nil
}

func (r *Runtime) sealUniversal(events []*pb.TelemetryEvent) ([]byte, error) {
	nowNs := uint64(r.now().UnixNano())
	env := &pb.UniversalEnvelope{
		Version:        pb.WireVersion,
		TsNs:           nowNs,
		IdempotencyKey: uuid.NewString(),
		SourceIdentity: r.name,
		Telemetry: &pb.DeviceTelemetry{
			DeviceId:       r.deviceID,
			DeviceType:     r.deviceType,
			CollectionTsNs: nowNs,
			Events:         events,
		},
	}
	if r.signer != nil {
		env.Sign(r.signer)
	}
	raw, err := env.MarshalWire()
	if err != nil {
		return nil, fmt.Errorf("seal universal envelope: %w", err)
	}
	return raw, nil
}

func (r *Runtime) sealLegacyFlow(flow *pb.FlowEvent) ([]byte, error) {
	env := &pb.Envelope{
		Version:        pb.WireVersion,
		TsNs:           uint64(r.now().UnixNano()),
		IdempotencyKey: uuid.NewString(),
		SourceIdentity: r.name,
		Payload:        &pb.Envelope_Flow{Flow: flow},
	}
	if r.signer != nil {
		env.Sign(r.signer)
	}
	raw, err := env.MarshalWire()
	if err != nil {
		return nil, fmt.Errorf("seal legacy envelope: %w", err)
	}
	return raw, nil
}

func (r *Runtime) sealLegacyBatch(events []*pb.TelemetryEvent) ([]byte, error) {
	nowNs := uint64(r.now().UnixNano())
	env := &pb.Envelope{
		Version:        pb.WireVersion,
		TsNs:           nowNs,
		IdempotencyKey: uuid.NewString(),
		SourceIdentity: r.name,
		Payload: &pb.Envelope_DeviceTelemetry{DeviceTelemetry: &pb.DeviceTelemetry{
			DeviceId:       r.deviceID,
			DeviceType:     r.deviceType,
			CollectionTsNs: nowNs,
			Events:         events,
		}},
	}
	if r.signer != nil {
		env.Sign(r.signer)
	}
	raw, err := env.MarshalWire()
	if err != nil {
		return nil, fmt.Errorf("seal legacy batch: %w", err)
	}
	return raw, nil
}

func (r *Runtime) fail(err error) {
	r.mu.Lock()
	if r.runErr == nil {
		r.runErr = err
	}
	r.mu.Unlock()
	r.stop()
}

// LoadSigningKey reads an Ed25519 private key: PEM PKCS8, a raw 64-byte
// private key, or a raw 32-byte seed.
func LoadSigningKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key %s: %w", path, err)
	}
	if block, _ := pem.Decode(data); block != nil {
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse PEM signing key %s: %w", path, err)
		}
		key, ok := parsed.(ed25519.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("signing key %s is not ed25519", path)
		}
		return key, nil
	}
	switch len(data) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(data), nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(data), nil
	}
	return nil, fmt.Errorf("signing key %s: want PEM, %d or %d raw bytes, got %d",
		path, ed25519.PrivateKeySize, ed25519.SeedSize, len(data))
}

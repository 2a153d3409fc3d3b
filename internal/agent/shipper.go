// Package agent implements the shared agent runtime: periodic collectors
// produce telemetry events, the runtime wraps them into signed envelopes,
// and a single shipper delivers them to the bus, falling back to the local
// durable queue whenever the bus is unreachable or asks for a retry.
package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Vardhan-225/Amoskys-sub000/internal/queue"
)

// ErrUnauthorized is returned by the shipper once the bus rejects the
// agent's identity. Redelivery cannot succeed until an operator fixes the
// certificate or the trust map, so the agent must stop and alert.
var ErrUnauthorized = errors.New("agent: bus refused identity, shipping halted")

const (
	defaultPollInterval   = 250 * time.Millisecond
	defaultPublishTimeout = 10 * time.Second
	breakerTripThreshold  = 5
	breakerRecoveryProbe  = 30 * time.Second
)

// Shipper owns envelope delivery for one agent: a direct path used by the
// collectors and a drain loop over the durable queue. Both share one rate
// limiter and one circuit breaker so a dead bus is probed, not hammered.
type Shipper struct {
	queue   *queue.Queue
	publish PublishFunc
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	metrics *Metrics
	log     *zap.SugaredLogger

	pollInterval   time.Duration
	publishTimeout time.Duration
	halted         atomic.Bool
}

// NewShipper wires a shipper over the queue and a publish function. The rate
// limit paces both the direct path and the queue drain.
func NewShipper(q *queue.Queue, publish PublishFunc, ratePerSec float64, metrics *Metrics, log *zap.SugaredLogger) *Shipper {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if ratePerSec <= 0 {
		ratePerSec = 100
	}
	s := &Shipper{
		queue:          q,
		publish:        publish,
		limiter:        rate.NewLimiter(rate.Limit(ratePerSec), 1),
		metrics:        metrics,
		log:            log,
		pollInterval:   defaultPollInterval,
		publishTimeout: defaultPublishTimeout,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "eventbus",
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= breakerTripThreshold
		},
		Timeout: breakerRecoveryProbe,
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				metrics.BreakerOpens.Inc()
			}
			log.Warnw("publish breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return s
}

// Offer tries to deliver one envelope directly and parks it in the durable
// queue when the bus is unreachable, overloaded, or refuses the identity.
// Collectors never block on bus health: the only error paths here are a
// broken queue file and the unauthorized halt.
func (s *Shipper) Offer(ctx context.Context, raw []byte) error {
	if s.halted.Load() {
		return s.park(raw)
	}

	ack, err := s.deliver(ctx, raw)
	if err != nil {
		return s.park(raw)
	}

	switch ack.Status {
	case AckOK:
		return nil
	case AckInvalid:
		s.log.Warnw("envelope rejected as invalid, dropped", "reason", ack.Reason)
		return nil
	case AckUnauthorized:
		s.halt(ack.Reason)
		if err := s.park(raw); err != nil {
			return err
		}
		return ErrUnauthorized
	default:
		return s.park(raw)
	}
}

// Run drains the durable queue until the context ends. Entries are settled
// strictly after their ACK: OK and INVALID commit, RETRY requeues at the
// tail with a jittered delay, UNAUTHORIZED leaves the entry at the head and
// halts shipping. A canceled publish leaves the head entry untouched, so
// shutdown never loses an envelope.
func (s *Shipper) Run(ctx context.Context) error {
	bo := newDrainBackoff()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if s.halted.Load() {
			return ErrUnauthorized
		}
		s.syncGauges()

		entry, ok, err := s.queue.Peek()
		if err != nil {
			return fmt.Errorf("shipper peek: %w", err)
		}
		if !ok {
			if !sleepCtx(ctx, s.pollInterval) {
				return nil
			}
			continue
		}

		ack, err := s.deliver(ctx, entry.Bytes)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// Bus unreachable or breaker open. The entry stays at the head
			// without burning retry budget; that is reserved for explicit
			// RETRY answers.
			if !sleepCtx(ctx, nextDelay(bo)) {
				return nil
			}
			continue
		}

		switch ack.Status {
		case AckOK:
			if err := s.queue.Commit(entry); err != nil {
				return fmt.Errorf("shipper commit: %w", err)
			}
			bo.Reset()
		case AckInvalid:
			s.log.Warnw("queued envelope rejected as invalid, dropped",
				"reason", ack.Reason, "seq", entry.Seq)
			if err := s.queue.Commit(entry); err != nil {
				return fmt.Errorf("shipper commit: %w", err)
			}
		case AckUnauthorized:
			s.halt(ack.Reason)
			return ErrUnauthorized
		default:
			if _, err := s.queue.Requeue(entry); err != nil {
				return fmt.Errorf("shipper requeue: %w", err)
			}
			if !sleepCtx(ctx, s.retryDelay(ack, bo)) {
				return nil
			}
		}
	}
}

// DrainParked runs the queue drain until the queue empties, the timeout
// elapses, or ctx ends. One-shot agent invocations use it so envelopes
// parked during the cycle still get a bounded delivery attempt.
func (s *Shipper) DrainParked(ctx context.Context, timeout time.Duration) error {
	n, err := s.queue.Len()
	if err != nil {
		return fmt.Errorf("shipper len: %w", err)
	}
	if n == 0 {
		return nil
	}

	drainCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	go func() {
		t := time.NewTicker(s.pollInterval)
		defer t.Stop()
		for {
			select {
			case <-drainCtx.Done():
				return
			case <-t.C:
				if n, err := s.queue.Len(); err == nil && n == 0 {
					cancel()
					return
				}
			}
		}
	}()

	if err := s.Run(drainCtx); err != nil {
		return err
	}
	if left, err := s.queue.Len(); err == nil && left > 0 {
		s.log.Warnw("undelivered envelopes remain queued", "count", left)
	}
	return nil
}

// Halted reports whether shipping stopped on an UNAUTHORIZED ack.
func (s *Shipper) Halted() bool {
	return s.halted.Load()
}

// deliver pushes one envelope through the rate limiter and the breaker.
func (s *Shipper) deliver(ctx context.Context, raw []byte) (Ack, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return Ack{}, err
	}
	res, err := s.breaker.Execute(func() (interface{}, error) {
		pubCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
		defer cancel()
		return s.publish(pubCtx, raw)
	})
	if err != nil {
		s.metrics.TransportErrors.Inc()
		return Ack{}, err
	}
	ack := res.(Ack)
	s.metrics.PublishTotal.WithLabelValues(ack.Status.String()).Inc()
	return ack, nil
}

func (s *Shipper) park(raw []byte) error {
	if _, err := s.queue.Push(raw); err != nil {
		return fmt.Errorf("park envelope: %w", err)
	}
	s.syncGauges()
	return nil
}

func (s *Shipper) halt(reason string) {
	if s.halted.CompareAndSwap(false, true) {
		s.log.Errorw("bus refused agent identity, shipping halted", "reason", reason)
	}
}

// retryDelay honors the server's backoff hint when one is present, jittered
// by plus or minus twenty percent; otherwise the local exponential backoff
// decides.
func (s *Shipper) retryDelay(ack Ack, bo *backoff.ExponentialBackOff) time.Duration {
	if ack.BackoffMs > 0 {
		return jitter(time.Duration(ack.BackoffMs) * time.Millisecond)
	}
	return nextDelay(bo)
}

func (s *Shipper) syncGauges() {
	if n, err := s.queue.Len(); err == nil {
		s.metrics.QueueDepth.Set(float64(n))
	}
	s.metrics.QueueBytes.Set(float64(s.queue.ByteSize()))
}

func newDrainBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.RandomizationFactor = 0.2
	bo.MaxInterval = 30 * time.Second
	return bo
}

func nextDelay(bo *backoff.ExponentialBackOff) time.Duration {
	d := bo.NextBackOff()
	if d == backoff.Stop {
		return bo.MaxInterval
	}
	return d
}

func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.8 + 0.4*rand.Float64()))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

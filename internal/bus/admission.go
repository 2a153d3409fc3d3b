package bus

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"math/rand"
	"runtime/debug"

	"github.com/Vardhan-225/Amoskys-sub000/internal/wal"
	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

// Verdict is the admission outcome before it is mapped to a wire status.
type Verdict int

const (
	VerdictOK Verdict = iota
	VerdictRetry
	VerdictInvalid
	VerdictUnauthorized
	// VerdictProcessingError marks transient server-side failures after
	// admission (storage trouble, recovered panics). The legacy service
	// answers RETRY for these; the universal service has a dedicated status.
	VerdictProcessingError
)

// Decision is the admission verdict plus the reason and backoff hint that
// travel in the ACK. It is mapped to the wire exactly once per service.
type Decision struct {
	Verdict   Verdict
	Reason    string
	BackoffMs uint32
}

const (
	backoffOverloadMs = 2000
	backoffCapacityMs = 1000
	backoffInternalMs = 5000
)

func accepted(reason string) Decision {
	return Decision{Verdict: VerdictOK, Reason: reason}
}

func retry(reason string, backoffMs uint32) Decision {
	return Decision{Verdict: VerdictRetry, Reason: reason, BackoffMs: backoffMs}
}

func invalid(reason string) Decision {
	return Decision{Verdict: VerdictInvalid, Reason: reason}
}

func unauthorized(reason string) Decision {
	return Decision{Verdict: VerdictUnauthorized, Reason: reason}
}

func processingError(reason string, backoffMs uint32) Decision {
	return Decision{Verdict: VerdictProcessingError, Reason: reason, BackoffMs: backoffMs}
}

// storageBackoffMs spreads retries after a storage failure across 1–5 s so a
// fleet does not stampede the recovering disk.
func storageBackoffMs() uint32 {
	return uint32(1000 + rand.Intn(4001))
}

// AckStatus maps a verdict to the legacy wire status.
func (d Decision) AckStatus() pb.PublishAck_Status {
	switch d.Verdict {
	case VerdictOK:
		return pb.PublishAck_OK
	case VerdictInvalid:
		return pb.PublishAck_INVALID
	case VerdictUnauthorized:
		return pb.PublishAck_UNAUTHORIZED
	default:
		// Retry and processing errors are both transient to legacy clients.
		return pb.PublishAck_RETRY
	}
}

// UniversalStatus maps a verdict to the universal wire status.
func (d Decision) UniversalStatus() pb.UniversalAck_Status {
	switch d.Verdict {
	case VerdictOK:
		return pb.UniversalAck_OK
	case VerdictRetry:
		return pb.UniversalAck_RETRY
	case VerdictInvalid:
		return pb.UniversalAck_INVALID
	case VerdictUnauthorized:
		return pb.UniversalAck_UNAUTHORIZED
	default:
		return pb.UniversalAck_PROCESSING_ERROR
	}
}

// admitInput is the envelope view the pipeline gates on, independent of
// which wire message carried it.
type admitInput struct {
	wireSize       int
	decodeErr      error
	hasPayload     bool
	missingReason  string
	idempotencyKey string
	tsNs           uint64
	kind           wal.Kind
	raw            []byte
	verify         func(ed25519.PublicKey) bool
}

// Admit runs the full admission pipeline for a legacy envelope. Gate order
// is load-bearing: overload, size, in-flight, payload, peer trust, dedupe,
// WAL append.
func (s *State) Admit(ctx context.Context, env *pb.Envelope) Decision {
	return s.admit(ctx, admitInput{
		wireSize:       env.WireSize(),
		decodeErr:      env.DecodeError(),
		hasPayload:     env.HasPayload(),
		missingReason:  "Envelope missing flow/payload",
		idempotencyKey: env.IdempotencyKey,
		tsNs:           env.TsNs,
		kind:           wal.KindLegacy,
		raw:            env.Raw(),
		verify:         env.VerifySignature,
	})
}

// AdmitUniversal runs the same pipeline for a universal envelope.
func (s *State) AdmitUniversal(ctx context.Context, env *pb.UniversalEnvelope) Decision {
	return s.admit(ctx, admitInput{
		wireSize:       env.WireSize(),
		decodeErr:      env.DecodeError(),
		hasPayload:     env.Telemetry != nil && len(env.Telemetry.Events) > 0,
		missingReason:  "Envelope missing telemetry events",
		idempotencyKey: env.IdempotencyKey,
		tsNs:           env.TsNs,
		kind:           wal.KindUniversal,
		raw:            env.Raw(),
		verify:         env.VerifySignature,
	})
}

func (s *State) admit(ctx context.Context, in admitInput) (dec Decision) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("admission panic recovered",
				"panic", r,
				"idempotency_key", in.idempotencyKey,
				"stack", string(debug.Stack()))
			dec = processingError("Internal error", backoffInternalMs)
		}
	}()

	if s.overload.Load() {
		return retry("Server is overloaded", backoffOverloadMs)
	}

	if in.wireSize > s.maxEnvBytes {
		return invalid(fmt.Sprintf("Envelope too large (%d > %d bytes)", in.wireSize, s.maxEnvBytes))
	}

	cur, release := s.enterInflight()
	defer release()
	if cur > s.maxInflight {
		return retry(fmt.Sprintf("Server at capacity (%d inflight)", cur), backoffCapacityMs)
	}

	if in.decodeErr != nil || !in.hasPayload {
		return invalid(in.missingReason)
	}
	if in.idempotencyKey == "" {
		return invalid("Envelope missing idempotency key")
	}

	if dec, ok := s.authorize(ctx, in.idempotencyKey, in.verify); !ok {
		return dec
	}

	if s.seenRecently(in.idempotencyKey) {
		s.metrics.DedupeHitsTotal.Inc()
		return accepted("duplicate")
	}

	appended, err := s.wal.Append(in.idempotencyKey, in.tsNs, in.kind, in.raw)
	if err != nil {
		s.log.Errorw("wal append failed",
			"idempotency_key", in.idempotencyKey, "err", err)
		return processingError("Storage write failed", storageBackoffMs())
	}
	if !appended {
		// Lost an append race on the same key: equivalent to a dedupe hit.
		s.metrics.DedupeHitsTotal.Inc()
		return accepted("duplicate")
	}
	s.metrics.WALAppendTotal.Inc()
	s.recordAdmitted(in.idempotencyKey)
	return accepted("accepted")
}

// authorize applies the reserved trust step between payload extraction and
// dedupe: with client auth enforced and a trust map loaded, the peer CN must
// be registered, and with signature verification enabled the envelope
// signature must verify against that CN's key.
func (s *State) authorize(ctx context.Context, corrID string, verify func(ed25519.PublicKey) bool) (Decision, bool) {
	if !s.requireClientAuth || s.trust.Len() == 0 {
		return Decision{}, true
	}

	cn, ok := PeerCN(ctx)
	if !ok {
		s.log.Warnw("publish rejected, no peer certificate", "correlation_id", corrID)
		return unauthorized("Peer certificate missing"), false
	}
	key, known := s.trust.Get(cn)
	if !known {
		s.log.Warnw("publish rejected, unknown peer CN",
			"cn", cn, "correlation_id", corrID)
		return unauthorized(fmt.Sprintf("Unknown peer CN %q", cn)), false
	}
	if s.verifySignatures && !verify(key) {
		s.log.Warnw("publish rejected, bad envelope signature",
			"cn", cn, "correlation_id", corrID)
		return unauthorized("Envelope signature verification failed"), false
	}
	return Decision{}, true
}

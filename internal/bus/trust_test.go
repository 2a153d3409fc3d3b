package bus

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"

	"github.com/Vardhan-225/Amoskys-sub000/internal/config"
	"github.com/Vardhan-225/Amoskys-sub000/internal/wal"
)

// peerContext fakes the post-handshake RPC context for a client whose
// certificate carries the given common name.
func peerContext(cn string) context.Context {
	return peer.NewContext(context.Background(), &peer.Peer{
		AuthInfo: credentials.TLSInfo{
			State: tls.ConnectionState{
				PeerCertificates: []*x509.Certificate{
					{Subject: pkix.Name{CommonName: cn}},
				},
			},
		},
	})
}

// writeTrustMap generates a keypair for cn and writes the raw public key plus
// a trust map referencing it.
func writeTrustMap(t *testing.T, cn string) (string, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	dir := t.TempDir()
	keyPath := filepath.Join(dir, cn+".pub")
	require.NoError(t, os.WriteFile(keyPath, pub, 0o600))

	mapPath := filepath.Join(dir, "trust_map.yaml")
	doc := fmt.Sprintf("agents:\n  %s: %s\n", cn, keyPath)
	require.NoError(t, os.WriteFile(mapPath, []byte(doc), 0o600))
	return mapPath, priv
}

// trustedState builds a State that enforces client auth for the registered
// peer "agent-a" and returns a matching peer context plus the signing key.
func trustedState(t *testing.T, mutate func(cfg *config.Config)) (*State, context.Context, ed25519.PrivateKey) {
	t.Helper()
	mapPath, priv := writeTrustMap(t, "agent-a")

	cfg := config.Default()
	cfg.TLS.RequireClientAuth = true
	cfg.Trust.MapPath = mapPath
	if mutate != nil {
		mutate(cfg)
	}

	trust, err := config.LoadTrustMap(cfg.Trust.MapPath)
	require.NoError(t, err)
	require.Equal(t, 1, trust.Len())

	w, err := wal.Open(filepath.Join(t.TempDir(), "wal.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	s := NewState(cfg, w, trust, NewMetrics(prometheus.NewRegistry()), nil)
	return s, peerContext("agent-a"), priv
}

// ============================================================================
// PEER TRUST GATE
// ============================================================================

func TestAdmitNoPeerCertificateRejected(t *testing.T) {
	s, _, _ := trustedState(t, nil)

	dec := s.Admit(context.Background(), wireEnvelope(t, flowEnvelope("k-anon")))
	assert.Equal(t, VerdictUnauthorized, dec.Verdict)
	assert.Equal(t, "Peer certificate missing", dec.Reason)
}

func TestAdmitUnknownPeerRejected(t *testing.T) {
	s, _, _ := trustedState(t, nil)

	dec := s.Admit(peerContext("rogue"), wireEnvelope(t, flowEnvelope("k-rogue")))
	assert.Equal(t, VerdictUnauthorized, dec.Verdict)
	assert.Equal(t, `Unknown peer CN "rogue"`, dec.Reason)
}

func TestAdmitKnownPeerWithoutSignatureCheck(t *testing.T) {
	s, ctx, _ := trustedState(t, nil)

	// verify_signatures is off, so an unsigned envelope passes.
	dec := s.Admit(ctx, wireEnvelope(t, flowEnvelope("k-known")))
	assert.Equal(t, VerdictOK, dec.Verdict)
	assert.Equal(t, "accepted", dec.Reason)
}

func TestAdmitSignatureVerification(t *testing.T) {
	s, ctx, priv := trustedState(t, func(cfg *config.Config) {
		cfg.Trust.VerifySignatures = true
	})

	signed := flowEnvelope("k-signed")
	signed.Sign(priv)
	dec := s.Admit(ctx, wireEnvelope(t, signed))
	assert.Equal(t, VerdictOK, dec.Verdict)

	unsigned := flowEnvelope("k-unsigned")
	dec = s.Admit(ctx, wireEnvelope(t, unsigned))
	assert.Equal(t, VerdictUnauthorized, dec.Verdict)
	assert.Equal(t, "Envelope signature verification failed", dec.Reason)

	_, wrongPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	forged := flowEnvelope("k-forged")
	forged.Sign(wrongPriv)
	dec = s.Admit(ctx, wireEnvelope(t, forged))
	assert.Equal(t, VerdictUnauthorized, dec.Verdict)
}

func TestAdmitTamperedEnvelopeFailsVerification(t *testing.T) {
	s, ctx, priv := trustedState(t, func(cfg *config.Config) {
		cfg.Trust.VerifySignatures = true
	})

	env := flowEnvelope("k-tamper")
	env.Sign(priv)
	env.TsNs++ // mutate a signed field after signing
	dec := s.Admit(ctx, wireEnvelope(t, env))
	assert.Equal(t, VerdictUnauthorized, dec.Verdict)
}

func TestTrustGateSkippedWhenAuthNotRequired(t *testing.T) {
	// Keys are loaded but require_client_auth is off: anonymous peers pass.
	mapPath, _ := writeTrustMap(t, "agent-a")
	cfg := config.Default()
	cfg.Trust.MapPath = mapPath

	trust, err := config.LoadTrustMap(mapPath)
	require.NoError(t, err)

	w, err := wal.Open(filepath.Join(t.TempDir(), "wal.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	s := NewState(cfg, w, trust, NewMetrics(prometheus.NewRegistry()), nil)

	dec := s.Admit(context.Background(), wireEnvelope(t, flowEnvelope("k-open")))
	assert.Equal(t, VerdictOK, dec.Verdict)
}

func TestTrustGateSkippedWhenMapEmpty(t *testing.T) {
	// require_client_auth without any registered agents stays permissive, so
	// a fleet can be onboarded before its keys are distributed.
	s, _ := newTestState(t, func(cfg *config.Config) {
		cfg.TLS.RequireClientAuth = true
	})

	dec := s.Admit(context.Background(), wireEnvelope(t, flowEnvelope("k-bootstrap")))
	assert.Equal(t, VerdictOK, dec.Verdict)
}

// ============================================================================
// PEER CN EXTRACTION
// ============================================================================

func TestPeerCN(t *testing.T) {
	cn, ok := PeerCN(context.Background())
	assert.False(t, ok, "no peer on a bare context")
	assert.Empty(t, cn)

	ctx := peer.NewContext(context.Background(), &peer.Peer{})
	_, ok = PeerCN(ctx)
	assert.False(t, ok, "peer without TLS info")

	ctx = peer.NewContext(context.Background(), &peer.Peer{
		AuthInfo: credentials.TLSInfo{},
	})
	_, ok = PeerCN(ctx)
	assert.False(t, ok, "TLS handshake without client certificate")

	cn, ok = PeerCN(peerContext("flowagent-7"))
	assert.True(t, ok)
	assert.Equal(t, "flowagent-7", cn)
}

package bus

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/Vardhan-225/Amoskys-sub000/internal/config"
	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

// Server fronts the admission state with the two gRPC services.
type Server struct {
	addr  string
	grpc  *grpc.Server
	state *State
	log   *zap.SugaredLogger
}

// NewServer builds the gRPC server: TLS credentials, the per-RPC deadline
// interceptor, and both service registrations.
func NewServer(cfg *config.Config, state *State, log *zap.SugaredLogger) (*Server, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	creds, err := serverCredentials(cfg.TLS)
	if err != nil {
		return nil, err
	}

	gs := grpc.NewServer(
		grpc.Creds(creds),
		grpc.UnaryInterceptor(deadlineInterceptor(cfg.Server.PublishDeadline())),
	)
	pb.RegisterEventBusServer(gs, &eventBusService{state: state, log: log})
	pb.RegisterTelemetryServer(gs, &telemetryService{state: state, log: log})

	return &Server{
		addr:  fmt.Sprintf(":%d", cfg.Server.Port),
		grpc:  gs,
		state: state,
		log:   log,
	}, nil
}

// ListenAndServe binds the configured port and serves until stopped.
func (s *Server) ListenAndServe() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(lis)
}

// Serve runs the gRPC server on an existing listener.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Infow("event bus listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// GracefulStop drains in-flight RPCs and stops the server.
func (s *Server) GracefulStop() {
	s.grpc.GracefulStop()
}

// serverCredentials loads the TLS material. Client certificates are
// mandatory when require_client_auth is set; relaxed deployments still
// verify any certificate a client chooses to present.
func serverCredentials(cfg config.TLSConfig) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load server keypair: %w", err)
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		ClientAuth:   tls.VerifyClientCertIfGiven,
	}
	if cfg.RequireClientAuth {
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	}

	if cfg.CAFile != "" {
		caPEM, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no certificates in CA bundle %s", cfg.CAFile)
		}
		tlsCfg.ClientCAs = pool
	}

	return credentials.NewTLS(tlsCfg), nil
}

// deadlineInterceptor bounds every RPC that arrives without its own
// deadline.
func deadlineInterceptor(d time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return handler(ctx, req)
	}
}

// ============================================================================
// LEGACY SERVICE
// ============================================================================

type eventBusService struct {
	pb.UnimplementedEventBusServer
	state *State
	log   *zap.SugaredLogger
}

// Publish admits one envelope and answers with a business ACK. Admission
// failures never surface as transport errors; the ACK is always the verdict.
func (svc *eventBusService) Publish(ctx context.Context, env *pb.Envelope) (*pb.PublishAck, error) {
	start := time.Now()
	dec := svc.state.Admit(ctx, env)

	ack := &pb.PublishAck{
		Status:        dec.AckStatus(),
		Reason:        dec.Reason,
		BackoffHintMs: dec.BackoffMs,
	}
	svc.state.metrics.RecordPublish(ack.Status, float64(time.Since(start).Microseconds())/1000.0)

	if ack.Status != pb.PublishAck_OK {
		svc.log.Debugw("publish rejected",
			"status", ack.Status.String(),
			"reason", ack.Reason,
			"idempotency_key", env.IdempotencyKey)
	}
	return ack, nil
}

// ============================================================================
// UNIVERSAL SERVICE
// ============================================================================

type telemetryService struct {
	pb.UnimplementedTelemetryServer
	state *State
	log   *zap.SugaredLogger
}

// PublishTelemetry admits one universal envelope. events_accepted reports the
// batch size on OK, including idempotent duplicates.
func (svc *telemetryService) PublishTelemetry(ctx context.Context, env *pb.UniversalEnvelope) (*pb.UniversalAck, error) {
	start := time.Now()
	dec := svc.state.AdmitUniversal(ctx, env)

	ack := &pb.UniversalAck{
		Status:               dec.UniversalStatus(),
		Reason:               dec.Reason,
		BackoffHintMs:        dec.BackoffMs,
		ProcessedTimestampNs: uint64(time.Now().UnixNano()),
	}
	if dec.Verdict == VerdictOK && env.Telemetry != nil {
		ack.EventsAccepted = uint32(len(env.Telemetry.Events))
	}
	svc.state.metrics.RecordPublish(dec.AckStatus(), float64(time.Since(start).Microseconds())/1000.0)

	if ack.Status != pb.UniversalAck_OK {
		svc.log.Debugw("telemetry publish rejected",
			"status", ack.Status.String(),
			"reason", ack.Reason,
			"idempotency_key", env.IdempotencyKey)
	}
	return ack, nil
}

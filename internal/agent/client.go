package agent

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/Vardhan-225/Amoskys-sub000/internal/config"
	"github.com/Vardhan-225/Amoskys-sub000/pb"
)

// AckStatus is the transport-neutral publish verdict. Both bus services map
// onto it so the shipper handles one vocabulary.
type AckStatus int

const (
	AckOK AckStatus = iota
	AckRetry
	AckInvalid
	AckUnauthorized
)

func (s AckStatus) String() string {
	switch s {
	case AckOK:
		return "OK"
	case AckRetry:
		return "RETRY"
	case AckInvalid:
		return "INVALID"
	case AckUnauthorized:
		return "UNAUTHORIZED"
	default:
		return "UNKNOWN"
	}
}

// Ack is the bus verdict for one envelope.
type Ack struct {
	Status    AckStatus
	Reason    string
	BackoffMs uint32
}

// PublishFunc delivers one serialized envelope and returns the bus verdict.
// A non-nil error means the envelope never reached the bus.
type PublishFunc func(ctx context.Context, raw []byte) (Ack, error)

// Client owns the gRPC connection to the event bus and exposes one publish
// function per service.
type Client struct {
	conn *grpc.ClientConn
	bus  pb.EventBusClient
	tel  pb.TelemetryClient
}

// Dial connects to the bus with the agent's TLS identity. The connection is
// lazy; transport failures surface on the first publish.
func Dial(addr string, tlsCfg config.TLSConfig) (*Client, error) {
	creds, err := clientCredentials(tlsCfg)
	if err != nil {
		return nil, err
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("dial bus %s: %w", addr, err)
	}
	return &Client{
		conn: conn,
		bus:  pb.NewEventBusClient(conn),
		tel:  pb.NewTelemetryClient(conn),
	}, nil
}

// PublishLegacy sends one legacy envelope through EventBus.Publish.
// Undecodable bytes are answered INVALID locally so the caller drops them
// instead of retrying garbage forever.
func (c *Client) PublishLegacy(ctx context.Context, raw []byte) (Ack, error) {
	var env pb.Envelope
	if err := env.UnmarshalWire(raw); err != nil {
		return Ack{Status: AckInvalid, Reason: fmt.Sprintf("queued envelope undecodable: %v", err)}, nil
	}
	ack, err := c.bus.Publish(ctx, &env)
	if err != nil {
		return Ack{}, err
	}
	return Ack{
		Status:    legacyStatus(ack.Status),
		Reason:    ack.Reason,
		BackoffMs: ack.BackoffHintMs,
	}, nil
}

// PublishUniversal sends one universal envelope through
// Telemetry.PublishTelemetry.
func (c *Client) PublishUniversal(ctx context.Context, raw []byte) (Ack, error) {
	var env pb.UniversalEnvelope
	if err := env.UnmarshalWire(raw); err != nil {
		return Ack{Status: AckInvalid, Reason: fmt.Sprintf("queued envelope undecodable: %v", err)}, nil
	}
	ack, err := c.tel.PublishTelemetry(ctx, &env)
	if err != nil {
		return Ack{}, err
	}
	return Ack{
		Status:    universalStatus(ack.Status),
		Reason:    ack.Reason,
		BackoffMs: ack.BackoffHintMs,
	}, nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func legacyStatus(s pb.PublishAck_Status) AckStatus {
	switch s {
	case pb.PublishAck_OK:
		return AckOK
	case pb.PublishAck_INVALID:
		return AckInvalid
	case pb.PublishAck_UNAUTHORIZED:
		return AckUnauthorized
	default:
		return AckRetry
	}
}

// universalStatus folds PROCESSING_ERROR into RETRY: the bus kept the fault
// on its side, so redelivery is the right move.
func universalStatus(s pb.UniversalAck_Status) AckStatus {
	switch s {
	case pb.UniversalAck_OK:
		return AckOK
	case pb.UniversalAck_INVALID:
		return AckInvalid
	case pb.UniversalAck_UNAUTHORIZED:
		return AckUnauthorized
	default:
		return AckRetry
	}
}

// clientCredentials builds the agent's mTLS material. The client certificate
// is what the bus maps to a trust-map identity, so it is required here even
// though relaxed servers would admit a bare TLS session.
func clientCredentials(cfg config.TLSConfig) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load agent keypair: %w", err)
	}
	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
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
		tlsCfg.RootCAs = pool
	}
	return credentials.NewTLS(tlsCfg), nil
}

package bus

import (
	"context"

	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
)

// PeerCN extracts the client certificate common name from the RPC context.
// It returns false on non-TLS connections and handshakes without a client
// certificate.
func PeerCN(ctx context.Context) (string, bool) {
	p, ok := peer.FromContext(ctx)
	if !ok {
		return "", false
	}
	tlsInfo, ok := p.AuthInfo.(credentials.TLSInfo)
	if !ok {
		return "", false
	}
	certs := tlsInfo.State.PeerCertificates
	if len(certs) == 0 || certs[0].Subject.CommonName == "" {
		return "", false
	}
	return certs[0].Subject.CommonName, true
}

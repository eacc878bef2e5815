// Package identity serves pre-provisioned certificates over the proxy
// identity API. Unlike a real identity service it performs no token
// validation and signs nothing; each identity's certificate chain is loaded
// from disk once at startup and returned verbatim on every Certify call.
package identity

import (
	"context"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/protobuf/ptypes"
	pb "github.com/linkerd/linkerd2-proxy-api/go/identity"
	"github.com/linkerd/mock-dst/pkg/tls"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Service implements the gRPC identity service from a static set of
// certificate chains.
type Service struct {
	pb.UnimplementedIdentityServer
	certs map[string]chain
	log   *log.Entry
}

type chain struct {
	leaf          *x509.Certificate
	intermediates []*x509.Certificate
}

// NewService loads certificate chains from dir. Each subdirectory's name is
// taken as an identity and its crt.pem as that identity's PEM-encoded chain,
// leaf first.
func NewService(dir string) (*Service, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity directory %s: %w", dir, err)
	}

	certs := map[string]chain{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		crtPath := filepath.Join(dir, name, "crt.pem")
		buf, err := os.ReadFile(crtPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read certificate for %s: %w", name, err)
		}
		crts, err := tls.DecodePEMCertificates(string(buf))
		if err != nil {
			return nil, fmt.Errorf("failed to decode certificate for %s: %w", name, err)
		}
		if len(crts) == 0 {
			return nil, fmt.Errorf("no certificates found for %s", name)
		}
		certs[name] = chain{leaf: crts[0], intermediates: crts[1:]}
	}

	svc := &Service{
		certs: certs,
		log:   log.WithField("component", "identity"),
	}
	svc.log.Infof("loaded %d identities from %s", len(certs), dir)
	return svc, nil
}

// Register registers the identity service in the provided gRPC server.
func Register(g *grpc.Server, s *Service) {
	pb.RegisterIdentityServer(g, s)
}

// Certify returns the pre-provisioned certificate chain for the requested
// identity.
func (svc *Service) Certify(ctx context.Context, req *pb.CertifyRequest) (*pb.CertifyResponse, error) {
	name := req.GetIdentity()
	c, ok := svc.certs[name]
	if !ok {
		svc.log.Debugf("no certificate for %s", name)
		return nil, status.Errorf(codes.NotFound, "no certificate for identity %s", name)
	}

	validUntil, err := ptypes.TimestampProto(c.leaf.NotAfter)
	if err != nil {
		svc.log.Errorf("invalid expiry time: %s", err)
		return nil, status.Error(codes.Internal, err.Error())
	}

	intermediates := make([][]byte, len(c.intermediates))
	for i, crt := range c.intermediates {
		intermediates[i] = crt.Raw
	}

	svc.log.Infof("certifying %s until %s", name, c.leaf.NotAfter)
	return &pb.CertifyResponse{
		LeafCertificate:          c.leaf.Raw,
		IntermediateCertificates: intermediates,
		ValidUntil:               validUntil,
	}, nil
}

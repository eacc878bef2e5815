package mockdst

import (
	"context"

	pb "github.com/linkerd/linkerd2-proxy-api/go/destination"
	"github.com/linkerd/mock-dst/pkg/prometheus"
	logging "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// updateQueueCapacity bounds the per-subscriber mailbox between the
// translator goroutine and the gRPC stream. The source is latest-value, so
// a full mailbox backpressures diff computation without unbounded buildup.
const updateQueueCapacity = 8

type server struct {
	pb.UnimplementedDestinationServer

	store *SnapshotStore
	log   *logging.Entry
}

// NewServer returns a gRPC server serving the mock destination service.
//
// Destination paths are expected to be of the form <name>:<port>, matching
// the keys that snapshots were published under. The server resolves each
// request against the snapshot store and streams incremental updates as the
// store changes.
func NewServer(store *SnapshotStore) *grpc.Server {
	srv := server{
		store: store,
		log:   logging.WithField("component", "server"),
	}

	s := prometheus.NewGrpcServer()
	pb.RegisterDestinationServer(s, &srv)
	return s
}

func (s *server) Get(dest *pb.GetDestination, stream pb.Destination_GetServer) error {
	log := s.log
	client, _ := peer.FromContext(stream.Context())
	if client != nil {
		log = log.WithField("remote", client.Addr)
	}
	log.Debugf("Get %s", dest.GetPath())

	dst, err := ParseDst(dest.GetPath())
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "Invalid authority: %s", dest.GetPath())
	}

	sub, ok := s.store.subscribeEndpoints(dst)
	if !ok {
		// Unknown and retracted destinations behave identically: a single
		// terminal NoEndpoints and stream completion.
		return stream.Send(noEndpointsUpdate(false))
	}
	defer sub.cancel()

	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()

	updates := make(chan *pb.Update, updateQueueCapacity)
	translator := newEndpointTranslator(dst, updates, log)
	go translator.run(ctx, sub)

	for update := range updates {
		if err := stream.Send(update); err != nil {
			log.Errorf("Failed to send address update: %s", err)
			return err
		}
	}

	log.Debugf("Get %s complete", dest.GetPath())
	return nil
}

func (s *server) GetProfile(dest *pb.GetDestination, stream pb.Destination_GetProfileServer) error {
	log := s.log
	client, _ := peer.FromContext(stream.Context())
	if client != nil {
		log = log.WithField("remote", client.Addr)
	}
	log.Debugf("GetProfile %s", dest.GetPath())

	dst, err := ParseDst(dest.GetPath())
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "Invalid authority: %s", dest.GetPath())
	}

	sub, ok := s.store.subscribeOverrides(dst)
	if !ok {
		// No overrides configured: send an empty profile so the caller
		// knows the destination carries no traffic split.
		return stream.Send(&pb.DestinationProfile{FullyQualifiedName: dst.Name})
	}
	defer sub.cancel()

	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()

	profiles := make(chan *pb.DestinationProfile, 1)
	translator := newProfileTranslator(dst, profiles, log)
	go translator.run(ctx, sub)

	for profile := range profiles {
		if err := stream.Send(profile); err != nil {
			log.Errorf("Failed to send profile update: %s", err)
			return err
		}
	}

	log.Debugf("GetProfile %s complete", dest.GetPath())
	return nil
}

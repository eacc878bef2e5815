package mockdst

import (
	"context"

	pb "github.com/linkerd/linkerd2-proxy-api/go/destination"
	"google.golang.org/grpc/metadata"
)

// mockServerStream satisfies the grpc.ServerStream interface
type mockServerStream struct{ ctx context.Context }

func (m *mockServerStream) SetHeader(metadata.MD) error  { return nil }
func (m *mockServerStream) SendHeader(metadata.MD) error { return nil }
func (m *mockServerStream) SetTrailer(metadata.MD)       {}
func (m *mockServerStream) Context() context.Context     { return m.ctx }
func (m *mockServerStream) SendMsg(interface{}) error    { return nil }
func (m *mockServerStream) RecvMsg(interface{}) error    { return nil }

func newMockServerStream() (mockServerStream, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	return mockServerStream{ctx}, cancel
}

type bufferingGetStream struct {
	updates chan *pb.Update
	mockServerStream
}

func (bgs *bufferingGetStream) Send(update *pb.Update) error {
	bgs.updates <- update
	return nil
}

type bufferingGetProfileStream struct {
	profiles chan *pb.DestinationProfile
	mockServerStream
}

func (bgps *bufferingGetProfileStream) Send(profile *pb.DestinationProfile) error {
	bgps.profiles <- profile
	return nil
}

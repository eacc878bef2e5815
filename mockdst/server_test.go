package mockdst

import (
	"testing"
	"time"

	"github.com/go-test/deep"
	pb "github.com/linkerd/linkerd2-proxy-api/go/destination"
	logging "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func newTestServer(t *testing.T, endpoints map[Dst]Endpoints, overrides map[Dst]Overrides) (*server, *SnapshotStore) {
	t.Helper()
	store := NewSnapshotStore()
	store.Seed(endpoints, overrides)
	t.Cleanup(store.Close)
	return &server{
		store: store,
		log:   logging.WithField("test", t.Name()),
	}, store
}

func recvUpdate(t *testing.T, updates chan *pb.Update) *pb.Update {
	t.Helper()
	select {
	case update, ok := <-updates:
		if !ok {
			t.Fatal("update stream ended unexpectedly")
		}
		return update
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an update")
		return nil
	}
}

func recvProfile(t *testing.T, profiles chan *pb.DestinationProfile) *pb.DestinationProfile {
	t.Helper()
	select {
	case profile, ok := <-profiles:
		if !ok {
			t.Fatal("profile stream ended unexpectedly")
		}
		return profile
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a profile")
		return nil
	}
}

func awaitErr(t *testing.T, errs chan error) error {
	t.Helper()
	select {
	case err := <-errs:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the stream to end")
		return nil
	}
}

func TestGet(t *testing.T) {
	t.Run("invalid authority", func(t *testing.T) {
		srv, _ := newTestServer(t, nil, nil)
		stream, cancel := newMockServerStream()
		defer cancel()

		err := srv.Get(&pb.GetDestination{Path: "not-an-authority"}, &bufferingGetStream{
			updates:          make(chan *pb.Update, 50),
			mockServerStream: stream,
		})
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("expected InvalidArgument, got %v", err)
		}
	})

	t.Run("unknown destination", func(t *testing.T) {
		srv, _ := newTestServer(t, nil, nil)
		stream, cancel := newMockServerStream()
		defer cancel()
		bgs := &bufferingGetStream{
			updates:          make(chan *pb.Update, 50),
			mockServerStream: stream,
		}

		if err := srv.Get(&pb.GetDestination{Path: "nowhere.ns:80"}, bgs); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		update := recvUpdate(t, bgs.updates)
		if ne := update.GetNoEndpoints(); ne == nil || ne.GetExists() {
			t.Fatalf("expected NoEndpoints{exists:false}, got %+v", update)
		}
	})

	t.Run("streams updates until retraction", func(t *testing.T) {
		srv, store := newTestServer(t, map[Dst]Endpoints{
			fooDst: {"1.2.3.4:8080": {Addr: "1.2.3.4:8080"}},
		}, nil)
		publisher := store.Publisher()

		stream, cancel := newMockServerStream()
		defer cancel()
		bgs := &bufferingGetStream{
			updates:          make(chan *pb.Update, 50),
			mockServerStream: stream,
		}

		errs := make(chan error, 1)
		go func() {
			errs <- srv.Get(&pb.GetDestination{Path: "foo.ns:8080"}, bgs)
		}()

		if add := recvUpdate(t, bgs.updates).GetAdd(); add == nil || len(add.GetAddrs()) != 1 {
			t.Fatal("expected an initial add of one address")
		}

		publisher.PublishEndpoints(fooDst, Endpoints{
			"5.6.7.8:8080": {Addr: "5.6.7.8:8080"},
		})
		if add := recvUpdate(t, bgs.updates).GetAdd(); add == nil || len(add.GetAddrs()) != 1 {
			t.Fatal("expected an add for the replacement address")
		}
		if remove := recvUpdate(t, bgs.updates).GetRemove(); remove == nil || len(remove.GetAddrs()) != 1 {
			t.Fatal("expected a remove for the replaced address")
		}

		publisher.PublishEndpoints(fooDst, Endpoints{})
		update := recvUpdate(t, bgs.updates)
		if ne := update.GetNoEndpoints(); ne == nil || !ne.GetExists() {
			t.Fatalf("expected NoEndpoints{exists:true} for an empty snapshot, got %+v", update)
		}

		publisher.RetractEndpoints(fooDst)
		update = recvUpdate(t, bgs.updates)
		if ne := update.GetNoEndpoints(); ne == nil || ne.GetExists() {
			t.Fatalf("expected terminal NoEndpoints{exists:false}, got %+v", update)
		}
		if err := awaitErr(t, errs); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
	})

	t.Run("client disconnect ends the stream", func(t *testing.T) {
		srv, _ := newTestServer(t, map[Dst]Endpoints{
			fooDst: {"1.2.3.4:8080": {Addr: "1.2.3.4:8080"}},
		}, nil)

		stream, cancel := newMockServerStream()
		bgs := &bufferingGetStream{
			updates:          make(chan *pb.Update, 50),
			mockServerStream: stream,
		}

		errs := make(chan error, 1)
		go func() {
			errs <- srv.Get(&pb.GetDestination{Path: "foo.ns:8080"}, bgs)
		}()
		recvUpdate(t, bgs.updates) // initial add

		cancel()
		if err := awaitErr(t, errs); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
	})
}

func TestGetProfile(t *testing.T) {
	t.Run("invalid authority", func(t *testing.T) {
		srv, _ := newTestServer(t, nil, nil)
		stream, cancel := newMockServerStream()
		defer cancel()

		err := srv.GetProfile(&pb.GetDestination{Path: "not-an-authority"}, &bufferingGetProfileStream{
			profiles:         make(chan *pb.DestinationProfile, 50),
			mockServerStream: stream,
		})
		if status.Code(err) != codes.InvalidArgument {
			t.Fatalf("expected InvalidArgument, got %v", err)
		}
	})

	t.Run("unknown destination gets an empty profile", func(t *testing.T) {
		srv, _ := newTestServer(t, nil, nil)
		stream, cancel := newMockServerStream()
		defer cancel()
		bgps := &bufferingGetProfileStream{
			profiles:         make(chan *pb.DestinationProfile, 50),
			mockServerStream: stream,
		}

		if err := srv.GetProfile(&pb.GetDestination{Path: "nowhere.ns:80"}, bgps); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
		profile := recvProfile(t, bgps.profiles)
		if profile.GetFullyQualifiedName() != "nowhere.ns" || len(profile.GetDstOverrides()) != 0 {
			t.Fatalf("expected an empty profile, got %+v", profile)
		}
	})

	t.Run("streams whole override snapshots", func(t *testing.T) {
		srv, store := newTestServer(t, nil, map[Dst]Overrides{
			fooDst: {
				{Name: "foo-v1.ns", Port: 8080}: 9000,
				{Name: "foo-v2.ns", Port: 8080}: 1000,
			},
		})
		publisher := store.Publisher()

		stream, cancel := newMockServerStream()
		defer cancel()
		bgps := &bufferingGetProfileStream{
			profiles:         make(chan *pb.DestinationProfile, 50),
			mockServerStream: stream,
		}

		errs := make(chan error, 1)
		go func() {
			errs <- srv.GetProfile(&pb.GetDestination{Path: "foo.ns:8080"}, bgps)
		}()

		profile := recvProfile(t, bgps.profiles)
		if profile.GetFullyQualifiedName() != "foo.ns" {
			t.Fatalf("unexpected name: %s", profile.GetFullyQualifiedName())
		}
		expected := []*pb.WeightedDst{
			{Authority: "foo-v1.ns:8080", Weight: 9000},
			{Authority: "foo-v2.ns:8080", Weight: 1000},
		}
		if diff := deep.Equal(expected, profile.GetDstOverrides()); diff != nil {
			t.Fatalf("unexpected overrides: %v", diff)
		}

		publisher.PublishOverrides(fooDst, Overrides{
			{Name: "foo-v2.ns", Port: 8080}: 10000,
		})
		profile = recvProfile(t, bgps.profiles)
		if len(profile.GetDstOverrides()) != 1 || profile.GetDstOverrides()[0].GetWeight() != 10000 {
			t.Fatalf("expected the new snapshot, got %+v", profile)
		}

		publisher.RetractOverrides(fooDst)
		profile = recvProfile(t, bgps.profiles)
		if len(profile.GetDstOverrides()) != 0 {
			t.Fatalf("expected a final empty profile, got %+v", profile)
		}
		if err := awaitErr(t, errs); err != nil {
			t.Fatalf("unexpected error: %s", err)
		}
	})
}

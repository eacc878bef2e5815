package mockdst

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTopicMetricsLifecycle(t *testing.T) {
	dst := Dst{Name: "metered.ns", Port: 7777}
	store := NewSnapshotStore()
	defer store.Close()
	publisher := store.Publisher()

	publisher.PublishEndpoints(dst, Endpoints{"1.2.3.4:8080": {Addr: "1.2.3.4:8080"}})

	if v := testutil.ToFloat64(endpointsVecs.exists.With(dstLabels(dst))); v != 1.0 {
		t.Fatalf("expected exists gauge 1 after publish, got %f", v)
	}
	if v := testutil.ToFloat64(endpointsVecs.updates.With(dstLabels(dst))); v != 1.0 {
		t.Fatalf("expected one update, got %f", v)
	}

	publisher.PublishEndpoints(dst, Endpoints{"5.6.7.8:8080": {Addr: "5.6.7.8:8080"}})
	if v := testutil.ToFloat64(endpointsVecs.updates.With(dstLabels(dst))); v != 2.0 {
		t.Fatalf("expected two updates, got %f", v)
	}

	sub, ok := store.subscribeEndpoints(dst)
	if !ok {
		t.Fatal("expected an endpoints topic")
	}
	if v := testutil.ToFloat64(endpointsVecs.subscribers.With(dstLabels(dst))); v != 1.0 {
		t.Fatalf("expected one subscriber, got %f", v)
	}
	sub.cancel()
	if v := testutil.ToFloat64(endpointsVecs.subscribers.With(dstLabels(dst))); v != 0.0 {
		t.Fatalf("expected no subscribers after cancel, got %f", v)
	}

	publisher.RetractEndpoints(dst)
	if endpointsVecs.exists.Delete(dstLabels(dst)) {
		t.Fatal("expected the topic's metrics to be unregistered after retract")
	}
}

func TestSetExists(t *testing.T) {
	labels := dstLabels(Dst{Name: "gauged.ns", Port: 7778})
	m := endpointsVecs.newMetrics(labels)
	defer endpointsVecs.unregister(labels)

	m.setExists(true)
	if v := testutil.ToFloat64(endpointsVecs.exists.With(labels)); v != 1.0 {
		t.Fatalf("expected exists gauge 1, got %f", v)
	}
	m.setExists(false)
	if v := testutil.ToFloat64(endpointsVecs.exists.With(labels)); v != 0.0 {
		t.Fatalf("expected exists gauge 0, got %f", v)
	}
}

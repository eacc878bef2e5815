package mockdst

import (
	"context"
	"strconv"

	pb "github.com/linkerd/linkerd2-proxy-api/go/destination"
	"github.com/linkerd/linkerd2-proxy-api/go/net"
	"github.com/linkerd/mock-dst/pkg/addr"
	logging "github.com/sirupsen/logrus"
)

// defaultWeight is assigned to endpoint records that do not carry an
// explicit weight.
const defaultWeight uint32 = 10000

// endpointTranslator drives a single Get subscription. It owns a private
// cursor (the last snapshot it observed) and translates each newly
// published snapshot into Destination.Get updates, pushed through a bounded
// mailbox to the stream-forwarding loop. A full mailbox backpressures the
// translator; this is safe because the topic is latest-value, so no backlog
// can accumulate upstream.
type endpointTranslator struct {
	dst     Dst
	labels  map[string]string
	cursor  Endpoints
	updates chan<- *pb.Update
	log     *logging.Entry
}

func newEndpointTranslator(dst Dst, updates chan<- *pb.Update, log *logging.Entry) *endpointTranslator {
	return &endpointTranslator{
		dst:     dst,
		labels:  map[string]string{"concrete": dst.String()},
		cursor:  Endpoints{},
		updates: updates,
		log: log.WithFields(logging.Fields{
			"component": "endpoint-translator",
			"dst":       dst.String(),
		}),
	}
}

// run consumes the subscription until the topic closes or ctx is canceled.
// The first observation diffs against an empty cursor, so a fresh
// subscriber receives the current snapshot as a full Add burst.
func (et *endpointTranslator) run(ctx context.Context, sub *subscription[Endpoints]) {
	defer close(et.updates)

	for {
		curr, ok, err := sub.next(ctx)
		if err != nil {
			et.log.Debugf("subscription canceled: %s", err)
			return
		}
		if !ok {
			// Topic closed: the destination was retracted or the store shut
			// down. Unknown and retracted destinations look identical to
			// the caller.
			et.sendUpdate(ctx, noEndpointsUpdate(false))
			return
		}

		if len(curr) == 0 {
			if err := et.sendUpdate(ctx, noEndpointsUpdate(true)); err != nil {
				return
			}
			et.cursor = curr
			continue
		}

		add, remove := diffEndpoints(et.cursor, curr)
		// Add is always emitted before Remove so that a rebalance never
		// looks like the whole destination momentarily vanishing.
		if len(add) > 0 {
			if err := et.sendAdd(ctx, add); err != nil {
				return
			}
		}
		if len(remove) > 0 {
			if err := et.sendRemove(ctx, remove); err != nil {
				return
			}
		}
		et.cursor = curr
	}
}

// diffEndpoints computes the records to add (new addresses, plus addresses
// whose record value changed) and the addresses to remove between two
// consecutive snapshots.
func diffEndpoints(old, curr Endpoints) (add Endpoints, remove []string) {
	add = Endpoints{}
	for a, ep := range curr {
		if prev, ok := old[a]; !ok || !prev.equal(ep) {
			add[a] = ep
		}
	}
	for a := range old {
		if _, ok := curr[a]; !ok {
			remove = append(remove, a)
		}
	}
	return add, remove
}

func (et *endpointTranslator) sendAdd(ctx context.Context, add Endpoints) error {
	addrs := []*pb.WeightedAddr{}
	for _, ep := range add {
		wa, err := et.toWeightedAddr(ep)
		if err != nil {
			et.log.Errorf("Failed to translate endpoint to weighted addr: %s", err)
			continue
		}
		addrs = append(addrs, wa)
	}

	update := &pb.Update{Update: &pb.Update_Add{
		Add: &pb.WeightedAddrSet{
			Addrs:        addrs,
			MetricLabels: et.labels,
		},
	}}

	et.log.Debugf("Sending destination add: %+v", update)
	return et.sendUpdate(ctx, update)
}

func (et *endpointTranslator) sendRemove(ctx context.Context, remove []string) error {
	addrs := []*net.TcpAddress{}
	for _, a := range remove {
		tcpAddr, err := addr.ParseProxyAddr(a)
		if err != nil {
			et.log.Errorf("Failed to translate endpoint to addr: %s", err)
			continue
		}
		addrs = append(addrs, tcpAddr)
	}

	update := &pb.Update{Update: &pb.Update_Remove{
		Remove: &pb.AddrSet{
			Addrs: addrs,
		},
	}}

	et.log.Debugf("Sending destination remove: %+v", update)
	return et.sendUpdate(ctx, update)
}

func (et *endpointTranslator) sendUpdate(ctx context.Context, update *pb.Update) error {
	select {
	case et.updates <- update:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (et *endpointTranslator) toWeightedAddr(ep Endpoint) (*pb.WeightedAddr, error) {
	tcpAddr, err := addr.ParseProxyAddr(ep.Addr)
	if err != nil {
		return nil, err
	}

	labels := map[string]string{}
	for k, v := range ep.MetricLabels {
		labels[k] = v
	}
	labels["addr"] = ep.Addr
	labels["h2"] = strconv.FormatBool(ep.H2)

	// Endpoints marked h2 are hinted as supporting transparent HTTP/2
	// upgrades between mesh-aware peers.
	var hint *pb.ProtocolHint
	if ep.H2 {
		hint = &pb.ProtocolHint{
			Protocol: &pb.ProtocolHint_H2_{
				H2: &pb.ProtocolHint_H2{},
			},
		}
	}

	var identity *pb.TlsIdentity
	if ep.TLSIdentity != "" {
		identity = &pb.TlsIdentity{
			Strategy: &pb.TlsIdentity_DnsLikeIdentity_{
				DnsLikeIdentity: &pb.TlsIdentity_DnsLikeIdentity{
					Name: ep.TLSIdentity,
				},
			},
		}
	}

	var authorityOverride *pb.AuthorityOverride
	if ep.AuthorityOverride != "" {
		authorityOverride = &pb.AuthorityOverride{
			AuthorityOverride: ep.AuthorityOverride,
		}
	}

	weight := ep.Weight
	if weight == 0 {
		weight = defaultWeight
	}

	return &pb.WeightedAddr{
		Addr:              tcpAddr,
		Weight:            weight,
		MetricLabels:      labels,
		TlsIdentity:       identity,
		ProtocolHint:      hint,
		AuthorityOverride: authorityOverride,
	}, nil
}

func noEndpointsUpdate(exists bool) *pb.Update {
	return &pb.Update{
		Update: &pb.Update_NoEndpoints{
			NoEndpoints: &pb.NoEndpoints{
				Exists: exists,
			},
		},
	}
}

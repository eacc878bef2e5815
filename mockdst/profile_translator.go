package mockdst

import (
	"context"
	"sort"

	pb "github.com/linkerd/linkerd2-proxy-api/go/destination"
	logging "github.com/sirupsen/logrus"
)

// profileTranslator drives a single GetProfile subscription. Overrides are
// not diffed: every published snapshot is re-encoded wholesale as a full
// profile message.
type profileTranslator struct {
	dst      Dst
	profiles chan<- *pb.DestinationProfile
	log      *logging.Entry
}

func newProfileTranslator(dst Dst, profiles chan<- *pb.DestinationProfile, log *logging.Entry) *profileTranslator {
	return &profileTranslator{
		dst:      dst,
		profiles: profiles,
		log: log.WithFields(logging.Fields{
			"component": "profile-translator",
			"dst":       dst.String(),
		}),
	}
}

func (pt *profileTranslator) run(ctx context.Context, sub *subscription[Overrides]) {
	defer close(pt.profiles)

	for {
		overrides, ok, err := sub.next(ctx)
		if err != nil {
			pt.log.Debugf("subscription canceled: %s", err)
			return
		}
		if !ok {
			// Topic closed: send a final profile with no overrides so the
			// caller does not keep stale traffic splits.
			pt.send(ctx, pt.toProfile(nil))
			return
		}
		if err := pt.send(ctx, pt.toProfile(overrides)); err != nil {
			return
		}
	}
}

func (pt *profileTranslator) toProfile(overrides Overrides) *pb.DestinationProfile {
	dsts := make([]*pb.WeightedDst, 0, len(overrides))
	for dst, weight := range overrides {
		dsts = append(dsts, &pb.WeightedDst{
			Authority: dst.String(),
			Weight:    weight,
		})
	}
	sort.Slice(dsts, func(i, j int) bool {
		return dsts[i].Authority < dsts[j].Authority
	})

	return &pb.DestinationProfile{
		FullyQualifiedName: pt.dst.Name,
		DstOverrides:       dsts,
	}
}

func (pt *profileTranslator) send(ctx context.Context, profile *pb.DestinationProfile) error {
	pt.log.Debugf("Sending profile update: %+v", profile)
	select {
	case pt.profiles <- profile:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package mockdst

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

type (
	topicMetricsVecs struct {
		name        string
		subscribers *prometheus.GaugeVec
		updates     *prometheus.CounterVec
		exists      *prometheus.GaugeVec
	}

	topicMetrics struct {
		subscribers prometheus.Gauge
		updates     prometheus.Counter
		exists      prometheus.Gauge
	}
)

var (
	endpointsVecs = newTopicMetricsVecs("endpoints")
	overridesVecs = newTopicMetricsVecs("overrides")
)

func dstLabels(dst Dst) prometheus.Labels {
	return prometheus.Labels{"dst": dst.String()}
}

func newTopicMetricsVecs(name string) topicMetricsVecs {
	labels := []string{"dst"}

	subscribers := promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_subscribers", name),
			Help: fmt.Sprintf("A gauge for the current number of subscribers to a %s topic.", name),
		},
		labels,
	)

	updates := promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_updates", name),
			Help: fmt.Sprintf("A counter for the number of updates to a %s topic.", name),
		},
		labels,
	)

	exists := promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_exists", name),
			Help: fmt.Sprintf("A gauge which is 1 if the %s topic exists and 0 if it does not.", name),
		},
		labels,
	)

	return topicMetricsVecs{
		name:        name,
		subscribers: subscribers,
		updates:     updates,
		exists:      exists,
	}
}

func (mv topicMetricsVecs) newMetrics(labels prometheus.Labels) topicMetrics {
	return topicMetrics{
		subscribers: mv.subscribers.With(labels),
		updates:     mv.updates.With(labels),
		exists:      mv.exists.With(labels),
	}
}

func (mv topicMetricsVecs) unregister(labels prometheus.Labels) {
	if !mv.subscribers.Delete(labels) {
		log.Warnf("unable to delete %s_subscribers metric with labels %s", mv.name, labels)
	}
	if !mv.updates.Delete(labels) {
		log.Warnf("unable to delete %s_updates metric with labels %s", mv.name, labels)
	}
	if !mv.exists.Delete(labels) {
		log.Warnf("unable to delete %s_exists metric with labels %s", mv.name, labels)
	}
}

func (tm topicMetrics) setSubscribers(n int) {
	tm.subscribers.Set(float64(n))
}

func (tm topicMetrics) incUpdates() {
	tm.updates.Inc()
}

func (tm topicMetrics) setExists(exists bool) {
	if exists {
		tm.exists.Set(1.0)
	} else {
		tm.exists.Set(0.0)
	}
}

package store

import (
	"github.com/prometheus/client_golang/prometheus"
)

type collectors struct {
	ingested           *prometheus.CounterVec
	rejected           *prometheus.CounterVec
	performanceSamples prometheus.Gauge
	liveObjects        prometheus.Gauge
	liveBytes          prometheus.Gauge
	rebuildDuration    *prometheus.HistogramVec
	superseded         *prometheus.CounterVec
}

func newCollectors(reg prometheus.Registerer) *collectors {
	c := &collectors{
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "profiler",
			Subsystem: "store",
			Name:      "ingested_events_total",
			Help:      "Number of events applied to the store.",
		}, []string{"kind"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "profiler",
			Subsystem: "store",
			Name:      "rejected_events_total",
			Help:      "Number of malformed events rejected by the store.",
		}, []string{"kind"}),
		performanceSamples: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "profiler",
			Subsystem: "store",
			Name:      "performance_samples",
			Help:      "Number of performance samples held.",
		}),
		liveObjects: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "profiler",
			Subsystem: "store",
			Name:      "live_objects",
			Help:      "Number of live objects tracked.",
		}),
		liveBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "profiler",
			Subsystem: "store",
			Name:      "live_bytes",
			Help:      "Bytes held by live objects.",
		}),
		rebuildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "profiler",
			Subsystem: "store",
			Name:      "rebuild_duration_seconds",
			Help:      "Time spent rebuilding derived views.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"view"}),
		superseded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "profiler",
			Subsystem: "store",
			Name:      "superseded_rebuilds_total",
			Help:      "Number of rebuilds discarded in favor of a newer one.",
		}, []string{"view"}),
	}
	if reg != nil {
		reg.MustRegister(
			c.ingested,
			c.rejected,
			c.performanceSamples,
			c.liveObjects,
			c.liveBytes,
			c.rebuildDuration,
			c.superseded,
		)
	}
	return c
}

package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dev-feyisayo/canopy/engine/ids"
)

// =============================================================================
// ZONE & SERVICE METRICS
// =============================================================================

var (
	servicesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "canopy_services_active",
		Help: "Number of zones with a live (non-amnesia) service.",
	})

	zoneAmnesiaTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canopy_zone_amnesia_total",
		Help: "Total number of zones that have transitioned to amnesia.",
	})
)

// =============================================================================
// STUB & PROXY METRICS
// =============================================================================

var (
	stubsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "canopy_object_stubs_active",
		Help: "Number of live object stubs across all zones in this process.",
	})

	proxiesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "canopy_object_proxies_active",
		Help: "Number of live object proxies across all zones in this process.",
	})

	passThroughsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "canopy_pass_throughs_active",
		Help: "Number of live pass-throughs across all zones in this process.",
	})

	refCountDeltaTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canopy_ref_count_delta_total",
			Help: "Sum of absolute shared/optimistic ref-count deltas observed on object stubs.",
		},
		[]string{"kind"}, // "shared", "optimistic"
	)
)

// =============================================================================
// VERB METRICS
// =============================================================================

var (
	verbTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canopy_verb_total",
			Help: "Total marshaller verb invocations, by verb/direction/result.",
		},
		[]string{"verb", "direction", "error_kind"},
	)

	transportStatusTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "canopy_transport_status_total",
			Help: "Transitions of transport status, by new status.",
		},
		[]string{"status"},
	)
)

// PrometheusSink is a Sink backed by the default Prometheus registry via
// promauto. It is safe to construct more than once; promauto metrics are
// registered once per process via package-level vars.
type PrometheusSink struct{}

// NewPrometheusSink returns a Sink that records every event as Prometheus
// counters/gauges.
func NewPrometheusSink() PrometheusSink { return PrometheusSink{} }

func (PrometheusSink) ServiceCreated(ids.Zone) { servicesActive.Inc() }
func (PrometheusSink) ServiceDeleted(ids.Zone) { servicesActive.Dec() }

func (PrometheusSink) StubCreated(ids.Zone, ids.Object) { stubsActive.Inc() }
func (PrometheusSink) StubDeleted(ids.Zone, ids.Object) { stubsActive.Dec() }

func (PrometheusSink) StubRefCountDelta(_ ids.Zone, _ ids.Object, _ ids.CallerZone, sharedDelta, optimisticDelta int32) {
	if sharedDelta != 0 {
		refCountDeltaTotal.WithLabelValues("shared").Add(absF(sharedDelta))
	}
	if optimisticDelta != 0 {
		refCountDeltaTotal.WithLabelValues("optimistic").Add(absF(optimisticDelta))
	}
}

func (PrometheusSink) ProxyCreated(ids.Zone, ids.DestinationZone, ids.Object) { proxiesActive.Inc() }
func (PrometheusSink) ProxyDeleted(ids.Zone, ids.DestinationZone, ids.Object) { proxiesActive.Dec() }

func (PrometheusSink) TransportStatusChanged(_ ids.Zone, _ ids.Zone, status TransportStatus) {
	transportStatusTotal.WithLabelValues(string(status)).Inc()
}

func (PrometheusSink) Verb(direction VerbDirection, verb string, _ ids.CallerZone, _ ids.DestinationZone, _ ids.Object, _ ids.InterfaceOrdinal, _ ids.Method, errKind string) {
	verbTotal.WithLabelValues(verb, string(direction), errKind).Inc()
}

func (PrometheusSink) PassThroughCreated(ids.Zone, ids.DestinationZone, ids.CallerZone) {
	passThroughsActive.Inc()
}
func (PrometheusSink) PassThroughDestroyed(ids.Zone, ids.DestinationZone, ids.CallerZone) {
	passThroughsActive.Dec()
}

func (PrometheusSink) ZoneAmnesia(ids.Zone) { zoneAmnesiaTotal.Inc() }

func absF(v int32) float64 {
	if v < 0 {
		v = -v
	}
	return float64(v)
}

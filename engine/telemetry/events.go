// Package telemetry defines the event hooks the core exposes to external
// sinks and ships two concrete sinks: a Prometheus metrics sink and an
// OpenTelemetry tracer initializer. The core never calls out to a
// specific sink implementation directly — every component holds a Sink
// interface. The process-global pieces are the Prometheus metrics, which
// are registered at package level, and the tracer provider that
// InitTracer installs.
package telemetry

import "github.com/dev-feyisayo/canopy/engine/ids"

// VerbDirection distinguishes an inbound verb invocation (this zone is the
// receiver) from an outbound one (this zone is the sender).
type VerbDirection string

const (
	DirectionOutbound VerbDirection = "outbound"
	DirectionInbound  VerbDirection = "inbound"
)

// TransportStatus is the connection state a transport reports.
type TransportStatus string

const (
	StatusConnecting   TransportStatus = "connecting"
	StatusConnected    TransportStatus = "connected"
	StatusReconnecting TransportStatus = "reconnecting"
	StatusDisconnected TransportStatus = "disconnected"
)

// Sink receives the runtime's lifecycle and verb events. Every method
// must be
// safe to call concurrently from many goroutines and must not block the
// caller for any length of time (a sink that needs to do slow I/O should
// queue internally).
type Sink interface {
	ServiceCreated(zone ids.Zone)
	ServiceDeleted(zone ids.Zone)

	StubCreated(zone ids.Zone, object ids.Object)
	StubDeleted(zone ids.Zone, object ids.Object)
	StubRefCountDelta(zone ids.Zone, object ids.Object, caller ids.CallerZone, sharedDelta, optimisticDelta int32)

	ProxyCreated(zone ids.Zone, destination ids.DestinationZone, object ids.Object)
	ProxyDeleted(zone ids.Zone, destination ids.DestinationZone, object ids.Object)

	TransportStatusChanged(zone ids.Zone, adjacent ids.Zone, status TransportStatus)

	// Verb records one invocation of one of the six marshaller verbs.
	// verb is the stable lowercase wire name, e.g. "send", "add_ref".
	Verb(direction VerbDirection, verb string, caller ids.CallerZone, destination ids.DestinationZone, object ids.Object, iface ids.InterfaceOrdinal, method ids.Method, errKind string)

	PassThroughCreated(intermediary ids.Zone, destination ids.DestinationZone, caller ids.CallerZone)
	PassThroughDestroyed(intermediary ids.Zone, destination ids.DestinationZone, caller ids.CallerZone)

	ZoneAmnesia(zone ids.Zone)
}

// NoopSink discards every event. It is the default sink for a Service
// constructed without one.
type NoopSink struct{}

func (NoopSink) ServiceCreated(ids.Zone) {}
func (NoopSink) ServiceDeleted(ids.Zone) {}
func (NoopSink) StubCreated(ids.Zone, ids.Object) {}
func (NoopSink) StubDeleted(ids.Zone, ids.Object) {}
func (NoopSink) StubRefCountDelta(ids.Zone, ids.Object, ids.CallerZone, int32, int32) {}
func (NoopSink) ProxyCreated(ids.Zone, ids.DestinationZone, ids.Object) {}
func (NoopSink) ProxyDeleted(ids.Zone, ids.DestinationZone, ids.Object) {}
func (NoopSink) TransportStatusChanged(ids.Zone, ids.Zone, TransportStatus) {}
func (NoopSink) Verb(VerbDirection, string, ids.CallerZone, ids.DestinationZone, ids.Object, ids.InterfaceOrdinal, ids.Method, string) {
}
func (NoopSink) PassThroughCreated(ids.Zone, ids.DestinationZone, ids.CallerZone)   {}
func (NoopSink) PassThroughDestroyed(ids.Zone, ids.DestinationZone, ids.CallerZone) {}
func (NoopSink) ZoneAmnesia(ids.Zone)                                              {}

// MultiSink fans events out to every sink in the slice, in order.
type MultiSink []Sink

func (m MultiSink) ServiceCreated(z ids.Zone) {
	for _, s := range m {
		s.ServiceCreated(z)
	}
}
func (m MultiSink) ServiceDeleted(z ids.Zone) {
	for _, s := range m {
		s.ServiceDeleted(z)
	}
}
func (m MultiSink) StubCreated(z ids.Zone, o ids.Object) {
	for _, s := range m {
		s.StubCreated(z, o)
	}
}
func (m MultiSink) StubDeleted(z ids.Zone, o ids.Object) {
	for _, s := range m {
		s.StubDeleted(z, o)
	}
}
func (m MultiSink) StubRefCountDelta(z ids.Zone, o ids.Object, c ids.CallerZone, sd, od int32) {
	for _, s := range m {
		s.StubRefCountDelta(z, o, c, sd, od)
	}
}
func (m MultiSink) ProxyCreated(z ids.Zone, d ids.DestinationZone, o ids.Object) {
	for _, s := range m {
		s.ProxyCreated(z, d, o)
	}
}
func (m MultiSink) ProxyDeleted(z ids.Zone, d ids.DestinationZone, o ids.Object) {
	for _, s := range m {
		s.ProxyDeleted(z, d, o)
	}
}
func (m MultiSink) TransportStatusChanged(z ids.Zone, adj ids.Zone, st TransportStatus) {
	for _, s := range m {
		s.TransportStatusChanged(z, adj, st)
	}
}
func (m MultiSink) Verb(dir VerbDirection, verb string, caller ids.CallerZone, dest ids.DestinationZone, obj ids.Object, iface ids.InterfaceOrdinal, method ids.Method, errKind string) {
	for _, s := range m {
		s.Verb(dir, verb, caller, dest, obj, iface, method, errKind)
	}
}
func (m MultiSink) PassThroughCreated(z ids.Zone, d ids.DestinationZone, c ids.CallerZone) {
	for _, s := range m {
		s.PassThroughCreated(z, d, c)
	}
}
func (m MultiSink) PassThroughDestroyed(z ids.Zone, d ids.DestinationZone, c ids.CallerZone) {
	for _, s := range m {
		s.PassThroughDestroyed(z, d, c)
	}
}
func (m MultiSink) ZoneAmnesia(z ids.Zone) {
	for _, s := range m {
		s.ZoneAmnesia(z)
	}
}

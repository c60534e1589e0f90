// Package service implements the per-zone authority: the registry and
// lifecycle owner for local object stubs, service proxies, transports,
// and pass-throughs, and the state machine that drives a zone to amnesia
// when it stops doing any useful work.
package service

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dev-feyisayo/canopy/engine/config"
	"github.com/dev-feyisayo/canopy/engine/ids"
	"github.com/dev-feyisayo/canopy/engine/marshal"
	"github.com/dev-feyisayo/canopy/engine/proxystub"
	"github.com/dev-feyisayo/canopy/engine/serviceproxy"
	"github.com/dev-feyisayo/canopy/engine/telemetry"
	"github.com/dev-feyisayo/canopy/engine/transport"
	"github.com/dev-feyisayo/canopy/engine/wire"
)

// ObjectReleasedObserver is notified when an object with optimistic
// holders is destroyed.
type ObjectReleasedObserver func(destination ids.DestinationZone, object ids.Object)

// Service is the authority for one zone. It owns the
// object-stub table, the service-proxy registry, a weak-in-spirit
// transport registry (Go's GC makes the "weak" qualifier moot — see
// transport.Cell), and the three zone-liveness counters.
type Service struct {
	zone ids.Zone
	name string
	cfg  *config.CanopyConfig
	sink telemetry.Sink
	gen  *ids.Generator

	mu              sync.RWMutex
	stubs           map[ids.Object]*proxystub.ObjectStub
	byImplementation map[any]*proxystub.ObjectStub
	proxies         map[proxyKey]*proxystub.ObjectProxy
	serviceProxies  map[ids.DestinationZone]*serviceproxy.ServiceProxy
	cells           map[ids.Zone]*transport.Cell
	passThroughs    map[ids.ZonePair]*PassThrough
	zoneLocks       map[ids.Zone]*sync.Mutex
	codecs          *wire.Registry

	observers []ObjectReleasedObserver

	inboundStubs    atomic.Int32
	outboundProxies atomic.Int32
	passThroughCnt  atomic.Int32

	amnesiac  bool
	onAmnesia func()
}

// proxyKey addresses an ObjectProxy: one proxy per (destination zone,
// object ID) pair.
type proxyKey struct {
	destination ids.DestinationZone
	object      ids.Object
}

// New constructs a Service for zone, with the given name (used only for
// diagnostics/telemetry, never for addressing).
func New(zone ids.Zone, name string, cfg *config.CanopyConfig, sink telemetry.Sink) *Service {
	if cfg == nil {
		cfg = config.DefaultCanopyConfig()
	}
	if sink == nil {
		sink = telemetry.NoopSink{}
	}
	s := &Service{
		zone:             zone,
		name:             name,
		cfg:              cfg,
		sink:             sink,
		gen:              ids.NewGenerator(),
		stubs:            make(map[ids.Object]*proxystub.ObjectStub),
		byImplementation: make(map[any]*proxystub.ObjectStub),
		proxies:          make(map[proxyKey]*proxystub.ObjectProxy),
		serviceProxies:   make(map[ids.DestinationZone]*serviceproxy.ServiceProxy),
		cells:            make(map[ids.Zone]*transport.Cell),
		passThroughs:     make(map[ids.ZonePair]*PassThrough),
		zoneLocks:        make(map[ids.Zone]*sync.Mutex),
	}
	sink.ServiceCreated(zone)
	return s
}

// Zone returns this service's zone ID.
func (s *Service) Zone() ids.Zone { return s.zone }

// Config returns the tunables this zone was constructed with. Transports
// read their send timeout and heartbeat settings from here.
func (s *Service) Config() *config.CanopyConfig { return s.cfg }

// GenerateObjectID issues a fresh object ID, unique within this zone.
func (s *Service) GenerateObjectID() ids.Object {
	return ids.Object(s.gen.Next())
}

// RegisterLocalObject registers impl (an opaque application object
// identity, typically a pointer) behind dispatchers, returning its stub.
// A second registration of the same impl returns the existing stub
// unchanged.
func (s *Service) RegisterLocalObject(impl any, dispatchers []proxystub.InterfaceDispatcher, destroy func()) *proxystub.ObjectStub {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byImplementation[impl]; ok {
		return existing
	}
	object := ids.Object(s.gen.Next())
	stub := proxystub.NewObjectStub(s.zone, object, dispatchers, s.sink, func() {
		s.mu.Lock()
		delete(s.stubs, object)
		delete(s.byImplementation, impl)
		s.mu.Unlock()
		s.decInboundStubs()
		if destroy != nil {
			destroy()
		}
	})
	stub.SetReleaseNotifier(func(callers []ids.CallerZone) {
		for _, caller := range callers {
			dest := ids.DestinationZone(caller)
			sp := s.ServiceProxyFor(dest)
			sp.ObjectReleased(context.Background(), dest, object)
		}
	})
	s.stubs[object] = stub
	s.byImplementation[impl] = stub
	s.incInboundStubs()
	return stub
}

// LookupStub returns the stub for object, if any.
func (s *Service) LookupStub(object ids.Object) (*proxystub.ObjectStub, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stubs[object]
	return st, ok
}

// AddTransport registers t as the (only) transport toward zone, creating
// or replacing its Cell, and returns the Cell. The registry holds the
// Cell, not a counted reference to the Transport itself — ownership of
// the Transport is distributed among service proxies, pass-throughs, and
// whatever external code constructed it.
func (s *Service) AddTransport(zone ids.Zone, t transport.Transport) *transport.Cell {
	s.mu.Lock()
	defer s.mu.Unlock()
	cell, ok := s.cells[zone]
	if !ok {
		cell = transport.NewCell(nil)
		s.cells[zone] = cell
	}
	cell.Set(t)
	return cell
}

// GetTransport returns the Cell registered for zone, if any.
func (s *Service) GetTransport(zone ids.Zone) (*transport.Cell, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cells[zone]
	return c, ok
}

// RemoveTransport drops the registry entry for zone entirely (as opposed
// to Reset, which just empties the Cell while keeping it registered for
// reconnection).
func (s *Service) RemoveTransport(zone ids.Zone) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cells, zone)
}

// OnObjectReleasedEventSubscribe registers obs to be called whenever this
// zone receives an object_released notification, i.e. a remote object it
// held optimistically has been destroyed in its home zone.
func (s *Service) OnObjectReleasedEventSubscribe(obs ObjectReleasedObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, obs)
}

func (s *Service) fireObjectReleased(destination ids.DestinationZone, object ids.Object) {
	s.mu.RLock()
	observers := append([]ObjectReleasedObserver(nil), s.observers...)
	s.mu.RUnlock()
	for _, obs := range observers {
		obs(destination, object)
	}
}

// ServiceProxyFor returns (creating if needed) the ServiceProxy gateway to
// destination, backed by the Cell registered for that zone. There is
// exactly one ServiceProxy per destination zone per local service.
func (s *Service) ServiceProxyFor(destination ids.DestinationZone) *serviceproxy.ServiceProxy {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sp, ok := s.serviceProxies[destination]; ok {
		return sp
	}
	cell, ok := s.cells[ids.Zone(destination)]
	if !ok {
		cell = transport.NewCell(nil)
		s.cells[ids.Zone(destination)] = cell
	}
	sp := serviceproxy.New(ids.CallerZone(s.zone), destination, cell, s.sink)
	s.serviceProxies[destination] = sp
	return sp
}

func (s *Service) incInboundStubs()    { s.inboundStubs.Add(1); s.checkAmnesia() }
func (s *Service) decInboundStubs()    { s.inboundStubs.Add(-1); s.checkAmnesia() }
func (s *Service) incOutboundProxies() { s.outboundProxies.Add(1); s.checkAmnesia() }
func (s *Service) decOutboundProxies() { s.outboundProxies.Add(-1); s.checkAmnesia() }
func (s *Service) incPassThroughs()    { s.passThroughCnt.Add(1); s.checkAmnesia() }
func (s *Service) decPassThroughs()    { s.passThroughCnt.Add(-1); s.checkAmnesia() }

// Counters exposes the three zone-liveness counters for diagnostics and
// tests.
func (s *Service) Counters() (inboundStubs, outboundProxies, passThroughs int32) {
	return s.inboundStubs.Load(), s.outboundProxies.Load(), s.passThroughCnt.Load()
}

// Amnesiac reports whether the zone has transitioned to amnesia.
func (s *Service) Amnesiac() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.amnesiac
}

// checkAmnesia enforces the zone-liveness rule: a zone stays alive iff
// inbound_stubs + outbound_proxies + pass_throughs > 0. Once all three
// reach zero, every registered transport is signalled disconnected and
// the registry is cleared. It is idempotent; repeated calls once already
// amnesiac are no-ops.
func (s *Service) checkAmnesia() {
	if s.inboundStubs.Load() != 0 || s.outboundProxies.Load() != 0 || s.passThroughCnt.Load() != 0 {
		return
	}
	s.mu.Lock()
	if s.amnesiac {
		s.mu.Unlock()
		return
	}
	if s.inboundStubs.Load() != 0 || s.outboundProxies.Load() != 0 || s.passThroughCnt.Load() != 0 {
		s.mu.Unlock()
		return
	}
	s.amnesiac = true
	cells := make([]*transport.Cell, 0, len(s.cells))
	for _, c := range s.cells {
		cells = append(cells, c)
	}
	s.cells = make(map[ids.Zone]*transport.Cell)
	s.serviceProxies = make(map[ids.DestinationZone]*serviceproxy.ServiceProxy)
	hook := s.onAmnesia
	s.mu.Unlock()

	for _, cell := range cells {
		if t, ok := cell.Get(); ok {
			t.Close()
		}
		cell.Reset()
	}
	if hook != nil {
		hook()
	}
	s.sink.ZoneAmnesia(s.zone)
	s.sink.ServiceDeleted(s.zone)
}

// RouteMarshaller resolves the marshal.Marshaller that should carry a
// verb addressed to (destination, caller). An existing pass-through for
// the pair wins over a direct hop: once route-building add_refs have
// birthed one, its counts must track every unit that flows for that
// pair, which a bypassing direct hop would silently miss. With no
// pass-through in place the direct transport is used when live, and a
// fresh pass-through is created otherwise.
// Case 1 ("deliver locally") is handled by the caller before reaching
// here — see the deliverLocal helper in dispatch.go.
func (s *Service) RouteMarshaller(ctx context.Context, destination ids.DestinationZone, caller ids.CallerZone) (marshal.Marshaller, error) {
	key := ids.ZonePair{Destination: destination, Caller: caller}
	s.mu.RLock()
	pt, ok := s.passThroughs[key]
	s.mu.RUnlock()
	if ok {
		return pt, nil
	}
	if cell, ok := s.GetTransport(ids.Zone(destination)); ok {
		if t, ok2 := cell.Get(); ok2 {
			return t, nil
		}
	}
	pt, err := s.findOrCreatePassThrough(ctx, destination, caller)
	if err != nil {
		return nil, err
	}
	return pt, nil
}


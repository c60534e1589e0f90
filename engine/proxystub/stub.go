// Package proxystub implements the object stub and object proxy: the
// server-side and client-side representatives of a cross-zone object
// reference.
package proxystub

import (
	"context"
	"sync"

	"github.com/dev-feyisayo/canopy/engine/canopyerr"
	"github.com/dev-feyisayo/canopy/engine/ids"
	"github.com/dev-feyisayo/canopy/engine/refcount"
	"github.com/dev-feyisayo/canopy/engine/telemetry"
	"github.com/dev-feyisayo/canopy/engine/wire"
)

// InterfaceDispatcher is the per-interface generated dispatcher an
// application registers against a stub, normally emitted by the IDL
// compiler.
// The core never generates or interprets argument bytes; it only routes to
// the matching dispatcher by interface fingerprint and then by positional
// method ordinal.
type InterfaceDispatcher interface {
	InterfaceID() ids.InterfaceOrdinal
	Dispatch(ctx context.Context, method ids.Method, codec wire.Codec, args []byte) ([]byte, error)
}

// ObjectStub is the local representative of an object, keyed by object
// ID. It tracks per-caller-zone shared and optimistic counts
// so a later transport_down can force-release exactly the contributions
// that came from the failed zone.
type ObjectStub struct {
	zone   ids.Zone
	object ids.Object
	cb     *refcount.ControlBlock

	mu          sync.Mutex
	dispatchers map[ids.InterfaceOrdinal]InterfaceDispatcher
	callerShared     map[ids.CallerZone]int32
	callerOptimistic map[ids.CallerZone]int32
	released         func(callers []ids.CallerZone)

	sink telemetry.Sink
}

// ControlBlock implements refcount.Referent so local handles in the same
// zone as the object can reference the stub directly, without a proxy.
func (s *ObjectStub) ControlBlock() *refcount.ControlBlock { return s.cb }

// NewObjectStub constructs a stub in the "make_strong" state.
// destroy is invoked exactly once, when the shared count reaches zero; it
// should release whatever the application registered (the real
// implementation). Zones holding optimistic references are notified via
// object_released by the release notifier (SetReleaseNotifier), which runs
// before destroy.
func NewObjectStub(zone ids.Zone, object ids.Object, dispatchers []InterfaceDispatcher, sink telemetry.Sink, destroy func()) *ObjectStub {
	if sink == nil {
		sink = telemetry.NoopSink{}
	}
	s := &ObjectStub{
		zone:             zone,
		object:           object,
		dispatchers:      make(map[ids.InterfaceOrdinal]InterfaceDispatcher, len(dispatchers)),
		callerShared:     make(map[ids.CallerZone]int32),
		callerOptimistic: make(map[ids.CallerZone]int32),
		sink:             sink,
	}
	for _, d := range dispatchers {
		s.dispatchers[d.InterfaceID()] = d
	}
	s.cb = refcount.NewControlBlock(func() {
		s.mu.Lock()
		callers := make([]ids.CallerZone, 0, len(s.callerOptimistic))
		for c := range s.callerOptimistic {
			callers = append(callers, c)
		}
		notify := s.released
		s.mu.Unlock()

		// Notify before destroy: destroy may be the transition that drives
		// the zone to amnesia and closes its transports, and the
		// object_released verbs must leave while they are still open.
		if notify != nil && len(callers) > 0 {
			notify(callers)
		}
		if destroy != nil {
			destroy()
		}
		sink.StubDeleted(zone, object)
	})
	sink.StubCreated(zone, object)
	return s
}

// Object returns the stub's object ID.
func (s *ObjectStub) Object() ids.Object { return s.object }

// SetReleaseNotifier installs fn to be invoked, once, at the moment this
// object is destroyed, with every caller zone that still held an
// optimistic reference at that instant. Graceful shutdown fires
// object_released only to optimistic holders, never to strong ones,
// since strong references are already being released on the normal
// path. A nil or never-set notifier means destruction is silent,
// which is the correct behaviour for objects with no optimistic holders.
func (s *ObjectStub) SetReleaseNotifier(fn func(callers []ids.CallerZone)) {
	s.mu.Lock()
	s.released = fn
	s.mu.Unlock()
}

// Destroyed reports whether the underlying object has been destroyed.
func (s *ObjectStub) Destroyed() bool { return s.cb.Destroyed() }

// TryCast reports whether the stub has a dispatcher for iface.
func (s *ObjectStub) TryCast(iface ids.InterfaceOrdinal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.dispatchers[iface]
	return ok
}

// Dispatch routes a decoded call to the registered interface dispatcher.
func (s *ObjectStub) Dispatch(ctx context.Context, iface ids.InterfaceOrdinal, method ids.Method, codec wire.Codec, args []byte) ([]byte, error) {
	s.mu.Lock()
	d, ok := s.dispatchers[iface]
	s.mu.Unlock()
	if !ok {
		return nil, canopyerr.New(canopyerr.InterfaceNotSupported, "stub has no dispatcher for this interface")
	}
	if s.cb.Destroyed() {
		return nil, canopyerr.New(canopyerr.ObjectNotFound, "object destroyed")
	}
	return d.Dispatch(ctx, method, codec, args)
}

// AddRef increments the count addressed by optimistic for caller, both in
// the per-caller map and in the stub's control block, and returns the new
// total count. Fails with ObjectNotFound if the shared count has already
// reached zero.
func (s *ObjectStub) AddRef(caller ids.CallerZone, optimistic bool) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if optimistic {
		s.cb.CloneOptimistic()
		s.callerOptimistic[caller]++
		total := s.cb.Optimistic()
		s.sink.StubRefCountDelta(s.zone, s.object, caller, 0, 1)
		return total, nil
	}
	if !s.cb.CloneStrong() {
		return 0, canopyerr.New(canopyerr.ObjectNotFound, "object already destroyed")
	}
	s.callerShared[caller]++
	total := s.cb.Shared()
	s.sink.StubRefCountDelta(s.zone, s.object, caller, 1, 0)
	return total, nil
}

// CurrentCount reads the count a relay add_ref reports without altering
// it; a relay is route-building only.
func (s *ObjectStub) CurrentCount(optimistic bool) int32 {
	if optimistic {
		return s.cb.Optimistic()
	}
	return s.cb.Shared()
}

// Release decrements the count addressed by optimistic for caller.
// Returns InvalidData if caller has no recorded contribution to release.
//
// The control-block drop happens after s.mu is released: DropStrong may
// synchronously run the stub's destructor (when it observes shared reach
// zero), and that destructor needs to lock s.mu itself to snapshot the
// remaining optimistic callers. Re-entering s.mu from the same goroutine
// would deadlock.
func (s *ObjectStub) Release(caller ids.CallerZone, optimistic bool) error {
	s.mu.Lock()

	if optimistic {
		if s.callerOptimistic[caller] <= 0 {
			s.mu.Unlock()
			return canopyerr.New(canopyerr.InvalidData, "no optimistic contribution recorded for caller zone")
		}
		s.callerOptimistic[caller]--
		if s.callerOptimistic[caller] == 0 {
			delete(s.callerOptimistic, caller)
		}
		s.mu.Unlock()
		s.cb.DropOptimistic()
		s.sink.StubRefCountDelta(s.zone, s.object, caller, 0, -1)
		return nil
	}
	if s.callerShared[caller] <= 0 {
		s.mu.Unlock()
		return canopyerr.New(canopyerr.InvalidData, "no shared contribution recorded for caller zone")
	}
	s.callerShared[caller]--
	if s.callerShared[caller] == 0 {
		delete(s.callerShared, caller)
	}
	s.mu.Unlock()
	s.cb.DropStrong()
	s.sink.StubRefCountDelta(s.zone, s.object, caller, -1, 0)
	return nil
}

// ForceReleaseCaller drops every shared and optimistic contribution
// recorded for caller in one step, the forced equivalent of the release
// messages that will never arrive after a transport_down. It returns how
// many of each were dropped.
func (s *ObjectStub) ForceReleaseCaller(caller ids.CallerZone) (sharedDropped, optimisticDropped int32) {
	s.mu.Lock()
	sharedDropped = s.callerShared[caller]
	optimisticDropped = s.callerOptimistic[caller]
	delete(s.callerShared, caller)
	delete(s.callerOptimistic, caller)
	s.mu.Unlock()

	for i := int32(0); i < sharedDropped; i++ {
		s.cb.DropStrong()
	}
	for i := int32(0); i < optimisticDropped; i++ {
		s.cb.DropOptimistic()
	}
	if sharedDropped != 0 || optimisticDropped != 0 {
		s.sink.StubRefCountDelta(s.zone, s.object, caller, -sharedDropped, -optimisticDropped)
	}
	return sharedDropped, optimisticDropped
}

// DropLocalRef releases the one strong unit the registering code itself
// holds, distinct from any remote caller's contribution. It is the
// application's responsibility to call this exactly once, typically when
// explicitly deregistering the object or on zone teardown.
func (s *ObjectStub) DropLocalRef() {
	s.cb.DropStrong()
}

// CallerZones returns every caller zone with a recorded shared or
// optimistic contribution, for diagnostics and tests.
func (s *ObjectStub) CallerZones() []ids.CallerZone {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[ids.CallerZone]struct{}, len(s.callerShared)+len(s.callerOptimistic))
	for c := range s.callerShared {
		seen[c] = struct{}{}
	}
	for c := range s.callerOptimistic {
		seen[c] = struct{}{}
	}
	out := make([]ids.CallerZone, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	return out
}

package service

import (
	"context"

	"github.com/dev-feyisayo/canopy/engine/canopyerr"
	"github.com/dev-feyisayo/canopy/engine/ids"
	"github.com/dev-feyisayo/canopy/engine/marshal"
	"github.com/dev-feyisayo/canopy/engine/proxystub"
	"github.com/dev-feyisayo/canopy/engine/refcount"
	"github.com/dev-feyisayo/canopy/engine/telemetry"
	"github.com/dev-feyisayo/canopy/engine/wire"
)

// recordVerb emits one inbound-verb telemetry event, translating an error
// (or its absence) into the stable kind name the sink labels by.
func (s *Service) recordVerb(verb string, caller ids.CallerZone, dest ids.DestinationZone, object ids.Object, iface ids.InterfaceOrdinal, method ids.Method, err error) {
	s.sink.Verb(telemetry.DirectionInbound, verb, caller, dest, object, iface, method, canopyerr.KindOf(err).String())
}

// HandleSend routes an inbound send: deliver locally if req addresses
// this zone, otherwise forward through a direct transport or a
// pass-through.
func (s *Service) HandleSend(ctx context.Context, req *wire.Request) (resp *wire.Response, err error) {
	defer func() {
		s.recordVerb("send", ids.CallerZone(req.CallerZoneID), ids.DestinationZone(req.DestinationZoneID), ids.Object(req.ObjectID), ids.InterfaceOrdinal(req.InterfaceID), ids.Method(req.MethodID), err)
	}()
	if ids.Zone(req.DestinationZoneID) == s.zone {
		return s.deliverLocal(ctx, req)
	}
	m, err := s.RouteMarshaller(ctx, ids.DestinationZone(req.DestinationZoneID), ids.CallerZone(req.CallerZoneID))
	if err != nil {
		return nil, err
	}
	return m.Send(ctx, req)
}

// HandlePost is the fire-and-forget counterpart of HandleSend.
func (s *Service) HandlePost(ctx context.Context, req *wire.Request) {
	defer s.recordVerb("post", ids.CallerZone(req.CallerZoneID), ids.DestinationZone(req.DestinationZoneID), ids.Object(req.ObjectID), ids.InterfaceOrdinal(req.InterfaceID), ids.Method(req.MethodID), nil)
	if ids.Zone(req.DestinationZoneID) == s.zone {
		_, _ = s.deliverLocal(ctx, req)
		return
	}
	m, err := s.RouteMarshaller(ctx, ids.DestinationZone(req.DestinationZoneID), ids.CallerZone(req.CallerZoneID))
	if err != nil {
		return
	}
	m.Post(ctx, req)
}

// deliverLocal dispatches a send addressed to this zone. Negotiation
// failures (version, codec) are answered in-band as a Response with Err
// set, since the sender needs the back-channel range hint to pick its one
// retry version. Delivery failures (missing stub, dispatch errors) stay
// ordinary errors for the transport to carry.
func (s *Service) deliverLocal(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	if req.Version != 0 {
		if _, err := wire.Negotiate(req.Version, s.cfg.SupportedVersions); err != nil {
			return &wire.Response{
				Err:         int32(canopyerr.InvalidVersion),
				BackChannel: wire.BackChannel{wire.VersionRangeEntry(s.cfg.SupportedVersions)},
			}, nil
		}
	}
	stub, ok := s.LookupStub(ids.Object(req.ObjectID))
	if !ok {
		return nil, canopyerr.New(canopyerr.ObjectNotFound, "no stub for requested object")
	}
	codec, err := s.codecRegistry().Resolve(req.Codec)
	if err != nil {
		return &wire.Response{Err: int32(canopyerr.IncompatibleSerialisation)}, nil
	}
	out, err := stub.Dispatch(ctx, ids.InterfaceOrdinal(req.InterfaceID), ids.Method(req.MethodID), codec, req.Data)
	if err != nil {
		return nil, err
	}
	return &wire.Response{Data: out}, nil
}

// codecRegistry lazily builds the per-service codec registry on first
// use; kept as a method so Service's zero value in tests that never
// touch codecs stays cheap to construct.
func (s *Service) codecRegistry() *wire.Registry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codecs == nil {
		s.codecs = wire.NewRegistry()
	}
	return s.codecs
}

// HandleAddRef routes an inbound add_ref. A relay add_ref (both route
// bits) is route-building only: it alters no counts anywhere, at this hop
// or at the destination stub. At the destination, a non-relay add_ref
// lands in the object stub's per-caller accounting. In transit, any
// route-building bit forces pass-through construction rather than a
// direct hop; route-building is precisely the request to have one.
func (s *Service) HandleAddRef(ctx context.Context, args marshal.AddRefArgs) (count int32, err error) {
	defer func() {
		s.recordVerb("add_ref", args.Caller, args.Destination, args.Object, 0, 0, err)
	}()
	if ids.Zone(args.Destination) == s.zone {
		stub, ok := s.LookupStub(args.Object)
		if !ok {
			return 0, canopyerr.New(canopyerr.ObjectNotFound, "no stub for requested object")
		}
		if args.Options.IsRelay() {
			return stub.CurrentCount(args.Options&marshal.OptimisticRef != 0), nil
		}
		return stub.AddRef(args.Caller, args.Options&marshal.OptimisticRef != 0)
	}
	var m marshal.Marshaller
	routeBuilding := args.Options&(marshal.BuildCallerRoute|marshal.BuildDestinationRoute) != 0
	if routeBuilding && ids.Zone(args.Caller) != s.zone {
		// Only an intermediary builds a pass-through; at the originating
		// zone the caller is local, so there is no reverse link to pair it
		// with.
		m, err = s.findOrCreatePassThrough(ctx, args.Destination, args.Caller)
	} else {
		m, err = s.RouteMarshaller(ctx, args.Destination, args.Caller)
	}
	if err != nil {
		return 0, err
	}
	return m.AddRef(ctx, args)
}

// HandleRelease is the routing counterpart of HandleAddRef. A
// zone_terminating release drops every contribution the dying caller
// zone has on the target object in one step, and never fails: the
// sender is crashing and cannot act on an error anyway.
func (s *Service) HandleRelease(ctx context.Context, args marshal.ReleaseArgs) (err error) {
	defer func() {
		s.recordVerb("release", args.Caller, args.Destination, args.Object, 0, 0, err)
	}()
	if ids.Zone(args.Destination) == s.zone {
		stub, ok := s.LookupStub(args.Object)
		if args.Options == marshal.ReleaseZoneTerminating {
			if ok {
				stub.ForceReleaseCaller(args.Caller)
			}
			return nil
		}
		if !ok {
			return canopyerr.New(canopyerr.ObjectNotFound, "no stub for requested object")
		}
		return stub.Release(args.Caller, args.Options == marshal.ReleaseOptimistic)
	}
	m, err := s.RouteMarshaller(ctx, args.Destination, args.Caller)
	if err != nil {
		return err
	}
	return m.Release(ctx, args)
}

// HandleTryCast is the routing counterpart for the try_cast verb.
func (s *Service) HandleTryCast(ctx context.Context, args marshal.TryCastArgs) (err error) {
	defer func() {
		s.recordVerb("try_cast", args.Caller, args.Destination, args.Object, args.Interface, 0, err)
	}()
	if ids.Zone(args.Destination) == s.zone {
		stub, ok := s.LookupStub(args.Object)
		if !ok {
			return canopyerr.New(canopyerr.ObjectNotFound, "no stub for requested object")
		}
		if !stub.TryCast(args.Interface) {
			return canopyerr.New(canopyerr.InterfaceNotSupported, "object does not implement the requested interface")
		}
		return nil
	}
	m, err := s.RouteMarshaller(ctx, args.Destination, args.Caller)
	if err != nil {
		return err
	}
	return m.TryCast(ctx, args)
}

// HandleObjectReleased delivers an inbound object_released notification
// to this zone's locally subscribed observers, typically an ObjectProxy
// holder that wants to know its remote referent was just destroyed.
func (s *Service) HandleObjectReleased(ctx context.Context, destination ids.DestinationZone, object ids.Object) {
	defer s.recordVerb("object_released", 0, destination, object, 0, 0, nil)
	s.fireObjectReleased(destination, object)
}

// HandleTransportDown runs the ungraceful-failure cascade: every service
// proxy toward the failed zone is marked non-operational, every object
// stub force-releases that zone's contributions, and every pass-through
// touching the failed zone cascades and self-destructs. Idempotent: a
// Cell already emptied or a pass-through already gone from the registry
// is simply skipped.
func (s *Service) HandleTransportDown(ctx context.Context, failedZone ids.KnownDirectionZone) {
	defer s.recordVerb("transport_down", ids.CallerZone(failedZone), 0, 0, 0, 0, nil)
	failed := failedZone.ToZone()
	if cell, ok := s.GetTransport(failed); ok {
		cell.Reset()
	}

	s.mu.RLock()
	stubs := make([]*proxystub.ObjectStub, 0, len(s.stubs))
	for _, st := range s.stubs {
		stubs = append(stubs, st)
	}
	var affected []*PassThrough
	for key, pt := range s.passThroughs {
		if ids.Zone(key.Destination) == failed || ids.Zone(key.Caller) == failed {
			affected = append(affected, pt)
		}
	}
	s.mu.RUnlock()

	caller := ids.CallerZone(failed)
	for _, st := range stubs {
		st.ForceReleaseCaller(caller)
	}
	for _, pt := range affected {
		pt.Cascade(ctx, failed)
	}
}

// ObtainObjectProxy returns (creating and counting if needed) the single
// ObjectProxy for (destination, object), with caller identifying this
// zone on the wire. Exactly one proxy backs any local fan-out onto the
// same remote object.
func (s *Service) ObtainObjectProxy(ctx context.Context, destination ids.DestinationZone, object ids.Object) (*proxystub.ObjectProxy, error) {
	key := proxyKey{destination: destination, object: object}

	s.mu.Lock()
	if p, ok := s.proxies[key]; ok {
		s.mu.Unlock()
		return p, nil
	}
	s.mu.Unlock()

	sp := s.ServiceProxyFor(destination)
	proxy, err := proxystub.NewObjectProxy(ctx, s.zone, destination, object, ids.CallerZone(s.zone), sp, s.sink)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if existing, ok := s.proxies[key]; ok {
		// Lost a construction race; drop our extra proxy's remote unit and
		// hand back the winner.
		s.mu.Unlock()
		proxy.ControlBlock().DropStrong()
		return existing, nil
	}
	s.proxies[key] = proxy
	s.mu.Unlock()
	s.incOutboundProxies()
	return proxy, nil
}

// ReleaseObjectProxy drops this service's strong handle to the proxy for
// (destination, object); when its last reference drops, the proxy
// destructs (sending the matching release) and the outbound-proxy counter
// decrements.
func (s *Service) ReleaseObjectProxy(destination ids.DestinationZone, object ids.Object, handle refcount.Handle) {
	key := proxyKey{destination: destination, object: object}
	handle.Drop()
	if !handle.IsEmpty() && handle.Referent().ControlBlock().Destroyed() {
		s.mu.Lock()
		delete(s.proxies, key)
		s.mu.Unlock()
		s.decOutboundProxies()
	}
}

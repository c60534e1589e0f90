package service

import (
	"context"

	"github.com/dev-feyisayo/canopy/engine/canopyerr"
	"github.com/dev-feyisayo/canopy/engine/ids"
	"github.com/dev-feyisayo/canopy/engine/proxystub"
	"github.com/dev-feyisayo/canopy/engine/refcount"
	"github.com/dev-feyisayo/canopy/engine/transport"
	"github.com/dev-feyisayo/canopy/engine/wire"
)

// ConnectToZone performs the initiator side of the two-phase connection
// handshake over t, registers t as the transport for the zone assigned by
// the acceptor, and returns the bootstrap strong handle the acceptor
// exposed. callerObject is the initiator's own bootstrap object, or 0 if
// it has none to offer yet.
func (s *Service) ConnectToZone(ctx context.Context, t transport.Transport, callerObject ids.Object) (refcount.Handle, ids.Zone, error) {
	hs, ok := t.(transport.Handshaker)
	if !ok {
		return refcount.Empty(), 0, canopyerr.New(canopyerr.InvalidData, "transport does not support the connection handshake")
	}

	req := wire.InitChannelRequest{
		CallerZoneID:      uint64(s.zone),
		CallerObjectID:    uint64(callerObject),
		DestinationZoneID: 0,
		AdjacentZoneID:    uint64(t.Adjacent()),
	}
	resp, err := hs.InitChannel(ctx, req)
	if err != nil {
		return refcount.Empty(), 0, err
	}
	if resp.Err != int32(canopyerr.OK) {
		return refcount.Empty(), 0, canopyerr.New(canopyerr.Kind(resp.Err), "remote zone rejected the connection handshake")
	}

	destZone := ids.Zone(resp.DestinationZoneID)
	s.AddTransport(destZone, t)

	if resp.DestinationObjectID == 0 {
		return refcount.Empty(), destZone, nil
	}
	proxy, err := s.ObtainObjectProxy(ctx, ids.DestinationZone(destZone), ids.Object(resp.DestinationObjectID))
	if err != nil {
		return refcount.Empty(), destZone, err
	}
	return refcount.NewStrong(proxy), destZone, nil
}

// BootstrapSetup fabricates the first object a zone exposes to a newly
// attached peer during AttachRemoteZone. It returns the
// implementation identity (for idempotent re-registration), its
// dispatchers, and a destructor.
type BootstrapSetup func(s *Service) (impl any, dispatchers []proxystub.InterfaceDispatcher, destroy func())

// AttachRemoteZone performs the acceptor side of the handshake: assigns a
// zone ID if the caller left one unspecified, runs setup to fabricate the
// bootstrap object, registers t as the transport toward the caller, and
// returns the response to send back.
func (s *Service) AttachRemoteZone(ctx context.Context, t transport.Transport, req wire.InitChannelRequest, setup BootstrapSetup) wire.InitChannelResponse {
	callerZone := ids.Zone(req.CallerZoneID)
	if callerZone == 0 {
		return wire.InitChannelResponse{Err: int32(canopyerr.InvalidData)}
	}

	s.AddTransport(callerZone, t)

	var objectID ids.Object
	if setup != nil {
		impl, dispatchers, destroy := setup(s)
		stub := s.RegisterLocalObject(impl, dispatchers, destroy)
		objectID = stub.Object()
	}

	return wire.InitChannelResponse{
		Err:                 int32(canopyerr.OK),
		DestinationZoneID:   uint64(s.zone),
		DestinationObjectID: uint64(objectID),
		CallerZoneID:        req.CallerZoneID,
	}
}

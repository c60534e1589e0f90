package proxystub

import (
	"context"
	"sync"

	"github.com/dev-feyisayo/canopy/engine/canopyerr"
	"github.com/dev-feyisayo/canopy/engine/ids"
	"github.com/dev-feyisayo/canopy/engine/marshal"
	"github.com/dev-feyisayo/canopy/engine/refcount"
	"github.com/dev-feyisayo/canopy/engine/telemetry"
	"github.com/dev-feyisayo/canopy/engine/wire"
)

// ObjectProxy is the local representative of a remote object, keyed by
// (destination zone, object ID). Regardless of how many
// local handles end up pointing at the same remote object, exactly one
// ObjectProxy backs all of them, and exactly one remote add_ref unit is
// held on their behalf — local fan-out is absorbed by the proxy's own
// control block.
type ObjectProxy struct {
	destination ids.DestinationZone
	object      ids.Object
	caller      ids.CallerZone // this zone's ID, as seen by the destination
	sp          marshal.Marshaller
	cb          *refcount.ControlBlock
	sink        telemetry.Sink

	mu          sync.Mutex
	typedCache  map[ids.InterfaceOrdinal]any
	optimistic  int32 // local count of optimistic handles sharing this proxy
}

// ControlBlock implements refcount.Referent.
func (p *ObjectProxy) ControlBlock() *refcount.ControlBlock { return p.cb }

// Destination reports the remote zone this proxy addresses.
func (p *ObjectProxy) Destination() ids.DestinationZone { return p.destination }

// Object reports the remote object ID this proxy addresses.
func (p *ObjectProxy) Object() ids.Object { return p.object }

// NewObjectProxy constructs a proxy and issues the one add_ref that backs
// it for as long as any local handle (strong or derived) references it.
// sink.ProxyCreated is fired on success; on add_ref failure the proxy is
// not constructed.
func NewObjectProxy(ctx context.Context, localZone ids.Zone, destination ids.DestinationZone, object ids.Object, caller ids.CallerZone, sp marshal.Marshaller, sink telemetry.Sink) (*ObjectProxy, error) {
	if sink == nil {
		sink = telemetry.NoopSink{}
	}
	if _, err := sp.AddRef(ctx, marshal.AddRefArgs{Destination: destination, Object: object, Caller: caller}); err != nil {
		return nil, err
	}
	p := &ObjectProxy{
		destination: destination,
		object:      object,
		caller:      caller,
		sp:          sp,
		sink:        sink,
		typedCache:  make(map[ids.InterfaceOrdinal]any),
	}
	p.cb = refcount.NewControlBlock(func() {
		bg := context.Background()
		_ = sp.Release(bg, marshal.ReleaseArgs{Destination: destination, Object: object, Caller: caller, Options: marshal.ReleaseNormal})
		sink.ProxyDeleted(localZone, destination, object)
	})
	sink.ProxyCreated(localZone, destination, object)
	return p, nil
}

// Reencode re-encodes a call's arguments with a different codec, used by
// Invoke's fallback after an incompatible-serialisation response. The
// typed proxy that encoded the original payload supplies it; a nil
// Reencode disables the fallback.
type Reencode func(tag wire.CodecTag) ([]byte, error)

// Invoke sends one method call on the remote object through the service
// proxy and returns the encoded result. It implements the sender side of
// version and codec negotiation:
//
//   - invalid-version: if the response's back-channel advertises the
//     receiver's supported range and it intersects this build's, retry
//     exactly once at the maximum common version;
//   - incompatible-serialisation: re-encode the arguments as JSON (the
//     universal fallback) and retry, when reencode is provided.
//
// Any other non-OK response surfaces as an error of the matching kind.
func (p *ObjectProxy) Invoke(ctx context.Context, iface ids.InterfaceOrdinal, method ids.Method, codec wire.CodecTag, data []byte, reencode Reencode) ([]byte, error) {
	req := &wire.Request{
		Codec:             codec,
		Version:           wire.CurrentVersion,
		Tag:               wire.NewCorrelationID(),
		CallerZoneID:      uint64(p.caller),
		DestinationZoneID: uint64(p.destination),
		ObjectID:          uint64(p.object),
		InterfaceID:       uint64(iface),
		MethodID:          uint64(method),
		Data:              data,
	}
	resp, err := p.sp.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	if canopyerr.Kind(resp.Err) == canopyerr.InvalidVersion {
		entry, ok := resp.BackChannel.Find(wire.TagVersionRange)
		if !ok {
			return nil, canopyerr.New(canopyerr.InvalidVersion, "receiver rejected the protocol version without advertising its range")
		}
		peer, ok := wire.ParseVersionRange(entry)
		if !ok {
			return nil, canopyerr.New(canopyerr.InvalidVersion, "receiver advertised a malformed version range")
		}
		retry, ok := wire.RetryVersion(wire.SenderRange(), peer)
		if !ok {
			return nil, canopyerr.New(canopyerr.InvalidVersion, "no common protocol version with receiver")
		}
		req.Version = retry
		req.Tag = wire.NewCorrelationID()
		if resp, err = p.sp.Send(ctx, req); err != nil {
			return nil, err
		}
	}

	if canopyerr.Kind(resp.Err) == canopyerr.IncompatibleSerialisation && reencode != nil && req.Codec != wire.Fallback {
		fallback, encErr := reencode(wire.Fallback)
		if encErr != nil {
			return nil, encErr
		}
		req.Codec = wire.Fallback
		req.Data = fallback
		req.Tag = wire.NewCorrelationID()
		if resp, err = p.sp.Send(ctx, req); err != nil {
			return nil, err
		}
	}

	if resp.Err != int32(canopyerr.OK) {
		return nil, canopyerr.New(canopyerr.Kind(resp.Err), "remote call failed")
	}
	return resp.Data, nil
}

// TypedProxy returns the cached typed client for iface, constructing it
// with build on first use. The typed client itself is IDL-generated
// (external); the proxy only owns the cache.
func (p *ObjectProxy) TypedProxy(iface ids.InterfaceOrdinal, build func() any) any {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.typedCache[iface]; ok {
		return v
	}
	v := build()
	p.typedCache[iface] = v
	return v
}

// CloneOptimistic produces a new optimistic handle to this proxy's
// referent. The first optimistic handle established on a given proxy
// triggers one remote optimistic add_ref; subsequent clones are purely
// local bookkeeping: a proxy only needs one remote unit backing any
// number of local optimistic handles.
func (p *ObjectProxy) CloneOptimistic(ctx context.Context) (refcount.Handle, error) {
	p.mu.Lock()
	before := p.optimistic
	p.optimistic++
	p.mu.Unlock()

	p.cb.CloneOptimistic()
	if before == 0 {
		if _, err := p.sp.AddRef(ctx, marshal.AddRefArgs{Destination: p.destination, Object: p.object, Caller: p.caller, Options: marshal.OptimisticRef}); err != nil {
			p.mu.Lock()
			p.optimistic--
			p.mu.Unlock()
			p.cb.DropOptimistic()
			return refcount.Empty(), err
		}
	}
	return refcount.NewHandle(refcount.Optimistic, p), nil
}

// DropOptimistic releases one local optimistic handle. When the last one
// drops, the matching remote optimistic unit is released.
func (p *ObjectProxy) DropOptimistic(ctx context.Context) {
	p.cb.DropOptimistic()
	p.mu.Lock()
	p.optimistic--
	after := p.optimistic
	p.mu.Unlock()
	if after == 0 {
		_ = p.sp.Release(ctx, marshal.ReleaseArgs{Destination: p.destination, Object: p.object, Caller: p.caller, Options: marshal.ReleaseOptimistic})
	}
}

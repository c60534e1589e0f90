// Package marshal defines the six-verb marshaller contract that every
// transport and pass-through implements, plus the options bitsets for
// add_ref and release.
package marshal

import (
	"context"

	"github.com/dev-feyisayo/canopy/engine/ids"
	"github.com/dev-feyisayo/canopy/engine/wire"
)

// AddRefOption is the bitset carried by an add_ref call.
type AddRefOption uint8

const (
	// BuildCallerRoute instructs the transport to ensure a pass-through
	// exists back to the caller.
	BuildCallerRoute AddRefOption = 1 << iota
	// BuildDestinationRoute instructs the transport to ensure a
	// pass-through exists to the destination.
	BuildDestinationRoute
	// OptimisticRef marks the reference being added as optimistic rather
	// than shared.
	OptimisticRef
)

// IsRelay reports whether both route-building bits are set: a relay
// add_ref performs route-building only and must not alter any count in
// the intermediary.
func (o AddRefOption) IsRelay() bool {
	return o&BuildCallerRoute != 0 && o&BuildDestinationRoute != 0
}

// IsNormalCountChange reports the exclusive-or of the two route bits:
// "this is a normal count-altering add_ref".
func (o AddRefOption) IsNormalCountChange() bool {
	hasCaller := o&BuildCallerRoute != 0
	hasDest := o&BuildDestinationRoute != 0
	return hasCaller != hasDest
}

// ReleaseOption selects which count a release decrements, or signals a
// best-effort crash-path release.
type ReleaseOption uint8

const (
	// ReleaseNormal decrements the shared count. Default.
	ReleaseNormal ReleaseOption = iota
	// ReleaseOptimistic decrements the optimistic count.
	ReleaseOptimistic
	// ReleaseZoneTerminating is the best-effort release used by a zone
	// that is crashing and cannot issue the usual per-object releases.
	ReleaseZoneTerminating
)

// AddRefArgs addresses an add_ref call.
type AddRefArgs struct {
	Destination ids.DestinationZone
	Object      ids.Object
	Caller      ids.CallerZone
	Options     AddRefOption
}

// ReleaseArgs addresses a release call.
type ReleaseArgs struct {
	Destination ids.DestinationZone
	Object      ids.Object
	Caller      ids.CallerZone
	Options     ReleaseOption
}

// TryCastArgs addresses a try_cast call.
type TryCastArgs struct {
	Destination ids.DestinationZone
	Caller      ids.CallerZone
	Object      ids.Object
	Interface   ids.InterfaceOrdinal
}

// Marshaller is the six-verb contract every transport and pass-through
// implements. send, try_cast, add_ref, and release return an
// error; post, object_released, and transport_down are fire-and-forget and
// cannot fail from the caller's point of view.
//
// In the cooperative build these calls may suspend at the boundary with
// the underlying transport; in the synchronous build they may block.
// Implementations choose which by how they implement this interface —
// the contract itself is identical either way.
type Marshaller interface {
	// Send performs a request/response RPC.
	Send(ctx context.Context, req *wire.Request) (*wire.Response, error)
	// Post performs a fire-and-forget RPC.
	Post(ctx context.Context, req *wire.Request)
	// TryCast asks the stub whether an object implements interfaceID.
	TryCast(ctx context.Context, args TryCastArgs) error
	// AddRef increments a remote shared or optimistic count, optionally
	// requesting route-building as a side effect. Returns the new count.
	AddRef(ctx context.Context, args AddRefArgs) (int32, error)
	// Release decrements the same count addressed by AddRef.
	Release(ctx context.Context, args ReleaseArgs) error
	// ObjectReleased notifies optimistic holders that an object has just
	// been destroyed. Fire-and-forget.
	ObjectReleased(ctx context.Context, destination ids.DestinationZone, object ids.Object)
	// TransportDown notifies that the adjacent transport toward failedZone
	// has failed ungracefully. The zone is a KnownDirectionZone: by the
	// time this verb fires, which side of the link died is already fixed.
	// Fire-and-forget.
	TransportDown(ctx context.Context, failedZone ids.KnownDirectionZone)
}

// Package transport defines the Transport abstraction and the
// thread-safe resettable pointer cell used to break the parent/child and
// pass-through reference cycles without leaking or invalidating
// in-flight calls.
//
// Concrete transports (in-process, TCP, a lock-free queue, an enclave
// bridge, gRPC) are external collaborators; this package only defines the
// contract they implement and the primitives the core needs to hold them
// safely. See transport/grpc and transport/inmemory for concrete
// implementations.
package transport

import (
	"context"
	"sync"

	"github.com/dev-feyisayo/canopy/engine/ids"
	"github.com/dev-feyisayo/canopy/engine/marshal"
	"github.com/dev-feyisayo/canopy/engine/telemetry"
	"github.com/dev-feyisayo/canopy/engine/wire"
)

// Transport is a bidirectional channel between a local zone and one
// adjacent zone. It implements the six-verb marshaller contract for the
// outbound direction, plus the status and identity the core needs to
// route around it.
type Transport interface {
	marshal.Marshaller

	// Adjacent returns the zone on the other end of this transport.
	Adjacent() ids.Zone
	// Status reports the current connection status.
	Status() telemetry.TransportStatus
	// Close tears down the transport's underlying connection. Idempotent.
	Close()
}

// Handshaker is implemented by transports that perform the two-phase
// connection handshake before regular traffic flows.
// Not every transport needs one (a parent zone that constructs a child's
// transport in-process may wire the registry directly), so it is kept as
// a separate, optional interface rather than folded into Transport.
type Handshaker interface {
	InitChannel(ctx context.Context, req wire.InitChannelRequest) (wire.InitChannelResponse, error)
}

// Cell is a resettable holder of a Transport, safe for concurrent Get
// and Set/Reset: a shared, resettable cell whose readers obtain a
// stack-local strong reference that survives concurrent reset.
//
// In a garbage-collected runtime the "strong reference" property is just
// an ordinary local variable: once Get returns a Transport value, that
// value's underlying object cannot be collected while the caller holds
// it, regardless of what happens to the Cell afterwards. Cell's only job
// is therefore to make the read-or-replace operation itself race-free, so
// that the disconnection protocol can clear a parent/child or
// pass-through back-link without a reader observing a half-written
// pointer.
type Cell struct {
	mu sync.RWMutex
	t  Transport
}

// NewCell returns a Cell holding t (which may be nil).
func NewCell(t Transport) *Cell {
	return &Cell{t: t}
}

// Get returns the current Transport and whether the cell was non-empty.
// The returned value remains valid to use for the lifetime of the calling
// stack frame even if another goroutine concurrently calls Reset.
func (c *Cell) Get() (Transport, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.t, c.t != nil
}

// Set replaces the held Transport.
func (c *Cell) Set(t Transport) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// Reset empties the cell, breaking whatever reference cycle it was part
// of. Readers that already obtained a value via Get are unaffected.
func (c *Cell) Reset() {
	c.Set(nil)
}

// Empty reports whether the cell currently holds nothing.
func (c *Cell) Empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.t == nil
}

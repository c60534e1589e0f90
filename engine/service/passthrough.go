package service

import (
	"context"
	"sync"

	"github.com/dev-feyisayo/canopy/engine/canopyerr"
	"github.com/dev-feyisayo/canopy/engine/ids"
	"github.com/dev-feyisayo/canopy/engine/marshal"
	"github.com/dev-feyisayo/canopy/engine/transport"
	"github.com/dev-feyisayo/canopy/engine/wire"
)

// PassThrough is the in-transit routing node for a non-adjacent
// (destination, caller) pair: it lives in an intermediary zone and
// forwards every verb toward the real destination while holding the
// forward and reverse transport Cells for as long as it is routing. It
// also keeps its intermediary *Service reachable, which in Go is all
// that is needed to keep the intermediary alive while traffic is in
// flight; no separate refcounting of the Service itself is required.
type PassThrough struct {
	intermediary *Service
	destination  ids.DestinationZone
	caller       ids.CallerZone

	forward *transport.Cell // toward the destination zone
	reverse *transport.Cell // toward the caller zone

	mu         sync.Mutex
	shared     int32
	optimistic int32
	destroyed  bool
}

var _ marshal.Marshaller = (*PassThrough)(nil)

// orderAscendingZones returns a and b ordered so the lower zone ID comes
// first. A pass-through that needs both adjacent transports always
// acquires them in ascending zone-ID order, which is what rules out the
// lock-cycle deadlock between two pass-throughs crossing the same pair
// of zones. Kept as a pure function so the ordering rule itself is
// directly testable without exercising real locks.
func orderAscendingZones(a, b ids.Zone) (lo, hi ids.Zone) {
	if a <= b {
		return a, b
	}
	return b, a
}

// zoneLock returns (creating if needed) the per-zone mutex used to
// serialise pass-through birth/teardown touching that zone's adjacent
// transport.
func (s *Service) zoneLock(zone ids.Zone) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.zoneLocks[zone]
	if !ok {
		m = &sync.Mutex{}
		s.zoneLocks[zone] = m
	}
	return m
}

// lockZonesAscending locks the two zones' per-zone mutexes in ascending
// zone-ID order and returns a matching unlock function. This is the only
// place in the runtime that holds two of these locks at once.
func (s *Service) lockZonesAscending(a, b ids.Zone) (unlock func()) {
	lo, hi := orderAscendingZones(a, b)
	loLock, hiLock := s.zoneLock(lo), s.zoneLock(hi)
	if lo == hi {
		loLock.Lock()
		return loLock.Unlock
	}
	loLock.Lock()
	hiLock.Lock()
	return func() {
		hiLock.Unlock()
		loLock.Unlock()
	}
}

// findOrCreatePassThrough resolves the relay case of routing: at most
// one pass-through per (destination, caller) pair, and one is born only
// once both the forward and the reverse link are available. Creation is
// serialised by the two per-zone locks, taken in ascending zone-ID order,
// and the registry is checked again once they are held, so there is no
// "loser" to roll back: uniqueness and both-or-neither hold by
// construction, not by an optimistic retry.
func (s *Service) findOrCreatePassThrough(ctx context.Context, destination ids.DestinationZone, caller ids.CallerZone) (*PassThrough, error) {
	key := ids.ZonePair{Destination: destination, Caller: caller}

	s.mu.Lock()
	if pt, ok := s.passThroughs[key]; ok {
		s.mu.Unlock()
		return pt, nil
	}
	s.mu.Unlock()

	unlock := s.lockZonesAscending(ids.Zone(destination), ids.Zone(caller))
	defer unlock()

	// Re-check under the zone locks: another goroutine may have finished
	// birth between the unlock above and acquiring these locks.
	s.mu.Lock()
	if pt, ok := s.passThroughs[key]; ok {
		s.mu.Unlock()
		return pt, nil
	}
	s.mu.Unlock()

	forwardCell, ok := s.GetTransport(ids.Zone(destination))
	if !ok {
		return nil, canopyerr.New(canopyerr.ZoneNotFound, "no route toward destination zone")
	}
	reverseCell, ok := s.GetTransport(ids.Zone(caller))
	if !ok {
		// Both-or-neither: the forward link alone is not enough to birth a
		// pass-through; nothing has been registered yet, so there is
		// nothing to roll back.
		return nil, canopyerr.New(canopyerr.ZoneNotFound, "no route back toward caller zone")
	}

	pt := &PassThrough{
		intermediary: s,
		destination:  destination,
		caller:       caller,
		forward:      forwardCell,
		reverse:      reverseCell,
	}
	s.mu.Lock()
	s.passThroughs[key] = pt
	s.mu.Unlock()
	s.incPassThroughs()
	s.sink.PassThroughCreated(s.zone, destination, caller)
	return pt, nil
}

func (p *PassThrough) forwardTransport() (transport.Transport, error) {
	t, ok := p.forward.Get()
	if !ok {
		return nil, canopyerr.New(canopyerr.TransportError, "pass-through has no live forward transport")
	}
	return t, nil
}

func (p *PassThrough) teardownIfDry() {
	p.mu.Lock()
	if p.destroyed || p.shared != 0 || p.optimistic != 0 {
		p.mu.Unlock()
		return
	}
	p.destroyed = true
	p.mu.Unlock()

	key := ids.ZonePair{Destination: p.destination, Caller: p.caller}
	p.intermediary.mu.Lock()
	delete(p.intermediary.passThroughs, key)
	p.intermediary.mu.Unlock()
	p.intermediary.decPassThroughs()
	p.intermediary.sink.PassThroughDestroyed(p.intermediary.zone, p.destination, p.caller)
}

// Cascade forwards a transport_down notification to the opposite
// endpoint and unconditionally self-destructs. failed identifies which
// endpoint went down; with one side gone the pass-through can never
// route again, so nothing is left half-wired.
func (p *PassThrough) Cascade(ctx context.Context, failed ids.Zone) {
	var opposite *transport.Cell
	switch failed {
	case ids.Zone(p.destination):
		opposite = p.reverse
	case ids.Zone(p.caller):
		opposite = p.forward
	default:
		return
	}
	if t, ok := opposite.Get(); ok {
		t.TransportDown(ctx, failed.AsKnownDirection())
	}

	p.mu.Lock()
	already := p.destroyed
	p.destroyed = true
	p.mu.Unlock()
	if already {
		return
	}
	key := ids.ZonePair{Destination: p.destination, Caller: p.caller}
	p.intermediary.mu.Lock()
	delete(p.intermediary.passThroughs, key)
	p.intermediary.mu.Unlock()
	p.intermediary.decPassThroughs()
	p.intermediary.sink.PassThroughDestroyed(p.intermediary.zone, p.destination, p.caller)
}

// Send implements marshal.Marshaller by forwarding toward the
// destination zone.
func (p *PassThrough) Send(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	t, err := p.forwardTransport()
	if err != nil {
		return nil, err
	}
	return t.Send(ctx, req)
}

// Post implements marshal.Marshaller by forwarding toward the destination
// zone.
func (p *PassThrough) Post(ctx context.Context, req *wire.Request) {
	if t, err := p.forwardTransport(); err == nil {
		t.Post(ctx, req)
	}
}

// TryCast implements marshal.Marshaller by forwarding toward the
// destination zone.
func (p *PassThrough) TryCast(ctx context.Context, args marshal.TryCastArgs) error {
	t, err := p.forwardTransport()
	if err != nil {
		return err
	}
	return t.TryCast(ctx, args)
}

// AddRef applies the pass-through accounting rule: a relay add_ref
// (both route bits set) alters no count here — reaching an
// already-birthed pass-through is the route it asked for — and is still
// forwarded so every further hop toward the destination builds its own
// route too. A normal (XOR) add_ref adjusts this pass-through's own
// count and is also forwarded, so the real destination's stub sees the
// unit.
func (p *PassThrough) AddRef(ctx context.Context, args marshal.AddRefArgs) (int32, error) {
	if args.Options.IsRelay() {
		t, err := p.forwardTransport()
		if err != nil {
			return 0, err
		}
		return t.AddRef(ctx, args)
	}
	p.adjustCount(args.Options&marshal.OptimisticRef != 0, 1)
	t, err := p.forwardTransport()
	if err != nil {
		p.adjustCount(args.Options&marshal.OptimisticRef != 0, -1)
		p.teardownIfDry()
		return 0, err
	}
	return t.AddRef(ctx, args)
}

// Release mirrors AddRef's accounting: a normal or optimistic release
// decrements this pass-through's own count,
// forwards the release, and tears the pass-through down once both counts
// are zero. A zone_terminating release only forwards — the failing zone's
// contribution to this pass-through is reclaimed by the transport_down
// cascade, not by per-unit accounting.
func (p *PassThrough) Release(ctx context.Context, args marshal.ReleaseArgs) error {
	if args.Options != marshal.ReleaseZoneTerminating {
		optimistic := args.Options == marshal.ReleaseOptimistic
		p.adjustCount(optimistic, -1)
		defer p.teardownIfDry()
	}

	t, err := p.forwardTransport()
	if err != nil {
		return err
	}
	return t.Release(ctx, args)
}

func (p *PassThrough) adjustCount(optimistic bool, delta int32) {
	p.mu.Lock()
	if optimistic {
		p.optimistic += delta
	} else {
		p.shared += delta
	}
	p.mu.Unlock()
}

// ObjectReleased implements marshal.Marshaller by forwarding toward the
// destination zone.
func (p *PassThrough) ObjectReleased(ctx context.Context, destination ids.DestinationZone, object ids.Object) {
	if t, err := p.forwardTransport(); err == nil {
		t.ObjectReleased(ctx, destination, object)
	}
}

// TransportDown implements marshal.Marshaller; ordinary receipt of this
// verb (as opposed to Cascade, which this PassThrough's owning Service
// invokes directly) simply forwards it onward.
func (p *PassThrough) TransportDown(ctx context.Context, failedZone ids.KnownDirectionZone) {
	if t, err := p.forwardTransport(); err == nil {
		t.TransportDown(ctx, failedZone)
	}
}

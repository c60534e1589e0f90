// Package ids provides the typed identifier values used throughout the
// Canopy runtime: zones, objects, interfaces, methods, and the caller/
// destination zone flavours used on the wire.
//
// Every identifier is a non-zero 64-bit integer. Zero is the sentinel
// "unset" value. Distinct Go types prevent accidentally passing a zone ID
// where an object ID (or a caller-zone ID where a destination-zone ID) is
// expected; conversions between zone flavours are explicit.
package ids

import (
	"fmt"
	"sync/atomic"
)

// Zone identifies an execution context. Globally unique and never reused.
type Zone uint64

// CallerZone is the zone that originated an RPC, as seen by the receiver.
type CallerZone uint64

// DestinationZone is the zone an RPC is addressed to.
type DestinationZone uint64

// KnownDirectionZone disambiguates a zone ID when the direction (caller or
// destination) is already fixed by context, e.g. the "other side" of a
// transport in routing code.
type KnownDirectionZone uint64

// Object identifies an object, unique within its owning zone.
type Object uint64

// InterfaceOrdinal is the 64-bit fingerprint identifying a versioned
// interface contract (see wire.Fingerprint).
type InterfaceOrdinal uint64

// Method is the positional ordinal of a method within its interface.
type Method uint64

// Unset is the sentinel value for every ID type: zero.
const Unset = 0

// Valid reports whether z is non-zero.
func (z Zone) Valid() bool { return z != 0 }

// Valid reports whether z is non-zero.
func (z CallerZone) Valid() bool { return z != 0 }

// Valid reports whether z is non-zero.
func (z DestinationZone) Valid() bool { return z != 0 }

// Valid reports whether z is non-zero.
func (z KnownDirectionZone) Valid() bool { return z != 0 }

// Valid reports whether o is non-zero.
func (o Object) Valid() bool { return o != 0 }

// Valid reports whether i is non-zero.
func (i InterfaceOrdinal) Valid() bool { return i != 0 }

// AsCaller converts a Zone to a CallerZone for outbound marshalling.
func (z Zone) AsCaller() CallerZone { return CallerZone(z) }

// AsDestination converts a Zone to a DestinationZone for outbound marshalling.
func (z Zone) AsDestination() DestinationZone { return DestinationZone(z) }

// ToZone converts a CallerZone back to a plain Zone, e.g. once it has been
// resolved to a local registry key.
func (z CallerZone) ToZone() Zone { return Zone(z) }

// ToZone converts a DestinationZone back to a plain Zone.
func (z DestinationZone) ToZone() Zone { return Zone(z) }

// AsKnownDirection converts a Zone to a KnownDirectionZone for call sites
// where the direction is already fixed by context, e.g. naming the failed
// adjacent side in a transport_down.
func (z Zone) AsKnownDirection() KnownDirectionZone { return KnownDirectionZone(z) }

// ToZone converts a KnownDirectionZone back to a plain Zone for registry
// lookups.
func (z KnownDirectionZone) ToZone() Zone { return Zone(z) }

func (z Zone) String() string            { return fmt.Sprintf("zone:%d", uint64(z)) }
func (z CallerZone) String() string      { return fmt.Sprintf("caller-zone:%d", uint64(z)) }
func (z DestinationZone) String() string { return fmt.Sprintf("dest-zone:%d", uint64(z)) }
func (z KnownDirectionZone) String() string { return fmt.Sprintf("adjacent-zone:%d", uint64(z)) }
func (o Object) String() string          { return fmt.Sprintf("object:%d", uint64(o)) }
func (i InterfaceOrdinal) String() string { return fmt.Sprintf("interface:%#x", uint64(i)) }
func (m Method) String() string          { return fmt.Sprintf("method:%d", uint64(m)) }

// ZonePair is an ordered (destination, caller) pair, the routing key for a
// pass-through.
type ZonePair struct {
	Destination DestinationZone
	Caller      CallerZone
}

func (p ZonePair) String() string {
	return fmt.Sprintf("(dest=%d,caller=%d)", uint64(p.Destination), uint64(p.Caller))
}

// Generator issues fresh, process-unique non-zero 64-bit IDs. One Generator
// backs a single zone's object-ID space; a separate package-level Generator
// backs the global zone-ID space (zone IDs must be unique across the whole
// graph, not just within one zone).
type Generator struct {
	counter uint64
}

// NewGenerator returns a Generator whose first issued ID is 1.
func NewGenerator() *Generator {
	return &Generator{}
}

// Next returns the next non-zero ID. Safe for concurrent use.
func (g *Generator) Next() uint64 {
	return atomic.AddUint64(&g.counter, 1)
}

// zoneIDs backs the global zone-ID space: zone IDs must be unique across
// the whole graph, not just within one zone, so every Service in a
// process shares this single generator; zone IDs are never reused.
var zoneIDs = NewGenerator()

// NewZoneID issues a fresh, process-wide unique zone ID.
func NewZoneID() Zone {
	return Zone(zoneIDs.Next())
}

// Package wire defines Canopy's on-the-wire shapes: the RPC envelope,
// the back-channel, protocol version and codec negotiation, and
// interface fingerprinting.
//
// Types here are pure data; encoding/decoding of the codec-specific
// payload is delegated to a Codec (see codec.go), which is the contract
// the core consumes from IDL-generated code and concrete codec packages.
package wire

import "github.com/google/uuid"

// BackChannelTag identifies the purpose of a back-channel entry. Unknown
// tags MUST be ignored by receivers, so new entry kinds can be added
// without breaking older peers.
type BackChannelTag uint32

const (
	// TagRefCountAdjustment piggybacks a ref-count delta alongside a
	// response, saving a round trip for the common "return a handle"
	// pattern.
	TagRefCountAdjustment BackChannelTag = iota + 1
	// TagInterfaceQueryResult carries the result of a try_cast.
	TagInterfaceQueryResult
	// TagRouteHint carries pass-through route-building hints.
	TagRouteHint
	// TagVersionRange advertises a receiver's supported protocol version
	// range alongside an invalid-version response, so the sender can pick
	// the maximum common version for its one retry.
	TagVersionRange
)

// BackChannelEntry is one tagged auxiliary entry on a request or
// response.
type BackChannelEntry struct {
	Tag   BackChannelTag
	Bytes []byte
}

// BackChannel is the small ordered list of tagged entries carried by every
// request and response.
type BackChannel []BackChannelEntry

// Find returns the first entry with the given tag. Receivers iterate with
// Find rather than assuming positions, so unknown tags are skipped over
// rather than tripped on.
func (bc BackChannel) Find(tag BackChannelTag) (BackChannelEntry, bool) {
	for _, e := range bc {
		if e.Tag == tag {
			return e, true
		}
	}
	return BackChannelEntry{}, false
}

// Envelope is the outer correlation wrapper for every message exchanged
// between two adjacent zones.
type Envelope struct {
	MessageID   uint64
	MessageType uint64
	Data        []byte
}

// NewCorrelationID returns a fresh, process-unique 64-bit correlation tag
// for MessageID/Request.Tag, derived from a random UUID so that two
// concurrent senders on the same transport never collide even without a
// shared counter.
func NewCorrelationID() uint64 {
	id := uuid.New()
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(id[i])
	}
	if v == 0 {
		v = 1
	}
	return v
}

// Request is the payload of a `send` verb.
type Request struct {
	Codec               CodecTag
	Version             Version
	Tag                 uint64
	CallerZoneID        uint64
	DestinationZoneID   uint64
	ObjectID            uint64
	InterfaceID         uint64
	MethodID            uint64
	Data                []byte
	BackChannel         BackChannel
}

// Response is the symmetric reply to a Request.
type Response struct {
	Err         int32
	Data        []byte
	BackChannel BackChannel
}

// InitChannelRequest is the first handshake message on a transport that
// requires one.
type InitChannelRequest struct {
	CallerZoneID      uint64
	CallerObjectID    uint64
	DestinationZoneID uint64
	AdjacentZoneID    uint64
}

// InitChannelResponse is the reply to InitChannelRequest.
type InitChannelResponse struct {
	Err                 int32
	DestinationZoneID   uint64
	DestinationObjectID uint64
	CallerZoneID        uint64
}

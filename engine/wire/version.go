package wire

import (
	"encoding/binary"

	"github.com/dev-feyisayo/canopy/engine/canopyerr"
)

// Version is the monotonic 64-bit protocol version carried by every
// verb.
type Version uint64

// CurrentVersion is the version this build of Canopy speaks by default.
const CurrentVersion Version = 3

// LowestEncodableVersion is the oldest protocol version this build can
// still encode when downgrading after an invalid-version response.
const LowestEncodableVersion Version = 1

// SupportedRange describes the inclusive [Lowest, Highest] range of
// protocol versions a receiver accepts.
type SupportedRange struct {
	Lowest  Version
	Highest Version
}

// DefaultSupportedRange accepts only CurrentVersion, the common case for a
// freshly started zone; receivers that must stay compatible with older
// peers widen Lowest.
func DefaultSupportedRange() SupportedRange {
	return SupportedRange{Lowest: CurrentVersion, Highest: CurrentVersion}
}

// Supports reports whether v falls within the range.
func (r SupportedRange) Supports(v Version) bool {
	return v >= r.Lowest && v <= r.Highest
}

// Negotiate checks an incoming request version against the receiver's
// supported range. On success it returns (v, nil). On failure it returns
// (0, InvalidVersion); it knows only the local range, so choosing the
// retry version is left to the sender, which calls RetryVersion with the
// receiver's range from the back-channel.
func Negotiate(requested Version, local SupportedRange) (Version, error) {
	if local.Supports(requested) {
		return requested, nil
	}
	return 0, canopyerr.New(canopyerr.InvalidVersion, "unsupported protocol version")
}

// RetryVersion picks the version a sender should retry at after an
// InvalidVersion failure, given the receiver's supported range advertised
// out of band (e.g. via a prior handshake or a back-channel hint). Returns
// (0, false) if the ranges do not intersect at all.
func RetryVersion(senderRange, receiverRange SupportedRange) (Version, bool) {
	lo := senderRange.Lowest
	if receiverRange.Lowest > lo {
		lo = receiverRange.Lowest
	}
	hi := senderRange.Highest
	if receiverRange.Highest < hi {
		hi = receiverRange.Highest
	}
	if lo > hi {
		return 0, false
	}
	return hi, true
}

// SenderRange is the version range this build can encode when acting as a
// sender: everything from LowestEncodableVersion up to CurrentVersion.
func SenderRange() SupportedRange {
	return SupportedRange{Lowest: LowestEncodableVersion, Highest: CurrentVersion}
}

// VersionRangeEntry packs a receiver's supported range into the
// back-channel entry a sender's retry logic consumes.
func VersionRangeEntry(r SupportedRange) BackChannelEntry {
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], uint64(r.Lowest))
	binary.BigEndian.PutUint64(b[8:], uint64(r.Highest))
	return BackChannelEntry{Tag: TagVersionRange, Bytes: b[:]}
}

// ParseVersionRange is the inverse of VersionRangeEntry. Returns false for
// an entry with the wrong tag or a malformed payload.
func ParseVersionRange(e BackChannelEntry) (SupportedRange, bool) {
	if e.Tag != TagVersionRange || len(e.Bytes) != 16 {
		return SupportedRange{}, false
	}
	return SupportedRange{
		Lowest:  Version(binary.BigEndian.Uint64(e.Bytes[:8])),
		Highest: Version(binary.BigEndian.Uint64(e.Bytes[8:])),
	}, true
}

// CodecTag is the closed set of wire codecs a verb may declare.
type CodecTag uint8

const (
	// CodecDefault lets the transport pick; concrete transports document
	// what this resolves to.
	CodecDefault CodecTag = iota
	// CodecBinary is a compact binary encoding.
	CodecBinary
	// CodecCompressedBinary is CodecBinary with payload compression.
	CodecCompressedBinary
	// CodecJSON must be accepted by every implementation; it is the
	// universal fallback.
	CodecJSON
	// CodecProtocolBuffers encodes with Protocol Buffers.
	CodecProtocolBuffers
)

// Fallback is the codec every implementation must accept, used when a
// receiver reports IncompatibleSerialisation for a fancier codec.
const Fallback = CodecJSON

func (c CodecTag) String() string {
	switch c {
	case CodecDefault:
		return "default"
	case CodecBinary:
		return "binary"
	case CodecCompressedBinary:
		return "compressed_binary"
	case CodecJSON:
		return "json"
	case CodecProtocolBuffers:
		return "protocol_buffers"
	default:
		return "unknown"
	}
}

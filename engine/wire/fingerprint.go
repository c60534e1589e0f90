package wire

import (
	"crypto/sha256"
	"encoding/binary"
	"strings"
)

// Fingerprint derives the 64-bit interface ID from an interface's
// fully-qualified name and its ordered method signatures: rewriting
// comments, whitespace, or member
// order that preserves the canonical textual form must not change the
// fingerprint; changing any method signature must.
//
// Canonicalisation is the caller's job (typically IDL-generated code):
// name and each signature are trimmed and joined with a fixed separator
// before hashing, so that incidental whitespace differences collapse but
// a reordering of methods (which changes positional method IDs, and so
// changes behaviour) does change the digest.
func Fingerprint(interfaceName string, methodSignatures []string) uint64 {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(interfaceName)))
	for _, sig := range methodSignatures {
		h.Write([]byte{0}) // separator byte, cannot appear in a trimmed signature
		h.Write([]byte(strings.TrimSpace(sig)))
	}
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}

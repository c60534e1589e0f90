package wire

import (
	"testing"

	"github.com/dev-feyisayo/canopy/engine/canopyerr"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	type payload struct {
		A int
		B string
	}
	c := JSONCodec{}
	want := payload{A: 7, B: "hi"}

	data, err := c.Encode(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var got payload
	if err := c.Decode(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}
}

func TestRegistryFallsBackIsNotAutomaticButResolvable(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Resolve(CodecJSON); err != nil {
		t.Fatalf("json must always resolve: %v", err)
	}
	_, err := r.Resolve(CodecProtocolBuffers)
	if canopyerr.KindOf(err) != canopyerr.IncompatibleSerialisation {
		t.Fatalf("unregistered codec should report incompatible-serialisation, got %v", err)
	}
}

func TestNegotiateWithinRangeSucceeds(t *testing.T) {
	local := SupportedRange{Lowest: 1, Highest: 3}
	v, err := Negotiate(2, local)
	if err != nil || v != 2 {
		t.Fatalf("expected success at version 2, got v=%d err=%v", v, err)
	}
}

func TestNegotiateOutsideRangeFails(t *testing.T) {
	local := SupportedRange{Lowest: 1, Highest: 1}
	_, err := Negotiate(5, local)
	if canopyerr.KindOf(err) != canopyerr.InvalidVersion {
		t.Fatalf("expected invalid-version, got %v", err)
	}
}

func TestRetryVersionPicksMaxCommon(t *testing.T) {
	sender := SupportedRange{Lowest: 1, Highest: 5}
	receiver := SupportedRange{Lowest: 3, Highest: 4}
	v, ok := RetryVersion(sender, receiver)
	if !ok || v != 4 {
		t.Fatalf("expected retry at version 4, got v=%d ok=%v", v, ok)
	}
}

func TestRetryVersionNoIntersection(t *testing.T) {
	sender := SupportedRange{Lowest: 1, Highest: 2}
	receiver := SupportedRange{Lowest: 10, Highest: 12}
	if _, ok := RetryVersion(sender, receiver); ok {
		t.Fatalf("disjoint ranges must not produce a retry version")
	}
}

func TestVersionRangeEntryRoundTrip(t *testing.T) {
	want := SupportedRange{Lowest: 2, Highest: 7}
	bc := BackChannel{
		{Tag: 4242, Bytes: []byte("unknown tag, ignored")},
		VersionRangeEntry(want),
	}
	entry, ok := bc.Find(TagVersionRange)
	if !ok {
		t.Fatalf("expected to find the version-range entry past the unknown tag")
	}
	got, ok := ParseVersionRange(entry)
	if !ok || got != want {
		t.Fatalf("round trip mismatch: got %+v ok=%v want %+v", got, ok, want)
	}
}

func TestParseVersionRangeRejectsMalformedEntry(t *testing.T) {
	if _, ok := ParseVersionRange(BackChannelEntry{Tag: TagVersionRange, Bytes: []byte{1, 2, 3}}); ok {
		t.Fatalf("a truncated payload must not parse")
	}
	if _, ok := ParseVersionRange(VersionRangeEntry(SupportedRange{Lowest: 1, Highest: 2})); !ok {
		t.Fatalf("a well-formed entry must parse")
	}
	bad := VersionRangeEntry(SupportedRange{Lowest: 1, Highest: 2})
	bad.Tag = TagRouteHint
	if _, ok := ParseVersionRange(bad); ok {
		t.Fatalf("a wrong-tagged entry must not parse")
	}
}

func TestFingerprintStableUnderWhitespace(t *testing.T) {
	a := Fingerprint("  Calculator  ", []string{" add(i32,i32)->i32 ", "sub(i32,i32)->i32"})
	b := Fingerprint("Calculator", []string{"add(i32,i32)->i32", "sub(i32,i32)->i32"})
	if a != b {
		t.Fatalf("fingerprint should be stable under whitespace trimming: %d != %d", a, b)
	}
}

func TestFingerprintChangesWithSignature(t *testing.T) {
	a := Fingerprint("Calculator", []string{"add(i32,i32)->i32"})
	b := Fingerprint("Calculator", []string{"add(i32,i64)->i32"})
	if a == b {
		t.Fatalf("changing a method signature must change the fingerprint")
	}
}

func TestFingerprintChangesWithMethodOrder(t *testing.T) {
	a := Fingerprint("Calculator", []string{"add(i32,i32)->i32", "sub(i32,i32)->i32"})
	b := Fingerprint("Calculator", []string{"sub(i32,i32)->i32", "add(i32,i32)->i32"})
	if a == b {
		t.Fatalf("reordering methods changes positional method ids and must change the fingerprint")
	}
}

func TestNewCorrelationIDNeverZero(t *testing.T) {
	for i := 0; i < 100; i++ {
		if NewCorrelationID() == 0 {
			t.Fatalf("correlation id must never be zero")
		}
	}
}

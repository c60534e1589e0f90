package canopyerr

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
)

func TestKindOf(t *testing.T) {
	if KindOf(nil) != OK {
		t.Fatalf("nil error should map to OK")
	}
	if KindOf(errors.New("boom")) != InvalidData {
		t.Fatalf("plain error should map to InvalidData")
	}
	ce := New(ObjectGone, "x is gone")
	if KindOf(ce) != ObjectGone {
		t.Fatalf("expected ObjectGone, got %v", KindOf(ce))
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("socket reset")
	ce := Wrap(TransportError, "send failed", cause)
	if !errors.Is(ce, cause) {
		t.Fatalf("Wrap should preserve Unwrap chain to cause")
	}
	if ce.Error() == "" {
		t.Fatalf("Error() should not be empty")
	}
}

func TestErrorIsMatchesByKind(t *testing.T) {
	a := New(MethodNotFound, "no such method")
	b := New(MethodNotFound, "different message, same kind")
	c := New(InterfaceNotSupported, "nope")
	if !errors.Is(a, b) {
		t.Fatalf("errors of the same kind should match via errors.Is")
	}
	if errors.Is(a, c) {
		t.Fatalf("errors of different kinds should not match")
	}
}

func TestToGRPCStatusMapsEveryKind(t *testing.T) {
	cases := []Kind{
		InvalidData, TransportError, ObjectNotFound, ZoneNotFound,
		InterfaceNotSupported, MethodNotFound, InvalidVersion,
		IncompatibleSerialisation, OutOfMemory,
	}
	for _, kind := range cases {
		ce := New(kind, fmt.Sprintf("case for %s", kind))
		st := ToGRPCStatus(ce)
		if st.Code() == codes.Unknown {
			t.Fatalf("kind %s should not map to codes.Unknown", kind)
		}
	}
}

func TestToGRPCStatusNil(t *testing.T) {
	if ToGRPCStatus(nil).Code() != codes.OK {
		t.Fatalf("nil error should map to codes.OK")
	}
}

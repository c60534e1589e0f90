package proxystub

import (
	"context"
	"testing"

	"github.com/dev-feyisayo/canopy/engine/canopyerr"
	"github.com/dev-feyisayo/canopy/engine/ids"
	"github.com/dev-feyisayo/canopy/engine/wire"
)

type fakeDispatcher struct {
	iface ids.InterfaceOrdinal
}

func (d fakeDispatcher) InterfaceID() ids.InterfaceOrdinal { return d.iface }
func (d fakeDispatcher) Dispatch(ctx context.Context, method ids.Method, codec wire.Codec, args []byte) ([]byte, error) {
	return append([]byte("echo:"), args...), nil
}

func TestObjectStubAddRefReleaseRoundTrip(t *testing.T) {
	var destroyed bool
	s := NewObjectStub(1, 10, []InterfaceDispatcher{fakeDispatcher{1}}, nil, func() { destroyed = true })

	if n, err := s.AddRef(2, false); err != nil || n != 2 {
		t.Fatalf("AddRef = %d, %v; want 2, nil", n, err)
	}
	if err := s.Release(2, false); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if destroyed {
		t.Fatalf("object should not be destroyed while the constructor's self-reference remains")
	}
	s.DropLocalRef()
	if !destroyed {
		t.Fatalf("expected destructor to run once shared reached zero")
	}
}

func TestObjectStubAddRefFailsAfterDestroy(t *testing.T) {
	s := NewObjectStub(1, 10, nil, nil, func() {})
	s.DropLocalRef()
	if _, err := s.AddRef(2, false); canopyerr.KindOf(err) != canopyerr.ObjectNotFound {
		t.Fatalf("AddRef on destroyed stub should fail ObjectNotFound, got %v", err)
	}
}

func TestObjectStubReleaseWithoutPriorAddRefIsInvalidData(t *testing.T) {
	s := NewObjectStub(1, 10, nil, nil, func() {})
	if err := s.Release(99, false); canopyerr.KindOf(err) != canopyerr.InvalidData {
		t.Fatalf("releasing an unrecorded caller should be InvalidData, got %v", err)
	}
}

func TestObjectStubForceReleaseCaller(t *testing.T) {
	s := NewObjectStub(1, 10, nil, nil, func() {})
	s.AddRef(2, false)
	s.AddRef(2, false)
	s.AddRef(2, true)

	shared, optimistic := s.ForceReleaseCaller(2)
	if shared != 2 || optimistic != 1 {
		t.Fatalf("ForceReleaseCaller = %d,%d; want 2,1", shared, optimistic)
	}
	if len(s.CallerZones()) != 0 {
		t.Fatalf("expected no recorded caller zones after force-release, got %v", s.CallerZones())
	}
}

func TestObjectStubReleaseNotifierFiresOnlyForOptimisticHolders(t *testing.T) {
	s := NewObjectStub(1, 10, nil, nil, func() {})

	var notified []ids.CallerZone
	s.SetReleaseNotifier(func(callers []ids.CallerZone) {
		notified = append(notified, callers...)
	})

	// Zone 2 holds strong; zone 3 holds optimistic. The strong holder's
	// teardown is the normal release path and produces no
	// object_released; only zone 3 should be notified.
	if _, err := s.AddRef(2, false); err != nil {
		t.Fatalf("AddRef(2, strong): %v", err)
	}
	if _, err := s.AddRef(3, true); err != nil {
		t.Fatalf("AddRef(3, optimistic): %v", err)
	}

	if err := s.Release(2, false); err != nil {
		t.Fatalf("Release(2, strong): %v", err)
	}
	s.DropLocalRef()

	if len(notified) != 1 || notified[0] != ids.CallerZone(3) {
		t.Fatalf("notified = %v; want exactly [3]", notified)
	}
}

func TestObjectStubReleaseNotifierSilentWithNoOptimisticHolders(t *testing.T) {
	s := NewObjectStub(1, 10, nil, nil, func() {})
	fired := false
	s.SetReleaseNotifier(func(callers []ids.CallerZone) { fired = true })
	s.DropLocalRef()
	if fired {
		t.Fatalf("expected no object_released notification when no optimistic holders exist")
	}
}

func TestObjectStubTryCastAndDispatch(t *testing.T) {
	s := NewObjectStub(1, 10, []InterfaceDispatcher{fakeDispatcher{7}}, nil, func() {})
	if !s.TryCast(7) {
		t.Fatalf("expected TryCast(7) to succeed")
	}
	if s.TryCast(8) {
		t.Fatalf("expected TryCast(8) to fail")
	}
	out, err := s.Dispatch(context.Background(), 7, 0, nil, []byte("hi"))
	if err != nil || string(out) != "echo:hi" {
		t.Fatalf("Dispatch = %q, %v", out, err)
	}
	if _, err := s.Dispatch(context.Background(), 8, 0, nil, nil); canopyerr.KindOf(err) != canopyerr.InterfaceNotSupported {
		t.Fatalf("expected InterfaceNotSupported for unknown interface, got %v", err)
	}
}

package inmemory

import (
	"context"
	"sync"
	"testing"

	"github.com/dev-feyisayo/canopy/engine/canopyerr"
	"github.com/dev-feyisayo/canopy/engine/config"
	"github.com/dev-feyisayo/canopy/engine/ids"
	"github.com/dev-feyisayo/canopy/engine/marshal"
	"github.com/dev-feyisayo/canopy/engine/proxystub"
	"github.com/dev-feyisayo/canopy/engine/refcount"
	"github.com/dev-feyisayo/canopy/engine/service"
	"github.com/dev-feyisayo/canopy/engine/wire"
)

// TestThreeZoneRelay wires 1<->2<->3 and drives an optimistic reference
// from zone 1 to an object in zone 3. The route-building add_ref births
// exactly one pass-through in zone 2, and the matching release drives its
// optimistic count back to zero and tears it down.
func TestThreeZoneRelay(t *testing.T) {
	ctx := context.Background()
	z1 := service.New(ids.NewZoneID(), "z1", nil, nil)
	z2 := service.New(ids.NewZoneID(), "z2", nil, nil)
	z3 := service.New(ids.NewZoneID(), "z3", nil, nil)
	t12, _ := Pair(z1, z2)
	Pair(z2, z3)
	// Zone 1 reaches zone 3 over its physical link to zone 2.
	z1.AddTransport(z3.Zone(), t12)

	impl := &struct{}{}
	stub := z3.RegisterLocalObject(impl, nil, func() {})

	if _, err := z1.HandleAddRef(ctx, marshal.AddRefArgs{
		Destination: z3.Zone().AsDestination(),
		Object:      stub.Object(),
		Caller:      z1.Zone().AsCaller(),
		Options:     marshal.OptimisticRef | marshal.BuildDestinationRoute,
	}); err != nil {
		t.Fatalf("add_ref 1->3: %v", err)
	}

	if _, _, passThroughs := z2.Counters(); passThroughs != 1 {
		t.Fatalf("expected exactly one pass-through in the intermediary, got %d", passThroughs)
	}
	found := false
	for _, c := range stub.CallerZones() {
		if c == z1.Zone().AsCaller() {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected zone 3's stub to record zone 1's optimistic contribution")
	}

	if err := z1.HandleRelease(ctx, marshal.ReleaseArgs{
		Destination: z3.Zone().AsDestination(),
		Object:      stub.Object(),
		Caller:      z1.Zone().AsCaller(),
		Options:     marshal.ReleaseOptimistic,
	}); err != nil {
		t.Fatalf("release 1->3: %v", err)
	}

	if _, _, passThroughs := z2.Counters(); passThroughs != 0 {
		t.Fatalf("expected the pass-through to tear down once its optimistic count reached zero, got %d", passThroughs)
	}
	if len(stub.CallerZones()) != 0 {
		t.Fatalf("expected zone 3's stub to have no remaining remote contributions")
	}
}

// TestGracefulShutdownWithOptimisticHolder: when the last strong
// reference to an object drops, the hosting zone notifies the optimistic
// holder via object_released, and the optimistic handle reports
// object-gone (never object-not-found) on its next use.
func TestGracefulShutdownWithOptimisticHolder(t *testing.T) {
	ctx := context.Background()
	za := service.New(ids.NewZoneID(), "a", nil, nil)
	zb := service.New(ids.NewZoneID(), "b", nil, nil)
	zc := service.New(ids.NewZoneID(), "c", nil, nil)
	Pair(za, zb)
	Pair(zb, zc)

	impl := &struct{}{}
	stub := zb.RegisterLocalObject(impl, nil, func() {})
	object := stub.Object()
	destB := zb.Zone().AsDestination()

	proxyA, err := za.ObtainObjectProxy(ctx, destB, object)
	if err != nil {
		t.Fatalf("zone A proxy: %v", err)
	}
	proxyC, err := zc.ObtainObjectProxy(ctx, destB, object)
	if err != nil {
		t.Fatalf("zone C proxy: %v", err)
	}
	hOpt, err := proxyC.CloneOptimistic(ctx)
	if err != nil {
		t.Fatalf("CloneOptimistic: %v", err)
	}

	var mu sync.Mutex
	var notified []ids.Object
	zc.OnObjectReleasedEventSubscribe(func(dest ids.DestinationZone, obj ids.Object) {
		mu.Lock()
		notified = append(notified, obj)
		mu.Unlock()
	})

	// Zone C keeps only the optimistic handle; zone B's registration ref
	// goes next, leaving zone A's strong handle as the last one.
	zc.ReleaseObjectProxy(destB, object, refcount.NewStrong(proxyC))
	stub.DropLocalRef()
	if stub.Destroyed() {
		t.Fatalf("object must stay alive while zone A still holds a strong handle")
	}

	za.ReleaseObjectProxy(destB, object, refcount.NewStrong(proxyA))

	if !stub.Destroyed() {
		t.Fatalf("dropping the last strong handle must destroy the object")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(notified) != 1 || notified[0] != object {
		t.Fatalf("expected zone C to receive object_released for %d, got %v", object, notified)
	}
	if kind := canopyerr.KindOf(hOpt.Access()); kind != canopyerr.ObjectGone {
		t.Fatalf("optimistic handle after release must report object-gone, got %v", kind)
	}
}

// TestVersionAndCodecNegotiation: a sender at the current version
// calling a receiver that only supports older versions gets
// invalid-version, retries once at the maximum common version, and —
// when the codec is also unsupported — falls back to json and succeeds.
func TestVersionAndCodecNegotiation(t *testing.T) {
	ctx := context.Background()

	receiverCfg := config.DefaultCanopyConfig()
	receiverCfg.SupportedVersions = wire.SupportedRange{
		Lowest:  wire.CurrentVersion - 2,
		Highest: wire.CurrentVersion - 1,
	}
	parent := service.New(ids.NewZoneID(), "old-receiver", receiverCfg, nil)
	child := service.New(ids.NewZoneID(), "sender", nil, nil)
	Pair(parent, child)

	impl := &struct{}{}
	stub := parent.RegisterLocalObject(impl, []proxystub.InterfaceDispatcher{addDispatcher{}}, func() {})

	proxy, err := child.ObtainObjectProxy(ctx, parent.Zone().AsDestination(), stub.Object())
	if err != nil {
		t.Fatalf("ObtainObjectProxy: %v", err)
	}

	codec := wire.JSONCodec{}
	payload, err := codec.Encode(addArgs{A: 2, B: 3})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// Version downgrade alone: json is accepted, so one retry suffices.
	out, err := proxy.Invoke(ctx, 1, 0, wire.CodecJSON, payload, nil)
	if err != nil {
		t.Fatalf("Invoke after version downgrade: %v", err)
	}
	var sum int
	if err := codec.Decode(out, &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum != 5 {
		t.Fatalf("add(2,3) = %d, want 5", sum)
	}

	// Version downgrade plus codec fallback: binary is not registered on
	// the receiver, so the third attempt re-encodes as json.
	out, err = proxy.Invoke(ctx, 1, 0, wire.CodecBinary, payload, func(tag wire.CodecTag) ([]byte, error) {
		if tag != wire.CodecJSON {
			t.Fatalf("fallback must target json, got %v", tag)
		}
		return payload, nil
	})
	if err != nil {
		t.Fatalf("Invoke after codec fallback: %v", err)
	}
	sum = 0
	if err := codec.Decode(out, &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum != 5 {
		t.Fatalf("add(2,3) via fallback = %d, want 5", sum)
	}
}

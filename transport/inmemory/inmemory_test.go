package inmemory

import (
	"context"
	"testing"

	"github.com/dev-feyisayo/canopy/engine/canopyerr"
	"github.com/dev-feyisayo/canopy/engine/ids"
	"github.com/dev-feyisayo/canopy/engine/marshal"
	"github.com/dev-feyisayo/canopy/engine/proxystub"
	"github.com/dev-feyisayo/canopy/engine/service"
	"github.com/dev-feyisayo/canopy/engine/wire"
)

type addDispatcher struct{}

func (addDispatcher) InterfaceID() ids.InterfaceOrdinal { return 1 }

type addArgs struct{ A, B int }

func (addDispatcher) Dispatch(ctx context.Context, method ids.Method, codec wire.Codec, args []byte) ([]byte, error) {
	var in addArgs
	if err := codec.Decode(args, &in); err != nil {
		return nil, err
	}
	return codec.Encode(in.A + in.B)
}

// newZonePair constructs two Services connected by an in-memory
// transport pair, the minimal hierarchical parent/child setup, and
// returns the child's own Transport (child -> parent) alongside them.
func newZonePair(t *testing.T) (parent, child *service.Service, childToParent *Transport) {
	t.Helper()
	parent = service.New(ids.NewZoneID(), "parent", nil, nil)
	child = service.New(ids.NewZoneID(), "child", nil, nil)
	_, btoa := Pair(parent, child)
	return parent, child, btoa
}

func TestCrossZoneEcho(t *testing.T) {
	parent, child, childToParent := newZonePair(t)

	impl := &struct{}{}
	stub := parent.RegisterLocalObject(impl, []proxystub.InterfaceDispatcher{addDispatcher{}}, func() {})

	registry := wire.NewRegistry()
	codec, err := registry.Resolve(wire.CodecJSON)
	if err != nil {
		t.Fatalf("resolve codec: %v", err)
	}
	payload, err := codec.Encode(addArgs{A: 2, B: 3})
	if err != nil {
		t.Fatalf("encode args: %v", err)
	}

	req := &wire.Request{
		Codec:             wire.CodecJSON,
		Version:           wire.CurrentVersion,
		CallerZoneID:      uint64(child.Zone()),
		DestinationZoneID: uint64(parent.Zone()),
		ObjectID:          uint64(stub.Object()),
		InterfaceID:       1,
		MethodID:          0,
		Data:              payload,
	}

	// childToParent is the child's own Transport toward parent, so this
	// drives the same path a real out-of-process transport would: the
	// child's local code calls Send on its Transport, which hands off to
	// the parent Service's dispatch.
	resp, err := childToParent.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	var sum int
	if err := codec.Decode(resp.Data, &sum); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if sum != 5 {
		t.Fatalf("add(2,3) = %d, want 5", sum)
	}

	if _, err := childToParent.AddRef(context.Background(), marshal.AddRefArgs{
		Destination: ids.DestinationZone(parent.Zone()),
		Object:      stub.Object(),
		Caller:      ids.CallerZone(child.Zone()),
	}); err != nil {
		t.Fatalf("AddRef: %v", err)
	}
	if n, _, _ := parent.Counters(); n != 1 {
		t.Fatalf("expected one inbound stub, got %d", n)
	}
}

func TestUngracefulFailureCascadesAndMarksProxiesNonOperational(t *testing.T) {
	parent, child, _ := newZonePair(t)

	impl := &struct{}{}
	stub := parent.RegisterLocalObject(impl, nil, func() {})
	if _, err := parent.HandleAddRef(context.Background(), marshal.AddRefArgs{
		Destination: ids.DestinationZone(parent.Zone()),
		Object:      stub.Object(),
		Caller:      ids.CallerZone(child.Zone()),
	}); err != nil {
		t.Fatalf("AddRef: %v", err)
	}
	if len(stub.CallerZones()) != 1 {
		t.Fatalf("expected one caller zone contribution before failure")
	}

	// Stand in for the failure detector firing on the parent's transport
	// toward the child, then invoke the cascade.
	if cell, ok := parent.GetTransport(child.Zone()); ok {
		if tr, live := cell.Get(); live {
			tr.Close()
		}
	}
	parent.HandleTransportDown(context.Background(), child.Zone().AsKnownDirection())

	if len(stub.CallerZones()) != 0 {
		t.Fatalf("expected the failed zone's contribution to be force-released")
	}
	if parent.ServiceProxyFor(child.Zone().AsDestination()).Operational() {
		t.Fatalf("expected the service proxy toward the failed zone to be non-operational")
	}

	req := &wire.Request{
		Codec:             wire.CodecJSON,
		DestinationZoneID: uint64(child.Zone()),
		CallerZoneID:      uint64(parent.Zone()),
	}
	// The direct transport toward the failed zone is gone and there is no
	// third zone to relay through, so routing fails outright rather than
	// finding a pass-through.
	if _, err := parent.HandleSend(context.Background(), req); canopyerr.KindOf(err) != canopyerr.ZoneNotFound {
		t.Fatalf("expected subsequent sends toward the failed zone to fail to route, got %v", err)
	}

	// Firing the cascade twice must land in the same end state.
	parent.HandleTransportDown(context.Background(), child.Zone().AsKnownDirection())
}

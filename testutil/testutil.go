// Package testutil provides shared test doubles for exercising Canopy
// zones without a real transport: a FakeTransport implementing
// transport.Transport and transport.Handshaker, and helpers for wiring
// two zones together through it.
//
// All doubles in this package are designed for testing engine components
// in isolation without requiring a real network or gRPC dependency.
package testutil

import (
	"context"
	"sync"

	"github.com/dev-feyisayo/canopy/engine/ids"
	"github.com/dev-feyisayo/canopy/engine/marshal"
	"github.com/dev-feyisayo/canopy/engine/service"
	"github.com/dev-feyisayo/canopy/engine/telemetry"
	"github.com/dev-feyisayo/canopy/engine/wire"
)

// Call records one verb invocation observed through a FakeTransport, for
// assertions in tests that care about call order or arguments rather
// than just end-to-end behavior.
type Call struct {
	Verb string
	Arg  any
}

// FakeTransport is a minimal, fully recording Transport double. Unlike
// transport/inmemory.Transport (which forwards straight into a peer
// *service.Service for realistic end-to-end behavior), FakeTransport lets
// a test script canned responses and inspect exactly what was sent.
type FakeTransport struct {
	AdjacentZoneID ids.Zone
	status         telemetry.TransportStatus

	// SendFunc, AddRefFunc, TryCastFunc, and ReleaseFunc let a test
	// override the canned OK response for a given verb.
	SendFunc    func(ctx context.Context, req *wire.Request) (*wire.Response, error)
	AddRefFunc  func(ctx context.Context, args marshal.AddRefArgs) (int32, error)
	ReleaseFunc func(ctx context.Context, args marshal.ReleaseArgs) error
	TryCastFunc func(ctx context.Context, args marshal.TryCastArgs) error
	InitFunc    func(ctx context.Context, req wire.InitChannelRequest) (wire.InitChannelResponse, error)

	mu     sync.Mutex
	calls  []Call
	closed bool
}

// NewFakeTransport returns a connected FakeTransport toward adjacent.
func NewFakeTransport(adjacent ids.Zone) *FakeTransport {
	return &FakeTransport{AdjacentZoneID: adjacent, status: telemetry.StatusConnected}
}

// Calls returns a snapshot of every verb call observed so far.
func (f *FakeTransport) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

func (f *FakeTransport) record(verb string, arg any) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Verb: verb, Arg: arg})
	f.mu.Unlock()
}

func (f *FakeTransport) Send(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	f.record("send", req)
	if f.SendFunc != nil {
		return f.SendFunc(ctx, req)
	}
	return &wire.Response{}, nil
}

func (f *FakeTransport) Post(ctx context.Context, req *wire.Request) {
	f.record("post", req)
}

func (f *FakeTransport) TryCast(ctx context.Context, args marshal.TryCastArgs) error {
	f.record("try_cast", args)
	if f.TryCastFunc != nil {
		return f.TryCastFunc(ctx, args)
	}
	return nil
}

func (f *FakeTransport) AddRef(ctx context.Context, args marshal.AddRefArgs) (int32, error) {
	f.record("add_ref", args)
	if f.AddRefFunc != nil {
		return f.AddRefFunc(ctx, args)
	}
	return 1, nil
}

func (f *FakeTransport) Release(ctx context.Context, args marshal.ReleaseArgs) error {
	f.record("release", args)
	if f.ReleaseFunc != nil {
		return f.ReleaseFunc(ctx, args)
	}
	return nil
}

func (f *FakeTransport) ObjectReleased(ctx context.Context, destination ids.DestinationZone, object ids.Object) {
	f.record("object_released", [2]uint64{uint64(destination), uint64(object)})
}

func (f *FakeTransport) TransportDown(ctx context.Context, failedZone ids.KnownDirectionZone) {
	f.record("transport_down", failedZone)
}

func (f *FakeTransport) InitChannel(ctx context.Context, req wire.InitChannelRequest) (wire.InitChannelResponse, error) {
	f.record("init_channel", req)
	if f.InitFunc != nil {
		return f.InitFunc(ctx, req)
	}
	return wire.InitChannelResponse{}, nil
}

func (f *FakeTransport) Adjacent() ids.Zone { return f.AdjacentZoneID }

func (f *FakeTransport) Status() telemetry.TransportStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *FakeTransport) Close() {
	f.mu.Lock()
	f.closed = true
	f.status = telemetry.StatusDisconnected
	f.mu.Unlock()
}

// NewZonePair constructs two Services for tests that need real
// stub/proxy/pass-through bookkeeping but don't want to depend on a
// concrete transport package.
func NewZonePair(nameA, nameB string) (a, b *service.Service) {
	a = service.New(ids.NewZoneID(), nameA, nil, nil)
	b = service.New(ids.NewZoneID(), nameB, nil, nil)
	return a, b
}

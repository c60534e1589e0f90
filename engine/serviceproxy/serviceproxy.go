// Package serviceproxy implements the per-destination-zone gateway: the
// local representative of a remote zone's service.
package serviceproxy

import (
	"context"

	"github.com/dev-feyisayo/canopy/engine/canopyerr"
	"github.com/dev-feyisayo/canopy/engine/ids"
	"github.com/dev-feyisayo/canopy/engine/marshal"
	"github.com/dev-feyisayo/canopy/engine/telemetry"
	"github.com/dev-feyisayo/canopy/engine/transport"
	"github.com/dev-feyisayo/canopy/engine/wire"
)

// ServiceProxy forwards the six marshaller verbs to destination through
// a transport held by a resettable Cell. Every outbound
// operation acquires a stack-local strong reference from the cell before
// forwarding, so the transport survives the in-flight call even if
// another goroutine concurrently breaks the cell (e.g. during amnesia
// teardown).
//
// There is exactly one ServiceProxy per destination zone per local
// service.
type ServiceProxy struct {
	caller      ids.CallerZone
	destination ids.DestinationZone
	cell        *transport.Cell
	sink        telemetry.Sink
}

// New wraps cell as the gateway from caller's zone to destination. The
// proxy does not own the cell; the caller (the Service) is responsible
// for resetting it on teardown.
func New(caller ids.CallerZone, destination ids.DestinationZone, cell *transport.Cell, sink telemetry.Sink) *ServiceProxy {
	if sink == nil {
		sink = telemetry.NoopSink{}
	}
	return &ServiceProxy{caller: caller, destination: destination, cell: cell, sink: sink}
}

// Destination reports the zone this proxy addresses.
func (p *ServiceProxy) Destination() ids.DestinationZone { return p.destination }

// Operational reports whether the proxy currently has a live transport to
// forward through.
func (p *ServiceProxy) Operational() bool {
	_, ok := p.cell.Get()
	return ok
}

func (p *ServiceProxy) transport() (transport.Transport, error) {
	t, ok := p.cell.Get()
	if !ok {
		return nil, canopyerr.New(canopyerr.TransportError, "service proxy has no live transport")
	}
	return t, nil
}

// recordVerb emits one outbound-verb telemetry event.
func (p *ServiceProxy) recordVerb(verb string, object ids.Object, iface ids.InterfaceOrdinal, method ids.Method, err error) {
	p.sink.Verb(telemetry.DirectionOutbound, verb, p.caller, p.destination, object, iface, method, canopyerr.KindOf(err).String())
}

func (p *ServiceProxy) Send(ctx context.Context, req *wire.Request) (resp *wire.Response, err error) {
	defer func() {
		p.recordVerb("send", ids.Object(req.ObjectID), ids.InterfaceOrdinal(req.InterfaceID), ids.Method(req.MethodID), err)
	}()
	t, err := p.transport()
	if err != nil {
		return nil, err
	}
	return t.Send(ctx, req)
}

func (p *ServiceProxy) Post(ctx context.Context, req *wire.Request) {
	defer p.recordVerb("post", ids.Object(req.ObjectID), ids.InterfaceOrdinal(req.InterfaceID), ids.Method(req.MethodID), nil)
	t, err := p.transport()
	if err != nil {
		return
	}
	t.Post(ctx, req)
}

func (p *ServiceProxy) TryCast(ctx context.Context, args marshal.TryCastArgs) (err error) {
	defer func() {
		p.recordVerb("try_cast", args.Object, args.Interface, 0, err)
	}()
	t, err := p.transport()
	if err != nil {
		return err
	}
	return t.TryCast(ctx, args)
}

func (p *ServiceProxy) AddRef(ctx context.Context, args marshal.AddRefArgs) (count int32, err error) {
	defer func() {
		p.recordVerb("add_ref", args.Object, 0, 0, err)
	}()
	t, err := p.transport()
	if err != nil {
		return 0, err
	}
	return t.AddRef(ctx, args)
}

func (p *ServiceProxy) Release(ctx context.Context, args marshal.ReleaseArgs) (err error) {
	defer func() {
		p.recordVerb("release", args.Object, 0, 0, err)
	}()
	t, err := p.transport()
	if err != nil {
		return err
	}
	return t.Release(ctx, args)
}

func (p *ServiceProxy) ObjectReleased(ctx context.Context, destination ids.DestinationZone, object ids.Object) {
	defer p.recordVerb("object_released", object, 0, 0, nil)
	t, err := p.transport()
	if err != nil {
		return
	}
	t.ObjectReleased(ctx, destination, object)
}

func (p *ServiceProxy) TransportDown(ctx context.Context, failedZone ids.KnownDirectionZone) {
	defer p.recordVerb("transport_down", 0, 0, 0, nil)
	t, err := p.transport()
	if err != nil {
		return
	}
	t.TransportDown(ctx, failedZone)
}

var _ marshal.Marshaller = (*ServiceProxy)(nil)

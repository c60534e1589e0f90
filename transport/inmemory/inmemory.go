// Package inmemory provides a concrete, fully in-process Transport
// sufficient to exercise the whole runtime end-to-end without any real
// I/O. Every verb is a direct synchronous call into the peer Service's
// dispatch methods, running under the peer's own locks.
package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/dev-feyisayo/canopy/engine/canopyerr"
	"github.com/dev-feyisayo/canopy/engine/ids"
	"github.com/dev-feyisayo/canopy/engine/marshal"
	"github.com/dev-feyisayo/canopy/engine/service"
	"github.com/dev-feyisayo/canopy/engine/telemetry"
	"github.com/dev-feyisayo/canopy/engine/wire"
)

// Transport is a direct in-process channel to a peer *service.Service.
type Transport struct {
	adjacent    ids.Zone
	peer        *service.Service
	reverse     *Transport // the peer's own Transport back toward this side
	sendTimeout time.Duration

	mu     sync.Mutex
	status telemetry.TransportStatus
	closed bool
}

// New wraps peer as the transport toward peer's zone. The send timeout is
// taken from the peer zone's configuration; every Send carries it as a
// context deadline, and pass-throughs forwarding the call propagate the
// remaining budget automatically because the same context travels with
// it.
func New(peer *service.Service) *Transport {
	return &Transport{
		adjacent:    peer.Zone(),
		peer:        peer,
		sendTimeout: time.Duration(peer.Config().SendTimeoutMS) * time.Millisecond,
		status:      telemetry.StatusConnected,
	}
}

func (t *Transport) guard() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.status == telemetry.StatusDisconnected {
		return canopyerr.New(canopyerr.TransportError, "transport is not connected")
	}
	return nil
}

func (t *Transport) Send(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	if t.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.sendTimeout)
		defer cancel()
	}
	resp, err := t.peer.HandleSend(ctx, req)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, canopyerr.Wrap(canopyerr.TransportError, "send timed out", ctxErr)
	}
	return resp, err
}

func (t *Transport) Post(ctx context.Context, req *wire.Request) {
	if t.guard() != nil {
		return
	}
	t.peer.HandlePost(ctx, req)
}

func (t *Transport) TryCast(ctx context.Context, args marshal.TryCastArgs) error {
	if err := t.guard(); err != nil {
		return err
	}
	return t.peer.HandleTryCast(ctx, args)
}

func (t *Transport) AddRef(ctx context.Context, args marshal.AddRefArgs) (int32, error) {
	if err := t.guard(); err != nil {
		return 0, err
	}
	return t.peer.HandleAddRef(ctx, args)
}

func (t *Transport) Release(ctx context.Context, args marshal.ReleaseArgs) error {
	if err := t.guard(); err != nil {
		return err
	}
	return t.peer.HandleRelease(ctx, args)
}

func (t *Transport) ObjectReleased(ctx context.Context, destination ids.DestinationZone, object ids.Object) {
	if t.guard() != nil {
		return
	}
	t.peer.HandleObjectReleased(ctx, destination, object)
}

func (t *Transport) TransportDown(ctx context.Context, failedZone ids.KnownDirectionZone) {
	if t.guard() != nil {
		return
	}
	t.peer.HandleTransportDown(ctx, failedZone)
}

// InitChannel implements transport.Handshaker by forwarding to the peer's
// acceptor-side handshake logic, registering t.reverse (the peer's own
// Transport back toward this side) as the transport the peer should use —
// t itself faces the wrong direction from the peer's point of view.
func (t *Transport) InitChannel(ctx context.Context, req wire.InitChannelRequest) (wire.InitChannelResponse, error) {
	return t.peer.AttachRemoteZone(ctx, t.reverse, req, nil), nil
}

func (t *Transport) Adjacent() ids.Zone { return t.adjacent }

func (t *Transport) Status() telemetry.TransportStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Transport) Close() {
	t.mu.Lock()
	t.closed = true
	t.status = telemetry.StatusDisconnected
	t.mu.Unlock()
}

// MarkDown forces the transport into the disconnected state, standing in
// for an external failure detector (heartbeat timeout, socket error)
// firing. Callers are responsible for invoking the peer's transport_down
// cascade afterward; MarkDown itself only flips local status so that
// subsequent calls through this Transport fail fast.
func (t *Transport) MarkDown() {
	t.mu.Lock()
	t.status = telemetry.StatusDisconnected
	t.mu.Unlock()
}

// Pair constructs two Transports wired directly to each other's Service,
// registers each with the service at its sending end under the other
// zone's ID (AtoB in a under b, BtoA in b under a), and returns
// (AtoB, BtoA).
func Pair(a, b *service.Service) (*Transport, *Transport) {
	atob := New(b)
	btoa := New(a)
	atob.reverse = btoa
	btoa.reverse = atob
	a.AddTransport(b.Zone(), atob)
	b.AddTransport(a.Zone(), btoa)
	return atob, btoa
}

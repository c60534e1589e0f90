package grpc

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
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// duplexStream is the subset of grpc.ServerStream/grpc.ClientStream this
// package needs, letting Transport stay agnostic to which side of the
// connection opened the stream.
type duplexStream interface {
	SendMsg(m any) error
	RecvMsg(m any) error
}

// Transport carries Canopy's six marshaller verbs plus the init_channel
// handshake over one bidirectional gRPC stream, multiplexed by frame.Tag.
// It is the out-of-process counterpart of transport/inmemory: where that
// package calls straight into a peer *service.Service, this one crosses a
// real network boundary and must correlate replies itself.
type Transport struct {
	adjacent ids.Zone
	peer     *service.Service
	stream   duplexStream
	sink     telemetry.Sink

	sendTimeout       time.Duration
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	inflight          chan struct{} // bounds concurrent inbound dispatch

	mu       sync.Mutex
	status   telemetry.TransportStatus
	pending  map[uint64]chan *frame
	lastSeen time.Time
	closed   bool
}

// New wraps stream as the Transport toward adjacent, dispatching inbound
// requests into peer. The send timeout, heartbeat cadence, and inbound
// queue bound come from peer's configuration. Call Run in its own
// goroutine to start the read loop before using the Transport for
// outbound calls.
func New(adjacent ids.Zone, peer *service.Service, stream duplexStream, sink telemetry.Sink) *Transport {
	if sink == nil {
		sink = telemetry.NoopSink{}
	}
	cfg := peer.Config()
	t := &Transport{
		adjacent:          adjacent,
		peer:              peer,
		stream:            stream,
		sink:              sink,
		sendTimeout:       time.Duration(cfg.SendTimeoutMS) * time.Millisecond,
		heartbeatInterval: time.Duration(cfg.HeartbeatIntervalMS) * time.Millisecond,
		heartbeatTimeout:  time.Duration(cfg.HeartbeatTimeoutMS) * time.Millisecond,
		status:            telemetry.StatusConnected,
		pending:           make(map[uint64]chan *frame),
		lastSeen:          time.Now(),
	}
	if cfg.InboundQueueSize > 0 {
		t.inflight = make(chan struct{}, cfg.InboundQueueSize)
	}
	return t
}

// Run drives the read loop until the stream errors out or ctx is
// cancelled, at which point it marks the transport disconnected and fires
// the local transport_down cascade. A heartbeat goroutine pings the peer
// on the configured interval; a peer silent past the heartbeat timeout is
// treated exactly like a stream error. Run blocks; callers run it in its
// own goroutine.
func (t *Transport) Run(ctx context.Context) {
	if t.heartbeatInterval > 0 {
		hbCtx, stopHeartbeat := context.WithCancel(ctx)
		defer stopHeartbeat()
		go t.heartbeat(hbCtx)
	}
	for {
		var msg wrapperspb.BytesValue
		if err := t.stream.RecvMsg(&msg); err != nil {
			t.fail(ctx)
			return
		}
		t.mu.Lock()
		t.lastSeen = time.Now()
		t.mu.Unlock()
		f, err := unmarshalFrame(&msg)
		if err != nil {
			continue
		}
		if t.inflight != nil {
			t.inflight <- struct{}{}
			go func() {
				defer func() { <-t.inflight }()
				t.handle(ctx, f)
			}()
			continue
		}
		go t.handle(ctx, f)
	}
}

// heartbeat pings the peer every heartbeatInterval and declares the
// transport down when nothing at all has arrived for heartbeatTimeout.
func (t *Transport) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(t.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		t.mu.Lock()
		silent := t.heartbeatTimeout > 0 && time.Since(t.lastSeen) > t.heartbeatTimeout
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return
		}
		if silent {
			t.fail(ctx)
			return
		}
		t.send(&frame{Tag: wire.NewCorrelationID(), Kind: framePing})
	}
}

func (t *Transport) fail(ctx context.Context) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.status = telemetry.StatusDisconnected
	pending := t.pending
	t.pending = make(map[uint64]chan *frame)
	t.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	adjacent := t.Adjacent()
	t.sink.TransportStatusChanged(t.peer.Zone(), adjacent, telemetry.StatusDisconnected)
	t.peer.HandleTransportDown(ctx, adjacent.AsKnownDirection())
}

// handle processes one inbound frame: request frames are dispatched into
// the local service and answered; response frames are routed to whichever
// outbound call is waiting on their Tag.
func (t *Transport) handle(ctx context.Context, f *frame) {
	switch f.Kind {
	case frameSendRequest:
		resp, err := t.peer.HandleSend(ctx, f.Request)
		reply := &frame{Tag: f.Tag, Kind: frameSendResponse, Response: &frameResponse{Response: resp}}
		if err != nil {
			k := canopyerr.KindOf(err)
			reply.Response.ErrKind = int32(k)
			reply.Response.ErrMsg = err.Error()
		}
		t.send(reply)
	case framePost:
		t.peer.HandlePost(ctx, f.Request)
	case frameAddRefRequest:
		count, err := t.peer.HandleAddRef(ctx, *f.AddRef)
		resp := &addRefResponse{Count: count}
		if err != nil {
			resp.ErrKind = int32(canopyerr.KindOf(err))
			resp.ErrMsg = err.Error()
		}
		t.send(&frame{Tag: f.Tag, Kind: frameAddRefResponse, AddRefResponse: resp})
	case frameReleaseRequest:
		err := t.peer.HandleRelease(ctx, *f.Release)
		t.send(&frame{Tag: f.Tag, Kind: frameReleaseResponse, ReleaseResponse: errResponseOf(err)})
	case frameTryCastRequest:
		err := t.peer.HandleTryCast(ctx, *f.TryCast)
		t.send(&frame{Tag: f.Tag, Kind: frameTryCastResponse, TryCastResponse: errResponseOf(err)})
	case frameObjectReleased:
		t.peer.HandleObjectReleased(ctx, ids.DestinationZone(f.ObjectReleased.Destination), ids.Object(f.ObjectReleased.Object))
	case frameTransportDown:
		t.peer.HandleTransportDown(ctx, ids.KnownDirectionZone(f.FailedZone))
	case framePing:
		t.send(&frame{Tag: f.Tag, Kind: framePong})
	case framePong:
		// Receipt alone refreshed lastSeen; nothing else to do.
	case frameInitChannelRequest:
		t.setAdjacent(ids.Zone(f.InitChannelRequest.CallerZoneID))
		resp := t.peer.AttachRemoteZone(ctx, t, *f.InitChannelRequest, nil)
		t.send(&frame{Tag: f.Tag, Kind: frameInitChannelResponse, InitChannelResponse: &resp})
	default:
		t.deliver(f)
	}
}

// deliver routes a response frame to the goroutine awaiting f.Tag.
func (t *Transport) deliver(f *frame) {
	t.mu.Lock()
	ch, ok := t.pending[f.Tag]
	if ok {
		delete(t.pending, f.Tag)
	}
	t.mu.Unlock()
	if ok {
		ch <- f
	}
}

func (t *Transport) send(f *frame) {
	msg, err := marshalFrame(f)
	if err != nil {
		return
	}
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return
	}
	_ = t.stream.SendMsg(msg)
}

// call sends a request frame and blocks for its correlated response. It
// returns a TransportError if the transport closes first or the
// configured send timeout elapses; a timed-out call may or may not have
// executed on the peer.
func (t *Transport) call(ctx context.Context, f *frame) (*frame, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, canopyerr.New(canopyerr.TransportError, "transport is not connected")
	}
	ch := make(chan *frame, 1)
	t.pending[f.Tag] = ch
	t.mu.Unlock()

	abandon := func() {
		t.mu.Lock()
		delete(t.pending, f.Tag)
		t.mu.Unlock()
	}

	msg, err := marshalFrame(f)
	if err != nil {
		abandon()
		return nil, err
	}
	if err := t.stream.SendMsg(msg); err != nil {
		abandon()
		return nil, canopyerr.Wrap(canopyerr.TransportError, "send frame", err)
	}

	var timeout <-chan time.Time
	if t.sendTimeout > 0 {
		timer := time.NewTimer(t.sendTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case reply, ok := <-ch:
		if !ok {
			return nil, canopyerr.New(canopyerr.TransportError, "transport closed awaiting reply")
		}
		return reply, nil
	case <-timeout:
		abandon()
		return nil, canopyerr.New(canopyerr.TransportError, "send timed out awaiting reply")
	case <-ctx.Done():
		abandon()
		return nil, canopyerr.Wrap(canopyerr.TransportError, "send cancelled", ctx.Err())
	}
}

func (t *Transport) Send(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	reply, err := t.call(ctx, &frame{Tag: wire.NewCorrelationID(), Kind: frameSendRequest, Request: req})
	if err != nil {
		return nil, err
	}
	if canopyerr.Kind(reply.Response.ErrKind) != canopyerr.OK {
		return nil, canopyerr.New(canopyerr.Kind(reply.Response.ErrKind), reply.Response.ErrMsg)
	}
	return reply.Response.Response, nil
}

func (t *Transport) Post(ctx context.Context, req *wire.Request) {
	t.send(&frame{Tag: wire.NewCorrelationID(), Kind: framePost, Request: req})
}

func (t *Transport) TryCast(ctx context.Context, args marshal.TryCastArgs) error {
	reply, err := t.call(ctx, &frame{Tag: wire.NewCorrelationID(), Kind: frameTryCastRequest, TryCast: &args})
	if err != nil {
		return err
	}
	return reply.TryCastResponse.toError()
}

func (t *Transport) AddRef(ctx context.Context, args marshal.AddRefArgs) (int32, error) {
	reply, err := t.call(ctx, &frame{Tag: wire.NewCorrelationID(), Kind: frameAddRefRequest, AddRef: &args})
	if err != nil {
		return 0, err
	}
	if canopyerr.Kind(reply.AddRefResponse.ErrKind) != canopyerr.OK {
		return 0, canopyerr.New(canopyerr.Kind(reply.AddRefResponse.ErrKind), reply.AddRefResponse.ErrMsg)
	}
	return reply.AddRefResponse.Count, nil
}

func (t *Transport) Release(ctx context.Context, args marshal.ReleaseArgs) error {
	reply, err := t.call(ctx, &frame{Tag: wire.NewCorrelationID(), Kind: frameReleaseRequest, Release: &args})
	if err != nil {
		return err
	}
	return reply.ReleaseResponse.toError()
}

func (t *Transport) ObjectReleased(ctx context.Context, destination ids.DestinationZone, object ids.Object) {
	t.send(&frame{
		Tag:  wire.NewCorrelationID(),
		Kind: frameObjectReleased,
		ObjectReleased: &objectReleasedPayload{
			Destination: uint64(destination),
			Object:      uint64(object),
		},
	})
}

func (t *Transport) TransportDown(ctx context.Context, failedZone ids.KnownDirectionZone) {
	t.send(&frame{Tag: wire.NewCorrelationID(), Kind: frameTransportDown, FailedZone: uint64(failedZone)})
}

// InitChannel implements transport.Handshaker for the initiator side: it
// sends the handshake request over the same stream the Transport already
// owns and waits for the acceptor's response.
func (t *Transport) InitChannel(ctx context.Context, req wire.InitChannelRequest) (wire.InitChannelResponse, error) {
	reply, err := t.call(ctx, &frame{Tag: wire.NewCorrelationID(), Kind: frameInitChannelRequest, InitChannelRequest: &req})
	if err != nil {
		return wire.InitChannelResponse{}, err
	}
	if canopyerr.Kind(reply.InitChannelResponse.Err) == canopyerr.OK {
		t.setAdjacent(ids.Zone(reply.InitChannelResponse.DestinationZoneID))
	}
	return *reply.InitChannelResponse, nil
}

func (t *Transport) Adjacent() ids.Zone {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.adjacent
}

// setAdjacent records the peer zone ID once it becomes known. An inbound
// (server-accepted) stream does not know its adjacent zone until the
// first init_channel request arrives.
func (t *Transport) setAdjacent(zone ids.Zone) {
	t.mu.Lock()
	t.adjacent = zone
	t.mu.Unlock()
}

func (t *Transport) Status() telemetry.TransportStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.status = telemetry.StatusDisconnected
	pending := t.pending
	t.pending = make(map[uint64]chan *frame)
	t.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
}

package grpc

import (
	"context"
	"net"

	"github.com/dev-feyisayo/canopy/engine/service"
	"github.com/dev-feyisayo/canopy/engine/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
)

// channelMethod is the fully qualified method name this package's single
// bidi-streaming RPC registers under. There is no .proto source for it:
// the wire message is always a wrapperspb.BytesValue carrying a
// JSON-encoded frame (see frame.go), so no IDL-generated client/server
// stub is needed to drive it.
const channelMethod = "/canopy.Channel/Channel"

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "canopy.Channel",
	HandlerType: (*any)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Channel",
			Handler:       channelStreamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "canopy/channel.proto",
}

// Server hosts the Channel RPC on behalf of a local *service.Service,
// pairing a *grpc.Server with the zone it dispatches into.
type Server struct {
	zone    *service.Service
	sink    telemetry.Sink
	grpcSrv *grpc.Server
}

// NewServer constructs a Server that accepts Channel streams on behalf of
// zone, instrumented with otelgrpc's stats handler (spec's DOMAIN STACK:
// OpenTelemetry gRPC instrumentation).
func NewServer(zone *service.Service, sink telemetry.Sink) *Server {
	if sink == nil {
		sink = telemetry.NoopSink{}
	}
	s := &Server{zone: zone, sink: sink}
	s.grpcSrv = grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	s.grpcSrv.RegisterService(&serviceDesc, s)
	return s
}

// channelStreamHandler adapts the registered grpc.StreamDesc to the
// *Server that holds the destination zone.
func channelStreamHandler(srv any, stream grpc.ServerStream) error {
	s := srv.(*Server)
	t := New(0, s.zone, stream, s.sink)
	t.Run(stream.Context())
	return nil
}

// Serve blocks accepting connections on lis until the server is stopped.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpcSrv.Serve(lis)
}

// GracefulStop drains in-flight streams before returning.
func (s *Server) GracefulStop() {
	s.grpcSrv.GracefulStop()
}

// Stop forcibly terminates the server and every open stream.
func (s *Server) Stop() {
	s.grpcSrv.Stop()
}

// Listen is a convenience that opens a TCP listener and starts serving
// in the background, returning the Server so the caller can GracefulStop
// it later.
func Listen(ctx context.Context, addr string, zone *service.Service, sink telemetry.Sink) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := NewServer(zone, sink)
	go func() {
		_ = srv.Serve(lis)
	}()
	return srv, nil
}

package grpc

import (
	"context"

	"github.com/dev-feyisayo/canopy/engine/ids"
	"github.com/dev-feyisayo/canopy/engine/service"
	"github.com/dev-feyisayo/canopy/engine/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Dial opens a gRPC connection to target and establishes the Channel
// stream that backs a Transport toward it, on behalf of the local zone.
// The returned Transport's Run loop is already started in the background;
// callers still need to drive the handshake themselves via
// (*service.Service).ConnectToZone.
func Dial(ctx context.Context, target string, local *service.Service, sink telemetry.Sink) (*Transport, error) {
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, err
	}

	stream, err := conn.NewStream(ctx, &serviceDesc.Streams[0], channelMethod)
	if err != nil {
		return nil, err
	}

	t := New(ids.Zone(0), local, stream, sink)
	go t.Run(ctx)
	return t, nil
}

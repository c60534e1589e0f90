package testutil

import (
	"context"
	"testing"

	"github.com/dev-feyisayo/canopy/engine/ids"
	"github.com/dev-feyisayo/canopy/engine/marshal"
	"github.com/dev-feyisayo/canopy/engine/telemetry"
	"github.com/dev-feyisayo/canopy/engine/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeTransportRecordsCalls(t *testing.T) {
	zone := ids.NewZoneID()
	ft := NewFakeTransport(zone)
	assert.Equal(t, zone, ft.Adjacent())

	ctx := context.Background()
	_, err := ft.Send(ctx, &wire.Request{})
	require.NoError(t, err)
	ft.Post(ctx, &wire.Request{})
	_, err = ft.AddRef(ctx, marshal.AddRefArgs{})
	require.NoError(t, err)
	err = ft.Release(ctx, marshal.ReleaseArgs{})
	require.NoError(t, err)
	err = ft.TryCast(ctx, marshal.TryCastArgs{})
	require.NoError(t, err)
	ft.ObjectReleased(ctx, 0, 0)
	ft.TransportDown(ctx, 0)

	calls := ft.Calls()
	require.Len(t, calls, 7)
	verbs := make([]string, len(calls))
	for i, c := range calls {
		verbs[i] = c.Verb
	}
	assert.Equal(t, []string{"send", "post", "add_ref", "release", "try_cast", "object_released", "transport_down"}, verbs)
}

func TestFakeTransportOverrides(t *testing.T) {
	ft := NewFakeTransport(ids.NewZoneID())
	ft.SendFunc = func(ctx context.Context, req *wire.Request) (*wire.Response, error) {
		return &wire.Response{Data: []byte("overridden")}, nil
	}
	resp, err := ft.Send(context.Background(), &wire.Request{})
	require.NoError(t, err)
	assert.Equal(t, "overridden", string(resp.Data))
}

func TestFakeTransportCloseUpdatesStatus(t *testing.T) {
	ft := NewFakeTransport(ids.NewZoneID())
	assert.Equal(t, telemetry.StatusConnected, ft.Status())
	ft.Close()
	assert.Equal(t, telemetry.StatusDisconnected, ft.Status())
}

func TestNewZonePairProducesDistinctZones(t *testing.T) {
	a, b := NewZonePair("a", "b")
	assert.NotEqual(t, a.Zone(), b.Zone())
}

// Package grpc provides a concrete Transport carrying Canopy verbs over
// a single bidirectional gRPC stream: a hand-wired grpc.ServiceDesc
// rather than IDL-generated stubs, since the wire payload here is an
// opaque multiplexed frame rather than a fixed request/response pair.
package grpc

import (
	"encoding/json"

	"github.com/dev-feyisayo/canopy/engine/canopyerr"
	"github.com/dev-feyisayo/canopy/engine/marshal"
	"github.com/dev-feyisayo/canopy/engine/wire"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// frameKind tags the payload multiplexed over the single gRPC stream.
// Send/AddRef/Release/TryCast/InitChannel are request/response pairs
// correlated by Tag; Post/ObjectReleased/TransportDown are one-way.
// Ping/Pong carry the liveness check: any inbound frame counts as proof
// of life, and a peer that stays silent past the heartbeat timeout is
// declared down.
type frameKind uint8

const (
	frameSendRequest frameKind = iota
	frameSendResponse
	framePost
	frameAddRefRequest
	frameAddRefResponse
	frameReleaseRequest
	frameReleaseResponse
	frameTryCastRequest
	frameTryCastResponse
	frameObjectReleased
	frameTransportDown
	frameInitChannelRequest
	frameInitChannelResponse
	framePing
	framePong
)

// frame is the envelope multiplexed over the stream's single message
// type. Exactly one of the payload fields is populated per Kind. JSON is
// used for this outer framing (as opposed to wire.Codec, which governs
// only the application payload inside a Request/Response) because the
// frame itself mixes several Go struct shapes behind one tag, which a
// single registered wire.Codec is not meant to do.
type frame struct {
	Tag  uint64
	Kind frameKind

	Request  *wire.Request  `json:",omitempty"`
	Response *frameResponse `json:",omitempty"`

	AddRef         *marshal.AddRefArgs `json:",omitempty"`
	AddRefResponse *addRefResponse     `json:",omitempty"`

	Release         *marshal.ReleaseArgs `json:",omitempty"`
	ReleaseResponse *errResponse         `json:",omitempty"`

	TryCast         *marshal.TryCastArgs `json:",omitempty"`
	TryCastResponse *errResponse         `json:",omitempty"`

	ObjectReleased *objectReleasedPayload `json:",omitempty"`
	FailedZone     uint64                 `json:",omitempty"`

	InitChannelRequest  *wire.InitChannelRequest  `json:",omitempty"`
	InitChannelResponse *wire.InitChannelResponse `json:",omitempty"`
}

// frameResponse carries a send response alongside the Canopy error kind,
// since *wire.Response itself has no room for a transport-level failure.
type frameResponse struct {
	Response *wire.Response
	ErrKind  int32
	ErrMsg   string
}

type addRefResponse struct {
	Count   int32
	ErrKind int32
	ErrMsg  string
}

type errResponse struct {
	ErrKind int32
	ErrMsg  string
}

type objectReleasedPayload struct {
	Destination uint64
	Object      uint64
}

func okErr() *errResponse { return &errResponse{ErrKind: int32(canopyerr.OK)} }

func errResponseOf(err error) *errResponse {
	if err == nil {
		return okErr()
	}
	k := canopyerr.KindOf(err)
	return &errResponse{ErrKind: int32(k), ErrMsg: err.Error()}
}

func (r *errResponse) toError() error {
	if r == nil || canopyerr.Kind(r.ErrKind) == canopyerr.OK {
		return nil
	}
	return canopyerr.New(canopyerr.Kind(r.ErrKind), r.ErrMsg)
}

// marshalFrame and unmarshalFrame box/unbox a frame inside the single
// protobuf message type the grpc stream actually transmits, so the
// stream can use grpc-go's built-in proto codec without any
// IDL-generated message type of Canopy's own.
func marshalFrame(f *frame) (*wrapperspb.BytesValue, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, canopyerr.Wrap(canopyerr.InvalidData, "encode frame", err)
	}
	return wrapperspb.Bytes(data), nil
}

func unmarshalFrame(b *wrapperspb.BytesValue) (*frame, error) {
	var f frame
	if err := json.Unmarshal(b.GetValue(), &f); err != nil {
		return nil, canopyerr.Wrap(canopyerr.IncompatibleSerialisation, "decode frame", err)
	}
	return &f, nil
}

package canopyerr

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// grpcCode maps a Canopy error Kind to the closest standard gRPC code. This
// lets any transport built on gRPC (see transport/grpc) surface Canopy
// errors as ordinary gRPC statuses without needing generated protobuf
// error-detail messages.
var grpcCode = map[Kind]codes.Code{
	OK:                        codes.OK,
	InvalidData:               codes.InvalidArgument,
	TransportError:            codes.Unavailable,
	ObjectNotFound:            codes.NotFound,
	ObjectGone:                codes.NotFound,
	ZoneNotFound:              codes.NotFound,
	InterfaceNotSupported:     codes.Unimplemented,
	MethodNotFound:            codes.Unimplemented,
	InvalidVersion:            codes.FailedPrecondition,
	IncompatibleSerialisation: codes.FailedPrecondition,
	OutOfMemory:               codes.ResourceExhausted,
}

// ToGRPCStatus converts err into a *status.Status suitable for returning
// from a gRPC handler. Non-Canopy errors map to codes.Unknown.
func ToGRPCStatus(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	var ce *Error
	if asCanopyError(err, &ce) {
		code, ok := grpcCode[ce.Kind]
		if !ok {
			code = codes.Unknown
		}
		return status.New(code, ce.Error())
	}
	return status.New(codes.Unknown, err.Error())
}

// FromGRPCStatus reconstructs a Canopy *Error from a gRPC status received
// from a peer, for the reverse direction (decoding a response).
func FromGRPCStatus(st *status.Status) *Error {
	if st == nil || st.Code() == codes.OK {
		return nil
	}
	for kind, code := range grpcCode {
		if code == st.Code() {
			return New(kind, st.Message())
		}
	}
	return New(TransportError, st.Message())
}

package wire

import (
	"encoding/json"

	"github.com/dev-feyisayo/canopy/engine/canopyerr"
)

// Codec is the contract the core consumes from external per-interface
// generated code and concrete codec packages: encode a value
// produced by the IDL compiler to bytes, and decode bytes back to a value.
// The core itself never constructs argument/return values; it only moves
// bytes and the envelope fields around.
type Codec interface {
	Tag() CodecTag
	Encode(value any) ([]byte, error)
	Decode(data []byte, out any) error
}

// JSONCodec is the universal fallback codec every implementation must
// accept. It is the only concrete codec the core ships; the fancier
// codecs (binary, protobuf, compressed) are external collaborators.
type JSONCodec struct{}

// Tag implements Codec.
func (JSONCodec) Tag() CodecTag { return CodecJSON }

// Encode implements Codec.
func (JSONCodec) Encode(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, canopyerr.Wrap(canopyerr.InvalidData, "json encode failed", err)
	}
	return data, nil
}

// Decode implements Codec.
func (JSONCodec) Decode(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return canopyerr.Wrap(canopyerr.IncompatibleSerialisation, "json decode failed", err)
	}
	return nil
}

// Registry resolves a CodecTag to a concrete Codec. Transports use it to
// pick an encoder/decoder for a given request's declared tag, and to fall
// back to JSON on IncompatibleSerialisation.
type Registry struct {
	codecs map[CodecTag]Codec
}

// NewRegistry returns a Registry pre-populated with the mandatory JSON
// fallback codec.
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[CodecTag]Codec)}
	r.Register(JSONCodec{})
	return r
}

// Register adds or replaces the codec for its own Tag().
func (r *Registry) Register(c Codec) {
	r.codecs[c.Tag()] = c
}

// Resolve returns the codec for tag, or IncompatibleSerialisation if none
// is registered.
func (r *Registry) Resolve(tag CodecTag) (Codec, error) {
	c, ok := r.codecs[tag]
	if !ok {
		return nil, canopyerr.New(canopyerr.IncompatibleSerialisation, "no codec registered for tag "+tag.String())
	}
	return c, nil
}

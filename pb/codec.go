package pb

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype carrying this package's wire format.
// Clients request it per call; servers resolve it through the registry.
const CodecName = "amoskys"

// Message is implemented by every wire type in this package.
type Message interface {
	MarshalWire() ([]byte, error)
	UnmarshalWire(data []byte) error
}

func init() {
	encoding.RegisterCodec(wireCodec{})
}

type wireCodec struct{}

func (wireCodec) Name() string { return CodecName }

func (wireCodec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("codec %s: cannot marshal %T", CodecName, v)
	}
	return m.MarshalWire()
}

func (wireCodec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("codec %s: cannot unmarshal into %T", CodecName, v)
	}
	// Envelope decode failures must surface as a business INVALID ack, not a
	// transport error, so they are recorded on the message and the RPC
	// proceeds. Every envelope keeps its wire image: the bus gates on the
	// exact transported size and logs the original bytes.
	switch env := v.(type) {
	case *Envelope:
		env.decodeErr = env.UnmarshalWire(data)
		env.SetRaw(cloneBytes(data))
		return nil
	case *UniversalEnvelope:
		env.decodeErr = env.UnmarshalWire(data)
		env.SetRaw(cloneBytes(data))
		return nil
	}
	return m.UnmarshalWire(data)
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

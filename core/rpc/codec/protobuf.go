package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// ProtobufCodec encodes frames for admin clients that prefer a binary
// wire format over JSON. Marshaling is deterministic so repeated stats
// snapshots of the same state are byte-stable (useful when a poller
// diffs them).
type ProtobufCodec struct{}

func (c *ProtobufCodec) Encode(v interface{}) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("codec: protobuf needs a proto.Message, got %T", v)
	}
	return proto.MarshalOptions{Deterministic: true}.Marshal(msg)
}

func (c *ProtobufCodec) Decode(data []byte, v interface{}) error {
	msg, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("codec: protobuf needs a proto.Message, got %T", v)
	}
	return proto.Unmarshal(data, msg)
}

func (c *ProtobufCodec) Name() string {
	return "protobuf"
}

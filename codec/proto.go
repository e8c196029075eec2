package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// protoCodec is the default gRPC wire codec, backing content-subtype
// "proto".
type protoCodec struct{}

func (protoCodec) Name() string { return "proto" }

func (protoCodec) Marshal(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("codec: proto codec cannot marshal %T, want proto.Message", v)
	}
	return proto.Marshal(m)
}

func (protoCodec) Unmarshal(data []byte, v any) error {
	m, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("codec: proto codec cannot unmarshal into %T, want proto.Message", v)
	}
	return proto.Unmarshal(data, m)
}

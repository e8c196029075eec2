package codec

import "encoding/json"

// jsonCodec backs content-subtype "json", useful for debugging a service
// with curl/grpcurl-less tooling since it needs no generated types.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Package codec implements the pluggable message codec: the thing that
// turns a Go value into the bytes a frame carries, and back. Calls are
// free to advertise any content-subtype via the content-type header, so
// codecs live in a small registry keyed by that subtype rather than
// being wired in as a single hardcoded choice.
package codec

// Codec marshals and unmarshals one message at a time. Implementations
// must be safe for concurrent use.
type Codec interface {
	// Name identifies the codec for the grpc content-subtype
	// (e.g. "proto", "json").
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

var registry = map[string]Codec{}

// Register adds c to the set of known codecs, keyed by c.Name().
func Register(c Codec) { registry[c.Name()] = c }

// Lookup returns the codec registered under name, or nil if none is
// registered.
func Lookup(name string) Codec { return registry[name] }

func init() {
	Register(protoCodec{})
	Register(jsonCodec{})
}

// Package metadata implements the ordered, multi-valued header map carried
// on gRPC calls, together with its HTTP/2 header round-trip rules. Keys
// preserve first-set order, since the wire format requires that distinct
// keys be re-emitted in the order they were first set.
package metadata

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/textproto"
	"strings"
)

// BinarySuffix marks a key as carrying raw byte values, base64-encoded on
// the wire.
const BinarySuffix = "-bin"

// MD is an ordered multimap from a lowercase ASCII key to a sequence of
// values. Insertion order of distinct keys is preserved for HTTP/2
// emission; the order of values within a key is preserved as added.
type MD struct {
	keys   []string
	values map[string][]string
}

// New creates an MD from a key/value map. Keys are lowercased.
func New(m map[string]string) MD {
	md := MD{}
	for k, v := range m {
		md.Set(k, v)
	}
	return md
}

// Pairs builds an MD from alternating key, value, key, value... arguments.
// Pairs panics if len(kv) is odd.
func Pairs(kv ...string) MD {
	if len(kv)%2 != 0 {
		panic(fmt.Sprintf("metadata: Pairs got an odd number of inputs: %d", len(kv)))
	}
	md := MD{}
	for i := 0; i < len(kv); i += 2 {
		md.Add(kv[i], kv[i+1])
	}
	return md
}

// Len returns the number of distinct keys in md.
func (md MD) Len() int { return len(md.keys) }

// Keys returns the distinct keys of md in insertion order. The returned
// slice must not be mutated by the caller.
func (md MD) Keys() []string { return md.keys }

func lower(k string) string { return strings.ToLower(k) }

// Get returns the values for k, or nil if absent. k is lowercased before
// lookup.
func (md MD) Get(k string) []string {
	if md.values == nil {
		return nil
	}
	return md.values[lower(k)]
}

// Set replaces the values stored under k.
func (md *MD) Set(k string, vals ...string) {
	if len(vals) == 0 {
		return
	}
	k = lower(k)
	if md.values == nil {
		md.values = make(map[string][]string)
	}
	if _, ok := md.values[k]; !ok {
		md.keys = append(md.keys, k)
	}
	md.values[k] = append([]string(nil), vals...)
}

// Add appends vals to whatever is already stored under k.
func (md *MD) Add(k string, vals ...string) {
	if len(vals) == 0 {
		return
	}
	k = lower(k)
	if md.values == nil {
		md.values = make(map[string][]string)
	}
	if _, ok := md.values[k]; !ok {
		md.keys = append(md.keys, k)
	}
	md.values[k] = append(md.values[k], vals...)
}

// Remove drops all values stored under k.
func (md *MD) Remove(k string) {
	k = lower(k)
	if md.values == nil {
		return
	}
	if _, ok := md.values[k]; !ok {
		return
	}
	delete(md.values, k)
	for i, existing := range md.keys {
		if existing == k {
			md.keys = append(md.keys[:i], md.keys[i+1:]...)
			break
		}
	}
}

// Clone produces a deep copy of md in which binary values are independent
// buffers (since values are plain strings here, a copy of the slices is
// sufficient to make later mutation of either side independent).
func (md MD) Clone() MD {
	out := MD{keys: append([]string(nil), md.keys...)}
	if md.values != nil {
		out.values = make(map[string][]string, len(md.values))
		for k, v := range md.values {
			out.values[k] = append([]string(nil), v...)
		}
	}
	return out
}

// Merge appends other's values to md, per key, preserving other's
// insertion order for any key not already present in md.
func (md *MD) Merge(other MD) {
	for _, k := range other.keys {
		md.Add(k, other.values[k]...)
	}
}

// Join merges any number of MDs into a new one, in argument order.
func Join(mds ...MD) MD {
	out := MD{}
	for _, md := range mds {
		out.Merge(md)
	}
	return out
}

// IsBinary reports whether k is a binary-valued (-bin suffixed) key.
func IsBinary(k string) bool {
	return strings.HasSuffix(lower(k), BinarySuffix)
}

// ValidKey reports whether k matches the gRPC metadata key grammar
// [0-9a-z_.-]+.
func ValidKey(k string) bool {
	if k == "" {
		return false
	}
	for _, r := range k {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r == '_' || r == '.' || r == '-':
		default:
			return false
		}
	}
	return true
}

type incomingKey struct{}
type outgoingKey struct{}

// NewIncomingContext attaches md to ctx as the metadata received on an
// inbound call, retrievable with FromIncomingContext.
func NewIncomingContext(ctx context.Context, md MD) context.Context {
	return context.WithValue(ctx, incomingKey{}, md)
}

// FromIncomingContext returns the metadata attached to ctx by
// NewIncomingContext, if any.
func FromIncomingContext(ctx context.Context) (MD, bool) {
	md, ok := ctx.Value(incomingKey{}).(MD)
	return md, ok
}

// NewOutgoingContext attaches md to ctx as metadata to be sent on an
// outbound call, retrievable with FromOutgoingContext.
func NewOutgoingContext(ctx context.Context, md MD) context.Context {
	return context.WithValue(ctx, outgoingKey{}, md)
}

// FromOutgoingContext returns the metadata attached to ctx by
// NewOutgoingContext, if any.
func FromOutgoingContext(ctx context.Context) (MD, bool) {
	md, ok := ctx.Value(outgoingKey{}).(MD)
	return md, ok
}

// AppendToOutgoingContext returns a new context with kv appended to
// whatever outgoing metadata ctx already carries.
func AppendToOutgoingContext(ctx context.Context, kv ...string) context.Context {
	md, _ := FromOutgoingContext(ctx)
	md = md.Clone()
	for i := 0; i < len(kv); i += 2 {
		md.Add(kv[i], kv[i+1])
	}
	return NewOutgoingContext(ctx, md)
}

// ToHTTPHeader converts md into an http.Header suitable for emission on a
// gRPC request or response. Binary values are base64-encoded; grpc-
// prefixed keys are emitted as one header line per value (no comma
// joining), matching the asymmetry the wire format requires for
// interoperability with intermediate proxies.
func (md MD) ToHTTPHeader() http.Header {
	h := make(http.Header, len(md.keys))
	for _, k := range md.keys {
		vals := md.values[k]
		canon := textproto.CanonicalMIMEHeaderKey(k)
		if IsBinary(k) {
			for _, v := range vals {
				h.Add(canon, base64.StdEncoding.EncodeToString([]byte(v)))
			}
			continue
		}
		for _, v := range vals {
			h.Add(canon, v)
		}
	}
	return h
}

// FromHTTPHeader converts an http.Header (as delivered by the HTTP/2
// transport) into an MD. Reserved pseudo-headers (keys beginning with
// ":") are skipped, since they are never real metadata. Binary (-bin)
// values are base64-decoded. Custom, non-grpc-prefixed headers follow the
// comma-split convention when a single header line carries multiple
// logical values; grpc-prefixed keys are taken one HTTP header per value,
// with no further splitting.
func FromHTTPHeader(h http.Header) (MD, error) {
	md := MD{}
	for k, vals := range h {
		if strings.HasPrefix(k, ":") {
			continue
		}
		lk := lower(k)
		if IsBinary(lk) {
			for _, v := range vals {
				raw, err := base64.StdEncoding.DecodeString(v)
				if err != nil {
					return MD{}, fmt.Errorf("metadata: invalid base64 for key %q: %w", lk, err)
				}
				md.Add(lk, string(raw))
			}
			continue
		}
		if strings.HasPrefix(lk, "grpc-") {
			md.Add(lk, vals...)
			continue
		}
		for _, v := range vals {
			if strings.Contains(v, ",") {
				for _, part := range strings.Split(v, ",") {
					md.Add(lk, part)
				}
			} else {
				md.Add(lk, v)
			}
		}
	}
	return md, nil
}

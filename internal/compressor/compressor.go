// Package compressor implements the CompressionFilter: negotiation of a
// message encoding (identity, gzip, deflate) via the grpc-encoding and
// grpc-accept-encoding metadata, and the pooled compress/decompress
// helpers used to apply it. The pooling idiom (sync.Pool of
// gzip.Reader/Writer) generalizes a single hardcoded gzip compressor into
// a small registry keyed by name, since the wire format allows either
// side to pick among several.
package compressor

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"sync"

	"github.com/crazyfrankie/g2rpc/metadata"
)

// Identity is the no-op encoding name, and the implicit default when no
// grpc-encoding header is present.
const Identity = "identity"

// Compressor compresses and decompresses message payloads for one named
// encoding.
type Compressor interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

var (
	mu       sync.RWMutex
	registry = map[string]Compressor{}
)

func init() {
	Register(identityCompressor{})
	Register(&gzipCompressor{})
	Register(&deflateCompressor{})
}

// Register adds c to the set of known compressors, keyed by c.Name().
// Registering under a name already in use replaces the prior entry.
func Register(c Compressor) {
	mu.Lock()
	defer mu.Unlock()
	registry[c.Name()] = c
}

// Lookup returns the compressor registered under name, or nil if none is
// registered.
func Lookup(name string) Compressor {
	mu.RLock()
	defer mu.RUnlock()
	return registry[name]
}

// Names returns the known encoding names other than identity, in no
// particular order, suitable for building a grpc-accept-encoding header.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		if n == Identity {
			continue
		}
		names = append(names, n)
	}
	return names
}

type identityCompressor struct{}

func (identityCompressor) Name() string                        { return Identity }
func (identityCompressor) Compress(data []byte) ([]byte, error) { return data, nil }
func (identityCompressor) Decompress(data []byte) ([]byte, error) {
	return data, nil
}

type gzipCompressor struct {
	writers sync.Pool
	readers sync.Pool
}

func (c *gzipCompressor) Name() string { return "gzip" }

func (c *gzipCompressor) Compress(data []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	w, _ := c.writers.Get().(*gzip.Writer)
	if w == nil {
		w = gzip.NewWriter(buf)
	} else {
		w.Reset(buf)
	}
	defer c.writers.Put(w)

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *gzipCompressor) Decompress(data []byte) ([]byte, error) {
	r, _ := c.readers.Get().(*gzip.Reader)
	var err error
	if r == nil {
		r, err = gzip.NewReader(bytes.NewReader(data))
	} else {
		err = r.Reset(bytes.NewReader(data))
	}
	if err != nil {
		return nil, err
	}
	defer c.readers.Put(r)
	defer r.Close()
	return io.ReadAll(r)
}

type deflateCompressor struct {
	writers sync.Pool
}

func (c *deflateCompressor) Name() string { return "deflate" }

func (c *deflateCompressor) Compress(data []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	w, _ := c.writers.Get().(*flate.Writer)
	if w == nil {
		w, _ = flate.NewWriter(buf, flate.DefaultCompression)
	} else {
		w.Reset(buf)
	}
	defer c.writers.Put(w)

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *deflateCompressor) Decompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	return io.ReadAll(r)
}

// Filter negotiates, per call, which encoding is used to send messages
// and which one the peer declared it used to send theirs.
type Filter struct {
	// Send is the compressor applied to outgoing messages, or nil for
	// identity.
	Send Compressor
	// Recv is the compressor the peer used for incoming messages, or
	// nil for identity.
	Recv Compressor
}

// ReceiveMetadata inspects md for grpc-encoding and grpc-accept-encoding,
// resolving the Filter's Send/Recv compressors. The send encoding is
// aligned to reuse whatever encoding the peer used for its own messages,
// provided the peer's accept list includes it; preferred, if non-empty,
// is consulted only as a fallback when the peer sent no encoding of its
// own (or its accept list rejects it), so the caller can still prefer
// compression when the peer's accept list allows it. Otherwise send
// falls back to identity. md is returned with both headers stripped,
// since they are transport plumbing rather than user-visible metadata.
func ReceiveMetadata(md metadata.MD, preferred string) (Filter, metadata.MD, error) {
	var f Filter

	var recvName string
	if enc := first(md.Get("grpc-encoding")); enc != "" && enc != Identity {
		c := Lookup(enc)
		if c == nil {
			return f, md, fmt.Errorf("compressor: unsupported grpc-encoding %q", enc)
		}
		f.Recv = c
		recvName = enc
	}

	accepted := splitCSV(first(md.Get("grpc-accept-encoding")))
	switch {
	case recvName != "" && containsName(accepted, recvName):
		f.Send = Lookup(recvName)
	case preferred != "" && preferred != Identity && containsName(accepted, preferred):
		f.Send = Lookup(preferred)
	}

	out := md.Clone()
	out.Remove("grpc-encoding")
	out.Remove("grpc-accept-encoding")
	return f, out, nil
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, trimSpace(s[start:i]))
			}
			start = i + 1
		}
	}
	return out
}

func trimSpace(s string) string {
	for len(s) > 0 && s[0] == ' ' {
		s = s[1:]
	}
	for len(s) > 0 && s[len(s)-1] == ' ' {
		s = s[:len(s)-1]
	}
	return s
}

// WriteMessage compresses data with f.Send if set, returning the raw
// bytes and whether compression was actually applied.
func (f Filter) WriteMessage(data []byte) (out []byte, compressed bool, err error) {
	if f.Send == nil {
		return data, false, nil
	}
	out, err = f.Send.Compress(data)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// ReadMessage decompresses data with f.Recv if the frame declared itself
// compressed.
func (f Filter) ReadMessage(data []byte, compressed bool) ([]byte, error) {
	if !compressed {
		return data, nil
	}
	if f.Recv == nil {
		return nil, fmt.Errorf("compressor: received compressed frame with no negotiated decompressor")
	}
	return f.Recv.Decompress(data)
}

// Package framer implements the length-prefixed message framing used on
// every gRPC stream: a 1-byte compression flag, a 4-byte big-endian length,
// and a payload of that length. It generalizes the fixed 11-byte header
// framing used for a single custom wire format into the two-field gRPC
// frame, read incrementally off of an io.Reader so that a stream decoder
// can be driven frame-by-frame rather than message-by-message.
package framer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/crazyfrankie/g2rpc/mem"
)

// State is the StreamDecoder's current position in the frame grammar.
type State int

const (
	// NoData means no partial frame has been seen; the next byte read
	// begins a new frame's compression flag.
	NoData State = iota
	// ReadingSize means the compression flag has been read and the
	// decoder is accumulating the 4-byte length prefix.
	ReadingSize
	// ReadingMessage means the length prefix is complete and the
	// decoder is accumulating message payload bytes.
	ReadingMessage
)

const (
	compressedFlagLen = 1
	sizeFieldLen      = 4
	prefixLen         = compressedFlagLen + sizeFieldLen
)

// ErrFrameTooLarge is returned from Read when a frame's declared length
// exceeds the configured maximum receive size.
var ErrFrameTooLarge = errors.New("framer: received message larger than max")

// FrameTooLargeError carries the declared frame size and the configured
// maximum, so a caller can format a size-limit status message without
// re-parsing Error()'s text. It unwraps to ErrFrameTooLarge for callers
// that only care about the sentinel.
type FrameTooLargeError struct {
	Size, Max int
}

func (e *FrameTooLargeError) Error() string {
	return fmt.Sprintf("%s: %d > %d", ErrFrameTooLarge, e.Size, e.Max)
}

func (e *FrameTooLargeError) Unwrap() error { return ErrFrameTooLarge }

// Decoder drives the NoData -> ReadingSize -> ReadingMessage -> NoData
// state machine over an underlying io.Reader, producing one fully
// assembled frame (compression flag + payload) per call to Read.
type Decoder struct {
	r   io.Reader
	pool mem.BufferPool

	state   State
	header  [prefixLen]byte
	headerN int

	compressed bool
	size       uint32
	maxLen     int
}

// NewDecoder returns a Decoder reading frames from r. maxLen bounds the
// payload size accepted from the length prefix; a value <= 0 means no
// limit.
func NewDecoder(r io.Reader, pool mem.BufferPool, maxLen int) *Decoder {
	if pool == nil {
		pool = mem.DefaultBufferPool()
	}
	return &Decoder{r: r, pool: pool, maxLen: maxLen, state: NoData}
}

// State reports the decoder's current position, exposed for diagnostics
// and tests.
func (d *Decoder) State() State { return d.state }

// Frame is one decoded message: whether it arrived compressed, and its
// payload bytes. Payload is owned by the BufferSlice and must be freed by
// the caller via Free once consumed.
type Frame struct {
	Compressed bool
	Payload    mem.BufferSlice
}

// Free releases the frame's payload back to the buffer pool.
func (f Frame) Free() { f.Payload.Free() }

// Read blocks until a full frame has been read from the underlying
// reader, or an error (including io.EOF between frames) occurs. On an
// error, State reports how far into the frame the decoder got; the next
// Read starts over at NoData. A caller must not reuse a Decoder across a
// non-EOF error on a stream that continues to be used for anything else,
// but framer itself imposes no such restriction.
func (d *Decoder) Read() (Frame, error) {
	d.state = NoData
	d.headerN = 0
	for d.headerN < prefixLen {
		n, err := d.r.Read(d.header[d.headerN:])
		d.headerN += n
		if err != nil {
			if errors.Is(err, io.EOF) && d.headerN == 0 {
				return Frame{}, io.EOF
			}
			if errors.Is(err, io.EOF) {
				return Frame{}, io.ErrUnexpectedEOF
			}
			return Frame{}, err
		}
		if d.headerN == compressedFlagLen {
			d.state = ReadingSize
		}
	}

	d.compressed = d.header[0] != 0
	d.size = binary.BigEndian.Uint32(d.header[compressedFlagLen:])
	d.state = ReadingMessage

	if d.maxLen > 0 && int(d.size) > d.maxLen {
		// Drain the declared length so the connection's framing stays
		// synchronized even though this frame is rejected.
		d.discard(int(d.size))
		return Frame{}, &FrameTooLargeError{Size: int(d.size), Max: d.maxLen}
	}

	payload, err := d.readPayload(int(d.size))
	if err != nil {
		return Frame{}, err
	}

	d.state = NoData
	return Frame{Compressed: d.compressed, Payload: payload}, nil
}

func (d *Decoder) readPayload(n int) (mem.BufferSlice, error) {
	if n == 0 {
		return nil, nil
	}
	buf := d.pool.Get(n)
	if _, err := io.ReadFull(d.r, *buf); err != nil {
		d.pool.Put(buf)
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return mem.BufferSlice{mem.NewBuffer(buf, d.pool)}, nil
}

func (d *Decoder) discard(n int) {
	lr := io.LimitReader(d.r, int64(n))
	_, _ = io.Copy(io.Discard, lr)
}

// Encode writes a single frame (compression flag + length prefix +
// payload) to w.
func Encode(w io.Writer, compressed bool, payload []byte) error {
	var prefix [prefixLen]byte
	if compressed {
		prefix[0] = 1
	}
	binary.BigEndian.PutUint32(prefix[compressedFlagLen:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

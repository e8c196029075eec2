package mem

import (
	"sync"
	"sync/atomic"
)

// smallBufferThreshold is the size below which a Buffer isn't worth
// pooling; NewBuffer called without a pool holds data of at most this
// size directly as a SliceBuffer instead of going through the refcounted
// pool path.
const smallBufferThreshold = 1 << 10

var (
	bufferObjectPool = sync.Pool{New: func() any { return new(buffer) }}
	refObjectPool    = sync.Pool{New: func() any { return new(atomic.Int32) }}
)

// Buffer is a refcounted view over a pooled byte slice. A frame decoded
// off the wire starts life as one Buffer with a refcount of 1; Free must
// be called exactly once per Ref (including the implicit one from
// NewBuffer) or the backing slice never returns to its pool.
type Buffer interface {
	// ReadOnlyData returns the underlying byte slice. The slice must not
	// be mutated, and must not be retained past the matching Free.
	ReadOnlyData() []byte
	// Ref increments the buffer's reference count.
	Ref()
	// Free decrements the reference count, returning the backing slice
	// to its pool once it reaches zero.
	Free()
	// Len returns the buffer's size.
	Len() int
}

// NewBuffer wraps data in a Buffer with a refcount of 1. pool is used to
// reclaim the slice once every reference is freed; a nil pool is only
// safe for buffers too small to be worth pooling.
func NewBuffer(data *[]byte, pool BufferPool) Buffer {
	if pool == nil && len(*data) <= smallBufferThreshold {
		return SliceBuffer(*data)
	}

	b := bufferObjectPool.Get().(*buffer)
	b.originData = data
	b.data = *data
	b.pool = pool
	b.refs = refObjectPool.Get().(*atomic.Int32)
	b.refs.Store(1)
	return b
}

type buffer struct {
	originData *[]byte
	data       []byte
	refs       *atomic.Int32
	pool       BufferPool
}

func (b *buffer) ReadOnlyData() []byte {
	if b.refs == nil {
		panic("mem: read of a freed buffer")
	}
	return b.data
}

func (b *buffer) Ref() {
	if b.refs == nil {
		panic("mem: ref of a freed buffer")
	}
	b.refs.Add(1)
}

func (b *buffer) Free() {
	if b.refs == nil {
		panic("mem: double free of buffer")
	}

	refs := b.refs.Add(-1)
	switch {
	case refs > 0:
		return
	case refs == 0:
		if b.pool != nil {
			b.pool.Put(b.originData)
		}
		refObjectPool.Put(b.refs)
		b.originData = nil
		b.data = nil
		b.refs = nil
		b.pool = nil
		bufferObjectPool.Put(b)
	default:
		panic("mem: double free of buffer")
	}
}

func (b *buffer) Len() int {
	return len(b.data)
}

// SliceBuffer is an unpooled Buffer backed directly by a byte slice, for
// messages too small to bother pooling; Ref and Free are no-ops.
type SliceBuffer []byte

func (s SliceBuffer) ReadOnlyData() []byte { return s }
func (s SliceBuffer) Ref()                 {}
func (s SliceBuffer) Free()                {}
func (s SliceBuffer) Len() int             { return len(s) }

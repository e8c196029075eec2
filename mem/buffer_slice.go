package mem

// BufferSlice is an ordered list of Buffers making up one gRPC message.
// A streaming decoder may accumulate several chunks before the message
// boundary is known; BufferSlice lets ServerCall treat them as one
// logical payload without copying until Materialize is called.
type BufferSlice []Buffer

// Len returns the sum of the length of all the Buffers in this slice.
func (s BufferSlice) Len() int {
	length := 0
	for _, b := range s {
		length += b.Len()
	}
	return length
}

// Free invokes Buffer.Free() on each Buffer in the slice.
func (s BufferSlice) Free() {
	for _, b := range s {
		b.Free()
	}
}

// Ref invokes Ref on each buffer in the slice.
func (s BufferSlice) Ref() {
	for _, b := range s {
		b.Ref()
	}
}

// Materialize concatenates all the underlying Buffers' data into a
// single contiguous slice. The caller still owns the BufferSlice and must
// Free it once done; Materialize's result is an independent copy.
func (s BufferSlice) Materialize() []byte {
	l := s.Len()
	if l == 0 {
		return nil
	}
	out := make([]byte, l)
	s.CopyTo(out)
	return out
}

// CopyTo copies the data from the underlying Buffers into dst, returning
// the number of bytes copied.
func (s BufferSlice) CopyTo(dst []byte) int {
	off := 0
	for _, b := range s {
		off += copy(dst[off:], b.ReadOnlyData())
	}
	return off
}

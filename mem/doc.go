// Package mem implements the pooled, reference-counted byte buffers that
// back every message a ServerCall reads: framer.Decoder hands out a
// BufferSlice backed by a pooled Buffer, ServerCall copies it out with
// Materialize before decompressing and unmarshalling, and the backing
// slice returns to the BufferPool the moment every holder has freed it.
package mem

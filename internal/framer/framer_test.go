package framer_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crazyfrankie/g2rpc/internal/framer"
	"github.com/crazyfrankie/g2rpc/mem"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, framer.Encode(&buf, false, []byte("hello")))
	require.NoError(t, framer.Encode(&buf, true, []byte("world!")))

	dec := framer.NewDecoder(&buf, mem.DefaultBufferPool(), 0)

	f1, err := dec.Read()
	require.NoError(t, err)
	assert.False(t, f1.Compressed)
	assert.Equal(t, []byte("hello"), f1.Payload.Materialize())
	f1.Free()

	f2, err := dec.Read()
	require.NoError(t, err)
	assert.True(t, f2.Compressed)
	assert.Equal(t, []byte("world!"), f2.Payload.Materialize())
	f2.Free()

	_, err = dec.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeEmptyMessage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, framer.Encode(&buf, false, nil))

	dec := framer.NewDecoder(&buf, mem.DefaultBufferPool(), 0)
	f, err := dec.Read()
	require.NoError(t, err)
	assert.Equal(t, 0, f.Payload.Len())
}

func TestDecodeRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, framer.Encode(&buf, false, []byte("this payload is too long")))

	dec := framer.NewDecoder(&buf, mem.DefaultBufferPool(), 4)
	_, err := dec.Read()
	assert.ErrorIs(t, err, framer.ErrFrameTooLarge)
}

func TestDecodeTruncatedHeaderIsUnexpectedEOF(t *testing.T) {
	// Only 3 bytes of the 5-byte prefix arrive before the stream ends.
	dec := framer.NewDecoder(bytes.NewReader([]byte{0, 0, 0}), mem.DefaultBufferPool(), 0)
	_, err := dec.Read()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDecodeTruncatedPayloadIsUnexpectedEOF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, framer.Encode(&buf, false, []byte("hello")))
	truncated := buf.Bytes()[:len(buf.Bytes())-2]

	dec := framer.NewDecoder(bytes.NewReader(truncated), mem.DefaultBufferPool(), 0)
	_, err := dec.Read()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestDecodeCleanEOFBetweenFrames(t *testing.T) {
	dec := framer.NewDecoder(bytes.NewReader(nil), mem.DefaultBufferPool(), 0)
	_, err := dec.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoderStateResetsToNoDataAfterRead(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, framer.Encode(&buf, false, []byte("x")))

	dec := framer.NewDecoder(&buf, mem.DefaultBufferPool(), 0)
	_, err := dec.Read()
	require.NoError(t, err)
	assert.Equal(t, framer.NoData, dec.State())
}

package g2rpc

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crazyfrankie/g2rpc/keepalive"
)

// http2PingFrame builds a raw HTTP/2 frame header+payload for a PING
// frame (type 0x6), ack unset unless ack is true.
func http2PingFrame(ack bool) []byte {
	var flags byte
	if ack {
		flags = http2FlagPingAck
	}
	frame := make([]byte, http2FrameHeaderLen+8)
	frame[0], frame[1], frame[2] = 0, 0, 8 // length = 8
	frame[3] = http2FrameTypePing
	frame[4] = flags
	// stream id (bytes 5-8) left zero, 8-byte opaque ping payload follows.
	return frame
}

func TestPingGuardConnClosesOnPingWithNoActiveStreams(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	g := newPingGuardConn(server, keepalive.EnforcementPolicy{PermitWithoutStream: false}, func() int { return 0 })

	done := make(chan struct{})
	go func() {
		_, _ = client.Write(http2PingFrame(false))
		close(done)
	}()

	buf := make([]byte, 64)
	_, _ = g.Read(buf)
	<-done

	// The guard should have closed the underlying conn; a further write
	// from the client side now fails.
	time.Sleep(10 * time.Millisecond)
	_, err := client.Write([]byte("x"))
	assert.Error(t, err)
}

func TestPingGuardConnPermitsPingWithActiveStream(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	g := newPingGuardConn(server, keepalive.EnforcementPolicy{PermitWithoutStream: false}, func() int { return 1 })

	go func() { _, _ = client.Write(http2PingFrame(false)) }()

	buf := make([]byte, 64)
	n, err := g.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, len(http2PingFrame(false)), n)
}

func TestPingGuardConnEnforcesMinTimeBetweenPings(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	g := newPingGuardConn(server, keepalive.EnforcementPolicy{PermitWithoutStream: true, MinTime: time.Hour}, func() int { return 1 })

	go func() {
		_, _ = client.Write(http2PingFrame(false))
		_, _ = client.Write(http2PingFrame(false))
	}()

	buf := make([]byte, 256)
	_, _ = g.Read(buf)
	_, _ = g.Read(buf)

	time.Sleep(10 * time.Millisecond)
	_, err := client.Write([]byte("x"))
	assert.Error(t, err)
}

func TestPingGuardConnIgnoresPingAck(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	g := newPingGuardConn(server, keepalive.EnforcementPolicy{PermitWithoutStream: false}, func() int { return 0 })

	go func() { _, _ = client.Write(http2PingFrame(true)) }()

	buf := make([]byte, 64)
	_, err := g.Read(buf)
	require.NoError(t, err)

	// net.Pipe writes block until read, so drain the next byte on the
	// server side while the client checks the connection is still open.
	time.Sleep(10 * time.Millisecond)
	go func() { _, _ = g.Read(buf) }()
	_, err = client.Write([]byte("x"))
	assert.NoError(t, err)
}

package g2rpc

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"

	"github.com/crazyfrankie/g2rpc/internal/grpclog"
	"github.com/crazyfrankie/g2rpc/keepalive"
)

// ServerSession is one HTTP/2 connection accepted by a Server: the unit
// that owns keepalive ping cadence, ping-abuse enforcement, and the
// lifetime of every ServerCall multiplexed over it as HTTP/2 streams.
type ServerSession struct {
	srv    *Server
	conn   net.Conn
	h2     *http2.Server
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	activeCalls int
}

type sessionKey struct{}

// sessionFromContext returns the ServerSession backing the connection a
// request context belongs to, if any.
func sessionFromContext(ctx context.Context) (*ServerSession, bool) {
	s, ok := ctx.Value(sessionKey{}).(*ServerSession)
	return s, ok
}

func newServerSession(srv *Server, conn net.Conn) *ServerSession {
	ctx, cancel := context.WithCancel(context.Background())
	s := &ServerSession{
		srv:    srv,
		conn:   conn,
		cancel: cancel,
	}
	s.ctx = context.WithValue(ctx, sessionKey{}, s)
	ka := srv.opt.keepalive
	if ka.Time == 0 {
		ka.Time = keepalive.DefaultServerParameters.Time
	}
	if ka.Timeout == 0 {
		ka.Timeout = keepalive.DefaultServerParameters.Timeout
	}
	s.h2 = &http2.Server{
		MaxConcurrentStreams: srv.opt.maxConcurrentStreams,
		MaxReadFrameSize:     srv.opt.maxFrameSize,
		ReadIdleTimeout:      ka.Time,
		PingTimeout:          ka.Timeout,
	}
	return s
}

// Serve blocks, driving the HTTP/2 connection until it closes or the
// server forces it shut. conn is wrapped with a ping-abuse guard before
// being handed to http2.Server so enforcement applies uniformly
// regardless of which RPCs are active.
func (s *ServerSession) Serve() {
	guarded := newPingGuardConn(s.conn, s.srv.opt.enforce, s.activeStreamCount)
	s.h2.ServeConn(guarded, &http2.ServeConnOpts{
		Context: s.ctx,
		Handler: http.HandlerFunc(s.srv.serveHTTP),
	})
}

func (s *ServerSession) activeStreamCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeCalls
}

func (s *ServerSession) callStarted() {
	s.mu.Lock()
	s.activeCalls++
	s.mu.Unlock()
}

func (s *ServerSession) callFinished() {
	s.mu.Lock()
	s.activeCalls--
	s.mu.Unlock()
}

// Close tears the session down immediately, aborting any calls still in
// flight on it.
func (s *ServerSession) Close() error {
	s.cancel()
	return s.conn.Close()
}

// pingGuardConn wraps a net.Conn and watches the HTTP/2 frames flowing
// through Read for client-initiated PING frames (type 0x6, ACK flag
// unset), closing the connection if they arrive more often than the
// configured EnforcementPolicy allows. It never buffers payload bytes
// beyond the 9-byte frame header needed to classify each frame, so it
// adds no latency to the data path.
type pingGuardConn struct {
	net.Conn
	policy      keepalive.EnforcementPolicy
	activeCalls func() int

	mu       sync.Mutex
	lastPing time.Time
	hdr      [9]byte
	hdrN     int
	skip     int
}

func newPingGuardConn(c net.Conn, policy keepalive.EnforcementPolicy, activeCalls func() int) *pingGuardConn {
	return &pingGuardConn{Conn: c, policy: policy, activeCalls: activeCalls}
}

const (
	http2FrameHeaderLen = 9
	http2FrameTypePing  = 0x6
	http2FlagPingAck    = 0x1
)

func (g *pingGuardConn) Read(p []byte) (int, error) {
	n, err := g.Conn.Read(p)
	if n > 0 {
		g.scan(p[:n])
	}
	return n, err
}

func (g *pingGuardConn) scan(data []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for len(data) > 0 {
		if g.skip > 0 {
			if g.skip >= len(data) {
				g.skip -= len(data)
				return
			}
			data = data[g.skip:]
			g.skip = 0
		}

		if g.hdrN < http2FrameHeaderLen {
			need := http2FrameHeaderLen - g.hdrN
			take := need
			if take > len(data) {
				take = len(data)
			}
			copy(g.hdr[g.hdrN:], data[:take])
			g.hdrN += take
			data = data[take:]
			if g.hdrN < http2FrameHeaderLen {
				return
			}
		}

		length := int(g.hdr[0])<<16 | int(g.hdr[1])<<8 | int(g.hdr[2])
		typ := g.hdr[3]
		flags := g.hdr[4]
		g.hdrN = 0
		g.skip = length

		if typ == http2FrameTypePing && flags&http2FlagPingAck == 0 {
			g.onClientPing()
		}
	}
}

func (g *pingGuardConn) onClientPing() {
	now := time.Now()
	if !g.policy.PermitWithoutStream && g.activeCalls() == 0 {
		grpclog.Warnf("g2rpc: closing connection: keepalive ping with no active streams")
		_ = g.Conn.Close()
		return
	}
	if !g.lastPing.IsZero() && now.Sub(g.lastPing) < g.policy.MinTime {
		grpclog.Warnf("g2rpc: closing connection: keepalive ping arrived after %s, less than the %s minimum", now.Sub(g.lastPing), g.policy.MinTime)
		_ = g.Conn.Close()
		return
	}
	g.lastPing = now
}

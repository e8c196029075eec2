// Package g2rpc implements a gRPC-over-HTTP/2 server core: per-stream
// message framing and compression, the per-call state machine, and
// server lifecycle management, built directly on golang.org/x/net/http2
// rather than a hand-rolled transport.
package g2rpc

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/crazyfrankie/g2rpc/codec"
	"github.com/crazyfrankie/g2rpc/internal/grpclog"
	"github.com/crazyfrankie/g2rpc/resolver"
	"github.com/crazyfrankie/g2rpc/status"
)

type serverState int32

const (
	stateUnbound serverState = iota
	stateBound
	stateStarted
	stateShuttingDown
	stateClosed
)

// Server is a gRPC server core bound to zero or more listeners. Its
// lifecycle moves strictly forward: Unbound -> Bound -> Started ->
// ShuttingDown -> Closed.
type Server struct {
	opt *serverOption

	mu        sync.Mutex
	state     serverState
	services  map[string]*service
	listeners map[net.Listener]struct{}
	sessions  map[*ServerSession]struct{}
	drained   *sync.Cond
	acceptWG  sync.WaitGroup

	defaultCodec codec.Codec
	pool         *workerPool
}

// NewServer constructs a Server in the Unbound state.
func NewServer(opts ...ServerOption) *Server {
	o := defaultServerOption()
	for _, opt := range opts {
		opt(o)
	}
	s := &Server{
		opt:          o,
		services:     make(map[string]*service),
		listeners:    make(map[net.Listener]struct{}),
		sessions:     make(map[*ServerSession]struct{}),
		defaultCodec: codec.Lookup("proto"),
	}
	s.drained = sync.NewCond(&s.mu)
	if o.workerPool != nil && o.workerPool.enabled {
		wp := o.workerPool
		s.pool = newWorkerPool(wp.minSize, wp.maxSize, wp.queueSize, time.Duration(wp.adjustInterval))
	}
	return s
}

// Bind resolves each target and opens a listener for it. Bind may be
// called multiple times before Serve to listen on multiple addresses; it
// fails once the server has moved past the Bound state.
func (s *Server) Bind(targets ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateUnbound && s.state != stateBound {
		return fmt.Errorf("g2rpc: Bind called after Serve")
	}

	for _, target := range targets {
		addr, err := resolver.Parse(target, s.opt.creds.Secure())
		if err != nil {
			return err
		}
		lis, err := net.Listen(string(addr.Network), addr.Addr)
		if err != nil {
			return fmt.Errorf("g2rpc: listen on %q: %w", target, err)
		}
		s.listeners[lis] = struct{}{}
	}
	s.state = stateBound
	return nil
}

// Addrs returns the addresses of every listener currently bound.
func (s *Server) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]net.Addr, 0, len(s.listeners))
	for lis := range s.listeners {
		out = append(out, lis.Addr())
	}
	return out
}

// Serve accepts connections on every bound listener until a listener
// errors out or the server is shut down. It blocks until all accept
// loops have returned.
func (s *Server) Serve() error {
	s.mu.Lock()
	if s.state != stateBound {
		s.mu.Unlock()
		return fmt.Errorf("g2rpc: Serve called without a prior Bind, or called twice")
	}
	s.state = stateStarted
	listeners := make([]net.Listener, 0, len(s.listeners))
	for lis := range s.listeners {
		listeners = append(listeners, lis)
	}
	s.mu.Unlock()

	if len(listeners) == 0 {
		return fmt.Errorf("g2rpc: Serve called with no bound listeners")
	}

	errCh := make(chan error, len(listeners))
	for _, lis := range listeners {
		s.acceptWG.Add(1)
		go s.acceptLoop(lis, errCh)
	}
	s.acceptWG.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func (s *Server) acceptLoop(lis net.Listener, errCh chan<- error) {
	defer s.acceptWG.Done()
	for {
		conn, err := lis.Accept()
		if err != nil {
			if s.isShuttingDown() {
				return
			}
			errCh <- err
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	secured, _, err := s.opt.creds.ServerHandshake(context.Background(), conn)
	if err != nil {
		grpclog.Warnf("g2rpc: TLS handshake failed from %s: %v", conn.RemoteAddr(), err)
		_ = conn.Close()
		return
	}

	session := newServerSession(s, secured)

	s.mu.Lock()
	if s.isShuttingDownLocked() {
		s.mu.Unlock()
		_ = secured.Close()
		return
	}
	s.sessions[session] = struct{}{}
	s.mu.Unlock()

	session.Serve()

	s.mu.Lock()
	delete(s.sessions, session)
	s.drained.Broadcast()
	s.mu.Unlock()
}

// serveHTTP is the HTTP/2 Handler every ServerSession routes streams
// through: it resolves the path to a registered method or stream, builds
// the ServerCall, and drives the matching call shape.
func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if s.pool != nil {
		s.pool.submit(func() { s.dispatch(w, r) })
		return
	}
	s.dispatch(w, r)
}

// dispatch resolves the method path, builds the ServerCall, and drives
// the matching call shape. It is the unit of work handed to the worker
// pool when one is configured, or run directly on the stream's own
// goroutine otherwise.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, contentTypePrefix) {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}

	serviceName, methodName, err := splitMethodPath(r.URL.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	session, _ := sessionFromContext(r.Context())
	if session != nil {
		session.callStarted()
		defer session.callFinished()
	}

	c := s.codecForRequest(r)
	fullMethod := r.URL.Path

	svc, methodDesc, streamDesc, lookupErr := s.lookupMethod(serviceName, methodName)
	if lookupErr != nil {
		call, cerr := newServerCall(w, r, fullMethod, c, s.opt, s.opt.statsHandler)
		if cerr != nil {
			http.Error(w, cerr.Error(), http.StatusBadRequest)
			return
		}
		method := unimplementedMethod(fullMethod)
		_ = runUnary(call, nil, &method)
		return
	}

	call, cerr := newServerCall(w, r, fullMethod, c, s.opt, s.opt.statsHandler)
	if cerr != nil {
		http.Error(w, cerr.Error(), http.StatusBadRequest)
		return
	}

	if methodDesc != nil {
		_ = runUnary(call, svc.serviceImpl, methodDesc)
		return
	}
	_ = runStream(call, svc.serviceImpl, streamDesc)
}

func (s *Server) codecForRequest(r *http.Request) codec.Codec {
	ct := r.Header.Get("Content-Type")
	if sub, ok := strings.CutPrefix(ct, contentTypePrefix+"+"); ok {
		if c := codec.Lookup(sub); c != nil {
			return c
		}
	}
	return s.defaultCodec
}

func splitMethodPath(path string) (service, method string, err error) {
	trimmed := strings.TrimPrefix(path, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx <= 0 || idx == len(trimmed)-1 {
		return "", "", status.Errorf(status.Unimplemented, "g2rpc: malformed method path %q", path)
	}
	return trimmed[:idx], trimmed[idx+1:], nil
}

func (s *Server) isShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isShuttingDownLocked()
}

func (s *Server) isShuttingDownLocked() bool {
	return s.state == stateShuttingDown || s.state == stateClosed
}

// GracefulStop stops accepting new connections, lets in-flight sessions
// drain naturally, and returns once every session has closed.
func (s *Server) GracefulStop() {
	s.mu.Lock()
	if s.state == stateClosed || s.state == stateShuttingDown {
		s.mu.Unlock()
		return
	}
	s.state = stateShuttingDown
	for lis := range s.listeners {
		_ = lis.Close()
	}
	for len(s.sessions) > 0 {
		s.drained.Wait()
	}
	s.state = stateClosed
	s.mu.Unlock()
	if s.pool != nil {
		s.pool.stop()
	}
}

// Stop stops accepting new connections and forcibly closes every
// in-flight session without waiting for calls to finish.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return
	}
	s.state = stateShuttingDown
	for lis := range s.listeners {
		_ = lis.Close()
	}
	for session := range s.sessions {
		_ = session.Close()
	}
	s.state = stateClosed
	s.mu.Unlock()
	if s.pool != nil {
		s.pool.stop()
	}
}
